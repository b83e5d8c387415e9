package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"location-sync-service/cmd/locationsync/config"
	"location-sync-service/internal/audit"
	"location-sync-service/internal/reconciler"
	"location-sync-service/internal/reporter"
	"location-sync-service/internal/store"
	"location-sync-service/pkg/errors"
	"location-sync-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const keyProgress = "progress"

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the inbound export files against the record store",
	Long: `Sync reads the account, location, system and contact files from the
inbound folder, in that order, and brings the record store in line with them.
Each file that validates and reconciles cleanly is moved to the archive folder;
a file with header, column or row errors is moved to the error folder. Files
that are not present are skipped.

The inbound, archive and error folders must exist under the base folder.

Examples:
  # Reconcile against the SQLite store in ./sync/locations.db
  locationsync sync --base-dir ./sync

  # Dry run against an in-memory store seeded from YAML, keeping the result
  locationsync sync --store memory --seed records.yaml --snapshot after.yaml

  # JSON report written to a file
  locationsync sync --output-format json --output-file report.json

  # Close the known gaps in system matching and contact email refresh
  locationsync sync --match-existing-systems --refresh-contact-email`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().String(config.KeyBaseDir, config.DefaultBaseDir, "sync base folder")
	syncCmd.Flags().String(config.KeyCurrentDir, "", "inbound folder (default: <base-dir>/current)")
	syncCmd.Flags().String(config.KeyArchiveDir, "", "archive folder (default: <base-dir>/archive)")
	syncCmd.Flags().String(config.KeyErrorDir, "", "error folder (default: <base-dir>/errors)")

	syncCmd.Flags().String(config.KeyStore, config.BackendSQLite, "record store: sqlite, memory")
	syncCmd.Flags().String(config.KeyDB, "", "SQLite database file (default: <base-dir>/locations.db)")
	syncCmd.Flags().String(config.KeySeed, "", "YAML seed loaded into the store before the run")
	syncCmd.Flags().String(config.KeySnapshot, "", "write a YAML snapshot of the store after the run")

	syncCmd.Flags().StringP(config.KeyOutputFormat, "f", "text", "output format: text, json, csv")
	syncCmd.Flags().StringP(config.KeyOutputFile, "o", "", "output file path (default: stdout)")

	syncCmd.Flags().Bool(config.KeyMatchExistingSystems, false, "match existing systems by SystemID instead of always creating")
	syncCmd.Flags().Bool(config.KeyRefreshContactEmail, false, "update the email of contacts already attached to a location")
	syncCmd.Flags().Bool(keyProgress, false, "show progress indicators")

	for _, key := range []string{
		config.KeyBaseDir, config.KeyCurrentDir, config.KeyArchiveDir, config.KeyErrorDir,
		config.KeyStore, config.KeyDB, config.KeySeed, config.KeySnapshot,
		config.KeyOutputFormat, config.KeyOutputFile,
		config.KeyMatchExistingSystems, config.KeyRefreshContactEmail, keyProgress,
	} {
		viper.BindPFlag(key, syncCmd.Flags().Lookup(key))
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	return executeSync(cmd.Context(), viper.GetViper(), cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// executeSync performs one sync run with settings read from v. The report
// goes to stdout or the configured output file; progress and the audit log of
// an aborted run go to stderr.
func executeSync(ctx context.Context, v *viper.Viper, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.GetGlobalLogger().WithComponent("cli")

	syncConfig, err := config.CreateSyncConfig(v)
	if err != nil {
		return err
	}
	storeConfig, err := config.CreateStoreConfig(v)
	if err != nil {
		return err
	}
	reportConfig, err := config.CreateReportConfig(v.GetString(config.KeyOutputFormat), v.GetBool(config.KeyVerbose))
	if err != nil {
		return err
	}
	generator, err := reporter.NewSafeReportGenerator(reportConfig, log)
	if err != nil {
		return err
	}

	log.WithFields(logger.Fields{
		"base_dir": syncConfig.BaseDir,
		"store":    storeConfig.Backend,
		"db":       storeConfig.DBPath,
	}).Info("Starting sync")

	rs, err := config.OpenStore(ctx, storeConfig)
	if err != nil {
		return err
	}
	defer rs.Close()

	auditLog := audit.New()
	opts := []reconciler.Option{reconciler.WithAuditLog(auditLog)}
	if v.GetBool(keyProgress) {
		opts = append(opts, reconciler.WithProgressCallback(func(p reconciler.SyncProgress) {
			fmt.Fprintf(stderr, "[%d/%d] %s (%.1f%% complete)\n",
				p.CompletedSteps, p.TotalSteps, p.CurrentStep, p.PercentComplete)
		}))
	}

	result, err := reconciler.Run(ctx, syncConfig, rs, opts...)
	if err != nil {
		if auditLog.Len() > 0 {
			fmt.Fprintln(stderr, auditLog.String())
		}
		return err
	}

	if outputFile := v.GetString(config.KeyOutputFile); outputFile != "" {
		if err := generator.WriteFile(result, outputFile); err != nil {
			return err
		}
	} else if err := generator.GenerateReportSafely(result, stdout); err != nil {
		return err
	}

	if storeConfig.SnapshotPath != "" {
		if err := writeSnapshot(ctx, rs, storeConfig.SnapshotPath); err != nil {
			return err
		}
	}

	if !result.Success {
		errored := 0
		for _, f := range result.Files {
			if f.Status == reconciler.StatusErrored {
				errored++
			}
		}
		return errors.ReconciliationError(errors.CodeProcessingError, "sync",
			fmt.Errorf("%d file(s) moved to %s", errored, syncConfig.ErrorDir)).
			WithSuggestion("Check the error lines of the report and correct the files in the error folder")
	}
	return nil
}

func writeSnapshot(ctx context.Context, rs store.RecordStore, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	if err := store.DumpSeed(ctx, rs, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.FileError(errors.CodeDirectoryError, path, err)
	}
	return nil
}
