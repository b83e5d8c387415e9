package cmd

import (
	"context"
	"fmt"
	"io"

	"location-sync-service/cmd/locationsync/config"
	"location-sync-service/internal/notify"
	"location-sync-service/internal/remote"
	"location-sync-service/pkg/errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the dated export files from the FTP server",
	Long: `Fetch logs into the FTP server, lists the remote folder and downloads every
file whose name contains the requested date into the local folder, replacing
files of the same name. With --date-range every date from --date up to today
is looked for. An operator notification reports how many files were found.

The password may be given in LOCATIONSYNC_PASSWORD or a .env file.

Examples:
  # Today's files
  locationsync fetch -s ftp.example.com -u lims -r /out -l ./sync/current

  # Everything since the 14th of January, with a mail to the operators
  locationsync fetch -s ftp.example.com -u lims -r /out -l ./sync/current \
    --date 20240114 --date-range --mail-from sync@example.com --mail-to ops@example.com`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringP(config.KeyServer, "s", "", "FTP server address (required)")
	fetchCmd.Flags().Int(config.KeyPort, 21, "FTP server port")
	fetchCmd.Flags().StringP(config.KeyUsername, "u", "", "FTP username (required)")
	fetchCmd.Flags().StringP(config.KeyPassword, "p", "", "FTP password (required)")
	fetchCmd.Flags().StringP(config.KeyRemoteDir, "r", "", "remote directory to list files from (required)")
	fetchCmd.Flags().StringP(config.KeyLocalDir, "l", "", "local directory to save downloaded files (required)")
	fetchCmd.Flags().StringP(config.KeyDate, "d", "", "date to filter files by, in --date-layout (default: today)")
	fetchCmd.Flags().String(config.KeyDateLayout, remote.DefaultDateLayout, "Go reference layout of the date in file names")
	fetchCmd.Flags().Bool(config.KeyDateRange, false, "get all files from the given date to today")
	fetchCmd.Flags().Duration(config.KeyTimeout, remote.DefaultFetchConfig().Timeout, "FTP dial timeout")

	fetchCmd.Flags().String(config.KeySMTPHost, "localhost", "SMTP relay host")
	fetchCmd.Flags().Int(config.KeySMTPPort, 25, "SMTP relay port")
	fetchCmd.Flags().String(config.KeySMTPUser, "", "SMTP username")
	fetchCmd.Flags().String(config.KeySMTPPassword, "", "SMTP password")
	fetchCmd.Flags().Bool(config.KeySMTPTLS, false, "require TLS on the SMTP connection")
	fetchCmd.Flags().String(config.KeyMailFrom, "", "notification sender address")
	fetchCmd.Flags().StringSlice(config.KeyMailTo, []string{}, "notification recipients (empty: log only)")

	for _, key := range []string{
		config.KeyServer, config.KeyPort, config.KeyUsername, config.KeyPassword,
		config.KeyRemoteDir, config.KeyLocalDir, config.KeyDate, config.KeyDateLayout,
		config.KeyDateRange, config.KeyTimeout,
		config.KeySMTPHost, config.KeySMTPPort, config.KeySMTPUser, config.KeySMTPPassword,
		config.KeySMTPTLS, config.KeyMailFrom, config.KeyMailTo,
	} {
		viper.BindPFlag(key, fetchCmd.Flags().Lookup(key))
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	return executeFetch(cmd.Context(), viper.GetViper(), cmd.OutOrStdout())
}

// executeFetch runs one fetch with settings read from v and prints one line
// per transfer. Options are applied after the configured notifier.
func executeFetch(ctx context.Context, v *viper.Viper, stdout io.Writer, opts ...remote.FetcherOption) error {
	if ctx == nil {
		ctx = context.Background()
	}

	fetchConfig, err := config.CreateFetchConfig(v)
	if err != nil {
		return err
	}
	notifyConfig, err := config.CreateNotifyConfig(v)
	if err != nil {
		return err
	}
	notifier, err := notify.New(notifyConfig)
	if err != nil {
		return err
	}

	fetcher, err := remote.NewFetcher(fetchConfig, append([]remote.FetcherOption{remote.WithNotifier(notifier)}, opts...)...)
	if err != nil {
		return err
	}

	result, err := fetcher.Run(ctx)
	if err != nil {
		return err
	}

	for _, t := range result.Transfers {
		if t.OK() {
			fmt.Fprintf(stdout, "downloaded %s -> %s (%d bytes)\n", t.Name, t.LocalPath, t.Bytes)
		} else {
			fmt.Fprintf(stdout, "failed     %s: %s\n", t.Name, t.Error)
		}
	}
	fmt.Fprintf(stdout, "Downloaded %d of %d selected files (%d listed)\n",
		result.Downloaded, len(result.Selected), result.Listed)

	failed := result.Failed()
	if len(failed) == 0 {
		return nil
	}
	errs := make([]*errors.SyncError, 0, len(failed))
	for _, t := range failed {
		if syncErr, ok := errors.AsSyncError(t.Err); ok {
			errs = append(errs, syncErr)
		} else {
			errs = append(errs, errors.NetworkError(errors.CodeTransferFailed, t.Name, t.Err))
		}
	}
	return errors.NewErrorSummary(errs)
}
