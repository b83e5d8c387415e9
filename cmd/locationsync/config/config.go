// Package config turns command line flags, config files and environment
// variables (all read through viper) into the typed configurations of the
// internal packages.
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"location-sync-service/internal/notify"
	"location-sync-service/internal/reconciler"
	"location-sync-service/internal/remote"
	"location-sync-service/internal/reporter"
	"location-sync-service/internal/store"
	"location-sync-service/internal/store/sqlite"
	"location-sync-service/pkg/errors"
	"location-sync-service/pkg/logger"

	"github.com/spf13/viper"
)

// Viper keys shared by flags, config files and LOCATIONSYNC_* variables
const (
	KeyVerbose   = "verbose"
	KeyLogLevel  = "log-level"
	KeyLogFormat = "log-format"
	KeyLogFile   = "log-file"

	KeyBaseDir              = "base-dir"
	KeyCurrentDir           = "current-dir"
	KeyArchiveDir           = "archive-dir"
	KeyErrorDir             = "error-dir"
	KeyMatchExistingSystems = "match-existing-systems"
	KeyRefreshContactEmail  = "refresh-contact-email"
	KeyFilesPrefix          = "files"

	KeyStore    = "store"
	KeyDB       = "db"
	KeySeed     = "seed"
	KeySnapshot = "snapshot"

	KeyOutputFormat = "output-format"
	KeyOutputFile   = "output-file"

	KeyServer     = "server"
	KeyPort       = "port"
	KeyUsername   = "username"
	KeyPassword   = "password"
	KeyRemoteDir  = "remote-dir"
	KeyLocalDir   = "local-dir"
	KeyDate       = "date"
	KeyDateLayout = "date-layout"
	KeyDateRange  = "date-range"
	KeyTimeout    = "timeout"

	KeySMTPHost     = "smtp-host"
	KeySMTPPort     = "smtp-port"
	KeySMTPUser     = "smtp-username"
	KeySMTPPassword = "smtp-password"
	KeySMTPTLS      = "smtp-tls"
	KeyMailFrom     = "mail-from"
	KeyMailTo       = "mail-to"
)

// DefaultBaseDir is the sync folder used when --base-dir is not given
const DefaultBaseDir = "./sync"

// DefaultDBName is the SQLite file created under the base directory
const DefaultDBName = "locations.db"

// CreateLoggerConfig builds the process logger configuration
func CreateLoggerConfig(v *viper.Viper) (*logger.Config, error) {
	config := logger.DefaultConfig()

	if level := v.GetString(KeyLogLevel); level != "" {
		config.Level = logger.Level(strings.ToLower(level))
	}
	if v.GetBool(KeyVerbose) {
		config.Level = logger.DebugLevel
	}
	if format := v.GetString(KeyLogFormat); format != "" {
		config.Format = logger.Format(strings.ToLower(format))
	}
	if file := v.GetString(KeyLogFile); file != "" {
		config.Output = logger.FileOutput
		config.File = file
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "logging", config, err).
			WithSuggestion("Use --log-level debug|info|warn|error and --log-format text|json")
	}
	return config, nil
}

// CreateSyncConfig builds the folder layout and file names of a sync run
func CreateSyncConfig(v *viper.Viper) (*reconciler.Config, error) {
	base := v.GetString(KeyBaseDir)
	if base == "" {
		base = DefaultBaseDir
	}
	config := reconciler.DefaultConfig(base)

	if dir := v.GetString(KeyCurrentDir); dir != "" {
		config.CurrentDir = dir
	}
	if dir := v.GetString(KeyArchiveDir); dir != "" {
		config.ArchiveDir = dir
	}
	if dir := v.GetString(KeyErrorDir); dir != "" {
		config.ErrorDir = dir
	}

	for i, spec := range config.Files {
		key := KeyFilesPrefix + "." + strings.ToLower(string(spec.Kind))
		if name := v.GetString(key); name != "" {
			config.Files[i].FileName = name
		}
	}

	config.MatchExistingSystems = v.GetBool(KeyMatchExistingSystems)
	config.RefreshContactEmail = v.GetBool(KeyRefreshContactEmail)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Store backends
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// StoreConfig selects and locates the record store
type StoreConfig struct {
	Backend string
	// DBPath is the SQLite database file
	DBPath string
	// SeedPath is a YAML seed loaded into the store before the run
	SeedPath string
	// SnapshotPath receives a YAML dump of the store after the run
	SnapshotPath string
}

// Validate validates the store configuration
func (c *StoreConfig) Validate() error {
	switch c.Backend {
	case BackendSQLite:
		if strings.TrimSpace(c.DBPath) == "" {
			return errors.ConfigurationError(errors.CodeMissingConfig, KeyDB, c.DBPath, nil).
				WithSuggestion("Set --db to the SQLite database file")
		}
	case BackendMemory:
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, KeyStore, c.Backend,
			fmt.Errorf("unknown store backend %q", c.Backend)).
			WithSuggestion("Use --store sqlite or --store memory")
	}
	return nil
}

// CreateStoreConfig builds the record store configuration
func CreateStoreConfig(v *viper.Viper) (*StoreConfig, error) {
	config := &StoreConfig{
		Backend:      strings.ToLower(v.GetString(KeyStore)),
		DBPath:       v.GetString(KeyDB),
		SeedPath:     v.GetString(KeySeed),
		SnapshotPath: v.GetString(KeySnapshot),
	}
	if config.Backend == "" {
		config.Backend = BackendSQLite
	}
	if config.Backend == BackendSQLite && config.DBPath == "" {
		base := v.GetString(KeyBaseDir)
		if base == "" {
			base = DefaultBaseDir
		}
		config.DBPath = filepath.Join(base, DefaultDBName)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// OpenStore opens the configured store and applies the seed file, if any
func OpenStore(ctx context.Context, config *StoreConfig) (store.RecordStore, error) {
	var rs store.RecordStore
	switch config.Backend {
	case BackendMemory:
		rs = store.NewMemoryStore()
	default:
		db, err := sqlite.Open(config.DBPath)
		if err != nil {
			return nil, err
		}
		rs = db
	}

	if config.SeedPath != "" {
		if err := store.LoadSeedFile(ctx, rs, config.SeedPath); err != nil {
			rs.Close()
			return nil, err
		}
	}
	return rs, nil
}

// CreateFetchConfig builds the settings of a fetch run
func CreateFetchConfig(v *viper.Viper) (*remote.FetchConfig, error) {
	config := remote.DefaultFetchConfig()

	config.Server = v.GetString(KeyServer)
	config.Username = v.GetString(KeyUsername)
	config.Password = v.GetString(KeyPassword)
	config.RemoteDir = v.GetString(KeyRemoteDir)
	config.LocalDir = v.GetString(KeyLocalDir)
	config.Date = v.GetString(KeyDate)
	config.DateRange = v.GetBool(KeyDateRange)

	if v.IsSet(KeyPort) {
		config.Port = v.GetInt(KeyPort)
	}
	if layout := v.GetString(KeyDateLayout); layout != "" {
		config.DateLayout = layout
	}
	if timeout := v.GetDuration(KeyTimeout); timeout > 0 {
		config.Timeout = timeout
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateNotifyConfig builds the operator notification settings
func CreateNotifyConfig(v *viper.Viper) (*notify.Config, error) {
	config := notify.DefaultConfig()

	if host := v.GetString(KeySMTPHost); host != "" {
		config.Host = host
	}
	if v.IsSet(KeySMTPPort) {
		config.Port = v.GetInt(KeySMTPPort)
	}
	config.Username = v.GetString(KeySMTPUser)
	config.Password = v.GetString(KeySMTPPassword)
	config.UseTLS = v.GetBool(KeySMTPTLS)
	config.From = v.GetString(KeyMailFrom)

	for _, to := range v.GetStringSlice(KeyMailTo) {
		if to = strings.TrimSpace(to); to != "" {
			config.To = append(config.To, to)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string, verbose bool) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()

	switch strings.ToLower(format) {
	case "", "text":
		config.Format = reporter.FormatText
	case "json":
		config.Format = reporter.FormatJSON
		config.IncludeSummary = false
	case "csv":
		config.Format = reporter.FormatCSV
		config.CSVHeaders = true
		config.CSVDelimiter = ','
	default:
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyOutputFormat, format,
			fmt.Errorf("invalid output format '%s'", format)).
			WithSuggestion("Valid formats: text, json, csv")
	}
	config.IncludeDebug = verbose

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
