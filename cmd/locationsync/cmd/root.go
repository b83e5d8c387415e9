package cmd

import (
	"fmt"
	"os"
	"strings"

	"location-sync-service/cmd/locationsync/config"
	"location-sync-service/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// envPrefix namespaces the environment variables read by viper
const envPrefix = "LOCATIONSYNC"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "locationsync",
	Short: "Customer location sync tool",
	Long: `Locationsync keeps the customer record store in line with the account,
location, system and contact exports of the LIMS.

The fetch command downloads the dated export files from the FTP server into the
inbound folder; the sync command reconciles them against the record store and
moves each file to the archive or error folder.

Examples:
  locationsync fetch --server ftp.example.com --username lims --remote-dir /out --local-dir ./sync/current
  locationsync sync --base-dir ./sync --db ./sync/locations.db
  locationsync sync --store memory --seed records.yaml --output-format json
  locationsync store export --db ./sync/locations.db`,
	Version:       getVersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging(viper.GetViper())
	},
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return NewCLIErrorHandler(os.Stderr).HandleError(err)
	}
	return 0
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, config.KeyVerbose, "v", false, "verbose output")
	rootCmd.PersistentFlags().String(config.KeyLogLevel, "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String(config.KeyLogFormat, "text", "log format: text, json")
	rootCmd.PersistentFlags().String(config.KeyLogFile, "", "write logs to this file instead of stderr")

	viper.BindPFlag(config.KeyVerbose, rootCmd.PersistentFlags().Lookup(config.KeyVerbose))
	viper.BindPFlag(config.KeyLogLevel, rootCmd.PersistentFlags().Lookup(config.KeyLogLevel))
	viper.BindPFlag(config.KeyLogFormat, rootCmd.PersistentFlags().Lookup(config.KeyLogFormat))
	viper.BindPFlag(config.KeyLogFile, rootCmd.PersistentFlags().Lookup(config.KeyLogFile))
}

// initConfig reads in .env files, the config file and ENV variables.
func initConfig() {
	loadEnvFiles()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)

		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}

		if viper.GetBool(config.KeyVerbose) {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// loadEnvFiles loads .env and then .env.local; variables already set win.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		if err := godotenv.Load(envFile); err == nil && verbose {
			fmt.Fprintf(os.Stderr, "Loaded %s\n", envFile)
		}
	}
}

func initLogging(v *viper.Viper) error {
	logConfig, err := config.CreateLoggerConfig(v)
	if err != nil {
		return err
	}
	log, err := logger.NewLogger(logConfig)
	if err != nil {
		return err
	}
	logger.SetGlobalLogger(log)
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
