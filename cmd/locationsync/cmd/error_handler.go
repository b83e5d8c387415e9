package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"syscall"

	"location-sync-service/pkg/errors"
	"location-sync-service/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
	out     io.Writer
}

// NewCLIErrorHandler creates a new CLI error handler writing to out
func NewCLIErrorHandler(out io.Writer) *CLIErrorHandler {
	if out == nil {
		out = os.Stderr
	}
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
		out:     out,
	}
}

// HandleError prints err and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Error("Command failed")

	if summary, ok := err.(*errors.ErrorSummary); ok {
		return h.handleErrorSummary(summary)
	}

	if syncErr, ok := errors.AsSyncError(err); ok {
		return h.handleSyncError(syncErr)
	}

	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleSyncError(err *errors.SyncError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(h.out, "\n%s\n", h.getCategoryHelp(err.Category))

	if err.Cause != nil && (h.verbose || err.Category == errors.CategoryReconciliation) {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

func (h *CLIErrorHandler) handleErrorSummary(summary *errors.ErrorSummary) int {
	fmt.Fprintf(h.out, "Error: %s\n", summary.Error())
	for _, err := range summary.SampleErrors {
		line := err.Message
		if err.Cause != nil {
			line = fmt.Sprintf("%s: %v", line, err.Cause)
		}
		fmt.Fprintf(h.out, "  - %s\n", line)
	}
	if hidden := summary.Total - len(summary.SampleErrors); hidden > 0 {
		fmt.Fprintf(h.out, "  ... and %d more\n", hidden)
	}
	return summary.GetExitCode()
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	if h.isFileNotFoundError(err) {
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	}

	if h.isPermissionError(err) {
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file and folder permissions\n")
		return 2
	}

	if h.isDiskFullError(err) {
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	return 1
}

func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• The base folder must contain the current, archive and errors folders
• Check that the folders are writable by the sync user
• Use --base-dir or --current-dir/--archive-dir/--error-dir to point at the right place`

	case errors.CategoryParse, errors.CategoryValidation:
		return `Input error help:
• Export the file again from the LIMS with the expected header row
• Check that every row has as many columns as the header
• Dates given with --date must match --date-layout`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and arguments
• Verify configuration file syntax if using --config
• Credentials can be set as LOCATIONSYNC_* variables or in a .env file`

	case errors.CategoryReconciliation:
		return `Sync error help:
• Files with errors were moved to the error folder and left unapplied
• Correct them and copy them back into the inbound folder to retry`

	case errors.CategoryNetwork:
		return `Network error help:
• Check the server address, port and credentials
• Verify the remote directory exists for this user`

	case errors.CategoryStore:
		return `Record store error help:
• Check that the database file is writable and not locked by another process
• The run stopped at the failing record; files already processed were moved`

	default:
		return `For more help:
• Use 'locationsync --help' for general help
• Use 'locationsync <command> --help' for command-specific help`
	}
}

func (h *CLIErrorHandler) isFileNotFoundError(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file or directory")
}

func (h *CLIErrorHandler) isPermissionError(err error) bool {
	return os.IsPermission(err) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func (h *CLIErrorHandler) isDiskFullError(err error) bool {
	if errors.Is(err, syscall.ENOSPC) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "device full")
}
