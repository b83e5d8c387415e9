package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"location-sync-service/internal/reconciler"
	"location-sync-service/pkg/errors"
	"location-sync-service/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with logging and typed errors
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"output_format",
			config,
			err,
		).WithSuggestion("Use one of: text, json, csv")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely validates its inputs and returns failures as SyncError values
func (srg *SafeReportGenerator) GenerateReportSafely(result *reconciler.RunResult, writer io.Writer) error {
	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"output": getWriterDescription(writer),
	}).Debug("Starting report generation")

	if result == nil {
		return errors.ValidationError(errors.CodeMissingField, "result", nil, nil).
			WithSuggestion("Provide a completed run result")
	}
	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil).
			WithSuggestion("Provide a valid output writer")
	}

	if err := srg.GenerateReport(result, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed")
		return errors.WrapIfNeeded(err, errors.CategoryInternal, errors.CodeProcessingError, "report generation failed").
			WithSuggestion("Check the output destination and report format settings")
	}

	srg.logger.Debug("Report generation completed")
	return nil
}

// WriteFile renders the report into path, creating or truncating it
func (srg *SafeReportGenerator) WriteFile(result *reconciler.RunResult, path string) error {
	dir := filepath.Dir(path)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return errors.FileError(errors.CodeDirectoryError, dir, err)
	}

	file, err := os.Create(path)
	if err != nil {
		if os.IsPermission(err) {
			return errors.FileError(errors.CodeFilePermission, path, err)
		}
		return errors.FileError(errors.CodeDirectoryError, path, err)
	}

	genErr := srg.GenerateReportSafely(result, file)
	closeErr := file.Close()
	if genErr != nil {
		return genErr
	}
	if closeErr != nil {
		return errors.FileError(errors.CodeDirectoryError, path, closeErr)
	}

	srg.logger.WithField("output_file", path).Info("Report written")
	return nil
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}
