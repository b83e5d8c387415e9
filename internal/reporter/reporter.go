// Package reporter renders the result of a sync run for operators and tooling.
//
// Supported output formats:
//   - Text: the consolidated audit log, optionally followed by a per-file summary
//   - JSON: run outcome, per-file outcomes and every audit entry
//   - CSV: one line per audit entry (timestamp, level, action, message)
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	if err != nil {
//		return err
//	}
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"location-sync-service/internal/audit"
	"location-sync-service/internal/reconciler"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
	FormatCSV  OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatText, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// IncludeDebug keeps DEBUG audit entries in the output
	IncludeDebug bool `json:"include_debug"`

	// IncludeSummary appends the per-file outcome table to text reports
	IncludeSummary bool `json:"include_summary"`

	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:         FormatText,
		IncludeDebug:   true,
		IncludeSummary: true,
		CSVDelimiter:   ',',
		CSVHeaders:     true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.Format == FormatCSV && (c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n') {
		return fmt.Errorf("invalid csv delimiter: %q", c.CSVDelimiter)
	}
	return nil
}

// ReportGenerator generates run reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// Config returns the generator configuration
func (rg *ReportGenerator) Config() *ReportConfig {
	return rg.config
}

// GenerateReport writes a report of the run result to writer
func (rg *ReportGenerator) GenerateReport(result *reconciler.RunResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("run result cannot be nil")
	}

	switch rg.config.Format {
	case FormatText:
		return rg.generateTextReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) entries(result *reconciler.RunResult) []audit.Entry {
	if result.Log == nil {
		return nil
	}
	all := result.Log.Entries()
	if rg.config.IncludeDebug {
		return all
	}

	out := make([]audit.Entry, 0, len(all))
	for _, e := range all {
		if e.Level != audit.LevelDebug {
			out = append(out, e)
		}
	}
	return out
}

func (rg *ReportGenerator) generateTextReport(result *reconciler.RunResult, writer io.Writer) error {
	for _, e := range rg.entries(result) {
		if _, err := fmt.Fprintln(writer, e.String()); err != nil {
			return err
		}
	}

	if !rg.config.IncludeSummary {
		return nil
	}

	if _, err := fmt.Fprintf(writer, "\n=== SUMMARY ===\n"); err != nil {
		return err
	}
	status := "success"
	if !result.Success {
		status = "failed"
	}
	fmt.Fprintf(writer, "Status:          %s\n", status)
	fmt.Fprintf(writer, "Files processed: %d\n", result.FilesProcessed)
	if !result.StartedAt.IsZero() {
		fmt.Fprintf(writer, "Duration:        %v\n", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
	}
	if len(result.Files) == 0 {
		return nil
	}

	fmt.Fprintf(writer, "\n%-10s %-30s %-9s %6s %6s %8s\n", "KIND", "FILE", "STATUS", "ROWS", "ERRORS", "ACTIONS")
	for _, f := range result.Files {
		errs := f.RowErrors + len(f.ValidationErrors)
		_, err := fmt.Fprintf(writer, "%-10s %-30s %-9s %6d %6d %8d\n",
			f.Kind, f.FileName, f.Status, f.Rows, errs, f.Actions)
		if err != nil {
			return err
		}
	}
	return nil
}

type reportDocument struct {
	Success        bool                     `json:"success"`
	FilesProcessed int                      `json:"files_processed"`
	StartedAt      time.Time                `json:"started_at"`
	FinishedAt     time.Time                `json:"finished_at"`
	Files          []reconciler.FileOutcome `json:"files"`
	Entries        []audit.Entry            `json:"entries"`
}

func (rg *ReportGenerator) generateJSONReport(result *reconciler.RunResult, writer io.Writer) error {
	doc := reportDocument{
		Success:        result.Success,
		FilesProcessed: result.FilesProcessed,
		StartedAt:      result.StartedAt,
		FinishedAt:     result.FinishedAt,
		Files:          result.Files,
		Entries:        rg.entries(result),
	}
	if doc.Files == nil {
		doc.Files = []reconciler.FileOutcome{}
	}
	if doc.Entries == nil {
		doc.Entries = []audit.Entry{}
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}

func (rg *ReportGenerator) generateCSVReport(result *reconciler.RunResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write([]string{"Timestamp", "Level", "Action", "Message"}); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, e := range rg.entries(result) {
		record := []string{
			e.Time.Format(audit.TimestampLayout),
			string(e.Level),
			strconv.FormatBool(e.Action),
			e.Message,
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write audit entry: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}
