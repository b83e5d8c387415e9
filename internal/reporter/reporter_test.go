package reporter

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"location-sync-service/internal/audit"
	"location-sync-service/internal/models"
	"location-sync-service/internal/reconciler"
	syncerrors "location-sync-service/pkg/errors"
	"location-sync-service/pkg/logger"

	"github.com/sebdah/goldie/v2"
)

var runStarted = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

func newGolden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func sampleResult() *reconciler.RunResult {
	log := audit.New(
		audit.WithClock(func() time.Time { return runStarted }),
		audit.WithLogger(nil),
	)
	log.Infof("Folder check was successful")
	log.Infof("Sync process starting")
	log.Debugf("Read %s data file starting", "Account lims.csv")
	log.Infof("File %s with correct %d header columns", "Account lims.csv", 4)
	log.Actionf("Created Client %s", "Acme Water, Durban")
	log.Errorf("%s file not found", "location lims.csv")
	log.Infof("Sync process complete")

	return &reconciler.RunResult{
		Log: log,
		Files: []reconciler.FileOutcome{
			{
				Kind:     models.KindAccount,
				FileName: "Account lims.csv",
				Status:   reconciler.StatusArchived,
				Rows:     2,
				Actions:  1,
				Duration: 250 * time.Millisecond,
			},
			{
				Kind:     models.KindLocation,
				FileName: "location lims.csv",
				Status:   reconciler.StatusSkipped,
			},
			{
				Kind:             models.KindSystem,
				FileName:         "system lims.csv",
				Status:           reconciler.StatusErrored,
				ValidationErrors: []string{"File system lims.csv incorrect number of header columns 3"},
			},
		},
		FilesProcessed: 2,
		Success:        false,
		StartedAt:      runStarted,
		FinishedAt:     runStarted.Add(1500 * time.Millisecond),
	}
}

func render(t *testing.T, config *ReportConfig, result *reconciler.RunResult) []byte {
	t.Helper()
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var buf bytes.Buffer
	if err := generator.GenerateReport(result, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return buf.Bytes()
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{name: "default config", config: nil},
		{name: "valid config", config: DefaultReportConfig()},
		{name: "invalid format", config: &ReportConfig{Format: "xml"}, expectError: true},
		{name: "csv without delimiter", config: &ReportConfig{Format: FormatCSV}, expectError: true},
		{name: "csv quote delimiter", config: &ReportConfig{Format: FormatCSV, CSVDelimiter: '"'}, expectError: true},
		{name: "text ignores delimiter", config: &ReportConfig{Format: FormatText}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if generator == nil {
				t.Errorf("expected generator but got nil")
			}
		})
	}
}

func TestOutputFormatValidation(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{FormatText, true},
		{FormatJSON, true},
		{FormatCSV, true},
		{"console", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := tt.format.IsValid(); got != tt.valid {
			t.Errorf("format %q: expected valid=%v, got %v", tt.format, tt.valid, got)
		}
	}
}

func TestGenerateReportNilResult(t *testing.T) {
	generator, err := NewReportGenerator(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := generator.GenerateReport(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error for nil result")
	}
}

func TestTextReport(t *testing.T) {
	g := newGolden(t)
	g.Assert(t, "text_report", render(t, DefaultReportConfig(), sampleResult()))
}

func TestTextReportCompact(t *testing.T) {
	config := DefaultReportConfig()
	config.IncludeDebug = false
	config.IncludeSummary = false

	g := newGolden(t)
	g.Assert(t, "text_compact", render(t, config, sampleResult()))
}

func TestTextReportMatchesAuditLog(t *testing.T) {
	config := DefaultReportConfig()
	config.IncludeSummary = false

	result := sampleResult()
	got := string(render(t, config, result))
	if got != result.Text()+"\n" {
		t.Errorf("text report should equal the audit log\nreport:\n%s\naudit:\n%s", got, result.Text())
	}
}

func TestJSONReport(t *testing.T) {
	out := render(t, &ReportConfig{Format: FormatJSON, IncludeDebug: true}, sampleResult())

	g := newGolden(t)
	g.Assert(t, "json_report", out)

	var decoded map[string]interface{}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if n := len(decoded["entries"].([]interface{})); n != 7 {
		t.Errorf("expected 7 entries, got %d", n)
	}
}

func TestJSONReportEmptyResult(t *testing.T) {
	out := render(t, &ReportConfig{Format: FormatJSON}, &reconciler.RunResult{Success: true})

	var decoded struct {
		Files   []interface{} `json:"files"`
		Entries []interface{} `json:"entries"`
		Success bool          `json:"success"`
	}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if decoded.Files == nil || decoded.Entries == nil {
		t.Error("expected empty arrays rather than null")
	}
	if !decoded.Success {
		t.Error("expected success to be true")
	}
}

func TestCSVReport(t *testing.T) {
	config := &ReportConfig{Format: FormatCSV, IncludeDebug: true, CSVDelimiter: ',', CSVHeaders: true}

	g := newGolden(t)
	g.Assert(t, "csv_report", render(t, config, sampleResult()))
}

func TestCSVReportWithoutHeaders(t *testing.T) {
	config := &ReportConfig{Format: FormatCSV, CSVDelimiter: ';'}

	out := string(render(t, config, sampleResult()))
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 lines without debug entries, got %d:\n%s", len(lines), out)
	}
	if lines[0] != "2024-01-15 09:30:00;INFO;false;Folder check was successful" {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if lines[3] != "2024-01-15 09:30:00;INFO;true;Created Client Acme Water, Durban" {
		t.Errorf("unexpected action line %q", lines[3])
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestSafeReportGenerator(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		_, err := NewSafeReportGenerator(&ReportConfig{Format: "xml"}, logger.Discard())
		if !syncerrors.HasCode(err, syncerrors.CodeInvalidConfig) {
			t.Errorf("expected invalid config error, got %v", err)
		}
	})

	srg, err := NewSafeReportGenerator(DefaultReportConfig(), logger.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("nil result", func(t *testing.T) {
		err := srg.GenerateReportSafely(nil, &bytes.Buffer{})
		if !syncerrors.HasCode(err, syncerrors.CodeMissingField) {
			t.Errorf("expected missing field error, got %v", err)
		}
	})

	t.Run("nil writer", func(t *testing.T) {
		err := srg.GenerateReportSafely(sampleResult(), nil)
		if !syncerrors.HasCode(err, syncerrors.CodeMissingField) {
			t.Errorf("expected missing field error, got %v", err)
		}
	})

	t.Run("writer failure", func(t *testing.T) {
		err := srg.GenerateReportSafely(sampleResult(), failingWriter{})
		if !syncerrors.HasCode(err, syncerrors.CodeProcessingError) {
			t.Errorf("expected processing error, got %v", err)
		}
	})

	t.Run("write file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.txt")
		if err := srg.WriteFile(sampleResult(), path); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		if !strings.HasPrefix(string(data), "2024-01-15 09:30:00, INFO, Folder check was successful\n") {
			t.Errorf("unexpected report content:\n%s", data)
		}
	})

	t.Run("write file missing directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing", "report.txt")
		err := srg.WriteFile(sampleResult(), path)
		if !syncerrors.HasCode(err, syncerrors.CodeDirectoryError) {
			t.Errorf("expected directory error, got %v", err)
		}
	})
}
