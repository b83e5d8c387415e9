package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"location-sync-service/cmd/locationsync/config"
	"location-sync-service/internal/models"
	"location-sync-service/pkg/errors"

	"github.com/spf13/viper"
)

func newSyncLayout(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	for _, dir := range []string{"current", "archive", "errors"} {
		if err := os.Mkdir(filepath.Join(base, dir), 0755); err != nil {
			t.Fatalf("failed to create %s: %v", dir, err)
		}
	}
	return base
}

func writeInbound(t *testing.T, base, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(base, "current", name), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestExecuteSync(t *testing.T) {
	base := newSyncLayout(t)
	writeInbound(t, base, models.DefaultAccountFile,
		"Customer_Number,Account_name,Inactive,On_HOLD\n1001,Acme Water,0,0\n1002,Beta Labs,1,0\n")

	reportPath := filepath.Join(base, "report.json")
	snapshotPath := filepath.Join(base, "snapshot.yaml")

	v := viper.New()
	v.Set(config.KeyBaseDir, base)
	v.Set(config.KeyStore, config.BackendMemory)
	v.Set(config.KeyOutputFormat, "json")
	v.Set(config.KeyOutputFile, reportPath)
	v.Set(config.KeySnapshot, snapshotPath)
	v.Set(keyProgress, true)

	var stdout, stderr bytes.Buffer
	if err := executeSync(context.Background(), v, &stdout, &stderr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !fileExists(filepath.Join(base, "archive", models.DefaultAccountFile)) {
		t.Error("expected account file to be archived")
	}
	if fileExists(filepath.Join(base, "current", models.DefaultAccountFile)) {
		t.Error("expected account file to leave the inbound folder")
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	var report struct {
		Success        bool `json:"success"`
		FilesProcessed int  `json:"files_processed"`
		Entries        []struct {
			Message string `json:"message"`
			Action  bool   `json:"action"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if !report.Success || report.FilesProcessed != 1 {
		t.Errorf("expected successful run with 1 file, got success=%v files=%d", report.Success, report.FilesProcessed)
	}
	actions := 0
	for _, e := range report.Entries {
		if e.Action {
			actions++
		}
	}
	if actions != 1 {
		t.Errorf("expected 1 action, got %d", actions)
	}

	snapshot, err := os.ReadFile(snapshotPath)
	if err != nil {
		t.Fatalf("failed to read snapshot: %v", err)
	}
	if !strings.Contains(string(snapshot), "Acme Water") {
		t.Errorf("expected snapshot to contain the created account:\n%s", snapshot)
	}
	if strings.Contains(string(snapshot), "Beta Labs") {
		t.Error("inactive account should not have been created")
	}

	if !strings.Contains(stderr.String(), "[1/5] Folder check") {
		t.Errorf("expected progress output, got:\n%s", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Errorf("expected no report on stdout when writing a file, got:\n%s", stdout.String())
	}
}

func TestExecuteSyncErroredFile(t *testing.T) {
	base := newSyncLayout(t)
	writeInbound(t, base, models.DefaultAccountFile, "Customer_Number,Account_name\n1001,Acme Water\n")

	v := viper.New()
	v.Set(config.KeyBaseDir, base)
	v.Set(config.KeyStore, config.BackendSQLite)

	var stdout, stderr bytes.Buffer
	err := executeSync(context.Background(), v, &stdout, &stderr)

	syncErr, ok := errors.AsSyncError(err)
	if !ok {
		t.Fatalf("expected SyncError, got %v", err)
	}
	if syncErr.Category != errors.CategoryReconciliation {
		t.Errorf("expected reconciliation category, got %s", syncErr.Category)
	}
	if !fileExists(filepath.Join(base, "errors", models.DefaultAccountFile)) {
		t.Error("expected account file in the error folder")
	}
	if !fileExists(filepath.Join(base, config.DefaultDBName)) {
		t.Error("expected SQLite database under the base folder")
	}
	if !strings.Contains(stdout.String(), "Status:          failed") {
		t.Errorf("expected text report with failed status, got:\n%s", stdout.String())
	}
}

func TestExecuteSyncMissingFolders(t *testing.T) {
	base := t.TempDir()

	v := viper.New()
	v.Set(config.KeyBaseDir, base)
	v.Set(config.KeyStore, config.BackendMemory)

	var stdout, stderr bytes.Buffer
	err := executeSync(context.Background(), v, &stdout, &stderr)
	if !errors.HasCode(err, errors.CodeDirectoryMissing) {
		t.Fatalf("expected directory missing error, got %v", err)
	}

	want := "Sync Current Folder " + filepath.Join(base, "current") + " does not exist"
	if !strings.Contains(stderr.String(), want) {
		t.Errorf("expected audit log on stderr to contain %q, got:\n%s", want, stderr.String())
	}
	if stdout.Len() != 0 {
		t.Errorf("expected no report for an aborted run, got:\n%s", stdout.String())
	}
}

func TestExecuteSyncInvalidOutputFormat(t *testing.T) {
	v := viper.New()
	v.Set(config.KeyBaseDir, t.TempDir())
	v.Set(config.KeyStore, config.BackendMemory)
	v.Set(config.KeyOutputFormat, "xml")

	err := executeSync(context.Background(), v, &bytes.Buffer{}, &bytes.Buffer{})
	if !errors.HasCode(err, errors.CodeInvalidConfig) {
		t.Errorf("expected invalid config error, got %v", err)
	}
}
