package reconciler

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"location-sync-service/internal/audit"
	"location-sync-service/internal/models"
	"location-sync-service/internal/parsers"
	"location-sync-service/internal/store"
	"location-sync-service/pkg/errors"
	"location-sync-service/pkg/logger"
)

// Config holds configuration options for a sync run
type Config struct {
	// Directory layout
	BaseDir    string
	CurrentDir string
	ArchiveDir string
	ErrorDir   string

	// Inbound files, one per kind
	Files []models.FileSpec

	// MatchExistingSystems makes the system pass look for an existing system
	// by SystemID under the resolved location before creating one. When false
	// every eligible row creates a new system.
	MatchExistingSystems bool

	// RefreshContactEmail applies the row email to a contact that is already
	// attached to the location. When false an attached contact is left as is.
	RefreshContactEmail bool
}

// Default directory names under the base directory
const (
	DefaultCurrentDirName = "current"
	DefaultArchiveDirName = "archive"
	DefaultErrorDirName   = "errors"
)

// DefaultConfig returns the standard layout under baseDir with the default file names
func DefaultConfig(baseDir string) *Config {
	return &Config{
		BaseDir:    baseDir,
		CurrentDir: filepath.Join(baseDir, DefaultCurrentDirName),
		ArchiveDir: filepath.Join(baseDir, DefaultArchiveDirName),
		ErrorDir:   filepath.Join(baseDir, DefaultErrorDirName),
		Files:      models.DefaultFileSpecs(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	dirs := map[string]string{
		"base_dir":    c.BaseDir,
		"current_dir": c.CurrentDir,
		"archive_dir": c.ArchiveDir,
		"error_dir":   c.ErrorDir,
	}
	for setting, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			return errors.ConfigurationError(errors.CodeMissingConfig, setting, dir, nil)
		}
	}

	if filepath.Clean(c.CurrentDir) == filepath.Clean(c.ArchiveDir) ||
		filepath.Clean(c.CurrentDir) == filepath.Clean(c.ErrorDir) {
		return errors.ConfigurationError(errors.CodeConfigConflict, "current_dir", c.CurrentDir,
			fmt.Errorf("inbound directory must differ from archive and error directories"))
	}

	seen := make(map[models.Kind]bool, len(c.Files))
	for _, spec := range c.Files {
		if err := spec.Validate(); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "files", spec.FileName, err)
		}
		if seen[spec.Kind] {
			return errors.ConfigurationError(errors.CodeConfigConflict, "files", spec.Kind,
				fmt.Errorf("kind %s configured more than once", spec.Kind))
		}
		seen[spec.Kind] = true
	}
	for _, kind := range models.Kinds {
		if !seen[kind] {
			return errors.ConfigurationError(errors.CodeMissingConfig, "files", kind,
				fmt.Errorf("no file configured for %s", kind))
		}
	}

	return nil
}

// FileSpec returns the configured file for kind
func (c *Config) FileSpec(kind models.Kind) (models.FileSpec, bool) {
	for _, spec := range c.Files {
		if spec.Kind == kind {
			return spec, true
		}
	}
	return models.FileSpec{}, false
}

// FileStatus is where a processed file ended up
type FileStatus string

const (
	StatusSkipped  FileStatus = "skipped"
	StatusArchived FileStatus = "archived"
	StatusErrored  FileStatus = "errored"
)

// FileOutcome summarizes one file pass
type FileOutcome struct {
	Kind             models.Kind   `json:"kind"`
	FileName         string        `json:"file_name"`
	Status           FileStatus    `json:"status"`
	Rows             int           `json:"rows"`
	ValidationErrors []string      `json:"validation_errors,omitempty"`
	RowErrors        int           `json:"row_errors"`
	Actions          int           `json:"actions"`
	Duration         time.Duration `json:"duration"`
}

// RunResult is the outcome of a completed sync run
type RunResult struct {
	Log            *audit.Log    `json:"-"`
	Files          []FileOutcome `json:"files"`
	FilesProcessed int           `json:"files_processed"`
	Success        bool          `json:"success"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
}

// Text returns the consolidated audit log of the run
func (r *RunResult) Text() string {
	if r.Log == nil {
		return ""
	}
	return r.Log.String()
}

// Outcome returns the outcome recorded for kind
func (r *RunResult) Outcome(kind models.Kind) (FileOutcome, bool) {
	for _, f := range r.Files {
		if f.Kind == kind {
			return f, true
		}
	}
	return FileOutcome{}, false
}

// SyncService runs the file passes of a sync run against a record store
type SyncService struct {
	store     store.RecordStore
	validator *parsers.Validator
	config    *Config
	logger    logger.Logger
	now       func() time.Time
	auditLog  *audit.Log

	progressCallbacks []ProgressCallback
}

// Option configures a SyncService
type Option func(*SyncService)

// WithClock overrides the time source used for the audit log and timings
func WithClock(now func() time.Time) Option {
	return func(s *SyncService) {
		s.now = now
	}
}

// WithAuditLog makes the run append to log instead of a fresh one, so the
// caller can read the entries written before a fatal error
func WithAuditLog(log *audit.Log) Option {
	return func(s *SyncService) {
		s.auditLog = log
	}
}

// WithValidator overrides the file validator
func WithValidator(v *parsers.Validator) Option {
	return func(s *SyncService) {
		s.validator = v
	}
}

// WithProgressCallback registers a progress callback
func WithProgressCallback(callback ProgressCallback) Option {
	return func(s *SyncService) {
		s.progressCallbacks = append(s.progressCallbacks, callback)
	}
}

// NewSyncService creates a new sync service
func NewSyncService(rs store.RecordStore, config *Config, opts ...Option) (*SyncService, error) {
	if rs == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "record_store", nil, nil).
			WithSuggestion("Provide a record store")
	}
	if config == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "config", nil, nil)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &SyncService{
		store:  rs,
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("sync_service"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.validator == nil {
		s.validator = parsers.NewValidator(parsers.DefaultParseConfig())
	}

	return s, nil
}

// GetConfiguration returns the current configuration
func (s *SyncService) GetConfiguration() *Config {
	return s.config
}

// Run performs one sync run with the given configuration and store
func Run(ctx context.Context, config *Config, rs store.RecordStore, opts ...Option) (*RunResult, error) {
	s, err := NewSyncService(rs, config, opts...)
	if err != nil {
		return nil, err
	}
	return s.Sync(ctx)
}
