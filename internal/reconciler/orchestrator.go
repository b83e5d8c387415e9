// Package reconciler brings the record store in line with the inbound files.
//
// A sync run checks the directory layout, then processes the four inbound
// files in the fixed order Accounts, Locations, Systems, Contacts. Each file
// is validated, reconciled row by row when valid, and moved to the archive or
// error directory. Every decision is appended to the run's audit log.
//
// Example usage:
//
//	service, err := reconciler.NewSyncService(recordStore, reconciler.DefaultConfig("/srv/sync"))
//	result, err := service.Sync(ctx)
//	fmt.Println(result.Text())
package reconciler

import (
	"context"
	"sync"
	"time"

	"location-sync-service/internal/audit"
	"location-sync-service/internal/models"
	"location-sync-service/pkg/errors"
	"location-sync-service/pkg/logger"
)

// SyncProgress tracks the progress of a sync run
type SyncProgress struct {
	TotalSteps      int           `json:"total_steps"`
	CompletedSteps  int           `json:"completed_steps"`
	CurrentStep     string        `json:"current_step"`
	PercentComplete float64       `json:"percent_complete"`
	ElapsedTime     time.Duration `json:"elapsed_time"`
}

// ProgressCallback is called after each step of a run
type ProgressCallback func(SyncProgress)

// rule reconciles the rows of one validated file. It reports whether the file
// may be archived; a non-nil error is fatal for the run.
type rule func(ctx context.Context, p *pass) (bool, error)

// stage binds a kind to its rule
type stage struct {
	kind  models.Kind
	apply rule
}

// pipeline returns the stages in dependency order
func (s *SyncService) pipeline() []stage {
	return []stage{
		{kind: models.KindAccount, apply: s.reconcileAccounts},
		{kind: models.KindLocation, apply: s.reconcileLocations},
		{kind: models.KindSystem, apply: s.reconcileSystems},
		{kind: models.KindContact, apply: s.reconcileContacts},
	}
}

// pass is the state of one file pass
type pass struct {
	log       *audit.Log
	spec      models.FileSpec
	rows      []models.Row
	rowErrors int
}

// rowError records a row-level problem
func (p *pass) rowError(format string, args ...interface{}) {
	p.rowErrors++
	p.log.Errorf(format, args...)
}

// Sync performs the directory check and the four file passes. Fatal
// conditions abort the run and are returned as errors; file and row problems
// are only recorded in the audit log.
func (s *SyncService) Sync(ctx context.Context) (*RunResult, error) {
	log := s.auditLog
	if log == nil {
		log = audit.New(audit.WithClock(s.now), audit.WithLogger(s.logger))
	}

	stages := s.pipeline()
	progress := &progressTracker{
		callbacks: s.progressCallbacks,
		start:     s.now(),
		now:       s.now,
		current:   SyncProgress{TotalSteps: len(stages) + 1},
	}

	result := &RunResult{
		Log:       log,
		Files:     make([]FileOutcome, 0, len(stages)),
		StartedAt: s.now(),
	}

	s.logger.WithFields(logger.Fields{
		"base_dir":    s.config.BaseDir,
		"current_dir": s.config.CurrentDir,
	}).Info("Starting sync run")

	if err := s.checkFolders(log); err != nil {
		s.logger.WithError(err).Error("Folder check failed")
		return nil, err
	}
	log.Infof("Folder check was successful")
	progress.update("Folder check", 1)

	log.Infof("Sync process starting")
	for i, st := range stages {
		spec, _ := s.config.FileSpec(st.kind)

		outcome, err := s.processFile(ctx, log, spec, st.apply)
		if err != nil {
			s.logger.WithError(err).WithField("file", spec.FileName).Error("Sync run aborted")
			return nil, err
		}
		result.Files = append(result.Files, outcome)
		progress.update("Processed "+spec.FileName, i+2)
	}
	log.Infof("Sync process complete")

	result.FinishedAt = s.now()
	result.Success = true
	for _, f := range result.Files {
		switch f.Status {
		case StatusArchived:
			result.FilesProcessed++
		case StatusErrored:
			result.FilesProcessed++
			result.Success = false
		}
	}

	s.logger.WithFields(logger.Fields{
		"files_processed": result.FilesProcessed,
		"success":         result.Success,
		"actions":         log.Actions(),
		"errors":          log.Count(audit.LevelError),
	}).Info("Sync run complete")

	return result, nil
}

// processFile validates, reconciles and relocates one inbound file
func (s *SyncService) processFile(ctx context.Context, log *audit.Log, spec models.FileSpec, apply rule) (FileOutcome, error) {
	op := logger.NewOperationLogger("file_pass", s.logger).WithFields(logger.Fields{
		"kind": spec.Kind,
		"file": spec.FileName,
	})
	started := s.now()
	outcome := FileOutcome{Kind: spec.Kind, FileName: spec.FileName}
	actionsBefore := log.Actions()

	data, err := s.validator.Validate(ctx, spec, s.config.CurrentDir, log)
	if err != nil {
		op.Error(err, "Validation aborted")
		return outcome, err
	}
	outcome.Rows = len(data.Rows)

	log.Infof("Found %d rows in %s with %d errors", len(data.Rows), spec.FileName, len(data.Errors))

	if data.NotFound() {
		outcome.Status = StatusSkipped
		op.Success("File not present, skipped")
		return outcome, nil
	}

	if data.Failed() {
		outcome.ValidationErrors = data.Errors
		if err := moveFile(spec.FileName, s.config.CurrentDir, s.config.ErrorDir); err != nil {
			op.Error(err, "Move to error directory failed")
			return outcome, err
		}
		outcome.Status = StatusErrored
		outcome.Duration = s.now().Sub(started)
		op.Success("File moved to error directory")
		return outcome, nil
	}

	op.Step("reconcile")
	p := &pass{log: log, spec: spec, rows: data.Rows}
	ok, err := apply(ctx, p)
	outcome.RowErrors = p.rowErrors
	outcome.Actions = log.Actions() - actionsBefore
	if err != nil {
		op.Error(err, "Reconciliation aborted")
		return outcome, err
	}

	dest, status := s.config.ArchiveDir, StatusArchived
	if !ok {
		dest, status = s.config.ErrorDir, StatusErrored
	}
	if err := moveFile(spec.FileName, s.config.CurrentDir, dest); err != nil {
		op.Error(err, "Move failed")
		return outcome, err
	}
	outcome.Status = status
	outcome.Duration = s.now().Sub(started)

	op.WithFields(logger.Fields{
		"rows":       outcome.Rows,
		"row_errors": outcome.RowErrors,
		"actions":    outcome.Actions,
	}).Success("File reconciled")

	return outcome, nil
}

// storeFailure wraps a record store error as a fatal run error
func storeFailure(code errors.ErrorCode, operation string, err error) error {
	if se, ok := errors.AsSyncError(err); ok && se.Category == errors.CategoryStore {
		return se
	}
	return errors.StoreError(code, operation, err)
}

type progressTracker struct {
	mu        sync.Mutex
	callbacks []ProgressCallback
	start     time.Time
	now       func() time.Time
	current   SyncProgress
}

func (pt *progressTracker) update(step string, completed int) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.current.CurrentStep = step
	pt.current.CompletedSteps = completed
	pt.current.ElapsedTime = pt.now().Sub(pt.start)
	pt.current.PercentComplete = float64(completed) / float64(pt.current.TotalSteps) * 100

	for _, callback := range pt.callbacks {
		callback(pt.current)
	}
}
