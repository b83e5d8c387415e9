package reconciler

import (
	"os"
	"path/filepath"

	"location-sync-service/internal/audit"
	"location-sync-service/pkg/errors"
)

// folder is one directory the run requires
type folder struct {
	label string
	path  string
}

func (s *SyncService) folders() []folder {
	return []folder{
		{"Base", s.config.BaseDir},
		{"Current", s.config.CurrentDir},
		{"Archive", s.config.ArchiveDir},
		{"Error", s.config.ErrorDir},
	}
}

// checkFolders logs every missing directory and fails if any is missing
func (s *SyncService) checkFolders(log *audit.Log) error {
	var missing []string
	for _, f := range s.folders() {
		if dirExists(f.path) {
			continue
		}
		log.Errorf("Sync %s Folder %s does not exist", f.label, f.path)
		missing = append(missing, f.path)
	}

	if len(missing) == 0 {
		return nil
	}
	return errors.FileError(errors.CodeDirectoryMissing, missing[0], nil).
		WithContext("missing", missing)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// moveFile relocates name from fromDir to toDir, replacing any file of the
// same name there
func moveFile(name, fromDir, toDir string) error {
	from := filepath.Join(fromDir, name)
	to := filepath.Join(toDir, name)

	if !dirExists(toDir) {
		return errors.FileError(errors.CodeMoveFailed, to, os.ErrNotExist).
			WithContext("source", from)
	}
	if err := os.Rename(from, to); err != nil {
		return errors.FileError(errors.CodeMoveFailed, from, err).
			WithContext("destination", to)
	}
	return nil
}
