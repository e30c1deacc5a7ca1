package db

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/germanygsg/taurimedrec/internal/apperr"
	"github.com/germanygsg/taurimedrec/internal/fsutil"
	"github.com/germanygsg/taurimedrec/internal/security"
)

// BackupGlob matches the files written by Backup.
const BackupGlob = "patients-*.db"

// BackupFilename names a snapshot taken at the clock's current time. The
// short uuid suffix keeps two backups within one second apart.
func (db *DB) BackupFilename() string {
	ts := db.clock.Now().UTC().Format("20060102-150405")
	return fmt.Sprintf("patients-%s-%s.db", ts, uuid.NewString()[:8])
}

// Backup writes a consistent copy of the store into dir, creating dir if
// needed, and returns the path of the new file. The in-memory fallback store
// can be backed up too; the copy is an ordinary on-disk database.
func (db *DB) Backup(dir string) (string, error) {
	if dir == "" {
		return "", apperr.New(apperr.KindInvalidArgument, "backup directory is empty")
	}
	if db.fs.Exists(dir) && !fsutil.IsDir(db.fs, dir) {
		return "", apperr.New(apperr.KindInvalidArgument, "backup path %s is not a directory", dir)
	}
	if err := db.fs.MkdirAll(dir, 0o755); err != nil {
		return "", apperr.Wrap(apperr.KindIO, err, "failed to create backup directory")
	}

	dest := filepath.Join(dir, db.BackupFilename())

	db.mu.Lock()
	defer db.mu.Unlock()
	if _, err := db.db.Exec("VACUUM INTO ?", dest); err != nil {
		return "", classify(err, "failed to create backup")
	}
	logf("Backup written to %s", dest)
	return dest, nil
}

// PruneBackups removes the oldest backups in dir so that at most keep
// remain, and returns the removed paths.
func (db *DB) PruneBackups(dir string, keep int) ([]string, error) {
	if keep < 1 {
		return nil, apperr.New(apperr.KindInvalidArgument, "keep must be at least 1, got %d", keep)
	}
	matches, err := db.backupFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(matches) <= keep {
		return nil, nil
	}

	var removed []string
	for _, path := range matches[:len(matches)-keep] {
		if err := db.fs.Remove(path); err != nil {
			return removed, apperr.Wrap(apperr.KindIO, err, "failed to remove old backup")
		}
		logf("Removed old backup %s", path)
		removed = append(removed, path)
	}
	return removed, nil
}

// BackupInfo describes one backup file.
type BackupInfo struct {
	Name      string    `json:"name"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// ListBackups returns the backups in dir, oldest first. A missing directory
// has no backups.
func (db *DB) ListBackups(dir string) ([]BackupInfo, error) {
	matches, err := db.backupFiles(dir)
	if err != nil {
		return nil, err
	}
	backups := make([]BackupInfo, 0, len(matches))
	for _, path := range matches {
		info, err := db.fs.Stat(path)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindIO, err, "failed to stat backup")
		}
		backups = append(backups, BackupInfo{
			Name:      filepath.Base(path),
			SizeBytes: info.Size(),
			ModTime:   info.ModTime().UTC(),
		})
	}
	return backups, nil
}

// BackupPath resolves a backup name taken from a caller to its path in dir.
// Names that leave dir or are not backup files are invalid-argument; a
// well-formed name with no file is not-found.
func (db *DB) BackupPath(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
		return "", apperr.Wrap(apperr.KindInvalidArgument, err, "invalid backup name")
	}
	if filepath.Dir(path) != filepath.Clean(dir) {
		return "", apperr.New(apperr.KindInvalidArgument, "invalid backup name %q", name)
	}
	if ok, _ := filepath.Match(BackupGlob, filepath.Base(path)); !ok {
		return "", apperr.New(apperr.KindInvalidArgument, "invalid backup name %q", name)
	}
	if !db.fs.Exists(path) {
		return "", apperr.New(apperr.KindNotFound, "backup %s not found", name)
	}
	return path, nil
}

// backupFiles lists the backup files in dir sorted by name. Filenames carry
// a UTC timestamp, so this is age order.
func (db *DB) backupFiles(dir string) ([]string, error) {
	matches, err := db.fs.Glob(filepath.Join(dir, BackupGlob))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidArgument, err, "invalid backup directory")
	}
	sort.Strings(matches)
	return matches, nil
}
