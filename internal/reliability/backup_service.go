// Package reliability keeps the databases recoverable: verified local
// backup copies, and optionally a compressed archive of the full set
// uploaded to S3-compatible storage.
package reliability

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/database"
)

// minBackupsToKeep is the floor for every rotation: the newest sets
// survive regardless of age.
const minBackupsToKeep = 3

// BackupService writes verified local copies of the databases and
// rotates old backup sets.
type BackupService struct {
	databases map[string]*database.DB
	names     []string
	backupDir string
	retention int // days
	log       zerolog.Logger
}

// NewBackupService creates a local backup service over the given
// databases. retentionDays bounds how long daily sets are kept; the
// newest sets always survive.
func NewBackupService(databases []*database.DB, backupDir string, retentionDays int, log zerolog.Logger) *BackupService {
	byName := make(map[string]*database.DB, len(databases))
	names := make([]string, 0, len(databases))
	for _, db := range databases {
		byName[db.Name()] = db
		names = append(names, db.Name())
	}
	sort.Strings(names)

	return &BackupService{
		databases: byName,
		names:     names,
		backupDir: backupDir,
		retention: retentionDays,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// DatabaseNames returns the registered database names, sorted.
func (s *BackupService) DatabaseNames() []string {
	names := make([]string, len(s.names))
	copy(names, s.names)
	return names
}

// Backup writes today's backup set and rotates old ones. A database
// that fails to copy is logged and skipped; the set fails only when
// nothing could be backed up. Returns the directory written.
func (s *BackupService) Backup() (string, error) {
	s.log.Info().Msg("Starting local backup")
	start := time.Now()

	dir := filepath.Join(s.backupDir, "daily", time.Now().Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	copied := 0
	for _, name := range s.names {
		dest := filepath.Join(dir, name+".db")
		if err := s.BackupDatabase(name, dest); err != nil {
			s.log.Error().Err(err).Str("database", name).Msg("Database backup failed")
			continue
		}
		copied++
	}
	if copied == 0 {
		return "", fmt.Errorf("no database could be backed up")
	}

	if err := s.rotate(); err != nil {
		s.log.Error().Err(err).Msg("Backup rotation failed")
	}

	s.log.Info().
		Dur("duration", time.Since(start)).
		Str("backup_dir", dir).
		Int("databases", copied).
		Msg("Local backup completed")

	return dir, nil
}

// BackupDatabase writes a verified copy of one database to destPath.
// VACUUM INTO produces a compacted copy with no WAL sidecar files.
func (s *BackupService) BackupDatabase(name, destPath string) error {
	db, ok := s.databases[name]
	if !ok {
		return fmt.Errorf("database %s not registered", name)
	}

	// VACUUM INTO refuses to overwrite.
	_ = os.Remove(destPath)

	if _, err := db.Conn().Exec(fmt.Sprintf("VACUUM INTO '%s'", destPath)); err != nil {
		return fmt.Errorf("VACUUM INTO failed for %s: %w", name, err)
	}

	if err := verifyBackup(destPath); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("backup verification failed for %s: %w", name, err)
	}

	s.log.Debug().Str("database", name).Str("backup_path", destPath).Msg("Database backed up")
	return nil
}

// verifyBackup opens the copy and runs an integrity check against it.
func verifyBackup(path string) error {
	backup, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer backup.Close()

	var result string
	if err := backup.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// rotate deletes daily sets older than the retention window, always
// keeping the newest minBackupsToKeep sets.
func (s *BackupService) rotate() error {
	dailyDir := filepath.Join(s.backupDir, "daily")

	entries, err := os.ReadDir(dailyDir)
	if err != nil {
		return fmt.Errorf("failed to read backup directory: %w", err)
	}

	type set struct {
		name string
		date time.Time
	}
	sets := make([]set, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		date, err := time.Parse("2006-01-02", entry.Name())
		if err != nil {
			s.log.Warn().Str("dir", entry.Name()).Msg("Unrecognized backup directory name")
			continue
		}
		sets = append(sets, set{name: entry.Name(), date: date})
	}

	// Newest first.
	sort.Slice(sets, func(a, b int) bool { return sets[a].date.After(sets[b].date) })

	var cutoff time.Time
	if s.retention > 0 {
		cutoff = time.Now().AddDate(0, 0, -s.retention)
	}

	for i, st := range sets {
		if i < minBackupsToKeep || s.retention <= 0 {
			continue
		}
		if st.date.Before(cutoff) {
			path := filepath.Join(dailyDir, st.name)
			if err := os.RemoveAll(path); err != nil {
				s.log.Warn().Err(err).Str("path", path).Msg("Failed to delete old backup set")
				continue
			}
			s.log.Debug().Str("path", path).Msg("Deleted old backup set")
		}
	}

	return nil
}
