package reliability

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

const stagingDirName = "restore-staging"

// RestoreService applies staged database restores. Databases cannot be
// swapped while connections are open, so a restore is staged to a
// holding directory and executed on the next startup, before anything
// opens them.
type RestoreService struct {
	dataDir string
	log     zerolog.Logger
}

// NewRestoreService creates a restore service rooted at dataDir.
func NewRestoreService(dataDir string, log zerolog.Logger) *RestoreService {
	return &RestoreService{
		dataDir: dataDir,
		log:     log.With().Str("service", "restore").Logger(),
	}
}

func (s *RestoreService) stagingDir() string {
	return filepath.Join(s.dataDir, stagingDirName)
}

// StageBackupSet stages every database copy in a local backup set
// directory. The restore happens on the next startup.
func (s *RestoreService) StageBackupSet(setDir string) (int, error) {
	entries, err := os.ReadDir(setDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read backup set: %w", err)
	}

	if err := os.MkdirAll(s.stagingDir(), 0755); err != nil {
		return 0, fmt.Errorf("failed to create staging directory: %w", err)
	}

	staged := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}
		src := filepath.Join(setDir, entry.Name())
		if err := verifyBackup(src); err != nil {
			return staged, fmt.Errorf("refusing to stage %s: %w", entry.Name(), err)
		}
		if err := copyFile(src, filepath.Join(s.stagingDir(), entry.Name())); err != nil {
			return staged, err
		}
		staged++
	}

	if staged == 0 {
		return 0, fmt.Errorf("no databases found in %s", setDir)
	}

	s.log.Info().Int("databases", staged).Str("source", setDir).Msg("Restore staged")
	return staged, nil
}

// StageArchive stages every database found in a backup archive.
func (s *RestoreService) StageArchive(archivePath string) (int, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("failed to read archive: %w", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(s.stagingDir(), 0755); err != nil {
		return 0, fmt.Errorf("failed to create staging directory: %w", err)
	}

	staged := 0
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return staged, fmt.Errorf("failed to read archive entry: %w", err)
		}
		name := filepath.Base(hdr.Name)
		if !strings.HasSuffix(name, ".db") {
			continue
		}

		dest := filepath.Join(s.stagingDir(), name)
		out, err := os.Create(dest)
		if err != nil {
			return staged, fmt.Errorf("failed to stage %s: %w", name, err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return staged, fmt.Errorf("failed to extract %s: %w", name, err)
		}
		if err := out.Close(); err != nil {
			return staged, err
		}

		if err := verifyBackup(dest); err != nil {
			os.Remove(dest)
			return staged, fmt.Errorf("refusing to stage %s: %w", name, err)
		}
		staged++
	}

	if staged == 0 {
		return 0, fmt.Errorf("no databases found in %s", archivePath)
	}

	s.log.Info().Int("databases", staged).Str("archive", archivePath).Msg("Restore staged from archive")
	return staged, nil
}

// CheckPendingRestore reports whether a staged restore is waiting.
func (s *RestoreService) CheckPendingRestore() (bool, error) {
	entries, err := os.ReadDir(s.stagingDir())
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read staging directory: %w", err)
	}

	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".db") {
			return true, nil
		}
	}
	return false, nil
}

// ExecuteStagedRestore swaps the staged databases into place. The
// current file is kept beside the restored one with a .pre-restore
// suffix until the next restore overwrites it. Must run before any
// database connection is opened.
func (s *RestoreService) ExecuteStagedRestore() error {
	entries, err := os.ReadDir(s.stagingDir())
	if err != nil {
		return fmt.Errorf("failed to read staging directory: %w", err)
	}

	restored := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".db") {
			continue
		}

		staged := filepath.Join(s.stagingDir(), name)
		live := filepath.Join(s.dataDir, name)

		if err := verifyBackup(staged); err != nil {
			return fmt.Errorf("staged database %s failed verification: %w", name, err)
		}

		if _, err := os.Stat(live); err == nil {
			if err := os.Rename(live, live+".pre-restore"); err != nil {
				return fmt.Errorf("failed to set aside %s: %w", name, err)
			}
		}
		// Stale sidecars would corrupt the restored file on first open.
		os.Remove(live + "-wal")
		os.Remove(live + "-shm")

		if err := os.Rename(staged, live); err != nil {
			return fmt.Errorf("failed to restore %s: %w", name, err)
		}

		s.log.Info().Str("database", name).Msg("Database restored")
		restored++
	}

	if err := os.RemoveAll(s.stagingDir()); err != nil {
		s.log.Warn().Err(err).Msg("Failed to remove staging directory")
	}

	s.log.Info().Int("databases", restored).Msg("Staged restore completed")
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
