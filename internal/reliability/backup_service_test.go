package reliability

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quangtd/vnsentry/internal/database"

	_ "modernc.org/sqlite"
)

func seededDB(t *testing.T, dir, name string) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(dir, name+".db"),
		Profile: database.ProfileStandard,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE marker (id INTEGER PRIMARY KEY, label TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO marker (label) VALUES (?)`, name)
	require.NoError(t, err)

	return db
}

func TestBackupCreatesVerifiedCopies(t *testing.T) {
	dataDir := t.TempDir()
	backupDir := t.TempDir()

	histDB := seededDB(t, dataDir, "history")
	sigDB := seededDB(t, dataDir, "signals")

	svc := NewBackupService([]*database.DB{histDB, sigDB}, backupDir, 7, zerolog.Nop())
	assert.Equal(t, []string{"history", "signals"}, svc.DatabaseNames())

	dir, err := svc.Backup()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(backupDir, "daily", time.Now().Format("2006-01-02")), dir)

	// The copies are complete databases, not raw file copies.
	for _, name := range []string{"history", "signals"} {
		copyPath := filepath.Join(dir, name+".db")
		require.FileExists(t, copyPath)

		conn, err := sql.Open("sqlite", copyPath)
		require.NoError(t, err)
		var label string
		require.NoError(t, conn.QueryRow(`SELECT label FROM marker`).Scan(&label))
		assert.Equal(t, name, label)
		require.NoError(t, conn.Close())
	}

	// A same-day re-run replaces the copies instead of failing on them.
	_, err = svc.Backup()
	assert.NoError(t, err)
}

func TestBackupRotationKeepsFloor(t *testing.T) {
	dataDir := t.TempDir()
	backupDir := t.TempDir()
	db := seededDB(t, dataDir, "history")

	now := time.Now()
	for _, age := range []int{1, 10, 20, 30} {
		stale := filepath.Join(backupDir, "daily", now.AddDate(0, 0, -age).Format("2006-01-02"))
		require.NoError(t, os.MkdirAll(stale, 0o755))
	}

	svc := NewBackupService([]*database.DB{db}, backupDir, 7, zerolog.Nop())
	_, err := svc.Backup()
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(backupDir, "daily"))
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}

	// Today's set plus the newest two survive the floor of three; the
	// rest are past the seven-day horizon.
	assert.ElementsMatch(t, []string{
		now.Format("2006-01-02"),
		now.AddDate(0, 0, -1).Format("2006-01-02"),
		now.AddDate(0, 0, -10).Format("2006-01-02"),
	}, names)
}

func TestBackupFailsWhenNothingCopied(t *testing.T) {
	svc := NewBackupService(nil, t.TempDir(), 7, zerolog.Nop())

	_, err := svc.Backup()
	assert.Error(t, err)
}
