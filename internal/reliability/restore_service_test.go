package reliability

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quangtd/vnsentry/internal/database"
)

func markerLabel(t *testing.T, path string) string {
	t.Helper()
	conn, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer conn.Close()

	var label string
	require.NoError(t, conn.QueryRow(`SELECT label FROM marker`).Scan(&label))
	return label
}

func TestRestoreRoundTrip(t *testing.T) {
	dataDir := t.TempDir()
	backupDir := filepath.Join(dataDir, "backups")
	log := zerolog.Nop()

	db := seededDB(t, dataDir, "history")
	backups := NewBackupService([]*database.DB{db}, backupDir, 7, log)

	setDir, err := backups.Backup()
	require.NoError(t, err)

	// Drift the live database past the backup.
	_, err = db.Exec(`UPDATE marker SET label = 'changed'`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	restore := NewRestoreService(dataDir, log)

	pending, err := restore.CheckPendingRestore()
	require.NoError(t, err)
	assert.False(t, pending)

	staged, err := restore.StageBackupSet(setDir)
	require.NoError(t, err)
	assert.Equal(t, 1, staged)

	pending, err = restore.CheckPendingRestore()
	require.NoError(t, err)
	assert.True(t, pending)

	require.NoError(t, restore.ExecuteStagedRestore())

	livePath := filepath.Join(dataDir, "history.db")
	assert.Equal(t, "history", markerLabel(t, livePath))
	assert.FileExists(t, livePath+".pre-restore")

	pending, err = restore.CheckPendingRestore()
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestRestoreStageArchive(t *testing.T) {
	dataDir := t.TempDir()
	log := zerolog.Nop()

	db := seededDB(t, dataDir, "signals")
	backups := NewBackupService([]*database.DB{db}, filepath.Join(dataDir, "backups"), 7, log)

	stage := filepath.Join(t.TempDir(), "set")
	require.NoError(t, os.MkdirAll(stage, 0o755))
	require.NoError(t, backups.BackupDatabase("signals", filepath.Join(stage, "signals.db")))

	archivePath := filepath.Join(t.TempDir(), "backup.tar.gz")
	require.NoError(t, createArchive(archivePath, stage, []string{"signals.db"}))

	restore := NewRestoreService(dataDir, log)
	staged, err := restore.StageArchive(archivePath)
	require.NoError(t, err)
	assert.Equal(t, 1, staged)

	pending, err := restore.CheckPendingRestore()
	require.NoError(t, err)
	assert.True(t, pending)
}

func TestRestoreRejectsCorruptStage(t *testing.T) {
	dataDir := t.TempDir()
	setDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(setDir, "history.db"), []byte("not a database"), 0o644))

	restore := NewRestoreService(dataDir, zerolog.Nop())
	_, err := restore.StageBackupSet(setDir)
	assert.Error(t, err)
}
