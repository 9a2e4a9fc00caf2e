package reliability

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateArchiveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "history.db"), []byte("bar data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "signals.db"), []byte("signal data"), 0o644))

	archivePath := filepath.Join(t.TempDir(), "backup.tar.gz")
	require.NoError(t, createArchive(archivePath, dir, []string{"history.db", "signals.db"}))

	f, err := os.Open(archivePath)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	contents := map[string]string{}
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		contents[hdr.Name] = string(data)
	}

	assert.Equal(t, map[string]string{
		"history.db": "bar data",
		"signals.db": "signal data",
	}, contents)
}

func TestCreateArchiveMissingFile(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "backup.tar.gz")
	err := createArchive(archivePath, t.TempDir(), []string{"absent.db"})
	assert.Error(t, err)
}

func TestFileChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	sum, err := fileChecksum(path)
	require.NoError(t, err)
	assert.Equal(t, "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)

	_, err = fileChecksum(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
