package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRotatingWriter(t *testing.T) {
	t.Run("creates file and parent directory", func(t *testing.T) {
		tmpDir := t.TempDir()
		logFile := filepath.Join(tmpDir, "logs", "agent.log")

		rw, err := NewRotatingWriter(logFile, 10, 3)
		require.NoError(t, err)
		defer rw.Close()

		_, err = os.Stat(logFile)
		assert.NoError(t, err)
	})

	t.Run("resumes size from existing file", func(t *testing.T) {
		tmpDir := t.TempDir()
		logFile := filepath.Join(tmpDir, "agent.log")
		require.NoError(t, os.WriteFile(logFile, []byte("previous run\n"), 0644))

		rw, err := NewRotatingWriter(logFile, 10, 3)
		require.NoError(t, err)
		defer rw.Close()

		assert.Equal(t, int64(len("previous run\n")), rw.currentSize)
	})
}

func TestRotatingWriterWrite(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "agent.log")

	rw, err := NewRotatingWriter(logFile, 10, 3)
	require.NoError(t, err)
	defer rw.Close()

	n, err := rw.Write([]byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, int64(6), rw.currentSize)
}

func TestRotatingWriterRotates(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "agent.log")

	rw, err := NewRotatingWriter(logFile, 10, 3)
	require.NoError(t, err)
	defer rw.Close()

	// Force a tiny limit so the second write rotates.
	rw.maxSize = 8

	_, err = rw.Write([]byte("12345\n"))
	require.NoError(t, err)

	_, err = rw.Write([]byte("67890\n"))
	require.NoError(t, err)

	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)

	var rotated int
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "agent.log.") {
			rotated++
		}
	}
	assert.Equal(t, 1, rotated)
	assert.Equal(t, int64(6), rw.currentSize)
}

func TestRotatingWriterZeroMaxSizeNeverRotates(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "agent.log")

	rw, err := NewRotatingWriter(logFile, 0, 3)
	require.NoError(t, err)
	defer rw.Close()

	for i := 0; i < 100; i++ {
		_, err := rw.Write([]byte("a line of log output that would overflow a tiny limit\n"))
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPruneBackups(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "agent.log")

	for _, suffix := range []string{"20240101-000000", "20240102-000000", "20240103-000000", "20240104-000000"} {
		require.NoError(t, os.WriteFile(logFile+"."+suffix, []byte("old\n"), 0644))
	}

	rw, err := NewRotatingWriter(logFile, 10, 2)
	require.NoError(t, err)
	defer rw.Close()

	rw.pruneBackups()

	backups, err := filepath.Glob(logFile + ".*")
	require.NoError(t, err)
	assert.Len(t, backups, 2)

	// The newest backups survive.
	assert.Contains(t, backups, logFile+".20240103-000000")
	assert.Contains(t, backups, logFile+".20240104-000000")
}
