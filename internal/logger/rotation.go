package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// RotatingWriter writes to a log file and rotates it by size, keeping a
// bounded number of timestamped backups.
type RotatingWriter struct {
	filename   string
	maxSize    int64 // bytes, 0 disables rotation
	maxBackups int

	currentFile *os.File
	currentSize int64
}

// NewRotatingWriter opens filename for appending, creating its directory
// if needed.
func NewRotatingWriter(filename string, maxSizeMB, maxBackups int) (*RotatingWriter, error) {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	return &RotatingWriter{
		filename:    filename,
		maxSize:     int64(maxSizeMB) * 1024 * 1024,
		maxBackups:  maxBackups,
		currentFile: file,
		currentSize: info.Size(),
	}, nil
}

// Write writes data to the log file, rotating first when the write would
// push the file over the size limit.
func (w *RotatingWriter) Write(p []byte) (n int, err error) {
	if w.maxSize > 0 && w.currentSize+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err = w.currentFile.Write(p)
	w.currentSize += int64(n)
	return n, err
}

// Close closes the current log file
func (w *RotatingWriter) Close() error {
	if w.currentFile != nil {
		return w.currentFile.Close()
	}
	return nil
}

func (w *RotatingWriter) rotate() error {
	if err := w.currentFile.Close(); err != nil {
		return err
	}

	timestamp := time.Now().Format("20060102-150405")
	rotatedName := fmt.Sprintf("%s.%s", w.filename, timestamp)
	if err := os.Rename(w.filename, rotatedName); err != nil {
		return err
	}

	w.pruneBackups()

	file, err := os.OpenFile(w.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	w.currentFile = file
	w.currentSize = 0

	return nil
}

// pruneBackups deletes the oldest rotated files beyond maxBackups.
func (w *RotatingWriter) pruneBackups() {
	if w.maxBackups <= 0 {
		return
	}

	backups, err := filepath.Glob(w.filename + ".*")
	if err != nil || len(backups) <= w.maxBackups {
		return
	}

	sort.Strings(backups) // timestamp suffix sorts oldest first

	for _, path := range backups[:len(backups)-w.maxBackups] {
		os.Remove(path)
	}
}
