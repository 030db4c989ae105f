// Package media manages the directory of image files available for
// media-backed posts. The library caches the directory listing and an
// optional fsnotify watcher invalidates the cache when files come and go.
package media

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// imageExtensions are the file types eligible for media posts.
var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
}

// Library lists image files in one directory.
type Library struct {
	dir     string
	logger  zerolog.Logger
	watcher *watcher

	mu     sync.Mutex
	cache  []string
	cached bool
}

// NewLibrary builds a library over dir. With watch set, a filesystem
// watcher keeps the cached listing fresh; without it, every call re-reads
// the directory. A missing directory is not an error here: it simply
// yields no files, so media slots fall back to text.
func NewLibrary(dir string, watch bool, logger zerolog.Logger) (*Library, error) {
	if dir == "" {
		return nil, fmt.Errorf("media directory is required")
	}

	l := &Library{
		dir:    dir,
		logger: logger.With().Str("component", "media-library").Logger(),
	}

	if watch {
		w, err := newWatcher(dir, l.logger, l.invalidate)
		if err != nil {
			// Watching is an optimization; fall back to per-call listing
			l.logger.Warn().Err(err).Msg("Media watcher unavailable, listing per call")
		} else {
			l.watcher = w
		}
	}

	return l, nil
}

// Dir returns the watched directory.
func (l *Library) Dir() string { return l.dir }

// Close stops the watcher if one is running.
func (l *Library) Close() error {
	if l.watcher != nil {
		return l.watcher.stop()
	}
	return nil
}

// Files returns the image filenames currently in the directory, sorted.
func (l *Library) Files() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.watcher != nil && l.cached {
		return append([]string(nil), l.cache...)
	}

	files := l.list()
	if l.watcher != nil {
		l.cache = files
		l.cached = true
	}
	return append([]string(nil), files...)
}

// PickUnused picks one image uniformly at random among those the used
// predicate rejects, returning its full path. ok is false when every file
// is used or the directory is empty.
func (l *Library) PickUnused(rng *rand.Rand, used func(string) bool) (path string, ok bool) {
	var unused []string
	for _, name := range l.Files() {
		if used == nil || !used(name) {
			unused = append(unused, name)
		}
	}
	if len(unused) == 0 {
		return "", false
	}

	name := unused[rng.Intn(len(unused))]
	return filepath.Join(l.dir, name), true
}

// invalidate drops the cached listing; the watcher calls this debounced.
func (l *Library) invalidate() {
	l.mu.Lock()
	l.cached = false
	l.mu.Unlock()
}

// list reads the directory, keeping regular files with image extensions.
// Callers hold l.mu.
func (l *Library) list() []string {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warn().Err(err).Str("dir", l.dir).Msg("Failed to list media directory")
		}
		return nil
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files
}
