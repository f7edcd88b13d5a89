package server

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the program in dev mode when its file changes
type Watcher struct {
	watcher     *fsnotify.Watcher
	server      *Server
	configPath  string
	programPath string
	stdout      io.Writer
	stderr      io.Writer

	mu      sync.Mutex
	reloads uint64
}

// NewWatcher creates a file watcher for hot reload in dev mode
func NewWatcher(s *Server, configPath string, stdout, stderr io.Writer) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:     fsWatcher,
		server:      s,
		configPath:  configPath,
		programPath: s.config.Program,
		stdout:      stdout,
		stderr:      stderr,
	}, nil
}

// Start begins watching for file changes.
// Directories are watched rather than files so editors that save by
// renaming over the original are still seen.
func (w *Watcher) Start(ctx context.Context) error {
	dirs := map[string]bool{filepath.Dir(w.programPath): true}
	if w.configPath != "" {
		dirs[filepath.Dir(w.configPath)] = true
	}

	for dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	w.logInfo("watching program: %s", w.programPath)

	go w.eventLoop(ctx)

	return nil
}

// eventLoop processes file system events. Changes are handled once events
// have stopped arriving for the debounce period, so a file written in several
// steps is only read when complete.
func (w *Watcher) eventLoop(ctx context.Context) {
	const debounce = 100 * time.Millisecond

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	pending := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			pending[event.Name] = true
			timer.Reset(debounce)

		case <-timer.C:
			for path := range pending {
				w.handleFileChange(ctx, path)
			}
			clear(pending)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logError("watcher error: %v", err)
		}
	}
}

// handleFileChange reloads the program if path is the program file
func (w *Watcher) handleFileChange(ctx context.Context, path string) {
	if w.configPath != "" && samePath(path, w.configPath) {
		w.server.logWarn("config changed: %s (restart the server for config changes to take effect)", path)
		return
	}

	if !samePath(path, w.programPath) {
		return
	}

	// A failed reload leaves the previous program serving
	if err := w.server.loadProgram(ctx); err != nil {
		w.logError("reload failed: %v", err)
		return
	}

	w.logInfo("program reloaded: %s", path)
	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()
}

// Reloads returns how many times the program has been reloaded
func (w *Watcher) Reloads() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Close stops the watcher
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

func (w *Watcher) logInfo(format string, args ...any) {
	fmt.Fprintf(w.stdout, "[WATCH] "+format+"\n", args...)
}

func (w *Watcher) logError(format string, args ...any) {
	fmt.Fprintf(w.stderr, "[WATCH ERROR] "+format+"\n", args...)
}
