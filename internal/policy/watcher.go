package policy

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher observes the policy file for on-disk changes after load. The
// running document is never hot-swapped: a change only produces a warning
// that a restart is required, which keeps the construct-once guarantee
// while making stale deployments visible.
type Watcher struct {
	fsw    *fsnotify.Watcher
	done   chan struct{}
	logger *zap.Logger
}

// Watch starts watching path. Close the returned watcher to stop.
func Watch(path string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create policy watcher: %w", err)
	}
	// Watch the directory: editors replace files on save, which drops a
	// direct file watch.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch policy dir: %w", err)
	}

	w := &Watcher{fsw: fsw, done: make(chan struct{}), logger: logger}
	target := filepath.Clean(path)

	go func() {
		defer close(w.done)
		for {
			select {
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Rename) {
					logger.Warn("policy document changed on disk; restart required to apply",
						zap.String("path", target))
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				logger.Warn("policy watcher error", zap.Error(err))
			}
		}
	}()

	return w, nil
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}
