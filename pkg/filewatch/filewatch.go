// Package filewatch reports the content of a single file every time it changes.
package filewatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// New watches the directory of path so that editors replacing the file
// through a rename are still observed.
func New(path string, logger *slog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		abs = filepath.Join(dir, filepath.Base(abs))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch dir: %w", err)
	}

	return &Watcher{
		path:    abs,
		watcher: watcher,
		logger:  logger,
	}, nil
}

func (w *Watcher) read() (string, error) {
	b, err := os.ReadFile(w.path)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(b)), nil
}

// Run calls onChange with the current content and again after every change
// until ctx is done. A missing file is skipped until it appears.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context, content string)) error {
	defer w.watcher.Close()

	last, err := w.read()
	if err == nil && last != "" {
		onChange(ctx, last)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", w.path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			content, err := w.read()
			if err != nil {
				w.logger.WarnContext(ctx, "failed to read watched file", "path", w.path, "error", err)
				continue
			}
			// a truncating write is observed before the new content lands
			if content == "" || content == last {
				continue
			}
			last = content
			onChange(ctx, content)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WarnContext(ctx, "watcher error", "error", err)
		}
	}
}
