package shader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

const maxReadRetries = 5

// readSource reads a shader file. Editors that save by rename leave a short
// window where the file is missing or empty; those reads are retried.
func readSource(path string) (string, error) {
	var src string
	op := func() error {
		b, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(b) == 0 {
			return fmt.Errorf("%s is empty", path)
		}
		src = string(b)
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	if err := backoff.Retry(op, backoff.WithMaxRetries(b, maxReadRetries)); err != nil {
		return "", fmt.Errorf("failed to read shader %s: %w", path, err)
	}
	return src, nil
}

// LoadPair reads a vertex and fragment shader from disk. An empty path takes
// the stage from fallback.
func LoadPair(vertexPath, fragmentPath string, fallback Pair) (Pair, error) {
	p := fallback
	var err error
	if vertexPath != "" {
		if p.Vertex, err = readSource(vertexPath); err != nil {
			return Pair{}, err
		}
	}
	if fragmentPath != "" {
		if p.Fragment, err = readSource(fragmentPath); err != nil {
			return Pair{}, err
		}
	}
	return p, nil
}

// Watch calls onChange with the path of each watched file that is written,
// created or renamed into place, until ctx is done. The parent directories are
// watched so that rename-on-save is seen.
func Watch(ctx context.Context, paths []string, onChange func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	wanted := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		wanted[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !wanted[filepath.Clean(event.Name)] {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				log.WithFields(log.Fields{"path": event.Name, "op": event.Op.String()}).Debug("shader changed")
				onChange(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("shader watcher error")
		}
	}
}
