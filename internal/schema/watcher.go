package schema

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"video-docs-go/internal/logger"
)

// Store holds the current default schema and can hot-reload it from disk.
type Store struct {
	mu      sync.RWMutex
	current *Schema
	path    string
	log     *logger.Logger
}

// NewStore returns a store seeded with s. If path is set the file is loaded
// immediately and Watch keeps it fresh.
func NewStore(s *Schema, path string, log *logger.Logger) (*Store, error) {
	if s == nil {
		s = Default()
	}
	st := &Store{current: s, path: path, log: log.Component("schema")}
	if path != "" {
		if err := st.Reload(); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// Current returns the active schema.
func (s *Store) Current() *Schema {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Reload re-reads the schema file. A bad file leaves the previous schema in place.
func (s *Store) Reload() error {
	loaded, err := Load(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()
	return nil
}

// Watch reloads the schema whenever its file is written or replaced. It blocks until
// ctx is done. The parent directory is watched so atomic renames are seen too.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create schema watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", s.path, err)
	}
	target := filepath.Clean(s.path)
	s.log.WithField("path", s.path).Info("watching schema file")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("schema watcher events channel closed")
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := s.Reload(); err != nil {
				s.log.WithError(err).Warn("schema reload failed, keeping previous schema")
				continue
			}
			s.log.Info("schema reloaded")
		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("schema watcher errors channel closed")
			}
			s.log.WithError(err).Warn("schema watcher error")
		}
	}
}
