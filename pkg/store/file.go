package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starsdaisuki/stargate/pkg/model"
)

// FileStore keeps profiles in one YAML document. Every call re-reads the
// file, so edits made by hand between calls are picked up; writes replace the
// file atomically.
type FileStore struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewFileStore returns a store backed by path. The file is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) List(_ context.Context) ([]model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.load()
	if err != nil {
		return nil, err
	}
	return c.list(), nil
}

func (s *FileStore) Get(_ context.Context, id string) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.load()
	if err != nil {
		return nil, err
	}
	return c.get(id)
}

func (s *FileStore) Put(_ context.Context, p *model.Profile) error {
	return s.update(func(c *collection) error { return c.put(p) })
}

func (s *FileStore) Delete(_ context.Context, id string) error {
	return s.update(func(c *collection) error { return c.remove(id) })
}

func (s *FileStore) SetActive(_ context.Context, id string) error {
	return s.update(func(c *collection) error { return c.setActive(id, s.now()) })
}

func (s *FileStore) ActiveID(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.load()
	if err != nil {
		return "", err
	}
	return c.Active, nil
}

func (s *FileStore) update(fn func(*collection) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(c); err != nil {
		return err
	}
	return s.save(c)
}

func (s *FileStore) load() (*collection, error) {
	c := &collection{}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading profiles: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing profiles %s: %w", s.path, err)
	}
	return c, nil
}

func (s *FileStore) save(c *collection) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding profiles: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating profile directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".profiles-*.yaml")
	if err != nil {
		return fmt.Errorf("writing profiles: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing profiles: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing profiles: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing profiles: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}
