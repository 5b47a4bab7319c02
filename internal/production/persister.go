// Package production provides production integrations: state persistence,
// event sinks, transition publishing and visualization.
package production

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// MemoryStore is a thread-safe in-process StateStore. Values do not survive
// a restart.
type MemoryStore struct {
	data sync.Map
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) GetBool(key string, def bool) (bool, error) {
	v, ok := s.data.Load(key)
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return def, fmt.Errorf("key %q holds %T, not bool", key, v)
	}
	return b, nil
}

func (s *MemoryStore) PutBool(key string, value bool) error {
	s.data.Store(key, value)
	return nil
}

func (s *MemoryStore) GetString(key string, def string) (string, error) {
	v, ok := s.data.Load(key)
	if !ok {
		return def, nil
	}
	str, ok := v.(string)
	if !ok {
		return def, fmt.Errorf("key %q holds %T, not string", key, v)
	}
	return str, nil
}

func (s *MemoryStore) PutString(key string, value string) error {
	s.data.Store(key, value)
	return nil
}

// Snapshot returns a copy of every stored value.
func (s *MemoryStore) Snapshot() map[string]any {
	snap := map[string]any{}
	s.data.Range(func(k, v any) bool {
		snap[k.(string)] = v
		return true
	})
	return snap
}

// Format selects the on-disk encoding of a FileStore.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FileStore persists preferences to a single file. Every Put rewrites the
// file through a temp file and rename, so a crash leaves either the old or
// the new contents.
type FileStore struct {
	mu     sync.Mutex
	path   string
	format Format
	values map[string]string
}

// NewFileStore opens (or creates) the store at path. The format is taken
// from the extension: .json selects JSON, anything else YAML.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	format := FormatYAML
	if filepath.Ext(path) == ".json" {
		format = FormatJSON
	}
	s := &FileStore{path: path, format: format, values: map[string]string{}}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil
	}
	switch s.format {
	case FormatJSON:
		err = json.Unmarshal(data, &s.values)
	default:
		err = yaml.Unmarshal(data, &s.values)
	}
	if err != nil {
		return fmt.Errorf("%s unmarshal %s: %w", s.format, s.path, err)
	}
	if s.values == nil {
		s.values = map[string]string{}
	}
	return nil
}

func (s *FileStore) flush() error {
	var (
		data []byte
		err  error
	)
	switch s.format {
	case FormatJSON:
		data, err = json.MarshalIndent(s.values, "", "  ")
	default:
		data, err = yaml.Marshal(s.values)
	}
	if err != nil {
		return fmt.Errorf("%s marshal: %w", s.format, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename to %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) GetBool(key string, def bool) (bool, error) {
	raw, ok := s.get(key)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("key %q: %w", key, err)
	}
	return b, nil
}

func (s *FileStore) PutBool(key string, value bool) error {
	return s.put(key, strconv.FormatBool(value))
}

func (s *FileStore) GetString(key string, def string) (string, error) {
	raw, ok := s.get(key)
	if !ok {
		return def, nil
	}
	return raw, nil
}

func (s *FileStore) PutString(key string, value string) error {
	return s.put(key, value)
}

func (s *FileStore) get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *FileStore) put(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.values[key]
	s.values[key] = value
	if err := s.flush(); err != nil {
		if had {
			s.values[key] = prev
		} else {
			delete(s.values, key)
		}
		return err
	}
	return nil
}
