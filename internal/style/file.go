package style

import (
	"bytes"
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML style profile. Fields missing from the file keep the
// built-in defaults.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read style file: %w", err)
	}

	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("parse style file %s: %w", path, err)
	}
	return c.Merge(Defaults()), nil
}

// Store holds the current default profile. Reads never block a reload.
type Store struct {
	current atomic.Pointer[Config]
	source  atomic.Value // string: "builtin" or the file path
}

// NewStore creates a store seeded with the built-in defaults.
func NewStore() *Store {
	s := &Store{}
	d := Defaults()
	s.current.Store(&d)
	s.source.Store("builtin")
	return s
}

// Defaults returns a copy of the current default profile.
func (s *Store) Defaults() Config {
	return *s.current.Load()
}

// Source reports where the current defaults came from.
func (s *Store) Source() string {
	v, _ := s.source.Load().(string)
	return v
}

// Replace swaps in a new default profile.
func (s *Store) Replace(c Config, source string) {
	s.current.Store(&c)
	s.source.Store(source)
}

// LoadInto reads path and replaces the store's defaults with its contents.
func (s *Store) LoadInto(path string) error {
	c, err := LoadFile(path)
	if err != nil {
		return err
	}
	s.Replace(c, path)
	return nil
}
