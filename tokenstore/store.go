// Package tokenstore is the secure key/value storage for login credentials.
//
// Values live in a YAML file readable only by the owner. Writes are atomic
// (temp file + rename) and serialized across processes with an advisory
// lock. Each backend gets its own namespace so tokens for different
// servers never overwrite each other.
package tokenstore

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("tokenstore: key not found")

// Entry is one stored value.
type Entry struct {
	Value     string `yaml:"value"`
	UpdatedAt string `yaml:"updated_at"`
}

// Slot holds the entries for a single backend.
type Slot struct {
	Server  string            `yaml:"server,omitempty"`
	Entries map[string]*Entry `yaml:"entries"`
}

type document struct {
	Slots map[string]*Slot `yaml:"slots"`
}

// Store reads and writes one namespace of the token file.
type Store struct {
	path      string
	namespace string
	server    string

	mu sync.Mutex
}

// Open returns a store for server's namespace inside the file at path.
// The file is created on first write.
func Open(path, server string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("tokenstore: empty path")
	}
	return &Store{
		path:      path,
		namespace: Namespace(server),
		server:    server,
	}, nil
}

// Namespace derives the slot name for a server address: base58 of the
// first 12 bytes of its SHA-256.
func Namespace(server string) string {
	sum := sha256.Sum256([]byte(strings.TrimSuffix(strings.TrimSpace(server), "/")))
	return base58.Encode(sum[:12])
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Set stores value under key, replacing any previous value.
func (s *Store) Set(key, value string) error {
	if key == "" {
		return fmt.Errorf("tokenstore: empty key")
	}
	return s.update(func(slot *Slot) bool {
		slot.Entries[key] = &Entry{
			Value:     value,
			UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		return true
	})
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := load(s.path)
	if err != nil {
		return nil, err
	}
	slot, ok := doc.Slots[s.namespace]
	if !ok {
		return nil, ErrNotFound
	}
	e, ok := slot.Entries[key]
	if !ok || e == nil {
		return nil, ErrNotFound
	}
	out := *e
	return &out, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	return s.update(func(slot *Slot) bool {
		if _, ok := slot.Entries[key]; !ok {
			return false
		}
		delete(slot.Entries, key)
		return true
	})
}

func (s *Store) update(fn func(*Slot) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("tokenstore: create dir: %w", err)
	}
	unlock, err := lockFile(s.path + ".lock")
	if err != nil {
		return fmt.Errorf("tokenstore: lock: %w", err)
	}
	defer unlock()

	doc, err := load(s.path)
	if err != nil {
		return err
	}
	slot, ok := doc.Slots[s.namespace]
	if !ok {
		slot = &Slot{Server: s.server}
		doc.Slots[s.namespace] = slot
	}
	if slot.Entries == nil {
		slot.Entries = make(map[string]*Entry)
	}
	if !fn(slot) {
		return nil
	}
	if len(slot.Entries) == 0 {
		delete(doc.Slots, s.namespace)
	}
	return save(s.path, doc)
}

func load(path string) (*document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &document{Slots: make(map[string]*Slot)}, nil
		}
		return nil, fmt.Errorf("tokenstore: read %s: %w", path, err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("tokenstore: parse %s: %w", path, err)
	}
	if doc.Slots == nil {
		doc.Slots = make(map[string]*Slot)
	}
	return &doc, nil
}

// save writes the document atomically with 0600 permissions.
func save(path string, doc *document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp.tokens.*")
	if err != nil {
		return fmt.Errorf("tokenstore: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
