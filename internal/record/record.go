// Package record persists the locally installed version of every launcher
// component with atomic writes and an exclusive lock for concurrent
// launchers.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// versionSuffix is appended to a component name to form its key on disk.
const versionSuffix = "_version"

// Record maps component name to the last successfully installed version.
type Record struct {
	versions map[string]string
	// extra keeps keys we don't own so a save never drops them.
	extra map[string]json.RawMessage
}

// New returns an empty record.
func New() *Record {
	return &Record{
		versions: map[string]string{},
		extra:    map[string]json.RawMessage{},
	}
}

// Version returns the installed version of a component.
func (r *Record) Version(component string) (string, bool) {
	v, ok := r.versions[component]
	return v, ok
}

// Set records version as installed for component.
func (r *Record) Set(component, version string) {
	r.versions[component] = version
}

// Empty reports whether no component has ever been installed.
func (r *Record) Empty() bool {
	return len(r.versions) == 0
}

// Components returns the recorded component names in sorted order.
func (r *Record) Components() []string {
	names := make([]string, 0, len(r.versions))
	for name := range r.versions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := New()
	for k, v := range r.versions {
		c.versions[k] = v
	}
	for k, v := range r.extra {
		c.extra[k] = v
	}
	return c
}

// MarshalJSON encodes the record as {"<component>_version": "<version>"}.
func (r *Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(r.versions)+len(r.extra))
	for k, v := range r.extra {
		out[k] = v
	}
	for name, version := range r.versions {
		b, err := json.Marshal(version)
		if err != nil {
			return nil, err
		}
		out[name+versionSuffix] = b
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the on-disk form. Non-string *_version values are
// kept as opaque extra keys.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fresh := New()
	for k, v := range raw {
		name, ok := strings.CutSuffix(k, versionSuffix)
		if ok && name != "" {
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				fresh.versions[name] = s
				continue
			}
		}
		fresh.extra[k] = v
	}
	*r = *fresh
	return nil
}

// Store loads and saves a Record at a fixed path.
type Store struct {
	path string
}

// NewStore creates a store for the record file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the record file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the record. A missing file yields an empty record.
func (s *Store) Load() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return New(), nil
		}
		return nil, fmt.Errorf("read version record: %w", err)
	}

	r := New()
	if len(strings.TrimSpace(string(data))) == 0 {
		return r, nil
	}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parse version record %s: %w", s.path, err)
	}
	return r, nil
}

// Save writes the full record atomically.
// Uses write-then-rename so a crash never leaves a truncated record.
func (s *Store) Save(r *Record) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create record directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal version record: %w", err)
	}

	tmpPath := s.path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create temporary record file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temporary record file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temporary record file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temporary record file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename record file: %w", err)
	}

	// Sync directory for durability
	df, err := os.Open(dir)
	if err == nil {
		syncErr := df.Sync()
		df.Close()
		if syncErr != nil {
			return fmt.Errorf("sync directory: %w", syncErr)
		}
	}

	return nil
}
