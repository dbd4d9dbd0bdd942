// Package snapshot saves and restores the state of named components.
package snapshot

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// Version is the version of the snapshot file format.
const Version = 1

var (
	// ErrDigestMismatch is returned when a snapshot file does not match its
	// digest.
	ErrDigestMismatch = errors.New("snapshot: digest mismatch")

	// ErrUnknownEntry is returned when a snapshot holds an entry that no
	// component is registered for.
	ErrUnknownEntry = errors.New("snapshot: unknown entry")
)

// A Snapshotter is a component whose state can be saved and restored.
// RestoreState receives a value of the same type SnapshotState returns.
// SnapshotState returns a value that does not share memory with the live
// state, so it can be restored later.
type Snapshotter interface {
	SnapshotState() any
	RestoreState(snapshot any) error
}

// A Validator checks a state without applying it. Apply validates every
// component that implements it before restoring any.
type Validator interface {
	ValidateState(snapshot any) error
}

// File is the on-disk form of a snapshot.
type File struct {
	Version int                        `json:"version"`
	Digest  string                     `json:"digest"`
	Entries map[string]json.RawMessage `json:"entries"`
}

// Decode unmarshals the entry name into v.
func (f *File) Decode(name string, v any) error {
	raw, ok := f.Entries[name]
	if !ok {
		return fmt.Errorf("%w: %q not in snapshot", ErrUnknownEntry, name)
	}

	return json.Unmarshal(raw, v)
}

// Digest returns the blake2b-256 digest of the entries, in hex. Entries are
// hashed compacted and in name order, so reformatting a file keeps it valid.
func Digest(entries map[string]json.RawMessage) string {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	h, _ := blake2b.New256(nil)
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})

		buf := &bytes.Buffer{}
		if err := json.Compact(buf, entries[name]); err != nil {
			h.Write(entries[name])
			continue
		}
		h.Write(buf.Bytes())
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Load reads a snapshot file and checks its version and digest.
func Load(r io.Reader) (*File, error) {
	f := &File{}

	err := json.NewDecoder(r).Decode(f)
	if err != nil {
		return nil, fmt.Errorf("snapshot: decoding: %w", err)
	}

	if f.Version != Version {
		return nil, fmt.Errorf("snapshot: unsupported version %d", f.Version)
	}

	if Digest(f.Entries) != f.Digest {
		return nil, ErrDigestMismatch
	}

	return f, nil
}

// Manager saves and restores a set of registered components.
type Manager struct {
	entries map[string]Snapshotter
}

// NewManager creates a Manager with no components.
func NewManager() *Manager {
	return &Manager{entries: make(map[string]Snapshotter)}
}

// Register adds a component under name. It panics if the name is taken.
func (m *Manager) Register(name string, s Snapshotter) {
	if _, exists := m.entries[name]; exists {
		panic(fmt.Sprintf("snapshot: %q already registered", name))
	}

	m.entries[name] = s
}

// Names returns the registered names, sorted.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Capture encodes the state of every registered component.
func (m *Manager) Capture() (*File, error) {
	f := &File{
		Version: Version,
		Entries: make(map[string]json.RawMessage, len(m.entries)),
	}

	for name, s := range m.entries {
		raw, err := json.Marshal(s.SnapshotState())
		if err != nil {
			return nil, fmt.Errorf("snapshot: encoding %q: %w", name, err)
		}

		f.Entries[name] = raw
	}

	f.Digest = Digest(f.Entries)

	return f, nil
}

// Save writes the state of every registered component to w.
func (m *Manager) Save(w io.Writer) error {
	f, err := m.Capture()
	if err != nil {
		return err
	}

	return json.NewEncoder(w).Encode(f)
}

// Restore reads a snapshot from r and restores every registered component.
func (m *Manager) Restore(r io.Reader) error {
	f, err := Load(r)
	if err != nil {
		return err
	}

	return m.Apply(f)
}

// Apply restores the components from f. Either every component is restored
// or none is changed: entries are decoded and validated first, and if a
// component still rejects its state, the components restored before it get
// their previous state back.
func (m *Manager) Apply(f *File) error {
	for name := range f.Entries {
		if _, ok := m.entries[name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownEntry, name)
		}
	}

	values := make(map[string]any, len(m.entries))
	for _, name := range m.Names() {
		s := m.entries[name]

		raw, ok := f.Entries[name]
		if !ok {
			return fmt.Errorf("snapshot: no entry for %q", name)
		}

		ptr := reflect.New(reflect.TypeOf(s.SnapshotState()))
		if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
			return fmt.Errorf("snapshot: decoding %q: %w", name, err)
		}

		values[name] = ptr.Elem().Interface()
	}

	for _, name := range m.Names() {
		v, ok := m.entries[name].(Validator)
		if !ok {
			continue
		}

		if err := v.ValidateState(values[name]); err != nil {
			return fmt.Errorf("snapshot: validating %q: %w", name, err)
		}
	}

	return m.commit(values)
}

func (m *Manager) commit(values map[string]any) error {
	names := m.Names()
	previous := make([]any, 0, len(names))

	for i, name := range names {
		s := m.entries[name]
		previous = append(previous, s.SnapshotState())

		err := s.RestoreState(values[name])
		if err == nil {
			continue
		}

		err = fmt.Errorf("snapshot: restoring %q: %w", name, err)

		for j := i; j >= 0; j-- {
			rbErr := m.entries[names[j]].RestoreState(previous[j])
			if rbErr != nil {
				err = errors.Join(err,
					fmt.Errorf("snapshot: rolling back %q: %w", names[j], rbErr))
			}
		}

		return err
	}

	return nil
}
