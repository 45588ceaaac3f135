package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Persister stores one session snapshot in one logical slot.
//
// Load reports ok=false when the slot is empty. Implementations must
// tolerate Clear on an empty slot.
type Persister interface {
	Load(ctx context.Context) (snap Snapshot, ok bool, err error)
	Save(ctx context.Context, snap Snapshot) error
	Clear(ctx context.Context) error
}

// envelope is the stored layout: {"state": {...}, "version": 0}.
type envelope struct {
	State   Snapshot `json:"state"`
	Version int      `json:"version"`
}

const snapshotVersion = 0

func encodeSnapshot(snap Snapshot) ([]byte, error) {
	return json.Marshal(envelope{State: snap, Version: snapshotVersion})
}

func decodeSnapshot(b []byte) (Snapshot, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	return env.State, nil
}

// MemoryPersister keeps the snapshot in process memory.
type MemoryPersister struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryPersister returns an empty in-memory persister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

func (p *MemoryPersister) Load(ctx context.Context) (Snapshot, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.data == nil {
		return Snapshot{}, false, nil
	}
	snap, err := decodeSnapshot(p.data)
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

func (p *MemoryPersister) Save(ctx context.Context, snap Snapshot) error {
	b, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.data = b
	p.mu.Unlock()
	return nil
}

func (p *MemoryPersister) Clear(ctx context.Context) error {
	p.mu.Lock()
	p.data = nil
	p.mu.Unlock()
	return nil
}

// Raw returns the encoded snapshot, or nil when empty.
func (p *MemoryPersister) Raw() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data == nil {
		return nil
	}
	return append([]byte(nil), p.data...)
}

// FilePersister stores the snapshot as a JSON file, one file per storage key.
// Writes go to a temp file in the same directory and are renamed into place.
type FilePersister struct {
	path string
	mu   sync.Mutex
}

// NewFilePersister stores the snapshot for key under dir as <key>.json.
func NewFilePersister(dir, key string) (*FilePersister, error) {
	if dir == "" || key == "" || filepath.Base(key) != key {
		return nil, ErrConfig
	}
	return &FilePersister{path: filepath.Join(dir, key+".json")}, nil
}

// Path returns the snapshot file path.
func (p *FilePersister) Path() string { return p.path }

func (p *FilePersister) Load(ctx context.Context) (Snapshot, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}

	snap, err := decodeSnapshot(b)
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

func (p *FilePersister) Save(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, p.path)
}

func (p *FilePersister) Clear(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := os.Remove(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
