// Package memory implements a writable in-memory backend. It backs
// the Creator round-trip and derived-operation suites and doubles as
// the reference implementation of the capability contract.
package memory

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mwantia/archivefs"
	"github.com/mwantia/archivefs/backend/index"
	"github.com/mwantia/archivefs/data"
)

var deviceCounter atomic.Int64

// Backend is a thread-safe in-memory filesystem. All entries live in
// RAM and are lost when the backend is closed.
type Backend struct {
	mu     sync.RWMutex
	paths  *index.Index
	datas  map[string][]byte // entry ID -> content
	ids    map[string]string // path -> entry ID
	device int64
	nextID int64
}

// NewBackend creates an empty in-memory backend with a root directory.
func NewBackend() *Backend {
	return &Backend{
		paths:  index.New(),
		datas:  make(map[string][]byte),
		ids:    make(map[string]string),
		device: deviceCounter.Add(1),
		nextID: 1,
	}
}

func (*Backend) Name() string {
	return "memory"
}

func (b *Backend) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for k := range b.datas {
		delete(b.datas, k)
	}
	for k := range b.ids {
		delete(b.ids, k)
	}
	b.paths = index.New()

	return nil
}

func (b *Backend) Open(ctx context.Context, path string, mode data.AccessMode, buffering int) (archivefs.Stream, error) {
	if mode&data.AccessModeWrite != 0 {
		return nil, data.NotSupported(b.Name(), "direct write open")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	resolved, entry, err := b.paths.Resolve(path, true)
	if err != nil {
		return nil, err
	}

	if entry.Stat.IsDir() {
		return nil, data.IsADirectory(path)
	}

	content := b.datas[b.ids[resolved]]

	return archivefs.NewReadStream(io.NopCloser(bytes.NewReader(content))), nil
}

func (b *Backend) Stat(ctx context.Context, path string, followSymlinks bool) (*data.StatRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, entry, err := b.paths.Resolve(path, followSymlinks)
	if err != nil {
		return nil, err
	}

	return entry.Stat.Clone(), nil
}

func (b *Backend) Listdir(ctx context.Context, path string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	resolved, entry, err := b.paths.Resolve(path, true)
	if err != nil {
		return nil, err
	}

	if !entry.Stat.IsDir() {
		return nil, data.NotADirectory(path)
	}

	return b.paths.Children(resolved), nil
}

func (b *Backend) Readlink(ctx context.Context, path string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, entry, err := b.paths.Resolve(path, false)
	if err != nil {
		return "", err
	}

	if !entry.Stat.IsSymlink() {
		return "", data.NotASymlink(path)
	}

	return entry.Stat.Target, nil
}

// Create inserts a new entry. Parent directories must exist; an
// existing entry at path is replaced, so callers enforce collision
// policy before committing.
func (b *Backend) Create(ctx context.Context, path string, stat *data.StatRecord, content io.Reader) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if path != "/" {
		parent, exists := b.paths.Get(parentOf(path))
		if !exists {
			return data.NotFound(parentOf(path))
		}
		if !parent.Stat.IsDir() {
			return data.NotADirectory(parentOf(path))
		}
	}

	record := stat.Clone()
	record.DeviceID = b.device
	record.FileID = b.nextID
	b.nextID++

	now := time.Now()
	if record.ModifyTime.IsZero() {
		record.ModifyTime = now
	}
	if record.CreateTime.IsZero() {
		record.CreateTime = now
	}
	record.StatusTime = now

	var buf []byte
	if content != nil {
		read, err := io.ReadAll(content)
		if err != nil {
			return err
		}
		buf = read
	}
	record.Size = int64(len(buf))

	id := uuid.Must(uuid.NewV7()).String()
	b.paths.Put(path, &index.Entry{Stat: record})
	b.ids[path] = id
	b.datas[id] = buf

	return nil
}

func (b *Backend) Delete(ctx context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.paths.Get(path); !exists {
		return data.NotFound(path)
	}

	b.paths.Delete(path)
	if id, ok := b.ids[path]; ok {
		delete(b.datas, id)
		delete(b.ids, path)
	}

	return nil
}

func (b *Backend) Move(ctx context.Context, oldPath, newPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, exists := b.paths.Get(oldPath)
	if !exists {
		return data.NotFound(oldPath)
	}

	b.paths.Delete(oldPath)
	b.paths.Put(newPath, entry)

	if id, ok := b.ids[oldPath]; ok {
		delete(b.ids, oldPath)
		b.ids[newPath] = id
	}

	return nil
}

func (b *Backend) Chmod(ctx context.Context, path string, perm uint32, followSymlinks bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, entry, err := b.paths.Resolve(path, followSymlinks)
	if err != nil {
		return err
	}

	entry.Stat.Permissions = perm & 0o7777
	entry.Stat.StatusTime = time.Now()

	return nil
}

func parentOf(path string) string {
	for i := len(path) - 1; i > 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "/"
}
