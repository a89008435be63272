// Package stream provides zero-copy, seekable, read-only views over
// byte ranges of a memory-mapped file. A Mapping is shared by any
// number of Windows and is released when the last reference drops.
package stream

import (
	"os"
	"sync"

	"github.com/mwantia/archivefs/data"
	"golang.org/x/sys/unix"
)

// Mapping is a reference-counted read-only memory map of a file.
// The file descriptor is closed together with the map.
type Mapping struct {
	mu   sync.Mutex
	buf  []byte
	file *os.File
	refs int
	size int64
}

// OpenMapping maps the file at path read-only.
// The returned mapping starts with one reference owned by the caller;
// release it with Close.
func OpenMapping(path string) (*Mapping, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	m, err := NewMapping(file)
	if err != nil {
		file.Close()
		return nil, err
	}

	return m, nil
}

// NewMapping maps an already-open file read-only.
// The mapping takes ownership of the file handle.
func NewMapping(file *os.File) (*Mapping, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	size := info.Size()

	var buf []byte
	if size > 0 {
		buf, err = unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			return nil, err
		}
	}

	return &Mapping{
		buf:  buf,
		file: file,
		refs: 1,
		size: size,
	}, nil
}

// Size returns the size of the mapped file in bytes.
func (m *Mapping) Size() int64 {
	return m.size
}

// Window carves a read-only window out of the mapping.
// The window holds its own reference on the mapping.
func (m *Mapping) Window(offset, length int64) (*Window, error) {
	if offset < 0 || length < 0 || offset+length > m.size {
		return nil, data.ErrInvalid
	}

	m.retain()

	return &Window{
		mapping: m,
		offset:  offset,
		length:  length,
	}, nil
}

// Close releases the caller's reference.
// The map and file handle are released when the last reference drops.
func (m *Mapping) Close() error {
	return m.release()
}

func (m *Mapping) retain() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refs++
}

func (m *Mapping) release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refs <= 0 {
		return data.ErrClosed
	}

	m.refs--
	if m.refs > 0 {
		return nil
	}

	var err error
	if m.buf != nil {
		err = unix.Munmap(m.buf)
		m.buf = nil
	}

	if cerr := m.file.Close(); err == nil {
		err = cerr
	}

	return err
}
