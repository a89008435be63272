package stream

import (
	"io"

	"github.com/mwantia/archivefs/data"
)

// Window is a seekable, read-only view over a byte range of a shared
// Mapping. Invariant: 0 <= pos; reads never cross the declared window.
// Windows are not safe for concurrent use.
type Window struct {
	mapping *Mapping
	offset  int64
	length  int64
	pos     int64
	closed  bool
}

// Sub carves a child window out of this one. Offsets compose: the
// child covers mapping bytes [w.offset+offset, w.offset+offset+length).
// The child must fit inside the parent and shares the same mapping.
func (w *Window) Sub(offset, length int64) (*Window, error) {
	if w.closed {
		return nil, data.ErrClosed
	}

	if offset < 0 || length < 0 || offset+length > w.length {
		return nil, data.ErrInvalid
	}

	w.mapping.retain()

	return &Window{
		mapping: w.mapping,
		offset:  w.offset + offset,
		length:  length,
	}, nil
}

// Size returns the declared window length in bytes.
func (w *Window) Size() int64 {
	return w.length
}

// Tell returns the current cursor position.
func (w *Window) Tell() int64 {
	return w.pos
}

// Read reads up to len(p) bytes at the cursor and advances it.
// Returns io.EOF once the cursor reaches the end of the window.
func (w *Window) Read(p []byte) (int, error) {
	if w.closed {
		return 0, data.ErrClosed
	}

	if w.pos >= w.length {
		return 0, io.EOF
	}

	n := copy(p, w.mapping.buf[w.offset+w.pos:w.offset+w.length])
	w.pos += int64(n)

	return n, nil
}

// Peek returns up to n bytes at the cursor without advancing it.
// The returned slice aliases the underlying map and stays valid only
// while the mapping is alive.
func (w *Window) Peek(n int64) ([]byte, error) {
	if w.closed {
		return nil, data.ErrClosed
	}

	if w.pos >= w.length {
		return nil, nil
	}

	if n < 0 || w.pos+n > w.length {
		n = w.length - w.pos
	}

	o := w.offset + w.pos
	return w.mapping.buf[o : o+n], nil
}

// Bytes returns the remaining unread bytes without advancing the
// cursor. Equivalent to Peek(-1).
func (w *Window) Bytes() ([]byte, error) {
	return w.Peek(-1)
}

// ReadAt reads len(p) bytes at an absolute window offset without
// moving the cursor. Short reads at the window end return io.EOF.
func (w *Window) ReadAt(p []byte, off int64) (int, error) {
	if w.closed {
		return 0, data.ErrClosed
	}

	if off < 0 {
		return 0, data.ErrInvalid
	}

	if off >= w.length {
		return 0, io.EOF
	}

	n := copy(p, w.mapping.buf[w.offset+off:w.offset+w.length])
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

// Write always fails; windows are unconditionally read-only.
func (w *Window) Write(p []byte) (int, error) {
	return 0, data.ErrReadOnly
}

// CanRead returns true; windows are always readable.
func (w *Window) CanRead() bool { return true }

// CanWrite returns false; windows are unconditionally read-only.
func (w *Window) CanWrite() bool { return false }

// Seek sets the cursor for the next Read. The resulting position is
// clamped to zero; seeking past the window end is allowed and makes
// the next Read return io.EOF.
func (w *Window) Seek(offset int64, whence int) (int64, error) {
	if w.closed {
		return 0, data.ErrClosed
	}

	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = w.pos + offset
	case io.SeekEnd:
		pos = w.length + offset
	default:
		return 0, data.ErrInvalid
	}

	if pos < 0 {
		pos = 0
	}

	w.pos = pos
	return pos, nil
}

// Close releases the window's reference on the shared mapping.
func (w *Window) Close() error {
	if w.closed {
		return data.ErrClosed
	}

	w.closed = true
	return w.mapping.release()
}
