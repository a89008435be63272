package archivefs

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/mwantia/archivefs/data"
)

// CollisionPolicy controls what happens when the Creator's target
// path already exists.
type CollisionPolicy int

const (
	// CollisionIgnore proceeds; the backend's Create decides the outcome.
	CollisionIgnore CollisionPolicy = iota
	// CollisionRaise fails with AlreadyExists.
	CollisionRaise
	// CollisionDelete removes the existing entry before committing.
	CollisionDelete
)

// ParentPolicy controls what happens when the Creator's parent
// directory is missing.
type ParentPolicy int

const (
	// ParentIgnore proceeds regardless.
	ParentIgnore ParentPolicy = iota
	// ParentRaise fails with NotFound.
	ParentRaise
	// ParentCreate creates the missing directory chain.
	ParentCreate
)

// Creator is a staged in-memory write buffer that commits to the
// backend atomically on Close. Bytes written before Close are never
// visible to the backend. A Creator commits exactly once; a second
// Close fails with ErrClosed without committing again.
type Creator struct {
	ctx       context.Context
	acc       *Accessor
	path      string
	collision CollisionPolicy
	parent    ParentPolicy
	buf       []byte
	pos       int64
	closed    bool
}

type CreatorOption func(*Creator) error

// WithCollisionPolicy sets the target-collision policy.
func WithCollisionPolicy(p CollisionPolicy) CreatorOption {
	return func(c *Creator) error {
		c.collision = p
		return nil
	}
}

// WithParentPolicy sets the missing-parent policy.
func WithParentPolicy(p ParentPolicy) CreatorOption {
	return func(c *Creator) error {
		c.parent = p
		return nil
	}
}

// WithInitial seeds the staging buffer and places the cursor after it.
func WithInitial(initial []byte) CreatorOption {
	return func(c *Creator) error {
		c.buf = bytes.Clone(initial)
		c.pos = int64(len(initial))
		return nil
	}
}

// NewCreator stages a write to path. Both policies are validated now
// and re-validated on Close, since backend state may change in
// between.
func (a *Accessor) NewCreator(ctx context.Context, path string, opts ...CreatorOption) (*Creator, error) {
	if _, err := a.createBackend(); err != nil {
		return nil, err
	}

	c := &Creator{
		ctx:       ctx,
		acc:       a,
		path:      Normalize(path),
		collision: CollisionRaise,
		parent:    ParentRaise,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if err := c.validate(false); err != nil {
		return nil, err
	}

	return c, nil
}

// validate applies the parent and collision policies. When commit is
// set, CollisionDelete removes the existing target.
func (c *Creator) validate(commit bool) error {
	switch c.parent {
	case ParentRaise:
		if err := c.acc.checkParent(c.ctx, c.path); err != nil {
			return err
		}
	case ParentCreate:
		if err := c.acc.MkdirAll(c.ctx, c.acc.Path(c.path).Parent().String(), 0o755); err != nil {
			return err
		}
	}

	_, err := c.acc.backend.Stat(c.ctx, c.path, false)
	exists := err == nil
	if err != nil && !errors.Is(err, data.ErrNotExist) {
		return err
	}

	if exists {
		switch c.collision {
		case CollisionRaise:
			return data.AlreadyExists(c.path)
		case CollisionDelete:
			if commit {
				if err := c.acc.Delete(c.ctx, c.path); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// Write appends to the staging buffer at the cursor, growing it as
// needed.
func (c *Creator) Write(p []byte) (int, error) {
	if c.closed {
		return 0, data.ErrClosed
	}

	end := c.pos + int64(len(p))
	if end > int64(len(c.buf)) {
		grown := make([]byte, end)
		copy(grown, c.buf)
		c.buf = grown
	}

	copy(c.buf[c.pos:], p)
	c.pos = end

	return len(p), nil
}

// Read reads staged bytes at the cursor.
func (c *Creator) Read(p []byte) (int, error) {
	if c.closed {
		return 0, data.ErrClosed
	}

	if c.pos >= int64(len(c.buf)) {
		return 0, io.EOF
	}

	n := copy(p, c.buf[c.pos:])
	c.pos += int64(n)

	return n, nil
}

// Seek moves the staging cursor.
func (c *Creator) Seek(offset int64, whence int) (int64, error) {
	if c.closed {
		return 0, data.ErrClosed
	}

	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = c.pos + offset
	case io.SeekEnd:
		pos = int64(len(c.buf)) + offset
	default:
		return 0, data.ErrInvalid
	}

	if pos < 0 {
		return 0, data.ErrInvalid
	}

	c.pos = pos
	return pos, nil
}

func (c *Creator) CanRead() bool { return true }

func (c *Creator) CanWrite() bool { return true }

// Size returns the current staged size in bytes.
func (c *Creator) Size() int64 {
	return int64(len(c.buf))
}

// Close re-validates both policies, finalizes the size, rewinds the
// buffer, and commits it through the backend's Create. The Creator is
// invalid afterwards.
func (c *Creator) Close() error {
	if c.closed {
		return data.ErrClosed
	}
	c.closed = true

	if err := c.validate(true); err != nil {
		return err
	}

	stat := data.NewFileStat(int64(len(c.buf)), 0o644)

	return c.acc.Create(c.ctx, c.path, stat, bytes.NewReader(c.buf))
}
