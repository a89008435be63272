// Package archivefs presents archives and disc images (ZIP, TAR,
// ISO9660/Rock-Ridge) through one uniform hierarchical-path interface.
// A caller holds a VirtualPath bound to an Accessor; path operations
// delegate to the accessor, which drives one container backend.
package archivefs

import (
	"context"
	"io"

	"github.com/mwantia/archivefs/data"
	"github.com/mwantia/archivefs/log"
)

// Backend is the capability contract every container format
// implements. Paths are normalized absolute slash paths.
type Backend interface {
	// Name returns the identifier name defined for this backend.
	Name() string

	// Open opens the entry for reading and returns a byte stream.
	// Write opens are handled by the Accessor through a Creator.
	Open(ctx context.Context, path string, mode data.AccessMode, buffering int) (Stream, error)

	// Stat returns metadata for the entry at path. When followSymlinks
	// is false only the parent chain is resolved and the final segment
	// is reported un-followed.
	Stat(ctx context.Context, path string, followSymlinks bool) (*data.StatRecord, error)

	// Listdir returns the names of the entries in the directory.
	Listdir(ctx context.Context, path string) ([]string, error)

	// Readlink returns the target of the symbolic link at path.
	// Fails with ErrNotSymlink for non-symlink entries.
	Readlink(ctx context.Context, path string) (string, error)

	// Close releases the container handle and any mapped resources.
	Close(ctx context.Context) error
}

// CreateBackend is implemented by backends that support entry creation.
type CreateBackend interface {
	Backend

	// Create writes a new entry with the given metadata. For regular
	// files content supplies the bytes; stat.Size must match.
	Create(ctx context.Context, path string, stat *data.StatRecord, content io.Reader) error
}

// DeleteBackend is implemented by backends that support entry removal.
type DeleteBackend interface {
	Backend

	Delete(ctx context.Context, path string) error
}

// MoveBackend is implemented by backends that support renames.
type MoveBackend interface {
	Backend

	Move(ctx context.Context, oldPath, newPath string) error
}

// ChmodBackend is implemented by backends that support permission
// changes.
type ChmodBackend interface {
	Backend

	Chmod(ctx context.Context, path string, perm uint32, followSymlinks bool) error
}

// Accessor binds one backend to the shared derived operations and the
// VirtualPath factory. Two paths are comparable only when bound to the
// same Accessor instance.
type Accessor struct {
	backend Backend
	log     *log.Logger
}

// NewAccessor wraps a backend with the shared operation layer.
func NewAccessor(backend Backend, opts ...Option) (*Accessor, error) {
	options := newDefaultOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	return &Accessor{
		backend: backend,
		log:     options.Logger.Named(backend.Name()),
	}, nil
}

// Backend returns the wrapped backend.
func (a *Accessor) Backend() Backend {
	return a.backend
}

// Close releases the backend's resources.
func (a *Accessor) Close(ctx context.Context) error {
	a.log.Debug("Close: closing backend")
	return a.backend.Close(ctx)
}

// Capability lookups. Unimplemented operations surface as
// ErrNotSupported instead of a crash.

func (a *Accessor) createBackend() (CreateBackend, error) {
	if cb, ok := a.backend.(CreateBackend); ok {
		return cb, nil
	}
	return nil, data.NotSupported(a.backend.Name(), "create")
}

func (a *Accessor) deleteBackend() (DeleteBackend, error) {
	if db, ok := a.backend.(DeleteBackend); ok {
		return db, nil
	}
	return nil, data.NotSupported(a.backend.Name(), "delete")
}

func (a *Accessor) moveBackend() (MoveBackend, error) {
	if mb, ok := a.backend.(MoveBackend); ok {
		return mb, nil
	}
	return nil, data.NotSupported(a.backend.Name(), "move")
}

func (a *Accessor) chmodBackend() (ChmodBackend, error) {
	if cb, ok := a.backend.(ChmodBackend); ok {
		return cb, nil
	}
	return nil, data.NotSupported(a.backend.Name(), "chmod")
}
