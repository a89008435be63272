package data

import (
	"errors"
	"fmt"
)

// Standard errors that backend implementations should use.
var (
	// Path operation errors, one per POSIX-style condition
	ErrNotExist     = errors.New("archivefs: no such file or directory")
	ErrExist        = errors.New("archivefs: file already exists")
	ErrNotDirectory = errors.New("archivefs: not a directory")
	ErrIsDirectory  = errors.New("archivefs: is a directory")
	ErrNotSymlink   = errors.New("archivefs: not a symlink")
	ErrPermission   = errors.New("archivefs: permission denied")

	// Capability errors
	ErrNotSupported = errors.New("archivefs: operation not supported")
	ErrReadOnly     = errors.New("archivefs: read-only container")

	// Structural corruption inside a container. Fatal: the decoder
	// never guesses or repairs.
	ErrCorrupt = errors.New("archivefs: corrupt container data")

	// I/O errors
	ErrClosed            = errors.New("archivefs: already closed")
	ErrInvalid           = errors.New("archivefs: invalid argument")
	ErrDirectoryNotEmpty = errors.New("archivefs: directory not empty")
)

// NotFound reports that no entry exists at path.
func NotFound(path string) error {
	return fmt.Errorf("%w: %s", ErrNotExist, path)
}

// AlreadyExists reports that an entry already exists at path.
func AlreadyExists(path string) error {
	return fmt.Errorf("%w: %s", ErrExist, path)
}

// NotADirectory reports that the entry at path is not a directory.
func NotADirectory(path string) error {
	return fmt.Errorf("%w: %s", ErrNotDirectory, path)
}

// IsADirectory reports that the entry at path is a directory.
func IsADirectory(path string) error {
	return fmt.Errorf("%w: %s", ErrIsDirectory, path)
}

// NotASymlink reports that the entry at path is not a symbolic link.
func NotASymlink(path string) error {
	return fmt.Errorf("%w: %s", ErrNotSymlink, path)
}

// PermissionDenied reports that the operation on path is not permitted.
func PermissionDenied(path string) error {
	return fmt.Errorf("%w: %s", ErrPermission, path)
}

// NotSupported reports that the backend does not implement op.
func NotSupported(backend, op string) error {
	return fmt.Errorf("%w: %s does not implement %s", ErrNotSupported, backend, op)
}

// Corrupt reports a structural decode failure inside a container.
func Corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}
