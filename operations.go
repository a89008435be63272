package archivefs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/mwantia/archivefs/data"
)

// Pass-through operations with path normalization, plus the shared
// derived operations every backend inherits.

// Open opens the entry at path. Read mode delegates to the backend;
// write mode returns a Creator staged against the backend's Create,
// with overwrite-on-close semantics.
func (a *Accessor) Open(ctx context.Context, path string, mode data.AccessMode, buffering int) (Stream, error) {
	path = Normalize(path)

	if mode&data.AccessModeWrite != 0 {
		a.log.Debug("Open: staging write for %s", path)
		return a.NewCreator(ctx, path,
			WithCollisionPolicy(CollisionDelete),
			WithParentPolicy(ParentRaise))
	}

	a.log.Debug("Open: reading %s", path)
	return a.backend.Open(ctx, path, mode, buffering)
}

// Stat returns metadata for path, following symlinks.
func (a *Accessor) Stat(ctx context.Context, path string) (*data.StatRecord, error) {
	return a.backend.Stat(ctx, Normalize(path), true)
}

// Lstat returns metadata for path without following a final symlink.
func (a *Accessor) Lstat(ctx context.Context, path string) (*data.StatRecord, error) {
	return a.backend.Stat(ctx, Normalize(path), false)
}

// Listdir returns the names of the entries in the directory at path.
func (a *Accessor) Listdir(ctx context.Context, path string) ([]string, error) {
	return a.backend.Listdir(ctx, Normalize(path))
}

// Scandir returns the directory entries as paths bound to this
// accessor.
func (a *Accessor) Scandir(ctx context.Context, path string) ([]VirtualPath, error) {
	base := a.Path(path)

	names, err := a.backend.Listdir(ctx, base.String())
	if err != nil {
		return nil, err
	}

	paths := make([]VirtualPath, len(names))
	for i, name := range names {
		paths[i] = base.Join(name)
	}

	return paths, nil
}

// Readlink returns the target of the symbolic link at path.
func (a *Accessor) Readlink(ctx context.Context, path string) (string, error) {
	return a.backend.Readlink(ctx, Normalize(path))
}

// Create writes a new entry through the backend's create capability.
func (a *Accessor) Create(ctx context.Context, path string, stat *data.StatRecord, content io.Reader) error {
	cb, err := a.createBackend()
	if err != nil {
		return err
	}

	path = Normalize(path)
	a.log.Debug("Create: %s (%s, %d bytes)", path, stat.Type, stat.Size)

	return cb.Create(ctx, path, stat, content)
}

// Delete removes the entry through the backend's delete capability.
func (a *Accessor) Delete(ctx context.Context, path string) error {
	db, err := a.deleteBackend()
	if err != nil {
		return err
	}

	path = Normalize(path)
	a.log.Debug("Delete: %s", path)

	return db.Delete(ctx, path)
}

// Move renames an entry through the backend's move capability.
func (a *Accessor) Move(ctx context.Context, oldPath, newPath string) error {
	mb, err := a.moveBackend()
	if err != nil {
		return err
	}

	oldPath = Normalize(oldPath)
	newPath = Normalize(newPath)
	a.log.Debug("Move: %s -> %s", oldPath, newPath)

	return mb.Move(ctx, oldPath, newPath)
}

// Chmod changes the permission bits of the entry at path.
func (a *Accessor) Chmod(ctx context.Context, path string, perm uint32) error {
	cb, err := a.chmodBackend()
	if err != nil {
		return err
	}

	return cb.Chmod(ctx, Normalize(path), perm, true)
}

// Lchmod changes the permission bits without following a final
// symlink.
func (a *Accessor) Lchmod(ctx context.Context, path string, perm uint32) error {
	cb, err := a.chmodBackend()
	if err != nil {
		return err
	}

	return cb.Chmod(ctx, Normalize(path), perm, false)
}

// checkParent verifies the parent directory of path exists and is a
// directory.
func (a *Accessor) checkParent(ctx context.Context, path string) error {
	parent := a.Path(path).Parent()

	stat, err := a.backend.Stat(ctx, parent.String(), true)
	if err != nil {
		if errors.Is(err, data.ErrNotExist) {
			return data.NotFound(parent.String())
		}
		return err
	}

	if !stat.IsDir() {
		return data.NotADirectory(parent.String())
	}

	return nil
}

// Touch creates an empty file at path. An existing entry fails with
// AlreadyExists unless existOk is set; a missing parent fails with
// NotFound.
func (a *Accessor) Touch(ctx context.Context, path string, perm uint32, existOk bool) error {
	path = Normalize(path)

	if _, err := a.backend.Stat(ctx, path, true); err == nil {
		if existOk {
			return nil
		}
		return data.AlreadyExists(path)
	}

	if err := a.checkParent(ctx, path); err != nil {
		return err
	}

	return a.Create(ctx, path, data.NewFileStat(0, perm), nil)
}

// Mkdir creates a directory at path. Fails with AlreadyExists if an
// entry is present and with NotFound if the parent is missing.
func (a *Accessor) Mkdir(ctx context.Context, path string, perm uint32) error {
	path = Normalize(path)

	if _, err := a.backend.Stat(ctx, path, true); err == nil {
		return data.AlreadyExists(path)
	}

	if err := a.checkParent(ctx, path); err != nil {
		return err
	}

	return a.Create(ctx, path, data.NewDirStat(perm), nil)
}

// MkdirAll creates the directory chain leading to path. Existing
// directories are left alone.
func (a *Accessor) MkdirAll(ctx context.Context, path string, perm uint32) error {
	vp := a.Path(path)

	chain := []VirtualPath{}
	for cur := vp; !cur.IsRoot(); cur = cur.Parent() {
		chain = append(chain, cur)
	}

	// Walk top-down
	for i := len(chain) - 1; i >= 0; i-- {
		cur := chain[i]

		stat, err := a.backend.Stat(ctx, cur.String(), true)
		if err == nil {
			if !stat.IsDir() {
				return data.NotADirectory(cur.String())
			}
			continue
		}

		if !errors.Is(err, data.ErrNotExist) {
			return err
		}

		if err := a.Create(ctx, cur.String(), data.NewDirStat(perm), nil); err != nil {
			return err
		}
	}

	return nil
}

// Symlink creates a symbolic link at path pointing to target.
func (a *Accessor) Symlink(ctx context.Context, target, path string) error {
	path = Normalize(path)

	if _, err := a.backend.Stat(ctx, path, false); err == nil {
		return data.AlreadyExists(path)
	}

	if err := a.checkParent(ctx, path); err != nil {
		return err
	}

	return a.Create(ctx, path, data.NewSymlinkStat(target), nil)
}

// Unlink removes the file or symlink at path. Directories fail with
// IsADirectory.
func (a *Accessor) Unlink(ctx context.Context, path string) error {
	path = Normalize(path)

	stat, err := a.backend.Stat(ctx, path, false)
	if err != nil {
		return err
	}

	if stat.IsDir() {
		return data.IsADirectory(path)
	}

	return a.Delete(ctx, path)
}

// Rmdir removes the empty directory at path. The root directory is
// never removable.
func (a *Accessor) Rmdir(ctx context.Context, path string) error {
	path = Normalize(path)

	if path == "/" {
		return fmt.Errorf("%w: %s", data.ErrInvalid, path)
	}

	stat, err := a.backend.Stat(ctx, path, true)
	if err != nil {
		return err
	}

	if !stat.IsDir() {
		return data.NotADirectory(path)
	}

	names, err := a.backend.Listdir(ctx, path)
	if err != nil {
		return err
	}
	if len(names) > 0 {
		return data.ErrDirectoryNotEmpty
	}

	return a.Delete(ctx, path)
}

// Rename moves oldPath to newPath, failing with AlreadyExists when the
// destination is present.
func (a *Accessor) Rename(ctx context.Context, oldPath, newPath string) error {
	newPath = Normalize(newPath)

	if _, err := a.backend.Stat(ctx, newPath, false); err == nil {
		return data.AlreadyExists(newPath)
	}

	if err := a.checkParent(ctx, newPath); err != nil {
		return err
	}

	return a.Move(ctx, oldPath, newPath)
}

// Replace moves oldPath to newPath, clobbering an existing
// destination.
func (a *Accessor) Replace(ctx context.Context, oldPath, newPath string) error {
	newPath = Normalize(newPath)

	if _, err := a.backend.Stat(ctx, newPath, false); err == nil {
		if err := a.Delete(ctx, newPath); err != nil {
			return err
		}
	}

	if err := a.checkParent(ctx, newPath); err != nil {
		return err
	}

	return a.Move(ctx, oldPath, newPath)
}
