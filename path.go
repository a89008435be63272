package archivefs

import (
	"context"
	gopath "path"
	"strings"

	"github.com/mwantia/archivefs/data"
)

// VirtualPath is an immutable, normalized, slash-separated absolute
// path bound to one Accessor instance. It is a pure value: operations
// return new paths and never mutate the receiver.
type VirtualPath struct {
	acc *Accessor
	p   string
}

// Path builds a VirtualPath from the given parts, normalized to an
// absolute slash path. No segment is ever empty except the root.
func (a *Accessor) Path(parts ...string) VirtualPath {
	return VirtualPath{
		acc: a,
		p:   Normalize(strings.Join(parts, "/")),
	}
}

// Normalize cleans a slash path into its canonical absolute form.
func Normalize(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	return gopath.Clean(p)
}

// String returns the path as a string.
func (vp VirtualPath) String() string {
	return vp.p
}

// Name returns the final path segment ("/" for the root).
func (vp VirtualPath) Name() string {
	if vp.IsRoot() {
		return "/"
	}

	return gopath.Base(vp.p)
}

// Parent returns the parent path; the root is its own parent.
func (vp VirtualPath) Parent() VirtualPath {
	return VirtualPath{
		acc: vp.acc,
		p:   gopath.Dir(vp.p),
	}
}

// Join returns a path extended by the given segments.
func (vp VirtualPath) Join(parts ...string) VirtualPath {
	return VirtualPath{
		acc: vp.acc,
		p:   Normalize(vp.p + "/" + strings.Join(parts, "/")),
	}
}

// Segments returns the path split into its segments. The root path
// yields an empty slice.
func (vp VirtualPath) Segments() []string {
	if vp.IsRoot() {
		return nil
	}

	return strings.Split(strings.TrimPrefix(vp.p, "/"), "/")
}

// IsRoot returns true for the accessor's root path.
func (vp VirtualPath) IsRoot() bool {
	return vp.p == "/"
}

// Accessor returns the accessor this path is bound to.
func (vp VirtualPath) Accessor() *Accessor {
	return vp.acc
}

// SameAccessor returns whether both paths are bound to the same
// Accessor instance. Paths from different accessors are never
// comparable even when their strings match.
func (vp VirtualPath) SameAccessor(other VirtualPath) bool {
	return vp.acc != nil && vp.acc == other.acc
}

// Delegating operations. Each forwards to the bound accessor.

func (vp VirtualPath) Stat(ctx context.Context) (*data.StatRecord, error) {
	return vp.acc.Stat(ctx, vp.p)
}

func (vp VirtualPath) Lstat(ctx context.Context) (*data.StatRecord, error) {
	return vp.acc.Lstat(ctx, vp.p)
}

func (vp VirtualPath) Exists(ctx context.Context) bool {
	_, err := vp.acc.Stat(ctx, vp.p)
	return err == nil
}

func (vp VirtualPath) Open(ctx context.Context, mode data.AccessMode) (Stream, error) {
	return vp.acc.Open(ctx, vp.p, mode, -1)
}

func (vp VirtualPath) Listdir(ctx context.Context) ([]string, error) {
	return vp.acc.Listdir(ctx, vp.p)
}

func (vp VirtualPath) Scandir(ctx context.Context) ([]VirtualPath, error) {
	return vp.acc.Scandir(ctx, vp.p)
}

func (vp VirtualPath) Readlink(ctx context.Context) (string, error) {
	return vp.acc.Readlink(ctx, vp.p)
}
