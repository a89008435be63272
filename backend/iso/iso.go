// Package iso implements a read-only backend over ISO9660 disc
// images with SUSP/Rock Ridge extensions. The image is memory-mapped
// and file opens return zero-copy windows over the data extents;
// directory records are decoded lazily and cached per path.
package iso

import (
	"context"
	gopath "path"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mwantia/archivefs"
	"github.com/mwantia/archivefs/data"
	"github.com/mwantia/archivefs/log"
	"github.com/mwantia/archivefs/stream"
)

// maxLinkDepth bounds symlink resolution so cyclic links terminate.
const maxLinkDepth = 40

// defaultCacheSize is the record cache capacity when none is given.
const defaultCacheSize = 1024

var deviceCounter atomic.Int64

// Backend serves one mapped ISO9660 image. The image is immutable,
// so resolved records are shared freely across goroutines.
type Backend struct {
	mu      sync.Mutex
	log     *log.Logger
	mapping *stream.Mapping
	win     *stream.Window
	img     []byte
	root    *record
	cache   *lru.Cache[string, *record]
	device  int64
	closed  bool
}

// Option configures an image backend.
type Option func(*options)

type options struct {
	cacheSize int
	logger    *log.Logger
}

// WithCacheSize sets the capacity of the per-path record cache.
// A size of 0 disables caching entirely.
func WithCacheSize(size int) Option {
	return func(o *options) {
		o.cacheSize = size
	}
}

// WithLogger sets the logger used by the backend.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// OpenImage maps the ISO image at path and locates its primary volume
// descriptor. The file stays mapped until Close.
func OpenImage(path string, opts ...Option) (*Backend, error) {
	o := &options{
		cacheSize: defaultCacheSize,
		logger:    log.Noop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	mapping, err := stream.OpenMapping(path)
	if err != nil {
		return nil, err
	}

	b, err := newBackend(mapping, o)
	if err != nil {
		mapping.Close()
		return nil, err
	}

	return b, nil
}

func newBackend(mapping *stream.Mapping, o *options) (*Backend, error) {
	win, err := mapping.Window(0, mapping.Size())
	if err != nil {
		return nil, err
	}

	img, err := win.Bytes()
	if err != nil {
		win.Close()
		return nil, err
	}

	b := &Backend{
		log:     o.logger.Named("iso9660"),
		mapping: mapping,
		win:     win,
		img:     img,
		device:  deviceCounter.Add(1),
	}

	if o.cacheSize > 0 {
		cache, err := lru.New[string, *record](o.cacheSize)
		if err != nil {
			win.Close()
			return nil, err
		}
		b.cache = cache
	}

	root, err := b.findRoot()
	if err != nil {
		win.Close()
		return nil, err
	}
	b.root = root

	b.log.Debug("Opened image: root extent '%d', size '%d'", root.extent, root.size)

	return b, nil
}

// findRoot scans the volume descriptor sequence for the primary
// volume descriptor and decodes the root directory record embedded
// in it.
func (b *Backend) findRoot() (*record, error) {
	for off := int64(scanStartBlock) * SectorSize; off+SectorSize <= int64(len(b.img)); off += SectorSize {
		if string(b.img[off+1:off+6]) != descMagic {
			return nil, data.Corrupt("bad volume descriptor magic at sector %d", off/SectorSize)
		}

		switch b.img[off] {
		case descTypePVD:
			rec, _, err := b.decodeRecord(off + pvdRootOffset)
			if err != nil {
				return nil, err
			}
			if rec == nil || !rec.isDir {
				return nil, data.Corrupt("primary volume descriptor has no root directory")
			}
			rec.name = "/"
			return rec, nil
		case descTypeEnd:
			return nil, data.Corrupt("descriptor sequence ended without a primary volume descriptor")
		}
	}

	return nil, data.Corrupt("no volume descriptor terminator before image end")
}

func (*Backend) Name() string {
	return "iso9660"
}

func (b *Backend) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return data.ErrClosed
	}
	b.closed = true

	b.img = nil
	b.root = nil
	if b.cache != nil {
		b.cache.Purge()
	}

	err := b.win.Close()
	if cerr := b.mapping.Close(); err == nil {
		err = cerr
	}

	return err
}

func (b *Backend) Open(ctx context.Context, path string, mode data.AccessMode, buffering int) (archivefs.Stream, error) {
	if mode&data.AccessModeWrite != 0 {
		return nil, data.NotSupported(b.Name(), "write open")
	}

	rec, err := b.resolve(path, true)
	if err != nil {
		return nil, err
	}

	if rec.isDir {
		return nil, data.IsADirectory(path)
	}

	win, err := b.mapping.Window(rec.extent*SectorSize, rec.size)
	if err != nil {
		return nil, data.Corrupt("extent [%d,%d) beyond image end", rec.extent*SectorSize, rec.extent*SectorSize+rec.size)
	}

	return win, nil
}

func (b *Backend) Stat(ctx context.Context, path string, followSymlinks bool) (*data.StatRecord, error) {
	rec, err := b.resolve(path, followSymlinks)
	if err != nil {
		return nil, err
	}

	return b.statFromRecord(rec), nil
}

func (b *Backend) Listdir(ctx context.Context, path string) ([]string, error) {
	rec, err := b.resolve(path, true)
	if err != nil {
		return nil, err
	}

	if !rec.isDir {
		return nil, data.NotADirectory(path)
	}

	children, err := b.readChildren(rec)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(children))
	for _, child := range children {
		names = append(names, child.name)
	}

	return names, nil
}

func (b *Backend) Readlink(ctx context.Context, path string) (string, error) {
	rec, err := b.resolve(path, false)
	if err != nil {
		return "", err
	}

	if rec.typ != data.TypeSymlink {
		return "", data.NotASymlink(path)
	}

	return rec.target, nil
}

// resolve walks path from the root, following symlinks in
// intermediate segments and, when followLast is set, in the final
// segment as well.
func (b *Backend) resolve(path string, followLast bool) (*record, error) {
	return b.resolveDepth(path, followLast, 0)
}

func (b *Backend) resolveDepth(path string, followLast bool, depth int) (*record, error) {
	if depth > maxLinkDepth {
		return nil, data.NotFound(path)
	}

	clean := gopath.Clean("/" + strings.TrimPrefix(path, "/"))
	if clean == "/" {
		return b.root, nil
	}

	segments := strings.Split(clean[1:], "/")
	cur := b.root
	curPath := "/"

	for i, segment := range segments {
		if !cur.isDir {
			return nil, data.NotADirectory(curPath)
		}

		childPath := gopath.Join(curPath, segment)

		child, err := b.child(cur, childPath, segment)
		if err != nil {
			return nil, err
		}
		if child == nil {
			return nil, data.NotFound(path)
		}

		last := i == len(segments)-1
		if child.typ == data.TypeSymlink && (!last || followLast) {
			target := child.target
			if !strings.HasPrefix(target, "/") {
				target = gopath.Join(curPath, target)
			}
			if !last {
				target = gopath.Join(target, strings.Join(segments[i+1:], "/"))
			}
			return b.resolveDepth(target, followLast || last, depth+1)
		}

		cur = child
		curPath = childPath
	}

	return cur, nil
}

// child finds the named entry under dir, filling the record cache for
// every sibling decoded along the way.
func (b *Backend) child(dir *record, childPath, name string) (*record, error) {
	if b.cache != nil {
		if rec, ok := b.cache.Get(childPath); ok {
			return rec, nil
		}
	}

	children, err := b.readChildren(dir)
	if err != nil {
		return nil, err
	}

	parent := gopath.Dir(childPath)

	var found *record
	for _, child := range children {
		if b.cache != nil {
			b.cache.Add(gopath.Join(parent, child.name), child)
		}
		if child.name == name {
			found = child
		}
	}

	return found, nil
}

// readChildren decodes the directory records stored in dir's extent,
// skipping the self and parent entries. A zero length byte ends the
// current sector; decoding resumes at the next one.
func (b *Backend) readChildren(dir *record) ([]*record, error) {
	off := dir.extent * SectorSize
	end := off + dir.size

	if off < 0 || end > int64(len(b.img)) {
		return nil, data.Corrupt("directory extent [%d,%d) beyond image end", off, end)
	}

	var children []*record
	for off < end {
		rec, n, err := b.decodeRecord(off)
		if err != nil {
			return nil, err
		}

		if rec == nil {
			off = (off/SectorSize + 1) * SectorSize
			continue
		}
		off += n

		if rec.name == "." || rec.name == ".." {
			continue
		}

		children = append(children, rec)
	}

	return children, nil
}

func (b *Backend) statFromRecord(rec *record) *data.StatRecord {
	st := &data.StatRecord{
		Type:          rec.typ,
		Size:          rec.size,
		Permissions:   rec.perm,
		UserID:        rec.uid,
		GroupID:       rec.gid,
		DeviceID:      b.device,
		FileID:        rec.serial,
		HardLinkCount: rec.nlink,
		AccessTime:    rec.accessed,
		ModifyTime:    rec.modified,
		CreateTime:    rec.created,
		StatusTime:    rec.status,
		Target:        rec.target,
	}

	if st.ModifyTime.IsZero() {
		st.ModifyTime = rec.created
	}

	return st
}
