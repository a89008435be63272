package archive

import (
	"archive/zip"
	"context"
	"io"
	"io/fs"
	"os"
	gopath "path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mwantia/archivefs"
	"github.com/mwantia/archivefs/backend/index"
	"github.com/mwantia/archivefs/data"
	"github.com/mwantia/archivefs/log"
	"github.com/mwantia/archivefs/stream"
)

var deviceCounter atomic.Int64

// ZipBackend projects a ZIP archive into a path index. Reads stream
// through the archive library; writes rewrite the container in place
// and reproject it.
type ZipBackend struct {
	mu      sync.RWMutex
	log     *log.Logger
	path    string
	mapping *stream.Mapping
	win     *stream.Window
	reader  *zip.Reader
	paths   *index.Index
	members map[string]*zip.File // index path -> member
	device  int64
}

// OpenZip opens the ZIP archive at path and indexes its members.
func OpenZip(path string, opts ...Option) (*ZipBackend, error) {
	o := newOptions(opts)

	b := &ZipBackend{
		log:    o.logger.Named("zip"),
		path:   path,
		device: deviceCounter.Add(1),
	}

	if err := b.load(); err != nil {
		return nil, err
	}

	b.log.Debug("Opened archive: '%d' members", len(b.members))

	return b, nil
}

// load maps the container and rebuilds the member index. The caller
// holds the write lock when reloading.
func (b *ZipBackend) load() error {
	mapping, err := stream.OpenMapping(b.path)
	if err != nil {
		return err
	}

	win, err := mapping.Window(0, mapping.Size())
	if err != nil {
		mapping.Close()
		return err
	}

	reader, err := zip.NewReader(win, mapping.Size())
	if err != nil {
		win.Close()
		mapping.Close()
		return data.Corrupt("zip: %v", err)
	}

	paths := index.New()
	members := make(map[string]*zip.File, len(reader.File))

	for i, f := range reader.File {
		p := memberPath(f.Name)
		if p == "/" {
			continue
		}

		mode := f.Mode()
		st := statFromMode(mode, int64(f.UncompressedSize64))
		st.ModifyTime = f.Modified
		st.StatusTime = f.Modified
		st.DeviceID = b.device
		st.FileID = int64(i) + 2

		if mode&fs.ModeSymlink != 0 {
			target, err := readMember(f)
			if err != nil {
				win.Close()
				mapping.Close()
				return err
			}
			st.Target = string(target)
		}

		paths.Put(p, &index.Entry{Stat: st, RawName: f.Name})
		members[p] = f
	}

	if b.win != nil {
		b.win.Close()
		b.mapping.Close()
	}

	b.mapping = mapping
	b.win = win
	b.reader = reader
	b.paths = paths
	b.members = members

	return nil
}

func readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, data.Corrupt("zip member %q: %v", f.Name, err)
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

func (*ZipBackend) Name() string {
	return "zip"
}

func (b *ZipBackend) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.win == nil {
		return data.ErrClosed
	}

	err := b.win.Close()
	if cerr := b.mapping.Close(); err == nil {
		err = cerr
	}
	b.win = nil
	b.mapping = nil
	b.reader = nil
	b.members = nil

	return err
}

func (b *ZipBackend) Open(ctx context.Context, path string, mode data.AccessMode, buffering int) (archivefs.Stream, error) {
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

	f, ok := b.members[resolved]
	if !ok {
		return nil, data.NotFound(path)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, data.Corrupt("zip member %q: %v", f.Name, err)
	}

	return archivefs.NewReadStream(rc), nil
}

func (b *ZipBackend) Stat(ctx context.Context, path string, followSymlinks bool) (*data.StatRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, entry, err := b.paths.Resolve(path, followSymlinks)
	if err != nil {
		return nil, err
	}

	return entry.Stat.Clone(), nil
}

func (b *ZipBackend) Listdir(ctx context.Context, path string) ([]string, error) {
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

func (b *ZipBackend) Readlink(ctx context.Context, path string) (string, error) {
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

// Create rewrites the container with the new member appended. The
// existing member at the same path, if any, is dropped during the
// rewrite.
func (b *ZipBackend) Create(ctx context.Context, path string, stat *data.StatRecord, content io.Reader) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := memberPath(path)
	if p == "/" {
		return data.AlreadyExists(path)
	}

	if err := b.checkParent(p); err != nil {
		return err
	}

	return b.rewrite(func(zw *zip.Writer) error {
		for _, f := range b.reader.File {
			if memberPath(f.Name) == p {
				continue
			}
			if err := copyMember(zw, f); err != nil {
				return err
			}
		}

		return writeMember(zw, p, stat, content)
	})
}

// Delete rewrites the container without the member. Directories must
// be empty; index-synthesized directories have no member to drop and
// are refused the same way.
func (b *ZipBackend) Delete(ctx context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	resolved, entry, err := b.paths.Resolve(path, false)
	if err != nil {
		return err
	}

	if entry.Stat.IsDir() && len(b.paths.Children(resolved)) > 0 {
		return data.ErrDirectoryNotEmpty
	}

	return b.rewrite(func(zw *zip.Writer) error {
		for _, f := range b.reader.File {
			if memberPath(f.Name) == resolved {
				continue
			}
			if err := copyMember(zw, f); err != nil {
				return err
			}
		}

		return nil
	})
}

func (b *ZipBackend) checkParent(p string) error {
	parent := gopath.Dir(p)
	if parent == "/" {
		return nil
	}

	_, entry, err := b.paths.Resolve(parent, true)
	if err != nil {
		return err
	}

	if !entry.Stat.IsDir() {
		return data.NotADirectory(parent)
	}

	return nil
}

// rewrite streams a replacement container to a sibling temp file,
// renames it over the original and reprojects the index.
func (b *ZipBackend) rewrite(fill func(*zip.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".zip-rewrite-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	zw := zip.NewWriter(tmp)

	if err := fill(zw); err != nil {
		zw.Close()
		tmp.Close()
		return err
	}

	if err := zw.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return err
	}

	return b.load()
}

func copyMember(zw *zip.Writer, f *zip.File) error {
	if err := zw.Copy(f); err != nil {
		return data.Corrupt("zip member %q: %v", f.Name, err)
	}

	return nil
}

func writeMember(zw *zip.Writer, p string, stat *data.StatRecord, content io.Reader) error {
	modified := stat.ModifyTime
	if modified.IsZero() {
		modified = time.Now()
	}

	hdr := &zip.FileHeader{
		Name:     strings.TrimPrefix(p, "/"),
		Method:   zip.Deflate,
		Modified: modified,
	}

	switch stat.Type {
	case data.TypeDir:
		hdr.Name += "/"
		hdr.Method = zip.Store
		hdr.SetMode(fs.ModeDir | fs.FileMode(stat.Permissions))
	case data.TypeSymlink:
		hdr.Method = zip.Store
		hdr.SetMode(fs.ModeSymlink | fs.FileMode(stat.Permissions))
	default:
		hdr.SetMode(fs.FileMode(stat.Permissions))
	}

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}

	switch stat.Type {
	case data.TypeDir:
		return nil
	case data.TypeSymlink:
		_, err = io.WriteString(w, stat.Target)
		return err
	default:
		if content == nil {
			return nil
		}
		_, err = io.Copy(w, content)
		return err
	}
}
