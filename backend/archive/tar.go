package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	gopath "path"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/mwantia/archivefs"
	"github.com/mwantia/archivefs/backend/index"
	"github.com/mwantia/archivefs/data"
	"github.com/mwantia/archivefs/log"
	"github.com/mwantia/archivefs/stream"
)

const tarBlockSize = 512

// maxHardLinkHops bounds hard-link chains so cycles terminate.
const maxHardLinkHops = 40

// span locates member content inside an uncompressed container.
type span struct {
	offset int64
	size   int64
}

// TarBackend projects a TAR archive into a path index. Plain
// containers serve member content as zero-copy windows over the
// mapping; gzip-compressed containers re-stream on every open and
// are read-only.
type TarBackend struct {
	mu         sync.RWMutex
	log        *log.Logger
	path       string
	mapping    *stream.Mapping
	win        *stream.Window
	paths      *index.Index
	spans      map[string]span
	compressed bool
	appendOff  int64
	device     int64
}

// OpenTar opens the TAR archive at path and indexes its members.
// Gzip compression is detected from the container magic, so .tar.gz
// and .tgz files need no separate entry point.
func OpenTar(path string, opts ...Option) (*TarBackend, error) {
	o := newOptions(opts)

	b := &TarBackend{
		log:    o.logger.Named("tar"),
		path:   path,
		device: deviceCounter.Add(1),
	}

	if err := b.load(); err != nil {
		return nil, err
	}

	b.log.Debug("Opened archive: '%d' members, compressed '%t'", b.paths.Len()-1, b.compressed)

	return b, nil
}

// countingReader tracks the absolute container offset, which after a
// header read is exactly where the member content begins.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (b *TarBackend) load() error {
	mapping, err := stream.OpenMapping(b.path)
	if err != nil {
		return err
	}

	win, err := mapping.Window(0, mapping.Size())
	if err != nil {
		mapping.Close()
		return err
	}

	img, err := win.Bytes()
	if err != nil {
		win.Close()
		mapping.Close()
		return err
	}

	compressed := len(img) >= 2 && img[0] == 0x1f && img[1] == 0x8b

	var reader io.Reader
	counter := &countingReader{r: bytes.NewReader(img)}

	if compressed {
		gz, err := gzip.NewReader(bytes.NewReader(img))
		if err != nil {
			win.Close()
			mapping.Close()
			return data.Corrupt("tar: %v", err)
		}
		defer gz.Close()
		reader = gz
	} else {
		reader = counter
	}

	paths := index.New()
	spans := make(map[string]span)

	var appendOff int64
	var fileID int64 = 2

	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			win.Close()
			mapping.Close()
			return data.Corrupt("tar: %v", err)
		}

		p := memberPath(hdr.Name)
		if p == "/" {
			continue
		}

		st := statFromMode(hdr.FileInfo().Mode(), hdr.Size)
		if hdr.Typeflag == tar.TypeLink {
			st.Type = data.TypeLink
			st.Permissions = uint32(hdr.Mode) & 0o7777
		}
		st.Target = hdr.Linkname
		st.UserID = int64(hdr.Uid)
		st.GroupID = int64(hdr.Gid)
		st.User = hdr.Uname
		st.Group = hdr.Gname
		st.ModifyTime = hdr.ModTime
		st.AccessTime = hdr.AccessTime
		st.StatusTime = hdr.ChangeTime
		st.DeviceID = b.device
		st.FileID = fileID
		fileID++

		paths.Put(p, &index.Entry{Stat: st, RawName: hdr.Name})

		if !compressed {
			spans[p] = span{offset: counter.n, size: hdr.Size}

			end := counter.n + hdr.Size
			if pad := end % tarBlockSize; pad != 0 {
				end += tarBlockSize - pad
			}
			if end > appendOff {
				appendOff = end
			}
		}
	}

	if b.win != nil {
		b.win.Close()
		b.mapping.Close()
	}

	b.mapping = mapping
	b.win = win
	b.paths = paths
	b.spans = spans
	b.compressed = compressed
	b.appendOff = appendOff

	return nil
}

func (*TarBackend) Name() string {
	return "tar"
}

func (b *TarBackend) Close(ctx context.Context) error {
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
	b.spans = nil

	return err
}

func (b *TarBackend) Open(ctx context.Context, path string, mode data.AccessMode, buffering int) (archivefs.Stream, error) {
	if mode&data.AccessModeWrite != 0 {
		return nil, data.NotSupported(b.Name(), "direct write open")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	resolved, entry, err := b.paths.Resolve(path, true)
	if err != nil {
		return nil, err
	}

	// A hard link stores the target's archive path; content lives in
	// the target member.
	for hops := 0; entry.Stat.Type == data.TypeLink; hops++ {
		if hops >= maxHardLinkHops || entry.Stat.Target == "" {
			return nil, data.NotFound(path)
		}
		resolved, entry, err = b.paths.Resolve(memberPath(entry.Stat.Target), true)
		if err != nil {
			return nil, err
		}
	}

	if entry.Stat.IsDir() {
		return nil, data.IsADirectory(path)
	}

	if b.compressed {
		return b.openCompressed(entry.RawName, path)
	}

	sp, ok := b.spans[resolved]
	if !ok {
		return nil, data.NotFound(path)
	}

	win, err := b.mapping.Window(sp.offset, sp.size)
	if err != nil {
		return nil, data.Corrupt("member span [%d,%d) beyond container end", sp.offset, sp.offset+sp.size)
	}

	return win, nil
}

// openCompressed re-streams the container up to the wanted member.
func (b *TarBackend) openCompressed(rawName, path string) (archivefs.Stream, error) {
	img, err := b.win.Bytes()
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(img))
	if err != nil {
		return nil, data.Corrupt("tar: %v", err)
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			gz.Close()
			return nil, data.Corrupt("tar: %v", err)
		}

		if hdr.Name == rawName {
			return archivefs.NewReadStream(&memberStream{r: tr, close: gz.Close}), nil
		}
	}

	gz.Close()
	return nil, data.NotFound(path)
}

type memberStream struct {
	r     io.Reader
	close func() error
}

func (m *memberStream) Read(p []byte) (int, error) { return m.r.Read(p) }
func (m *memberStream) Close() error               { return m.close() }

func (b *TarBackend) Stat(ctx context.Context, path string, followSymlinks bool) (*data.StatRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, entry, err := b.paths.Resolve(path, followSymlinks)
	if err != nil {
		return nil, err
	}

	return entry.Stat.Clone(), nil
}

func (b *TarBackend) Listdir(ctx context.Context, path string) ([]string, error) {
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

func (b *TarBackend) Readlink(ctx context.Context, path string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, entry, err := b.paths.Resolve(path, false)
	if err != nil {
		return "", err
	}

	// Hard links carry a member target too and report it the same way.
	if !entry.Stat.IsSymlink() && entry.Stat.Type != data.TypeLink {
		return "", data.NotASymlink(path)
	}

	return entry.Stat.Target, nil
}

// Create appends a member after the last one and rewrites the
// trailer, then reprojects the index. In the append-only tradition a
// member added at an occupied path shadows the earlier one.
// Compressed containers cannot be appended to.
func (b *TarBackend) Create(ctx context.Context, path string, stat *data.StatRecord, content io.Reader) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.compressed {
		return data.NotSupported(b.Name(), "create in compressed container")
	}

	p := memberPath(path)
	if p == "/" {
		return data.AlreadyExists(path)
	}

	if err := b.checkParent(p); err != nil {
		return err
	}

	f, err := os.OpenFile(b.path, os.O_RDWR, 0)
	if err != nil {
		return err
	}

	if _, err := f.Seek(b.appendOff, io.SeekStart); err != nil {
		f.Close()
		return err
	}

	if err := appendMember(f, p, stat, content); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return b.load()
}

func (b *TarBackend) checkParent(p string) error {
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

func appendMember(w io.Writer, p string, stat *data.StatRecord, content io.Reader) error {
	modified := stat.ModifyTime
	if modified.IsZero() {
		modified = time.Now()
	}

	hdr := &tar.Header{
		Name:    strings.TrimPrefix(p, "/"),
		Mode:    int64(stat.Permissions),
		Size:    stat.Size,
		ModTime: modified,
		Uid:     int(stat.UserID),
		Gid:     int(stat.GroupID),
		Uname:   stat.User,
		Gname:   stat.Group,
	}

	switch stat.Type {
	case data.TypeDir:
		hdr.Typeflag = tar.TypeDir
		hdr.Name += "/"
		hdr.Size = 0
	case data.TypeSymlink:
		hdr.Typeflag = tar.TypeSymlink
		hdr.Linkname = stat.Target
		hdr.Size = 0
	default:
		hdr.Typeflag = tar.TypeReg
	}

	tw := tar.NewWriter(w)

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	if hdr.Typeflag == tar.TypeReg && content != nil {
		if _, err := io.Copy(tw, content); err != nil {
			return err
		}
	}

	return tw.Close()
}
