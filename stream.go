package archivefs

import (
	"io"

	"github.com/mwantia/archivefs/data"
)

// Stream combines the operation interfaces for entry content.
// The available directions depend on the access mode used when
// opening; the unsupported direction fails instead of crashing.
type Stream interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer

	// CanRead returns true if the stream can be read.
	CanRead() bool

	// CanWrite returns true if the stream can be written.
	CanWrite() bool
}

// ReadStream adapts a container library's read-only stream (a zip or
// tar member reader) to the Stream interface. Member streams are
// sequential; Seek is not supported.
type ReadStream struct {
	rc io.ReadCloser
}

// NewReadStream wraps rc as a read-only Stream.
func NewReadStream(rc io.ReadCloser) *ReadStream {
	return &ReadStream{rc: rc}
}

func (rs *ReadStream) Read(p []byte) (int, error) {
	return rs.rc.Read(p)
}

func (rs *ReadStream) Write(p []byte) (int, error) {
	return 0, data.ErrReadOnly
}

func (rs *ReadStream) Seek(offset int64, whence int) (int64, error) {
	return 0, data.ErrNotSupported
}

func (rs *ReadStream) Close() error {
	return rs.rc.Close()
}

func (rs *ReadStream) CanRead() bool { return true }

func (rs *ReadStream) CanWrite() bool { return false }
