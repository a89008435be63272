// Package archive implements backends over member-listing archive
// formats. ZIP and TAR containers are projected into a path index at
// open time; lookups and directory listings run against the index
// while member content is read from the mapped container on demand.
package archive

import (
	"io/fs"
	gopath "path"
	"strings"

	"github.com/mwantia/archivefs/data"
	"github.com/mwantia/archivefs/log"
)

// Option configures an archive backend.
type Option func(*options)

type options struct {
	logger *log.Logger
}

// WithLogger sets the logger used by the backend.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		logger: log.Noop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// memberPath normalizes an archive member name to an absolute slash
// path. Directory members carry a trailing slash in both formats;
// the index does not.
func memberPath(name string) string {
	return gopath.Clean("/" + strings.TrimSuffix(name, "/"))
}

// statFromMode builds the metadata shared by both formats from an
// fs.FileMode-style member mode.
func statFromMode(mode fs.FileMode, size int64) *data.StatRecord {
	perm := uint32(mode.Perm())

	switch {
	case mode.IsDir():
		return data.NewDirStat(perm)
	case mode&fs.ModeSymlink != 0:
		st := data.NewSymlinkStat("")
		st.Permissions = perm
		return st
	default:
		return data.NewFileStat(size, perm)
	}
}
