// Package index implements the path → StatRecord projection shared by
// the container backends. Members are kept in an ordered btree keyed
// by normalized absolute path, which makes directory listings a
// bounded prefix scan.
package index

import (
	gopath "path"
	"strings"

	"github.com/mwantia/archivefs/data"
	"github.com/tidwall/btree"
)

// maxLinkDepth bounds symlink resolution so cyclic links terminate.
const maxLinkDepth = 40

// Entry is one projected container member.
type Entry struct {
	// Stat holds the unified metadata for the member.
	Stat *data.StatRecord

	// RawName is the container-native member name, retained for
	// round-tripping to the container library's own calls.
	RawName string
}

// Index maps normalized absolute paths to entries.
// Not safe for concurrent mutation; the owning backend synchronizes.
type Index struct {
	paths *btree.Map[string, *Entry]
}

// New creates an empty index containing only the root directory.
func New() *Index {
	ix := &Index{
		paths: btree.NewMap[string, *Entry](0),
	}

	ix.paths.Set("/", &Entry{
		Stat: &data.StatRecord{
			Type:        data.TypeDir,
			Permissions: 0o755,
			FileID:      1,
		},
	})

	return ix
}

// Put inserts or replaces the entry at path and synthesizes any
// missing parent directories.
func (ix *Index) Put(path string, e *Entry) {
	ix.paths.Set(path, e)

	for parent := gopath.Dir(path); ; parent = gopath.Dir(parent) {
		if _, exists := ix.paths.Get(parent); exists {
			break
		}

		ix.paths.Set(parent, &Entry{
			Stat: &data.StatRecord{
				Type:        data.TypeDir,
				Permissions: 0o755,
			},
		})

		if parent == "/" {
			break
		}
	}
}

// Get returns the entry at path without following symlinks.
func (ix *Index) Get(path string) (*Entry, bool) {
	return ix.paths.Get(path)
}

// Delete removes the entry at path.
func (ix *Index) Delete(path string) {
	ix.paths.Delete(path)
}

// Len returns the number of indexed entries, the root included.
func (ix *Index) Len() int {
	return ix.paths.Len()
}

// Children returns the names of the direct children of path in
// lexical order.
func (ix *Index) Children(path string) []string {
	prefix := path
	if prefix != "/" {
		prefix += "/"
	}

	var names []string
	ix.paths.Ascend(prefix, func(key string, _ *Entry) bool {
		if !strings.HasPrefix(key, prefix) {
			return false
		}

		rest := key[len(prefix):]
		if rest == "" {
			return true
		}

		// Skip grandchildren; the btree yields them adjacent to
		// their parent, so direct children appear first.
		if strings.Contains(rest, "/") {
			return true
		}

		names = append(names, rest)
		return true
	})

	return names
}

// Walk iterates all entries in lexical path order.
func (ix *Index) Walk(fn func(path string, e *Entry) bool) {
	ix.paths.Scan(fn)
}

// Resolve walks path from the root, following symlinks in every
// intermediate segment. The final segment is followed only when
// followLast is set, so lstat semantics fall out of followLast=false.
// Cyclic links terminate via a fixed depth bound.
func (ix *Index) Resolve(path string, followLast bool) (string, *Entry, error) {
	return ix.resolve(path, followLast, 0)
}

func (ix *Index) resolve(path string, followLast bool, depth int) (string, *Entry, error) {
	if depth > maxLinkDepth {
		return "", nil, data.NotFound(path)
	}

	current := "/"
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if path == "/" {
		segments = nil
	}

	for i, segment := range segments {
		last := i == len(segments)-1

		entry, exists := ix.paths.Get(current)
		if !exists {
			return "", nil, data.NotFound(current)
		}
		if !entry.Stat.IsDir() {
			return "", nil, data.NotADirectory(current)
		}

		next := joinSegment(current, segment)

		child, exists := ix.paths.Get(next)
		if !exists {
			return "", nil, data.NotFound(next)
		}

		if child.Stat.IsSymlink() && (!last || followLast) {
			target := child.Stat.Target
			if !strings.HasPrefix(target, "/") {
				target = joinSegment(current, target)
			}
			target = gopath.Clean(target)

			resolved, _, err := ix.resolve(target, true, depth+1)
			if err != nil {
				return "", nil, err
			}
			next = resolved
		}

		current = next
	}

	entry, exists := ix.paths.Get(current)
	if !exists {
		return "", nil, data.NotFound(current)
	}

	return current, entry, nil
}

func joinSegment(dir, segment string) string {
	return gopath.Clean(dir + "/" + segment)
}
