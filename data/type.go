package data

// FileType identifies the type of entry in a container.
type FileType int

// File type constants matching common Unix file types.
const (
	TypeFile        FileType = iota // Regular file
	TypeDir                         // Directory
	TypeSymlink                     // Symbolic link
	TypeSocket                      // Unix socket
	TypeFifo                        // Named pipe (FIFO)
	TypeCharDevice                  // Character device
	TypeBlockDevice                 // Block device
	TypeLink                        // Hard link (tar-style member)
)

// String returns the lowercase name used in container metadata.
func (t FileType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDir:
		return "dir"
	case TypeSymlink:
		return "symlink"
	case TypeSocket:
		return "socket"
	case TypeFifo:
		return "fifo"
	case TypeCharDevice:
		return "char_device"
	case TypeBlockDevice:
		return "block_device"
	case TypeLink:
		return "link"
	default:
		return "unknown"
	}
}
