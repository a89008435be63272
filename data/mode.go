package data

// FileMode packs a FileType and Unix permission bits into one integer
// using the POSIX st_mode layout. Rock Ridge PX entries store exactly
// this representation on disk, so no translation layer is needed when
// decoding them.
type FileMode uint32

// POSIX file type bits within st_mode.
const (
	ModeTypeMask FileMode = 0o170000

	modeFifo        FileMode = 0o010000
	modeCharDevice  FileMode = 0o020000
	modeDir         FileMode = 0o040000
	modeBlockDevice FileMode = 0o060000
	modeFile        FileMode = 0o100000
	modeSymlink     FileMode = 0o120000
	modeSocket      FileMode = 0o140000

	// ModePerm masks the Unix permission bits.
	ModePerm FileMode = 0o7777
)

var typeToMode = map[FileType]FileMode{
	TypeFile:        modeFile,
	TypeDir:         modeDir,
	TypeSymlink:     modeSymlink,
	TypeSocket:      modeSocket,
	TypeFifo:        modeFifo,
	TypeCharDevice:  modeCharDevice,
	TypeBlockDevice: modeBlockDevice,
}

var modeToType = map[FileMode]FileType{
	modeFile:        TypeFile,
	modeDir:         TypeDir,
	modeSymlink:     TypeSymlink,
	modeSocket:      TypeSocket,
	modeFifo:        TypeFifo,
	modeCharDevice:  TypeCharDevice,
	modeBlockDevice: TypeBlockDevice,
}

// PackMode combines a file type and permission bits into a FileMode.
// Types without their own st_mode representation (hard links) pack as
// regular files.
func PackMode(t FileType, perm uint32) FileMode {
	bits, ok := typeToMode[t]
	if !ok {
		bits = modeFile
	}

	return bits | (FileMode(perm) & ModePerm)
}

// UnpackMode splits a FileMode back into its type and permission bits.
// Unrecognized type bit patterns unpack as a regular file.
func UnpackMode(m FileMode) (FileType, uint32) {
	t, ok := modeToType[m&ModeTypeMask]
	if !ok {
		t = TypeFile
	}

	return t, uint32(m & ModePerm)
}

// IsDir reports whether m describes a directory.
func (m FileMode) IsDir() bool {
	return m&ModeTypeMask == modeDir
}

// IsSymlink reports whether m describes a symbolic link.
func (m FileMode) IsSymlink() bool {
	return m&ModeTypeMask == modeSymlink
}

// IsRegular reports whether m describes a regular file.
func (m FileMode) IsRegular() bool {
	return m&ModeTypeMask == modeFile
}

// Perm returns the Unix permission bits in m.
func (m FileMode) Perm() uint32 {
	return uint32(m & ModePerm)
}

// String returns a textual representation of the mode in Unix ls -l
// format. Example: "drwxr-xr-x" for a directory with 755 permissions.
func (m FileMode) String() string {
	var buf [10]byte

	switch m & ModeTypeMask {
	case modeDir:
		buf[0] = 'd'
	case modeSymlink:
		buf[0] = 'l'
	case modeSocket:
		buf[0] = 's'
	case modeFifo:
		buf[0] = 'p'
	case modeCharDevice:
		buf[0] = 'c'
	case modeBlockDevice:
		buf[0] = 'b'
	default:
		buf[0] = '-'
	}

	const rwx = "rwxrwxrwx"
	for i, c := range rwx {
		if m&(1<<uint(9-1-i)) != 0 {
			buf[i+1] = byte(c)
		} else {
			buf[i+1] = '-'
		}
	}

	return string(buf[:])
}
