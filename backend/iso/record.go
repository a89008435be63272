package iso

import (
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"github.com/mwantia/archivefs/data"
)

const (
	// SectorSize is the ISO9660 logical sector size.
	SectorSize = 2048

	// Volume descriptor layout
	descMagic      = "CD001"
	descTypePVD    = 1
	descTypeEnd    = 255
	pvdRootOffset  = 156
	scanStartBlock = 16

	// Directory record flag bit marking a directory
	flagDir = 0x02
)

// record is one decoded directory record, the ISO fields merged with
// any Rock Ridge data from its SUSP chain. Immutable once built.
type record struct {
	name   string
	size   int64
	extent int64 // starting sector of the data extent
	isDir  bool

	// POSIX attributes; defaults apply when no PX entry is present
	typ    data.FileType
	perm   uint32
	hasPX  bool
	uid    int64
	gid    int64
	nlink  int64
	serial int64

	created  time.Time
	modified time.Time
	accessed time.Time
	status   time.Time

	// Symlink target assembled from SL components
	target string
}

// bothEndian32 decodes an ISO9660 both-byte-order 32-bit field. The
// value is stored twice, little-endian then big-endian; disagreement
// means corruption and is never papered over.
func bothEndian32(b []byte) (uint32, error) {
	if len(b) < 8 {
		return 0, data.Corrupt("truncated both-endian field")
	}

	le := binary.LittleEndian.Uint32(b[0:4])
	be := binary.BigEndian.Uint32(b[4:8])
	if le != be {
		return 0, data.Corrupt("both-endian mismatch: le=%d be=%d", le, be)
	}

	return le, nil
}

// decodeShortTime decodes the 7-byte directory record timestamp:
// years since 1900, month, day, hour, minute, second, and a UTC
// offset in 15-minute units.
func decodeShortTime(b []byte) time.Time {
	if len(b) < 7 || b[1] == 0 {
		return time.Time{}
	}

	offset := int(int8(b[6])) * 15 * 60
	zone := time.FixedZone("", offset)

	return time.Date(1900+int(b[0]), time.Month(b[1]), int(b[2]),
		int(b[3]), int(b[4]), int(b[5]), 0, zone)
}

// decodeLongTime decodes the 17-byte timestamp: 16 ASCII digits
// (year, month, day, hour, minute, second, centiseconds) plus the
// 15-minute UTC offset byte.
func decodeLongTime(b []byte) time.Time {
	if len(b) < 17 {
		return time.Time{}
	}

	digits := string(b[0:16])
	year, err := strconv.Atoi(digits[0:4])
	if err != nil || year == 0 {
		return time.Time{}
	}

	atoi := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}

	offset := int(int8(b[16])) * 15 * 60
	zone := time.FixedZone("", offset)

	return time.Date(year, time.Month(atoi(digits[4:6])), atoi(digits[6:8]),
		atoi(digits[8:10]), atoi(digits[10:12]), atoi(digits[12:14]),
		atoi(digits[14:16])*10_000_000, zone)
}

// decodeName decodes the ISO-level identifier: 0x00 is ".", 0x01 is
// "..", anything else is ASCII with a ";version" suffix stripped.
func decodeName(b []byte) string {
	if len(b) == 1 {
		switch b[0] {
		case 0x00:
			return "."
		case 0x01:
			return ".."
		}
	}

	name := string(b)
	if i := strings.IndexByte(name, ';'); i >= 0 {
		name = name[:i]
	}

	return name
}

// decodeRecord decodes one directory record starting at off. It
// returns the record and its on-disk length. A zero length byte
// returns (nil, 0, nil); the caller skips to the next sector.
func (b *Backend) decodeRecord(off int64) (*record, int64, error) {
	img := b.img

	if off >= int64(len(img)) {
		return nil, 0, data.Corrupt("directory record beyond image end")
	}

	recLen := int64(img[off])
	if recLen == 0 {
		return nil, 0, nil
	}

	if off+recLen > int64(len(img)) || recLen < 34 {
		return nil, 0, data.Corrupt("directory record length %d at offset %d", recLen, off)
	}

	raw := img[off : off+recLen]

	extent, err := bothEndian32(raw[2:10])
	if err != nil {
		return nil, 0, err
	}

	size, err := bothEndian32(raw[10:18])
	if err != nil {
		return nil, 0, err
	}

	flags := raw[25]

	nameLen := int64(raw[32])
	if 33+nameLen > recLen {
		return nil, 0, data.Corrupt("name length %d exceeds record", nameLen)
	}

	rec := &record{
		name:    decodeName(raw[33 : 33+nameLen]),
		size:    int64(size),
		extent:  int64(extent),
		isDir:   flags&flagDir != 0,
		created: decodeShortTime(raw[18:25]),
		nlink:   1,
		serial:  int64(extent),
	}

	if rec.isDir {
		rec.typ = data.TypeDir
		rec.perm = 0o555
	} else {
		rec.typ = data.TypeFile
		rec.perm = 0o444
	}

	// System use area: after the identifier, padded to an even offset
	sysOff := 33 + nameLen
	if nameLen%2 == 0 {
		sysOff++
	}

	if sysOff < recLen {
		if err := b.parseSUSP(raw[sysOff:recLen], rec); err != nil {
			return nil, 0, err
		}
	}

	return rec, recLen, nil
}
