package iso

import (
	"strings"
	"time"

	"github.com/mwantia/archivefs/data"
)

// Rock Ridge / SUSP entry parsing. Entries follow the fixed directory
// record fields up to the record's declared end; a CE entry redirects
// the chain into a continuation area elsewhere on the disc.

// NM and SL flag bits
const (
	nmContinue = 0x01
	nmCurrent  = 0x02
	nmParent   = 0x04

	slCompContinue = 0x01
	slCompCurrent  = 0x02
	slCompParent   = 0x04
	slCompRoot     = 0x08

	tfLongForm = 0x80
)

// TF timestamp roles in flag-bit order.
const (
	tfCreate = iota
	tfModify
	tfAccess
	tfStatus
	tfBackup
	tfExpiration
	tfEffective
	tfRoleCount
)

// suspState accumulates fragments across entries and continuation
// areas for one directory record.
type suspState struct {
	name     strings.Builder
	nameSeen bool

	comps    []string
	comp     strings.Builder
	compOpen bool
	slSeen   bool

	// pending continuation area, set by a CE entry
	ceOffset int64
	ceLength int64
	cePend   bool
}

// parseSUSP walks the System Use entry chain for rec, starting in
// area and following at most one pending CE jump per area. The jump
// is applied iteratively rather than recursively, so nesting depth is
// bounded by the number of continuation areas.
func (b *Backend) parseSUSP(area []byte, rec *record) error {
	st := &suspState{}

	for {
		if err := b.parseSUSPArea(area, rec, st); err != nil {
			return err
		}

		if !st.cePend {
			break
		}

		offset, length := st.ceOffset, st.ceLength
		st.cePend = false

		if offset < 0 || offset+length > int64(len(b.img)) {
			return data.Corrupt("continuation area [%d,%d) beyond image end", offset, offset+length)
		}

		area = b.img[offset : offset+length]
	}

	// Collected fragments override the ISO-level fields
	if st.nameSeen {
		rec.name = st.name.String()
	}

	if st.slSeen {
		if st.compOpen {
			st.comps = append(st.comps, st.comp.String())
		}
		rec.target = strings.Join(st.comps, "/")
		if rec.target == "" {
			rec.target = "/"
		}
	}

	return nil
}

func (b *Backend) parseSUSPArea(area []byte, rec *record, st *suspState) error {
	off := 0

	for off < len(area) {
		// A single pad byte fills a block that ends on an odd byte
		if area[off] == 0 {
			break
		}

		if off+4 > len(area) {
			return data.Corrupt("truncated system use entry")
		}

		sig := string(area[off : off+2])
		length := int(area[off+2])

		if length < 4 || off+length > len(area) {
			return data.Corrupt("system use entry %q length %d", sig, length)
		}

		payload := area[off+4 : off+length]

		switch sig {
		case "PX":
			if err := parsePX(payload, rec); err != nil {
				return err
			}
		case "TF":
			if err := parseTF(payload, rec); err != nil {
				return err
			}
		case "NM":
			parseNM(payload, st)
		case "SL":
			parseSL(payload, st)
		case "CE":
			if err := parseCE(payload, st); err != nil {
				return err
			}
		default:
			// Unknown kinds (SP, ER, RR, ST, ...) skip by length
		}

		off += length
	}

	return nil
}

// parsePX decodes the POSIX attribute entry: mode, link count, uid,
// gid, and, when present, the file serial number — each a both-endian
// 32-bit field.
func parsePX(payload []byte, rec *record) error {
	if len(payload) < 32 {
		return data.Corrupt("PX entry payload %d bytes", len(payload))
	}

	mode, err := bothEndian32(payload[0:8])
	if err != nil {
		return err
	}
	nlink, err := bothEndian32(payload[8:16])
	if err != nil {
		return err
	}
	uid, err := bothEndian32(payload[16:24])
	if err != nil {
		return err
	}
	gid, err := bothEndian32(payload[24:32])
	if err != nil {
		return err
	}

	rec.typ, rec.perm = data.UnpackMode(data.FileMode(mode))
	rec.nlink = int64(nlink)
	rec.uid = int64(uid)
	rec.gid = int64(gid)
	rec.hasPX = true

	if len(payload) >= 40 {
		serial, err := bothEndian32(payload[32:40])
		if err != nil {
			return err
		}
		rec.serial = int64(serial)
	}

	return nil
}

// parseTF decodes the timestamp entry. One flag byte selects which
// roles are present; bit 7 selects the 17-byte long form over the
// 7-byte short form.
func parseTF(payload []byte, rec *record) error {
	if len(payload) < 1 {
		return data.Corrupt("empty TF entry")
	}

	flags := payload[0]
	long := flags&tfLongForm != 0

	width := 7
	if long {
		width = 17
	}

	off := 1
	for role := 0; role < tfRoleCount; role++ {
		if flags&(1<<role) == 0 {
			continue
		}

		if off+width > len(payload) {
			return data.Corrupt("TF entry short of timestamp %d", role)
		}

		var ts time.Time
		if long {
			ts = decodeLongTime(payload[off : off+width])
		} else {
			ts = decodeShortTime(payload[off : off+width])
		}
		off += width

		switch role {
		case tfCreate:
			rec.created = ts
		case tfModify:
			rec.modified = ts
		case tfAccess:
			rec.accessed = ts
		case tfStatus:
			rec.status = ts
		}
		// backup, expiration and effective have no StatRecord slot
	}

	return nil
}

// parseNM accumulates alternate-name fragments. Fragments join
// across entries and continuation areas until one without the
// continue flag ends the name.
func parseNM(payload []byte, st *suspState) {
	if len(payload) < 1 {
		return
	}

	flags := payload[0]
	st.nameSeen = true

	switch {
	case flags&nmCurrent != 0:
		st.name.WriteString(".")
	case flags&nmParent != 0:
		st.name.WriteString("..")
	default:
		st.name.Write(payload[1:])
	}
}

// parseSL accumulates symlink-target components. A component with the
// continue flag is concatenated with the next fragment without a
// separator; finished components join with "/".
func parseSL(payload []byte, st *suspState) {
	if len(payload) < 1 {
		return
	}

	st.slSeen = true

	off := 1
	for off+2 <= len(payload) {
		cflags := payload[off]
		clen := int(payload[off+1])
		if off+2+clen > len(payload) {
			break
		}
		content := payload[off+2 : off+2+clen]
		off += 2 + clen

		switch {
		case cflags&slCompRoot != 0:
			st.comps = append(st.comps[:0], "")
		case cflags&slCompCurrent != 0:
			st.comps = append(st.comps, ".")
		case cflags&slCompParent != 0:
			st.comps = append(st.comps, "..")
		default:
			st.comp.Write(content)
			if cflags&slCompContinue == 0 {
				st.comps = append(st.comps, st.comp.String())
				st.comp.Reset()
				st.compOpen = false
			} else {
				st.compOpen = true
			}
		}
	}
}

// parseCE records the continuation pointer; the jump happens once the
// current area is exhausted.
func parseCE(payload []byte, st *suspState) error {
	if len(payload) < 24 {
		return data.Corrupt("CE entry payload %d bytes", len(payload))
	}

	sector, err := bothEndian32(payload[0:8])
	if err != nil {
		return err
	}
	offset, err := bothEndian32(payload[8:16])
	if err != nil {
		return err
	}
	length, err := bothEndian32(payload[16:24])
	if err != nil {
		return err
	}

	st.ceOffset = int64(sector)*SectorSize + int64(offset)
	st.ceLength = int64(length)
	st.cePend = true

	return nil
}
