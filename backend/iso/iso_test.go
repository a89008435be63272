package iso

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/mwantia/archivefs/data"
)

// Fixture image layout:
//
//	sector 16  primary volume descriptor (root at sector 18)
//	sector 17  descriptor set terminator
//	sector 18  root directory: dirA, linkA -> dirA/fileA, readme.txt
//	sector 19  dirA directory: fileA
//	sector 20  readme.txt content
//	sector 21  fileA content
const (
	fixtureSectors    = 24
	fixtureRootExtent = 18
	fixtureDirAExtent = 19

	readmeContent = "hello iso\n"
	fileAContent  = "alpha"
)

func both32(v uint32) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], v)
	binary.BigEndian.PutUint32(b[4:8], v)
	return b
}

func suspEntry(sig string, payload []byte) []byte {
	e := []byte(sig)
	e = append(e, byte(4+len(payload)), 1)
	return append(e, payload...)
}

func pxEntry(mode, nlink, uid, gid uint32) []byte {
	var payload []byte
	payload = append(payload, both32(mode)...)
	payload = append(payload, both32(nlink)...)
	payload = append(payload, both32(uid)...)
	payload = append(payload, both32(gid)...)
	return suspEntry("PX", payload)
}

func nmEntry(name string) []byte {
	return suspEntry("NM", append([]byte{0}, name...))
}

func slEntry(comps ...string) []byte {
	payload := []byte{0}
	for _, comp := range comps {
		payload = append(payload, 0, byte(len(comp)))
		payload = append(payload, comp...)
	}
	return suspEntry("SL", payload)
}

func tfEntry(flags byte, times ...[]byte) []byte {
	payload := []byte{flags}
	for _, ts := range times {
		payload = append(payload, ts...)
	}
	return suspEntry("TF", payload)
}

// shortTime is 2024-05-01 12:00:00 UTC in record form.
var shortTime = []byte{124, 5, 1, 12, 0, 0, 0}

func dirRecord(name []byte, extent, size uint32, flags byte, susp []byte) []byte {
	rec := make([]byte, 33)
	copy(rec[2:10], both32(extent))
	copy(rec[10:18], both32(size))
	copy(rec[18:25], shortTime)
	rec[25] = flags
	binary.LittleEndian.PutUint16(rec[28:30], 1)
	binary.BigEndian.PutUint16(rec[30:32], 1)
	rec[32] = byte(len(name))
	rec = append(rec, name...)
	if len(name)%2 == 0 {
		rec = append(rec, 0)
	}
	rec = append(rec, susp...)
	rec[0] = byte(len(rec))
	return rec
}

func selfAndParent(extent uint32) []byte {
	recs := dirRecord([]byte{0x00}, extent, SectorSize, flagDir, nil)
	return append(recs, dirRecord([]byte{0x01}, fixtureRootExtent, SectorSize, flagDir, nil)...)
}

func ceEntry(sector, offset, length uint32) []byte {
	payload := append(both32(sector), both32(offset)...)
	payload = append(payload, both32(length)...)
	return suspEntry("CE", payload)
}

func buildImage(extraRoot ...[]byte) []byte {
	img := make([]byte, fixtureSectors*SectorSize)

	writeSector := func(sector int, b []byte) {
		copy(img[sector*SectorSize:], b)
	}

	pvd := make([]byte, 7)
	pvd[0] = descTypePVD
	copy(pvd[1:6], descMagic)
	pvd[6] = 1
	writeSector(16, pvd)
	copy(img[16*SectorSize+pvdRootOffset:],
		dirRecord([]byte{0x00}, fixtureRootExtent, SectorSize, flagDir, nil))

	term := make([]byte, 7)
	term[0] = descTypeEnd
	copy(term[1:6], descMagic)
	term[6] = 1
	writeSector(17, term)

	root := selfAndParent(fixtureRootExtent)
	root = append(root, dirRecord([]byte("DIRA"), fixtureDirAExtent, SectorSize, flagDir,
		append(pxEntry(0o040755, 2, 0, 0), nmEntry("dirA")...))...)
	linkSUSP := append(pxEntry(0o120777, 1, 0, 0), nmEntry("linkA")...)
	linkSUSP = append(linkSUSP, slEntry("dirA", "fileA")...)
	root = append(root, dirRecord([]byte("LINKA"), 0, 0, 0, linkSUSP)...)
	readmeSUSP := append(pxEntry(0o100644, 1, 1000, 1000), nmEntry("readme.txt")...)
	readmeSUSP = append(readmeSUSP, tfEntry(0x02, shortTime)...)
	root = append(root, dirRecord([]byte("README.TXT;1"), 20, uint32(len(readmeContent)), 0, readmeSUSP)...)
	for _, rec := range extraRoot {
		root = append(root, rec...)
	}
	writeSector(fixtureRootExtent, root)

	dirA := selfAndParent(fixtureDirAExtent)
	dirA = append(dirA, dirRecord([]byte("FILEA"), 21, uint32(len(fileAContent)), 0,
		append(pxEntry(0o100644, 1, 0, 0), nmEntry("fileA")...))...)
	writeSector(fixtureDirAExtent, dirA)

	writeSector(20, []byte(readmeContent))
	writeSector(21, []byte(fileAContent))

	return img
}

func writeImage(t *testing.T, img []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.iso")
	if err := os.WriteFile(path, img, 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}

	return path
}

func openFixture(t *testing.T, opts ...Option) *Backend {
	t.Helper()

	b, err := OpenImage(writeImage(t, buildImage()), opts...)
	if err != nil {
		t.Fatalf("OpenImage failed: %v", err)
	}
	t.Cleanup(func() {
		b.Close(context.Background())
	})

	return b
}

func TestListdirRoot(t *testing.T) {
	b := openFixture(t)

	names, err := b.Listdir(context.Background(), "/")
	if err != nil {
		t.Fatalf("Listdir failed: %v", err)
	}

	sort.Strings(names)
	want := []string{"dirA", "linkA", "readme.txt"}
	if len(names) != len(want) {
		t.Fatalf("Listdir returned %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Listdir returned %v, want %v", names, want)
		}
	}
}

func TestStatFile(t *testing.T) {
	b := openFixture(t)

	stat, err := b.Stat(context.Background(), "/readme.txt", true)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}

	if stat.Type != data.TypeFile {
		t.Errorf("Type = %v, want %v", stat.Type, data.TypeFile)
	}
	if stat.Size != int64(len(readmeContent)) {
		t.Errorf("Size = %d, want %d", stat.Size, len(readmeContent))
	}
	if stat.Permissions != 0o644 {
		t.Errorf("Permissions = %o, want 644", stat.Permissions)
	}
	if stat.UserID != 1000 || stat.GroupID != 1000 {
		t.Errorf("UserID/GroupID = %d/%d, want 1000/1000", stat.UserID, stat.GroupID)
	}
	if stat.ModifyTime.Year() != 2024 {
		t.Errorf("ModifyTime = %v, want year 2024", stat.ModifyTime)
	}
}

func TestStatDirectory(t *testing.T) {
	b := openFixture(t)

	stat, err := b.Stat(context.Background(), "/dirA", true)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}

	if stat.Type != data.TypeDir {
		t.Errorf("Type = %v, want %v", stat.Type, data.TypeDir)
	}
	if stat.Permissions != 0o755 {
		t.Errorf("Permissions = %o, want 755", stat.Permissions)
	}
	if stat.HardLinkCount != 2 {
		t.Errorf("HardLinkCount = %d, want 2", stat.HardLinkCount)
	}
}

func TestOpenRead(t *testing.T) {
	b := openFixture(t)

	s, err := b.Open(context.Background(), "/dirA/fileA", data.AccessModeRead, 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	content, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(content) != fileAContent {
		t.Errorf("read %q, want %q", content, fileAContent)
	}
}

func TestOpenWriteRejected(t *testing.T) {
	b := openFixture(t)

	_, err := b.Open(context.Background(), "/readme.txt", data.AccessModeWrite, 0)
	if !errors.Is(err, data.ErrNotSupported) {
		t.Fatalf("Open = %v, want ErrNotSupported", err)
	}
}

func TestSymlink(t *testing.T) {
	b := openFixture(t)

	target, err := b.Readlink(context.Background(), "/linkA")
	if err != nil {
		t.Fatalf("Readlink failed: %v", err)
	}
	if target != "dirA/fileA" {
		t.Errorf("Readlink = %q, want %q", target, "dirA/fileA")
	}

	stat, err := b.Stat(context.Background(), "/linkA", false)
	if err != nil {
		t.Fatalf("Stat nofollow failed: %v", err)
	}
	if stat.Type != data.TypeSymlink {
		t.Errorf("nofollow Type = %v, want %v", stat.Type, data.TypeSymlink)
	}

	stat, err = b.Stat(context.Background(), "/linkA", true)
	if err != nil {
		t.Fatalf("Stat follow failed: %v", err)
	}
	if stat.Type != data.TypeFile {
		t.Errorf("follow Type = %v, want %v", stat.Type, data.TypeFile)
	}
	if stat.Size != int64(len(fileAContent)) {
		t.Errorf("follow Size = %d, want %d", stat.Size, len(fileAContent))
	}
}

func TestNameContinuation(t *testing.T) {
	img := buildImage()

	// Replace the root directory with one whose single member's name
	// arrives in two NM fragments.
	root := selfAndParent(fixtureRootExtent)
	susp := append(pxEntry(0o100644, 1, 0, 0), suspEntry("NM", append([]byte{nmContinue}, "long"...))...)
	susp = append(susp, nmEntry("name.txt")...)
	root = append(root, dirRecord([]byte("LONGNAME.TXT;1"), 20, uint32(len(readmeContent)), 0, susp)...)

	sector := img[fixtureRootExtent*SectorSize : (fixtureRootExtent+1)*SectorSize]
	for i := range sector {
		sector[i] = 0
	}
	copy(sector, root)

	b, err := OpenImage(writeImage(t, img))
	if err != nil {
		t.Fatalf("OpenImage failed: %v", err)
	}
	defer b.Close(context.Background())

	names, err := b.Listdir(context.Background(), "/")
	if err != nil {
		t.Fatalf("Listdir failed: %v", err)
	}
	if len(names) != 1 || names[0] != "longname.txt" {
		t.Fatalf("Listdir = %v, want [longname.txt]", names)
	}
}

func TestContinuationArea(t *testing.T) {
	// NM fragments and an SL entry with a split text component live
	// in a continuation area; the record itself carries only PX + CE.
	cont := suspEntry("NM", append([]byte{nmContinue}, "li"...))
	cont = append(cont, nmEntry("nkB")...)

	slPayload := []byte{0}
	for _, comp := range []struct {
		flags byte
		text  string
	}{
		{0, "dirA"},
		{slCompContinue, "fi"},
		{0, "leA"},
	} {
		slPayload = append(slPayload, comp.flags, byte(len(comp.text)))
		slPayload = append(slPayload, comp.text...)
	}
	cont = append(cont, suspEntry("SL", slPayload)...)

	contSector := uint32(22)
	susp := append(pxEntry(0o120777, 1, 0, 0), ceEntry(contSector, 0, uint32(len(cont)))...)

	img := buildImage(dirRecord([]byte("LNKB"), 0, 0, 0, susp))
	copy(img[int64(contSector)*SectorSize:], cont)

	b, err := OpenImage(writeImage(t, img))
	if err != nil {
		t.Fatalf("OpenImage failed: %v", err)
	}
	defer b.Close(context.Background())

	names, err := b.Listdir(context.Background(), "/")
	if err != nil {
		t.Fatalf("Listdir failed: %v", err)
	}
	found := false
	for _, name := range names {
		if name == "linkB" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Listdir = %v, want to contain linkB", names)
	}

	target, err := b.Readlink(context.Background(), "/linkB")
	if err != nil {
		t.Fatalf("Readlink failed: %v", err)
	}
	if target != "dirA/fileA" {
		t.Errorf("Readlink = %q, want %q", target, "dirA/fileA")
	}

	stat, err := b.Stat(context.Background(), "/linkB", true)
	if err != nil {
		t.Fatalf("Stat follow failed: %v", err)
	}
	if stat.Type != data.TypeFile || stat.Size != int64(len(fileAContent)) {
		t.Errorf("follow stat = %v size %d, want file size %d", stat.Type, stat.Size, len(fileAContent))
	}
}

func TestReadlinkNonSymlink(t *testing.T) {
	b := openFixture(t)

	_, err := b.Readlink(context.Background(), "/readme.txt")
	if !errors.Is(err, data.ErrNotSymlink) {
		t.Fatalf("Readlink = %v, want ErrNotSymlink", err)
	}
}

func TestStatNotFound(t *testing.T) {
	b := openFixture(t)

	_, err := b.Stat(context.Background(), "/missing", true)
	if !errors.Is(err, data.ErrNotExist) {
		t.Fatalf("Stat = %v, want ErrNotExist", err)
	}
}

func TestListdirOnFile(t *testing.T) {
	b := openFixture(t)

	_, err := b.Listdir(context.Background(), "/readme.txt")
	if !errors.Is(err, data.ErrNotDirectory) {
		t.Fatalf("Listdir = %v, want ErrNotDirectory", err)
	}
}

func TestCacheDisabled(t *testing.T) {
	b := openFixture(t, WithCacheSize(0))

	stat, err := b.Stat(context.Background(), "/dirA/fileA", true)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if stat.Size != int64(len(fileAContent)) {
		t.Errorf("Size = %d, want %d", stat.Size, len(fileAContent))
	}
}

func TestDualEndianMismatch(t *testing.T) {
	img := buildImage()

	// Flip one byte in the big-endian copy of the root extent field
	img[16*SectorSize+pvdRootOffset+6] ^= 0xFF

	_, err := OpenImage(writeImage(t, img))
	if !errors.Is(err, data.ErrCorrupt) {
		t.Fatalf("OpenImage = %v, want ErrCorrupt", err)
	}
}

func TestMissingPVD(t *testing.T) {
	img := make([]byte, fixtureSectors*SectorSize)
	img[16*SectorSize] = descTypeEnd
	copy(img[16*SectorSize+1:], descMagic)

	_, err := OpenImage(writeImage(t, img))
	if !errors.Is(err, data.ErrCorrupt) {
		t.Fatalf("OpenImage = %v, want ErrCorrupt", err)
	}
}

func TestCloseTwice(t *testing.T) {
	b, err := OpenImage(writeImage(t, buildImage()))
	if err != nil {
		t.Fatalf("OpenImage failed: %v", err)
	}

	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := b.Close(context.Background()); !errors.Is(err, data.ErrClosed) {
		t.Fatalf("second Close = %v, want ErrClosed", err)
	}
}
