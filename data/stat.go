package data

import (
	"time"
)

// StatRecord is the unified metadata value returned by every backend.
// Records are immutable snapshots; a later change inside the container
// is not reflected in records handed out earlier.
type StatRecord struct {
	// Type of entry (file, directory, symlink, ...)
	Type FileType `json:"type"`

	// Size in bytes (0 for directories)
	Size int64 `json:"size"`

	// Unix permission bits
	Permissions uint32 `json:"permissions"`

	// Name of file owner
	User string `json:"user,omitempty"`

	// Name of file group
	Group string `json:"group,omitempty"`

	// ID of file owner
	UserID int64 `json:"user_id"`

	// ID of file group
	GroupID int64 `json:"group_id"`

	// ID of the containing device (one per accessor instance)
	DeviceID int64 `json:"device_id"`

	// ID that uniquely identifies the entry on the device
	FileID int64 `json:"file_id"`

	// Number of hard links to this entry
	HardLinkCount int64 `json:"hard_link_count"`

	AccessTime time.Time `json:"access_time"`
	ModifyTime time.Time `json:"modify_time"`
	CreateTime time.Time `json:"create_time"`
	StatusTime time.Time `json:"status_time"`

	// Symlink target path (empty unless Type is TypeSymlink or TypeLink)
	Target string `json:"target,omitempty"`
}

// NewStat creates a StatRecord of the given type and size.
func NewStat(t FileType, size int64) *StatRecord {
	return &StatRecord{
		Type: t,
		Size: size,
	}
}

// NewFileStat creates a StatRecord for a regular file.
func NewFileStat(size int64, perm uint32) *StatRecord {
	return &StatRecord{
		Type:        TypeFile,
		Size:        size,
		Permissions: perm,
	}
}

// NewDirStat creates a StatRecord for a directory.
func NewDirStat(perm uint32) *StatRecord {
	return &StatRecord{
		Type:        TypeDir,
		Permissions: perm,
	}
}

// NewSymlinkStat creates a StatRecord for a symbolic link.
func NewSymlinkStat(target string) *StatRecord {
	return &StatRecord{
		Type:        TypeSymlink,
		Permissions: 0o777,
		Target:      target,
	}
}

// Mode returns the packed type and permission bits.
func (s *StatRecord) Mode() FileMode {
	return PackMode(s.Type, s.Permissions)
}

// IsDir returns true if this record describes a directory.
func (s *StatRecord) IsDir() bool {
	return s.Type == TypeDir
}

// IsSymlink returns true if this record describes a symbolic link.
func (s *StatRecord) IsSymlink() bool {
	return s.Type == TypeSymlink
}

// Clone creates a copy of the record.
func (s *StatRecord) Clone() *StatRecord {
	clone := *s
	return &clone
}

// Equal reports whether two records describe the same entry state.
// Comparison runs over the ten canonical stat fields, which makes
// "has this file changed" checks a single call.
func (s *StatRecord) Equal(other *StatRecord) bool {
	return s.Compare(other) == 0
}

// Compare orders two records by tuple-comparison over the ten
// canonical stat fields: mode, file_id, device_id, hard_link_count,
// user_id, group_id, size, access_time, modify_time, status_time.
func (s *StatRecord) Compare(other *StatRecord) int {
	fields := [][2]int64{
		{int64(s.Mode()), int64(other.Mode())},
		{s.FileID, other.FileID},
		{s.DeviceID, other.DeviceID},
		{s.HardLinkCount, other.HardLinkCount},
		{s.UserID, other.UserID},
		{s.GroupID, other.GroupID},
		{s.Size, other.Size},
		{s.AccessTime.UnixNano(), other.AccessTime.UnixNano()},
		{s.ModifyTime.UnixNano(), other.ModifyTime.UnixNano()},
		{s.StatusTime.UnixNano(), other.StatusTime.UnixNano()},
	}

	for _, pair := range fields {
		switch {
		case pair[0] < pair[1]:
			return -1
		case pair[0] > pair[1]:
			return 1
		}
	}

	return 0
}
