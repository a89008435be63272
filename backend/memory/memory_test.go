package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"testing"

	"github.com/mwantia/archivefs/data"
)

func TestCreateOpenRoundTrip(t *testing.T) {
	b := NewBackend()
	ctx := context.Background()
	defer b.Close(ctx)

	payload := []byte("in memory")
	stat := data.NewFileStat(int64(len(payload)), 0o644)
	if err := b.Create(ctx, "/file.txt", stat, bytes.NewReader(payload)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	s, err := b.Open(ctx, "/file.txt", data.AccessModeRead, 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	content, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(content, payload) {
		t.Errorf("read %q, want %q", content, payload)
	}
}

func TestCreateAssignsIdentity(t *testing.T) {
	b := NewBackend()
	ctx := context.Background()
	defer b.Close(ctx)

	if err := b.Create(ctx, "/a", data.NewFileStat(0, 0o644), nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := b.Create(ctx, "/b", data.NewFileStat(0, 0o644), nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sa, err := b.Stat(ctx, "/a", true)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	sb, err := b.Stat(ctx, "/b", true)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}

	if sa.FileID == sb.FileID {
		t.Errorf("FileID collision: %d", sa.FileID)
	}
	if sa.DeviceID != sb.DeviceID {
		t.Errorf("DeviceID differs within one backend: %d vs %d", sa.DeviceID, sb.DeviceID)
	}
	if sa.ModifyTime.IsZero() {
		t.Error("ModifyTime not assigned")
	}
}

func TestCreateMissingParent(t *testing.T) {
	b := NewBackend()
	ctx := context.Background()
	defer b.Close(ctx)

	err := b.Create(ctx, "/nope/file", data.NewFileStat(0, 0o644), nil)
	if !errors.Is(err, data.ErrNotExist) {
		t.Fatalf("Create = %v, want ErrNotExist", err)
	}
}

func TestListdir(t *testing.T) {
	b := NewBackend()
	ctx := context.Background()
	defer b.Close(ctx)

	if err := b.Create(ctx, "/dir", data.NewDirStat(0o755), nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for _, p := range []string{"/dir/a", "/dir/b"} {
		if err := b.Create(ctx, p, data.NewFileStat(0, 0o644), nil); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	names, err := b.Listdir(ctx, "/dir")
	if err != nil {
		t.Fatalf("Listdir failed: %v", err)
	}

	sort.Strings(names)
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Listdir = %v, want [a b]", names)
	}
}

func TestMoveKeepsContent(t *testing.T) {
	b := NewBackend()
	ctx := context.Background()
	defer b.Close(ctx)

	payload := []byte("movable")
	if err := b.Create(ctx, "/old", data.NewFileStat(int64(len(payload)), 0o644), bytes.NewReader(payload)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := b.Move(ctx, "/old", "/new"); err != nil {
		t.Fatalf("Move failed: %v", err)
	}

	if _, err := b.Stat(ctx, "/old", true); !errors.Is(err, data.ErrNotExist) {
		t.Errorf("Stat old = %v, want ErrNotExist", err)
	}

	s, err := b.Open(ctx, "/new", data.AccessModeRead, 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	content, _ := io.ReadAll(s)
	if !bytes.Equal(content, payload) {
		t.Errorf("read %q, want %q", content, payload)
	}
}

func TestChmodFollowsLinks(t *testing.T) {
	b := NewBackend()
	ctx := context.Background()
	defer b.Close(ctx)

	if err := b.Create(ctx, "/file", data.NewFileStat(0, 0o644), nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := b.Create(ctx, "/link", data.NewSymlinkStat("file"), nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := b.Chmod(ctx, "/link", 0o600, true); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}

	stat, err := b.Stat(ctx, "/file", true)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if stat.Permissions != 0o600 {
		t.Errorf("target Permissions = %o, want 600", stat.Permissions)
	}

	stat, err = b.Stat(ctx, "/link", false)
	if err != nil {
		t.Fatalf("Lstat failed: %v", err)
	}
	if stat.Permissions != 0o777 {
		t.Errorf("link Permissions = %o, want 777", stat.Permissions)
	}
}

func TestOpenDirectory(t *testing.T) {
	b := NewBackend()
	ctx := context.Background()
	defer b.Close(ctx)

	_, err := b.Open(ctx, "/", data.AccessModeRead, 0)
	if !errors.Is(err, data.ErrIsDirectory) {
		t.Fatalf("Open = %v, want ErrIsDirectory", err)
	}
}
