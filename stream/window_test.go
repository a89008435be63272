package stream

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/mwantia/archivefs/data"
)

func newTestMapping(t *testing.T, content []byte) *Mapping {
	t.Helper()

	path := filepath.Join(t.TempDir(), "window.bin")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	m, err := OpenMapping(path)
	if err != nil {
		t.Fatalf("OpenMapping failed: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	return m
}

func TestWindow_ReadToEnd(t *testing.T) {
	m := newTestMapping(t, []byte("0123456789"))

	w, err := m.Window(2, 5)
	if err != nil {
		t.Fatalf("Window failed: %v", err)
	}
	defer w.Close()

	got, err := io.ReadAll(w)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(got) != "23456" {
		t.Errorf("expected '23456', got %q", got)
	}

	// A full-length read followed by another read returns EOF
	buf := make([]byte, 1)
	if _, err := w.Read(buf); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestWindow_PeekThenRead(t *testing.T) {
	m := newTestMapping(t, []byte("hello world"))

	w, err := m.Window(0, 11)
	if err != nil {
		t.Fatalf("Window failed: %v", err)
	}
	defer w.Close()

	peeked, err := w.Peek(5)
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}

	buf := make([]byte, 5)
	if _, err := io.ReadFull(w, buf); err != nil {
		t.Fatalf("ReadFull failed: %v", err)
	}

	if !bytes.Equal(peeked, buf) {
		t.Errorf("Peek %q != Read %q", peeked, buf)
	}
}

func TestWindow_Seek(t *testing.T) {
	m := newTestMapping(t, []byte("0123456789"))

	w, err := m.Window(0, 10)
	if err != nil {
		t.Fatalf("Window failed: %v", err)
	}
	defer w.Close()

	if pos, _ := w.Seek(-3, io.SeekEnd); pos != 7 {
		t.Errorf("SeekEnd(-3): expected 7, got %d", pos)
	}

	got, _ := io.ReadAll(w)
	if string(got) != "789" {
		t.Errorf("expected '789', got %q", got)
	}

	// Negative positions clamp to zero
	if pos, _ := w.Seek(-100, io.SeekStart); pos != 0 {
		t.Errorf("expected clamp to 0, got %d", pos)
	}

	if _, err := w.Seek(0, 99); err != data.ErrInvalid {
		t.Errorf("expected ErrInvalid for bad whence, got %v", err)
	}
}

func TestWindow_SubComposition(t *testing.T) {
	m := newTestMapping(t, []byte("abcdefghij"))

	parent, err := m.Window(2, 6) // "cdefgh"
	if err != nil {
		t.Fatalf("Window failed: %v", err)
	}

	child, err := parent.Sub(1, 3) // "def"
	if err != nil {
		t.Fatalf("Sub failed: %v", err)
	}

	// Parent can close first; the shared mapping stays alive
	if err := parent.Close(); err != nil {
		t.Fatalf("parent Close failed: %v", err)
	}

	got, err := io.ReadAll(child)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(got) != "def" {
		t.Errorf("expected 'def', got %q", got)
	}

	if err := child.Close(); err != nil {
		t.Fatalf("child Close failed: %v", err)
	}
}

func TestWindow_SubRejectsOverrun(t *testing.T) {
	m := newTestMapping(t, []byte("abcdefghij"))

	parent, err := m.Window(0, 5)
	if err != nil {
		t.Fatalf("Window failed: %v", err)
	}
	defer parent.Close()

	if _, err := parent.Sub(3, 3); err != data.ErrInvalid {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
	if _, err := parent.Sub(-1, 2); err != data.ErrInvalid {
		t.Errorf("expected ErrInvalid for negative offset, got %v", err)
	}
}

func TestWindow_ReadAt(t *testing.T) {
	m := newTestMapping(t, []byte("0123456789"))

	w, err := m.Window(2, 6)
	if err != nil {
		t.Fatalf("Window failed: %v", err)
	}
	defer w.Close()

	buf := make([]byte, 3)
	if _, err := w.ReadAt(buf, 1); err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if string(buf) != "345" {
		t.Errorf("expected '345', got %q", buf)
	}

	// Cursor is untouched by ReadAt
	if w.Tell() != 0 {
		t.Errorf("expected cursor 0, got %d", w.Tell())
	}

	if _, err := w.ReadAt(buf, 10); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestWindow_CloseTwice(t *testing.T) {
	m := newTestMapping(t, []byte("abc"))

	w, err := m.Window(0, 3)
	if err != nil {
		t.Fatalf("Window failed: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Close(); err != data.ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
