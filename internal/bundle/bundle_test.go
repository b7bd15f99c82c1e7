package bundle

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	kerrors "github.com/sealdrop/sealdrop/internal/errors"
)

func TestMarshalBinaryLayout(t *testing.T) {
	b := &Bundle{Ciphertext: []byte("abc"), WrappedKey: []byte("xy")}
	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}

	want := []byte{3, 0, 0, 0, 0, 0, 0, 0, 'a', 'b', 'c', 2, 0, 0, 0, 0, 0, 0, 0, 'x', 'y'}
	if !bytes.Equal(data, want) {
		t.Errorf("unexpected encoding:\n got %v\nwant %v", data, want)
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	tests := []*Bundle{
		{Ciphertext: []byte("ciphertext"), WrappedKey: bytes.Repeat([]byte{0xAB}, 256)},
		{Ciphertext: []byte{}, WrappedKey: []byte{}},
		{Ciphertext: bytes.Repeat([]byte{0}, 4096), WrappedKey: []byte{1}},
	}
	for _, original := range tests {
		data, _ := original.MarshalBinary()
		parsed, err := Parse(data)
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if !bytes.Equal(parsed.Ciphertext, original.Ciphertext) || !bytes.Equal(parsed.WrappedKey, original.WrappedKey) {
			t.Errorf("round trip mismatch for %d/%d byte bundle", len(original.Ciphertext), len(original.WrappedKey))
		}
	}
}

func TestUnmarshalBinaryRejectsMalformedInput(t *testing.T) {
	valid, _ := (&Bundle{Ciphertext: []byte("abc"), WrappedKey: []byte("xy")}).MarshalBinary()
	huge := binary.LittleEndian.AppendUint64(nil, 1<<62)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short length", valid[:4]},
		{"truncated ciphertext", valid[:10]},
		{"missing wrapped key", valid[:11]},
		{"truncated wrapped key", valid[:len(valid)-1]},
		{"trailing bytes", append(append([]byte(nil), valid...), 0)},
		{"oversized length", append(huge, 'a')},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.data); !errors.Is(err, kerrors.ErrFormat) {
				t.Errorf("expected ErrFormat, got %v", err)
			}
		})
	}
}

func TestPersistCreatesRecipientDirectory(t *testing.T) {
	base := t.TempDir()
	b := &Bundle{Ciphertext: []byte("c"), WrappedKey: []byte("k")}

	path, err := b.Persist(base, "alice", "report.txt")
	if err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if want := filepath.Join(base, "alice", "report.txt"); path != want {
		t.Errorf("Persist returned %q, want %q", path, want)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(loaded.Ciphertext) != "c" || string(loaded.WrappedKey) != "k" {
		t.Errorf("unexpected bundle contents: %+v", loaded)
	}
}

func TestPersistOverwritesAndLeavesNoTempFiles(t *testing.T) {
	base := t.TempDir()

	first := &Bundle{Ciphertext: []byte("first"), WrappedKey: []byte("k1")}
	second := &Bundle{Ciphertext: []byte("second"), WrappedKey: []byte("k2")}
	if _, err := first.Persist(base, "alice", "item"); err != nil {
		t.Fatalf("first Persist failed: %v", err)
	}
	path, err := second.Persist(base, "alice", "item")
	if err != nil {
		t.Fatalf("second Persist failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(loaded.Ciphertext) != "second" {
		t.Errorf("expected the second bundle to win, got %q", loaded.Ciphertext)
	}

	entries, err := os.ReadDir(filepath.Join(base, "alice"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			t.Errorf("temporary file left behind: %s", entry.Name())
		}
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly one bundle, got %d entries", len(entries))
	}
}

func TestPersistFailsWhenRecipientPathIsAFile(t *testing.T) {
	base := t.TempDir()
	if err := os.WriteFile(filepath.Join(base, "alice"), []byte("not a dir"), 0600); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}

	_, err := (&Bundle{}).Persist(base, "alice", "item")
	if !errors.Is(err, kerrors.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	var ioErr *kerrors.IOError
	if !errors.As(err, &ioErr) || ioErr.Path != filepath.Join(base, "alice") {
		t.Errorf("expected IOError naming the recipient directory, got %v", err)
	}
}

func TestPersistRejectsUnsafeNames(t *testing.T) {
	base := t.TempDir()
	for _, name := range []string{"", ".", "..", "a/b", `a\b`} {
		if _, err := (&Bundle{}).Persist(base, name, "item"); !errors.Is(err, kerrors.ErrInvalidName) {
			t.Errorf("recipient %q: expected ErrInvalidName, got %v", name, err)
		}
		if _, err := (&Bundle{}).Persist(base, "alice", name); !errors.Is(err, kerrors.ErrInvalidName) {
			t.Errorf("item %q: expected ErrInvalidName, got %v", name, err)
		}
	}
}

func TestDirWriter(t *testing.T) {
	w := DirWriter{Root: t.TempDir()}
	path, err := w.WriteBundle("bob", "x.bin", &Bundle{Ciphertext: []byte("c"), WrappedKey: []byte("k")})
	if err != nil {
		t.Fatalf("WriteBundle failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("bundle not written: %v", err)
	}
}
