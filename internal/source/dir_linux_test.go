//go:build linux

package source

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	kerrors "github.com/sealdrop/sealdrop/internal/errors"
	"golang.org/x/sys/unix"
)

func newTestDirSource(t *testing.T, dir string) *DirSource {
	t.Helper()
	s, err := NewDirSource(dir, Options{})
	if err != nil {
		t.Fatalf("NewDirSource failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func nextWithin(t *testing.T, s Source, d time.Duration) Item {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	item, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	return item
}

func TestDirSourceDeliversAndConfirms(t *testing.T) {
	dir := t.TempDir()
	s := newTestDirSource(t, dir)

	if s.State() != Ready {
		t.Fatalf("State = %s, want ready", s.State())
	}

	if err := os.WriteFile(filepath.Join(dir, "report.txt"), []byte("hello world"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	item := nextWithin(t, s, 5*time.Second)
	if item.ID != "report.txt" || string(item.Payload) != "hello world" {
		t.Fatalf("Next = %q/%q, want report.txt/hello world", item.ID, item.Payload)
	}

	// Next does not remove the file.
	if _, err := os.Stat(filepath.Join(dir, "report.txt")); err != nil {
		t.Fatalf("file should still exist before Confirm: %v", err)
	}

	if err := s.Confirm(item.ID); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "report.txt")); !os.IsNotExist(err) {
		t.Fatalf("file should be removed after Confirm, stat err = %v", err)
	}

	if err := s.Confirm(item.ID); !errors.Is(err, kerrors.ErrUnknownItem) {
		t.Fatalf("second Confirm = %v, want ErrUnknownItem", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := s.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Next on empty directory = %v, want deadline exceeded", err)
	}
}

func TestDirSourceDeliversExistingFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	ages := map[string]time.Duration{"second": time.Minute, "first": 0, "third": 2 * time.Minute}
	for name, age := range ages {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(name), 0600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		mtime := base.Add(age)
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatalf("Chtimes %s failed: %v", name, err)
		}
	}

	s := newTestDirSource(t, dir)
	for _, want := range []string{"first", "second", "third"} {
		item := nextWithin(t, s, 5*time.Second)
		if item.ID != want {
			t.Fatalf("Next = %q, want %q", item.ID, want)
		}
	}
}

func TestDirSourceWaitsForOpenWriter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.bin")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString("part1-"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	s := newTestDirSource(t, dir)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	item, err := s.Next(ctx)
	cancel()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Next = %q, %v; want deadline exceeded while the writer is open", item.Payload, err)
	}

	if _, err := f.WriteString("part2"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	item = nextWithin(t, s, 5*time.Second)
	if item.ID != "big.bin" || string(item.Payload) != "part1-part2" {
		t.Fatalf("Next = %q/%q, want big.bin/part1-part2", item.ID, item.Payload)
	}
}

func TestOpenForWriting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !openForWriting(path) {
		t.Error("openForWriting = false with a writer attached")
	}
	f.Close()
	if openForWriting(path) {
		t.Error("openForWriting = true after the writer closed")
	}
	if openForWriting(filepath.Join(t.TempDir(), "missing")) {
		t.Error("openForWriting = true for a missing file")
	}
}

func TestDirSourceIgnoresHiddenFiles(t *testing.T) {
	dir := t.TempDir()
	s := newTestDirSource(t, dir)

	if err := os.WriteFile(filepath.Join(dir, ".partial.tmp"), []byte("x"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.Rename(filepath.Join(dir, ".partial.tmp"), filepath.Join(dir, "done.bin")); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}

	item := nextWithin(t, s, 5*time.Second)
	if item.ID != "done.bin" {
		t.Fatalf("Next = %q, want done.bin", item.ID)
	}
}

func TestDirSourceWatcherStopsWhenDirectoryRemoved(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "drop")
	if err := os.Mkdir(dir, 0700); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	s := newTestDirSource(t, dir)

	if err := os.Remove(dir); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.Next(ctx)
	if !errors.Is(err, kerrors.ErrWatcherStopped) {
		t.Fatalf("Next = %v, want ErrWatcherStopped", err)
	}
	if s.State() != Failed {
		t.Errorf("State = %s, want failed", s.State())
	}
}

func TestDirSourceClose(t *testing.T) {
	s := newTestDirSource(t, t.TempDir())

	errs := make(chan error, 1)
	go func() {
		_, err := s.Next(context.Background())
		errs <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case err := <-errs:
		if !errors.Is(err, kerrors.ErrSourceClosed) {
			t.Fatalf("Next after Close = %v, want ErrSourceClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Next did not return after Close")
	}
}

func TestNewDirSourceRejectsMissingOrFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewDirSource(filepath.Join(dir, "missing"), Options{}); !errors.Is(err, kerrors.ErrIO) {
		t.Errorf("missing directory error = %v, want ErrIO", err)
	}

	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, nil, 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := NewDirSource(file, Options{}); !errors.Is(err, kerrors.ErrInvalidSource) {
		t.Errorf("regular file error = %v, want ErrInvalidSource", err)
	}
}

func rawEvent(mask uint32, name string) []byte {
	nameLength := 0
	if name != "" {
		nameLength = (len(name) + 16) &^ 15
	}
	event := make([]byte, unix.SizeofInotifyEvent+nameLength)
	binary.NativeEndian.PutUint32(event[4:8], mask)
	binary.NativeEndian.PutUint32(event[12:16], uint32(nameLength))
	copy(event[unix.SizeofInotifyEvent:], name)
	return event
}

func TestDispatchEvents(t *testing.T) {
	var names []string
	emit := func(name string) { names = append(names, name) }

	var buffer []byte
	buffer = append(buffer, rawEvent(unix.IN_CLOSE_WRITE, "a.txt")...)
	buffer = append(buffer, rawEvent(unix.IN_MOVED_TO, "b.txt")...)
	buffer = append(buffer, rawEvent(unix.IN_MOVED_TO|unix.IN_ISDIR, "subdir")...)
	if err := dispatchEvents(buffer, emit); err != nil {
		t.Fatalf("dispatchEvents failed: %v", err)
	}
	if len(names) != 2 || names[0] != "a.txt" || names[1] != "b.txt" {
		t.Fatalf("emitted %v, want [a.txt b.txt]", names)
	}

	if err := dispatchEvents(rawEvent(unix.IN_DELETE_SELF, ""), emit); !errors.Is(err, errWatchRemoved) {
		t.Errorf("IN_DELETE_SELF = %v, want errWatchRemoved", err)
	}
	if err := dispatchEvents(rawEvent(unix.IN_Q_OVERFLOW, ""), emit); err == nil {
		t.Error("IN_Q_OVERFLOW should stop the watcher")
	}
}
