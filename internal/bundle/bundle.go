package bundle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	kerrors "github.com/sealdrop/sealdrop/internal/errors"
)

// lengthSize is the width of each length prefix.
const lengthSize = 8

// Bundle pairs a payload encrypted under a one-time key with that key
// wrapped for exactly one recipient. It carries no recipient identifier;
// the recipient is implied by where the bundle is stored.
type Bundle struct {
	Ciphertext []byte
	WrappedKey []byte
}

// MarshalBinary encodes the bundle as
//
//	u64le len(Ciphertext) | Ciphertext | u64le len(WrappedKey) | WrappedKey
//
// which matches the bincode layout of the original relay.
func (b *Bundle) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 2*lengthSize+len(b.Ciphertext)+len(b.WrappedKey))
	out = binary.LittleEndian.AppendUint64(out, uint64(len(b.Ciphertext)))
	out = append(out, b.Ciphertext...)
	out = binary.LittleEndian.AppendUint64(out, uint64(len(b.WrappedKey)))
	out = append(out, b.WrappedKey...)
	return out, nil
}

// UnmarshalBinary decodes data produced by MarshalBinary. Truncated fields,
// oversized lengths and trailing bytes are reported as ErrFormat.
func (b *Bundle) UnmarshalBinary(data []byte) error {
	ciphertext, rest, err := readField(data, "ciphertext")
	if err != nil {
		return err
	}
	wrappedKey, rest, err := readField(rest, "wrapped key")
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("%w: %d trailing bytes", kerrors.ErrFormat, len(rest))
	}

	b.Ciphertext = ciphertext
	b.WrappedKey = wrappedKey
	return nil
}

func readField(data []byte, name string) (field, rest []byte, err error) {
	if len(data) < lengthSize {
		return nil, nil, fmt.Errorf("%w: truncated %s length", kerrors.ErrFormat, name)
	}
	n := binary.LittleEndian.Uint64(data[:lengthSize])
	data = data[lengthSize:]
	if n > uint64(len(data)) {
		return nil, nil, fmt.Errorf("%w: %s length %d exceeds remaining %d bytes", kerrors.ErrFormat, name, n, len(data))
	}
	field = make([]byte, n)
	copy(field, data[:n])
	return field, data[n:], nil
}

// Parse decodes a serialized bundle.
func Parse(data []byte) (*Bundle, error) {
	b := &Bundle{}
	if err := b.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return b, nil
}

// Load reads and decodes the bundle stored at path.
func Load(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kerrors.NewIOError("read", path, err)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// ValidateName reports whether name can be used as a single path element
// below an output directory.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", kerrors.ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`), strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q contains a path separator", kerrors.ErrInvalidName, name)
	}
	return nil
}

// Persist writes the bundle to base/recipient/item, creating the recipient
// directory when it is missing. The bundle is written to a hidden temporary
// file and renamed into place, so an existing bundle for the same item is
// replaced atomically and watchers never observe a partial file.
func (b *Bundle) Persist(base, recipient, item string) (string, error) {
	if err := ValidateName(recipient); err != nil {
		return "", err
	}
	if err := ValidateName(item); err != nil {
		return "", err
	}

	dir := filepath.Join(base, recipient)
	if err := EnsureDir(dir); err != nil {
		return "", err
	}

	data, err := b.MarshalBinary()
	if err != nil {
		return "", err
	}
	return WriteFileAtomic(dir, item, data)
}

// WriteFileAtomic writes data to dir/name through a hidden temporary file
// that is synced and renamed over the target.
func WriteFileAtomic(dir, name string, data []byte) (string, error) {
	target := filepath.Join(dir, name)
	tmp := filepath.Join(dir, "."+name+"."+uuid.NewString()+".tmp")

	if err := writeFileSync(tmp, data); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return "", kerrors.NewIOError("rename", target, err)
	}
	return target, nil
}

// EnsureDir creates dir (not its parents) with mode 0700 when it is
// missing. An existing non-directory at dir is an error.
func EnsureDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		return kerrors.NewIOError("mkdir", dir, fmt.Errorf("exists and is not a directory"))
	case errors.Is(err, fs.ErrNotExist):
		if err := os.Mkdir(dir, 0700); err != nil && !errors.Is(err, fs.ErrExist) {
			return kerrors.NewIOError("mkdir", dir, err)
		}
		return nil
	default:
		return kerrors.NewIOError("stat", dir, err)
	}
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return kerrors.NewIOError("create", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return kerrors.NewIOError("write", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return kerrors.NewIOError("sync", path, err)
	}
	if err := f.Close(); err != nil {
		return kerrors.NewIOError("close", path, err)
	}
	return nil
}

// DirWriter persists bundles below Root, one subdirectory per recipient.
type DirWriter struct {
	Root string
}

// WriteBundle implements the encryption pipeline's bundle writer.
func (w DirWriter) WriteBundle(recipient, item string, b *Bundle) (string, error) {
	return b.Persist(w.Root, recipient, item)
}
