package secrets

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	kerrors "github.com/sealdrop/sealdrop/internal/errors"
	logger "github.com/sealdrop/sealdrop/internal/logging"
)

// maxKeyDocumentSize bounds how much of a key response is read.
const maxKeyDocumentSize = 64 << 10

// DefaultFetchTimeout bounds a single key retrieval over HTTP.
const DefaultFetchTimeout = 30 * time.Second

// FetchPublicKey retrieves and parses a public key document from location,
// which is an http(s) URL, a file:// URL or a local path. Retrieval failures
// are reported as ErrFetch and parse failures as ErrParse.
func FetchPublicKey(ctx context.Context, client *http.Client, location string) (*PublicKeyFile, error) {
	data, err := fetchDocument(ctx, client, location)
	if err != nil {
		return nil, err
	}
	return ParsePublicKey(data)
}

func fetchDocument(ctx context.Context, client *http.Client, location string) ([]byte, error) {
	u, err := url.Parse(location)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return fetchHTTP(ctx, client, location)
	}

	path := location
	if err == nil && u.Scheme == "file" {
		path = u.Path
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w from %s: %w", kerrors.ErrFetch, path, err)
	}
	return data, nil
}

func fetchHTTP(ctx context.Context, client *http.Client, location string) ([]byte, error) {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("%w from %s: %w", kerrors.ErrFetch, location, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w from %s: %w", kerrors.ErrFetch, location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w from %s: unexpected status %s", kerrors.ErrFetch, location, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxKeyDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("%w from %s: %w", kerrors.ErrFetch, location, err)
	}
	return data, nil
}

// KeyFetcher resolves recipients' public keys and caches them for the
// lifetime of the process. When CacheDir is set, fetched documents are also
// stored as <CacheDir>/<name>.json together with the location they came
// from, and read from there before going to the network. An entry recorded
// for a different location is refetched.
type KeyFetcher struct {
	Client   *http.Client
	CacheDir string
	Logger   logger.Logger

	mu    sync.Mutex
	cache map[string]*rsa.PublicKey
}

// PublicKey returns the public key of the recipient called name, whose key
// document lives at location.
func (f *KeyFetcher) PublicKey(ctx context.Context, name, location string) (*rsa.PublicKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if pub, ok := f.cache[location]; ok {
		return pub, nil
	}

	doc, err := f.fromDisk(name, location)
	if err != nil {
		return nil, err
	}
	fetched := doc == nil
	if fetched {
		f.Logger.Infof("Fetching key for %s from %s", name, location)
		doc, err = FetchPublicKey(ctx, f.Client, location)
		if err != nil {
			return nil, err
		}
	}

	pub, err := doc.ToRSA()
	if err != nil {
		return nil, fmt.Errorf("key for %s: %w", name, err)
	}

	if fetched {
		if err := f.toDisk(name, location, doc); err != nil {
			f.Logger.Warnf("Failed to cache key for %s: %v", name, err)
		}
	}

	if f.cache == nil {
		f.cache = make(map[string]*rsa.PublicKey)
	}
	f.cache[location] = pub
	return pub, nil
}

func (f *KeyFetcher) cachePath(name string) string {
	return filepath.Join(f.CacheDir, name+".json")
}

// cachedKey is the on-disk form of a cache entry.
type cachedKey struct {
	Location string          `json:"location"`
	Key      json.RawMessage `json:"key"`
}

func (f *KeyFetcher) fromDisk(name, location string) (*PublicKeyFile, error) {
	if f.CacheDir == "" {
		return nil, nil
	}
	path := f.cachePath(name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, kerrors.NewIOError("read", path, err)
	}

	var entry cachedKey
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: cached key %s: %v", kerrors.ErrParse, path, err)
	}
	if entry.Location != location {
		f.Logger.Warnf("Cached key for %s came from %q, refetching from %q", name, entry.Location, location)
		return nil, nil
	}

	f.Logger.Debugf("Using cached key for %s from %s", name, path)
	doc, err := ParsePublicKey(entry.Key)
	if err != nil {
		return nil, fmt.Errorf("cached key %s: %w", path, err)
	}
	return doc, nil
}

func (f *KeyFetcher) toDisk(name, location string, doc *PublicKeyFile) error {
	if f.CacheDir == "" {
		return nil
	}
	key, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.CacheDir, 0700); err != nil {
		return kerrors.NewIOError("mkdir", f.CacheDir, err)
	}
	return writeJSON(f.cachePath(name), cachedKey{Location: location, Key: key}, 0644)
}
