package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/zeromv/zeromv/pkg/errors"
)

// entryMagic starts every file cache entry. The header is the magic
// followed by the expiry as big-endian Unix nanoseconds, 0 for none.
var entryMagic = []byte("ZMVC1\n")

const headerSize = 6 + 8

// FileCache stores composites as files under a directory, sharded by the
// first two hex characters of the hashed key. Entries hold the raw bytes
// behind a fixed header, so a cached PNG costs its own size on disk.
type FileCache struct {
	dir string
}

// NewFileCache opens a cache rooted at dir, creating it when missing.
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "create cache directory %s", dir)
	}
	return &FileCache{dir: dir}, nil
}

// Dir returns the cache directory.
func (c *FileCache) Dir() string { return c.dir }

func encodeEntry(data []byte, expires time.Time) []byte {
	buf := make([]byte, headerSize, headerSize+len(data))
	copy(buf, entryMagic)
	var ns int64
	if !expires.IsZero() {
		ns = expires.UnixNano()
	}
	binary.BigEndian.PutUint64(buf[len(entryMagic):], uint64(ns))
	return append(buf, data...)
}

// decodeEntry splits a stored entry. ok is false for foreign or truncated
// files.
func decodeEntry(raw []byte) (data []byte, expires time.Time, ok bool) {
	if len(raw) < headerSize || !bytes.HasPrefix(raw, entryMagic) {
		return nil, time.Time{}, false
	}
	if ns := int64(binary.BigEndian.Uint64(raw[len(entryMagic):headerSize])); ns != 0 {
		expires = time.Unix(0, ns)
	}
	return raw[headerSize:], expires, true
}

// Get returns the entry for key. Corrupt and expired entries are removed
// and reported as misses.
func (c *FileCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	path := c.path(key)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(errors.ErrCodeStorage, err, "read cache entry")
	}

	data, expires, ok := decodeEntry(raw)
	if !ok || (!expires.IsZero() && time.Now().After(expires)) {
		_ = os.Remove(path)
		return nil, false, nil
	}
	return data, true, nil
}

// Set stores data under key. The entry is written to a temporary file in
// the shard and renamed into place, so readers never see a partial entry.
func (c *FileCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}

	path := c.path(key)
	shard := filepath.Dir(path)
	if err := os.MkdirAll(shard, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "create cache shard")
	}

	tmp, err := os.CreateTemp(shard, ".tmp-*")
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "create cache entry")
	}
	_, err = tmp.Write(encodeEntry(data, expires))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(errors.ErrCodeStorage, err, "write cache entry")
	}
	return nil
}

// Delete removes the entry for key. A missing entry is not an error.
func (c *FileCache) Delete(ctx context.Context, key string) error {
	if err := os.Remove(c.path(key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.ErrCodeStorage, err, "delete cache entry")
	}
	return nil
}

// Clear removes every shard. Files the cache did not create, and the cache
// directory itself, are left alone.
func (c *FileCache) Clear(ctx context.Context) error {
	entries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "list cache directory")
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.IsDir() || !isShard(e.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(c.dir, e.Name())); err != nil {
			return errors.Wrap(errors.ErrCodeStorage, err, "clear cache shard %s", e.Name())
		}
	}
	return nil
}

func (c *FileCache) Close() error { return nil }

// path maps a key to <dir>/<h[0:2]>/<h[2:]>.bin.
func (c *FileCache) path(key string) string {
	h := Hash([]byte(key))
	return filepath.Join(c.dir, h[:2], h[2:]+".bin")
}

func isShard(name string) bool {
	if len(name) != 2 {
		return false
	}
	_, err := hex.DecodeString(name)
	return err == nil
}

var (
	_ Cache   = (*FileCache)(nil)
	_ Clearer = (*FileCache)(nil)
)
