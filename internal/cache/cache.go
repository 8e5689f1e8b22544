// Package cache is a small on-disk cache for checker responses. Entries are
// zstd-compressed files named by the xxhash of their key and expire by
// modification time.
package cache

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgerlanc/safety-check/internal/constants"
	"github.com/dgerlanc/safety-check/internal/logger"
	"github.com/klauspost/compress/zstd"
	"go.trai.ch/zerr"
)

const fileExt = ".zst"

var (
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
	codecOnce   sync.Once
	errKeyClash = errors.New("cache key mismatch")
)

func codecs() (*zstd.Encoder, *zstd.Decoder) {
	codecOnce.Do(func() {
		// Neither constructor fails without options.
		encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		decoder, _ = zstd.NewReader(nil)
	})
	return encoder, decoder
}

// DefaultDir returns SAFETY_CHECK_CACHE_DIR, or safety-check under the user
// cache directory.
func DefaultDir() (string, error) {
	if dir := os.Getenv(constants.EnvCacheDir); dir != "" {
		return dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user cache directory: %w", err)
	}
	return filepath.Join(base, constants.AppName), nil
}

// Cache stores byte blobs under string keys for a fixed TTL.
// A Cache with a zero or negative TTL stores nothing and never hits.
type Cache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// New returns a cache rooted at dir.
func New(dir string, ttl time.Duration) *Cache {
	return &Cache{dir: dir, ttl: ttl, now: time.Now}
}

// Enabled reports whether the cache stores anything.
func (c *Cache) Enabled() bool {
	return c != nil && c.ttl > 0 && c.dir != ""
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%016x%s", xxhash.Sum64String(key), fileExt))
}

// Get returns the data stored under key if it is younger than the TTL.
// Unreadable or corrupt entries count as misses.
func (c *Cache) Get(key string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}

	path := c.path(key)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if c.now().Sub(info.ModTime()) > c.ttl {
		logger.Debug("cache entry expired", "key", key, "age", c.now().Sub(info.ModTime()))
		return nil, false
	}

	data, err := c.read(path, key)
	if err != nil {
		logger.Debug("cache entry unreadable", "key", key, "error", err)
		return nil, false
	}
	return data, true
}

func (c *Cache) read(path, key string) ([]byte, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read cache entry"), "path", path)
	}
	_, dec := codecs()
	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to decompress cache entry"), "path", path)
	}

	stored, data, ok := bytes.Cut(raw, []byte{'\n'})
	if !ok || string(stored) != key {
		return nil, zerr.With(errKeyClash, "path", path)
	}
	return data, nil
}

// Put stores data under key. The file is written to a temporary name and
// renamed into place.
func (c *Cache) Put(key string, data []byte) error {
	if !c.Enabled() {
		return nil
	}
	if err := os.MkdirAll(c.dir, constants.DirMode); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create cache directory"), "dir", c.dir)
	}

	raw := make([]byte, 0, len(key)+1+len(data))
	raw = append(raw, key...)
	raw = append(raw, '\n')
	raw = append(raw, data...)
	enc, _ := codecs()
	compressed := enc.EncodeAll(raw, nil)

	tmp, err := os.CreateTemp(c.dir, "entry-*.tmp")
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create cache entry"), "dir", c.dir)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return zerr.With(zerr.Wrap(err, "failed to write cache entry"), "path", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return zerr.With(zerr.Wrap(err, "failed to write cache entry"), "path", tmpName)
	}
	if err := os.Rename(tmpName, c.path(key)); err != nil {
		os.Remove(tmpName)
		return zerr.With(zerr.Wrap(err, "failed to store cache entry"), "key", key)
	}
	return nil
}
