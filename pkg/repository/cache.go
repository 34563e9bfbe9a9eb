package repository

import (
	"encoding/binary"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pingcap/errors"
)

var listingsBucket = []byte("listings")

// ListingCache keeps the last fetched listing document of each remote
// repository in a BoltDB file, so listings can be reused while fresh and
// served stale when the repository is unreachable.
//
// Values are stored as an 8 byte big-endian unix timestamp followed by the
// raw document. Methods are safe for concurrent use, except Close.
type ListingCache struct {
	db     *bolt.DB
	logger *slog.Logger
}

// OpenListingCache opens (creating if needed) the cache database in dir.
func OpenListingCache(dir string, logger *slog.Logger) (*ListingCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if fi, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create listing cache directory: %s", dir)
		}
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to check listing cache directory: %s", dir)
	} else if !fi.IsDir() {
		return nil, errors.Errorf("listing cache path is not a directory: %s", dir)
	}
	path := filepath.Join(dir, "listings.db")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "bolt.Open(%q)", path)
	}
	return &ListingCache{db: db, logger: logger}, nil
}

func (c *ListingCache) Close() error {
	return errors.Wrapf(c.db.Close(), "error closing Bolt database %q", c.db.String())
}

// Get returns the cached document for key and when it was stored. ok is false
// when nothing is cached.
func (c *ListingCache) Get(key string) (data []byte, stored time.Time, ok bool, err error) {
	err = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(listingsBucket)
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if len(v) < 8 {
			return nil
		}
		stored = time.Unix(int64(binary.BigEndian.Uint64(v[:8])), 0) //nolint:gosec
		// bolt values are only valid inside the transaction
		data = append([]byte(nil), v[8:]...)
		ok = true
		return nil
	})
	if err != nil {
		return nil, time.Time{}, false, errors.Wrapf(err, "reading cached listing %q", key)
	}
	return data, stored, ok, nil
}

// Put stores data for key, stamped with now.
func (c *ListingCache) Put(key string, data []byte, now time.Time) error {
	v := make([]byte, 8, 8+len(data))
	binary.BigEndian.PutUint64(v, uint64(now.Unix())) //nolint:gosec
	v = append(v, data...)
	err := c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(listingsBucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), v)
	})
	if err != nil {
		return errors.Wrapf(err, "caching listing %q", key)
	}
	c.logger.Debug("cached listing", "key", key, "bytes", len(data))
	return nil
}

// Delete drops the cached document for key, if any.
func (c *ListingCache) Delete(key string) error {
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(listingsBucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
	return errors.Wrapf(err, "deleting cached listing %q", key)
}
