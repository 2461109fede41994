package storage

import (
	"encoding/base64"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"

	"github.com/ipsix/geopolis/internal/logging"
)

type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens a store at path; an empty path keeps everything in memory.
func NewBadgerStore(path string) (*BadgerStore, error) {
	return NewBadgerStoreWithKey(path, "", nil)
}

func NewBadgerStoreWithKey(path string, keyBase64 string, logger *logging.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	if keyBase64 != "" {
		key, err := base64.StdEncoding.DecodeString(keyBase64)
		if err != nil {
			return nil, fmt.Errorf("decode encryption key: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("encryption key must be 32 bytes")
		}
		opts = opts.WithEncryptionKey(key).WithIndexCacheSize(16 << 20)
	}
	if logger != nil {
		opts = opts.WithLogger(badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) Put(bucket, key string, value []byte) error {
	if bucket == "" || key == "" {
		return fmt.Errorf("bucket and key are required")
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(makeKey(bucket, key), value)
	})
}

func (b *BadgerStore) Get(bucket, key string) ([]byte, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("bucket and key are required")
	}
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(makeKey(bucket, key))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte{}, val...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ForEach visits the bucket in ascending key order.
func (b *BadgerStore) ForEach(bucket string, fn func(key, value []byte) error) error {
	if bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	prefix := []byte(bucket + "/")
	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := append([]byte{}, item.Key()[len(prefix):]...)
			if err := item.Value(func(val []byte) error {
				return fn(key, val)
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerStore) Delete(bucket string, keys ...string) error {
	if bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if key == "" {
			return fmt.Errorf("key is required")
		}
		if err := wb.Delete(makeKey(bucket, key)); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return wb.Flush()
}

func (b *BadgerStore) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func makeKey(bucket, key string) []byte {
	return []byte(filepath.ToSlash(bucket + "/" + key))
}

type badgerLogger struct {
	logger *logging.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error("badger", logging.Field{Key: "detail", Value: fmt.Sprintf(format, args...)})
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn("badger", logging.Field{Key: "detail", Value: fmt.Sprintf(format, args...)})
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug("badger", logging.Field{Key: "detail", Value: fmt.Sprintf(format, args...)})
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug("badger", logging.Field{Key: "detail", Value: fmt.Sprintf(format, args...)})
}
