// Package store keeps terms, objects, autolinks and cached feeds in a
// goleveldb database. Values are msgpack encoded.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/ugorji/go/codec"

	appLog "github.com/WordPressBugBounty/plugins-simple-tags/internal/log"
)

// ErrNotFound is returned when a single record lookup has no match.
var ErrNotFound = errors.New("store: not found")

const dbName = "taxopress.db"

// Store is safe for concurrent use. Mutations are serialized by an internal
// lock; each one is committed as a single leveldb batch.
type Store struct {
	db *leveldb.DB
	mu sync.Mutex
}

// Open opens (or creates) the database under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}
	path := filepath.Join(dir, dbName)
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	appLog.Info("store opened", "path", path)
	return &Store{db: db}, nil
}

// OpenMemory returns a store backed by memory only.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("store: open memory: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func encode(v interface{}) ([]byte, error) {
	var b []byte
	err := codec.NewEncoderBytes(&b, &codec.MsgpackHandle{}).Encode(v)
	return b, err
}

func decode(b []byte, v interface{}) error {
	return codec.NewDecoderBytes(b, &codec.MsgpackHandle{}).Decode(v)
}

func (s *Store) get(key string, v interface{}) error {
	b, err := s.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: get %s: %w", key, err)
	}
	if err := decode(b, v); err != nil {
		return fmt.Errorf("store: decode %s: %w", key, err)
	}
	return nil
}

func put(b *leveldb.Batch, key string, v interface{}) error {
	raw, err := encode(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	b.Put([]byte(key), raw)
	return nil
}

func (s *Store) write(b *leveldb.Batch) error {
	if err := s.db.Write(b, nil); err != nil {
		return fmt.Errorf("store: write batch: %w", err)
	}
	return nil
}

// scan calls fn with every key/value under prefix, in key order.
func (s *Store) scan(prefix string, fn func(key string, value []byte) error) error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	for iter.Next() {
		if err := fn(string(iter.Key()), iter.Value()); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("store: scan %s: %w", prefix, err)
	}
	return nil
}

// keyIDs returns the trailing id of every key under prefix.
func (s *Store) keyIDs(prefix string) ([]int64, error) {
	var ids []int64
	err := s.scan(prefix, func(key string, _ []byte) error {
		id, err := strconv.ParseInt(key[strings.LastIndexByte(key, '/')+1:], 10, 64)
		if err != nil {
			return fmt.Errorf("store: malformed key %q", key)
		}
		ids = append(ids, id)
		return nil
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, err
}

// nextID reserves the next id of kind and records the new counter in b.
func (s *Store) nextID(b *leveldb.Batch, kind string) (int64, error) {
	key := "seq/" + kind
	var n int64
	if err := s.get(key, &n); err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	n++
	return n, put(b, key, n)
}

// Option returns the named option and whether it was set.
func (s *Store) Option(name string) (string, bool, error) {
	var v string
	err := s.get("opt/"+name, &v)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	return v, err == nil, err
}

func (s *Store) SetOption(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := new(leveldb.Batch)
	if err := put(b, "opt/"+name, value); err != nil {
		return err
	}
	return s.write(b)
}
