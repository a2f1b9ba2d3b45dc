package store

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
)

// FeedEntry is the cached copy of a remote calendar feed.
type FeedEntry struct {
	URL          string `codec:"url"`
	ETag         string `codec:"etag"`
	LastModified string `codec:"last_modified"`
	Body         []byte `codec:"body"`

	// UpdatedAt is a unix timestamp (seconds).
	UpdatedAt int64 `codec:"updated_at"`
}

// LoadFeed returns the cached feed stored under key.
func (s *Store) LoadFeed(key string) (FeedEntry, bool, error) {
	var e FeedEntry
	err := s.get("feed/"+key, &e)
	if errors.Is(err, ErrNotFound) {
		return FeedEntry{}, false, nil
	}
	if err != nil {
		return FeedEntry{}, false, err
	}
	return e, true, nil
}

func (s *Store) SaveFeed(key string, e FeedEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := new(leveldb.Batch)
	if err := put(b, "feed/"+key, e); err != nil {
		return err
	}
	return s.write(b)
}
