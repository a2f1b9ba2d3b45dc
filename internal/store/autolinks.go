package store

import (
	"errors"
	"fmt"
	"sort"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/WordPressBugBounty/plugins-simple-tags/internal/model"
)

func autolinkKey(id int64) string { return fmt.Sprintf("autolink/%d", id) }

// Autolinks returns every autolink entry ordered by id.
func (s *Store) Autolinks() ([]model.Autolink, error) {
	var out []model.Autolink
	err := s.scan("autolink/", func(key string, value []byte) error {
		var a model.Autolink
		if err := decode(value, &a); err != nil {
			return fmt.Errorf("store: decode %s: %w", key, err)
		}
		out = append(out, a)
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// SaveAutolink creates (zero ID) or replaces an autolink entry.
func (s *Store) SaveAutolink(a model.Autolink) (model.Autolink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := new(leveldb.Batch)
	if a.ID == 0 {
		id, err := s.nextID(b, "autolink")
		if err != nil {
			return model.Autolink{}, err
		}
		a.ID = id
	}
	if err := put(b, autolinkKey(a.ID), a); err != nil {
		return model.Autolink{}, err
	}
	return a, s.write(b)
}

// DeleteAutolink removes an entry; ErrNotFound when there is none.
func (s *Store) DeleteAutolink(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := []byte(autolinkKey(id))
	if _, err := s.db.Get(key, nil); err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("store: get autolink: %w", err)
	}
	b := new(leveldb.Batch)
	b.Delete(key)
	return s.write(b)
}
