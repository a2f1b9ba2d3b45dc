package store

import (
	"errors"
	"fmt"
	"sort"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/WordPressBugBounty/plugins-simple-tags/internal/model"
)

func objKey(id int64) string { return fmt.Sprintf("obj/%d", id) }

// InsertObject stores o, assigning the next free id when o.ID is zero.
func (s *Store) InsertObject(o model.Object) (model.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := new(leveldb.Batch)
	if o.ID == 0 {
		id, err := s.nextID(b, "obj")
		if err != nil {
			return model.Object{}, err
		}
		o.ID = id
	} else {
		var last int64
		if err := s.get("seq/obj", &last); err != nil && !errors.Is(err, ErrNotFound) {
			return model.Object{}, err
		}
		if o.ID > last {
			if err := put(b, "seq/obj", o.ID); err != nil {
				return model.Object{}, err
			}
		}
	}
	if o.Status == "" {
		o.Status = model.StatusPublish
	}
	if err := put(b, objKey(o.ID), o); err != nil {
		return model.Object{}, err
	}
	return o, s.write(b)
}

func (s *Store) Object(id int64) (model.Object, error) {
	var o model.Object
	err := s.get(objKey(id), &o)
	return o, err
}

// ObjectsByType lists the objects of postType whose status is one of
// statuses (any status when none are given), ordered by id.
func (s *Store) ObjectsByType(postType string, statuses ...string) ([]model.Object, error) {
	var out []model.Object
	err := s.scan("obj/", func(key string, value []byte) error {
		var o model.Object
		if err := decode(value, &o); err != nil {
			return fmt.Errorf("store: decode %s: %w", key, err)
		}
		if postType != "" && o.PostType != postType {
			return nil
		}
		if len(statuses) > 0 && !contains(statuses, o.Status) {
			return nil
		}
		out = append(out, o)
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
