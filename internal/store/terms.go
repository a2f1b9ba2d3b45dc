package store

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/WordPressBugBounty/plugins-simple-tags/internal/model"
)

func termPrefix(tax string) string { return "term/" + tax + "/" }

func termKey(tax string, id int64) string { return fmt.Sprintf("term/%s/%d", tax, id) }

func relPrefix(tax string, term int64) string { return fmt.Sprintf("rel/%s/%d/", tax, term) }

func relKey(tax string, term, obj int64) string { return fmt.Sprintf("rel/%s/%d/%d", tax, term, obj) }

func orelPrefix(obj int64, tax string) string { return fmt.Sprintf("orel/%d/%s/", obj, tax) }

func orelKey(obj int64, tax string, term int64) string {
	return fmt.Sprintf("orel/%d/%s/%d", obj, tax, term)
}

// Slugify lowercases name and joins its letter and digit runs with dashes.
func Slugify(name string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && sb.Len() > 0 {
				sb.WriteByte('-')
			}
			dash = false
			sb.WriteRune(r)
			continue
		}
		dash = true
	}
	return sb.String()
}

// Terms lists the terms of tax ordered by id.
func (s *Store) Terms(tax string) ([]model.Term, error) {
	var out []model.Term
	err := s.scan(termPrefix(tax), func(key string, value []byte) error {
		var t model.Term
		if err := decode(value, &t); err != nil {
			return fmt.Errorf("store: decode %s: %w", key, err)
		}
		out = append(out, t)
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (s *Store) Term(tax string, id int64) (model.Term, error) {
	var t model.Term
	err := s.get(termKey(tax, id), &t)
	return t, err
}

// TermsByName returns every term of tax whose name equals name, ignoring
// case. Names are not unique; slugs are.
func (s *Store) TermsByName(tax, name string) ([]model.Term, error) {
	name = strings.TrimSpace(name)
	all, err := s.Terms(tax)
	if err != nil {
		return nil, err
	}
	var out []model.Term
	for _, t := range all {
		if strings.EqualFold(t.Name, name) {
			out = append(out, t)
		}
	}
	return out, nil
}

// TermByName returns the oldest term named name.
func (s *Store) TermByName(tax, name string) (model.Term, error) {
	terms, err := s.TermsByName(tax, name)
	if err != nil {
		return model.Term{}, err
	}
	if len(terms) == 0 {
		return model.Term{}, ErrNotFound
	}
	return terms[0], nil
}

// TermExists looks value up as a slug first, then as a name.
func (s *Store) TermExists(tax, value string) (model.Term, bool, error) {
	all, err := s.Terms(tax)
	if err != nil {
		return model.Term{}, false, err
	}
	slug := Slugify(value)
	for _, t := range all {
		if t.Slug == value || (slug != "" && t.Slug == slug) {
			return t, true, nil
		}
	}
	for _, t := range all {
		if strings.EqualFold(t.Name, strings.TrimSpace(value)) {
			return t, true, nil
		}
	}
	return model.Term{}, false, nil
}

// TermsWithCountBelow returns the terms of tax attached to fewer than n
// objects.
func (s *Store) TermsWithCountBelow(tax string, n int) ([]model.Term, error) {
	all, err := s.Terms(tax)
	if err != nil {
		return nil, err
	}
	var out []model.Term
	for _, t := range all {
		if t.Count < n {
			out = append(out, t)
		}
	}
	return out, nil
}

// InsertTerm creates a term. The slug is derived from name and suffixed
// with -2, -3, ... when already taken in tax.
func (s *Store) InsertTerm(tax, name string) (model.Term, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertTerm(tax, name)
}

func (s *Store) insertTerm(tax, name string) (model.Term, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Term{}, errors.New("store: empty term name")
	}
	all, err := s.Terms(tax)
	if err != nil {
		return model.Term{}, err
	}
	taken := make(map[string]bool, len(all))
	for _, t := range all {
		taken[t.Slug] = true
	}
	base := Slugify(name)
	if base == "" {
		base = "term"
	}
	slug := base
	for i := 2; taken[slug]; i++ {
		slug = base + "-" + strconv.Itoa(i)
	}

	b := new(leveldb.Batch)
	id, err := s.nextID(b, "term")
	if err != nil {
		return model.Term{}, err
	}
	t := model.Term{ID: id, Taxonomy: tax, Name: name, Slug: slug}
	if err := put(b, termKey(tax, id), t); err != nil {
		return model.Term{}, err
	}
	return t, s.write(b)
}

// DeleteTerm removes a term and detaches it from every object.
func (s *Store) DeleteTerm(tax string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.Term(tax, id); err != nil {
		return err
	}
	objs, err := s.keyIDs(relPrefix(tax, id))
	if err != nil {
		return err
	}
	b := new(leveldb.Batch)
	for _, obj := range objs {
		b.Delete([]byte(relKey(tax, id, obj)))
		b.Delete([]byte(orelKey(obj, tax, id)))
	}
	b.Delete([]byte(termKey(tax, id)))
	return s.write(b)
}

// ObjectsInTerms returns the ids of the objects attached to any of terms.
func (s *Store) ObjectsInTerms(tax string, terms []int64) ([]int64, error) {
	seen := make(map[int64]bool)
	var out []int64
	for _, term := range terms {
		objs, err := s.keyIDs(relPrefix(tax, term))
		if err != nil {
			return nil, err
		}
		for _, obj := range objs {
			if !seen[obj] {
				seen[obj] = true
				out = append(out, obj)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ObjectTerms returns the terms of tax attached to obj.
func (s *Store) ObjectTerms(obj int64, tax string) ([]model.Term, error) {
	ids, err := s.keyIDs(orelPrefix(obj, tax))
	if err != nil {
		return nil, err
	}
	out := make([]model.Term, 0, len(ids))
	for _, id := range ids {
		t, err := s.Term(tax, id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// SetObjectTerms attaches the terms named by values (slugs or names) to
// obj, creating missing ones. Without appendTerms, terms of tax not listed
// are detached. It returns the ids of the listed terms.
func (s *Store) SetObjectTerms(obj int64, tax string, values []string, appendTerms bool) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	want := make(map[int64]bool)
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		t, ok, err := s.TermExists(tax, v)
		if err != nil {
			return nil, err
		}
		if !ok {
			if t, err = s.insertTerm(tax, v); err != nil {
				return nil, err
			}
		}
		if !want[t.ID] {
			want[t.ID] = true
			ids = append(ids, t.ID)
		}
	}

	current, err := s.keyIDs(orelPrefix(obj, tax))
	if err != nil {
		return nil, err
	}
	have := make(map[int64]bool, len(current))
	for _, id := range current {
		have[id] = true
	}

	b := new(leveldb.Batch)
	for _, id := range ids {
		if have[id] {
			continue
		}
		if err := s.attach(b, obj, tax, id, 1); err != nil {
			return nil, err
		}
	}
	if !appendTerms {
		for _, id := range current {
			if want[id] {
				continue
			}
			if err := s.attach(b, obj, tax, id, -1); err != nil {
				return nil, err
			}
		}
	}
	return ids, s.write(b)
}

// RemoveObjectTerms detaches the terms named by values from obj. Unknown
// terms are ignored; removed reports whether anything was detached.
func (s *Store) RemoveObjectTerms(obj int64, tax string, values []string) (removed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := new(leveldb.Batch)
	done := make(map[int64]bool)
	for _, v := range values {
		t, ok, err := s.TermExists(tax, v)
		if err != nil {
			return false, err
		}
		if !ok || done[t.ID] {
			continue
		}
		done[t.ID] = true
		if _, err := s.db.Get([]byte(orelKey(obj, tax, t.ID)), nil); err != nil {
			if errors.Is(err, leveldb.ErrNotFound) {
				continue
			}
			return false, fmt.Errorf("store: get relationship: %w", err)
		}
		if err := s.attach(b, obj, tax, t.ID, -1); err != nil {
			return false, err
		}
		removed = true
	}
	if !removed {
		return false, nil
	}
	return true, s.write(b)
}

// attach records (delta 1) or drops (delta -1) one relationship in b along
// with the term's new count.
func (s *Store) attach(b *leveldb.Batch, obj int64, tax string, term int64, delta int) error {
	t, err := s.Term(tax, term)
	if err != nil {
		return err
	}
	if delta > 0 {
		b.Put([]byte(relKey(tax, term, obj)), nil)
		b.Put([]byte(orelKey(obj, tax, term)), nil)
	} else {
		b.Delete([]byte(relKey(tax, term, obj)))
		b.Delete([]byte(orelKey(obj, tax, term)))
	}
	t.Count += delta
	if t.Count < 0 {
		t.Count = 0
	}
	return put(b, termKey(tax, term), t)
}
