package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WordPressBugBounty/plugins-simple-tags/internal/model"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Hello World":      "hello-world",
		"  Go, Lang!  ":    "go-lang",
		"déjà vu":          "déjà-vu",
		"C++ & Rust 2024":  "c-rust-2024",
		"---":              "",
		"already-sluggish": "already-sluggish",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestInsertTermUniqueSlug(t *testing.T) {
	s := newStore(t)

	a, err := s.InsertTerm("post_tag", "Foo")
	require.NoError(t, err)
	b, err := s.InsertTerm("post_tag", "foo")
	require.NoError(t, err)
	c, err := s.InsertTerm("category", "Foo")
	require.NoError(t, err)

	assert.Equal(t, "foo", a.Slug)
	assert.Equal(t, "foo-2", b.Slug)
	assert.Equal(t, "foo", c.Slug)
	assert.NotEqual(t, a.ID, b.ID)

	same, err := s.TermsByName("post_tag", " FOO ")
	require.NoError(t, err)
	assert.Len(t, same, 2)

	first, err := s.TermByName("post_tag", "foo")
	require.NoError(t, err)
	assert.Equal(t, a.ID, first.ID)

	_, err = s.TermByName("post_tag", "bar")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.InsertTerm("post_tag", "  ")
	assert.Error(t, err)
}

func TestObjectTermsAndCounts(t *testing.T) {
	s := newStore(t)
	post, err := s.InsertObject(model.Object{PostType: "post", Title: "one"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPublish, post.Status)

	ids, err := s.SetObjectTerms(post.ID, "post_tag", []string{"go", "leveldb", "go"}, true)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	terms, err := s.ObjectTerms(post.ID, "post_tag")
	require.NoError(t, err)
	require.Len(t, terms, 2)
	for _, term := range terms {
		assert.Equal(t, 1, term.Count, term.Name)
	}

	// replace mode drops terms not listed
	_, err = s.SetObjectTerms(post.ID, "post_tag", []string{"go"}, false)
	require.NoError(t, err)
	terms, err = s.ObjectTerms(post.ID, "post_tag")
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, "go", terms[0].Name)

	ldb, err := s.TermByName("post_tag", "leveldb")
	require.NoError(t, err)
	assert.Equal(t, 0, ldb.Count)

	removed, err := s.RemoveObjectTerms(post.ID, "post_tag", []string{"go", "missing"})
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.RemoveObjectTerms(post.ID, "post_tag", []string{"go"})
	require.NoError(t, err)
	assert.False(t, removed)

	goTerm, err := s.TermByName("post_tag", "go")
	require.NoError(t, err)
	assert.Equal(t, 0, goTerm.Count)
}

func TestDeleteTermDetachesObjects(t *testing.T) {
	s := newStore(t)
	p1, _ := s.InsertObject(model.Object{PostType: "post"})
	p2, _ := s.InsertObject(model.Object{PostType: "post"})
	_, err := s.SetObjectTerms(p1.ID, "post_tag", []string{"a", "b"}, true)
	require.NoError(t, err)
	_, err = s.SetObjectTerms(p2.ID, "post_tag", []string{"a"}, true)
	require.NoError(t, err)

	a, err := s.TermByName("post_tag", "a")
	require.NoError(t, err)
	b, err := s.TermByName("post_tag", "b")
	require.NoError(t, err)
	assert.Equal(t, 2, a.Count)

	objs, err := s.ObjectsInTerms("post_tag", []int64{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{p1.ID, p2.ID}, objs)

	require.NoError(t, s.DeleteTerm("post_tag", a.ID))
	assert.ErrorIs(t, s.DeleteTerm("post_tag", a.ID), ErrNotFound)

	objs, err = s.ObjectsInTerms("post_tag", []int64{a.ID})
	require.NoError(t, err)
	assert.Empty(t, objs)

	terms, err := s.ObjectTerms(p1.ID, "post_tag")
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, b.ID, terms[0].ID)
}

func TestTermExistsBySlugOrName(t *testing.T) {
	s := newStore(t)
	term, err := s.InsertTerm("post_tag", "Open Source")
	require.NoError(t, err)

	for _, v := range []string{"open-source", "Open Source", "open source"} {
		got, ok, err := s.TermExists("post_tag", v)
		require.NoError(t, err)
		assert.True(t, ok, v)
		assert.Equal(t, term.ID, got.ID, v)
	}
	_, ok, err := s.TermExists("post_tag", "closed")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTermsWithCountBelow(t *testing.T) {
	s := newStore(t)
	for i := 0; i < 3; i++ {
		p, err := s.InsertObject(model.Object{PostType: "post"})
		require.NoError(t, err)
		names := []string{"common"}
		if i == 0 {
			names = append(names, "rare")
		}
		_, err = s.SetObjectTerms(p.ID, "post_tag", names, true)
		require.NoError(t, err)
	}
	_, err := s.InsertTerm("post_tag", "unused")
	require.NoError(t, err)

	below, err := s.TermsWithCountBelow("post_tag", 2)
	require.NoError(t, err)
	var names []string
	for _, term := range below {
		names = append(names, term.Name)
	}
	assert.Equal(t, []string{"rare", "unused"}, names)
}

func TestObjectsByType(t *testing.T) {
	s := newStore(t)
	_, err := s.InsertObject(model.Object{ID: 10, PostType: "post", Status: model.StatusDraft})
	require.NoError(t, err)
	_, err = s.InsertObject(model.Object{PostType: "post"})
	require.NoError(t, err)
	_, err = s.InsertObject(model.Object{PostType: "page", Status: model.StatusInherit})
	require.NoError(t, err)

	posts, err := s.ObjectsByType("post")
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, int64(10), posts[0].ID)
	assert.Equal(t, int64(11), posts[1].ID)

	live, err := s.ObjectsByType("post", model.StatusPublish, model.StatusInherit)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, int64(11), live[0].ID)

	_, err = s.Object(99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOptions(t *testing.T) {
	s := newStore(t)
	_, ok, err := s.Option("default_category")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetOption("default_category", "7"))
	v, ok, err := s.Option("default_category")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "7", v)
}

func TestAutolinks(t *testing.T) {
	s := newStore(t)
	a, err := s.SaveAutolink(model.Autolink{Title: "Tags", Taxonomy: "post_tag", Embedded: []string{"homeonly", "post"}, Display: "posts"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.ID)

	a.Title = "Tag links"
	_, err = s.SaveAutolink(a)
	require.NoError(t, err)
	_, err = s.SaveAutolink(model.Autolink{Title: "Categories", Taxonomy: "category"})
	require.NoError(t, err)

	all, err := s.Autolinks()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Tag links", all[0].Title)
	assert.Equal(t, []string{"homeonly", "post"}, all[0].Embedded)

	require.NoError(t, s.DeleteAutolink(1))
	assert.ErrorIs(t, s.DeleteAutolink(1), ErrNotFound)
	all, err = s.Autolinks()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFeedCache(t *testing.T) {
	s := newStore(t)
	_, ok, err := s.LoadFeed("work")
	require.NoError(t, err)
	assert.False(t, ok)

	in := FeedEntry{URL: "https://example.com/a.ics", ETag: `"abc"`, Body: []byte("BEGIN:VCALENDAR"), UpdatedAt: 1700000000}
	require.NoError(t, s.SaveFeed("work", in))

	out, ok, err := s.LoadFeed("work")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, in, out)
}

func TestOpenOnDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	_, err = s.InsertTerm("post_tag", "persisted")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	term, err := s.TermByName("post_tag", "persisted")
	require.NoError(t, err)
	assert.Equal(t, "persisted", term.Slug)
}
