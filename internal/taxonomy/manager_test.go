package taxonomy

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WordPressBugBounty/plugins-simple-tags/internal/events"
	"github.com/WordPressBugBounty/plugins-simple-tags/internal/model"
	"github.com/WordPressBugBounty/plugins-simple-tags/internal/store"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

var posts = Scope{Taxonomy: "post_tag", PostType: "post", PostTypeName: "posts"}

type fixture struct {
	t     *testing.T
	store *store.Store
	rec   *recorder
	m     *Manager
	ids   map[string]int64
}

func newFixture(t *testing.T) *fixture {
	s, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	rec := &recorder{}
	return &fixture{t: t, store: s, rec: rec, m: NewManager(s, rec), ids: map[string]int64{}}
}

// post creates a published post tagged with tags.
func (f *fixture) post(title, status string, tags ...string) int64 {
	o, err := f.store.InsertObject(model.Object{PostType: "post", Status: status, Title: title})
	require.NoError(f.t, err)
	if len(tags) > 0 {
		_, err = f.store.SetObjectTerms(o.ID, "post_tag", tags, true)
		require.NoError(f.t, err)
	}
	f.ids[title] = o.ID
	return o.ID
}

func (f *fixture) tags(title string) []string {
	terms, err := f.store.ObjectTerms(f.ids[title], "post_tag")
	require.NoError(f.t, err)
	var out []string
	for _, term := range terms {
		out = append(out, term.Name)
	}
	return out
}

func (f *fixture) exists(tax, name string) bool {
	_, err := f.store.TermByName(tax, name)
	return err == nil
}

func only(t *testing.T, n Notices, kind, message string) {
	t.Helper()
	require.Len(t, n, 1, "%v", n)
	assert.Equal(t, kind, n[0].Kind)
	assert.Equal(t, message, n[0].Message)
}

func TestSplitTerms(t *testing.T) {
	assert.Equal(t, []string{"a", "b c", "d"}, splitTerms(" a ,, b c,<em>d</em>, ,"))
	assert.Empty(t, splitTerms(" , ,"))
	assert.True(t, blank(" ,, , "))
	assert.False(t, blank(",x,"))
}

func TestAddMatchTerms(t *testing.T) {
	f := newFixture(t)
	f.post("a", "", "go")
	f.post("b", "", "rust")
	f.post("c", "", "go", "rust")

	only(t, f.m.AddMatchTerms(context.Background(), posts, "go", " , "), KindError, "No new term(s) specified!")

	n := f.m.AddMatchTerms(context.Background(), posts, "go", "news, weekly")
	only(t, n, KindUpdated, "Term(s) added to 2 posts.")
	assert.True(t, n.OK())
	assert.Equal(t, []string{"go", "news", "weekly"}, f.tags("a"))
	assert.Equal(t, []string{"rust"}, f.tags("b"))
	assert.Equal(t, []string{"go", "rust", "news", "weekly"}, f.tags("c"))
	assert.Equal(t, []string{events.TermsAdded}, f.rec.types())

	only(t, f.m.AddMatchTerms(context.Background(), posts, "missing", "x"), KindUpdated, "No term added.")
}

func TestAddMatchTermsToAllPublished(t *testing.T) {
	f := newFixture(t)
	f.post("a", "")
	f.post("b", model.StatusInherit)
	f.post("draft", model.StatusDraft)

	only(t, f.m.AddMatchTerms(context.Background(), posts, "", "all"), KindUpdated, "Term(s) added to 2 posts.")
	assert.Equal(t, []string{"all"}, f.tags("a"))
	assert.Equal(t, []string{"all"}, f.tags("b"))
	assert.Empty(t, f.tags("draft"))
}

func TestRemoveMatchTerms(t *testing.T) {
	f := newFixture(t)
	f.post("a", "", "go", "old")
	f.post("b", "", "rust", "old")

	only(t, f.m.RemoveMatchTerms(context.Background(), posts, "", ""), KindError, "No term(s) specified for removal!")
	only(t, f.m.RemoveMatchTerms(context.Background(), posts, "", "nope"), KindError, "Term(s) does not exist.")

	only(t, f.m.RemoveMatchTerms(context.Background(), posts, "go", "old,nope"), KindUpdated, "Term(s) removed from 1 posts.")
	assert.Equal(t, []string{"go"}, f.tags("a"))
	assert.ElementsMatch(t, []string{"rust", "old"}, f.tags("b"))

	only(t, f.m.RemoveMatchTerms(context.Background(), posts, "", "old"), KindUpdated, "Term(s) removed from 2 posts.")
	assert.Equal(t, []string{"rust"}, f.tags("b"))
	assert.True(t, f.exists("post_tag", "old"), "the term itself is kept")

	only(t, f.m.RemoveMatchTerms(context.Background(), posts, "missing", "go"), KindUpdated, "No matching term found.")
}

func TestRemoveTerms(t *testing.T) {
	f := newFixture(t)
	f.post("a", "", "go", "tmp")
	f.post("b", "", "tmp")
	f.post("draft", model.StatusDraft, "tmp")

	only(t, f.m.RemoveTerms(context.Background(), posts, ""), KindError, "No term specified!")
	only(t, f.m.RemoveTerms(context.Background(), posts, "unknown"), KindError, "This term is not associated with any posts.")

	only(t, f.m.RemoveTerms(context.Background(), posts, "tmp,"), KindUpdated, `Removed term(s) "tmp," from 2 posts`)
	assert.Equal(t, []string{"go"}, f.tags("a"))
	assert.Empty(t, f.tags("b"))
	assert.Equal(t, []string{"tmp"}, f.tags("draft"))
}

func TestRenameTerms(t *testing.T) {
	f := newFixture(t)
	f.post("a", "", "go", "js")
	f.post("b", "", "go")

	only(t, f.m.RenameTerms(context.Background(), posts, "go", ""), KindError, "No new term specified!")
	only(t, f.m.RenameTerms(context.Background(), posts, " ", "x"), KindError, "No new/old valid term specified!")
	only(t, f.m.RenameTerms(context.Background(), posts, "go,js", "golang"), KindError, "Error. No enough terms for rename.")
	only(t, f.m.RenameTerms(context.Background(), posts, "nope", "x"), KindUpdated, "No term renamed.")

	only(t, f.m.RenameTerms(context.Background(), posts, "go,js,", "golang,javascript,"), KindUpdated, `Renamed term(s) "go,js" to "golang,javascript"`)
	assert.ElementsMatch(t, []string{"golang", "javascript"}, f.tags("a"))
	assert.Equal(t, []string{"golang"}, f.tags("b"))
	assert.False(t, f.exists("post_tag", "go"))

	golang, err := f.store.TermByName("post_tag", "golang")
	require.NoError(t, err)
	assert.Equal(t, 2, golang.Count)
	assert.Equal(t, []string{events.TermsRenamed}, f.rec.types())
}

func TestRenameTermsCaseOnly(t *testing.T) {
	f := newFixture(t)
	f.post("a", "", "go")

	only(t, f.m.RenameTerms(context.Background(), posts, "go", "Go"), KindUpdated, `Renamed term(s) "go" to "Go"`)
	assert.Equal(t, []string{"Go"}, f.tags("a"))

	terms, err := f.store.TermsByName("post_tag", "go")
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, "go", terms[0].Slug)
}

func TestRenameKeepsDefaultCategory(t *testing.T) {
	f := newFixture(t)
	cats := Scope{Taxonomy: "category", PostType: "post", PostTypeName: "posts"}
	def, err := f.store.InsertTerm("category", "Uncategorized")
	require.NoError(t, err)
	require.NoError(t, f.store.SetOption(DefaultCategoryOption, strconv.FormatInt(def.ID, 10)))

	only(t, f.m.RenameTerms(context.Background(), cats, "Uncategorized", "General"), KindUpdated, `Renamed term(s) "Uncategorized" to "General"`)

	general, err := f.store.TermByName("category", "General")
	require.NoError(t, err)
	v, _, err := f.store.Option(DefaultCategoryOption)
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(general.ID, 10), v)

	// the default category cannot be deleted
	only(t, f.m.DeleteTermsByList(context.Background(), cats, "General"), KindUpdated, "No term deleted.")
	assert.True(t, f.exists("category", "General"))
}

func TestMergeTerms(t *testing.T) {
	f := newFixture(t)
	f.post("a", "", "golang")
	f.post("b", "", "go-lang", "rust")
	f.post("c", "", "rust")

	only(t, f.m.MergeTerms(context.Background(), posts, "golang", "", ""), KindError, "No new term specified!")
	only(t, f.m.MergeTerms(context.Background(), posts, ",", "go", ""), KindError, "No new/old valid term specified!")
	only(t, f.m.MergeTerms(context.Background(), posts, "golang,go", "go", ""), KindError, "Term to merge and New Term must not contain same term.")
	only(t, f.m.MergeTerms(context.Background(), posts, "golang", "go,gopher", ""), KindError, "Error. You need to enter a single term to merge to in new term name !")
	only(t, f.m.MergeTerms(context.Background(), posts, "golang", "GoLang", ""), KindError, "Term to merge and New Term must not contain same term.")

	only(t, f.m.MergeTerms(context.Background(), posts, "golang,go-lang,", "go,", ""), KindUpdated, `Merge term(s) "golang,go-lang" to "go". 2 posts edited.`)
	assert.Equal(t, []string{"go"}, f.tags("a"))
	assert.ElementsMatch(t, []string{"go", "rust"}, f.tags("b"))
	assert.False(t, f.exists("post_tag", "golang"))
	assert.False(t, f.exists("post_tag", "go-lang"))
	assert.Equal(t, []string{events.TermsMerged}, f.rec.types())
}

func TestMergeTermsWithoutObjects(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.InsertTerm("post_tag", "lonely")
	require.NoError(t, err)

	only(t, f.m.MergeTerms(context.Background(), posts, "lonely", "crowd", ""), KindUpdated, `Merge term(s) "lonely" to "crowd". 0 posts edited.`)
	assert.False(t, f.exists("post_tag", "lonely"))
	assert.False(t, f.exists("post_tag", "crowd"))
}

func TestMergeSameName(t *testing.T) {
	f := newFixture(t)
	f.post("a", "", "Foo")
	dup, err := f.store.InsertTerm("post_tag", "Foo")
	require.NoError(t, err)
	require.Equal(t, "foo-2", dup.Slug)
	b := f.post("b", "")
	_, err = f.store.SetObjectTerms(b, "post_tag", []string{"foo-2"}, true)
	require.NoError(t, err)
	f.post("c", "", "bar")

	only(t, f.m.MergeTerms(context.Background(), posts, " , ", "", "same_name"), KindError, "No terms provided for merging!")
	only(t, f.m.MergeTerms(context.Background(), posts, "bar", "", "same_name"), KindError, "No terms with the same name found.")

	only(t, f.m.MergeTerms(context.Background(), posts, "Foo", "", "same_name"), KindUpdated, `Merged term(s) with the same name "Foo". 1 posts updated.`)
	terms, err := f.store.TermsByName("post_tag", "Foo")
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, "foo", terms[0].Slug)
	assert.Equal(t, 2, terms[0].Count)
	assert.Equal(t, []string{"Foo"}, f.tags("b"))
}

func TestBestSlug(t *testing.T) {
	terms := []model.Term{
		{ID: 1, Name: "Data", Slug: "data-3"},
		{ID: 2, Name: "Data", Slug: "data-2-1"},
		{ID: 3, Name: "Data", Slug: "data-2"},
	}
	// data-3 and data-2 tie on score and length, so the oldest stays
	assert.Equal(t, int64(1), bestSlug(terms).ID)

	terms = append(terms, model.Term{ID: 4, Name: "Data", Slug: "Data"})
	assert.Equal(t, int64(4), bestSlug(terms).ID)
}

func TestSimilarText(t *testing.T) {
	sim, pct := similarText("World", "Word")
	assert.Equal(t, 4, sim)
	assert.InDelta(t, 88.888, pct, 0.001)

	sim, pct = similarText("taxopress", "taxopress")
	assert.Equal(t, 9, sim)
	assert.Equal(t, 100.0, pct)

	sim, pct = similarText("", "")
	assert.Equal(t, 0, sim)
	assert.Equal(t, 0.0, pct)
}

func TestDeleteTermsByList(t *testing.T) {
	f := newFixture(t)
	f.post("a", "", "x", "y", "z")

	only(t, f.m.DeleteTermsByList(context.Background(), posts, ", "), KindError, "No term specified!")
	only(t, f.m.DeleteTermsByList(context.Background(), posts, "nope"), KindUpdated, "No term deleted.")
	only(t, f.m.DeleteTermsByList(context.Background(), posts, "x, y, nope"), KindUpdated, "2 term(s) deleted.")
	assert.Equal(t, []string{"z"}, f.tags("a"))
	assert.Equal(t, []string{events.TermsDeleted}, f.rec.types())
}

func TestRemoveRarelyUsed(t *testing.T) {
	f := newFixture(t)
	f.post("a", "", "common", "rare")
	f.post("b", "", "common")
	_, err := f.store.InsertTerm("post_tag", "unused")
	require.NoError(t, err)

	only(t, f.m.RemoveRarelyUsed(context.Background(), posts, 101), KindError, "Invalid number specified.")
	only(t, f.m.RemoveRarelyUsed(context.Background(), posts, 0), KindUpdated, "No term deleted.")
	only(t, f.m.RemoveRarelyUsed(context.Background(), posts, 2), KindUpdated, "2 term(s) deleted.")
	assert.Equal(t, []string{"common"}, f.tags("a"))
	assert.True(t, f.exists("post_tag", "common"))
	assert.False(t, f.exists("post_tag", "unused"))
}

func TestCheckDeleteTerms(t *testing.T) {
	f := newFixture(t)
	f.post("a", "", "common", "rare")
	f.post("b", "", "common")

	cases := []struct {
		n    int
		want CheckResult
	}{
		{0, CheckResult{Message: "Invalid number specified."}},
		{-3, CheckResult{Message: "Invalid number specified."}},
		{1, CheckResult{Message: "No terms will be deleted."}},
		{2, CheckResult{Success: true, Message: "1 terms will be deleted."}},
		{3, CheckResult{Success: true, Message: "2 terms will be deleted."}},
	}
	for _, c := range cases {
		got, err := f.m.CheckDeleteTerms("", c.n)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "n=%d", c.n)
	}

	_, err := f.m.CheckDeleteTerms("post_tag", 101)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestNoticesHelpers(t *testing.T) {
	var n Notices
	n.updatedf("done %d", 1)
	assert.True(t, n.OK())
	n.errorf("bad")
	assert.False(t, n.OK())
	assert.Equal(t, []string{"done 1", "bad"}, n.Messages())
}
