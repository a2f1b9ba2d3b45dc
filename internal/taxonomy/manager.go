// Package taxonomy implements the bulk term tools: adding, removing,
// renaming, merging and deleting terms across the objects they tag.
//
// Operations never fail the caller. Every outcome, including store errors,
// is reported as a Notice.
package taxonomy

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/WordPressBugBounty/plugins-simple-tags/internal/events"
	appLog "github.com/WordPressBugBounty/plugins-simple-tags/internal/log"
	"github.com/WordPressBugBounty/plugins-simple-tags/internal/model"
	"github.com/WordPressBugBounty/plugins-simple-tags/internal/store"
)

// MaxMinUses bounds the "rarely used" threshold.
const MaxMinUses = 100

// ErrOutOfRange is returned by CheckDeleteTerms for thresholds above
// MaxMinUses.
var ErrOutOfRange = errors.New("taxonomy: number out of range")

// DefaultCategoryOption names the option holding the default category id.
const DefaultCategoryOption = "default_category"

// Store is the persistence the term tools need. *store.Store implements it.
type Store interface {
	TermsByName(tax, name string) ([]model.Term, error)
	TermByName(tax, name string) (model.Term, error)
	TermExists(tax, value string) (model.Term, bool, error)
	InsertTerm(tax, name string) (model.Term, error)
	DeleteTerm(tax string, id int64) error
	TermsWithCountBelow(tax string, n int) ([]model.Term, error)

	Object(id int64) (model.Object, error)
	ObjectsByType(postType string, statuses ...string) ([]model.Object, error)
	ObjectsInTerms(tax string, terms []int64) ([]int64, error)
	SetObjectTerms(obj int64, tax string, values []string, appendTerms bool) ([]int64, error)
	RemoveObjectTerms(obj int64, tax string, values []string) (bool, error)

	Option(name string) (string, bool, error)
	SetOption(name, value string) error
}

// Scope is the taxonomy and post type a request works on.
type Scope struct {
	Taxonomy     string
	PostType     string
	PostTypeName string
}

type Manager struct {
	store  Store
	events events.Publisher
}

// NewManager returns a manager over s. A nil publisher drops events.
func NewManager(s Store, p events.Publisher) *Manager {
	if p == nil {
		p = events.Nop{}
	}
	return &Manager{store: s, events: p}
}

// splitTerms splits a comma separated list, sanitizing entries and dropping
// empty ones.
func splitTerms(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = sanitize(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// blank reports whether s holds nothing but commas and spaces.
func blank(s string) bool {
	return strings.TrimSpace(strings.ReplaceAll(s, ",", "")) == ""
}

func (m *Manager) fail(n *Notices, op string, err error) Notices {
	appLog.Error("term operation failed", err, "op", op)
	n.errorf("Term operation failed: %v", err)
	return *n
}

func (m *Manager) publish(ctx context.Context, ev events.Event) {
	if err := m.events.Publish(ctx, ev); err != nil {
		appLog.Warn("publish term event failed", "type", ev.Type, "err", err)
	}
}

// termIDs resolves names to the ids of existing terms, skipping unknown
// names.
func (m *Manager) termIDs(tax string, names []string) ([]int64, error) {
	var ids []int64
	for _, name := range names {
		t, ok, err := m.termByName(tax, name)
		if err != nil {
			return nil, err
		}
		if ok {
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}

// termByName is TermByName with "not found" reported as ok=false.
func (m *Manager) termByName(tax, name string) (model.Term, bool, error) {
	t, err := m.store.TermByName(tax, sanitize(name))
	if err != nil {
		if isNotFound(err) {
			return model.Term{}, false, nil
		}
		return model.Term{}, false, err
	}
	return t, true, nil
}

// targetObjects returns the objects tagged with any of the match terms, or
// every published object of the scope's post type when match is empty.
func (m *Manager) targetObjects(sc Scope, match []string) ([]int64, error) {
	if len(match) > 0 {
		ids, err := m.termIDs(sc.Taxonomy, match)
		if err != nil {
			return nil, err
		}
		return m.store.ObjectsInTerms(sc.Taxonomy, ids)
	}
	objs, err := m.store.ObjectsByType(sc.PostType, model.StatusPublish, model.StatusInherit)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(objs))
	for i, o := range objs {
		out[i] = o.ID
	}
	return out, nil
}

// AddMatchTerms appends the add terms to every object tagged with one of
// the match terms, or to every published object when match is empty.
func (m *Manager) AddMatchTerms(ctx context.Context, sc Scope, match, add string) Notices {
	var n Notices
	if blank(add) {
		n.errorf("No new term(s) specified!")
		return n
	}
	newTerms := splitTerms(add)

	objects, err := m.targetObjects(sc, splitTerms(match))
	if err != nil {
		return m.fail(&n, "add", err)
	}
	counter := 0
	for _, obj := range objects {
		if _, err := m.store.SetObjectTerms(obj, sc.Taxonomy, newTerms, true); err != nil {
			return m.fail(&n, "add", err)
		}
		counter++
	}

	if counter == 0 {
		n.updatedf("No term added.")
		return n
	}
	n.updatedf("Term(s) added to %d %s.", counter, sc.PostTypeName)
	appLog.Info("terms added", "taxonomy", sc.Taxonomy, "terms", newTerms, "objects", counter)
	m.publish(ctx, events.Event{Type: events.TermsAdded, Taxonomy: sc.Taxonomy, Terms: newTerms, Objects: counter})
	return n
}

// RemoveMatchTerms detaches the remove terms from the objects selected like
// AddMatchTerms does.
func (m *Manager) RemoveMatchTerms(ctx context.Context, sc Scope, match, remove string) Notices {
	var n Notices
	if blank(remove) {
		n.errorf("No term(s) specified for removal!")
		return n
	}

	var valid []string
	for _, name := range splitTerms(remove) {
		t, ok, err := m.termByName(sc.Taxonomy, name)
		if err != nil {
			return m.fail(&n, "remove-match", err)
		}
		if ok {
			valid = append(valid, t.Slug)
		}
	}
	if len(valid) == 0 {
		n.errorf("Term(s) does not exist.")
		return n
	}

	objects, err := m.targetObjects(sc, splitTerms(match))
	if err != nil {
		return m.fail(&n, "remove-match", err)
	}
	counter := 0
	for _, obj := range objects {
		if _, err := m.store.RemoveObjectTerms(obj, sc.Taxonomy, valid); err != nil {
			return m.fail(&n, "remove-match", err)
		}
		counter++
	}

	if counter == 0 {
		n.updatedf("No matching term found.")
		return n
	}
	n.updatedf("Term(s) removed from %d %s.", counter, sc.PostTypeName)
	appLog.Info("terms removed", "taxonomy", sc.Taxonomy, "terms", valid, "objects", counter)
	m.publish(ctx, events.Event{Type: events.TermsRemoved, Taxonomy: sc.Taxonomy, Terms: valid, Objects: counter})
	return n
}

// RemoveTerms detaches the named terms from every published object of the
// scope's post type. The terms themselves are kept.
func (m *Manager) RemoveTerms(ctx context.Context, sc Scope, names string) Notices {
	var n Notices
	if blank(names) {
		n.errorf("No term specified!")
		return n
	}
	list := splitTerms(names)
	if len(list) == 0 {
		n.errorf("No valid term specified!")
		return n
	}

	counter := 0
	var removed []string
	for _, name := range list {
		t, ok, err := m.termByName(sc.Taxonomy, name)
		if err != nil {
			return m.fail(&n, "remove", err)
		}
		if !ok {
			continue
		}
		objects, err := m.store.ObjectsInTerms(sc.Taxonomy, []int64{t.ID})
		if err != nil {
			return m.fail(&n, "remove", err)
		}
		for _, id := range objects {
			o, err := m.store.Object(id)
			if err != nil {
				if isNotFound(err) {
					continue
				}
				return m.fail(&n, "remove", err)
			}
			if o.PostType != sc.PostType || o.Status != model.StatusPublish {
				continue
			}
			done, err := m.store.RemoveObjectTerms(id, sc.Taxonomy, []string{t.Slug})
			if err != nil {
				return m.fail(&n, "remove", err)
			}
			if done {
				counter++
			}
		}
		removed = append(removed, t.Name)
	}

	if counter == 0 {
		n.errorf("This term is not associated with any %s.", sc.PostTypeName)
		return n
	}
	n.updatedf("Removed term(s) \"%s\" from %d %s", names, counter, sc.PostTypeName)
	appLog.Info("terms detached", "taxonomy", sc.Taxonomy, "terms", removed, "objects", counter)
	m.publish(ctx, events.Event{Type: events.TermsRemoved, Taxonomy: sc.Taxonomy, Terms: removed, Objects: counter})
	return n
}

// RenameTerms renames old[i] to new[i]. An existing term with the new name
// is reused; the objects of the old term move over to it.
func (m *Manager) RenameTerms(ctx context.Context, sc Scope, old, new string) Notices {
	var n Notices
	if blank(new) {
		n.errorf("No new term specified!")
		return n
	}
	oldTerms, newTerms := splitTerms(old), splitTerms(new)
	if len(oldTerms) == 0 || len(newTerms) == 0 {
		n.errorf("No new/old valid term specified!")
		return n
	}
	if len(oldTerms) != len(newTerms) {
		n.errorf("Error. No enough terms for rename.")
		return n
	}

	defaultCat := ""
	if sc.Taxonomy == "category" {
		v, _, err := m.store.Option(DefaultCategoryOption)
		if err != nil {
			return m.fail(&n, "rename", err)
		}
		defaultCat = v
	}

	counter, objectCount := 0, 0
	for i, name := range oldTerms {
		term, ok, err := m.termByName(sc.Taxonomy, name)
		if err != nil {
			return m.fail(&n, "rename", err)
		}
		if !ok {
			continue
		}
		objects, err := m.store.ObjectsInTerms(sc.Taxonomy, []int64{term.ID})
		if err != nil {
			return m.fail(&n, "rename", err)
		}

		// The old term goes first so a case-only rename does not resolve
		// to the term being replaced.
		if err := m.store.DeleteTerm(sc.Taxonomy, term.ID); err != nil {
			return m.fail(&n, "rename", err)
		}
		newName := sanitize(newTerms[i])
		target, ok, err := m.store.TermExists(sc.Taxonomy, newName)
		if err != nil {
			return m.fail(&n, "rename", err)
		}
		if !ok {
			if target, err = m.store.InsertTerm(sc.Taxonomy, newName); err != nil {
				return m.fail(&n, "rename", err)
			}
		}
		if defaultCat != "" && defaultCat == strconv.FormatInt(term.ID, 10) {
			defaultCat = strconv.FormatInt(target.ID, 10)
			if err := m.store.SetOption(DefaultCategoryOption, defaultCat); err != nil {
				return m.fail(&n, "rename", err)
			}
		}
		for _, obj := range objects {
			if _, err := m.store.SetObjectTerms(obj, sc.Taxonomy, []string{target.Slug}, true); err != nil {
				return m.fail(&n, "rename", err)
			}
		}
		counter++
		objectCount += len(objects)
	}

	if counter == 0 {
		n.updatedf("No term renamed.")
		return n
	}
	n.updatedf("Renamed term(s) \"%s\" to \"%s\"", strings.TrimRight(old, ","), strings.TrimRight(new, ","))
	appLog.Info("terms renamed", "taxonomy", sc.Taxonomy, "from", oldTerms, "to", newTerms, "count", counter)
	m.publish(ctx, events.Event{Type: events.TermsRenamed, Taxonomy: sc.Taxonomy, Terms: oldTerms, Target: newTerms, Objects: objectCount})
	return n
}

// MergeTerms merges the old terms into the single new term. With mergeType
// "same_name", each name in old that several terms share is merged into
// the one whose slug is closest to the name instead.
func (m *Manager) MergeTerms(ctx context.Context, sc Scope, old, new, mergeType string) Notices {
	if mergeType == "same_name" {
		return m.mergeSameName(ctx, sc, old)
	}

	var n Notices
	if blank(new) {
		n.errorf("No new term specified!")
		return n
	}
	oldTerms, newTerms := splitTerms(old), splitTerms(new)
	if len(oldTerms) == 0 || len(newTerms) == 0 {
		n.errorf("No new/old valid term specified!")
		return n
	}
	if overlaps(oldTerms, newTerms) {
		n.errorf("Term to merge and New Term must not contain same term.")
		return n
	}
	if len(newTerms) != 1 {
		n.errorf("Error. You need to enter a single term to merge to in new term name !")
		return n
	}
	newTag := sanitize(newTerms[0])
	if newTag == "" {
		n.errorf("No valid new term.")
		return n
	}

	ids, err := m.termIDs(sc.Taxonomy, oldTerms)
	if err != nil {
		return m.fail(&n, "merge", err)
	}
	if target, ok, err := m.store.TermExists(sc.Taxonomy, newTag); err != nil {
		return m.fail(&n, "merge", err)
	} else if ok && hasID(ids, target.ID) {
		n.errorf("Term to merge and New Term must not contain same term.")
		return n
	}

	objects, err := m.store.ObjectsInTerms(sc.Taxonomy, ids)
	if err != nil {
		return m.fail(&n, "merge", err)
	}
	counter := 0
	for _, obj := range objects {
		if _, err := m.store.SetObjectTerms(obj, sc.Taxonomy, []string{newTag}, true); err != nil {
			return m.fail(&n, "merge", err)
		}
		counter++
	}
	for _, id := range ids {
		if _, err := m.deleteTerm(sc.Taxonomy, id); err != nil {
			return m.fail(&n, "merge", err)
		}
	}

	if len(objects) > 0 && counter == 0 {
		n.updatedf("No term merged.")
		return n
	}
	n.updatedf("Merge term(s) \"%s\" to \"%s\". %d posts edited.", strings.TrimRight(old, ","), strings.TrimRight(new, ","), counter)
	appLog.Info("terms merged", "taxonomy", sc.Taxonomy, "from", oldTerms, "to", newTag, "objects", counter)
	m.publish(ctx, events.Event{Type: events.TermsMerged, Taxonomy: sc.Taxonomy, Terms: oldTerms, Target: newTerms, Objects: counter})
	return n
}

func (m *Manager) mergeSameName(ctx context.Context, sc Scope, old string) Notices {
	var n Notices
	names := splitTerms(old)
	if len(names) == 0 {
		n.errorf("No terms provided for merging!")
		return n
	}

	var groups [][]model.Term
	for _, name := range names {
		terms, err := m.store.TermsByName(sc.Taxonomy, name)
		if err != nil {
			return m.fail(&n, "merge", err)
		}
		if len(terms) > 1 {
			groups = append(groups, terms)
		}
	}
	if len(groups) == 0 {
		n.errorf("No terms with the same name found.")
		return n
	}

	for _, terms := range groups {
		survivor := bestSlug(terms)
		var dropped []int64
		var droppedSlugs []string
		for _, t := range terms {
			if t.ID != survivor.ID {
				dropped = append(dropped, t.ID)
				droppedSlugs = append(droppedSlugs, t.Slug)
			}
		}
		objects, err := m.store.ObjectsInTerms(sc.Taxonomy, dropped)
		if err != nil {
			return m.fail(&n, "merge", err)
		}
		for _, obj := range objects {
			if _, err := m.store.SetObjectTerms(obj, sc.Taxonomy, []string{survivor.Slug}, true); err != nil {
				return m.fail(&n, "merge", err)
			}
		}
		for _, id := range dropped {
			if _, err := m.deleteTerm(sc.Taxonomy, id); err != nil {
				return m.fail(&n, "merge", err)
			}
		}
		n.updatedf("Merged term(s) with the same name \"%s\". %d posts updated.", survivor.Name, len(objects))
		appLog.Info("same-name terms merged", "taxonomy", sc.Taxonomy, "name", survivor.Name, "kept", survivor.Slug, "dropped", droppedSlugs)
		m.publish(ctx, events.Event{Type: events.TermsMerged, Taxonomy: sc.Taxonomy, Terms: droppedSlugs, Target: []string{survivor.Slug}, Objects: len(objects)})
	}
	return n
}

// bestSlug picks the term whose slug is most similar to its name, then the
// shortest slug, then the oldest term.
func bestSlug(terms []model.Term) model.Term {
	best := terms[0]
	_, bestScore := similarText(best.Name, best.Slug)
	for _, t := range terms[1:] {
		_, score := similarText(t.Name, t.Slug)
		if score > bestScore || (score == bestScore && len(t.Slug) < len(best.Slug)) {
			best, bestScore = t, score
		}
	}
	return best
}

// DeleteTermsByList deletes the named terms.
func (m *Manager) DeleteTermsByList(ctx context.Context, sc Scope, names string) Notices {
	var n Notices
	if blank(names) {
		n.errorf("No term specified!")
		return n
	}

	var deleted []string
	for _, name := range splitTerms(names) {
		t, ok, err := m.termByName(sc.Taxonomy, name)
		if err != nil {
			return m.fail(&n, "delete", err)
		}
		if !ok {
			continue
		}
		done, err := m.deleteTerm(sc.Taxonomy, t.ID)
		if err != nil {
			return m.fail(&n, "delete", err)
		}
		if done {
			deleted = append(deleted, t.Name)
		}
	}
	return m.reportDeleted(ctx, sc, n, deleted)
}

// RemoveRarelyUsed deletes the terms attached to fewer than minUses
// objects.
func (m *Manager) RemoveRarelyUsed(ctx context.Context, sc Scope, minUses int) Notices {
	var n Notices
	if minUses > MaxMinUses {
		n.errorf("Invalid number specified.")
		return n
	}
	terms, err := m.store.TermsWithCountBelow(sc.Taxonomy, minUses)
	if err != nil {
		return m.fail(&n, "cleanup", err)
	}

	var deleted []string
	for _, t := range terms {
		done, err := m.deleteTerm(sc.Taxonomy, t.ID)
		if err != nil {
			return m.fail(&n, "cleanup", err)
		}
		if done {
			deleted = append(deleted, t.Name)
		}
	}
	return m.reportDeleted(ctx, sc, n, deleted)
}

func (m *Manager) reportDeleted(ctx context.Context, sc Scope, n Notices, deleted []string) Notices {
	if len(deleted) == 0 {
		n.updatedf("No term deleted.")
		return n
	}
	n.updatedf("%d term(s) deleted.", len(deleted))
	appLog.Info("terms deleted", "taxonomy", sc.Taxonomy, "count", len(deleted))
	m.publish(ctx, events.Event{Type: events.TermsDeleted, Taxonomy: sc.Taxonomy, Terms: deleted})
	return n
}

// deleteTerm deletes a term unless it is the default category.
func (m *Manager) deleteTerm(tax string, id int64) (bool, error) {
	if tax == "category" {
		v, ok, err := m.store.Option(DefaultCategoryOption)
		if err != nil {
			return false, err
		}
		if ok && v == strconv.FormatInt(id, 10) {
			appLog.Debug("default category kept", "id", id)
			return false, nil
		}
	}
	if err := m.store.DeleteTerm(tax, id); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CheckResult is the answer to a "how many terms would be deleted" query.
type CheckResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CheckDeleteTerms reports how many terms RemoveRarelyUsed would delete.
// An empty taxonomy means post_tag.
func (m *Manager) CheckDeleteTerms(tax string, minUses int) (CheckResult, error) {
	if tax == "" {
		tax = "post_tag"
	}
	if minUses > MaxMinUses {
		return CheckResult{}, ErrOutOfRange
	}
	if minUses <= 0 {
		return CheckResult{Message: "Invalid number specified."}, nil
	}
	terms, err := m.store.TermsWithCountBelow(tax, minUses)
	if err != nil {
		return CheckResult{}, err
	}
	if len(terms) == 0 {
		return CheckResult{Message: "No terms will be deleted."}, nil
	}
	return CheckResult{Success: true, Message: strconv.Itoa(len(terms)) + " terms will be deleted."}, nil
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// sanitize strips markup and surrounding space from a term name.
func sanitize(s string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(s, ""))
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

func overlaps(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if set[s] {
			return true
		}
	}
	return false
}

func hasID(ids []int64, id int64) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
