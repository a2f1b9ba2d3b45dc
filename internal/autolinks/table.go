// Package autolinks builds the admin listing of autolink entries: search,
// natural sort, pagination and the per-column labels.
package autolinks

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/WordPressBugBounty/plugins-simple-tags/internal/model"
)

const (
	DefaultPerPage = 20

	// EmptyMessage is shown when a page has no rows.
	EmptyMessage = "No item avaliable."

	// Placeholder fills a cell with no value.
	Placeholder = "&mdash;"

	// DeleteNonceAction guards the delete row action.
	DeleteNonceAction = "autolink-action-request-nonce"
)

var locationLabels = map[string]string{
	"homeonly":   "Homepage",
	"blogonly":   "Blog display",
	"singleonly": "Single post display",
	"feed":       "RSS feed",
}

var displayLabels = map[string]string{
	"post_content": "Post Content",
	"post_title":   "Post Title",
	"posts":        "Post Content and Title",
}

// Columns in display order, with their headers.
var Columns = []struct{ Key, Label string }{
	{"title", "Title"},
	{"taxonomy", "Taxonomy"},
	{"embedded", "Auto Link Post type"},
	{"autolink_display", "Auto Link areas"},
}

// Source provides the entries to list. *store.Store implements it.
type Source interface {
	Autolinks() ([]model.Autolink, error)
}

// Table renders pages of autolink entries.
type Table struct {
	source Source

	// TaxonomyLabels and PostTypeLabels map names to display labels.
	TaxonomyLabels map[string]string
	PostTypeLabels map[string]string
}

func NewTable(src Source, taxonomyLabels, postTypeLabels map[string]string) *Table {
	return &Table{source: src, TaxonomyLabels: taxonomyLabels, PostTypeLabels: postTypeLabels}
}

// Query selects one page. Zero values mean: no search, order by ID
// descending, first page, DefaultPerPage rows.
type Query struct {
	Search  string
	OrderBy string
	Order   string
	Page    int
	PerPage int
}

type Row struct {
	ID        int64  `json:"id"`
	RowID     string `json:"row_id"`
	Title     string `json:"title"`
	Taxonomy  string `json:"taxonomy"`
	Embedded  string `json:"embedded"`
	Display   string `json:"autolink_display"`
	Shortcode string `json:"shortcode"`
}

// Cell returns the value of column key, or Placeholder when it is empty.
func (r Row) Cell(key string) string {
	var v string
	switch key {
	case "title":
		v = r.Title
	case "taxonomy":
		v = r.Taxonomy
	case "embedded":
		v = r.Embedded
	case "autolink_display":
		v = r.Display
	case "shortcode":
		v = r.Shortcode
	}
	if v == "" {
		return Placeholder
	}
	return v
}

type Page struct {
	Rows       []Row  `json:"rows"`
	Total      int    `json:"total_items"`
	PerPage    int    `json:"per_page"`
	Page       int    `json:"page"`
	TotalPages int    `json:"total_pages"`
	Empty      string `json:"empty,omitempty"`
}

// Prepare filters, sorts and slices the entries for q.
func (t *Table) Prepare(q Query) (Page, error) {
	items, err := t.source.Autolinks()
	if err != nil {
		return Page{}, err
	}

	if search := strings.TrimSpace(q.Search); search != "" {
		needle := strings.ToLower(search)
		filtered := items[:0]
		for _, a := range items {
			if strings.Contains(strings.ToLower(a.Title), needle) {
				filtered = append(filtered, a)
			}
		}
		items = filtered
	}

	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = "ID"
	}
	asc := q.Order == "asc"
	sort.SliceStable(items, func(i, j int) bool {
		c := NatCaseCompare(sortKey(items[i], orderBy), sortKey(items[j], orderBy))
		if asc {
			return c < 0
		}
		return c > 0
	})

	perPage := q.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	total := len(items)
	p := Page{
		Total:      total,
		PerPage:    perPage,
		Page:       page,
		TotalPages: (total + perPage - 1) / perPage,
		Rows:       []Row{},
	}

	from := (page - 1) * perPage
	if from < total {
		to := from + perPage
		if to > total {
			to = total
		}
		for _, a := range items[from:to] {
			p.Rows = append(p.Rows, t.row(a))
		}
	}
	if len(p.Rows) == 0 {
		p.Empty = EmptyMessage
	}
	return p, nil
}

// sortKey returns the field orderBy sorts on. Unknown columns compare
// equal, keeping the stored order.
func sortKey(a model.Autolink, orderBy string) string {
	switch orderBy {
	case "ID":
		return strconv.FormatInt(a.ID, 10)
	case "title":
		return a.Title
	case "taxonomy":
		return a.Taxonomy
	}
	return ""
}

func (t *Table) row(a model.Autolink) Row {
	id := strconv.FormatInt(a.ID, 10)
	sum := md5.Sum([]byte(id))
	return Row{
		ID:        a.ID,
		RowID:     "st-autolink-" + hex.EncodeToString(sum[:]),
		Title:     a.Title,
		Taxonomy:  t.taxonomyLabel(a.Taxonomy),
		Embedded:  t.embeddedLabel(a.Embedded),
		Display:   displayLabels[a.Display],
		Shortcode: `[taxopress_autolinks id="` + id + `"]`,
	}
}

func (t *Table) taxonomyLabel(tax string) string {
	if label, ok := t.TaxonomyLabels[tax]; ok {
		return label
	}
	return tax
}

// embeddedLabel joins the labels of the display locations. Unknown entries
// keep their slot as an empty label.
func (t *Table) embeddedLabel(locations []string) string {
	if len(locations) == 0 {
		return "None"
	}
	labels := make([]string, len(locations))
	for i, loc := range locations {
		if l, ok := locationLabels[loc]; ok {
			labels[i] = l
		} else {
			labels[i] = t.PostTypeLabels[loc]
		}
	}
	return strings.Join(labels, ", ")
}
