package model

import "time"

// Term is a single entry of a taxonomy (a tag, a category, ...).
type Term struct {
	ID       int64  `codec:"id" json:"id"`
	Taxonomy string `codec:"taxonomy" json:"taxonomy"`
	Name     string `codec:"name" json:"name"`
	Slug     string `codec:"slug" json:"slug"`

	// Count is the number of objects the term is attached to.
	Count int `codec:"count" json:"count"`
}

// Post statuses the term tools consider "live".
const (
	StatusPublish = "publish"
	StatusInherit = "inherit"
	StatusDraft   = "draft"
)

// Object is anything terms are attached to, usually a post.
type Object struct {
	ID       int64  `codec:"id" json:"id"`
	PostType string `codec:"post_type" json:"post_type"`
	Status   string `codec:"status" json:"status"`
	Title    string `codec:"title" json:"title"`
}

// Autolink is one autolinks configuration entry, as listed by the admin
// table.
type Autolink struct {
	ID       int64  `codec:"id" json:"id"`
	Title    string `codec:"title" json:"title"`
	Taxonomy string `codec:"taxonomy" json:"taxonomy"`

	// Embedded holds the display locations: homeonly, blogonly,
	// singleonly, feed or a post type name.
	Embedded []string `codec:"embedded" json:"embedded"`

	// Display is the content area links are added to: post_content,
	// post_title or posts.
	Display string `codec:"display" json:"display"`
}

// Event represents a logical calendar event before recurrence expansion.
type Event struct {
	SourceID string // calendar source ID (e.g., config feed ID)
	UID      string // iCalendar UID

	Summary     string
	Description string
	Location    string

	AllDay bool

	// Original start/end in the event's own timezone.
	Start time.Time
	End   time.Time

	// RRule is the raw recurrence rule, empty for single events.
	RRule   string
	ExDates []time.Time
}

// Occurrence represents a single concrete instance of an event
// (after recurrence expansion and timezone normalization).
type Occurrence struct {
	SourceID string `json:"source_id"`
	UID      string `json:"uid"`

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event, typically derived from the local start time.
	InstanceKey string `json:"instance_key"`

	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`

	AllDay bool `json:"all_day"`

	// Start / End are in the configured display timezone.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
