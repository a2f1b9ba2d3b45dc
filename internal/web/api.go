package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/WordPressBugBounty/plugins-simple-tags/internal/autolinks"
	appLog "github.com/WordPressBugBounty/plugins-simple-tags/internal/log"
	"github.com/WordPressBugBounty/plugins-simple-tags/internal/model"
	"github.com/WordPressBugBounty/plugins-simple-tags/internal/recur"
	"github.com/WordPressBugBounty/plugins-simple-tags/internal/store"
)

const (
	defaultRecurrenceLimit = 10
	maxRecurrenceLimit     = 1000
	// maxRecurrenceSkip caps the occurrences walked to reach after.
	maxRecurrenceSkip = 100000
)

// handleAutolinks lists (GET) or saves (POST) autolink entries.
//
// GET /api/autolinks?s=news&orderby=title&order=asc&paged=2
// POST /api/autolinks with a JSON model.Autolink body; a zero id creates.
func (s *Server) handleAutolinks(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if r.Method == http.MethodPost {
		s.saveAutolink(w, r)
		return
	}

	q := r.URL.Query()
	page, err := s.table.Prepare(autolinks.Query{
		Search:  q.Get("s"),
		OrderBy: q.Get("orderby"),
		Order:   q.Get("order"),
		Page:    parseIntDefault(q.Get("paged"), 1),
		PerPage: s.cfg.AutolinksPerPage,
	})
	if err != nil {
		appLog.Error("autolinks list failed", err)
		writeError(w, http.StatusInternalServerError, "failed to list autolinks")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) saveAutolink(w http.ResponseWriter, r *http.Request) {
	var a model.Autolink
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	a.Title = strings.TrimSpace(a.Title)
	if a.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if !s.cfg.HasTaxonomy(a.Taxonomy) {
		writeError(w, http.StatusBadRequest, "unknown taxonomy")
		return
	}

	status := http.StatusOK
	if a.ID == 0 {
		status = http.StatusCreated
	}
	saved, err := s.store.SaveAutolink(a)
	if err != nil {
		appLog.Error("autolink save failed", err, "id", a.ID)
		writeError(w, http.StatusInternalServerError, "failed to save autolink")
		return
	}
	appLog.Info("autolink saved", "id", saved.ID, "title", saved.Title)
	writeJSON(w, status, saved)
}

// handleAutolinkDelete is the row delete action.
//
// POST /admin/autolinks/delete  id=3&_wpnonce=...
func (s *Server) handleAutolinkDelete(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	if !s.nonces.Verify(r.PostForm.Get("_wpnonce"), autolinks.DeleteNonceAction) {
		writeError(w, http.StatusForbidden, "Security problem. Try again.")
		return
	}
	id, err := strconv.ParseInt(r.PostForm.Get("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := s.store.DeleteAutolink(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "autolink not found")
			return
		}
		appLog.Error("autolink delete failed", err, "id", id)
		writeError(w, http.StatusInternalServerError, "failed to delete autolink")
		return
	}
	appLog.Info("autolink deleted", "id", id)
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": id})
}

// recurrenceResponse is the JSON response shape for /api/recurrence.
type recurrenceResponse struct {
	Rule        string      `json:"rule"`
	Start       time.Time   `json:"dtstart"`
	TimeZone    string      `json:"timezone"`
	Infinite    bool        `json:"infinite"`
	Occurrences []time.Time `json:"occurrences"`
	// More reports whether the rule continues past the last occurrence.
	More bool `json:"more"`
}

// handleRecurrence previews the occurrences of a rule.
//
// GET /api/recurrence?rrule=FREQ=WEEKLY;BYDAY=MO&dtstart=20240101T090000&tz=Europe/Zurich&limit=5&after=2024-03-01T00:00:00Z
//
// dtstart and after accept RFC 3339 or iCalendar DATE / DATE-TIME values;
// the latter are read in tz. Without an explicit WKST the configured week
// start applies.
func (s *Server) handleRecurrence(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()

	raw := q.Get("rrule")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing rrule")
		return
	}
	tz := q.Get("tz")
	if tz == "" {
		tz = s.cfg.Timezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown timezone")
		return
	}
	start, err := parseDateTime(q.Get("dtstart"), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dtstart")
		return
	}

	rule, err := recur.ParseRule(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.cfg.WeekStart == "sunday" && !strings.Contains(strings.ToUpper(raw), "WKST=") {
		rule.WeekStart = time.Sunday
	}
	it, err := recur.NewIterator(rule, start)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if after := q.Get("after"); after != "" {
		t, err := parseDateTime(after, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after")
			return
		}
		if !it.FastForwardWithin(t, maxRecurrenceSkip) {
			writeError(w, http.StatusBadRequest, "after is too far past dtstart")
			return
		}
	}

	limit := parseIntDefault(q.Get("limit"), defaultRecurrenceLimit)
	if limit <= 0 {
		limit = defaultRecurrenceLimit
	}
	if limit > maxRecurrenceLimit {
		limit = maxRecurrenceLimit
	}
	occ := it.Take(limit)
	if occ == nil {
		occ = []time.Time{}
	}

	writeJSON(w, http.StatusOK, recurrenceResponse{
		Rule:        rule.String(),
		Start:       start,
		TimeZone:    loc.String(),
		Infinite:    it.IsInfinite(),
		Occurrences: occ,
		More:        it.Valid(),
	})
}

// parseDateTime accepts RFC 3339, a local iCalendar DATE-TIME or a DATE.
func parseDateTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty date")
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range []string{"20060102T150405Z", "20060102T150405", "20060102", "2006-01-02T15:04:05", "2006-01-02"} {
		if strings.HasSuffix(layout, "Z") {
			if t, err := time.Parse(layout, v); err == nil {
				return t.In(loc), nil
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("unrecognized date " + strconv.Quote(v))
}
