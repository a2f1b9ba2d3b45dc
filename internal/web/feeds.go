package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/WordPressBugBounty/plugins-simple-tags/internal/ics"
	appLog "github.com/WordPressBugBounty/plugins-simple-tags/internal/log"
	"github.com/WordPressBugBounty/plugins-simple-tags/internal/model"
)

const (
	eventsCacheTTL         = 30 * time.Second
	maxOccurrencesPerEvent = 5000
	calendarName           = "TaxoPress"
)

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Occurrences     []model.Occurrence `json:"occurrences"`
	TruncatedUIDs   []string           `json:"truncated_uids,omitempty"`
	RangeStart      time.Time          `json:"range_start"`
	RangeEnd        time.Time          `json:"range_end"`
	DisplayTimeZone string             `json:"display_timezone"`
	WeekStart       string             `json:"week_start"`
}

// eventsCache holds a cached expansion and its timestamp. key identifies
// the requested window.
type eventsCache struct {
	key       string
	resp      eventsResponse
	updatedAt time.Time
}

func (s *Server) sources() []ics.Source {
	out := make([]ics.Source, 0, len(s.cfg.Feeds))
	for _, f := range s.cfg.Feeds {
		if f.URL == "" {
			continue
		}
		out = append(out, ics.Source{ID: f.ID, Name: f.Name, URL: f.URL})
	}
	return out
}

// RefreshFeeds fetches every configured feed into the store cache and drops
// the in-memory expansion.
func (s *Server) RefreshFeeds(ctx context.Context) error {
	results, errs := s.fetcher.FetchAll(ctx, s.sources())
	s.eventsMu.Lock()
	s.eventsCache = nil
	s.eventsMu.Unlock()
	appLog.Info("feeds refreshed", "ok", len(results), "failed", len(errs))
	return errors.Join(errs...)
}

// expand returns the occurrences from days back to days ahead of now,
// served from the in-memory cache while it is fresh.
func (s *Server) expand(ctx context.Context, days, backfill int) (eventsResponse, error) {
	key := strconv.Itoa(days) + "/" + strconv.Itoa(backfill)
	now := s.now()

	s.eventsMu.RLock()
	ec := s.eventsCache
	s.eventsMu.RUnlock()
	if ec != nil && ec.key == key && now.Sub(ec.updatedAt) < eventsCacheTTL {
		return ec.resp, nil
	}

	loc := resolveLocationOrLocal(s.cfg.Timezone)
	local := now.In(loc)
	rangeStart := local.AddDate(0, 0, -backfill)
	rangeEnd := local.AddDate(0, 0, days)

	resp := eventsResponse{
		Occurrences:     []model.Occurrence{},
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
		DisplayTimeZone: loc.String(),
		WeekStart:       s.cfg.WeekStart,
	}
	sources := s.sources()
	if len(sources) == 0 {
		return resp, nil
	}

	fetchResults, fetchErrs := s.fetcher.FetchAll(ctx, sources)
	if len(fetchErrs) > 0 {
		appLog.Error("events: one or more ICS fetches failed", errors.Join(fetchErrs...), "error_count", len(fetchErrs))
	}

	parsed := make([]ics.ParsedEvent, 0)
	for _, res := range fetchResults {
		events, err := ics.ParseICS(res.Source, res.Body, loc)
		if err != nil {
			appLog.Error("events: parse failed for source", err, "id", res.Source.ID)
			continue
		}
		parsed = append(parsed, events...)
	}

	result, err := ics.ExpandOccurrences(parsed, ics.ExpandConfig{
		DisplayLocation:        loc,
		RangeStart:             rangeStart,
		RangeEnd:               rangeEnd,
		MaxOccurrencesPerEvent: maxOccurrencesPerEvent,
	})
	if err != nil {
		return eventsResponse{}, err
	}
	resp.Occurrences = result.Occurrences
	resp.TruncatedUIDs = result.TruncatedEvents

	s.eventsMu.Lock()
	s.eventsCache = &eventsCache{key: key, resp: resp, updatedAt: now}
	s.eventsMu.Unlock()
	return resp, nil
}

// handleEvents returns expanded occurrences of the configured feeds.
//
// GET /api/events?days=7&backfill=1
//   - days:     how many days ahead (default horizon_days)
//   - backfill: how many past days to include (default 1)
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	days := parseIntDefault(q.Get("days"), s.cfg.HorizonDays)
	if days <= 0 {
		days = s.cfg.HorizonDays
	}
	backfill := parseIntDefault(q.Get("backfill"), 1)
	if backfill < 0 {
		backfill = 0
	}

	resp, err := s.expand(r.Context(), days, backfill)
	if err != nil {
		appLog.Error("events: expand failed", err)
		writeError(w, http.StatusInternalServerError, "failed to expand events")
		return
	}
	appLog.Debug("api events request", "days", days, "backfill", backfill, "count", len(resp.Occurrences))
	writeJSON(w, http.StatusOK, resp)
}

// handleCalendar serves the occurrences of the horizon as one calendar.
//
// GET /calendar.ics
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	resp, err := s.expand(r.Context(), s.cfg.HorizonDays, 1)
	if err != nil {
		appLog.Error("calendar: expand failed", err)
		http.Error(w, "failed to expand events", http.StatusInternalServerError)
		return
	}
	body := ics.ExportOccurrences(calendarName, resp.Occurrences, s.now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
