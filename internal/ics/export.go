package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/WordPressBugBounty/plugins-simple-tags/internal/model"
	"github.com/WordPressBugBounty/plugins-simple-tags/internal/recur"
)

const productID = "-//TaxoPress//Calendar//EN"

func newCalendar(name string) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}
	return cal
}

// ExportOccurrences renders expanded occurrences as a calendar with one
// VEVENT per instance.
func ExportOccurrences(name string, occs []model.Occurrence, stamp time.Time) string {
	cal := newCalendar(name)
	for _, o := range occs {
		ev := cal.AddEvent(o.UID + "#" + o.Start.UTC().Format("20060102T150405Z"))
		ev.SetDtStampTime(stamp)
		setTimes(ev, o.Start, o.End, o.AllDay)
		setText(ev, o.Summary, o.Description, o.Location)
	}
	return cal.Serialize()
}

// ExportEvent renders a single event, keeping its recurrence rule and
// exceptions. The rule is validated and written in canonical form.
func ExportEvent(name string, e model.Event, stamp time.Time) (string, error) {
	if e.UID == "" {
		return "", fmt.Errorf("ics: event has no UID")
	}
	cal := newCalendar(name)
	ev := cal.AddEvent(e.UID)
	ev.SetDtStampTime(stamp)
	setTimes(ev, e.Start, e.End, e.AllDay)
	setText(ev, e.Summary, e.Description, e.Location)

	if e.RRule != "" {
		rule, err := recur.ParseRule(e.RRule)
		if err != nil {
			return "", err
		}
		ev.AddRrule(rule.String())
	}
	if len(e.ExDates) > 0 {
		values := make([]string, len(e.ExDates))
		for i, t := range e.ExDates {
			if e.AllDay {
				values[i] = t.Format("20060102")
			} else {
				values[i] = t.UTC().Format("20060102T150405Z")
			}
		}
		if e.AllDay {
			ev.AddProperty(ical.ComponentPropertyExdate, strings.Join(values, ","), ical.WithValue(string(ical.ValueDataTypeDate)))
		} else {
			ev.AddProperty(ical.ComponentPropertyExdate, strings.Join(values, ","))
		}
	}
	return cal.Serialize(), nil
}

func setTimes(ev *ical.VEvent, start, end time.Time, allDay bool) {
	if allDay {
		ev.SetAllDayStartAt(start)
		ev.SetAllDayEndAt(end)
		return
	}
	ev.SetStartAt(start)
	ev.SetEndAt(end)
}

func setText(ev *ical.VEvent, summary, description, location string) {
	if summary != "" {
		ev.SetSummary(summary)
	}
	if description != "" {
		ev.SetDescription(description)
	}
	if location != "" {
		ev.SetLocation(location)
	}
}
