// Command rrulecat prints the occurrences of a recurrence rule.
//
//	rrulecat -rule 'FREQ=MONTHLY;BYDAY=-1FR' -start 20240101T090000 -tz Europe/Zurich -n 5
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/WordPressBugBounty/plugins-simple-tags/internal/recur"
)

type flagConfig struct {
	rule  string
	start string
	tz    string
	n     int
	after string
}

func main() {
	flags := parseFlags()
	if err := run(os.Stdout, flags); err != nil {
		fmt.Fprintln(os.Stderr, "rrulecat:", err)
		os.Exit(1)
	}
}

func run(w io.Writer, flags flagConfig) error {
	if flags.rule == "" {
		return fmt.Errorf("-rule is required")
	}
	loc, err := time.LoadLocation(flags.tz)
	if err != nil {
		return err
	}
	start := time.Now().In(loc).Truncate(time.Second)
	if flags.start != "" {
		if start, err = parseTime(flags.start, loc); err != nil {
			return fmt.Errorf("-start: %w", err)
		}
	}

	rule, err := recur.ParseRule(flags.rule)
	if err != nil {
		return err
	}
	it, err := recur.NewIterator(rule, start)
	if err != nil {
		return err
	}
	if flags.after != "" {
		after, err := parseTime(flags.after, loc)
		if err != nil {
			return fmt.Errorf("-after: %w", err)
		}
		it.FastForward(after)
	}

	for _, t := range it.Take(flags.n) {
		fmt.Fprintln(w, t.Format(time.RFC3339))
	}
	if it.Valid() {
		fmt.Fprintln(w, "...")
	}
	return nil
}

// parseTime accepts RFC 3339 and iCalendar DATE / DATE-TIME values.
func parseTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.In(loc), nil
	}
	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse("20060102T150405Z", v)
		return t.In(loc), err
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.rule, "rule", "", "RRULE value, e.g. FREQ=WEEKLY;BYDAY=MO,WE")
	flag.StringVar(&cfg.start, "start", "", "First occurrence (RFC 3339 or 20060102T150405); defaults to now")
	flag.StringVar(&cfg.tz, "tz", "UTC", "IANA timezone for -start and output")
	flag.IntVar(&cfg.n, "n", 10, "Number of occurrences to print")
	flag.StringVar(&cfg.after, "after", "", "Skip occurrences before this time")

	flag.Parse()

	return cfg
}
