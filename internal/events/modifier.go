package events

import (
	fpmath "SparkLedger/internal/math"
	"fmt"
	"time"
)

// CycleLength is the number of days in one event cycle; the last day rests.
const CycleLength = 4

// ActiveDaysPerCycle is the number of event days in each cycle.
const ActiveDaysPerCycle = CycleLength - 1

// Event boosts one activity's gross earnings for a day.
type Event struct {
	Name       string     `json:"name" toml:"name" yaml:"name"`
	Activity   string     `json:"activity" toml:"activity" yaml:"activity"`
	Multiplier fpmath.Bps `json:"multiplier_bps" toml:"multiplier_bps" yaml:"multiplier_bps"`
}

// DefaultCatalog is the stock rotation.
func DefaultCatalog() []Event {
	return []Event{
		{Name: "harvest_festival", Activity: "harvest", Multiplier: 20_000},
		{Name: "builders_week", Activity: "build", Multiplier: 15_000},
		{Name: "scholars_fair", Activity: "teach", Multiplier: 15_000},
		{Name: "explorers_moon", Activity: "discover", Multiplier: 20_000},
	}
}

// Calendar selects the event for a day from a fixed catalog.
// It holds no mutable state; the same day always yields the same event.
type Calendar struct {
	catalog []Event
}

// NewCalendar validates a catalog. An empty catalog disables events.
func NewCalendar(catalog []Event) (*Calendar, error) {
	for i, e := range catalog {
		if e.Name == "" || e.Activity == "" {
			return nil, fmt.Errorf("event %d missing name or activity", i)
		}
		if e.Multiplier <= 0 {
			return nil, fmt.Errorf("event %s has non-positive multiplier %d", e.Name, e.Multiplier)
		}
	}
	return &Calendar{catalog: append([]Event(nil), catalog...)}, nil
}

// DefaultCalendar returns a calendar over DefaultCatalog.
func DefaultCalendar() *Calendar {
	c, err := NewCalendar(DefaultCatalog())
	if err != nil {
		panic(fmt.Sprintf("FATAL: default event catalog invalid: %v", err))
	}
	return c
}

// DayOf returns the UTC day-of-year used to index the cycle.
func DayOf(t time.Time) int {
	return t.UTC().YearDay()
}

// EventFor returns the event active on a day, or false on rest days.
func (c *Calendar) EventFor(day int) (Event, bool) {
	if c == nil || len(c.catalog) == 0 {
		return Event{}, false
	}
	if day < 0 {
		day = -day
	}

	pos := day % CycleLength
	if pos == ActiveDaysPerCycle {
		return Event{}, false
	}

	cycle := day / CycleLength
	idx := (cycle*ActiveDaysPerCycle + pos) % len(c.catalog)
	return c.catalog[idx], true
}

// Apply multiplies base by the day's multiplier if the day's event targets
// activity. Returns the adjusted amount and the event name ("" if none applied).
func (c *Calendar) Apply(base int64, activity string, day int) (int64, string) {
	evt, ok := c.EventFor(day)
	if !ok || evt.Activity != activity {
		return base, ""
	}
	return fpmath.MulBps(base, evt.Multiplier, fpmath.RoundHalfUp), evt.Name
}

// Catalog returns a copy of the configured events.
func (c *Calendar) Catalog() []Event {
	if c == nil {
		return nil
	}
	return append([]Event(nil), c.catalog...)
}
