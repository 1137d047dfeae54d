package events_test

import (
	"SparkLedger/internal/events"
	"testing"
	"time"
)

func TestEventFor_RestDay(t *testing.T) {
	cal := events.DefaultCalendar()
	for _, day := range []int{3, 7, 11, 103} {
		if evt, ok := cal.EventFor(day); ok {
			t.Errorf("day %d should be a rest day, got %s", day, evt.Name)
		}
	}
}

func TestEventFor_Rotation(t *testing.T) {
	cal := events.DefaultCalendar()

	tests := []struct {
		day  int
		want string
	}{
		{0, "harvest_festival"},
		{1, "builders_week"},
		{2, "scholars_fair"},
		{4, "explorers_moon"}, // cycle 1 continues the rotation
		{5, "harvest_festival"},
		{6, "builders_week"},
		{8, "scholars_fair"},
	}

	for _, tt := range tests {
		evt, ok := cal.EventFor(tt.day)
		if !ok {
			t.Errorf("day %d: expected an event", tt.day)
			continue
		}
		if evt.Name != tt.want {
			t.Errorf("day %d: got %s, want %s", tt.day, evt.Name, tt.want)
		}
	}
}

func TestApply(t *testing.T) {
	cal := events.DefaultCalendar()

	got, name := cal.Apply(3, "harvest", 0)
	if got != 6 || name != "harvest_festival" {
		t.Errorf("harvest on festival day: got %d (%q), want 6 (harvest_festival)", got, name)
	}

	got, name = cal.Apply(3, "build", 0)
	if got != 3 || name != "" {
		t.Errorf("non-targeted activity: got %d (%q), want 3 (\"\")", got, name)
	}

	got, _ = cal.Apply(3, "harvest", 3)
	if got != 3 {
		t.Errorf("rest day: got %d, want 3", got)
	}

	// 1.5x of 5 = 7.5 rounds to 8
	got, _ = cal.Apply(5, "build", 1)
	if got != 8 {
		t.Errorf("build on builders_week: got %d, want 8", got)
	}
}

func TestApply_Deterministic(t *testing.T) {
	cal := events.DefaultCalendar()
	day := events.DayOf(time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC))
	a, _ := cal.Apply(10, "harvest", day)
	b, _ := cal.Apply(10, "harvest", day)
	if a != b {
		t.Errorf("same day produced different results: %d vs %d", a, b)
	}
}

func TestNilCalendarPassesThrough(t *testing.T) {
	var cal *events.Calendar
	if got, _ := cal.Apply(7, "harvest", 0); got != 7 {
		t.Errorf("got %d, want 7", got)
	}
}

func TestNewCalendar_Rejects(t *testing.T) {
	if _, err := events.NewCalendar([]events.Event{{Name: "x", Activity: "y", Multiplier: 0}}); err == nil {
		t.Error("expected error for zero multiplier")
	}
	if _, err := events.NewCalendar([]events.Event{{Name: "", Activity: "y", Multiplier: 1}}); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestCalendar_CatalogReturnsCopy(t *testing.T) {
	cal := events.DefaultCalendar()
	got := cal.Catalog()
	if len(got) != len(events.DefaultCatalog()) {
		t.Fatalf("catalog: got %d, want %d", len(got), len(events.DefaultCatalog()))
	}
	got[0].Multiplier = 1
	if cal.Catalog()[0].Multiplier != 20_000 {
		t.Error("mutating the returned slice changed the calendar")
	}

	var none *events.Calendar
	if none.Catalog() != nil {
		t.Error("nil calendar should have no catalog")
	}
}
