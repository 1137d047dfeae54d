package earn

import (
	"fmt"
	"math"
	"sort"
)

// Factor names the detail field a range activity interpolates on.
type Factor string

const (
	FactorNone       Factor = ""
	FactorComplexity Factor = "complexity"
	FactorRarity     Factor = "rarity"
)

// DefaultFactor is used when the caller supplies no factor value.
const DefaultFactor = 0.5

// Activity is one entry of the earning catalog. Fixed activities have Min == Max.
type Activity struct {
	Name   string `json:"name" toml:"name" yaml:"name"`
	Min    int64  `json:"min" toml:"min" yaml:"min"`
	Max    int64  `json:"max" toml:"max" yaml:"max"`
	Factor Factor `json:"factor,omitempty" toml:"factor" yaml:"factor"`
}

// IsRange reports whether the activity interpolates between Min and Max.
func (a Activity) IsRange() bool {
	return a.Max != a.Min
}

// Details carries the caller-supplied context for an earn.
// Nil fields mean "not supplied".
type Details struct {
	Complexity *float64 `json:"complexity,omitempty"`
	Rarity     *float64 `json:"rarity,omitempty"`
}

func (d Details) factor(f Factor) float64 {
	var v *float64
	switch f {
	case FactorComplexity:
		v = d.Complexity
	case FactorRarity:
		v = d.Rarity
	}
	if v == nil {
		return DefaultFactor
	}
	return *v
}

// Table maps activity identifiers to their Spark value.
type Table struct {
	activities map[string]Activity
}

// NewTable builds a table from a list of activities. Later duplicates win.
func NewTable(activities []Activity) (Table, error) {
	t := Table{activities: make(map[string]Activity, len(activities))}
	for _, a := range activities {
		if a.Name == "" {
			return Table{}, fmt.Errorf("activity with empty name")
		}
		if a.Min < 0 || a.Max < a.Min {
			return Table{}, fmt.Errorf("activity %s has invalid range [%d, %d]", a.Name, a.Min, a.Max)
		}
		if a.IsRange() && a.Factor == FactorNone {
			return Table{}, fmt.Errorf("range activity %s has no factor", a.Name)
		}
		t.activities[a.Name] = a
	}
	return t, nil
}

// Lookup returns the catalog entry for an activity.
func (t Table) Lookup(name string) (Activity, bool) {
	a, ok := t.activities[name]
	return a, ok
}

// Calculate returns the gross Spark for an activity. Unknown activities earn 0.
func (t Table) Calculate(name string, details Details) int64 {
	a, ok := t.activities[name]
	if !ok {
		return 0
	}
	if !a.IsRange() {
		return a.Min
	}

	f := details.factor(a.Factor)
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}

	// One rounding step, half away from zero, on the exact interpolant
	return int64(math.Round(float64(a.Min) + float64(a.Max-a.Min)*f))
}

// Activities returns the catalog sorted by name.
func (t Table) Activities() []Activity {
	out := make([]Activity, 0, len(t.activities))
	for _, a := range t.activities {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of activities.
func (t Table) Len() int {
	return len(t.activities)
}

// Fixed is shorthand for a constant-value activity.
func Fixed(name string, value int64) Activity {
	return Activity{Name: name, Min: value, Max: value}
}

// Range is shorthand for an interpolated activity.
func Range(name string, min, max int64, factor Factor) Activity {
	return Activity{Name: name, Min: min, Max: max, Factor: factor}
}

// DefaultActivities is the stock catalog. Zero-value entries are kept so that
// callers can tell "known but unpaid" from "unknown".
func DefaultActivities() []Activity {
	return []Activity{
		Fixed("daily_login", 10),
		Fixed("join", 1),
		Fixed("move", 0),
		Fixed("say", 1),
		Fixed("shout", 2),
		Fixed("whisper", 1),
		Fixed("emote", 1),
		Fixed("build", 10),
		Fixed("plant", 5),
		Range("craft", 5, 15, FactorComplexity),
		Range("compose", 10, 25, FactorComplexity),
		Fixed("harvest", 3),
		Fixed("gift", 5),
		Fixed("teach", 10),
		Fixed("learn", 5),
		Fixed("score", 10),
		Range("discover", 10, 30, FactorRarity),
		Fixed("anchor_place", 25),
		Fixed("inspect", 1),
		Fixed("intention_set", 2),
		Fixed("warp_fork", 50),
		Fixed("federation_announce", 100),
		Fixed("federation_handshake", 50),
	}
}

// DefaultTable returns the stock catalog as a Table.
func DefaultTable() Table {
	t, err := NewTable(DefaultActivities())
	if err != nil {
		panic(fmt.Sprintf("FATAL: default earn table invalid: %v", err))
	}
	return t
}
