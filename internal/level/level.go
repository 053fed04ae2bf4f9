// Package level maps cumulative experience to levels.
//
// A Table is an ascending list of experience thresholds indexed by level,
// level 1 starting at 0 XP. Tables are immutable values and every method is a
// pure function of its inputs.
//
// Two feature areas of the tracker display levels on different curves, so two
// named tables ship built in and are kept apart:
//   - Flat: 100 XP per level, 20 levels.
//   - Graduated: 15 levels with widening gaps.
package level

import (
	"fmt"
	"sort"
)

// Built-in table names.
const (
	NameFlat      = "flat"
	NameGraduated = "graduated"
)

// Table is a named, ascending threshold table.
type Table struct {
	name       string
	thresholds []int // thresholds[i] is the XP at which level i+1 starts
}

// New validates thresholds and returns a Table.
//
// thresholds must be non-empty, start at 0 and be strictly ascending.
// The slice is copied.
func New(name string, thresholds []int) (Table, error) {
	if name == "" {
		return Table{}, fmt.Errorf("level table: missing name")
	}
	if len(thresholds) == 0 {
		return Table{}, fmt.Errorf("level table %q: no thresholds", name)
	}
	if thresholds[0] != 0 {
		return Table{}, fmt.Errorf("level table %q: level 1 must start at 0, got %d", name, thresholds[0])
	}
	for i := 1; i < len(thresholds); i++ {
		if thresholds[i] <= thresholds[i-1] {
			return Table{}, fmt.Errorf("level table %q: threshold for level %d (%d) must exceed level %d (%d)",
				name, i+1, thresholds[i], i, thresholds[i-1])
		}
	}
	cp := make([]int, len(thresholds))
	copy(cp, thresholds)
	return Table{name: name, thresholds: cp}, nil
}

// MustNew is like New but panics on invalid input.
func MustNew(name string, thresholds []int) Table {
	t, err := New(name, thresholds)
	if err != nil {
		panic(err)
	}
	return t
}

// Flat is the 100-XP-per-level table.
var Flat = MustNew(NameFlat, flatThresholds(20, 100))

// Graduated is the 15-level table.
var Graduated = MustNew(NameGraduated, []int{
	0, 100, 250, 450, 700,
	1000, 1350, 1750, 2200, 2700,
	3250, 3850, 4500, 5200, 6000,
})

func flatThresholds(levels, step int) []int {
	out := make([]int, levels)
	for i := range out {
		out[i] = i * step
	}
	return out
}

// Name returns the table name.
func (t Table) Name() string { return t.name }

// MaxLevel returns the highest reachable level.
func (t Table) MaxLevel() int { return len(t.thresholds) }

// Thresholds returns a copy of the threshold list.
func (t Table) Thresholds() []int {
	cp := make([]int, len(t.thresholds))
	copy(cp, t.thresholds)
	return cp
}

// LevelFor returns the highest level whose threshold is <= xp, capped at
// MaxLevel. Negative xp is treated as 0.
func (t Table) LevelFor(xp int) int {
	if len(t.thresholds) == 0 {
		return 1
	}
	if xp < 0 {
		xp = 0
	}
	// First index whose threshold exceeds xp; that index is the level number.
	return sort.Search(len(t.thresholds), func(i int) bool { return t.thresholds[i] > xp })
}

// ExperienceFor returns the XP at which level starts. Levels below 1 clamp to
// 0 and levels above MaxLevel clamp to the last threshold.
func (t Table) ExperienceFor(lvl int) int {
	if len(t.thresholds) == 0 || lvl <= 1 {
		return 0
	}
	if lvl > len(t.thresholds) {
		lvl = len(t.thresholds)
	}
	return t.thresholds[lvl-1]
}

// ToNext returns the XP still needed to reach the next level, or 0 at the cap.
func (t Table) ToNext(xp int) int {
	lvl := t.LevelFor(xp)
	if lvl >= t.MaxLevel() {
		return 0
	}
	if xp < 0 {
		xp = 0
	}
	return t.thresholds[lvl] - xp
}
