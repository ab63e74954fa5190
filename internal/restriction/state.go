package restriction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
)

// Persisted keys.
const (
	KeyBlockedApps       = "restrictions.blocked_apps"
	KeyBlockedCategories = "restrictions.blocked_categories"
	KeyGoalMinutes       = "restrictions.goal_minutes"
	KeyDowntime          = "restrictions.downtime"
)

// Keys lists every restriction key.
var Keys = []string{KeyBlockedApps, KeyBlockedCategories, KeyGoalMinutes, KeyDowntime}

// State is the full restriction set.
type State struct {
	BlockedApps       []string       `json:"blocked_apps"`
	BlockedCategories []string       `json:"blocked_categories"`
	GoalMinutes       map[string]int `json:"goal_minutes"`
	Downtime          bool           `json:"downtime"`
}

// IsEmpty reports whether no restriction is in force.
func (s State) IsEmpty() bool {
	return len(s.BlockedApps) == 0 &&
		len(s.BlockedCategories) == 0 &&
		len(s.GoalMinutes) == 0 &&
		!s.Downtime
}

// Clone returns a deep copy.
func (s State) Clone() State {
	return State{
		BlockedApps:       slices.Clone(s.BlockedApps),
		BlockedCategories: slices.Clone(s.BlockedCategories),
		GoalMinutes:       maps.Clone(s.GoalMinutes),
		Downtime:          s.Downtime,
	}
}

// Equal reports whether two states hold the same restrictions. Block
// lists compare as sets; nil and empty are equal.
func (s State) Equal(o State) bool {
	return sameSet(s.BlockedApps, o.BlockedApps) &&
		sameSet(s.BlockedCategories, o.BlockedCategories) &&
		maps.Equal(s.GoalMinutes, o.GoalMinutes) &&
		s.Downtime == o.Downtime
}

// WithoutBlockLists returns a copy with both block lists cleared.
func (s State) WithoutBlockLists() State {
	c := s.Clone()
	c.BlockedApps = nil
	c.BlockedCategories = nil
	return c
}

// Validate rejects negative goal thresholds.
func (s State) Validate() error {
	for cat, mins := range s.GoalMinutes {
		if mins < 0 {
			return fmt.Errorf("%w: %s=%d", ErrInvalidGoal, cat, mins)
		}
	}
	return nil
}

// Normalize sorts and de-duplicates the block lists and drops empty
// collections to nil.
func (s State) Normalize() State {
	c := s.Clone()
	c.BlockedApps = uniqueSorted(c.BlockedApps)
	c.BlockedCategories = uniqueSorted(c.BlockedCategories)
	if len(c.GoalMinutes) == 0 {
		c.GoalMinutes = nil
	}
	return c
}

func uniqueSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	sort.Strings(out)
	return slices.Compact(out)
}

func sameSet(a, b []string) bool {
	return slices.Equal(uniqueSorted(a), uniqueSorted(b))
}

// Load reads the restriction keys from store. Absent keys are zero.
func Load(ctx context.Context, store Store) (State, error) {
	var s State
	targets := []struct {
		key string
		dst any
	}{
		{KeyBlockedApps, &s.BlockedApps},
		{KeyBlockedCategories, &s.BlockedCategories},
		{KeyGoalMinutes, &s.GoalMinutes},
		{KeyDowntime, &s.Downtime},
	}
	for _, t := range targets {
		raw, err := store.Get(ctx, t.key)
		if errors.Is(err, ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return State{}, fmt.Errorf("loading %s: %w", t.key, err)
		}
		if err := json.Unmarshal([]byte(raw), t.dst); err != nil {
			return State{}, fmt.Errorf("%w: %s: %w", ErrInvalidValue, t.key, err)
		}
	}
	return s.Normalize(), nil
}

// Stage records s into b. Empty restrictions become deletions so a
// cleared state leaves no restriction keys behind.
func Stage(b *Batch, s State) error {
	s = s.Normalize()

	stage := func(key string, empty bool, v any) error {
		if empty {
			b.Delete(key)
			return nil
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", key, err)
		}
		b.Put(key, string(raw))
		return nil
	}

	if err := stage(KeyBlockedApps, len(s.BlockedApps) == 0, s.BlockedApps); err != nil {
		return err
	}
	if err := stage(KeyBlockedCategories, len(s.BlockedCategories) == 0, s.BlockedCategories); err != nil {
		return err
	}
	if err := stage(KeyGoalMinutes, len(s.GoalMinutes) == 0, s.GoalMinutes); err != nil {
		return err
	}
	return stage(KeyDowntime, !s.Downtime, s.Downtime)
}

// Save writes s to store in one batch.
func Save(ctx context.Context, store Store, s State) error {
	var b Batch
	if err := Stage(&b, s); err != nil {
		return err
	}
	return store.Apply(ctx, b)
}
