package models

import (
	"sort"
	"time"
)

// BoosterKind distinguishes time-boxed from count-boxed boosters
type BoosterKind string

const (
	BoosterKindTime  BoosterKind = "time"
	BoosterKindCount BoosterKind = "count"
)

// Booster is the decoded form of an active_boosters entry
type Booster struct {
	ID        string      `json:"id"`
	Kind      BoosterKind `json:"kind"`
	ExpiresAt time.Time   `json:"expires_at,omitempty"`
	Remaining int         `json:"remaining,omitempty"`
}

// DecodeBooster converts a raw active_boosters value. Negative values are games
// remaining, positive values are an expiry in unix milliseconds. Zero decodes to
// nothing.
func DecodeBooster(id string, raw int64) (Booster, bool) {
	switch {
	case raw < 0:
		return Booster{ID: id, Kind: BoosterKindCount, Remaining: int(-raw)}, true
	case raw > 0:
		return Booster{ID: id, Kind: BoosterKindTime, ExpiresAt: time.UnixMilli(raw)}, true
	}
	return Booster{}, false
}

// Active reports whether the booster still has an effect at now
func (b Booster) Active(now time.Time) bool {
	switch b.Kind {
	case BoosterKindCount:
		return b.Remaining > 0
	case BoosterKindTime:
		return b.ExpiresAt.After(now)
	}
	return false
}

// TimeLeft is the remaining duration of a time booster, zero otherwise
func (b Booster) TimeLeft(now time.Time) time.Duration {
	if b.Kind != BoosterKindTime || !b.ExpiresAt.After(now) {
		return 0
	}
	return b.ExpiresAt.Sub(now)
}

// DecodeBoosters returns the active boosters of an inventory ordered by id
func DecodeBoosters(raw map[string]int64, now time.Time) []Booster {
	boosters := make([]Booster, 0, len(raw))
	for id, v := range raw {
		b, ok := DecodeBooster(id, v)
		if !ok || !b.Active(now) {
			continue
		}
		boosters = append(boosters, b)
	}
	sort.Slice(boosters, func(i, j int) bool { return boosters[i].ID < boosters[j].ID })
	return boosters
}
