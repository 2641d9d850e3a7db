package dashboard

import (
	"sort"
	"time"

	"roombook/internal/civil"
)

// RefreshPolicy says when cached aggregates go stale: at fixed times of day.
type RefreshPolicy struct {
	Times    []civil.TimeOfDay
	Location *time.Location
}

// DefaultRefreshTimes are the two daily refresh boundaries.
func DefaultRefreshTimes() []civil.TimeOfDay {
	return []civil.TimeOfDay{civil.MustTimeOfDay("09:00"), civil.MustTimeOfDay("14:00")}
}

// NewRefreshPolicy sorts times and defaults to the two daily boundaries.
func NewRefreshPolicy(times []civil.TimeOfDay, loc *time.Location) RefreshPolicy {
	if len(times) == 0 {
		times = DefaultRefreshTimes()
	}
	sorted := append([]civil.TimeOfDay(nil), times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	if loc == nil {
		loc = time.Local
	}
	return RefreshPolicy{Times: sorted, Location: loc}
}

// ShouldRefresh reports whether data fetched at lastFetch must be refetched
// at now: never fetched, or a boundary falls in (lastFetch, now].
func (p RefreshPolicy) ShouldRefresh(lastFetch, now time.Time) bool {
	if lastFetch.IsZero() {
		return true
	}
	if !now.After(lastFetch) {
		return false
	}
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	day := civil.DateOf(lastFetch.In(loc))
	last := civil.DateOf(now.In(loc))
	for !day.After(last) {
		for _, tod := range p.Times {
			b := day.At(tod, loc)
			if b.After(lastFetch) && !b.After(now) {
				return true
			}
		}
		day = day.AddDays(1)
	}
	return false
}

// NextRefresh returns the first boundary strictly after t.
func (p RefreshPolicy) NextRefresh(t time.Time) time.Time {
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	if len(p.Times) == 0 {
		return time.Time{}
	}
	day := civil.DateOf(t.In(loc))
	for i := 0; i < 2; i++ {
		for _, tod := range p.Times {
			if b := day.At(tod, loc); b.After(t) {
				return b
			}
		}
		day = day.AddDays(1)
	}
	return time.Time{}
}
