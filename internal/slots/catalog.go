package slots

import (
	"fmt"
	"sort"

	"roombook/internal/civil"
)

// Slot is a fixed bookable window.
type Slot struct {
	ID    int             `json:"id"`
	Start civil.TimeOfDay `json:"start"`
	End   civil.TimeOfDay `json:"end"`
}

// Overlaps reports whether [s.Start, s.End) intersects [start, end).
func (s Slot) Overlaps(start, end civil.TimeOfDay) bool {
	return isOverlapping(s.Start.Minutes(), s.End.Minutes(), start.Minutes(), end.Minutes())
}

func (s Slot) String() string { return s.Start.String() + "–" + s.End.String() }

// Schedule describes the working day the catalog is cut from.
type Schedule struct {
	StartTime   string `yaml:"start_time"`            // "08:00"
	EndTime     string `yaml:"end_time"`              // "18:00"
	LunchStart  string `yaml:"lunch_start,omitempty"` // "12:00"
	LunchEnd    string `yaml:"lunch_end,omitempty"`   // "13:00"
	SlotMinutes int    `yaml:"slot_minutes"`          // 30
}

// DefaultSchedule is the office day: 08:00–18:00 with a 12:00–13:00 lunch gap.
func DefaultSchedule() Schedule {
	return Schedule{
		StartTime:   "08:00",
		EndTime:     "18:00",
		LunchStart:  "12:00",
		LunchEnd:    "13:00",
		SlotMinutes: 30,
	}
}

// Generate cuts the schedule into consecutive slots, skipping the lunch gap.
// IDs are assigned from 1 in start order.
func Generate(schedule Schedule) ([]Slot, error) {
	if schedule.SlotMinutes <= 0 {
		schedule.SlotMinutes = 30
	}

	start, err := civil.ParseTimeOfDay(schedule.StartTime)
	if err != nil {
		return nil, fmt.Errorf("parse start time: %w", err)
	}
	end, err := civil.ParseTimeOfDay(schedule.EndTime)
	if err != nil {
		return nil, fmt.Errorf("parse end time: %w", err)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("end time %s must be after start time %s", end, start)
	}

	var lunchStart, lunchEnd civil.TimeOfDay
	hasLunch := schedule.LunchStart != "" && schedule.LunchEnd != ""
	if hasLunch {
		if lunchStart, err = civil.ParseTimeOfDay(schedule.LunchStart); err != nil {
			return nil, fmt.Errorf("parse lunch start: %w", err)
		}
		if lunchEnd, err = civil.ParseTimeOfDay(schedule.LunchEnd); err != nil {
			return nil, fmt.Errorf("parse lunch end: %w", err)
		}
	}

	step := schedule.SlotMinutes
	var out []Slot
	for cursor := start.Minutes(); cursor+step <= end.Minutes(); cursor += step {
		if hasLunch && isOverlapping(cursor, cursor+step, lunchStart.Minutes(), lunchEnd.Minutes()) {
			continue
		}
		out = append(out, Slot{
			ID:    len(out) + 1,
			Start: civil.TimeOfDay{Hour: cursor / 60, Minute: cursor % 60},
			End:   civil.TimeOfDay{Hour: (cursor + step) / 60, Minute: (cursor + step) % 60},
		})
	}
	return out, nil
}

// Catalog is the immutable slot list shared by every room.
type Catalog struct {
	slots []Slot
	byID  map[int]Slot
}

// NewCatalog generates a catalog from schedule.
func NewCatalog(schedule Schedule) (*Catalog, error) {
	list, err := Generate(schedule)
	if err != nil {
		return nil, err
	}
	byID := make(map[int]Slot, len(list))
	for _, s := range list {
		byID[s.ID] = s
	}
	return &Catalog{slots: list, byID: byID}, nil
}

// DefaultCatalog returns the catalog for DefaultSchedule.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultSchedule())
	if err != nil {
		panic(err)
	}
	return c
}

// All returns a copy of the slots in start order.
func (c *Catalog) All() []Slot {
	out := make([]Slot, len(c.slots))
	copy(out, c.slots)
	return out
}

// Get returns the slot with id.
func (c *Catalog) Get(id int) (Slot, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Len returns the number of slots.
func (c *Catalog) Len() int { return len(c.slots) }

// Select resolves ids to slots sorted by start time. Unknown ids are returned separately.
func (c *Catalog) Select(ids []int) (found []Slot, unknown []int) {
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		s, ok := c.byID[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		found = append(found, s)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Start.Before(found[j].Start) })
	return found, unknown
}

func isOverlapping(start1, end1, start2, end2 int) bool {
	return start1 < end2 && start2 < end1
}
