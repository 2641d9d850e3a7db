// Package availability classifies catalog slots as free or occupied for a
// room and day from a reservation snapshot. It performs no I/O.
package availability

import (
	"time"

	"roombook/internal/civil"
	"roombook/internal/reservas"
	"roombook/internal/rooms"
	"roombook/internal/slots"
)

// State of a slot on the target day.
type State string

const (
	StateAvailable State = "available"
	StateOccupied  State = "occupied"
	// StatePast marks today's slots whose start has passed. They are neither
	// bookable nor reported as occupied.
	StatePast State = "past"
)

// SlotStatus is the resolved state of one catalog slot.
type SlotStatus struct {
	Slot      slots.Slot `json:"slot"`
	State     State      `json:"state"`
	Available bool       `json:"available"`
	// ReservationID is the blocking reservation, when known.
	ReservationID int64 `json:"reservation_id,omitempty"`
}

// Summary counts slots for a room and day. Past slots are excluded from all
// three counts, so Total == Available + Occupied.
type Summary struct {
	Available int `json:"available"`
	Occupied  int `json:"occupied"`
	Total     int `json:"total"`
}

// Light is the traffic-light rendering of a Summary.
type Light string

const (
	LightGreen  Light = "green"
	LightYellow Light = "yellow"
	LightRed    Light = "red"
)

// Traffic maps the summary to a light: red when nothing is bookable, green
// when more than half is free, yellow otherwise.
func (s Summary) Traffic() Light {
	switch {
	case s.Available == 0:
		return LightRed
	case s.Available*2 > s.Total:
		return LightGreen
	default:
		return LightYellow
	}
}

// Result is the resolution for one room and day.
type Result struct {
	RoomID  int          `json:"room_id"`
	Date    civil.Date   `json:"date"`
	Slots   []SlotStatus `json:"slots"`
	Summary Summary      `json:"summary"`
	// Unparsed counts active reservations of the room that could not be read
	// and were treated as blocking.
	Unparsed int `json:"unparsed,omitempty"`
}

// IsAvailable reports whether slot id is bookable in the result.
func (r *Result) IsAvailable(id int) bool {
	for _, s := range r.Slots {
		if s.Slot.ID == id {
			return s.Available
		}
	}
	return false
}

// Resolver resolves availability against a slot catalog in a fixed zone.
type Resolver struct {
	catalog  *slots.Catalog
	location *time.Location
}

// NewResolver builds a resolver. loc is the zone "today" is evaluated in.
func NewResolver(catalog *slots.Catalog, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{catalog: catalog, location: loc}
}

// Catalog returns the slot catalog.
func (r *Resolver) Catalog() *slots.Catalog { return r.catalog }

// Location returns the zone used for "today".
func (r *Resolver) Location() *time.Location { return r.location }

type blocker struct {
	id       int64
	start    civil.TimeOfDay
	end      civil.TimeOfDay
	wholeDay bool
}

// Resolve classifies every catalog slot for roomID on date at instant now.
func (r *Resolver) Resolve(snapshot []reservas.Reservation, roomID int, date civil.Date, now time.Time) Result {
	blockers, unparsed := collectBlockers(snapshot, roomID, date)

	nowLocal := now.In(r.location)
	today := civil.DateOf(nowLocal) == date
	nowTOD := civil.TimeOfDayOf(nowLocal)

	res := Result{RoomID: roomID, Date: date, Unparsed: unparsed}
	for _, s := range r.catalog.All() {
		st := SlotStatus{Slot: s}
		switch {
		case today && !s.Start.After(nowTOD):
			st.State = StatePast
		default:
			if b, hit := firstOverlap(blockers, s); hit {
				st.State = StateOccupied
				st.ReservationID = b.id
				res.Summary.Occupied++
			} else {
				st.State = StateAvailable
				st.Available = true
				res.Summary.Available++
			}
		}
		res.Slots = append(res.Slots, st)
	}
	res.Summary.Total = res.Summary.Available + res.Summary.Occupied
	return res
}

// RoomSummary pairs a room with its summary for a day.
type RoomSummary struct {
	Room    rooms.Room `json:"room"`
	Summary Summary    `json:"summary"`
	Light   Light      `json:"light"`
}

// SummarizeRooms resolves every room for date and returns the per-room counts.
func (r *Resolver) SummarizeRooms(snapshot []reservas.Reservation, list []rooms.Room, date civil.Date, now time.Time) []RoomSummary {
	out := make([]RoomSummary, 0, len(list))
	for _, room := range list {
		res := r.Resolve(snapshot, room.ID, date, now)
		out = append(out, RoomSummary{Room: room, Summary: res.Summary, Light: res.Summary.Traffic()})
	}
	return out
}

// Overlaps is the occupancy rule: a reservation [rs, re) occupies slot [s, e)
// when rs ≤ s < re, or rs < e ≤ re, or it lies within the slot.
func Overlaps(rs, re, s, e civil.TimeOfDay) bool {
	rsm, rem, sm, em := rs.Minutes(), re.Minutes(), s.Minutes(), e.Minutes()
	return (rsm <= sm && sm < rem) ||
		(rsm < em && em <= rem) ||
		(sm <= rsm && em >= rem)
}

func firstOverlap(blockers []blocker, s slots.Slot) (blocker, bool) {
	for _, b := range blockers {
		if b.wholeDay || Overlaps(b.start, b.end, s.Start, s.End) {
			return b, true
		}
	}
	return blocker{}, false
}

// collectBlockers keeps active reservations of the room on date. Records that
// fail to parse block the whole day: their date cannot be ruled out.
func collectBlockers(snapshot []reservas.Reservation, roomID int, date civil.Date) ([]blocker, int) {
	var (
		out      []blocker
		unparsed int
	)
	for i := range snapshot {
		r := &snapshot[i]
		if r.RoomID != roomID || !r.IsActive() {
			continue
		}
		iv, err := r.Interval()
		if err != nil {
			if !iv.Date.IsZero() && iv.Date != date {
				continue
			}
			unparsed++
			out = append(out, blocker{id: r.ID, wholeDay: true})
			continue
		}
		if iv.Date != date {
			continue
		}
		out = append(out, blocker{id: r.ID, start: iv.Start, end: iv.End})
	}
	return out, unparsed
}
