package reservas

import (
	"fmt"
	"strings"

	"roombook/internal/civil"
)

// StatusActive marks a reservation as currently valid. Any other value frees the slot.
const StatusActive = "ativa"

// StatusCancelled is written by the backend on soft delete.
const StatusCancelled = "cancelada"

// Reservation mirrors a /reservas record. Date and time fields are kept as
// received because upstream mixes bare times with full timestamps; use
// Interval to read them.
type Reservation struct {
	ID              int64   `json:"id,omitempty"`
	Date            string  `json:"data"`
	StartTime       string  `json:"hora_inicio"`
	EndTime         string  `json:"hora_fim"`
	Responsible     string  `json:"responsavel"`
	Department      string  `json:"departamento"`
	Description     string  `json:"descricao"`
	RoomID          int     `json:"sala_id"`
	RoomName        string  `json:"sala_nome"`
	Status          string  `json:"status"`
	CreatedBy       string  `json:"criado_por"`
	CalendarEventID *string `json:"evento_calendario_id"`
	CreatedAt       string  `json:"created_at,omitempty"`
	UpdatedAt       string  `json:"updated_at,omitempty"`
}

// IsActive reports whether the reservation holds its slot.
func (r *Reservation) IsActive() bool {
	return strings.EqualFold(strings.TrimSpace(r.Status), StatusActive)
}

// EventID returns the stored calendar event id, or "".
func (r *Reservation) EventID() string {
	if r.CalendarEventID == nil {
		return ""
	}
	return strings.TrimSpace(*r.CalendarEventID)
}

// Interval is the parsed date and time range of a reservation.
type Interval struct {
	Date  civil.Date
	Start civil.TimeOfDay
	End   civil.TimeOfDay
}

// Interval parses the date and times. Any unparseable field is an error;
// callers decide how to treat the record.
func (r *Reservation) Interval() (Interval, error) {
	date, err := civil.ParseDate(r.Date)
	if err != nil {
		return Interval{}, fmt.Errorf("reservation %d date: %w", r.ID, err)
	}
	start, err := civil.ParseTimeOfDay(r.StartTime)
	if err != nil {
		return Interval{Date: date}, fmt.Errorf("reservation %d start: %w", r.ID, err)
	}
	end, err := civil.ParseTimeOfDay(r.EndTime)
	if err != nil {
		return Interval{Date: date}, fmt.Errorf("reservation %d end: %w", r.ID, err)
	}
	return Interval{Date: date, Start: start, End: end}, nil
}

// Key identifies a reservation without its server id.
type Key struct {
	RoomID  int
	Date    civil.Date
	Start   civil.TimeOfDay
	Creator string
}

// String renders the composite key used for the local event-reference fallback.
func (k Key) String() string {
	return fmt.Sprintf("%d|%s|%s|%s", k.RoomID, k.Date, k.Start, strings.ToLower(k.Creator))
}

// KeyOf derives the lookup key of r.
func KeyOf(r *Reservation) (Key, error) {
	iv, err := r.Interval()
	if err != nil {
		return Key{}, err
	}
	return Key{RoomID: r.RoomID, Date: iv.Date, Start: iv.Start, Creator: r.CreatedBy}, nil
}

// Matches reports whether r is the reservation identified by k.
func (k Key) Matches(r *Reservation) bool {
	if r.RoomID != k.RoomID || !strings.EqualFold(r.CreatedBy, k.Creator) {
		return false
	}
	iv, err := r.Interval()
	if err != nil {
		return false
	}
	return iv.Date == k.Date && iv.Start == k.Start
}
