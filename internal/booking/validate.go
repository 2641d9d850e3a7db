package booking

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"roombook/internal/civil"
	"roombook/internal/rooms"
	"roombook/internal/slots"
)

// ValidationError lists blocking problems per form field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid draft: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

// RoomLookup resolves room ids.
type RoomLookup interface {
	Get(id int) (rooms.Room, error)
}

// Validate checks d against the room and slot catalogs at instant now in loc.
// It returns the room and the selected slots in start order.
func Validate(d Draft, roomsCat RoomLookup, catalog *slots.Catalog, now time.Time, loc *time.Location) (rooms.Room, []slots.Slot, error) {
	verr := &ValidationError{}

	room, err := roomsCat.Get(d.RoomID)
	if err != nil {
		verr.add("room_id", fmt.Sprintf("unknown room %d", d.RoomID))
	}

	local := now.In(loc)
	today := civil.DateOf(local)
	switch {
	case d.Date.IsZero():
		verr.add("date", "date is required")
	case d.Date.Before(today):
		verr.add("date", "date is in the past")
	}

	selected, unknown := catalog.Select(d.SlotIDs)
	switch {
	case len(d.SlotIDs) == 0:
		verr.add("slot_ids", "select at least one slot")
	case len(unknown) > 0:
		verr.add("slot_ids", fmt.Sprintf("unknown slots %v", unknown))
	case d.Date == today:
		nowTOD := civil.TimeOfDayOf(local)
		for _, s := range selected {
			if !s.Start.After(nowTOD) {
				verr.add("slot_ids", fmt.Sprintf("slot %s already started", s))
				break
			}
		}
	}

	if strings.TrimSpace(d.Title) == "" {
		verr.add("title", "title is required")
	}
	if strings.TrimSpace(d.Department) == "" {
		verr.add("department", "department is required")
	}

	if len(verr.Fields) > 0 {
		return rooms.Room{}, nil, verr
	}
	return room, selected, nil
}
