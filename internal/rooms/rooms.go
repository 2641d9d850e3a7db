// Package rooms holds the bookable room catalog.
package rooms

import (
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned for unknown room ids.
var ErrNotFound = errors.New("rooms: not found")

// Room is a bookable office space.
type Room struct {
	ID           int    `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	Capacity     int    `json:"capacity" yaml:"capacity"`
	Floor        int    `json:"floor" yaml:"floor"`
	PriorityNote string `json:"priority_note,omitempty" yaml:"priority_note,omitempty"`
}

// Defaults is the built-in room list used when no rooms.yaml is present.
func Defaults() []Room {
	return []Room{
		{ID: 1, Name: "Sala Ipê", Capacity: 8, Floor: 1},
		{ID: 2, Name: "Sala Jacarandá", Capacity: 6, Floor: 1},
		{ID: 3, Name: "Sala Aroeira", Capacity: 4, Floor: 2},
		{ID: 4, Name: "Sala Jequitibá", Capacity: 12, Floor: 2, PriorityNote: "Prioridade para diretoria"},
		{ID: 5, Name: "Auditório", Capacity: 40, Floor: 3, PriorityNote: "Reservas acima de 2h exigem aprovação"},
	}
}

// Catalog is a concurrency-safe, replaceable room list.
type Catalog struct {
	mu    sync.RWMutex
	rooms []Room
	byID  map[int]Room
}

// NewCatalog builds a catalog from list.
func NewCatalog(list []Room) *Catalog {
	c := &Catalog{}
	c.Replace(list)
	return c
}

// Replace swaps the room list atomically (used by the hot reload).
func (c *Catalog) Replace(list []Room) {
	sorted := append([]Room(nil), list...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	byID := make(map[int]Room, len(sorted))
	for _, r := range sorted {
		byID[r.ID] = r
	}

	c.mu.Lock()
	c.rooms = sorted
	c.byID = byID
	c.mu.Unlock()
}

// All returns the rooms ordered by id.
func (c *Catalog) All() []Room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Room(nil), c.rooms...)
}

// Get returns the room with id.
func (c *Catalog) Get(id int) (Room, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.byID[id]
	if !ok {
		return Room{}, ErrNotFound
	}
	return r, nil
}
