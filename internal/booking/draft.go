package booking

import (
	"errors"
	"sort"
	"sync"
	"time"

	"roombook/internal/civil"
)

// ErrNoDraft is returned when the user has no open draft.
var ErrNoDraft = errors.New("booking: no open draft")

// Draft is the form a user fills in on the room detail view.
type Draft struct {
	RoomID       int        `json:"room_id"`
	Date         civil.Date `json:"date"`
	SlotIDs      []int      `json:"slot_ids"`
	Title        string     `json:"title"`
	Department   string     `json:"department"`
	Responsible  string     `json:"responsible"`
	Participants string     `json:"participants"`
	// ProceedWithoutInvalid confirms submission after rejected participants
	// were reported back.
	ProceedWithoutInvalid bool `json:"proceed_without_invalid"`
}

// ToggleSlot selects id, or deselects it when already selected.
func (d *Draft) ToggleSlot(id int) {
	for i, s := range d.SlotIDs {
		if s == id {
			d.SlotIDs = append(d.SlotIDs[:i], d.SlotIDs[i+1:]...)
			return
		}
	}
	d.SlotIDs = append(d.SlotIDs, id)
	sort.Ints(d.SlotIDs)
}

// SetSlots replaces the selection with the distinct ids.
func (d *Draft) SetSlots(ids []int) {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Ints(out)
	d.SlotIDs = out
}

// RemoveSlots deselects ids.
func (d *Draft) RemoveSlots(ids []int) {
	drop := make(map[int]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := d.SlotIDs[:0]
	for _, id := range d.SlotIDs {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	d.SlotIDs = kept
}

// Session is one user's draft with its submission state.
type Session struct {
	User      string
	Name      string
	StartedAt time.Time

	mu        sync.Mutex
	state     State
	draft     Draft
	updatedAt time.Time
	now       func() time.Time
}

func (s *Session) touch() { s.updatedAt = s.now() }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Draft returns a copy of the draft.
func (s *Session) Draft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.draft
	d.SlotIDs = append([]int(nil), s.draft.SlotIDs...)
	return d
}

// Update mutates the draft. Only an idle draft can change.
func (s *Session) Update(fn func(*Draft)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return ErrInvalidTransition
	}
	fn(&s.draft)
	s.touch()
	return nil
}

func (s *Session) isExpired(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateIdle && s.now().Sub(s.updatedAt) > timeout
}

// DraftStore keeps one draft per user and drops idle ones.
type DraftStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	timeout  time.Duration
	now      func() time.Time
}

// NewDraftStore creates a store. Drafts untouched for timeout expire.
func NewDraftStore(timeout time.Duration) *DraftStore {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &DraftStore{
		sessions: make(map[string]*Session),
		timeout:  timeout,
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (ds *DraftStore) WithClock(now func() time.Time) *DraftStore {
	ds.now = now
	return ds
}

// Open starts a fresh draft for user on room and date, replacing any
// previous one unless it is being submitted.
func (ds *DraftStore) Open(user, name string, roomID int, date civil.Date) (*Session, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if prev, ok := ds.sessions[user]; ok {
		if st := prev.State(); st == StateValidating || st == StateSubmitting {
			return nil, ErrInvalidTransition
		}
	}
	now := ds.now()
	s := &Session{
		User:      user,
		Name:      name,
		StartedAt: now,
		state:     StateIdle,
		draft:     Draft{RoomID: roomID, Date: date, Responsible: name},
		updatedAt: now,
		now:       ds.now,
	}
	ds.sessions[user] = s
	return s, nil
}

// Get returns the user's live draft.
func (ds *DraftStore) Get(user string) (*Session, error) {
	ds.mu.RLock()
	s, ok := ds.sessions[user]
	ds.mu.RUnlock()
	if !ok {
		return nil, ErrNoDraft
	}
	if s.isExpired(ds.timeout) {
		ds.mu.Lock()
		if ds.sessions[user] == s {
			delete(ds.sessions, user)
		}
		ds.mu.Unlock()
		return nil, ErrNoDraft
	}
	return s, nil
}

// Discard drops the user's draft.
func (ds *DraftStore) Discard(user string) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	delete(ds.sessions, user)
}

// discardSession drops the user's draft only if it is still sess.
func (ds *DraftStore) discardSession(user string, sess *Session) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.sessions[user] == sess {
		delete(ds.sessions, user)
	}
}

// Cleanup removes expired drafts and returns how many were dropped.
func (ds *DraftStore) Cleanup() int {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	removed := 0
	for user, s := range ds.sessions {
		if s.isExpired(ds.timeout) {
			delete(ds.sessions, user)
			removed++
		}
	}
	return removed
}

// Len returns the number of open drafts.
func (ds *DraftStore) Len() int {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return len(ds.sessions)
}
