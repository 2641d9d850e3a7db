// Package calendar mirrors reservations into an external calendar. Every
// provider is used on a best-effort side channel: callers log failures and
// never surface them.
package calendar

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the event to delete no longer exists.
	ErrNotFound = errors.New("calendar: event not found")
	// ErrNoCredentials is returned when neither a delegated token nor
	// application credentials are available.
	ErrNoCredentials = errors.New("calendar: no credentials")
)

// Event is a calendar entry mirroring one reservation slot.
type Event struct {
	ID        string
	Subject   string
	Body      string
	Location  string
	Start     time.Time
	End       time.Time
	Attendees []string
}

// Window bounds a search.
type Window struct {
	Start time.Time
	End   time.Time
}

// Match selects events by subject and location. Empty fields match anything.
type Match struct {
	Subject  string
	Location string
}

// Matches compares case-insensitively after trimming.
func (m Match) Matches(ev Event) bool {
	if m.Subject != "" && !strings.EqualFold(strings.TrimSpace(m.Subject), strings.TrimSpace(ev.Subject)) {
		return false
	}
	if m.Location != "" && !strings.EqualFold(strings.TrimSpace(m.Location), strings.TrimSpace(ev.Location)) {
		return false
	}
	return true
}

// Provider is an external calendar.
type Provider interface {
	CreateEvent(ctx context.Context, ev Event) (string, error)
	DeleteEvent(ctx context.Context, id string) error
	FindEvents(ctx context.Context, w Window, m Match) ([]Event, error)
}

// None disables the side channel. Every call succeeds without effect.
type None struct{}

func (None) CreateEvent(context.Context, Event) (string, error) { return "", nil }

func (None) DeleteEvent(context.Context, string) error { return nil }

func (None) FindEvents(context.Context, Window, Match) ([]Event, error) { return nil, nil }

type delegatedTokenKey struct{}

// WithDelegatedToken attaches the signed-in user's Graph token to ctx. A
// delegated token makes the Graph provider act on /me.
func WithDelegatedToken(ctx context.Context, token string) context.Context {
	token = strings.TrimSpace(token)
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, delegatedTokenKey{}, token)
}

// DelegatedToken returns the token attached by WithDelegatedToken, or "".
func DelegatedToken(ctx context.Context) string {
	s, _ := ctx.Value(delegatedTokenKey{}).(string)
	return s
}
