// Package directory serves participant suggestions as the user types.
package directory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"roombook/internal/calendar"
)

// ErrSuperseded is returned to a lookup replaced by a newer one from the same user.
var ErrSuperseded = errors.New("directory: superseded by a newer query")

// MinQueryLen is the shortest query that reaches the directory.
const MinQueryLen = 2

// Searcher queries the organization directory.
type Searcher interface {
	SearchUsers(ctx context.Context, prefix string, top int) ([]calendar.User, error)
}

// Suggestion is one participant candidate.
type Suggestion struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department,omitempty"`
}

type pending struct {
	cancel context.CancelFunc
	seq    uint64
}

// Autocomplete debounces lookups per user. Only the newest query of a user
// runs; older ones end with ErrSuperseded.
type Autocomplete struct {
	searcher Searcher
	domain   string
	debounce time.Duration
	max      int
	logger   zerolog.Logger

	mu       sync.Mutex
	seq      uint64
	inflight map[string]pending
}

// New creates an Autocomplete. domain filters results to the organization;
// an empty domain keeps every result.
func New(searcher Searcher, domain string, debounce time.Duration, maxResults int, logger zerolog.Logger) *Autocomplete {
	if maxResults <= 0 {
		maxResults = 10
	}
	return &Autocomplete{
		searcher: searcher,
		domain:   strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "@")),
		debounce: debounce,
		max:      maxResults,
		logger:   logger.With().Str("component", "directory").Logger(),
		inflight: make(map[string]pending),
	}
}

// Lookup waits for the quiescence window, then searches the directory for
// query. A newer Lookup by the same user cancels this one.
func (a *Autocomplete) Lookup(ctx context.Context, user, query string) ([]Suggestion, error) {
	query = strings.TrimSpace(query)
	ctx, seq := a.begin(ctx, user)
	defer a.end(user, seq)

	if len([]rune(query)) < MinQueryLen {
		return []Suggestion{}, nil
	}

	if a.debounce > 0 {
		t := time.NewTimer(a.debounce)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, a.cause(ctx)
		}
	}

	users, err := a.searcher.SearchUsers(ctx, query, a.max*2)
	if err != nil {
		if ctx.Err() != nil {
			return nil, a.cause(ctx)
		}
		a.logger.Warn().Err(err).Str("query", query).Msg("directory search failed")
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, a.cause(ctx)
	}
	return a.filter(users), nil
}

func (a *Autocomplete) begin(parent context.Context, user string) (context.Context, uint64) {
	ctx, cancel := context.WithCancelCause(parent)
	a.mu.Lock()
	defer a.mu.Unlock()
	if prev, ok := a.inflight[user]; ok {
		prev.cancel()
	}
	a.seq++
	a.inflight[user] = pending{cancel: func() { cancel(ErrSuperseded) }, seq: a.seq}
	return ctx, a.seq
}

func (a *Autocomplete) end(user string, seq uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cur, ok := a.inflight[user]; ok && cur.seq == seq {
		cur.cancel()
		delete(a.inflight, user)
	}
}

func (a *Autocomplete) cause(ctx context.Context) error {
	if err := context.Cause(ctx); err != nil {
		return err
	}
	return ctx.Err()
}

func (a *Autocomplete) filter(users []calendar.User) []Suggestion {
	seen := make(map[string]bool)
	out := make([]Suggestion, 0, len(users))
	for _, u := range users {
		email := strings.ToLower(strings.TrimSpace(u.Email()))
		if email == "" || seen[email] {
			continue
		}
		if a.domain != "" && !strings.HasSuffix(email, "@"+a.domain) {
			continue
		}
		seen[email] = true
		out = append(out, Suggestion{Name: u.DisplayName, Email: email, Department: u.Department})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	if len(out) > a.max {
		out = out[:a.max]
	}
	return out
}
