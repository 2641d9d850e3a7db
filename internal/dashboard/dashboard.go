// Package dashboard serves cached aggregate data with fixed daily refresh times.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"roombook/internal/kv"
	"roombook/internal/metrics"
)

// Source tells where the data came from.
type Source string

const (
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
)

// ErrUnknownDashboard is returned for a name with no configured endpoint.
var ErrUnknownDashboard = errors.New("dashboard: unknown dashboard")

// Fetcher loads a dashboard from its origin.
type Fetcher interface {
	Fetch(ctx context.Context, name, query string) (json.RawMessage, error)
}

// Entry is a dashboard payload as served.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Source    Source          `json:"source"`
	Stale     bool            `json:"stale"`
	FetchedAt time.Time       `json:"fetched_at"`

	// NextRefresh is the first refresh boundary after FetchedAt.
	NextRefresh time.Time `json:"next_refresh"`
}

type cached struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Payload   json.RawMessage `json:"payload"`
}

// Service reads dashboards through the cache.
type Service struct {
	store   kv.Store
	fetcher Fetcher
	policy  RefreshPolicy
	ttl     time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// NewService creates a Service. Entries are kept for ttl so a failing origin
// can still be answered from the last payload.
func NewService(store kv.Store, fetcher Fetcher, policy RefreshPolicy, ttl time.Duration, logger zerolog.Logger) *Service {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Service{
		store:   store,
		fetcher: fetcher,
		policy:  policy,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger.With().Str("component", "dashboard").Logger(),
	}
}

// WithClock replaces the clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func cacheKey(name, query string) string {
	return "dashboard:" + name + ":" + query
}

// Get returns the dashboard name for query. The cached payload is used until
// the next refresh boundary unless force is set. When the origin fails and a
// payload is cached, it is served flagged stale.
func (s *Service) Get(ctx context.Context, name, query string, force bool) (*Entry, error) {
	key := cacheKey(name, query)
	now := s.now()

	prev, err := s.load(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("dashboard cache read failed")
	}
	if prev != nil && !force && !s.policy.ShouldRefresh(prev.FetchedAt, now) {
		metrics.IncDashboardFetch(string(SourceCache))
		return &Entry{Data: prev.Payload, Source: SourceCache, FetchedAt: prev.FetchedAt, NextRefresh: s.policy.NextRefresh(prev.FetchedAt)}, nil
	}

	payload, err := s.fetcher.Fetch(ctx, name, query)
	if err != nil {
		if prev == nil || errors.Is(err, ErrUnknownDashboard) {
			metrics.IncDashboardFetch("error")
			return nil, err
		}
		s.logger.Warn().Err(err).Str("dashboard", name).Time("fetched_at", prev.FetchedAt).Msg("serving stale dashboard")
		metrics.IncDashboardFetch("stale")
		return &Entry{Data: prev.Payload, Source: SourceCache, Stale: true, FetchedAt: prev.FetchedAt, NextRefresh: s.policy.NextRefresh(prev.FetchedAt)}, nil
	}

	fresh := cached{FetchedAt: now, Payload: payload}
	if raw, err := json.Marshal(fresh); err == nil {
		if err := s.store.Set(ctx, key, raw, s.ttl); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("dashboard cache write failed")
		}
	}
	metrics.IncDashboardFetch(string(SourceNetwork))
	return &Entry{Data: payload, Source: SourceNetwork, FetchedAt: now, NextRefresh: s.policy.NextRefresh(now)}, nil
}

func (s *Service) load(ctx context.Context, key string) (*cached, error) {
	raw, err := s.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var c cached
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode cached dashboard: %w", err)
	}
	return &c, nil
}

// HTTPFetcher reads dashboards from named endpoints under a base URL.
type HTTPFetcher struct {
	baseURL   string
	apiKey    string
	endpoints map[string]string
	http      *http.Client
}

// NewHTTPFetcher creates a fetcher. endpoints maps dashboard names to paths.
func NewHTTPFetcher(baseURL, apiKey string, endpoints map[string]string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFetcher{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		endpoints: endpoints,
		http:      &http.Client{Timeout: timeout},
	}
}

// Names lists the configured dashboards.
func (f *HTTPFetcher) Names() []string {
	out := make([]string, 0, len(f.endpoints))
	for name := range f.endpoints {
		out = append(out, name)
	}
	return out
}

func (f *HTTPFetcher) Fetch(ctx context.Context, name, query string) (json.RawMessage, error) {
	path, ok := f.endpoints[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDashboard, name)
	}
	u := f.baseURL + "/" + strings.TrimLeft(path, "/")
	if query != "" {
		if _, err := url.ParseQuery(query); err != nil {
			return nil, fmt.Errorf("dashboard query: %w", err)
		}
		u += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if f.apiKey != "" {
		req.Header.Set("apikey", f.apiKey)
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch dashboard %s: %w", name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch dashboard %s: status %d", name, resp.StatusCode)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("fetch dashboard %s: invalid json", name)
	}
	return body, nil
}
