package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roombook/internal/civil"
	"roombook/internal/kv"
)

var loc = time.FixedZone("BRT", -3*3600)

func at(day, hour, minute int) time.Time {
	return time.Date(2024, 5, day, hour, minute, 0, 0, loc)
}

func TestShouldRefresh(t *testing.T) {
	p := NewRefreshPolicy([]civil.TimeOfDay{civil.MustTimeOfDay("14:00"), civil.MustTimeOfDay("09:00")}, loc)
	assert.Equal(t, "09:00", p.Times[0].String(), "sorted")

	tests := []struct {
		name string
		last time.Time
		now  time.Time
		want bool
	}{
		{"never fetched", time.Time{}, at(2, 8, 0), true},
		{"same window", at(2, 9, 30), at(2, 13, 59), false},
		{"boundary reached exactly", at(2, 9, 30), at(2, 14, 0), true},
		{"fetched at the boundary", at(2, 14, 0), at(2, 18, 0), false},
		{"overnight before first boundary", at(2, 15, 0), at(3, 8, 59), false},
		{"next morning", at(2, 15, 0), at(3, 9, 0), true},
		{"days later", at(2, 15, 0), at(5, 7, 0), true},
		{"clock went back", at(2, 15, 0), at(2, 10, 0), false},
		{"other zone same instant", at(2, 8, 0).UTC(), at(2, 9, 1).UTC(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ShouldRefresh(tt.last, tt.now))
		})
	}
}

func TestNextRefresh(t *testing.T) {
	p := NewRefreshPolicy(nil, loc)
	assert.Equal(t, at(2, 9, 0), p.NextRefresh(at(2, 8, 0)))
	assert.Equal(t, at(2, 14, 0), p.NextRefresh(at(2, 9, 0)))
	assert.Equal(t, at(3, 9, 0), p.NextRefresh(at(2, 14, 0)))
}

type fakeFetcher struct {
	calls   int
	payload string
	err     error
}

func (f *fakeFetcher) Fetch(context.Context, string, string) (json.RawMessage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.payload), nil
}

func TestServiceCacheAndRefresh(t *testing.T) {
	ctx := context.Background()
	clock := at(2, 9, 30)
	f := &fakeFetcher{payload: `{"reservations":3}`}
	s := NewService(kv.NewMemoryStore(), f, NewRefreshPolicy(nil, loc), 0, zerolog.New(io.Discard)).
		WithClock(func() time.Time { return clock })

	e, err := s.Get(ctx, "occupancy", "month=5", false)
	require.NoError(t, err)
	assert.Equal(t, SourceNetwork, e.Source)
	assert.JSONEq(t, `{"reservations":3}`, string(e.Data))
	assert.True(t, e.NextRefresh.Equal(at(2, 14, 0)))

	clock = at(2, 11, 0)
	f.payload = `{"reservations":4}`
	e, err = s.Get(ctx, "occupancy", "month=5", false)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, e.Source)
	assert.JSONEq(t, `{"reservations":3}`, string(e.Data))
	assert.True(t, e.FetchedAt.Equal(at(2, 9, 30)))
	assert.True(t, e.NextRefresh.Equal(at(2, 14, 0)))
	assert.Equal(t, 1, f.calls)

	e, err = s.Get(ctx, "occupancy", "month=5", true)
	require.NoError(t, err)
	assert.Equal(t, SourceNetwork, e.Source, "forced")
	assert.JSONEq(t, `{"reservations":4}`, string(e.Data))

	e, err = s.Get(ctx, "occupancy", "month=6", false)
	require.NoError(t, err)
	assert.Equal(t, SourceNetwork, e.Source, "queries are cached apart")

	clock = at(2, 14, 0)
	f.payload = `{"reservations":5}`
	e, err = s.Get(ctx, "occupancy", "month=5", false)
	require.NoError(t, err)
	assert.Equal(t, SourceNetwork, e.Source, "boundary passed")
	assert.True(t, e.NextRefresh.Equal(at(3, 9, 0)))
	assert.Equal(t, 4, f.calls)
}

func TestServiceServesStaleOnFailure(t *testing.T) {
	ctx := context.Background()
	clock := at(2, 8, 0)
	f := &fakeFetcher{payload: `{"n":1}`}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := kv.NewRedisStore(rdb, "roombook:")

	s := NewService(store, f, NewRefreshPolicy(nil, loc), time.Hour*48, zerolog.New(io.Discard)).
		WithClock(func() time.Time { return clock })

	_, err := s.Get(ctx, "rooms", "", false)
	require.NoError(t, err)
	assert.True(t, mr.Exists("roombook:dashboard:rooms:"))

	clock = at(2, 10, 0)
	f.err = errors.New("origin down")
	e, err := s.Get(ctx, "rooms", "", false)
	require.NoError(t, err)
	assert.True(t, e.Stale)
	assert.Equal(t, SourceCache, e.Source)
	assert.JSONEq(t, `{"n":1}`, string(e.Data))

	_, err = s.Get(ctx, "other", "", false)
	assert.EqualError(t, err, "origin down", "nothing cached to fall back on")
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("apikey"))
		switch r.URL.Path {
		case "/stats/occupancy":
			assert.Equal(t, "5", r.URL.Query().Get("month"))
			_, _ = w.Write([]byte(`{"rate":0.7}`))
		case "/stats/broken":
			_, _ = w.Write([]byte(`not json`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL+"/", "secret", map[string]string{
		"occupancy": "/stats/occupancy",
		"broken":    "stats/broken",
		"down":      "stats/down",
	}, time.Second)
	ctx := context.Background()

	got, err := f.Fetch(ctx, "occupancy", "month=5")
	require.NoError(t, err)
	assert.JSONEq(t, `{"rate":0.7}`, string(got))

	_, err = f.Fetch(ctx, "broken", "")
	assert.ErrorContains(t, err, "invalid json")

	_, err = f.Fetch(ctx, "down", "")
	assert.ErrorContains(t, err, "status 500")

	_, err = f.Fetch(ctx, "nope", "")
	assert.ErrorIs(t, err, ErrUnknownDashboard)
	assert.ElementsMatch(t, []string{"occupancy", "broken", "down"}, f.Names())
}
