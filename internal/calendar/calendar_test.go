package calendar

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

var (
	brt   = time.FixedZone("BRT", -3*3600)
	start = time.Date(2024, 5, 2, 8, 0, 0, 0, brt)
	end   = time.Date(2024, 5, 2, 8, 30, 0, 0, brt)
)

func TestGraphDelegatedCreateUsesMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/me/events", r.URL.Path)
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))

		var body graphEvent
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Planejamento", body.Subject)
		assert.Equal(t, "2024-05-02T11:00:00", body.Start.DateTime)
		assert.Equal(t, "UTC", body.Start.TimeZone)
		if assert.NotNil(t, body.Location) {
			assert.Equal(t, "Sala Ipê", body.Location.DisplayName)
		}
		if assert.Len(t, body.Attendees, 1) {
			assert.Equal(t, "ana@corp.com", body.Attendees[0].EmailAddress.Address)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"AAMkEvt"}`)
	}))
	defer srv.Close()

	g := NewGraph(GraphConfig{BaseURL: srv.URL})
	ctx := WithDelegatedToken(context.Background(), "user-token")

	id, err := g.CreateEvent(ctx, Event{
		Subject: "Planejamento", Location: "Sala Ipê", Start: start, End: end,
		Attendees: []string{"ana@corp.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "AAMkEvt", id)
}

func TestGraphApplicationCredentialsUseMailbox(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"app-token","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/users/rooms@corp.com/events/evt-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "Bearer app-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/users/rooms@corp.com/events/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"ErrorItemNotFound"}}`, http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewGraph(GraphConfig{
		BaseURL: srv.URL, ClientID: "id", ClientSecret: "secret",
		TokenURL: srv.URL + "/token", Mailbox: "rooms@corp.com",
	})

	require.NoError(t, g.DeleteEvent(context.Background(), "evt-1"))
	assert.ErrorIs(t, g.DeleteEvent(context.Background(), "gone"), ErrNotFound)
	assert.Equal(t, int32(1), tokenCalls.Load(), "token reused")
}

func TestGraphWithoutCredentials(t *testing.T) {
	g := NewGraph(GraphConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := g.CreateEvent(context.Background(), Event{Subject: "x"})
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestGraphFindEventsFiltersByMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/calendarView", r.URL.Path)
		assert.Equal(t, "2024-05-02T11:00:00Z", r.URL.Query().Get("startDateTime"))
		assert.Equal(t, "2024-05-02T11:30:00Z", r.URL.Query().Get("endDateTime"))
		_, _ = io.WriteString(w, `{"value":[
			{"id":"a","subject":"Planejamento","location":{"displayName":"Sala Ipê"},"start":{"dateTime":"2024-05-02T11:00:00.0000000","timeZone":"UTC"},"end":{"dateTime":"2024-05-02T11:30:00.0000000","timeZone":"UTC"}},
			{"id":"b","subject":"Outra","location":{"displayName":"Sala Ipê"},"start":{"dateTime":"2024-05-02T11:00:00.0000000","timeZone":"UTC"},"end":{"dateTime":"2024-05-02T11:30:00.0000000","timeZone":"UTC"}}
		]}`)
	}))
	defer srv.Close()

	g := NewGraph(GraphConfig{BaseURL: srv.URL})
	ctx := WithDelegatedToken(context.Background(), "tok")
	got, err := g.FindEvents(ctx, Window{Start: start, End: end}, Match{Subject: "planejamento", Location: "Sala Ipê"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	assert.True(t, got[0].Start.Equal(start))
}

func TestGraphSearchUsers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users", r.URL.Path)
		assert.Equal(t, "startswith(displayName,'d''ar') or startswith(mail,'d''ar')", r.URL.Query().Get("$filter"))
		assert.Equal(t, "5", r.URL.Query().Get("$top"))
		_, _ = io.WriteString(w, `{"value":[{"displayName":"D'Arc","mail":"","userPrincipalName":"darc@corp.com"}]}`)
	}))
	defer srv.Close()

	g := NewGraph(GraphConfig{BaseURL: srv.URL})
	users, err := g.SearchUsers(WithDelegatedToken(context.Background(), "tok"), "d'ar", 5)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "darc@corp.com", users[0].Email())
}

func TestDelegatedTokenBlankIgnored(t *testing.T) {
	ctx := WithDelegatedToken(context.Background(), "  ")
	assert.Empty(t, DelegatedToken(ctx))
}

func TestMatch(t *testing.T) {
	ev := Event{Subject: " Reunião ", Location: "Sala A"}
	assert.True(t, Match{}.Matches(ev))
	assert.True(t, Match{Subject: "reunião"}.Matches(ev))
	assert.False(t, Match{Subject: "reunião", Location: "Sala B"}.Matches(ev))
}

func TestGoogleProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/calendars/rooms/events":
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Planejamento", body["summary"])
			_, _ = io.WriteString(w, `{"id":"g-1"}`)
		case r.Method == http.MethodDelete && r.URL.Path == "/calendars/rooms/events/g-1":
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusGone)
			_, _ = io.WriteString(w, `{"error":{"code":410,"message":"gone"}}`)
		case r.Method == http.MethodGet && r.URL.Path == "/calendars/rooms/events":
			_, _ = io.WriteString(w, `{"items":[
				{"id":"g-1","summary":"Planejamento","location":"Sala Ipê","start":{"dateTime":"2024-05-02T08:00:00-03:00"},"end":{"dateTime":"2024-05-02T08:30:00-03:00"}},
				{"id":"g-2","summary":"Outra","location":"Sala Ipê"}
			]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	g, err := NewGoogle(ctx, "rooms", option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)

	id, err := g.CreateEvent(ctx, Event{Subject: "Planejamento", Start: start, End: end})
	require.NoError(t, err)
	assert.Equal(t, "g-1", id)

	found, err := g.FindEvents(ctx, Window{Start: start, End: end}, Match{Subject: "Planejamento"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.True(t, found[0].Start.Equal(start))

	require.NoError(t, g.DeleteEvent(ctx, "g-1"))
	assert.ErrorIs(t, g.DeleteEvent(ctx, "other"), ErrNotFound)
}
