package reservas

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roombook/internal/civil"
)

func TestListAcceptsArrayAndEnvelope(t *testing.T) {
	bodies := []string{
		`[{"id":1,"data":"2024-05-02","hora_inicio":"08:00:00","hora_fim":"08:30:00","sala_id":2,"status":"ativa"}]`,
		`{"data":[{"id":1,"data":"2024-05-02T00:00:00.000Z","hora_inicio":"1970-01-01T08:00:00.000Z","hora_fim":"08:30","sala_id":2,"status":"ativa"}]}`,
	}
	for _, body := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/reservas", r.URL.Path)
			assert.Equal(t, "secret", r.Header.Get("x-api-key"))
			_, _ = io.WriteString(w, body)
		}))

		c := NewClient(srv.URL+"/", "secret", time.Second)
		list, err := c.List(t.Context())
		require.NoError(t, err)
		require.Len(t, list, 1)

		iv, err := list[0].Interval()
		require.NoError(t, err)
		assert.Equal(t, "2024-05-02", iv.Date.String())
		assert.Equal(t, "08:00", iv.Start.String())
		assert.Equal(t, "08:30", iv.End.String())
		srv.Close()
	}
}

func TestCreateWithAndWithoutID(t *testing.T) {
	var posted Reservation
	withID := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
		w.WriteHeader(http.StatusCreated)
		if withID {
			_, _ = io.WriteString(w, `{"data":{"id":42,"sala_id":1,"status":"ativa"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"message":"ok"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	in := Reservation{ID: 9, Date: "2024-05-02", StartTime: "08:00", EndTime: "08:30", RoomID: 1, Status: StatusActive}

	got, err := c.Create(t.Context(), in)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.ID)
	assert.Zero(t, posted.ID, "client must not send an id")
	assert.Nil(t, posted.CalendarEventID)

	withID = false
	got, err = c.Create(t.Context(), in)
	require.NoError(t, err)
	assert.Zero(t, got.ID)
	assert.Equal(t, "2024-05-02", got.Date)
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "", time.Second).Delete(t.Context(), 3)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Equal(t, "/reservas/3", se.Path)
}

func TestAttachCalendarEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/reservas/7", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"evento_calendario_id":"AAMk"}`, string(body))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL, "", time.Second).AttachCalendarEvent(t.Context(), 7, "AAMk"))
}

func TestFind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[
			{"id":5,"data":"2024-05-02","hora_inicio":"08:00","hora_fim":"08:30","sala_id":1,"criado_por":"Ana@corp.com","status":"ativa"},
			{"id":8,"data":"2024-05-02","hora_inicio":"08:00:00","hora_fim":"08:30","sala_id":1,"criado_por":"ana@corp.com","status":"ativa"},
			{"id":9,"data":"2024-05-02","hora_inicio":"08:30","hora_fim":"09:00","sala_id":1,"criado_por":"ana@corp.com","status":"ativa"}
		]`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	k := Key{RoomID: 1, Date: civil.Date{Year: 2024, Month: time.May, Day: 2}, Start: civil.MustTimeOfDay("08:00"), Creator: "ana@corp.com"}

	got, err := c.Find(t.Context(), k)
	require.NoError(t, err)
	assert.Equal(t, int64(8), got.ID, "newest match wins")

	k.RoomID = 2
	_, err = c.Find(t.Context(), k)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKeyString(t *testing.T) {
	k := Key{RoomID: 3, Date: civil.Date{Year: 2024, Month: time.May, Day: 2}, Start: civil.MustTimeOfDay("13:30"), Creator: "Ana@Corp.com"}
	assert.Equal(t, "3|2024-05-02|13:30|ana@corp.com", k.String())
	assert.True(t, strings.HasPrefix(k.String(), "3|"))
}
