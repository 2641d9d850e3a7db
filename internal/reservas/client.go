// Package reservas is the client of the reservation REST resource, the single
// source of truth for bookings.
package reservas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotFound is returned when a lookup matches no reservation.
var ErrNotFound = errors.New("reservas: not found")

// StatusError is a non-2xx answer from the reservation API.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client calls /reservas.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a client. Every request is bounded by timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// List fetches the whole collection. Filtering happens client side.
func (c *Client) List(ctx context.Context) ([]Reservation, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/reservas", nil, &raw); err != nil {
		return nil, err
	}
	return decodeList(raw)
}

// Create posts a new reservation. The server may answer without the id; the
// returned record then has ID 0 and callers resolve it with Find.
func (c *Client) Create(ctx context.Context, r Reservation) (*Reservation, error) {
	r.ID = 0
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, "/reservas", r, &raw); err != nil {
		return nil, err
	}
	created := decodeOne(raw)
	if created == nil {
		out := r
		return &out, nil
	}
	return created, nil
}

// AttachCalendarEvent stores the calendar event id on the reservation.
func (c *Client) AttachCalendarEvent(ctx context.Context, id int64, eventID string) error {
	body := map[string]string{"evento_calendario_id": eventID}
	return c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/reservas/%d", id), body, nil)
}

// Delete removes the reservation.
func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/reservas/%d", id), nil, nil)
}

// Get returns the reservation with id from a fresh collection fetch.
func (c *Client) Get(ctx context.Context, id int64) (*Reservation, error) {
	list, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == id {
			return &list[i], nil
		}
	}
	return nil, ErrNotFound
}

// Find returns the newest reservation matching k from a fresh collection fetch.
func (c *Client) Find(ctx context.Context, k Key) (*Reservation, error) {
	list, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	var best *Reservation
	for i := range list {
		if !k.Matches(&list[i]) {
			continue
		}
		if best == nil || list[i].ID > best.ID {
			best = &list[i]
		}
	}
	if best == nil || best.ID == 0 {
		return nil, ErrNotFound
	}
	return best, nil
}

// HealthCheck pings the collection endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/reservas", http.NoBody)
	if err != nil {
		return err
	}
	c.addHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode >= 300 {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = data
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
}

// decodeList accepts a bare array or a {"data": [...]} envelope.
func decodeList(raw json.RawMessage) ([]Reservation, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var list []Reservation
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode reservations: %w", err)
		}
		return list, nil
	}
	var wrap struct {
		Data []Reservation `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &wrap); err != nil {
		return nil, fmt.Errorf("decode reservations: %w", err)
	}
	return wrap.Data, nil
}

// decodeOne accepts a record or a {"data": {...}} envelope; nil when neither holds an id.
func decodeOne(raw json.RawMessage) *Reservation {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var r Reservation
	if err := json.Unmarshal(trimmed, &r); err == nil && r.ID != 0 {
		return &r
	}
	var wrap struct {
		Data Reservation `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &wrap); err == nil && wrap.Data.ID != 0 {
		return &wrap.Data
	}
	return nil
}
