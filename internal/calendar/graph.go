package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const graphTimeLayout = "2006-01-02T15:04:05.9999999"

// GraphConfig configures the Microsoft Graph client.
type GraphConfig struct {
	BaseURL      string
	TenantID     string
	ClientID     string
	ClientSecret string
	// TokenURL overrides the tenant token endpoint.
	TokenURL string
	// Mailbox is the user principal acted on with application credentials.
	Mailbox        string
	RequestsPerSec float64
	Timeout        time.Duration
}

// GraphStatusError is a non-2xx Graph answer.
type GraphStatusError struct {
	Code int
	Body string
}

func (e *GraphStatusError) Error() string {
	return fmt.Sprintf("graph: http %d: %s", e.Code, e.Body)
}

// Graph talks to Microsoft Graph events, calendarView and users.
type Graph struct {
	baseURL    string
	mailbox    string
	tokens     oauth2.TokenSource
	limiter    *rate.Limiter
	httpClient *http.Client
}

// NewGraph builds the client. Application credentials are optional; without
// them only requests carrying a delegated token succeed.
func NewGraph(cfg GraphConfig) *Graph {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.microsoft.com/v1.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 5
	}
	g := &Graph{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		mailbox:    cfg.Mailbox,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), int(cfg.RequestsPerSec)+1),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		tokenURL := cfg.TokenURL
		if tokenURL == "" {
			tokenURL = "https://login.microsoftonline.com/" + cfg.TenantID + "/oauth2/v2.0/token"
		}
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       []string{"https://graph.microsoft.com/.default"},
		}
		g.tokens = oauth2.ReuseTokenSource(nil, cc.TokenSource(context.Background()))
	}
	return g
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphEmail struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphLocation struct {
	DisplayName string `json:"displayName"`
}

type graphAttendee struct {
	EmailAddress graphEmail `json:"emailAddress"`
	Type         string     `json:"type"`
}

type graphEvent struct {
	ID        string          `json:"id,omitempty"`
	Subject   string          `json:"subject"`
	Body      *graphBody      `json:"body,omitempty"`
	Start     graphDateTime   `json:"start"`
	End       graphDateTime   `json:"end"`
	Location  *graphLocation  `json:"location,omitempty"`
	Attendees []graphAttendee `json:"attendees,omitempty"`
}

func toGraphEvent(ev Event) graphEvent {
	out := graphEvent{
		Subject: ev.Subject,
		Start:   graphDateTime{DateTime: ev.Start.UTC().Format(graphTimeLayout), TimeZone: "UTC"},
		End:     graphDateTime{DateTime: ev.End.UTC().Format(graphTimeLayout), TimeZone: "UTC"},
	}
	if ev.Body != "" {
		out.Body = &graphBody{ContentType: "text", Content: ev.Body}
	}
	if ev.Location != "" {
		out.Location = &graphLocation{DisplayName: ev.Location}
	}
	for _, a := range ev.Attendees {
		out.Attendees = append(out.Attendees, graphAttendee{EmailAddress: graphEmail{Address: a}, Type: "required"})
	}
	return out
}

func fromGraphEvent(g graphEvent) Event {
	ev := Event{ID: g.ID, Subject: g.Subject}
	if g.Location != nil {
		ev.Location = g.Location.DisplayName
	}
	if g.Body != nil {
		ev.Body = g.Body.Content
	}
	ev.Start = parseGraphTime(g.Start)
	ev.End = parseGraphTime(g.End)
	for _, a := range g.Attendees {
		ev.Attendees = append(ev.Attendees, a.EmailAddress.Address)
	}
	return ev
}

func parseGraphTime(dt graphDateTime) time.Time {
	loc := time.UTC
	if dt.TimeZone != "" && !strings.EqualFold(dt.TimeZone, "UTC") {
		if l, err := time.LoadLocation(dt.TimeZone); err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation(graphTimeLayout, dt.DateTime, loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// CreateEvent posts the event and returns its id.
func (g *Graph) CreateEvent(ctx context.Context, ev Event) (string, error) {
	var created graphEvent
	if err := g.do(ctx, http.MethodPost, "/events", nil, toGraphEvent(ev), &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("graph: create event: empty id")
	}
	return created.ID, nil
}

// DeleteEvent removes the event. A missing event yields ErrNotFound.
func (g *Graph) DeleteEvent(ctx context.Context, id string) error {
	err := g.do(ctx, http.MethodDelete, "/events/"+url.PathEscape(id), nil, nil, nil)
	var se *GraphStatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return ErrNotFound
	}
	return err
}

// FindEvents lists the calendar view over w and keeps events matching m.
func (g *Graph) FindEvents(ctx context.Context, w Window, m Match) ([]Event, error) {
	q := url.Values{}
	q.Set("startDateTime", w.Start.UTC().Format(time.RFC3339))
	q.Set("endDateTime", w.End.UTC().Format(time.RFC3339))
	q.Set("$select", "id,subject,location,start,end")
	q.Set("$top", "50")

	var page struct {
		Value []graphEvent `json:"value"`
	}
	if err := g.do(ctx, http.MethodGet, "/calendarView", q, nil, &page); err != nil {
		return nil, err
	}
	var out []Event
	for _, ge := range page.Value {
		ev := fromGraphEvent(ge)
		if m.Matches(ev) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// User is a directory entry.
type User struct {
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
	Department        string `json:"department,omitempty"`
}

// Email prefers mail over the principal name.
func (u User) Email() string {
	if u.Mail != "" {
		return u.Mail
	}
	return u.UserPrincipalName
}

// SearchUsers returns up to top users whose display name or mail starts with prefix.
func (g *Graph) SearchUsers(ctx context.Context, prefix string, top int) ([]User, error) {
	prefix = strings.ReplaceAll(strings.TrimSpace(prefix), "'", "''")
	if top <= 0 {
		top = 10
	}
	q := url.Values{}
	q.Set("$filter", fmt.Sprintf("startswith(displayName,'%s') or startswith(mail,'%s')", prefix, prefix))
	q.Set("$select", "displayName,mail,userPrincipalName,department")
	q.Set("$top", fmt.Sprint(top))

	var page struct {
		Value []User `json:"value"`
	}
	if err := g.doAbs(ctx, http.MethodGet, "/users", q, nil, &page); err != nil {
		return nil, err
	}
	return page.Value, nil
}

// token picks the delegated token from ctx, else the application token.
func (g *Graph) token(ctx context.Context) (string, bool, error) {
	if t := DelegatedToken(ctx); t != "" {
		return t, true, nil
	}
	if g.tokens == nil {
		return "", false, ErrNoCredentials
	}
	tok, err := g.tokens.Token()
	if err != nil {
		return "", false, fmt.Errorf("graph token: %w", err)
	}
	return tok.AccessToken, false, nil
}

// do calls a calendar path relative to the acting user (/me or /users/{mailbox}).
func (g *Graph) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	tok, delegated, err := g.token(ctx)
	if err != nil {
		return err
	}
	prefix := "/me"
	if !delegated {
		if g.mailbox == "" {
			return fmt.Errorf("graph: mailbox required with application credentials")
		}
		prefix = "/users/" + url.PathEscape(g.mailbox)
	}
	return g.send(ctx, tok, method, prefix+path, q, body, out)
}

// doAbs calls a tenant-level path.
func (g *Graph) doAbs(ctx context.Context, method, path string, q url.Values, body, out any) error {
	tok, _, err := g.token(ctx)
	if err != nil {
		return err
	}
	return g.send(ctx, tok, method, path, q, body, out)
}

func (g *Graph) send(ctx context.Context, token, method, path string, q url.Values, body, out any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	endpoint := g.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graph %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return &GraphStatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
