package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Google mirrors events into a Google Calendar through a service account.
type Google struct {
	svc        *gcal.Service
	calendarID string
}

// NewGoogle builds the provider. opts usually carries
// option.WithCredentialsFile; tests pass an endpoint and no authentication.
func NewGoogle(ctx context.Context, calendarID string, opts ...option.ClientOption) (*Google, error) {
	if calendarID == "" {
		calendarID = "primary"
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google calendar service: %w", err)
	}
	return &Google{svc: svc, calendarID: calendarID}, nil
}

func (g *Google) CreateEvent(ctx context.Context, ev Event) (string, error) {
	in := &gcal.Event{
		Summary:     ev.Subject,
		Description: ev.Body,
		Location:    ev.Location,
		Start:       &gcal.EventDateTime{DateTime: ev.Start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: ev.End.Format(time.RFC3339)},
	}
	for _, a := range ev.Attendees {
		in.Attendees = append(in.Attendees, &gcal.EventAttendee{Email: a})
	}
	created, err := g.svc.Events.Insert(g.calendarID, in).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("google insert event: %w", err)
	}
	return created.Id, nil
}

func (g *Google) DeleteEvent(ctx context.Context, id string) error {
	err := g.svc.Events.Delete(g.calendarID, id).Context(ctx).Do()
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("google delete event: %w", err)
	}
	return nil
}

func (g *Google) FindEvents(ctx context.Context, w Window, m Match) ([]Event, error) {
	list, err := g.svc.Events.List(g.calendarID).
		TimeMin(w.Start.Format(time.RFC3339)).
		TimeMax(w.End.Format(time.RFC3339)).
		SingleEvents(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("google list events: %w", err)
	}
	var out []Event
	for _, item := range list.Items {
		ev := Event{ID: item.Id, Subject: item.Summary, Body: item.Description, Location: item.Location}
		if item.Start != nil {
			ev.Start, _ = time.Parse(time.RFC3339, item.Start.DateTime)
		}
		if item.End != nil {
			ev.End, _ = time.Parse(time.RFC3339, item.End.DateTime)
		}
		if m.Matches(ev) {
			out = append(out, ev)
		}
	}
	return out, nil
}
