package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"roombook/internal/calendar"
	"roombook/internal/kv"
	"roombook/internal/metrics"
	"roombook/internal/reservas"
)

// Kind is the type of side-channel work.
type Kind string

const (
	KindCreate Kind = "create"
	KindDelete Kind = "delete"
	KindNotify Kind = "notify"
)

var (
	// ErrQueueFull is recorded when a task is dropped on enqueue.
	ErrQueueFull = errors.New("outbox: queue full")
	ErrClosed    = errors.New("outbox: closed")
)

// Task is one unit of calendar or notification work.
type Task struct {
	ID             uuid.UUID
	Kind           Kind
	Reservation    reservas.Reservation
	Attendees      []string
	DelegatedToken string
	Text           string
	EnqueuedAt     time.Time
}

// ReservationAPI is the subset of the reservation resource the outbox needs.
type ReservationAPI interface {
	Find(ctx context.Context, k reservas.Key) (*reservas.Reservation, error)
	AttachCalendarEvent(ctx context.Context, id int64, eventID string) error
}

// Sender delivers a notification text.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// FailureRecorder persists side-channel failures.
type FailureRecorder interface {
	Record(ctx context.Context, f Failure) error
}

// Options tune the outbox.
type Options struct {
	Workers   int
	QueueSize int
	Location  *time.Location
	// RefTTL is how long a fallback event reference is kept.
	RefTTL time.Duration
	// Retries are the waits before each reservation id lookup.
	Retries []time.Duration
	// TaskTimeout bounds one task.
	TaskTimeout time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
	Now         func() time.Time
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{
		Workers:     2,
		QueueSize:   256,
		Location:    time.Local,
		RefTTL:      30 * 24 * time.Hour,
		Retries:     []time.Duration{time.Second, 2 * time.Second, 3 * time.Second},
		TaskTimeout: time.Minute,
	}
}

// Outbox runs calendar and notification tasks in the background. Nothing it
// does is reported back to the caller: failures are logged, counted and
// written to the failure log.
type Outbox struct {
	provider calendar.Provider
	api      ReservationAPI
	refs     kv.Store
	sender   Sender
	failures FailureRecorder
	opts     Options
	logger   zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Task
	wg     sync.WaitGroup

	// abandon cuts in-flight tasks short and makes workers record what is
	// left in the queue instead of running it.
	abandonCtx context.Context
	abandon    context.CancelFunc
}

// New creates an outbox. sender and failures may be nil.
func New(provider calendar.Provider, api ReservationAPI, refs kv.Store, sender Sender, failures FailureRecorder, opts Options, logger zerolog.Logger) *Outbox {
	def := DefaultOptions()
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.Location == nil {
		opts.Location = def.Location
	}
	if opts.RefTTL <= 0 {
		opts.RefTTL = def.RefTTL
	}
	if opts.Retries == nil {
		opts.Retries = def.Retries
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = def.TaskTimeout
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if provider == nil {
		provider = calendar.None{}
	}
	abandonCtx, abandon := context.WithCancel(context.Background())
	return &Outbox{
		provider:   provider,
		api:        api,
		refs:       refs,
		sender:     sender,
		failures:   failures,
		opts:       opts,
		logger:     logger.With().Str("component", "outbox").Logger(),
		queue:      make(chan Task, opts.QueueSize),
		abandonCtx: abandonCtx,
		abandon:    abandon,
	}
}

// Start launches the workers. ctx supplies task context values only: workers
// keep running after it is done, until Close or Shutdown drains the queue.
func (o *Outbox) Start(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for i := 0; i < o.opts.Workers; i++ {
		o.wg.Add(1)
		go o.worker(base)
	}
	o.logger.Info().Int("workers", o.opts.Workers).Int("queue_size", o.opts.QueueSize).Msg("outbox started")
}

// Close stops accepting tasks and waits until every queued task has run.
func (o *Outbox) Close() {
	_ = o.Shutdown(context.Background())
}

// Shutdown stops accepting tasks and drains the queue. When ctx ends first,
// running tasks are cancelled and the rest are recorded as failures with
// ErrClosed; Shutdown then returns ctx.Err() once the workers are gone.
func (o *Outbox) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.abandon()
		return nil
	case <-ctx.Done():
		o.logger.Warn().Int("queued", len(o.queue)).Msg("outbox drain interrupted")
		o.abandon()
		<-done
		return ctx.Err()
	}
}

// Len returns the number of queued tasks.
func (o *Outbox) Len() int {
	return len(o.queue)
}

// Enqueue hands t to the workers without blocking.
func (o *Outbox) Enqueue(ctx context.Context, t Task) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = o.opts.Now()
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		o.fail(ctx, t, ErrClosed)
		return ErrClosed
	}
	select {
	case o.queue <- t:
		metrics.SetOutboxQueueSize(len(o.queue))
		return nil
	default:
		o.fail(ctx, t, ErrQueueFull)
		return ErrQueueFull
	}
}

// SyncCreated queues a calendar event for a created reservation.
func (o *Outbox) SyncCreated(ctx context.Context, r reservas.Reservation, attendees []string) {
	_ = o.Enqueue(ctx, Task{
		Kind:           KindCreate,
		Reservation:    r,
		Attendees:      append([]string(nil), attendees...),
		DelegatedToken: calendar.DelegatedToken(ctx),
	})
}

// SyncDeleted queues removal of the calendar event of a deleted reservation.
func (o *Outbox) SyncDeleted(ctx context.Context, r reservas.Reservation) {
	_ = o.Enqueue(ctx, Task{
		Kind:           KindDelete,
		Reservation:    r,
		DelegatedToken: calendar.DelegatedToken(ctx),
	})
}

// Notify queues a manager notification. It is a no-op without a sender.
func (o *Outbox) Notify(ctx context.Context, text string) {
	if o.sender == nil {
		return
	}
	_ = o.Enqueue(ctx, Task{Kind: KindNotify, Text: text})
}

func (o *Outbox) worker(ctx context.Context) {
	defer o.wg.Done()
	for t := range o.queue {
		metrics.SetOutboxQueueSize(len(o.queue))
		if o.abandonCtx.Err() != nil {
			o.fail(ctx, t, ErrClosed)
			continue
		}
		o.run(ctx, t)
	}
}

func (o *Outbox) run(parent context.Context, t Task) {
	ctx, cancel := context.WithTimeout(parent, o.opts.TaskTimeout)
	defer cancel()
	stop := context.AfterFunc(o.abandonCtx, cancel)
	defer stop()
	if t.DelegatedToken != "" {
		ctx = calendar.WithDelegatedToken(ctx, t.DelegatedToken)
	}

	if _, off := o.provider.(calendar.None); off && t.Kind != KindNotify {
		return
	}

	var err error
	switch t.Kind {
	case KindCreate:
		err = o.handleCreate(ctx, t)
	case KindDelete:
		err = o.handleDelete(ctx, t)
	case KindNotify:
		err = o.sender.Send(ctx, t.Text)
	default:
		err = fmt.Errorf("unknown task kind %q", t.Kind)
	}
	if err != nil {
		o.fail(ctx, t, err)
		return
	}
	metrics.IncCalendarSync(string(t.Kind), "ok")
}

func (o *Outbox) handleCreate(ctx context.Context, t Task) error {
	r := t.Reservation
	ev, err := o.eventFor(r, t.Attendees)
	if err != nil {
		return err
	}
	eventID, err := o.provider.CreateEvent(ctx, ev)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	if eventID == "" {
		return nil
	}

	key, keyErr := reservas.KeyOf(&r)
	id := r.ID
	if id == 0 && keyErr == nil {
		id = o.lookupID(ctx, key)
	}
	if id != 0 {
		err := o.api.AttachCalendarEvent(ctx, id, eventID)
		if err == nil {
			return nil
		}
		o.logger.Warn().Err(err).Int64("reservation_id", id).Msg("attach event id failed, keeping local reference")
	}
	if keyErr != nil {
		return fmt.Errorf("event %s not linked: %w", eventID, keyErr)
	}
	if err := o.refs.Set(ctx, refKey(key), []byte(eventID), o.opts.RefTTL); err != nil {
		return fmt.Errorf("store event reference: %w", err)
	}
	return nil
}

// lookupID resolves the server id of a just-created reservation, waiting
// before each attempt for the collection to catch up.
func (o *Outbox) lookupID(ctx context.Context, key reservas.Key) int64 {
	for attempt, wait := range o.opts.Retries {
		if err := o.opts.Sleep(ctx, wait); err != nil {
			return 0
		}
		found, err := o.api.Find(ctx, key)
		if err == nil && found.ID != 0 {
			return found.ID
		}
		o.logger.Debug().Err(err).Int("attempt", attempt+1).Str("key", key.String()).Msg("reservation id not resolved yet")
	}
	return 0
}

func (o *Outbox) handleDelete(ctx context.Context, t Task) error {
	r := t.Reservation
	key, keyErr := reservas.KeyOf(&r)

	eventID := r.EventID()
	if eventID == "" && keyErr == nil {
		if raw, err := o.refs.Get(ctx, refKey(key)); err == nil {
			eventID = string(raw)
		} else if !errors.Is(err, kv.ErrNotFound) {
			o.logger.Warn().Err(err).Str("key", key.String()).Msg("event reference lookup failed")
		}
	}
	if eventID == "" {
		found, err := o.searchEvent(ctx, r)
		if err != nil {
			return err
		}
		eventID = found
	}

	if err := o.provider.DeleteEvent(ctx, eventID); err != nil && !errors.Is(err, calendar.ErrNotFound) {
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}
	if keyErr == nil {
		if err := o.refs.Delete(ctx, refKey(key)); err != nil {
			o.logger.Warn().Err(err).Str("key", key.String()).Msg("event reference cleanup failed")
		}
	}
	return nil
}

func (o *Outbox) searchEvent(ctx context.Context, r reservas.Reservation) (string, error) {
	iv, err := r.Interval()
	if err != nil {
		return "", fmt.Errorf("no event reference and unreadable times: %w", err)
	}
	w := calendar.Window{Start: iv.Date.At(iv.Start, o.opts.Location), End: iv.Date.At(iv.End, o.opts.Location)}
	found, err := o.provider.FindEvents(ctx, w, calendar.Match{Subject: r.Description, Location: r.RoomName})
	if err != nil {
		return "", fmt.Errorf("search event: %w", err)
	}
	if len(found) == 0 {
		return "", fmt.Errorf("no calendar event for reservation %d", r.ID)
	}
	return found[0].ID, nil
}

func (o *Outbox) eventFor(r reservas.Reservation, attendees []string) (calendar.Event, error) {
	iv, err := r.Interval()
	if err != nil {
		return calendar.Event{}, err
	}
	var body strings.Builder
	if r.Department != "" {
		fmt.Fprintf(&body, "Department: %s\n", r.Department)
	}
	if r.Responsible != "" {
		fmt.Fprintf(&body, "Responsible: %s\n", r.Responsible)
	}
	return calendar.Event{
		Subject:   r.Description,
		Body:      strings.TrimSpace(body.String()),
		Location:  r.RoomName,
		Start:     iv.Date.At(iv.Start, o.opts.Location),
		End:       iv.Date.At(iv.End, o.opts.Location),
		Attendees: attendees,
	}, nil
}

func (o *Outbox) fail(ctx context.Context, t Task, err error) {
	metrics.IncCalendarSync(string(t.Kind), "failed")
	o.logger.Warn().
		Err(err).
		Str("task_id", t.ID.String()).
		Str("kind", string(t.Kind)).
		Int64("reservation_id", t.Reservation.ID).
		Msg("side channel task failed")
	if o.failures == nil {
		return
	}
	f := Failure{
		TaskID:        t.ID.String(),
		Kind:          string(t.Kind),
		ReservationID: t.Reservation.ID,
		RoomID:        t.Reservation.RoomID,
		Date:          t.Reservation.Date,
		StartTime:     t.Reservation.StartTime,
		Error:         err.Error(),
		OccurredAt:    o.opts.Now(),
	}
	if rerr := o.failures.Record(context.WithoutCancel(ctx), f); rerr != nil {
		o.logger.Error().Err(rerr).Str("task_id", f.TaskID).Msg("failed to record side channel failure")
	}
}

func refKey(k reservas.Key) string {
	return "evt:" + k.String()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
