package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"roombook/internal/availability"
	"roombook/internal/metrics"
	"roombook/internal/reservas"
	"roombook/internal/slots"
)

// Outcome classifies a submission.
type Outcome string

const (
	OutcomeComplete Outcome = "complete"
	OutcomePartial  Outcome = "partial"
	OutcomeFailed   Outcome = "failed"
)

var (
	// ErrForbidden is returned when a user deletes someone else's reservation.
	ErrForbidden = errors.New("booking: reservation belongs to another user")
	// ErrSlotTaken marks a slot the conflict pre-check found occupied.
	ErrSlotTaken = errors.New("booking: slot already taken")
)

// ReservationStore is the reservation REST resource.
type ReservationStore interface {
	List(ctx context.Context) ([]reservas.Reservation, error)
	Create(ctx context.Context, r reservas.Reservation) (*reservas.Reservation, error)
	Get(ctx context.Context, id int64) (*reservas.Reservation, error)
	Delete(ctx context.Context, id int64) error
}

// CalendarSync receives reservations to mirror. Implementations must not
// block and must never report failures back.
type CalendarSync interface {
	SyncCreated(ctx context.Context, r reservas.Reservation, attendees []string)
	SyncDeleted(ctx context.Context, r reservas.Reservation)
}

// Notifier gets a one-line summary of each booking change.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// SlotFailure is one slot that was not reserved.
type SlotFailure struct {
	Slot  slots.Slot `json:"slot"`
	Error string     `json:"error"`
}

// Result summarizes a submission.
type Result struct {
	SuccessCount int                    `json:"success_count"`
	FailCount    int                    `json:"fail_count"`
	Created      []reservas.Reservation `json:"created"`
	Failures     []SlotFailure          `json:"failures,omitempty"`
	Outcome      Outcome                `json:"outcome"`
	Message      string                 `json:"message"`
	Participants []string               `json:"participants,omitempty"`
}

func (r *Result) finish() {
	r.SuccessCount = len(r.Created)
	r.FailCount = len(r.Failures)
	switch {
	case r.FailCount == 0:
		r.Outcome = OutcomeComplete
		r.Message = fmt.Sprintf("%d reserved", r.SuccessCount)
	case r.SuccessCount == 0:
		r.Outcome = OutcomeFailed
		r.Message = fmt.Sprintf("0 reserved, %d failed", r.FailCount)
	default:
		r.Outcome = OutcomePartial
		r.Message = fmt.Sprintf("%d reserved, %d failed", r.SuccessCount, r.FailCount)
	}
}

// Options tune a Submitter.
type Options struct {
	OrgDomain string
	// PrecheckConflicts runs an advisory overlap check against one fresh
	// snapshot before creating anything.
	PrecheckConflicts bool
	Now               func() time.Time
}

// Submitter runs draft submissions and reservation deletions.
type Submitter struct {
	store    ReservationStore
	rooms    RoomLookup
	resolver *availability.Resolver
	drafts   *DraftStore
	sync     CalendarSync
	notifier Notifier
	fsm      *FSM
	opts     Options
	logger   zerolog.Logger
}

// NewSubmitter wires a submitter. sync and notifier may be nil.
func NewSubmitter(store ReservationStore, roomsCat RoomLookup, resolver *availability.Resolver, drafts *DraftStore, sync CalendarSync, notifier Notifier, opts Options, logger zerolog.Logger) *Submitter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Submitter{
		store:    store,
		rooms:    roomsCat,
		resolver: resolver,
		drafts:   drafts,
		sync:     sync,
		notifier: notifier,
		fsm:      NewFSM(),
		opts:     opts,
		logger:   logger.With().Str("component", "booking").Logger(),
	}
}

// Submit validates the user's draft and creates one reservation per selected
// slot, in start order, one at a time. Each create stands alone: a failure is
// recorded and the loop goes on. A complete submission discards the draft;
// otherwise the draft returns to idle without the slots that were reserved.
//
// Validation problems return *ValidationError and rejected participants
// *ParticipantsError; in both cases nothing is created.
func (s *Submitter) Submit(ctx context.Context, user string) (*Result, error) {
	sess, err := s.drafts.Get(user)
	if err != nil {
		return nil, err
	}
	if err := s.fsm.Transition(sess, StateValidating); err != nil {
		return nil, err
	}

	draft := sess.Draft()
	now := s.opts.Now()
	room, selected, err := Validate(draft, s.rooms, s.resolver.Catalog(), now, s.resolver.Location())
	if err != nil {
		_ = s.fsm.Transition(sess, StateIdle)
		return nil, err
	}

	accepted, rejected := NormalizeParticipants(draft.Participants, s.opts.OrgDomain)
	if len(rejected) > 0 && !draft.ProceedWithoutInvalid {
		_ = s.fsm.Transition(sess, StateIdle)
		return nil, &ParticipantsError{Accepted: accepted, Rejected: rejected}
	}

	if err := s.fsm.Transition(sess, StateSubmitting); err != nil {
		return nil, err
	}

	res := &Result{Participants: accepted}
	taken := s.precheck(ctx, draft, now)
	var reservedIDs []int
	for _, slot := range selected {
		if taken[slot.ID] {
			res.Failures = append(res.Failures, SlotFailure{Slot: slot, Error: ErrSlotTaken.Error()})
			metrics.IncReservationCreate("conflict")
			continue
		}

		in := reservas.Reservation{
			Date:        draft.Date.String(),
			StartTime:   slot.Start.String(),
			EndTime:     slot.End.String(),
			Responsible: firstNonEmpty(draft.Responsible, sess.Name, user),
			Department:  strings.TrimSpace(draft.Department),
			Description: strings.TrimSpace(draft.Title),
			RoomID:      room.ID,
			RoomName:    room.Name,
			Status:      reservas.StatusActive,
			CreatedBy:   user,
		}
		created, err := s.store.Create(ctx, in)
		if err != nil {
			s.logger.Error().Err(err).Int("room_id", room.ID).Str("slot", slot.String()).Msg("reservation create failed")
			res.Failures = append(res.Failures, SlotFailure{Slot: slot, Error: err.Error()})
			metrics.IncReservationCreate("failed")
			continue
		}
		metrics.IncReservationCreate("ok")
		res.Created = append(res.Created, *created)
		reservedIDs = append(reservedIDs, slot.ID)
		if s.sync != nil {
			s.sync.SyncCreated(ctx, *created, accepted)
		}
	}
	res.finish()
	metrics.IncSubmission(string(res.Outcome))

	_ = s.fsm.Transition(sess, StateDone)
	s.logger.Info().
		Str("user", user).
		Int("room_id", room.ID).
		Str("date", draft.Date.String()).
		Int("reserved", res.SuccessCount).
		Int("failed", res.FailCount).
		Msg("booking submitted")

	if res.SuccessCount > 0 && s.notifier != nil {
		s.notifier.Notify(ctx, fmt.Sprintf("%s booked %s on %s: %s", firstNonEmpty(sess.Name, user), room.Name, draft.Date, res.Message))
	}

	if res.Outcome == OutcomeComplete {
		s.drafts.discardSession(user, sess)
		return res, nil
	}
	_ = s.fsm.Transition(sess, StateIdle)
	_ = sess.Update(func(d *Draft) {
		d.RemoveSlots(reservedIDs)
		d.ProceedWithoutInvalid = false
	})
	return res, nil
}

// precheck returns the selected slot ids an active reservation already
// occupies. A failed snapshot fetch disables the check for this submission.
func (s *Submitter) precheck(ctx context.Context, d Draft, now time.Time) map[int]bool {
	if !s.opts.PrecheckConflicts {
		return nil
	}
	snapshot, err := s.store.List(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("conflict pre-check skipped")
		return nil
	}
	res := s.resolver.Resolve(snapshot, d.RoomID, d.Date, now)
	taken := make(map[int]bool)
	for _, id := range d.SlotIDs {
		if !res.IsAvailable(id) {
			taken[id] = true
		}
	}
	return taken
}

// Cancel deletes reservation id on behalf of user, then hands the deleted
// record to the calendar side channel. Nothing is deleted unless the record
// could be read and belongs to user. The calendar outcome never affects the
// result.
func (s *Submitter) Cancel(ctx context.Context, user string, id int64) error {
	record, err := s.store.Get(ctx, id)
	switch {
	case errors.Is(err, reservas.ErrNotFound):
		return err
	case err != nil:
		return fmt.Errorf("look up reservation %d: %w", id, err)
	case record.CreatedBy != "" && !strings.EqualFold(record.CreatedBy, user):
		return ErrForbidden
	}

	if err := s.store.Delete(ctx, id); err != nil {
		metrics.IncReservationDelete("failed")
		return fmt.Errorf("delete reservation %d: %w", id, err)
	}
	metrics.IncReservationDelete("ok")
	s.logger.Info().Str("user", user).Int64("id", id).Msg("reservation deleted")

	if s.sync != nil {
		s.sync.SyncDeleted(ctx, *record)
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, fmt.Sprintf("%s cancelled %s on %s %s", user, firstNonEmpty(record.RoomName, fmt.Sprint(record.RoomID)), record.Date, record.StartTime))
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
