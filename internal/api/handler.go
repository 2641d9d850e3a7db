package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"roombook/internal/auth"
	"roombook/internal/availability"
	"roombook/internal/booking"
	"roombook/internal/civil"
	"roombook/internal/dashboard"
	"roombook/internal/directory"
	"roombook/internal/pkg/apperror"
	"roombook/internal/pkg/response"
	"roombook/internal/reservas"
	"roombook/internal/rooms"
)

// SnapshotSource fetches the full reservation collection.
type SnapshotSource interface {
	List(ctx context.Context) ([]reservas.Reservation, error)
}

// Booker submits drafts and cancels reservations.
type Booker interface {
	Submit(ctx context.Context, user string) (*booking.Result, error)
	Cancel(ctx context.Context, user string, id int64) error
}

// UserSearch suggests participants.
type UserSearch interface {
	Lookup(ctx context.Context, user, query string) ([]directory.Suggestion, error)
}

// Dashboards reads cached aggregates.
type Dashboards interface {
	Get(ctx context.Context, name, query string, force bool) (*dashboard.Entry, error)
}

// Deps are the services behind the handlers. Directory and Dashboards are
// optional.
type Deps struct {
	Rooms      *rooms.Catalog
	Snapshots  SnapshotSource
	Resolver   *availability.Resolver
	Drafts     *booking.DraftStore
	Booker     Booker
	Directory  UserSearch
	Dashboards Dashboards
	Now        func() time.Time
}

type Handler struct {
	deps   Deps
	logger zerolog.Logger
}

func NewHandler(deps Deps, logger zerolog.Logger) *Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Handler{deps: deps, logger: logger.With().Str("component", "api").Logger()}
}

func (h *Handler) fail(c *gin.Context, err error) {
	response.Error(c, h.logger, toAppError(err))
}

// dateParam reads ?date=, defaulting to today in the booking zone.
func (h *Handler) dateParam(c *gin.Context) (civil.Date, error) {
	raw := strings.TrimSpace(c.Query("date"))
	if raw == "" {
		return civil.DateOf(h.deps.Now().In(h.deps.Resolver.Location())), nil
	}
	d, err := civil.ParseDate(raw)
	if err != nil {
		return civil.Date{}, apperror.Wrap(err, http.StatusBadRequest, "invalid date")
	}
	return d, nil
}

func (h *Handler) snapshot(ctx context.Context) ([]reservas.Reservation, error) {
	list, err := h.deps.Snapshots.List(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, http.StatusBadGateway, "could not load reservations")
	}
	return list, nil
}

func (h *Handler) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, newList(h.deps.Rooms.All()))
}

func (h *Handler) RoomsSummary(c *gin.Context) {
	date, err := h.dateParam(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	list, err := h.snapshot(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := h.deps.Resolver.SummarizeRooms(list, h.deps.Rooms.All(), date, h.deps.Now())
	c.JSON(http.StatusOK, gin.H{"date": date, "items": out, "total": len(out)})
}

func (h *Handler) RoomSlots(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		h.fail(c, apperror.New(http.StatusBadRequest, "invalid room id"))
		return
	}
	room, err := h.deps.Rooms.Get(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	date, err := h.dateParam(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	list, err := h.snapshot(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	res := h.deps.Resolver.Resolve(list, room.ID, date, h.deps.Now())
	c.JSON(http.StatusOK, RoomSlotsResponse{Room: room, Result: res, Light: res.Summary.Traffic()})
}

func (h *Handler) OpenDraft(c *gin.Context) {
	var body OpenDraftBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, apperror.Wrap(err, http.StatusBadRequest, "invalid request body"))
		return
	}
	if _, err := h.deps.Rooms.Get(body.RoomID); err != nil {
		h.fail(c, err)
		return
	}
	date, err := civil.ParseDate(body.Date)
	if err != nil {
		h.fail(c, apperror.Wrap(err, http.StatusBadRequest, "invalid date"))
		return
	}
	sess, err := h.deps.Drafts.Open(auth.GetUserEmail(c), auth.GetUserName(c), body.RoomID, date)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newDraftResponse(sess))
}

func (h *Handler) GetDraft(c *gin.Context) {
	sess, err := h.deps.Drafts.Get(auth.GetUserEmail(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newDraftResponse(sess))
}

func (h *Handler) PatchDraft(c *gin.Context) {
	var body PatchDraftBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, apperror.Wrap(err, http.StatusBadRequest, "invalid request body"))
		return
	}
	var date *civil.Date
	if body.Date != nil {
		d, err := civil.ParseDate(*body.Date)
		if err != nil {
			h.fail(c, apperror.Wrap(err, http.StatusBadRequest, "invalid date"))
			return
		}
		date = &d
	}
	if body.RoomID != nil {
		if _, err := h.deps.Rooms.Get(*body.RoomID); err != nil {
			h.fail(c, err)
			return
		}
	}

	sess, err := h.deps.Drafts.Get(auth.GetUserEmail(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	err = sess.Update(func(d *booking.Draft) {
		// the selection belongs to one room and day
		if body.RoomID != nil && *body.RoomID != d.RoomID {
			d.RoomID = *body.RoomID
			d.SlotIDs = nil
		}
		if date != nil && *date != d.Date {
			d.Date = *date
			d.SlotIDs = nil
		}
		if body.SlotIDs != nil {
			d.SetSlots(*body.SlotIDs)
		}
		if body.ToggleSlot != nil {
			d.ToggleSlot(*body.ToggleSlot)
		}
		setString(&d.Title, body.Title)
		setString(&d.Department, body.Department)
		setString(&d.Responsible, body.Responsible)
		if body.Participants != nil {
			d.Participants = *body.Participants
			d.ProceedWithoutInvalid = false
		}
		if body.ProceedWithoutInvalid != nil {
			d.ProceedWithoutInvalid = *body.ProceedWithoutInvalid
		}
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newDraftResponse(sess))
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func (h *Handler) DiscardDraft(c *gin.Context) {
	h.deps.Drafts.Discard(auth.GetUserEmail(c))
	c.Status(http.StatusNoContent)
}

func (h *Handler) SubmitDraft(c *gin.Context) {
	res, err := h.deps.Booker.Submit(c.Request.Context(), auth.GetUserEmail(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	if res.Outcome == booking.OutcomeFailed {
		h.fail(c, apperror.New(http.StatusBadGateway, res.Message).WithDetails(res))
		return
	}
	c.JSON(http.StatusOK, SubmitResponse{Result: res, Partial: res.Outcome == booking.OutcomePartial})
}

func (h *Handler) DeleteReservation(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.fail(c, apperror.New(http.StatusBadRequest, "invalid reservation id"))
		return
	}
	if err := h.deps.Booker.Cancel(c.Request.Context(), auth.GetUserEmail(c), id); err != nil {
		var appErr *apperror.AppError
		mapped := toAppError(err)
		if !errors.As(mapped, &appErr) {
			mapped = apperror.Wrap(err, http.StatusBadGateway, "could not delete reservation")
		}
		h.fail(c, mapped)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) SearchUsers(c *gin.Context) {
	if h.deps.Directory == nil {
		h.fail(c, apperror.New(http.StatusServiceUnavailable, "directory search is not configured"))
		return
	}
	items, err := h.deps.Directory.Lookup(c.Request.Context(), auth.GetUserEmail(c), c.Query("q"))
	if err != nil {
		if !errors.Is(err, directory.ErrSuperseded) {
			err = apperror.Wrap(err, http.StatusBadGateway, "directory search failed")
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newList(items))
}

func (h *Handler) GetDashboard(c *gin.Context) {
	if h.deps.Dashboards == nil {
		h.fail(c, apperror.New(http.StatusServiceUnavailable, "dashboards are not configured"))
		return
	}
	q := c.Request.URL.Query()
	force, _ := strconv.ParseBool(q.Get("force"))
	q.Del("force")

	entry, err := h.deps.Dashboards.Get(c.Request.Context(), c.Param("name"), canonicalQuery(q), force)
	if err != nil {
		if !errors.Is(err, dashboard.ErrUnknownDashboard) {
			err = apperror.Wrap(err, http.StatusBadGateway, "dashboard unavailable")
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// canonicalQuery encodes q with sorted keys so equal queries share a cache entry.
func canonicalQuery(q url.Values) string {
	return q.Encode()
}
