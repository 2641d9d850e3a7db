package api

import (
	"errors"
	"net/http"

	"roombook/internal/booking"
	"roombook/internal/dashboard"
	"roombook/internal/directory"
	"roombook/internal/pkg/apperror"
	"roombook/internal/reservas"
	"roombook/internal/rooms"
)

// toAppError maps domain errors onto HTTP statuses. Unknown errors pass
// through and end up as 500.
func toAppError(err error) error {
	var (
		appErr  *apperror.AppError
		valErr  *booking.ValidationError
		partErr *booking.ParticipantsError
		status  *reservas.StatusError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &valErr):
		return apperror.Wrap(err, http.StatusUnprocessableEntity, "draft is not valid").WithDetails(valErr.Fields)
	case errors.As(err, &partErr):
		return apperror.Wrap(err, http.StatusConflict, "some participants are outside the organization").
			WithDetails(ParticipantsDetails{Accepted: nonNil(partErr.Accepted), Rejected: nonNil(partErr.Rejected)})
	case errors.Is(err, booking.ErrNoDraft):
		return apperror.Wrap(err, http.StatusNotFound, "no open draft")
	case errors.Is(err, booking.ErrInvalidTransition):
		return apperror.Wrap(err, http.StatusConflict, "draft is being submitted")
	case errors.Is(err, booking.ErrForbidden):
		return apperror.Wrap(err, http.StatusForbidden, "reservation belongs to another user")
	case errors.Is(err, reservas.ErrNotFound):
		return apperror.Wrap(err, http.StatusNotFound, "reservation not found")
	case errors.Is(err, rooms.ErrNotFound):
		return apperror.Wrap(err, http.StatusNotFound, "room not found")
	case errors.Is(err, directory.ErrSuperseded):
		return apperror.Wrap(err, http.StatusConflict, "superseded by a newer query")
	case errors.Is(err, dashboard.ErrUnknownDashboard):
		return apperror.Wrap(err, http.StatusNotFound, "dashboard not found")
	case errors.As(err, &status):
		return apperror.Wrap(err, http.StatusBadGateway, "reservation service error")
	}
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
