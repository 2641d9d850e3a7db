package api

import (
	"roombook/internal/availability"
	"roombook/internal/booking"
	"roombook/internal/rooms"
)

// OpenDraftBody starts a draft for a room and day.
type OpenDraftBody struct {
	RoomID int    `json:"room_id" binding:"required,min=1"`
	Date   string `json:"date" binding:"required"`
}

// PatchDraftBody edits a draft. Absent fields are left unchanged.
type PatchDraftBody struct {
	RoomID                *int    `json:"room_id" binding:"omitempty,min=1"`
	Date                  *string `json:"date"`
	SlotIDs               *[]int  `json:"slot_ids"`
	ToggleSlot            *int    `json:"toggle_slot" binding:"omitempty,min=1"`
	Title                 *string `json:"title"`
	Department            *string `json:"department"`
	Responsible           *string `json:"responsible"`
	Participants          *string `json:"participants"`
	ProceedWithoutInvalid *bool   `json:"proceed_without_invalid"`
}

// DraftResponse is the current draft and where it is in the submit flow.
type DraftResponse struct {
	State booking.State `json:"state"`
	Draft booking.Draft `json:"draft"`
}

func newDraftResponse(s *booking.Session) DraftResponse {
	return DraftResponse{State: s.State(), Draft: s.Draft()}
}

// SubmitResponse reports the per-slot outcome of a submission.
type SubmitResponse struct {
	*booking.Result
	Partial bool `json:"partial"`
}

// ParticipantsDetails lists the addresses kept and rejected.
type ParticipantsDetails struct {
	Accepted []string `json:"accepted"`
	Rejected []string `json:"rejected"`
}

// RoomSlotsResponse is a room with its resolved slots.
type RoomSlotsResponse struct {
	Room rooms.Room `json:"room"`
	availability.Result
	Light availability.Light `json:"light"`
}

// ListResponse wraps collections.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func newList[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Total: len(items)}
}
