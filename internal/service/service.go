package service

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"github.com/vilanovax/bizbuzz/internal/dto"
	"github.com/vilanovax/bizbuzz/internal/guest"
	"github.com/vilanovax/bizbuzz/internal/model"
	"github.com/vilanovax/bizbuzz/internal/notifier"
	"github.com/vilanovax/bizbuzz/internal/repo"
	"github.com/vilanovax/bizbuzz/pkg/validator"
)

type Service interface {
	Register(ctx *ginext.Context)
	CancelRegistration(ctx *ginext.Context)
	GuestRegistration(ctx *ginext.Context)
	GetEventInfo(ctx *ginext.Context)
	ListAttendees(ctx *ginext.Context)
	UpdateAttendee(ctx *ginext.Context)
	RemoveAttendee(ctx *ginext.Context)
	PromoteWaitlist(ctx *ginext.Context)
}

type service struct {
	repo         repo.Repository
	log          *zerolog.Logger
	notify       notifier.Notifier
	secureCookie bool
}

func NewService(repo repo.Repository, logger *zerolog.Logger, notify notifier.Notifier, secureCookie bool) Service {
	return &service{
		repo:         repo,
		log:          logger,
		notify:       notify,
		secureCookie: secureCookie,
	}
}

func eventIDParam(ctx *ginext.Context) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid event ID")
		return 0, false
	}
	return id, true
}

// callerUserID returns the authenticated account id when the request carried
// a valid bearer token. Registration works without one; the registrant is
// then treated as a guest.
func callerUserID(ctx *ginext.Context) *int64 {
	v, exists := ctx.Get("user_id")
	if !exists {
		return nil
	}
	id, ok := v.(int64)
	if !ok {
		return nil
	}
	return &id
}

func (s *service) Register(ctx *ginext.Context) {
	eventID, ok := eventIDParam(ctx)
	if !ok {
		return
	}

	var req dto.RegisterAttendeeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.ValidationFailed, fmt.Sprintf("%v", verr))
		return
	}

	userID := callerUserID(ctx)

	event, err := s.repo.GetEventByID(ctx.Request.Context(), eventID)
	if err != nil {
		if errors.Is(err, model.ErrEventNotFound) {
			dto.EventNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Msg("failed to load event")
		dto.InternalServerError(ctx)
		return
	}

	if err := model.ValidateRegistration(event, time.Now(), userID != nil, req.Email, req.Phone); err != nil {
		s.respondRegistrationError(ctx, err)
		return
	}

	att := &model.Attendee{
		EventID:          eventID,
		UserID:           userID,
		FullName:         req.FullName,
		Email:            req.Email,
		Phone:            req.Phone,
		Company:          req.Company,
		JobTitle:         req.JobTitle,
		Role:             model.RoleAttendee,
		IsGuest:          userID == nil,
		NetworkingStatus: req.NetworkingStatus,
	}

	session, err := s.repo.RegisterAttendeeTx(ctx.Request.Context(), att, att.IsGuest)
	if err != nil {
		s.respondRegistrationError(ctx, err)
		return
	}

	s.log.Info().
		Int64("attendee_id", att.ID).
		Int64("event_id", eventID).
		Str("status", string(att.Status)).
		Bool("is_guest", att.IsGuest).
		Msg("attendee registered")

	if session != nil {
		http.SetCookie(ctx.Writer, guest.Cookie(session.SessionToken, s.secureCookie))
	}

	s.notify.AttendeeRegistered(ctx.Request.Context(), event, att)

	dto.SuccessCreatedResponse(ctx, dto.NewAttendeeResponse(att))
}

func (s *service) respondRegistrationError(ctx *ginext.Context, err error) {
	switch {
	case errors.Is(err, model.ErrEventNotFound):
		dto.EventNotFoundError(ctx)
	case errors.Is(err, model.ErrRegistrationClosed):
		dto.ErrorWithStatus(ctx, 409, dto.RegistrationClosed, "Registration is closed for this event")
	case errors.Is(err, model.ErrDeadlinePassed):
		dto.ErrorWithStatus(ctx, 409, dto.DeadlinePassed, "The registration deadline has passed")
	case errors.Is(err, model.ErrCapacityFull):
		dto.ErrorWithStatus(ctx, 409, dto.CapacityFull, "The event is full")
	case errors.Is(err, model.ErrDuplicateRegistration):
		dto.RegistrationDuplicateError(ctx)
	case errors.Is(err, model.ErrValidation):
		dto.BadResponseError(ctx, dto.ValidationFailed, err.Error())
	default:
		s.log.Error().Err(err).Msg("failed to register attendee")
		dto.InternalServerError(ctx)
	}
}

// CancelRegistration lets a registrant withdraw their own registration.
// Guests prove ownership through the session cookie, authenticated users
// through their bearer identity. The move to cancelled goes through the same
// transition table as organizer edits, so a rejected registration cannot be
// cancelled into a re-registerable state.
func (s *service) CancelRegistration(ctx *ginext.Context) {
	eventID, ok := eventIDParam(ctx)
	if !ok {
		return
	}

	att, ok := s.callerAttendee(ctx, eventID)
	if !ok {
		return
	}

	cancelled := model.StatusCancelled
	updated, prev, err := s.repo.UpdateAttendeeTx(ctx.Request.Context(), eventID, att.ID, model.AttendeeUpdate{Status: &cancelled})
	if err != nil {
		switch {
		case errors.Is(err, model.ErrAttendeeNotFound):
			dto.AttendeeNotFoundError(ctx)
		case errors.Is(err, model.ErrInvalidTransition):
			dto.ErrorWithStatus(ctx, 409, dto.InvalidTransition, err.Error())
		default:
			s.log.Error().Err(err).Msg("failed to cancel registration")
			dto.InternalServerError(ctx)
		}
		return
	}

	s.log.Info().
		Int64("attendee_id", updated.ID).
		Int64("event_id", eventID).
		Str("from", string(prev)).
		Msg("registration cancelled by registrant")

	dto.SuccessResponse(ctx, dto.NewAttendeeResponse(updated))
}

// callerAttendee resolves the requester to their own attendee row on the
// given event, guest cookie first, bearer identity second. It writes the
// error response itself when resolution fails.
func (s *service) callerAttendee(ctx *ginext.Context, eventID int64) (*model.Attendee, bool) {
	if cookie, err := ctx.Request.Cookie(guest.CookieName); err == nil && cookie.Value != "" {
		att, err := s.repo.GetAttendeeByGuestToken(ctx.Request.Context(), cookie.Value)
		if err != nil {
			switch {
			case errors.Is(err, model.ErrGuestSessionExpired):
				dto.ErrorWithStatus(ctx, 401, dto.GuestSessionInvalid, "Guest session expired")
			case errors.Is(err, model.ErrAttendeeNotFound):
				dto.ErrorWithStatus(ctx, 401, dto.GuestSessionInvalid, "Unknown guest session")
			default:
				s.log.Error().Err(err).Msg("failed to resolve guest session")
				dto.InternalServerError(ctx)
			}
			return nil, false
		}
		if att.EventID != eventID {
			dto.ErrorWithStatus(ctx, 401, dto.GuestSessionInvalid, "Guest session does not belong to this event")
			return nil, false
		}
		return att, true
	}

	if userID := callerUserID(ctx); userID != nil {
		att, err := s.repo.GetAttendeeByUserID(ctx.Request.Context(), eventID, *userID)
		if err != nil {
			if errors.Is(err, model.ErrAttendeeNotFound) {
				dto.AttendeeNotFoundError(ctx)
				return nil, false
			}
			s.log.Error().Err(err).Msg("failed to load caller registration")
			dto.InternalServerError(ctx)
			return nil, false
		}
		return att, true
	}

	dto.ErrorWithStatus(ctx, 401, dto.Unauthorized, "Sign in or present a guest session")
	return nil, false
}

// GuestRegistration lets a cookie-backed guest look up their own registration
// without an account. The session is scoped to a single event and grants
// nothing beyond this lookup.
func (s *service) GuestRegistration(ctx *ginext.Context) {
	cookie, err := ctx.Request.Cookie(guest.CookieName)
	if err != nil || cookie.Value == "" {
		dto.ErrorWithStatus(ctx, 401, dto.GuestSessionInvalid, "No guest session")
		return
	}

	att, err := s.repo.GetAttendeeByGuestToken(ctx.Request.Context(), cookie.Value)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrGuestSessionExpired):
			dto.ErrorWithStatus(ctx, 401, dto.GuestSessionInvalid, "Guest session expired")
		case errors.Is(err, model.ErrAttendeeNotFound):
			dto.ErrorWithStatus(ctx, 401, dto.GuestSessionInvalid, "Unknown guest session")
		default:
			s.log.Error().Err(err).Msg("failed to resolve guest session")
			dto.InternalServerError(ctx)
		}
		return
	}

	dto.SuccessResponse(ctx, dto.NewAttendeeResponse(att))
}

func (s *service) GetEventInfo(ctx *ginext.Context) {
	eventID, ok := eventIDParam(ctx)
	if !ok {
		return
	}

	event, err := s.repo.GetEventByID(ctx.Request.Context(), eventID)
	if err != nil {
		if errors.Is(err, model.ErrEventNotFound) {
			dto.EventNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Msg("failed to load event")
		dto.InternalServerError(ctx)
		return
	}

	approved, err := s.repo.CountApproved(ctx.Request.Context(), eventID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to count approved attendees")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, dto.EventInfoResponse{
		ID:                event.ID,
		Slug:              event.Slug,
		Status:            string(event.Status),
		MaxAttendees:      event.MaxAttendees,
		AutoApprove:       event.AutoApprove,
		AllowWaitlist:     event.AllowWaitlist,
		StartDate:         event.StartDate,
		EndDate:           event.EndDate,
		IsFree:            event.IsFree,
		RegistrationCount: event.RegistrationCount,
		ApprovedCount:     approved,
	})
}

func (s *service) ListAttendees(ctx *ginext.Context) {
	eventID, ok := eventIDParam(ctx)
	if !ok {
		return
	}

	status := model.AttendeeStatus(ctx.Query("status"))
	if status != "" && !status.Valid() {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Unknown status filter")
		return
	}
	role := model.AttendeeRole(ctx.Query("role"))
	if role != "" && !role.Valid() {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Unknown role filter")
		return
	}

	attendees, err := s.repo.ListAttendees(ctx.Request.Context(), eventID, status, role)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list attendees")
		dto.InternalServerError(ctx)
		return
	}

	resp := make([]dto.AttendeeResponse, 0, len(attendees))
	for i := range attendees {
		resp = append(resp, dto.NewAttendeeResponse(&attendees[i]))
	}
	dto.SuccessResponse(ctx, resp)
}

// UpdateAttendee drives organizer transitions through the attendee state
// machine. Moving an attendee into approved or rejected notifies them on the
// account channel, but only when a real user account is linked.
func (s *service) UpdateAttendee(ctx *ginext.Context) {
	eventID, ok := eventIDParam(ctx)
	if !ok {
		return
	}
	attendeeID, err := strconv.ParseInt(ctx.Param("attendeeID"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid attendee ID")
		return
	}

	var req dto.UpdateAttendeeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.ValidationFailed, fmt.Sprintf("%v", verr))
		return
	}

	upd := model.AttendeeUpdate{Notes: req.Notes}
	if req.Status != nil {
		status := model.AttendeeStatus(*req.Status)
		if !status.Valid() {
			dto.BadResponseError(ctx, dto.FieldIncorrect, "Unknown status")
			return
		}
		upd.Status = &status
	}
	if req.Role != nil {
		role := model.AttendeeRole(*req.Role)
		if !role.Valid() {
			dto.BadResponseError(ctx, dto.FieldIncorrect, "Unknown role")
			return
		}
		upd.Role = &role
	}

	att, prev, err := s.repo.UpdateAttendeeTx(ctx.Request.Context(), eventID, attendeeID, upd)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrAttendeeNotFound):
			dto.AttendeeNotFoundError(ctx)
		case errors.Is(err, model.ErrInvalidTransition):
			dto.ErrorWithStatus(ctx, 409, dto.InvalidTransition, err.Error())
		default:
			s.log.Error().Err(err).Msg("failed to update attendee")
			dto.InternalServerError(ctx)
		}
		return
	}

	s.log.Info().
		Int64("attendee_id", att.ID).
		Str("from", string(prev)).
		Str("to", string(att.Status)).
		Msg("attendee updated")

	if prev != att.Status && model.NotifiesAttendee(att.Status) {
		if event, err := s.repo.GetEventByID(ctx.Request.Context(), eventID); err == nil {
			s.notify.AttendeeStatusChanged(ctx.Request.Context(), event, att, prev)
		} else {
			s.log.Warn().Err(err).Msg("failed to load event for notification")
		}
	}

	dto.SuccessResponse(ctx, dto.NewAttendeeResponse(att))
}

// RemoveAttendee is the organizer's hard delete. It decrements the advisory
// registration counter and deliberately does not promote from the waitlist;
// promotion is invoked explicitly.
func (s *service) RemoveAttendee(ctx *ginext.Context) {
	eventID, ok := eventIDParam(ctx)
	if !ok {
		return
	}
	attendeeID, err := strconv.ParseInt(ctx.Param("attendeeID"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid attendee ID")
		return
	}

	if err := s.repo.RemoveAttendeeTx(ctx.Request.Context(), eventID, attendeeID); err != nil {
		if errors.Is(err, model.ErrAttendeeNotFound) {
			dto.AttendeeNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Msg("failed to remove attendee")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().
		Int64("attendee_id", attendeeID).
		Int64("event_id", eventID).
		Msg("attendee removed")

	dto.SuccessResponse(ctx, nil)
}

func (s *service) PromoteWaitlist(ctx *ginext.Context) {
	eventID, ok := eventIDParam(ctx)
	if !ok {
		return
	}

	promoted, err := s.repo.PromoteFromWaitlistTx(ctx.Request.Context(), eventID)
	if err != nil {
		if errors.Is(err, model.ErrEventNotFound) {
			dto.EventNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Msg("failed to promote from waitlist")
		dto.InternalServerError(ctx)
		return
	}

	if promoted == nil {
		dto.SuccessResponse(ctx, nil)
		return
	}

	s.log.Info().
		Int64("attendee_id", promoted.ID).
		Str("status", string(promoted.Status)).
		Msg("attendee promoted from waitlist")

	if model.NotifiesAttendee(promoted.Status) {
		if event, err := s.repo.GetEventByID(ctx.Request.Context(), eventID); err == nil {
			s.notify.AttendeeStatusChanged(ctx.Request.Context(), event, promoted, model.StatusWaitlist)
		} else {
			s.log.Warn().Err(err).Msg("failed to load event for notification")
		}
	}

	dto.SuccessResponse(ctx, dto.NewAttendeeResponse(promoted))
}
