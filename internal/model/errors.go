package model

import "errors"

var (
	ErrEventNotFound         = errors.New("event not found")
	ErrRegistrationClosed    = errors.New("registration closed")
	ErrDeadlinePassed        = errors.New("registration deadline passed")
	ErrCapacityFull          = errors.New("event capacity full")
	ErrDuplicateRegistration = errors.New("duplicate registration")
	ErrValidation            = errors.New("validation failed")

	ErrAttendeeNotFound    = errors.New("attendee not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrGuestSessionExpired = errors.New("guest session expired")
)
