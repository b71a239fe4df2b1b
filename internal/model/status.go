package model

import (
	"fmt"
	"time"
)

// allowedTransitions is the full attendee lifecycle. rejected and cancelled
// are terminal. waitlist -> pending happens only through promotion on events
// without auto-approve.
var allowedTransitions = map[AttendeeStatus][]AttendeeStatus{
	StatusPending:  {StatusApproved, StatusRejected, StatusCancelled},
	StatusWaitlist: {StatusApproved, StatusPending, StatusCancelled},
	StatusApproved: {StatusCancelled},
}

func (s AttendeeStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusWaitlist:
		return true
	}
	return false
}

func (r AttendeeRole) Valid() bool {
	switch r {
	case RoleOrganizer, RolePresenter, RoleAttendee, RoleObserver:
		return true
	}
	return false
}

func CanTransition(from, to AttendeeStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition reports whether an attendee may move from one status to another.
// It returns ErrInvalidTransition with the offending pair so callers can pass
// the reason straight back to the organizer.
func Transition(from, to AttendeeStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if from == to {
		return fmt.Errorf("%w: attendee is already %s", ErrInvalidTransition, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// NotifiesAttendee reports whether entering a status triggers an
// account-channel notification.
func NotifiesAttendee(to AttendeeStatus) bool {
	return to == StatusApproved || to == StatusRejected
}

// DecideAdmission is the capacity arbiter: it maps an eligible registration
// attempt onto its initial status given the number of currently approved
// attendees. The count and the subsequent insert must share one transaction,
// so callers invoke this while holding the event row lock.
func DecideAdmission(e *Event, approvedCount int) (AttendeeStatus, error) {
	if e.MaxAttendees != nil && approvedCount >= *e.MaxAttendees {
		if e.AllowWaitlist {
			return StatusWaitlist, nil
		}
		return "", ErrCapacityFull
	}
	if e.AutoApprove {
		return StatusApproved, nil
	}
	return StatusPending, nil
}

// PromotionTarget is the status a waitlisted attendee receives when promoted:
// approval policy still applies, so non-auto-approve events get a pending
// registration the organizer has to confirm.
func PromotionTarget(e *Event) AttendeeStatus {
	if e.AutoApprove {
		return StatusApproved
	}
	return StatusPending
}

// ValidateRegistration enforces the registration preconditions that need no
// persistence access: event must be published, the deadline must not have
// passed, and a guest has to supply at least one contact channel.
func ValidateRegistration(e *Event, now time.Time, authenticated bool, email, phone *string) error {
	if e.Status != EventPublished {
		return ErrRegistrationClosed
	}
	if e.RegistrationDeadline != nil && now.After(*e.RegistrationDeadline) {
		return ErrDeadlinePassed
	}
	if !authenticated && isBlank(email) && isBlank(phone) {
		return fmt.Errorf("%w: guest registration requires an email or phone", ErrValidation)
	}
	return nil
}

func isBlank(s *string) bool {
	return s == nil || *s == ""
}
