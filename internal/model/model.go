package model

import "time"

type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventOngoing   EventStatus = "ongoing"
	EventCompleted EventStatus = "completed"
	EventCancelled EventStatus = "cancelled"
	EventArchived  EventStatus = "archived"
)

type Event struct {
	ID                   int64       `db:"id" json:"id"`
	Slug                 string      `db:"slug" json:"slug"`
	Status               EventStatus `db:"status" json:"status"`
	MaxAttendees         *int        `db:"max_attendees" json:"max_attendees,omitempty"`
	AutoApprove          bool        `db:"auto_approve" json:"auto_approve"`
	AllowWaitlist        bool        `db:"allow_waitlist" json:"allow_waitlist"`
	RegistrationDeadline *time.Time  `db:"registration_deadline" json:"registration_deadline,omitempty"`
	StartDate            time.Time   `db:"start_date" json:"start_date"`
	EndDate              *time.Time  `db:"end_date" json:"end_date,omitempty"`
	IsFree               bool        `db:"is_free" json:"is_free"`
	RegistrationCount    int         `db:"registration_count" json:"registration_count"`
	CreatedAt            time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time   `db:"updated_at" json:"updated_at"`
}

type AttendeeStatus string

const (
	StatusPending   AttendeeStatus = "pending"
	StatusApproved  AttendeeStatus = "approved"
	StatusRejected  AttendeeStatus = "rejected"
	StatusCancelled AttendeeStatus = "cancelled"
	StatusWaitlist  AttendeeStatus = "waitlist"
)

type AttendeeRole string

const (
	RoleOrganizer AttendeeRole = "organizer"
	RolePresenter AttendeeRole = "presenter"
	RoleAttendee  AttendeeRole = "attendee"
	RoleObserver  AttendeeRole = "observer"
)

type PaymentStatus string

const (
	PaymentPending     PaymentStatus = "pending"
	PaymentCompleted   PaymentStatus = "completed"
	PaymentRefunded    PaymentStatus = "refunded"
	PaymentFailed      PaymentStatus = "failed"
	PaymentNotRequired PaymentStatus = "not_required"
)

type Attendee struct {
	ID               int64          `db:"id" json:"id"`
	EventID          int64          `db:"event_id" json:"event_id"`
	UserID           *int64         `db:"user_id" json:"user_id,omitempty"`
	FullName         string         `db:"full_name" json:"full_name"`
	Email            *string        `db:"email" json:"email,omitempty"`
	Phone            *string        `db:"phone" json:"phone,omitempty"`
	Company          string         `db:"company" json:"company,omitempty"`
	JobTitle         string         `db:"job_title" json:"job_title,omitempty"`
	Status           AttendeeStatus `db:"status" json:"status"`
	Role             AttendeeRole   `db:"role" json:"role"`
	TicketCode       string         `db:"ticket_code" json:"ticket_code"`
	IsGuest          bool           `db:"is_guest" json:"is_guest"`
	GuestSessionID   *int64         `db:"guest_session_id" json:"guest_session_id,omitempty"`
	PaymentStatus    PaymentStatus  `db:"payment_status" json:"payment_status"`
	NetworkingStatus string         `db:"networking_status" json:"networking_status,omitempty"`
	Notes            string         `db:"notes" json:"notes,omitempty"`
	RegisteredAt     time.Time      `db:"registered_at" json:"registered_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// AttendeeUpdate carries the organizer-editable fields. Nil means leave the
// field alone; a status change goes through the transition table first.
type AttendeeUpdate struct {
	Status *AttendeeStatus
	Role   *AttendeeRole
	Notes  *string
}

// GuestSession is the ephemeral identity issued to a registrant without an
// account. The session row owns the link to its attendee;
// Attendee.GuestSessionID is only a lookup cache filled in afterwards.
type GuestSession struct {
	ID           int64     `db:"id" json:"id"`
	SessionToken string    `db:"session_token" json:"-"`
	Name         string    `db:"name" json:"name"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	Email        *string   `db:"email" json:"email,omitempty"`
	EventID      int64     `db:"event_id" json:"event_id"`
	AttendeeID   int64     `db:"attendee_id" json:"attendee_id"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
