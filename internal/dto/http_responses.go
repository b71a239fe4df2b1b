package dto

import (
	"time"

	"github.com/wb-go/wbf/ginext"

	"github.com/vilanovax/bizbuzz/internal/model"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	EventNotFound         = "EVENT_NOT_FOUND"
	AttendeeNotFound      = "ATTENDEE_NOT_FOUND"
	RegistrationClosed    = "REGISTRATION_CLOSED"
	DeadlinePassed        = "DEADLINE_PASSED"
	CapacityFull          = "CAPACITY_FULL"
	RegistrationDuplicate = "DUPLICATE_REGISTRATION"
	ValidationFailed      = "VALIDATION_ERROR"
	InvalidTransition     = "INVALID_TRANSITION"
	GuestSessionInvalid   = "GUEST_SESSION_INVALID"
	Unauthorized          = "UNAUTHORIZED"
)

type RegisterAttendeeRequest struct {
	FullName         string  `json:"full_name" validate:"required,min=2,max=255"`
	Email            *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone            *string `json:"phone,omitempty" validate:"omitempty,phone"`
	Company          string  `json:"company,omitempty" validate:"max=255"`
	JobTitle         string  `json:"job_title,omitempty" validate:"max=255"`
	NetworkingStatus string  `json:"networking_status,omitempty" validate:"max=255"`
}

type AttendeeResponse struct {
	ID               int64     `json:"id"`
	EventID          int64     `json:"event_id"`
	UserID           *int64    `json:"user_id,omitempty"`
	FullName         string    `json:"full_name"`
	Email            *string   `json:"email,omitempty"`
	Phone            *string   `json:"phone,omitempty"`
	Company          string    `json:"company,omitempty"`
	JobTitle         string    `json:"job_title,omitempty"`
	Status           string    `json:"status"`
	Role             string    `json:"role"`
	TicketCode       string    `json:"ticket_code"`
	IsGuest          bool      `json:"is_guest"`
	PaymentStatus    string    `json:"payment_status"`
	NetworkingStatus string    `json:"networking_status,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	RegisteredAt     time.Time `json:"registered_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func NewAttendeeResponse(a *model.Attendee) AttendeeResponse {
	return AttendeeResponse{
		ID:               a.ID,
		EventID:          a.EventID,
		UserID:           a.UserID,
		FullName:         a.FullName,
		Email:            a.Email,
		Phone:            a.Phone,
		Company:          a.Company,
		JobTitle:         a.JobTitle,
		Status:           string(a.Status),
		Role:             string(a.Role),
		TicketCode:       a.TicketCode,
		IsGuest:          a.IsGuest,
		PaymentStatus:    string(a.PaymentStatus),
		NetworkingStatus: a.NetworkingStatus,
		Notes:            a.Notes,
		RegisteredAt:     a.RegisteredAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

type UpdateAttendeeRequest struct {
	Status *string `json:"status,omitempty"`
	Role   *string `json:"role,omitempty"`
	Notes  *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type EventInfoResponse struct {
	ID                int64      `json:"id"`
	Slug              string     `json:"slug"`
	Status            string     `json:"status"`
	MaxAttendees      *int       `json:"max_attendees,omitempty"`
	AutoApprove       bool       `json:"auto_approve"`
	AllowWaitlist     bool       `json:"allow_waitlist"`
	StartDate         time.Time  `json:"start_date"`
	EndDate           *time.Time `json:"end_date,omitempty"`
	IsFree            bool       `json:"is_free"`
	RegistrationCount int        `json:"registration_count"`
	ApprovedCount     int        `json:"approved_count"`
}

// AttendeeEventMessage is the payload published to the notification exchange
// on registration and on status transitions. Delivery is fire-and-forget; the
// consumer worker turns it into an email when a recipient address exists.
type AttendeeEventMessage struct {
	MessageID  string    `json:"message_id"`
	Type       string    `json:"type"`
	EventID    int64     `json:"event_id"`
	EventSlug  string    `json:"event_slug"`
	AttendeeID int64     `json:"attendee_id"`
	UserID     *int64    `json:"user_id,omitempty"`
	Email      *string   `json:"email,omitempty"`
	FullName   string    `json:"full_name"`
	Status     string    `json:"status"`
	PrevStatus string    `json:"prev_status,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	MessageTypeRegistered    = "attendee.registered"
	MessageTypeStatusChanged = "attendee.status_changed"
)

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func BadResponseError(c *ginext.Context, code, desc string) {
	c.JSON(400, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func ErrorWithStatus(c *ginext.Context, httpStatus int, code, desc string) {
	c.JSON(httpStatus, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func InternalServerError(c *ginext.Context) {
	c.JSON(500, Response{
		Status: "error",
		Error: &Error{
			Code: ServiceUnavailable,
			Desc: InternalError,
		},
	})
}

func EventNotFoundError(c *ginext.Context) {
	ErrorWithStatus(c, 404, EventNotFound, "Event not found")
}

func AttendeeNotFoundError(c *ginext.Context) {
	ErrorWithStatus(c, 404, AttendeeNotFound, "Attendee not found")
}

func RegistrationDuplicateError(c *ginext.Context) {
	ErrorWithStatus(c, 409, RegistrationDuplicate, "You have already registered for this event")
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(200, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(201, Response{
		Status: "ok",
		Data:   data,
	})
}
