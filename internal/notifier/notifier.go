// Package notifier is the fire-and-forget boundary to the notification
// pipeline. Publish failures are logged and swallowed; they never bubble back
// into a registration outcome.
package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vilanovax/bizbuzz/internal/dto"
	"github.com/vilanovax/bizbuzz/internal/model"
	"github.com/vilanovax/bizbuzz/internal/rabbit"
)

type Notifier interface {
	AttendeeRegistered(ctx context.Context, e *model.Event, a *model.Attendee)
	AttendeeStatusChanged(ctx context.Context, e *model.Event, a *model.Attendee, from model.AttendeeStatus)
}

type Rabbit struct {
	rbt *rabbit.Client
	log *zerolog.Logger
}

func NewRabbit(rbt *rabbit.Client, log *zerolog.Logger) *Rabbit {
	return &Rabbit{rbt: rbt, log: log}
}

func (n *Rabbit) AttendeeRegistered(ctx context.Context, e *model.Event, a *model.Attendee) {
	msg := newMessage(dto.MessageTypeRegistered, e, a)
	msg.Email = a.Email
	n.publish(msg)
}

// AttendeeStatusChanged dispatches a lifecycle notification. The account
// channel only reaches registrants with a real user account, so guest-only
// attendees get no recipient attached here.
func (n *Rabbit) AttendeeStatusChanged(ctx context.Context, e *model.Event, a *model.Attendee, from model.AttendeeStatus) {
	msg := newMessage(dto.MessageTypeStatusChanged, e, a)
	msg.PrevStatus = string(from)
	if a.UserID != nil {
		msg.Email = a.Email
	}
	n.publish(msg)
}

func newMessage(msgType string, e *model.Event, a *model.Attendee) *dto.AttendeeEventMessage {
	return &dto.AttendeeEventMessage{
		MessageID:  uuid.New().String(),
		Type:       msgType,
		EventID:    e.ID,
		EventSlug:  e.Slug,
		AttendeeID: a.ID,
		UserID:     a.UserID,
		FullName:   a.FullName,
		Status:     string(a.Status),
		OccurredAt: time.Now().UTC(),
	}
}

func (n *Rabbit) publish(msg *dto.AttendeeEventMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		n.log.Error().Err(err).Str("type", msg.Type).Msg("failed to marshal notification message")
		return
	}
	if err := n.rbt.Publish(payload); err != nil {
		n.log.Warn().Err(err).
			Str("type", msg.Type).
			Int64("attendee_id", msg.AttendeeID).
			Msg("failed to publish notification, dropping")
	}
}

// Nop discards every notification. Used in tests and when the broker is
// disabled in config.
type Nop struct{}

func (Nop) AttendeeRegistered(context.Context, *model.Event, *model.Attendee) {}
func (Nop) AttendeeStatusChanged(context.Context, *model.Event, *model.Attendee, model.AttendeeStatus) {
}
