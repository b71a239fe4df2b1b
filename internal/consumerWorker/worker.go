package consumerWorker

import (
	"context"
	"encoding/json"

	"github.com/wb-go/wbf/zlog"

	"github.com/vilanovax/bizbuzz/internal/dto"
	"github.com/vilanovax/bizbuzz/internal/mailer"
	"github.com/vilanovax/bizbuzz/internal/rabbit"
)

// Reader drains the notification queue and turns attendee lifecycle messages
// into emails. Everything here is best effort: a message without a recipient
// is acked and dropped, a failed send is logged and acked anyway so a dead
// mailbox cannot wedge the queue.
type Reader struct {
	RMQ    *rabbit.Client
	smtp   mailer.Config
	done   chan struct{}
	cancel context.CancelFunc
}

func NewReader(rmq *rabbit.Client, smtp mailer.Config) *Reader {
	return &Reader{
		RMQ:  rmq,
		smtp: smtp,
		done: make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("notification reader started")

	go func() {
		defer close(r.done)

		handler := func(body []byte) error {
			var msg dto.AttendeeEventMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				zlog.Logger.Error().
					Err(err).
					Msgf("failed to unmarshal message: %s", string(body))
				return err
			}

			zlog.Logger.Info().
				Str("type", msg.Type).
				Int64("attendee_id", msg.AttendeeID).
				Int64("event_id", msg.EventID).
				Msg("received notification message")

			if msg.Email == nil || *msg.Email == "" {
				zlog.Logger.Debug().
					Int64("attendee_id", msg.AttendeeID).
					Msg("no recipient on message, skipping email")
				return nil
			}

			if err := mailer.SendStatusEmail(
				&zlog.Logger,
				r.smtp,
				msg.EventSlug,
				msg.Status,
				*msg.Email,
			); err != nil {
				zlog.Logger.Warn().
					Err(err).
					Int64("attendee_id", msg.AttendeeID).
					Msg("failed to send notification email")
			}

			return nil
		}

		if err := r.RMQ.Consume(handler); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("notification reader stopped by context")
	}()
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
