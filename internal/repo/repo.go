package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"github.com/vilanovax/bizbuzz/internal/guest"
	"github.com/vilanovax/bizbuzz/internal/model"
	"github.com/vilanovax/bizbuzz/pkg/ticket"
)

type Repository interface {
	GetEventByID(ctx context.Context, id int64) (*model.Event, error)
	CountApproved(ctx context.Context, eventID int64) (int, error)
	RegisterAttendeeTx(ctx context.Context, att *model.Attendee, issueGuestSession bool) (*model.GuestSession, error)
	GetAttendeeByID(ctx context.Context, eventID, attendeeID int64) (*model.Attendee, error)
	GetAttendeeByUserID(ctx context.Context, eventID, userID int64) (*model.Attendee, error)
	GetAttendeeByGuestToken(ctx context.Context, token string) (*model.Attendee, error)
	ListAttendees(ctx context.Context, eventID int64, status model.AttendeeStatus, role model.AttendeeRole) ([]model.Attendee, error)
	UpdateAttendeeTx(ctx context.Context, eventID, attendeeID int64, upd model.AttendeeUpdate) (*model.Attendee, model.AttendeeStatus, error)
	RemoveAttendeeTx(ctx context.Context, eventID, attendeeID int64) error
	PromoteFromWaitlistTx(ctx context.Context, eventID int64) (*model.Attendee, error)
	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

func (r *repository) MigrateUp(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations applied successfully from %s", migrationsDir)
	return nil
}

func (r *repository) MigrateDown(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.down.sql"))
	if err != nil {
		return fmt.Errorf("failed to read rollback files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read rollback file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations rolled back successfully from %s", migrationsDir)
	return nil
}

const eventColumns = `id, slug, status, max_attendees, auto_approve, allow_waitlist,
		       registration_deadline, start_date, end_date, is_free,
		       registration_count, created_at, updated_at`

func scanEvent(row *sql.Row) (*model.Event, error) {
	var e model.Event
	if err := row.Scan(
		&e.ID, &e.Slug, &e.Status, &e.MaxAttendees, &e.AutoApprove, &e.AllowWaitlist,
		&e.RegistrationDeadline, &e.StartDate, &e.EndDate, &e.IsFree,
		&e.RegistrationCount, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	return &e, nil
}

func (r *repository) GetEventByID(ctx context.Context, id int64) (*model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	return scanEvent(r.db.QueryRowContext(ctx, query, id))
}

func (r *repository) CountApproved(ctx context.Context, eventID int64) (int, error) {
	query := `SELECT COUNT(*) FROM event_attendees WHERE event_id = $1 AND status = 'approved'`

	var count int
	if err := r.db.QueryRowContext(ctx, query, eventID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count approved attendees: %w", err)
	}
	return count, nil
}

const attendeeColumns = `id, event_id, user_id, full_name, email, phone, company, job_title,
		       status, role, ticket_code, is_guest, guest_session_id, payment_status,
		       networking_status, notes, registered_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttendee(row rowScanner) (*model.Attendee, error) {
	var a model.Attendee
	if err := row.Scan(
		&a.ID, &a.EventID, &a.UserID, &a.FullName, &a.Email, &a.Phone, &a.Company, &a.JobTitle,
		&a.Status, &a.Role, &a.TicketCode, &a.IsGuest, &a.GuestSessionID, &a.PaymentStatus,
		&a.NetworkingStatus, &a.Notes, &a.RegisteredAt, &a.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrAttendeeNotFound
		}
		return nil, fmt.Errorf("failed to scan attendee: %w", err)
	}
	return &a, nil
}

// RegisterAttendeeTx turns an eligible registration attempt into a persisted
// attendee. The event row lock serializes all registrations for one event, so
// the approved count, the duplicate checks and the ticket code check stay
// valid until commit. The attendee, ticket code, guest session and the
// back-reference cache commit together or not at all.
func (r *repository) RegisterAttendeeTx(ctx context.Context, att *model.Attendee, issueGuestSession bool) (*model.GuestSession, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	event, err := scanEvent(tx.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE id = $1
		FOR UPDATE
	`, att.EventID))
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := r.checkDuplicates(ctx, tx, att); err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	var approved int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM event_attendees
		WHERE event_id = $1 AND status = 'approved'
	`, att.EventID).Scan(&approved)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to count approved attendees: %w", err)
	}

	status, err := model.DecideAdmission(event, approved)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	att.Status = status

	if event.IsFree {
		att.PaymentStatus = model.PaymentNotRequired
	} else {
		att.PaymentStatus = model.PaymentPending
	}

	code, err := r.freeTicketCode(ctx, tx, event)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	att.TicketCode = code

	err = tx.QueryRowContext(ctx, `
		INSERT INTO event_attendees (
			event_id, user_id, full_name, email, phone, company, job_title,
			status, role, ticket_code, is_guest, payment_status, networking_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, registered_at, updated_at
	`, att.EventID, att.UserID, att.FullName, att.Email, att.Phone, att.Company, att.JobTitle,
		att.Status, att.Role, att.TicketCode, att.IsGuest, att.PaymentStatus, att.NetworkingStatus,
	).Scan(&att.ID, &att.RegisteredAt, &att.UpdatedAt)
	if err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err) {
			return nil, model.ErrDuplicateRegistration
		}
		return nil, fmt.Errorf("failed to create attendee: %w", err)
	}

	var session *model.GuestSession
	if issueGuestSession {
		session, err = guest.NewSession(event, att)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO guest_sessions (session_token, name, phone, email, event_id, attendee_id, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at
		`, session.SessionToken, session.Name, session.Phone, session.Email,
			session.EventID, session.AttendeeID, session.ExpiresAt,
		).Scan(&session.ID, &session.CreatedAt)
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to create guest session: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE event_attendees SET guest_session_id = $1, updated_at = NOW() WHERE id = $2
		`, session.ID, att.ID); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to link guest session: %w", err)
		}
		att.GuestSessionID = &session.ID
	}

	// Advisory counter only; the approved count above is the capacity truth.
	if _, err := tx.ExecContext(ctx, `
		UPDATE events SET registration_count = registration_count + 1, updated_at = NOW() WHERE id = $1
	`, att.EventID); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to bump registration count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return session, nil
}

// checkDuplicates enforces one active registration per identity. Email and
// phone are checked as two separate existence queries since a guest may have
// supplied only one of the two.
func (r *repository) checkDuplicates(ctx context.Context, tx *sql.Tx, att *model.Attendee) error {
	if att.UserID != nil {
		var exists bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM event_attendees
				WHERE event_id = $1 AND user_id = $2 AND status != 'cancelled'
			)
		`, att.EventID, *att.UserID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check duplicate by user: %w", err)
		}
		if exists {
			return model.ErrDuplicateRegistration
		}
		return nil
	}

	if att.Email != nil && *att.Email != "" {
		var exists bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM event_attendees
				WHERE event_id = $1 AND email = $2 AND status != 'cancelled'
			)
		`, att.EventID, *att.Email).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check duplicate by email: %w", err)
		}
		if exists {
			return model.ErrDuplicateRegistration
		}
	}

	if att.Phone != nil && *att.Phone != "" {
		var exists bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM event_attendees
				WHERE event_id = $1 AND phone = $2 AND status != 'cancelled'
			)
		`, att.EventID, *att.Phone).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check duplicate by phone: %w", err)
		}
		if exists {
			return model.ErrDuplicateRegistration
		}
	}

	return nil
}

// freeTicketCode generates a ticket code and verifies it is unused. One
// regeneration on collision, then we give up and surface the failure.
func (r *repository) freeTicketCode(ctx context.Context, tx *sql.Tx, event *model.Event) (string, error) {
	for attempt := 0; attempt < 2; attempt++ {
		code, err := ticket.New(event.Slug)
		if err != nil {
			return "", err
		}

		var taken bool
		err = tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM event_attendees WHERE event_id = $1 AND ticket_code = $2
			)
		`, event.ID, code).Scan(&taken)
		if err != nil {
			return "", fmt.Errorf("failed to check ticket code: %w", err)
		}
		if !taken {
			return code, nil
		}
		r.log.Warn().Str("ticket_code", code).Int64("event_id", event.ID).Msg("ticket code collision, regenerating")
	}
	return "", fmt.Errorf("failed to generate a unique ticket code for event %d", event.ID)
}

func (r *repository) GetAttendeeByID(ctx context.Context, eventID, attendeeID int64) (*model.Attendee, error) {
	query := `SELECT ` + attendeeColumns + ` FROM event_attendees WHERE id = $1 AND event_id = $2`
	return scanAttendee(r.db.QueryRowContext(ctx, query, attendeeID, eventID))
}

// GetAttendeeByUserID finds the caller's own active registration for an
// event. Cancelled rows are skipped so the result matches what the duplicate
// checks count as a live registration.
func (r *repository) GetAttendeeByUserID(ctx context.Context, eventID, userID int64) (*model.Attendee, error) {
	query := `SELECT ` + attendeeColumns + `
		FROM event_attendees
		WHERE event_id = $1 AND user_id = $2 AND status != 'cancelled'
		ORDER BY registered_at DESC
		LIMIT 1`
	return scanAttendee(r.db.QueryRowContext(ctx, query, eventID, userID))
}

// GetAttendeeByGuestToken resolves a guest session cookie to its attendee.
// The ownership edge lives on guest_sessions; the attendee's cached
// guest_session_id is never consulted here.
func (r *repository) GetAttendeeByGuestToken(ctx context.Context, token string) (*model.Attendee, error) {
	var expiresAt time.Time
	var attendeeID int64
	err := r.db.QueryRowContext(ctx, `
		SELECT attendee_id, expires_at FROM guest_sessions WHERE session_token = $1
	`, token).Scan(&attendeeID, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrAttendeeNotFound
		}
		return nil, fmt.Errorf("failed to look up guest session: %w", err)
	}

	if time.Now().After(expiresAt) {
		return nil, model.ErrGuestSessionExpired
	}

	query := `SELECT ` + attendeeColumns + ` FROM event_attendees WHERE id = $1`
	return scanAttendee(r.db.QueryRowContext(ctx, query, attendeeID))
}

func (r *repository) ListAttendees(ctx context.Context, eventID int64, status model.AttendeeStatus, role model.AttendeeRole) ([]model.Attendee, error) {
	query := `SELECT ` + attendeeColumns + ` FROM event_attendees WHERE event_id = $1`
	args := []any{eventID}

	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if role != "" {
		args = append(args, role)
		query += fmt.Sprintf(" AND role = $%d", len(args))
	}
	query += " ORDER BY registered_at ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendees: %w", err)
	}
	defer rows.Close()

	var attendees []model.Attendee
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, err
		}
		attendees = append(attendees, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attendees: %w", err)
	}

	return attendees, nil
}

// UpdateAttendeeTx applies an organizer edit under a row lock. A status change
// must pass the transition table; role and notes are free-form. The previous
// status is returned so the caller can decide on notifications.
func (r *repository) UpdateAttendeeTx(ctx context.Context, eventID, attendeeID int64, upd model.AttendeeUpdate) (*model.Attendee, model.AttendeeStatus, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	current, err := scanAttendee(tx.QueryRowContext(ctx, `
		SELECT `+attendeeColumns+`
		FROM event_attendees
		WHERE id = $1 AND event_id = $2
		FOR UPDATE
	`, attendeeID, eventID))
	if err != nil {
		_ = tx.Rollback()
		return nil, "", err
	}
	prev := current.Status

	status := current.Status
	if upd.Status != nil && *upd.Status != current.Status {
		if err := model.Transition(current.Status, *upd.Status); err != nil {
			_ = tx.Rollback()
			return nil, "", err
		}
		status = *upd.Status
	}

	role := current.Role
	if upd.Role != nil {
		role = *upd.Role
	}

	notes := current.Notes
	if upd.Notes != nil {
		notes = *upd.Notes
	}

	updated, err := scanAttendee(tx.QueryRowContext(ctx, `
		UPDATE event_attendees
		SET status = $1, role = $2, notes = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING `+attendeeColumns+`
	`, status, role, notes, attendeeID))
	if err != nil {
		_ = tx.Rollback()
		return nil, "", fmt.Errorf("failed to update attendee: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	return updated, prev, nil
}

// RemoveAttendeeTx hard deletes an attendee on organizer request and
// decrements the advisory registration counter. The guest session row, if
// any, goes with it via ON DELETE CASCADE. Removal never promotes from the
// waitlist; promotion is its own operation.
func (r *repository) RemoveAttendeeTx(ctx context.Context, eventID, attendeeID int64) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM event_attendees WHERE id = $1 AND event_id = $2
	`, attendeeID, eventID)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete attendee: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		return model.ErrAttendeeNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE events
		SET registration_count = GREATEST(registration_count - 1, 0), updated_at = NOW()
		WHERE id = $1
	`, eventID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to decrement registration count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// PromoteFromWaitlistTx moves the oldest waitlisted attendee into the
// approval flow once capacity has freed. When nobody is waitlisted or
// capacity is still exhausted it is a no-op rather than an error, so repeated
// calls are safe.
func (r *repository) PromoteFromWaitlistTx(ctx context.Context, eventID int64) (*model.Attendee, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	event, err := scanEvent(tx.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE id = $1
		FOR UPDATE
	`, eventID))
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	var approved int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM event_attendees
		WHERE event_id = $1 AND status = 'approved'
	`, eventID).Scan(&approved)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to count approved attendees: %w", err)
	}

	if event.MaxAttendees != nil && approved >= *event.MaxAttendees {
		_ = tx.Rollback()
		return nil, nil
	}

	candidate, err := scanAttendee(tx.QueryRowContext(ctx, `
		SELECT `+attendeeColumns+`
		FROM event_attendees
		WHERE event_id = $1 AND status = 'waitlist'
		ORDER BY registered_at ASC, id ASC
		LIMIT 1
		FOR UPDATE
	`, eventID))
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, model.ErrAttendeeNotFound) {
			return nil, nil
		}
		return nil, err
	}

	target := model.PromotionTarget(event)

	promoted, err := scanAttendee(tx.QueryRowContext(ctx, `
		UPDATE event_attendees
		SET status = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING `+attendeeColumns+`
	`, target, candidate.ID))
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to promote attendee: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return promoted, nil
}

// isUniqueViolation maps Postgres unique-constraint errors. The partial
// unique indexes on (event_id, user_id/email/phone) back the existence
// checks above as a last line of defense.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
