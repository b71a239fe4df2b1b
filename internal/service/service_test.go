package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/vilanovax/bizbuzz/internal/api/api"
	"github.com/vilanovax/bizbuzz/internal/dto"
	"github.com/vilanovax/bizbuzz/internal/guest"
	"github.com/vilanovax/bizbuzz/internal/model"
	"github.com/vilanovax/bizbuzz/internal/notifier"
	"github.com/vilanovax/bizbuzz/internal/service"
	"github.com/vilanovax/bizbuzz/pkg/ticket"
)

const testSecret = "test-secret"

func TestMain(m *testing.M) {
	zlog.Init()
	os.Exit(m.Run())
}

// fakeRepo is an in-memory Repository honoring the same contract as the
// Postgres implementation: admission decided against the approved count,
// duplicate identity checks, ticket uniqueness per event, guest session
// issued together with the attendee.
type fakeRepo struct {
	mu        sync.Mutex
	events    map[int64]*model.Event
	attendees map[int64]*model.Attendee
	sessions  map[string]*model.GuestSession
	nextID    int64
	clock     time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		events:    make(map[int64]*model.Event),
		attendees: make(map[int64]*model.Attendee),
		sessions:  make(map[string]*model.GuestSession),
		clock:     time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (f *fakeRepo) addEvent(e *model.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[e.ID] = e
}

func (f *fakeRepo) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeRepo) GetEventByID(_ context.Context, id int64) (*model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return nil, model.ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeRepo) CountApproved(_ context.Context, eventID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countApprovedLocked(eventID), nil
}

func (f *fakeRepo) countApprovedLocked(eventID int64) int {
	count := 0
	for _, a := range f.attendees {
		if a.EventID == eventID && a.Status == model.StatusApproved {
			count++
		}
	}
	return count
}

func (f *fakeRepo) RegisterAttendeeTx(_ context.Context, att *model.Attendee, issueGuestSession bool) (*model.GuestSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	event, ok := f.events[att.EventID]
	if !ok {
		return nil, model.ErrEventNotFound
	}

	for _, a := range f.attendees {
		if a.EventID != att.EventID || a.Status == model.StatusCancelled {
			continue
		}
		if att.UserID != nil && a.UserID != nil && *a.UserID == *att.UserID {
			return nil, model.ErrDuplicateRegistration
		}
		if att.UserID == nil {
			if att.Email != nil && a.Email != nil && *a.Email == *att.Email {
				return nil, model.ErrDuplicateRegistration
			}
			if att.Phone != nil && a.Phone != nil && *a.Phone == *att.Phone {
				return nil, model.ErrDuplicateRegistration
			}
		}
	}

	status, err := model.DecideAdmission(event, f.countApprovedLocked(att.EventID))
	if err != nil {
		return nil, err
	}
	att.Status = status

	if event.IsFree {
		att.PaymentStatus = model.PaymentNotRequired
	} else {
		att.PaymentStatus = model.PaymentPending
	}

	code, err := ticket.New(event.Slug)
	if err != nil {
		return nil, err
	}
	att.TicketCode = code

	f.nextID++
	att.ID = f.nextID
	att.RegisteredAt = f.tick()
	att.UpdatedAt = att.RegisteredAt

	var session *model.GuestSession
	if issueGuestSession {
		session, err = guest.NewSession(event, att)
		if err != nil {
			return nil, err
		}
		f.nextID++
		session.ID = f.nextID
		f.sessions[session.SessionToken] = session
		att.GuestSessionID = &session.ID
	}

	cp := *att
	f.attendees[att.ID] = &cp
	event.RegistrationCount++

	return session, nil
}

func (f *fakeRepo) GetAttendeeByID(_ context.Context, eventID, attendeeID int64) (*model.Attendee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attendees[attendeeID]
	if !ok || a.EventID != eventID {
		return nil, model.ErrAttendeeNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) GetAttendeeByUserID(_ context.Context, eventID, userID int64) (*model.Attendee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *model.Attendee
	for _, a := range f.attendees {
		if a.EventID != eventID || a.Status == model.StatusCancelled {
			continue
		}
		if a.UserID == nil || *a.UserID != userID {
			continue
		}
		if latest == nil || a.RegisteredAt.After(latest.RegisteredAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, model.ErrAttendeeNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeRepo) GetAttendeeByGuestToken(_ context.Context, token string) (*model.Attendee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[token]
	if !ok {
		return nil, model.ErrAttendeeNotFound
	}
	if time.Now().After(s.ExpiresAt) {
		return nil, model.ErrGuestSessionExpired
	}
	a, ok := f.attendees[s.AttendeeID]
	if !ok {
		return nil, model.ErrAttendeeNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) ListAttendees(_ context.Context, eventID int64, status model.AttendeeStatus, role model.AttendeeRole) ([]model.Attendee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Attendee
	for _, a := range f.attendees {
		if a.EventID != eventID {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		if role != "" && a.Role != role {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeRepo) UpdateAttendeeTx(_ context.Context, eventID, attendeeID int64, upd model.AttendeeUpdate) (*model.Attendee, model.AttendeeStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attendees[attendeeID]
	if !ok || a.EventID != eventID {
		return nil, "", model.ErrAttendeeNotFound
	}
	prev := a.Status
	if upd.Status != nil && *upd.Status != a.Status {
		if err := model.Transition(a.Status, *upd.Status); err != nil {
			return nil, "", err
		}
		a.Status = *upd.Status
	}
	if upd.Role != nil {
		a.Role = *upd.Role
	}
	if upd.Notes != nil {
		a.Notes = *upd.Notes
	}
	a.UpdatedAt = f.tick()
	cp := *a
	return &cp, prev, nil
}

func (f *fakeRepo) RemoveAttendeeTx(_ context.Context, eventID, attendeeID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attendees[attendeeID]
	if !ok || a.EventID != eventID {
		return model.ErrAttendeeNotFound
	}
	delete(f.attendees, attendeeID)
	if e, ok := f.events[a.EventID]; ok && e.RegistrationCount > 0 {
		e.RegistrationCount--
	}
	return nil
}

func (f *fakeRepo) PromoteFromWaitlistTx(_ context.Context, eventID int64) (*model.Attendee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.events[eventID]
	if !ok {
		return nil, model.ErrEventNotFound
	}
	if event.MaxAttendees != nil && f.countApprovedLocked(eventID) >= *event.MaxAttendees {
		return nil, nil
	}
	var oldest *model.Attendee
	for _, a := range f.attendees {
		if a.EventID != eventID || a.Status != model.StatusWaitlist {
			continue
		}
		if oldest == nil || a.RegisteredAt.Before(oldest.RegisteredAt) {
			oldest = a
		}
	}
	if oldest == nil {
		return nil, nil
	}
	oldest.Status = model.PromotionTarget(event)
	oldest.UpdatedAt = f.tick()
	cp := *oldest
	return &cp, nil
}

func (f *fakeRepo) MigrateUp(string) error   { return nil }
func (f *fakeRepo) MigrateDown(string) error { return nil }

func newTestRouter(f *fakeRepo) *ginext.Engine {
	logger := zerolog.Nop()
	svc := service.NewService(f, &logger, notifier.Nop{}, false)
	return api.NewRouters(&api.Routers{Service: svc, JWTSecret: testSecret})
}

func bearerToken(t *testing.T, userID int64) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

type envelope struct {
	Status string          `json:"status"`
	Error  *dto.Error      `json:"error"`
	Data   json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, app *ginext.Engine, method, path string, body any, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func decodeAttendee(t *testing.T, env envelope) dto.AttendeeResponse {
	t.Helper()
	var att dto.AttendeeResponse
	require.NoError(t, json.Unmarshal(env.Data, &att))
	return att
}

func publishedEvent(id int64, maxAttendees *int, autoApprove, allowWaitlist bool) *model.Event {
	start := time.Now().Add(72 * time.Hour)
	return &model.Event{
		ID:            id,
		Slug:          fmt.Sprintf("event-%d", id),
		Status:        model.EventPublished,
		MaxAttendees:  maxAttendees,
		AutoApprove:   autoApprove,
		AllowWaitlist: allowWaitlist,
		StartDate:     start,
		IsFree:        true,
	}
}

func guestBody(name, email string) map[string]any {
	body := map[string]any{"full_name": name}
	if email != "" {
		body["email"] = email
	}
	return body
}

func intPtr(v int) *int { return &v }

func TestRegisterCapacityAndWaitlist(t *testing.T) {
	f := newFakeRepo()
	f.addEvent(publishedEvent(1, intPtr(2), true, true))
	app := newTestRouter(f)

	w, env := doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Alice Adams", "alice@example.com"), "")
	require.Equal(t, http.StatusCreated, w.Code)
	a := decodeAttendee(t, env)
	assert.Equal(t, "approved", a.Status)
	assert.Regexp(t, `^EVENT-1-[A-Z0-9]{8}$`, a.TicketCode)

	w, env = doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Bob Brown", "bob@example.com"), "")
	require.Equal(t, http.StatusCreated, w.Code)
	b := decodeAttendee(t, env)
	assert.Equal(t, "approved", b.Status)
	assert.NotEqual(t, a.TicketCode, b.TicketCode)

	w, env = doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Cara Cole", "cara@example.com"), "")
	require.Equal(t, http.StatusCreated, w.Code)
	c := decodeAttendee(t, env)
	assert.Equal(t, "waitlist", c.Status)
}

func TestRegisterCapacityFullWithoutWaitlist(t *testing.T) {
	f := newFakeRepo()
	f.addEvent(publishedEvent(1, intPtr(1), true, false))
	app := newTestRouter(f)

	w, _ := doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Alice Adams", "alice@example.com"), "")
	require.Equal(t, http.StatusCreated, w.Code)

	w, env := doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Bob Brown", "bob@example.com"), "")
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, dto.CapacityFull, env.Error.Code)
	assert.Len(t, f.attendees, 1, "no attendee row may be created on capacity_full")
}

func TestRegisterManualApproval(t *testing.T) {
	f := newFakeRepo()
	f.addEvent(publishedEvent(1, nil, false, false))
	app := newTestRouter(f)

	w, env := doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Alice Adams", "alice@example.com"), "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "pending", decodeAttendee(t, env).Status)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFakeRepo()
	f.addEvent(publishedEvent(1, nil, true, false))
	app := newTestRouter(f)

	w, _ := doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Alice Adams", "alice@example.com"), "")
	require.Equal(t, http.StatusCreated, w.Code)

	w, env := doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Alice Again", "alice@example.com"), "")
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, dto.RegistrationDuplicate, env.Error.Code)
	assert.Len(t, f.attendees, 1, "only one attendee row may exist")
}

func TestRegisterDuplicateUser(t *testing.T) {
	f := newFakeRepo()
	f.addEvent(publishedEvent(1, nil, true, false))
	app := newTestRouter(f)
	token := bearerToken(t, 42)

	w, env := doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Ann User", ""), token)
	require.Equal(t, http.StatusCreated, w.Code)
	a := decodeAttendee(t, env)
	assert.False(t, a.IsGuest)
	require.NotNil(t, a.UserID)
	assert.Equal(t, int64(42), *a.UserID)

	w, env = doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Ann User", ""), token)
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, dto.RegistrationDuplicate, env.Error.Code)
}

func TestRegisterDuplicatePhone(t *testing.T) {
	f := newFakeRepo()
	f.addEvent(publishedEvent(1, nil, true, false))
	app := newTestRouter(f)

	first := map[string]any{"full_name": "Pia Phone", "phone": "+79991234567"}
	w, _ := doJSON(t, app, http.MethodPost, "/v1/events/1/register", first, "")
	require.Equal(t, http.StatusCreated, w.Code)

	second := map[string]any{"full_name": "Paul Phone", "phone": "+79991234567"}
	w, env := doJSON(t, app, http.MethodPost, "/v1/events/1/register", second, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, dto.RegistrationDuplicate, env.Error.Code)
	assert.Len(t, f.attendees, 1, "only one attendee row may exist")
}

func TestRegisterDeadlinePassed(t *testing.T) {
	f := newFakeRepo()
	e := publishedEvent(1, intPtr(100), true, true)
	deadline := time.Now().Add(-time.Hour)
	e.RegistrationDeadline = &deadline
	f.addEvent(e)
	app := newTestRouter(f)

	w, env := doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Late Larry", "larry@example.com"), "")
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, dto.DeadlinePassed, env.Error.Code)
	assert.Empty(t, f.attendees, "no row may be created after the deadline")
}

func TestRegisterClosedEvent(t *testing.T) {
	f := newFakeRepo()
	e := publishedEvent(1, nil, true, false)
	e.Status = model.EventDraft
	f.addEvent(e)
	app := newTestRouter(f)

	w, env := doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Early Erin", "erin@example.com"), "")
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, dto.RegistrationClosed, env.Error.Code)
}

func TestRegisterGuestWithoutContact(t *testing.T) {
	f := newFakeRepo()
	f.addEvent(publishedEvent(1, nil, true, false))
	app := newTestRouter(f)

	w, env := doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("No Contact", ""), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, dto.ValidationFailed, env.Error.Code)
	assert.Empty(t, f.attendees, "rejected registrations must not create rows")
	assert.Empty(t, f.sessions)
}

func TestRegisterEventNotFound(t *testing.T) {
	f := newFakeRepo()
	app := newTestRouter(f)

	w, env := doJSON(t, app, http.MethodPost, "/v1/events/99/register", guestBody("Ghost Guest", "g@example.com"), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, dto.EventNotFound, env.Error.Code)
}

func TestGuestSessionCookieAndLookup(t *testing.T) {
	f := newFakeRepo()
	f.addEvent(publishedEvent(1, nil, true, false))
	app := newTestRouter(f)

	w, env := doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Dana Guest", "dana@example.com"), "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, decodeAttendee(t, env).IsGuest)

	var cookie *http.Cookie
	for _, ck := range w.Result().Cookies() {
		if ck.Name == guest.CookieName {
			cookie = ck
		}
	}
	require.NotNil(t, cookie, "guest registration must set the session cookie")
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)
	assert.LessOrEqual(t, cookie.MaxAge, int((7*24*time.Hour).Seconds()))

	req := httptest.NewRequest(http.MethodGet, "/v1/guest/registration", nil)
	req.AddCookie(cookie)
	lookup := httptest.NewRecorder()
	app.ServeHTTP(lookup, req)

	require.Equal(t, http.StatusOK, lookup.Code)
	var lookupEnv envelope
	require.NoError(t, json.Unmarshal(lookup.Body.Bytes(), &lookupEnv))
	att := decodeAttendee(t, lookupEnv)
	assert.Equal(t, "Dana Guest", att.FullName)
	assert.Equal(t, "approved", att.Status)
}

func TestGuestLookupUnknownToken(t *testing.T) {
	f := newFakeRepo()
	app := newTestRouter(f)

	req := httptest.NewRequest(http.MethodGet, "/v1/guest/registration", nil)
	req.AddCookie(&http.Cookie{Name: guest.CookieName, Value: "nonsense"})
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSelfCancelAsGuest(t *testing.T) {
	f := newFakeRepo()
	f.addEvent(publishedEvent(1, nil, true, false))
	app := newTestRouter(f)

	w, _ := doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Dana Guest", "dana@example.com"), "")
	require.Equal(t, http.StatusCreated, w.Code)

	var cookie *http.Cookie
	for _, ck := range w.Result().Cookies() {
		if ck.Name == guest.CookieName {
			cookie = ck
		}
	}
	require.NotNil(t, cookie)

	req := httptest.NewRequest(http.MethodPost, "/v1/events/1/cancel", nil)
	req.AddCookie(cookie)
	cancel := httptest.NewRecorder()
	app.ServeHTTP(cancel, req)

	require.Equal(t, http.StatusOK, cancel.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(cancel.Body.Bytes(), &env))
	assert.Equal(t, "cancelled", decodeAttendee(t, env).Status)

	// A cancelled row no longer blocks re-registration with the same contact.
	w, env = doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Dana Guest", "dana@example.com"), "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "approved", decodeAttendee(t, env).Status)

	// The stale session still resolves to the cancelled row; cancelling it
	// again is an invalid transition.
	req = httptest.NewRequest(http.MethodPost, "/v1/events/1/cancel", nil)
	req.AddCookie(cookie)
	again := httptest.NewRecorder()
	app.ServeHTTP(again, req)

	assert.Equal(t, http.StatusConflict, again.Code)
	require.NoError(t, json.Unmarshal(again.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, dto.InvalidTransition, env.Error.Code)
}

func TestSelfCancelAsUser(t *testing.T) {
	f := newFakeRepo()
	f.addEvent(publishedEvent(1, nil, true, false))
	app := newTestRouter(f)
	token := bearerToken(t, 42)

	w, _ := doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Ann User", ""), token)
	require.Equal(t, http.StatusCreated, w.Code)

	w, env := doJSON(t, app, http.MethodPost, "/v1/events/1/cancel", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", decodeAttendee(t, env).Status)

	// Nothing active is left to cancel.
	w, env = doJSON(t, app, http.MethodPost, "/v1/events/1/cancel", nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, dto.AttendeeNotFound, env.Error.Code)
}

func TestSelfCancelRequiresIdentity(t *testing.T) {
	f := newFakeRepo()
	f.addEvent(publishedEvent(1, nil, true, false))
	app := newTestRouter(f)

	w, env := doJSON(t, app, http.MethodPost, "/v1/events/1/cancel", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, dto.Unauthorized, env.Error.Code)
}

func TestSelfCancelWrongEventSession(t *testing.T) {
	f := newFakeRepo()
	f.addEvent(publishedEvent(1, nil, true, false))
	f.addEvent(publishedEvent(2, nil, true, false))
	app := newTestRouter(f)

	w, _ := doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Dana Guest", "dana@example.com"), "")
	require.Equal(t, http.StatusCreated, w.Code)

	var cookie *http.Cookie
	for _, ck := range w.Result().Cookies() {
		if ck.Name == guest.CookieName {
			cookie = ck
		}
	}
	require.NotNil(t, cookie)

	req := httptest.NewRequest(http.MethodPost, "/v1/events/2/cancel", nil)
	req.AddCookie(cookie)
	resp := httptest.NewRecorder()
	app.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestOrganizerEndpointsRequireAuth(t *testing.T) {
	f := newFakeRepo()
	f.addEvent(publishedEvent(1, nil, true, false))
	app := newTestRouter(f)

	w, env := doJSON(t, app, http.MethodGet, "/v1/events/1/attendees", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, dto.Unauthorized, env.Error.Code)
}

func TestPromotionScenario(t *testing.T) {
	f := newFakeRepo()
	f.addEvent(publishedEvent(1, intPtr(2), true, true))
	app := newTestRouter(f)
	token := bearerToken(t, 7)

	_, envA := doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Alice Adams", "alice@example.com"), "")
	a := decodeAttendee(t, envA)
	_, envB := doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Bob Brown", "bob@example.com"), "")
	b := decodeAttendee(t, envB)
	_, envC := doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Cara Cole", "cara@example.com"), "")
	c := decodeAttendee(t, envC)

	require.Equal(t, "approved", a.Status)
	require.Equal(t, "approved", b.Status)
	require.Equal(t, "waitlist", c.Status)

	// A promotion attempt with capacity still exhausted is a no-op.
	w, env := doJSON(t, app, http.MethodPost, "/v1/events/1/promote", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, env.Data)

	w, _ = doJSON(t, app, http.MethodDelete, fmt.Sprintf("/v1/events/1/attendees/%d", a.ID), nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = doJSON(t, app, http.MethodPost, "/v1/events/1/promote", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	promoted := decodeAttendee(t, env)
	assert.Equal(t, c.ID, promoted.ID, "the oldest waitlisted attendee is promoted")
	assert.Equal(t, "approved", promoted.Status)

	// Second promotion call: nobody left on the waitlist, still a no-op.
	w, env = doJSON(t, app, http.MethodPost, "/v1/events/1/promote", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, env.Data)
}

func TestPromotionHonorsApprovalPolicy(t *testing.T) {
	f := newFakeRepo()
	e := publishedEvent(1, intPtr(1), false, true)
	f.addEvent(e)
	app := newTestRouter(f)
	token := bearerToken(t, 7)

	_, envA := doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Alice Adams", "alice@example.com"), "")
	a := decodeAttendee(t, envA)
	require.Equal(t, "pending", a.Status)

	// Fill the single slot, then waitlist the next registrant.
	w, _ := doJSON(t, app, http.MethodPatch, fmt.Sprintf("/v1/events/1/attendees/%d", a.ID),
		map[string]any{"status": "approved"}, token)
	require.Equal(t, http.StatusOK, w.Code)

	_, envB := doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Bob Brown", "bob@example.com"), "")
	require.Equal(t, "waitlist", decodeAttendee(t, envB).Status)

	w, _ = doJSON(t, app, http.MethodDelete, fmt.Sprintf("/v1/events/1/attendees/%d", a.ID), nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	w, env := doJSON(t, app, http.MethodPost, "/v1/events/1/promote", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	promoted := decodeAttendee(t, env)
	assert.Equal(t, "pending", promoted.Status, "promotion on a manual-approval event needs organizer confirmation")
}

func TestUpdateAttendeeTransitions(t *testing.T) {
	f := newFakeRepo()
	f.addEvent(publishedEvent(1, nil, false, false))
	app := newTestRouter(f)
	token := bearerToken(t, 7)

	_, env := doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Pat Pending", "pat@example.com"), "")
	att := decodeAttendee(t, env)
	require.Equal(t, "pending", att.Status)

	path := fmt.Sprintf("/v1/events/1/attendees/%d", att.ID)

	w, env := doJSON(t, app, http.MethodPatch, path, map[string]any{"status": "approved", "notes": "VIP"}, token)
	require.Equal(t, http.StatusOK, w.Code)
	updated := decodeAttendee(t, env)
	assert.Equal(t, "approved", updated.Status)
	assert.Equal(t, "VIP", updated.Notes)

	w, env = doJSON(t, app, http.MethodPatch, path, map[string]any{"status": "rejected"}, token)
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, dto.InvalidTransition, env.Error.Code)

	w, env = doJSON(t, app, http.MethodPatch, path, map[string]any{"status": "confirmed"}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = doJSON(t, app, http.MethodPatch, path, map[string]any{"role": "presenter"}, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "presenter", decodeAttendee(t, env).Role)
}

func TestListAttendeesFilter(t *testing.T) {
	f := newFakeRepo()
	f.addEvent(publishedEvent(1, intPtr(1), true, true))
	app := newTestRouter(f)
	token := bearerToken(t, 7)

	doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Alice Adams", "alice@example.com"), "")
	doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Bob Brown", "bob@example.com"), "")

	w, env := doJSON(t, app, http.MethodGet, "/v1/events/1/attendees?status=waitlist", nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	var list []dto.AttendeeResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Bob Brown", list[0].FullName)

	w, _ = doJSON(t, app, http.MethodGet, "/v1/events/1/attendees?status=bogus", nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemoveAttendeeDecrementsCounter(t *testing.T) {
	f := newFakeRepo()
	f.addEvent(publishedEvent(1, nil, true, false))
	app := newTestRouter(f)
	token := bearerToken(t, 7)

	_, env := doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Gone Soon", "gone@example.com"), "")
	att := decodeAttendee(t, env)
	require.Equal(t, 1, f.events[1].RegistrationCount)

	w, _ := doJSON(t, app, http.MethodDelete, fmt.Sprintf("/v1/events/1/attendees/%d", att.ID), nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, f.events[1].RegistrationCount)

	w, _ = doJSON(t, app, http.MethodDelete, fmt.Sprintf("/v1/events/1/attendees/%d", att.ID), nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEventInfo(t *testing.T) {
	f := newFakeRepo()
	f.addEvent(publishedEvent(1, intPtr(5), true, true))
	app := newTestRouter(f)

	doJSON(t, app, http.MethodPost, "/v1/events/1/register", guestBody("Alice Adams", "alice@example.com"), "")

	w, env := doJSON(t, app, http.MethodGet, "/v1/events/1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var info dto.EventInfoResponse
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, 1, info.ApprovedCount)
	assert.Equal(t, 1, info.RegistrationCount)
}
