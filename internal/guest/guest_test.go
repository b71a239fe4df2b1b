package guest

import (
	"encoding/hex"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vilanovax/bizbuzz/internal/model"
)

func TestNewToken(t *testing.T) {
	token, err := NewToken()
	require.NoError(t, err)

	raw, err := hex.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	other, err := NewToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestSessionExpiry(t *testing.T) {
	start := time.Date(2025, 9, 10, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		endDate *time.Time
		want    time.Time
	}{
		{
			name: "no end date, floor is start plus a day",
			want: start.Add(24 * time.Hour),
		},
		{
			name:    "end date later than start",
			endDate: timePtr(start.Add(6 * time.Hour)),
			want:    start.Add(30 * time.Hour),
		},
		{
			name:    "multi-day event",
			endDate: timePtr(start.Add(72 * time.Hour)),
			want:    start.Add(96 * time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &model.Event{StartDate: start, EndDate: tt.endDate}
			got := SessionExpiry(e)
			assert.Equal(t, tt.want, got)
			assert.False(t, got.Before(start.Add(24*time.Hour)), "expiry must be at least a day past start")
			if tt.endDate != nil {
				assert.False(t, got.Before(tt.endDate.Add(24*time.Hour)), "expiry must be at least a day past end")
			}
		})
	}
}

func TestNewSession(t *testing.T) {
	start := time.Date(2025, 9, 10, 18, 0, 0, 0, time.UTC)
	e := &model.Event{ID: 7, StartDate: start}
	att := &model.Attendee{
		ID:       42,
		EventID:  7,
		FullName: "Dana Guest",
		Email:    strPtr("dana@example.com"),
	}

	sess, err := NewSession(e, att)
	require.NoError(t, err)

	assert.Equal(t, int64(7), sess.EventID)
	assert.Equal(t, int64(42), sess.AttendeeID)
	assert.Equal(t, "Dana Guest", sess.Name)
	assert.Equal(t, att.Email, sess.Email)
	assert.NotEmpty(t, sess.SessionToken)
	assert.Equal(t, SessionExpiry(e), sess.ExpiresAt)
}

func TestCookie(t *testing.T) {
	ck := Cookie("tok123", true)

	assert.Equal(t, CookieName, ck.Name)
	assert.Equal(t, "tok123", ck.Value)
	assert.Equal(t, "/", ck.Path)
	assert.True(t, ck.HttpOnly)
	assert.True(t, ck.Secure)
	assert.Equal(t, http.SameSiteLaxMode, ck.SameSite)
	assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), ck.MaxAge)

	local := Cookie("tok123", false)
	assert.False(t, local.Secure)
}

func timePtr(v time.Time) *time.Time { return &v }
func strPtr(v string) *string        { return &v }
