// Package guest issues ephemeral cookie-backed identities for registrants
// without an account. A guest session is scoped to a single event and carries
// no privileges beyond it.
package guest

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/vilanovax/bizbuzz/internal/model"
)

const (
	// CookieName is the transport cookie holding the opaque session token.
	CookieName = "guest_session"

	// CookieMaxAge caps the cookie lifetime at 7 days from issuance,
	// independent of the stored session expiry.
	CookieMaxAge = 7 * 24 * time.Hour

	tokenBytes = 32

	// expiryGrace keeps the session alive for a day past the event so guests
	// can still look up their registration right after it ends.
	expiryGrace = 24 * time.Hour
)

// NewToken returns an opaque hex-encoded token with 32 bytes of randomness.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// SessionExpiry computes the stored expiry floor: at least a day past the
// event start, and at least a day past the event end when one is set.
func SessionExpiry(e *model.Event) time.Time {
	expires := e.StartDate.Add(expiryGrace)
	if e.EndDate != nil {
		if after := e.EndDate.Add(expiryGrace); after.After(expires) {
			expires = after
		}
	}
	return expires
}

// NewSession assembles the session row for a freshly registered guest
// attendee. The attendee link is the owning edge; the attendee's
// guest_session_id cache is backfilled by the repository.
func NewSession(e *model.Event, att *model.Attendee) (*model.GuestSession, error) {
	token, err := NewToken()
	if err != nil {
		return nil, err
	}
	return &model.GuestSession{
		SessionToken: token,
		Name:         att.FullName,
		Phone:        att.Phone,
		Email:        att.Email,
		EventID:      e.ID,
		AttendeeID:   att.ID,
		ExpiresAt:    SessionExpiry(e),
	}, nil
}

// Cookie builds the transport cookie for a session token. The secure flag is
// disabled only for local development.
func Cookie(token string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(CookieMaxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
