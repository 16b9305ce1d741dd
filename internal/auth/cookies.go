package auth

import (
	"net/http"
	"time"
)

const (
	// SessionCookieName carries the signed session token.
	SessionCookieName = "pagefeed_session"

	// VisitorCookieName carries the legacy anonymous identifier. Older embed
	// scripts read it from JavaScript, so it is only http-only when minted
	// server-side for a brand new visitor.
	VisitorCookieName = "pagefeed_visitor"

	// VisitorCookieTTL keeps anonymous identifiers durable across visits.
	VisitorCookieTTL = 365 * 24 * time.Hour
)

// SetSessionCookie attaches the signed session token to the response.
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie; logout is purely client-side.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// SetVisitorCookie attaches the anonymous identifier to the response.
// httpOnly is true when a fresh identifier is minted by tracking, false when
// the verifier syncs it to the authenticated visitor id.
func SetVisitorCookie(w http.ResponseWriter, visitorID string, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     VisitorCookieName,
		Value:    visitorID,
		Path:     "/",
		MaxAge:   int(VisitorCookieTTL.Seconds()),
		Secure:   true,
		HttpOnly: httpOnly,
		SameSite: http.SameSiteLaxMode,
	})
}
