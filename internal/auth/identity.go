package auth

import (
	"net/http"

	"github.com/google/uuid"
)

// IdentityKind discriminates the visitor identity variants.
type IdentityKind int

const (
	// IdentityNone means no usable cookie was presented.
	IdentityNone IdentityKind = iota
	// IdentityAnonymous is the legacy random-identifier cookie.
	IdentityAnonymous
	// IdentityAuthenticated is a validated session token.
	IdentityAuthenticated
)

// Identity is the outcome of the ordered cookie decision procedure. Callers
// switch on Kind instead of probing cookie presence themselves.
type Identity struct {
	Kind          IdentityKind
	VisitorID     string
	Email         string
	EmailVerified bool
}

// Authenticated reports whether the identity carries verified claims.
func (i Identity) Authenticated() bool {
	return i.Kind == IdentityAuthenticated
}

// ResolveIdentity derives the visitor identity from request cookies alone.
// Priority: a valid session token, then the legacy anonymous identifier,
// then none. It never touches the datastore.
func ResolveIdentity(r *http.Request, tokens *SessionTokenService) Identity {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if claims, err := tokens.Validate(cookie.Value); err == nil {
			return Identity{
				Kind:          IdentityAuthenticated,
				VisitorID:     claims.VisitorID,
				Email:         claims.Email,
				EmailVerified: claims.EmailVerified,
			}
		}
	}

	if cookie, err := r.Cookie(VisitorCookieName); err == nil && cookie.Value != "" {
		return Identity{Kind: IdentityAnonymous, VisitorID: cookie.Value}
	}

	return Identity{Kind: IdentityNone}
}

// Identify resolves the identity and mints a fresh anonymous identifier on
// first contact. The minted flag tells the caller to assign the visitor
// cookie on the response.
func Identify(r *http.Request, tokens *SessionTokenService) (Identity, bool) {
	identity := ResolveIdentity(r, tokens)
	if identity.Kind == IdentityNone {
		return Identity{Kind: IdentityAnonymous, VisitorID: uuid.NewString()}, true
	}
	return identity, false
}
