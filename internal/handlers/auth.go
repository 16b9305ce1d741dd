package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/pagefeedhq/pagefeed/internal/auth"
	"github.com/pagefeedhq/pagefeed/internal/services"
	"github.com/pagefeedhq/pagefeed/internal/tenant"
	appErrors "github.com/pagefeedhq/pagefeed/pkg/errors"
	"github.com/pagefeedhq/pagefeed/pkg/metrics"
	"github.com/pagefeedhq/pagefeed/pkg/response"
)

// apiVersionHeader selects between response shapes on versioned endpoints.
// Version 1 is the default; the embed script sends 2.
const apiVersionHeader = "X-Api-Version"

// AuthHandler manages the passwordless visitor authentication flow.
type AuthHandler struct {
	magicLinks *services.MagicLinkService
	tokens     *iauth.SessionTokenService
	resolver   *tenant.Resolver
}

func NewAuthHandler(magicLinks *services.MagicLinkService, tokens *iauth.SessionTokenService, resolver *tenant.Resolver) *AuthHandler {
	return &AuthHandler{magicLinks: magicLinks, tokens: tokens, resolver: resolver}
}

type magicLinkRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// POST /api/auth/request-magic-link
func (h *AuthHandler) RequestMagicLink(c *gin.Context) {
	var req magicLinkRequest
	if !bindAndValidate(c, &req) {
		metrics.MagicLinksIssued.WithLabelValues("rejected").Inc()
		return
	}

	pageKey := h.resolver.Resolve(c.Request.Host).Key()

	// Carry the anonymous identifier forward so its history survives sign-up.
	var anonymousID string
	if identity := iauth.ResolveIdentity(c.Request, h.tokens); identity.Kind == iauth.IdentityAnonymous {
		anonymousID = identity.VisitorID
	}

	err := h.magicLinks.RequestLink(c.Request.Context(), req.Email, pageKey, anonymousID)
	switch {
	case err == nil:
		metrics.MagicLinksIssued.WithLabelValues("issued").Inc()
		response.Success(c, http.StatusOK, gin.H{
			"message": "Check your inbox for a sign-in link.",
		})
	case errors.Is(err, services.ErrRateLimited):
		metrics.MagicLinksIssued.WithLabelValues("rate_limited").Inc()
		response.Error(c, appErrors.ErrRateLimit)
	case errors.Is(err, services.ErrInvalidEmail):
		metrics.MagicLinksIssued.WithLabelValues("rejected").Inc()
		response.Error(c, appErrors.NewBadRequest("email must be a valid email address"))
	case errors.Is(err, tenant.ErrPageUnavailable):
		metrics.MagicLinksIssued.WithLabelValues("rejected").Inc()
		response.Error(c, appErrors.NewBadRequest("sign-in is not available for this page"))
	default:
		metrics.MagicLinksIssued.WithLabelValues("error").Inc()
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
	}
}

type verifyRequest struct {
	Token string `json:"token" validate:"required,max=128"`
}

type visitorPayload struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// POST /api/auth/verify-magic-link
func (h *AuthHandler) VerifyMagicLink(c *gin.Context) {
	var req verifyRequest
	if !bindAndValidate(c, &req) {
		metrics.MagicLinkVerifications.WithLabelValues("rejected").Inc()
		return
	}

	visitor, err := h.magicLinks.Verify(c.Request.Context(), req.Token)
	if err != nil {
		// Invalid, consumed, and expired tokens are indistinguishable to the
		// client; the lifetime is short enough that retry guidance is useless.
		if errors.Is(err, services.ErrTokenInvalid) || errors.Is(err, services.ErrTokenExpired) {
			metrics.MagicLinkVerifications.WithLabelValues("rejected").Inc()
			response.Error(c, appErrors.ErrTokenInvalid)
			return
		}
		metrics.MagicLinkVerifications.WithLabelValues("error").Inc()
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	email := ""
	if visitor.Email != nil {
		email = *visitor.Email
	}

	token, err := h.tokens.Issue(visitor.ID, email, visitor.EmailVerified)
	if err != nil {
		metrics.MagicLinkVerifications.WithLabelValues("error").Inc()
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	iauth.SetSessionCookie(c.Writer, token, h.tokens.TTL())
	// Sync the legacy identifier so anonymous writes attribute to the same
	// visitor; readable by the embed script.
	iauth.SetVisitorCookie(c.Writer, visitor.ID, false)

	metrics.MagicLinkVerifications.WithLabelValues("verified").Inc()
	response.Success(c, http.StatusOK, gin.H{
		"visitor": visitorPayload{
			ID:            visitor.ID,
			Email:         email,
			EmailVerified: visitor.EmailVerified,
		},
	})
}

type meResponseV1 struct {
	Visitor visitorPayload `json:"visitor"`
}

type sessionInfo struct {
	ExpiresAt time.Time `json:"expires_at"`
}

type meResponseV2 struct {
	Visitor visitorPayload `json:"visitor"`
	Session sessionInfo    `json:"session"`
}

// GET /api/auth/me
//
// Dispatches on the version header to one of two named operations: version 1
// returns the bare visitor payload, version 2 adds the session expiry so
// clients can schedule re-authentication.
func (h *AuthHandler) Me(c *gin.Context) {
	identity := iauth.ResolveIdentity(c.Request, h.tokens)
	if !identity.Authenticated() {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	visitor := visitorPayload{
		ID:            identity.VisitorID,
		Email:         identity.Email,
		EmailVerified: identity.EmailVerified,
	}

	if c.GetHeader(apiVersionHeader) == "2" {
		h.meV2(c, visitor)
		return
	}
	h.meV1(c, visitor)
}

func (h *AuthHandler) meV1(c *gin.Context, visitor visitorPayload) {
	response.Success(c, http.StatusOK, meResponseV1{Visitor: visitor})
}

func (h *AuthHandler) meV2(c *gin.Context, visitor visitorPayload) {
	payload := meResponseV2{Visitor: visitor}
	if cookie, err := c.Request.Cookie(iauth.SessionCookieName); err == nil {
		if claims, err := h.tokens.Validate(cookie.Value); err == nil && claims.ExpiresAt != nil {
			payload.Session.ExpiresAt = claims.ExpiresAt.Time
		}
	}
	response.Success(c, http.StatusOK, payload)
}

// POST /api/auth/logout
//
// Sessions are stateless, so logout is purely a cookie clear; the anonymous
// identifier survives on purpose.
func (h *AuthHandler) Logout(c *gin.Context) {
	iauth.ClearSessionCookie(c.Writer)
	response.Success(c, http.StatusOK, gin.H{"message": "Signed out."})
}
