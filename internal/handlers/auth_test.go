package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	iauth "github.com/pagefeedhq/pagefeed/internal/auth"
	"github.com/pagefeedhq/pagefeed/internal/models"
	"github.com/pagefeedhq/pagefeed/internal/services"
	"github.com/pagefeedhq/pagefeed/internal/tenant"
)

type handlerFixture struct {
	db     *gorm.DB
	router *gin.Engine
	now    *time.Time
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Page{}, &models.PageSettings{}, &models.Visitor{}, &models.PageView{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// An in-memory database exists per connection; keep the pool at one.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tenants, err := tenant.NewService(db, "pagefeed.io")
	require.NoError(t, err)

	tokens, err := iauth.NewSessionTokenService(iauth.SessionTokenConfig{
		Secret: "test-secret",
		Issuer: "pagefeed",
		Clock:  func() time.Time { return now },
	})
	require.NoError(t, err)

	magicLinks, err := services.NewMagicLinkService(db, tenants, nil,
		services.WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)

	resolver := tenant.NewResolver("pagefeed.io", "demo", ".pagefeed.dev")

	authHandler := NewAuthHandler(magicLinks, tokens, resolver)
	pageHandler := NewPageHandler(db, tenants, tokens)

	router := gin.New()
	authGroup := router.Group("/api/auth")
	authGroup.POST("/request-magic-link", authHandler.RequestMagicLink)
	authGroup.POST("/verify-magic-link", authHandler.VerifyMagicLink)
	authGroup.GET("/me", authHandler.Me)
	authGroup.POST("/logout", authHandler.Logout)
	router.POST("/api/pages/:site/views", pageHandler.TrackView)
	router.GET("/_sites/:site/*rest", pageHandler.Show)

	return &handlerFixture{db: db, router: router, now: &now}
}

func (f *handlerFixture) seedPage(t *testing.T, slug string, active bool) *models.Page {
	t.Helper()

	page := models.Page{Slug: slug, SubscriptionActive: active}
	require.NoError(t, f.db.Create(&page).Error)
	require.NoError(t, f.db.Create(&models.PageSettings{PageID: page.ID, Title: "Acme Changelog"}).Error)
	return &page
}

func (f *handlerFixture) postJSON(t *testing.T, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Host = "acme.pagefeed.io"
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *handlerFixture) get(t *testing.T, path string, headers map[string]string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Host = "acme.pagefeed.io"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *handlerFixture) pendingToken(t *testing.T, email string) string {
	t.Helper()

	var visitor models.Visitor
	require.NoError(t, f.db.Where("email = ?", email).First(&visitor).Error)
	require.NotNil(t, visitor.VerificationToken)
	return *visitor.VerificationToken
}

func cookieByName(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()

	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %s not set", name)
	return nil
}

func TestMagicLinkFlowEndToEnd(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedPage(t, "acme", true)

	rec := f.postJSON(t, "/api/auth/request-magic-link", gin.H{"email": "user@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	token := f.pendingToken(t, "user@example.com")

	rec = f.postJSON(t, "/api/auth/verify-magic-link", gin.H{"token": token})
	require.Equal(t, http.StatusOK, rec.Code)

	session := cookieByName(t, rec, iauth.SessionCookieName)
	require.True(t, session.HttpOnly)
	visitorCookie := cookieByName(t, rec, iauth.VisitorCookieName)
	require.False(t, visitorCookie.HttpOnly)

	var verifyBody struct {
		Success bool `json:"success"`
		Data    struct {
			Visitor struct {
				ID            string `json:"id"`
				Email         string `json:"email"`
				EmailVerified bool   `json:"email_verified"`
			} `json:"visitor"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verifyBody))
	require.True(t, verifyBody.Success)
	require.True(t, verifyBody.Data.Visitor.EmailVerified)
	require.Equal(t, verifyBody.Data.Visitor.ID, visitorCookie.Value)

	rec = f.get(t, "/api/auth/me", nil, &http.Cookie{Name: iauth.SessionCookieName, Value: session.Value})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.postJSON(t, "/api/auth/logout", gin.H{})
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := cookieByName(t, rec, iauth.SessionCookieName)
	require.Equal(t, -1, cleared.MaxAge)

	rec = f.get(t, "/api/auth/me", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestMagicLinkAdoptsAnonymousCookie(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedPage(t, "acme", true)

	anonID := "7b1c6f1e-0000-4000-8000-000000000042"
	rec := f.postJSON(t, "/api/auth/request-magic-link", gin.H{"email": "user@example.com"},
		&http.Cookie{Name: iauth.VisitorCookieName, Value: anonID},
	)
	require.Equal(t, http.StatusOK, rec.Code)

	var visitor models.Visitor
	require.NoError(t, f.db.Where("email = ?", "user@example.com").First(&visitor).Error)
	require.Equal(t, anonID, visitor.ID)
}

func TestVerifyMagicLinkIsSingleUse(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedPage(t, "acme", true)

	rec := f.postJSON(t, "/api/auth/request-magic-link", gin.H{"email": "user@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	token := f.pendingToken(t, "user@example.com")

	require.Equal(t, http.StatusOK, f.postJSON(t, "/api/auth/verify-magic-link", gin.H{"token": token}).Code)

	rec = f.postJSON(t, "/api/auth/verify-magic-link", gin.H{"token": token})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyExpiredLink(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedPage(t, "acme", true)

	require.Equal(t, http.StatusOK,
		f.postJSON(t, "/api/auth/request-magic-link", gin.H{"email": "user@example.com"}).Code)
	token := f.pendingToken(t, "user@example.com")

	*f.now = f.now.Add(services.DefaultTokenTTL + time.Minute)

	rec := f.postJSON(t, "/api/auth/verify-magic-link", gin.H{"token": token})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestMagicLinkCooldownReturns429(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedPage(t, "acme", true)

	require.Equal(t, http.StatusOK,
		f.postJSON(t, "/api/auth/request-magic-link", gin.H{"email": "user@example.com"}).Code)

	rec := f.postJSON(t, "/api/auth/request-magic-link", gin.H{"email": "user@example.com"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRequestMagicLinkInvalidEmail(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedPage(t, "acme", true)

	rec := f.postJSON(t, "/api/auth/request-magic-link", gin.H{"email": "not-an-email"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestMagicLinkUnknownTenant(t *testing.T) {
	f := newHandlerFixture(t)
	// No page seeded: acme.pagefeed.io resolves to a slug with no record.

	rec := f.postJSON(t, "/api/auth/request-magic-link", gin.H{"email": "user@example.com"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMeVersionedResponse(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedPage(t, "acme", true)

	require.Equal(t, http.StatusOK,
		f.postJSON(t, "/api/auth/request-magic-link", gin.H{"email": "user@example.com"}).Code)
	token := f.pendingToken(t, "user@example.com")

	rec := f.postJSON(t, "/api/auth/verify-magic-link", gin.H{"token": token})
	require.Equal(t, http.StatusOK, rec.Code)
	session := cookieByName(t, rec, iauth.SessionCookieName)

	rec = f.get(t, "/api/auth/me", map[string]string{"X-Api-Version": "2"},
		&http.Cookie{Name: iauth.SessionCookieName, Value: session.Value})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Visitor struct {
				Email string `json:"email"`
			} `json:"visitor"`
			Session struct {
				ExpiresAt time.Time `json:"expires_at"`
			} `json:"session"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "user@example.com", body.Data.Visitor.Email)
	require.Equal(t, f.now.Add(iauth.DefaultSessionTTL).Unix(), body.Data.Session.ExpiresAt.Unix())
}
