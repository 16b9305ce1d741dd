package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/pagefeedhq/pagefeed/internal/auth"
	"github.com/pagefeedhq/pagefeed/internal/models"
)

func TestShowRendersPageSettings(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedPage(t, "acme", true)

	rec := f.get(t, "/_sites/acme/changelog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Acme Changelog")
}

func TestShowHidesUnknownSuspendedAndSentinelAlike(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedPage(t, "paused", false)

	var bodies []string
	for _, site := range []string{"nope", "paused", "-"} {
		rec := f.get(t, "/_sites/"+site+"/changelog", nil)
		require.Equal(t, http.StatusNotFound, rec.Code, "site %s", site)
		bodies = append(bodies, rec.Body.String())
	}

	// The three cases must be indistinguishable.
	require.Equal(t, bodies[0], bodies[1])
	require.Equal(t, bodies[1], bodies[2])
}

func TestTrackViewMintsAnonymousIdentifier(t *testing.T) {
	f := newHandlerFixture(t)
	page := f.seedPage(t, "acme", true)

	rec := f.postJSON(t, "/api/pages/acme/views", gin.H{})
	require.Equal(t, http.StatusCreated, rec.Code)

	minted := cookieByName(t, rec, iauth.VisitorCookieName)
	require.NotEmpty(t, minted.Value)
	require.True(t, minted.HttpOnly)

	var view models.PageView
	require.NoError(t, f.db.Where("page_id = ?", page.ID).First(&view).Error)
	require.Equal(t, minted.Value, view.VisitorID)
}

func TestTrackViewKeepsExistingIdentifier(t *testing.T) {
	f := newHandlerFixture(t)
	page := f.seedPage(t, "acme", true)

	anonID := "7b1c6f1e-0000-4000-8000-000000000099"
	rec := f.postJSON(t, "/api/pages/acme/views", gin.H{},
		&http.Cookie{Name: iauth.VisitorCookieName, Value: anonID},
	)
	require.Equal(t, http.StatusCreated, rec.Code)

	// No cookie re-issued for a returning visitor.
	for _, c := range rec.Result().Cookies() {
		require.NotEqual(t, iauth.VisitorCookieName, c.Name)
	}

	var view models.PageView
	require.NoError(t, f.db.Where("page_id = ?", page.ID).First(&view).Error)
	require.Equal(t, anonID, view.VisitorID)
}

func TestTrackViewUnknownSite(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.postJSON(t, "/api/pages/nope/views", gin.H{})
	require.Equal(t, http.StatusNotFound, rec.Code)
}
