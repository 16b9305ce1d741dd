package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	iauth "github.com/pagefeedhq/pagefeed/internal/auth"
	"github.com/pagefeedhq/pagefeed/internal/models"
	"github.com/pagefeedhq/pagefeed/internal/tenant"
	appErrors "github.com/pagefeedhq/pagefeed/pkg/errors"
	"github.com/pagefeedhq/pagefeed/pkg/response"
)

// PageHandler serves the tenant-scoped routes the edge rewrite dispatches to,
// plus the public view tracking endpoint.
type PageHandler struct {
	db      *gorm.DB
	tenants *tenant.Service
	tokens  *iauth.SessionTokenService
}

func NewPageHandler(db *gorm.DB, tenants *tenant.Service, tokens *iauth.SessionTokenService) *PageHandler {
	return &PageHandler{db: db, tenants: tenants, tokens: tokens}
}

type pagePayload struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	AccentColor string `json:"accent_color,omitempty"`
}

// GET /_sites/:site/*rest
//
// The site segment is the rewrite key minted by the edge filter: a slug, a
// custom domain, or the sentinel. Unknown pages, suspended pages, and the
// sentinel all render the same 404.
func (h *PageHandler) Show(c *gin.Context) {
	page, err := h.tenants.FindByKey(c.Request.Context(), c.Param("site"))
	if err != nil {
		if errors.Is(err, tenant.ErrPageUnavailable) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	payload := pagePayload{ID: page.ID, Slug: page.Slug, Title: page.Slug}
	if page.Settings != nil {
		if page.Settings.Title != "" {
			payload.Title = page.Settings.Title
		}
		payload.AccentColor = page.Settings.AccentColor
	}

	response.Success(c, http.StatusOK, gin.H{"page": payload})
}

// POST /api/pages/:site/views
//
// Records a page view attributed to whichever identity the cookies resolve
// to, minting an anonymous identifier on first contact.
func (h *PageHandler) TrackView(c *gin.Context) {
	page, err := h.tenants.FindByKey(c.Request.Context(), c.Param("site"))
	if err != nil {
		if errors.Is(err, tenant.ErrPageUnavailable) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	identity, minted := iauth.Identify(c.Request, h.tokens)
	if minted {
		iauth.SetVisitorCookie(c.Writer, identity.VisitorID, true)
	}

	view := models.PageView{PageID: page.ID, VisitorID: identity.VisitorID}
	if err := h.db.WithContext(c.Request.Context()).Create(&view).Error; err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"recorded": true})
}
