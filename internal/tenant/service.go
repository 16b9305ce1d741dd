package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/pagefeedhq/pagefeed/internal/models"
)

// ErrPageUnavailable covers every way a tenant can fail to resolve: unknown
// slug or domain, the sentinel key, and an inactive subscription. Callers must
// not be able to tell these apart.
var ErrPageUnavailable = errors.New("tenant: page unavailable")

// Service loads tenant records for published pages.
type Service struct {
	db         *gorm.DB
	rootDomain string
}

// NewService constructs a tenant Service.
func NewService(db *gorm.DB, rootDomain string) (*Service, error) {
	if db == nil {
		return nil, errors.New("tenant service: db is required")
	}
	rootDomain = strings.ToLower(strings.TrimSpace(rootDomain))
	if rootDomain == "" {
		return nil, errors.New("tenant service: root domain is required")
	}

	return &Service{db: db, rootDomain: rootDomain}, nil
}

// FindByKey loads the page addressed by a rewrite key (slug or custom
// domain), preloading its settings and gating on the subscription flag.
func (s *Service) FindByKey(ctx context.Context, key string) (*models.Page, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || key == SentinelKey {
		return nil, ErrPageUnavailable
	}

	query := s.db.WithContext(ctx).Preload("Settings")

	var page models.Page
	var err error
	if strings.Contains(key, ".") {
		err = query.Where("custom_domain = ?", key).First(&page).Error
	} else {
		err = query.Where("slug = ?", key).First(&page).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPageUnavailable
		}
		return nil, fmt.Errorf("tenant service: find page: %w", err)
	}

	if !page.SubscriptionActive {
		return nil, ErrPageUnavailable
	}

	return &page, nil
}

// FindByResolution loads the page addressed by a host resolution.
func (s *Service) FindByResolution(ctx context.Context, res Resolution) (*models.Page, error) {
	if res.IsZero() {
		return nil, ErrPageUnavailable
	}
	return s.FindByKey(ctx, res.Key())
}

// BaseURL returns the canonical public URL for a page, used when rendering
// activation links.
func (s *Service) BaseURL(page *models.Page) string {
	if page.CustomDomain != nil && *page.CustomDomain != "" {
		return "https://" + *page.CustomDomain
	}
	return fmt.Sprintf("https://%s.%s", page.Slug, s.rootDomain)
}
