package services

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pagefeedhq/pagefeed/internal/models"
	"github.com/pagefeedhq/pagefeed/internal/tenant"
	"github.com/pagefeedhq/pagefeed/pkg/crypto"
	"github.com/pagefeedhq/pagefeed/pkg/logger"
	"github.com/pagefeedhq/pagefeed/pkg/mail"
)

const (
	// DefaultTokenTTL is how long a magic link stays redeemable.
	DefaultTokenTTL = 15 * time.Minute
	// DefaultCooldown is the minimum gap between two issuances for one email.
	DefaultCooldown = time.Minute
)

var (
	// ErrInvalidEmail signals a syntactically invalid address.
	ErrInvalidEmail = errors.New("magic link: invalid email")
	// ErrRateLimited signals an issuance attempt inside the cooldown window.
	ErrRateLimited = errors.New("magic link: rate limited")
	// ErrTokenInvalid covers unknown and already-consumed tokens alike.
	ErrTokenInvalid = errors.New("magic link: token invalid")
	// ErrTokenExpired signals a well-formed token past its expiry.
	ErrTokenExpired = errors.New("magic link: token expired")
)

// Sender hands messages to the background dispatch queue. Satisfied by
// *mail.Dispatcher.
type Sender interface {
	Enqueue(msg mail.Message) error
}

// MagicLinkOption customises the MagicLinkService.
type MagicLinkOption func(*MagicLinkService)

// WithTokenTTL overrides the magic link lifetime.
func WithTokenTTL(d time.Duration) MagicLinkOption {
	return func(s *MagicLinkService) {
		if d > 0 {
			s.tokenTTL = d
		}
	}
}

// WithCooldown overrides the issuance rate-limit window.
func WithCooldown(d time.Duration) MagicLinkOption {
	return func(s *MagicLinkService) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

// WithClock injects a custom time source.
func WithClock(clock func() time.Time) MagicLinkOption {
	return func(s *MagicLinkService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// MagicLinkService implements both halves of the passwordless authentication
// protocol: issuing one-time emailed tokens and redeeming them.
type MagicLinkService struct {
	db       *gorm.DB
	tenants  *tenant.Service
	sender   Sender
	tokenTTL time.Duration
	cooldown time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// NewMagicLinkService constructs the service with the provided dependencies.
// A nil sender disables email dispatch, which is only useful in tests.
func NewMagicLinkService(db *gorm.DB, tenants *tenant.Service, sender Sender, opts ...MagicLinkOption) (*MagicLinkService, error) {
	if db == nil {
		return nil, errors.New("magic link service: db is required")
	}
	if tenants == nil {
		return nil, errors.New("magic link service: tenant service is required")
	}

	service := &MagicLinkService{
		db:       db,
		tenants:  tenants,
		sender:   sender,
		tokenTTL: DefaultTokenTTL,
		cooldown: DefaultCooldown,
		now:      time.Now,
		log:      logger.WithModule("magic-link"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// TokenTTL exposes the configured link lifetime.
func (s *MagicLinkService) TokenTTL() time.Duration {
	return s.tokenTTL
}

// RequestLink issues a magic link for email on the page addressed by pageKey.
// anonymousID is the caller's current anonymous identifier, empty when none;
// an unclaimed identifier is adopted so a returning anonymous visitor keeps
// their activity history.
//
// Re-requesting inside the cooldown window is rejected with ErrRateLimited,
// never silently re-sent. Success is returned once the email is queued, not
// delivered, and queue failures are logged rather than surfaced: the pending
// record exists and the visitor can retry.
func (s *MagicLinkService) RequestLink(ctx context.Context, email, pageKey, anonymousID string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ErrInvalidEmail
	}
	if _, err := netmail.ParseAddress(email); err != nil {
		return ErrInvalidEmail
	}

	// Never issue a link without a destination to redirect back to.
	page, err := s.tenants.FindByKey(ctx, pageKey)
	if err != nil {
		return err
	}
	if page.Settings == nil {
		return tenant.ErrPageUnavailable
	}

	now := s.now()

	existing, err := s.latestByEmail(ctx, email)
	if err != nil {
		return err
	}

	if existing != nil && existing.VerificationExpiresAt != nil {
		// The last issuance time is derived, not stored: expiry minus lifetime.
		issuedAt := existing.VerificationExpiresAt.Add(-s.tokenTTL)
		if now.Sub(issuedAt) < s.cooldown {
			return ErrRateLimited
		}
	}

	token, err := crypto.GenerateToken(crypto.TokenBytes)
	if err != nil {
		return fmt.Errorf("magic link service: generate token: %w", err)
	}
	expiry := now.Add(s.tokenTTL)

	if existing != nil {
		err = s.db.WithContext(ctx).Model(existing).Updates(map[string]any{
			"verification_token":      token,
			"verification_expires_at": expiry,
		}).Error
		if err != nil {
			return fmt.Errorf("magic link service: update pending token: %w", err)
		}
	} else if err := s.createPending(ctx, email, token, expiry, anonymousID); err != nil {
		return err
	}

	s.dispatchLink(page, email, token)
	return nil
}

// Verify redeems a one-time token and returns the now-verified visitor.
// Consumption is a conditional update so that two concurrent redemptions of
// the same token cannot both succeed. Failures never mutate the record.
func (s *MagicLinkService) Verify(ctx context.Context, token string) (*models.Visitor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}

	var visitor models.Visitor
	err := s.db.WithContext(ctx).Where("verification_token = ?", token).First(&visitor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("magic link service: find token: %w", err)
	}

	// Collation-insensitive lookups must not soften the exact match.
	if visitor.VerificationToken == nil || !crypto.TokensEqual(*visitor.VerificationToken, token) {
		return nil, ErrTokenInvalid
	}

	if visitor.VerificationExpiresAt == nil || visitor.VerificationExpiresAt.Before(s.now()) {
		return nil, ErrTokenExpired
	}

	result := s.db.WithContext(ctx).Model(&models.Visitor{}).
		Where("id = ? AND verification_token = ?", visitor.ID, token).
		Updates(map[string]any{
			"email_verified":          true,
			"verification_token":      nil,
			"verification_expires_at": nil,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("magic link service: consume token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Lost the race against a concurrent redemption.
		return nil, ErrTokenInvalid
	}

	visitor.EmailVerified = true
	visitor.VerificationToken = nil
	visitor.VerificationExpiresAt = nil
	return &visitor, nil
}

// PurgeExpired clears pending tokens whose expiry has passed. Run by the
// maintenance cleaner; harmless to the verifier, which checks expiry anyway.
func (s *MagicLinkService) PurgeExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Visitor{}).
		Where("verification_expires_at IS NOT NULL AND verification_expires_at < ?", s.now()).
		Updates(map[string]any{
			"verification_token":      nil,
			"verification_expires_at": nil,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("magic link service: purge expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *MagicLinkService) latestByEmail(ctx context.Context, email string) (*models.Visitor, error) {
	var visitor models.Visitor
	err := s.db.WithContext(ctx).
		Where("email = ?", email).
		Order("updated_at DESC").
		First(&visitor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("magic link service: find by email: %w", err)
	}
	return &visitor, nil
}

func (s *MagicLinkService) createPending(ctx context.Context, email, token string, expiry time.Time, anonymousID string) error {
	visitor := models.Visitor{
		Email:                 &email,
		VerificationToken:     &token,
		VerificationExpiresAt: &expiry,
	}

	if anonymousID != "" {
		claimed, err := s.identifierClaimed(ctx, anonymousID)
		if err != nil {
			return err
		}
		if !claimed {
			visitor.ID = anonymousID
		}
	}

	err := s.db.WithContext(ctx).Create(&visitor).Error
	if err == nil {
		return nil
	}
	if !isUniqueConstraintError(err) {
		return fmt.Errorf("magic link service: create visitor: %w", err)
	}

	// A concurrent issuance won the upsert; retry against the stored record.
	existing, lookupErr := s.latestByEmail(ctx, email)
	if lookupErr != nil {
		return lookupErr
	}
	if existing == nil {
		return fmt.Errorf("magic link service: create visitor: %w", err)
	}

	err = s.db.WithContext(ctx).Model(existing).Updates(map[string]any{
		"verification_token":      token,
		"verification_expires_at": expiry,
	}).Error
	if err != nil {
		return fmt.Errorf("magic link service: update pending token: %w", err)
	}
	return nil
}

// identifierClaimed reports whether a visitor record already owns the
// anonymous identifier. Claimed identifiers are never adopted; the histories
// stay separate by design (explicit non-merge policy).
func (s *MagicLinkService) identifierClaimed(ctx context.Context, id string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Visitor{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("magic link service: check identifier: %w", err)
	}
	return count > 0, nil
}

func (s *MagicLinkService) dispatchLink(page *models.Page, email, token string) {
	if s.sender == nil {
		return
	}

	title := page.Slug
	if page.Settings != nil && page.Settings.Title != "" {
		title = page.Settings.Title
	}

	link := fmt.Sprintf("%s/verify?token=%s", s.tenants.BaseURL(page), url.QueryEscape(token))

	msg := mail.Message{
		To:      []string{email},
		Subject: fmt.Sprintf("Sign in to %s", title),
		Body: fmt.Sprintf(
			"Click the link below to sign in to %s:\n\n%s\n\nThe link expires in %d minutes. If you did not request it, you can ignore this message.\n",
			title, link, int(s.tokenTTL.Minutes()),
		),
	}

	if err := s.sender.Enqueue(msg); err != nil {
		s.log.Warn("queue magic link email failed",
			zap.String("page", page.Slug),
			zap.Error(err),
		)
	}
}
