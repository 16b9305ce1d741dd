package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewSessionTokenServiceRequiresSecret(t *testing.T) {
	_, err := NewSessionTokenService(SessionTokenConfig{})
	require.Error(t, err)
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewSessionTokenService(SessionTokenConfig{
		Secret: "test-secret",
		Issuer: "pagefeed",
		TTL:    30 * 24 * time.Hour,
		Clock:  func() time.Time { return now },
	})
	require.NoError(t, err)

	token, err := svc.Issue("visitor-1", "user@example.com", true)
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	require.Equal(t, "visitor-1", claims.VisitorID)
	require.Equal(t, "user@example.com", claims.Email)
	require.True(t, claims.EmailVerified)
	require.Equal(t, now.Unix(), claims.IssuedAt.Unix())
	require.Equal(t, now.Add(30*24*time.Hour).Unix(), claims.ExpiresAt.Unix())
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewSessionTokenService(SessionTokenConfig{
		Secret: "test-secret",
		TTL:    time.Hour,
		Clock:  func() time.Time { return now },
	})
	require.NoError(t, err)

	token, err := svc.Issue("visitor-1", "", false)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = svc.Validate(token)
	require.Error(t, err)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuerSvc, err := NewSessionTokenService(SessionTokenConfig{Secret: "secret-a"})
	require.NoError(t, err)
	verifierSvc, err := NewSessionTokenService(SessionTokenConfig{Secret: "secret-b"})
	require.NoError(t, err)

	token, err := issuerSvc.Issue("visitor-1", "", false)
	require.NoError(t, err)

	_, err = verifierSvc.Validate(token)
	require.Error(t, err)
}

func TestValidateRejectsMalformedToken(t *testing.T) {
	svc, err := NewSessionTokenService(SessionTokenConfig{Secret: "test-secret"})
	require.NoError(t, err)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		_, err := svc.Validate(token)
		require.Error(t, err, "token %q", token)
	}
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	issuerSvc, err := NewSessionTokenService(SessionTokenConfig{Secret: "s", Issuer: "other"})
	require.NoError(t, err)
	verifierSvc, err := NewSessionTokenService(SessionTokenConfig{Secret: "s", Issuer: "pagefeed"})
	require.NoError(t, err)

	token, err := issuerSvc.Issue("visitor-1", "", false)
	require.NoError(t, err)

	_, err = verifierSvc.Validate(token)
	require.Error(t, err)
}

func TestIssueRequiresVisitorID(t *testing.T) {
	svc, err := NewSessionTokenService(SessionTokenConfig{Secret: "s"})
	require.NoError(t, err)

	_, err = svc.Issue("", "user@example.com", true)
	require.Error(t, err)
}
