package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"routeopt/internal/config"
)

func TestDevTokens(t *testing.T) {
	v := NewVerifier(config.Auth{Mode: "dev"})
	p, err := v.Verify("acme:Admin")
	require.NoError(t, err)
	require.Equal(t, Principal{Tenant: "acme", Role: "admin"}, p)
	require.True(t, p.IsAdmin())

	_, err = v.Verify("acme")
	require.Error(t, err)
}

func TestHMACRoundTrip(t *testing.T) {
	v := NewVerifier(config.Auth{Mode: "hmac", HMACSecret: "s3cret"})
	tok, err := v.Sign(map[string]any{"tenant": "acme"})
	require.NoError(t, err)

	p, err := v.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "acme", p.Tenant)
	require.Equal(t, "user", p.Role)
}

func TestHMACRejects(t *testing.T) {
	v := NewVerifier(config.Auth{Mode: "hmac", HMACSecret: "s3cret"})
	other := NewVerifier(config.Auth{Mode: "hmac", HMACSecret: "different"})

	forged, err := other.Sign(map[string]any{"tenant": "acme", "role": "admin"})
	require.NoError(t, err)
	_, err = v.Verify(forged)
	require.ErrorIs(t, err, ErrBadSignature)

	noTenant, _ := v.Sign(map[string]any{"role": "admin"})
	_, err = v.Verify(noTenant)
	require.ErrorIs(t, err, ErrNoTenant)

	v.now = func() time.Time { return time.Unix(2000, 0) }
	expired, _ := v.Sign(map[string]any{"tenant": "acme", "exp": 1000})
	_, err = v.Verify(expired)
	require.ErrorIs(t, err, ErrExpired)

	_, err = v.Verify(strings.Repeat("x", 10))
	require.ErrorIs(t, err, ErrInvalidToken)
}
