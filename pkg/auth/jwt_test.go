package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuer_RoundTrip(t *testing.T) {
	iss := NewIssuer("test-secret", time.Hour, "signnatural-api")

	token, exp, err := iss.Issue(42, "admin")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 2*time.Second)

	claims, err := iss.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.Sub)
	assert.Equal(t, "admin", claims.Role)
	assert.True(t, claims.IsAdmin())
}

func TestIssuer_RejectsAfterExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	iss := NewIssuer("test-secret", time.Hour, "signnatural-api").WithClock(clock)

	token, _, err := iss.Issue(7, "user")
	require.NoError(t, err)

	_, err = iss.Validate(token)
	require.NoError(t, err)

	later := iss.WithClock(func() time.Time { return now.Add(time.Hour + time.Second) })
	_, err = later.Validate(token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestIssuer_UniformFailures(t *testing.T) {
	iss := NewIssuer("test-secret", time.Hour, "signnatural-api")
	other := NewIssuer("other-secret", time.Hour, "signnatural-api")
	wrongAud := NewIssuer("test-secret", time.Hour, "someone-else")

	foreign, _, err := other.Issue(1, "user")
	require.NoError(t, err)
	otherAud, _, err := wrongAud.Issue(1, "user")
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Sub: 1, Role: "admin"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"wrong secret", foreign},
		{"wrong audience", otherAud},
		{"alg none", unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := iss.Validate(tt.token)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}
