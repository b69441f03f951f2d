package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned for every token that fails validation. Expired,
// malformed and badly signed tokens are deliberately indistinguishable.
var ErrUnauthorized = errors.New("unauthorized")

type Claims struct {
	Sub  int64  `json:"sub"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer mints and validates HS256 session tokens with a fixed lifetime.
type Issuer struct {
	secret   []byte
	ttl      time.Duration
	audience string
	now      func() time.Time
}

func NewIssuer(secret string, ttl time.Duration, audience string) *Issuer {
	return &Issuer{
		secret:   []byte(secret),
		ttl:      ttl,
		audience: audience,
		now:      time.Now,
	}
}

// WithClock returns a copy of the issuer that reads time from now.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	cp := *i
	cp.now = now
	return &cp
}

func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

func (i *Issuer) Issue(accountID int64, role string) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	claims := Claims{
		Sub:  accountID,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Audience:  []string{i.audience},
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

func (i *Issuer) Validate(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrUnauthorized
	}
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithAudience(i.audience),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, ErrUnauthorized
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid || claims.Sub <= 0 {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

func (c *Claims) IsAdmin() bool {
	return c.Role == "admin"
}
