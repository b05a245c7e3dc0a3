package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Verifier resolves a bearer token to the identity provider's user id.
type Verifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// JWTVerifier checks HS256 tokens issued by the identity provider. Issuer and
// audience are enforced only when set.
type JWTVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

func NewJWTVerifier(secret, issuer, audience string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

// Ensure JWTVerifier implements Verifier at compile time.
var _ Verifier = (*JWTVerifier)(nil)

func (v *JWTVerifier) Verify(ctx context.Context, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	tok, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}
	c, ok := tok.Claims.(*jwt.RegisteredClaims)
	if !ok || !tok.Valid || c.Subject == "" {
		return "", ErrInvalidToken
	}
	return c.Subject, nil
}

// Issue signs a token for userID. The production identity provider issues
// its own tokens; this is used by tests and local tooling.
func (v *JWTVerifier) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    v.issuer,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	if v.audience != "" {
		c.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}
