// Package auth verifies bearer tokens and carries the caller identity
// through request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin grants access to the admin routes.
const RoleAdmin = "admin"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the JWT payload issued by the platform's auth service.
// Some issuers put the user id in "userId" instead of "sub".
type Claims struct {
	UserID string `json:"userId,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   string
	Token  string
}

// IsAdmin reports whether the principal carries the admin role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// Verifier validates HS256 tokens against a shared secret.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewVerifier creates a Verifier. Empty issuer or audience skip that check.
func NewVerifier(secret, issuer, audience string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

// Verify parses and validates a raw token.
func (v *Verifier) Verify(raw string) (*Principal, error) {
	if raw == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID := claims.Subject
	if userID == "" {
		userID = claims.UserID
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}

	return &Principal{UserID: userID, Role: claims.Role, Token: raw}, nil
}

// Sign issues a token for userID. Used by tooling and tests.
func (v *Verifier) Sign(userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

type contextKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal stored in ctx, if any.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(*Principal)
	return p, ok && p != nil
}

// TokenFromContext returns the raw bearer token of the caller or "".
func TokenFromContext(ctx context.Context) string {
	if p, ok := FromContext(ctx); ok {
		return p.Token
	}
	return ""
}
