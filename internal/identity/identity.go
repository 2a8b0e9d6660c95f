// Package identity resolves API callers from signed bearer tokens.
// Users are managed by an external account service; sitewarden only
// verifies the tokens it issues.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/leego972/sitewarden/internal/domain"
)

// Token validation errors.
var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrMissingSubject = errors.New("token has no subject")
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Plan   domain.PlanTier
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored in ctx.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type claims struct {
	Plan string `json:"plan,omitempty"`
	jwt.RegisteredClaims
}

// Config configures the token validator.
type Config struct {
	SecretKey string
	Issuer    string
}

// Validator verifies HS256 bearer tokens.
type Validator struct {
	secret []byte
	parser *jwt.Parser
	issuer string
}

// NewValidator creates a token validator.
func NewValidator(cfg Config) *Validator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &Validator{
		secret: []byte(cfg.SecretKey),
		parser: jwt.NewParser(opts...),
		issuer: cfg.Issuer,
	}
}

// ValidateToken parses token and returns its principal. A missing or unknown
// plan claim resolves to the free tier.
func (v *Validator) ValidateToken(_ context.Context, token string) (Principal, error) {
	var c claims
	parsed, err := v.parser.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return Principal{}, ErrInvalidToken
	}
	if c.Subject == "" {
		return Principal{}, ErrMissingSubject
	}

	plan := domain.PlanTier(c.Plan)
	if !plan.IsValid() {
		plan = domain.PlanFree
	}
	return Principal{UserID: c.Subject, Plan: plan}, nil
}

// IssueToken signs a token for p valid for ttl. Used by the CLI and tests.
func (v *Validator) IssueToken(p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		Plan: string(p.Plan),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
