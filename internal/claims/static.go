package claims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/utafrali/authgate/internal/domain"
)

// StaticIssuer is the iss claim of tokens minted by StaticResolver.
const StaticIssuer = "authgate-static"

// StaticResolver verifies HS256 tokens signed with a shared secret. It is
// meant for local development and tests where no user pool is available.
type StaticResolver struct {
	secret []byte
	parser *jwt.Parser
	now    func() time.Time
}

// NewStatic creates a resolver for tokens signed with secret.
func NewStatic(secret string, leeway time.Duration) (*StaticResolver, error) {
	if secret == "" {
		return nil, errors.New("static secret is required")
	}
	return &StaticResolver{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithIssuer(StaticIssuer),
			jwt.WithLeeway(leeway),
		),
		now: time.Now,
	}, nil
}

// Issue signs an access token for user valid for ttl.
func (s *StaticResolver) Issue(user domain.CurrentUser, ttl time.Duration) (string, error) {
	now := s.now().UTC()
	c := &Claims{
		TokenUse: TokenUseAccess,
		Email:    user.Email,
		Groups:   user.Groups,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    StaticIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Resolve verifies token and returns the user it was issued for.
func (s *StaticResolver) Resolve(_ context.Context, token string) (*domain.CurrentUser, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}

	var c Claims
	_, err := s.parser.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrUnauthorized)
	}

	return c.User(), nil
}
