package claims

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	"github.com/utafrali/authgate/internal/domain"
)

// IssuerURL returns the OIDC issuer of a Cognito user pool.
func IssuerURL(region, userPoolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, userPoolID)
}

// JWKSConfig configures a JWKSResolver.
type JWKSConfig struct {
	Issuer   string
	ClientID string
	Leeway   time.Duration
}

// JWKSResolver verifies RS256 tokens issued by the user pool against its
// published, auto-refreshing JWKS.
type JWKSResolver struct {
	issuer   string
	clientID string
	parser   *jwt.Parser
	keyfunc  jwt.Keyfunc
}

// NewJWKS performs OIDC discovery against cfg.Issuer and starts a background
// JWKS refresh that lives as long as ctx.
func NewJWKS(ctx context.Context, cfg JWKSConfig) (*JWKSResolver, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client id is required")
	}

	p, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}

	var meta struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := p.Claims(&meta); err != nil {
		return nil, fmt.Errorf("decode discovery metadata: %w", err)
	}
	if meta.JWKSURI == "" {
		return nil, errors.New("discovery metadata has no jwks_uri")
	}

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{meta.JWKSURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init: %w", err)
	}

	return &JWKSResolver{
		issuer:   cfg.Issuer,
		clientID: cfg.ClientID,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithLeeway(cfg.Leeway),
		),
		keyfunc: kf.Keyfunc,
	}, nil
}

// Resolve verifies token and checks that it was issued to the configured app
// client: client_id for access tokens, aud for ID tokens.
func (r *JWKSResolver) Resolve(_ context.Context, token string) (*domain.CurrentUser, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}

	var c Claims
	if _, err := r.parser.ParseWithClaims(token, &c, r.keyfunc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	switch c.TokenUse {
	case TokenUseAccess:
		if c.ClientID != r.clientID {
			return nil, fmt.Errorf("%w: token issued to another client", ErrUnauthorized)
		}
	case TokenUseID:
		if !slices.Contains(c.Audience, r.clientID) {
			return nil, fmt.Errorf("%w: audience mismatch", ErrUnauthorized)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported token_use %q", ErrUnauthorized, c.TokenUse)
	}

	if c.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrUnauthorized)
	}

	return c.User(), nil
}
