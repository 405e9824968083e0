// Package claims turns bearer tokens into the identity of the caller.
package claims

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"github.com/utafrali/authgate/internal/domain"
	"github.com/utafrali/authgate/pkg/validator"
)

// ErrUnauthorized is wrapped by every resolution failure: malformed,
// badly signed, expired or foreign tokens, and tokens without a subject.
var ErrUnauthorized = errors.New("claims: unauthorized")

// Resolver validates a bearer token and returns the user it identifies.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*domain.CurrentUser, error)
}

// Token use values carried in the token_use claim of Cognito tokens.
const (
	TokenUseAccess = "access"
	TokenUseID     = "id"
)

// Claims is the subset of Cognito token claims the facade reads. Access
// tokens carry client_id and username; ID tokens carry aud and email.
type Claims struct {
	TokenUse        string   `json:"token_use,omitempty"`
	ClientID        string   `json:"client_id,omitempty"`
	Email           string   `json:"email,omitempty"`
	Username        string   `json:"username,omitempty"`
	CognitoUsername string   `json:"cognito:username,omitempty"`
	Groups          []string `json:"cognito:groups,omitempty"`
	jwt.RegisteredClaims
}

// User builds the CurrentUser view of the claims. Cognito access tokens never
// carry email, so it falls back to a username claim, but only one that holds
// an email address. Pools that alias email to a generated username yield an
// empty email for access tokens; their ID tokens carry it.
func (c *Claims) User() *domain.CurrentUser {
	email := c.Email
	if email == "" {
		for _, name := range []string{c.Username, c.CognitoUsername} {
			if validator.IsEmail(name) {
				email = name
				break
			}
		}
	}

	groups := c.Groups
	if groups == nil {
		groups = []string{}
	}

	return &domain.CurrentUser{
		ID:     c.Subject,
		Email:  email,
		Groups: groups,
	}
}
