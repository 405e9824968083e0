package domain

import (
	"errors"
	"fmt"
	"slices"
)

// TokenTypeBearer is the only token type the facade hands out.
const TokenTypeBearer = "Bearer"

// ErrInvalidTokenBundle is returned by TokenBundle.Validate.
var ErrInvalidTokenBundle = errors.New("invalid token bundle")

// TokenBundle is the set of tokens issued by the identity provider after a
// successful authentication or refresh. It is never stored.
type TokenBundle struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Validate normalizes an empty token type to Bearer and checks that the
// bundle is usable by a client.
func (b *TokenBundle) Validate() error {
	if b.TokenType == "" {
		b.TokenType = TokenTypeBearer
	}
	switch {
	case b.AccessToken == "":
		return fmt.Errorf("%w: missing access token", ErrInvalidTokenBundle)
	case b.TokenType != TokenTypeBearer:
		return fmt.Errorf("%w: unexpected token type %q", ErrInvalidTokenBundle, b.TokenType)
	case b.ExpiresIn <= 0:
		return fmt.Errorf("%w: non-positive expiry %d", ErrInvalidTokenBundle, b.ExpiresIn)
	}
	return nil
}

// CurrentUser is the identity derived from a validated bearer token.
type CurrentUser struct {
	ID     string   `json:"id"`
	Email  string   `json:"email"`
	Groups []string `json:"groups"`
}

// HasGroup reports whether the user belongs to group.
func (u *CurrentUser) HasGroup(group string) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.Groups, group)
}
