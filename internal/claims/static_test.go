package claims

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/authgate/internal/domain"
)

func TestStatic_IssueAndResolve(t *testing.T) {
	s, err := NewStatic("a-very-long-shared-secret-for-tests", 0)
	require.NoError(t, err)

	tok, err := s.Issue(domain.CurrentUser{
		ID:     "user-1",
		Email:  "alice@example.com",
		Groups: []string{"user", "admin"},
	}, time.Minute)
	require.NoError(t, err)

	user, err := s.Resolve(context.Background(), tok)

	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, []string{"user", "admin"}, user.Groups)
}

func TestStatic_NoGroupsIsEmptySet(t *testing.T) {
	s, err := NewStatic("a-very-long-shared-secret-for-tests", 0)
	require.NoError(t, err)

	tok, err := s.Issue(domain.CurrentUser{ID: "user-1", Email: "alice@example.com"}, time.Minute)
	require.NoError(t, err)

	user, err := s.Resolve(context.Background(), tok)
	require.NoError(t, err)
	assert.NotNil(t, user.Groups)
	assert.Empty(t, user.Groups)
}

func TestStatic_Expired(t *testing.T) {
	s, err := NewStatic("a-very-long-shared-secret-for-tests", 0)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	tok, err := s.Issue(domain.CurrentUser{ID: "user-1"}, time.Hour)
	require.NoError(t, err)

	_, err = s.Resolve(context.Background(), tok)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestStatic_WrongSecret(t *testing.T) {
	a, err := NewStatic("secret-number-one-secret-number-one", 0)
	require.NoError(t, err)
	b, err := NewStatic("secret-number-two-secret-number-two", 0)
	require.NoError(t, err)

	tok, err := a.Issue(domain.CurrentUser{ID: "user-1"}, time.Minute)
	require.NoError(t, err)

	_, err = b.Resolve(context.Background(), tok)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestStatic_RejectsForeignIssuerAndMissingSub(t *testing.T) {
	secret := "a-very-long-shared-secret-for-tests"
	s, err := NewStatic(secret, 0)
	require.NoError(t, err)

	sign := func(c jwt.MapClaims) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
		require.NoError(t, err)
		return tok
	}
	exp := time.Now().Add(time.Minute).Unix()

	_, err = s.Resolve(context.Background(), sign(jwt.MapClaims{"sub": "u", "iss": "someone-else", "exp": exp}))
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = s.Resolve(context.Background(), sign(jwt.MapClaims{"iss": StaticIssuer, "exp": exp}))
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = s.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestNewStatic_RequiresSecret(t *testing.T) {
	_, err := NewStatic("", 0)
	assert.Error(t, err)
}

func TestClaims_UserEmailFallback(t *testing.T) {
	c := &Claims{CognitoUsername: "carol@example.com"}
	c.Subject = "sub"
	assert.Equal(t, "carol@example.com", c.User().Email)

	c.Username = "carol-username"
	assert.Equal(t, "carol@example.com", c.User().Email)

	c.Username = "9f1c2e4a-7b3d-4e5f-8a6b-1c2d3e4f5a6b"
	c.CognitoUsername = "9f1c2e4a-7b3d-4e5f-8a6b-1c2d3e4f5a6b"
	assert.Empty(t, c.User().Email)

	c.Email = "carol@corp.example.com"
	assert.Equal(t, "carol@corp.example.com", c.User().Email)
}
