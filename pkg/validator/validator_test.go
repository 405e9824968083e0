package validator

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Internal string `json:"-"`
}

func TestValidate_Success(t *testing.T) {
	err := Validate(credentials{Email: "alice@example.com", Password: "TestPassword123!"})
	assert.NoError(t, err)
}

func TestValidate_UsesJSONFieldNames(t *testing.T) {
	err := Validate(credentials{Password: "TestPassword123!"})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Contains(t, fields, "email")
	assert.Equal(t, "is required", fields["email"])
}

func TestValidate_InvalidEmail(t *testing.T) {
	err := Validate(credentials{Email: "not-an-email", Password: "TestPassword123!"})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must be a valid email address", valErr.Fields()["email"])
}

func TestValidate_ShortPassword(t *testing.T) {
	err := Validate(credentials{Email: "alice@example.com", Password: "short"})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must be at least 8 characters", valErr.Fields()["password"])
}

func TestValidate_MultipleErrors(t *testing.T) {
	err := Validate(credentials{})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Len(t, fields, 2)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
}

func TestValidationError_ErrorString(t *testing.T) {
	err := Validate(credentials{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field 'email'")
	assert.Contains(t, err.Error(), "is required")
}

func TestDecodeAndValidate_Success(t *testing.T) {
	body := `{"email":"alice@example.com","password":"TestPassword123!"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	var dst credentials
	require.NoError(t, DecodeAndValidate(req, &dst))
	assert.Equal(t, "alice@example.com", dst.Email)
}

func TestDecodeAndValidate_MalformedJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{bad`))

	var dst credentials
	err := DecodeAndValidate(req, &dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")

	var valErr *ValidationError
	assert.False(t, errors.As(err, &valErr))
}

func TestDecodeAndValidate_ValidationFailure(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"x"}`))

	var dst credentials
	err := DecodeAndValidate(req, &dst)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestIsEmail(t *testing.T) {
	assert.True(t, IsEmail("alice@example.com"))
	assert.False(t, IsEmail("9f1c2e4a-7b3d-4e5f-8a6b-1c2d3e4f5a6b"))
	assert.False(t, IsEmail(""))
}
