package cognito

import (
	"context"
	"errors"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/utafrali/authgate/internal/provider"
	"github.com/utafrali/authgate/pkg/httpclient"
)

// exceptionReasons maps Cognito exception codes onto provider reasons.
var exceptionReasons = map[string]provider.Reason{
	"NotAuthorizedException":         provider.ReasonInvalidCredentials,
	"PasswordResetRequiredException": provider.ReasonInvalidCredentials,
	"UserNotFoundException":          provider.ReasonUserNotFound,
	"UsernameExistsException":        provider.ReasonUserExists,
	"AliasExistsException":           provider.ReasonUserExists,
	"UserNotConfirmedException":      provider.ReasonUserNotConfirmed,
	"CodeMismatchException":          provider.ReasonCodeMismatch,
	"ExpiredCodeException":           provider.ReasonCodeExpired,
	"InvalidPasswordException":       provider.ReasonInvalidPassword,
	"InvalidParameterException":      provider.ReasonInvalidParameter,
	"ResourceNotFoundException":      provider.ReasonInvalidParameter,
	"TooManyRequestsException":       provider.ReasonThrottled,
	"LimitExceededException":         provider.ReasonThrottled,
	"TooManyFailedAttemptsException": provider.ReasonThrottled,
	"CodeDeliveryFailureException":   provider.ReasonUnavailable,
	"InternalErrorException":         provider.ReasonUnavailable,
}

// translateError converts an SDK error into a *provider.Error.
func translateError(op string, err error) *provider.Error {
	var perr *provider.Error
	if errors.As(err, &perr) {
		return perr
	}

	switch {
	case httpclient.IsOpen(err):
		return provider.NewError(op, provider.ReasonUnavailable, "identity provider circuit open", err)
	case errors.Is(err, context.DeadlineExceeded):
		return provider.NewError(op, provider.ReasonUnavailable, "identity provider timed out", err)
	case errors.Is(err, context.Canceled):
		return provider.NewError(op, provider.ReasonUnavailable, "request canceled", err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if reason, ok := exceptionReasons[apiErr.ErrorCode()]; ok {
			return provider.NewError(op, reason, apiErr.ErrorMessage(), err)
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return provider.NewError(op, provider.ReasonUnavailable, apiErr.ErrorMessage(), err)
		}
		return provider.NewError(op, provider.ReasonUnknown, apiErr.ErrorMessage(), err)
	}

	var sendErr *smithyhttp.RequestSendError
	if errors.As(err, &sendErr) {
		return provider.NewError(op, provider.ReasonUnavailable, "identity provider unreachable", err)
	}

	return provider.NewError(op, provider.ReasonUnknown, "", err)
}
