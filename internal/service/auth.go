package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/authgate/internal/domain"
	"github.com/utafrali/authgate/internal/event"
	"github.com/utafrali/authgate/internal/provider"
	apperrors "github.com/utafrali/authgate/pkg/errors"
	"github.com/utafrali/authgate/pkg/logger"
)

const defaultPublishTimeout = 2 * time.Second

// AuthService implements the auth operations by delegating to the identity
// provider and translating its failures into application errors.
type AuthService struct {
	provider       provider.Client
	events         event.Publisher
	defaultGroup   string
	publishTimeout time.Duration
	logger         *slog.Logger
}

// NewAuthService creates a new auth service. Confirmed users are added to
// defaultGroup.
func NewAuthService(p provider.Client, events event.Publisher, defaultGroup string, logger *slog.Logger) *AuthService {
	if events == nil {
		events = event.Nop{}
	}
	return &AuthService{
		provider:       p,
		events:         events,
		defaultGroup:   defaultGroup,
		publishTimeout: defaultPublishTimeout,
		logger:         logger,
	}
}

// --- Operations ---

// SignUp registers a new account and returns the provider's user id.
func (s *AuthService) SignUp(ctx context.Context, email, password string) (string, error) {
	userID, err := s.provider.SignUp(ctx, email, password)
	if err != nil {
		return "", mapProviderError(err, func(pe *provider.Error) error {
			switch pe.Reason {
			case provider.ReasonUserExists:
				return apperrors.AlreadyExists("user", "email", email)
			case provider.ReasonInvalidPassword, provider.ReasonInvalidParameter:
				return apperrors.InvalidInput(rejectionMessage(pe, "invalid sign-up request"))
			default:
				return apperrors.InvalidInput("sign-up rejected by identity provider")
			}
		})
	}

	log := logger.WithContext(ctx, s.logger)
	log.Info("user signed up",
		slog.String("user_id", userID),
		slog.String("email", logger.MaskEmail(email)),
	)

	s.publish(ctx, "user.signed_up", func(ctx context.Context) error {
		return s.events.UserSignedUp(ctx, userID, email)
	})
	return userID, nil
}

// ConfirmSignUp confirms the account and then adds it to the default group.
// A failure of the group assignment fails the whole operation.
func (s *AuthService) ConfirmSignUp(ctx context.Context, email, code string) error {
	if err := s.provider.ConfirmSignUp(ctx, email, code); err != nil {
		return mapProviderError(err, func(pe *provider.Error) error {
			return apperrors.InvalidInput(rejectionMessage(pe, "confirmation rejected"))
		})
	}

	if err := s.provider.AdminAddUserToGroup(ctx, email, s.defaultGroup); err != nil {
		return mapProviderError(err, func(pe *provider.Error) error {
			return apperrors.Internal(fmt.Errorf("add user to group %q: %w", s.defaultGroup, pe))
		})
	}

	log := logger.WithContext(ctx, s.logger)
	log.Info("user confirmed",
		slog.String("email", logger.MaskEmail(email)),
		slog.String("group", s.defaultGroup),
	)

	s.publish(ctx, "user.confirmed", func(ctx context.Context) error {
		return s.events.UserConfirmed(ctx, email, s.defaultGroup)
	})
	return nil
}

// SignIn authenticates with email and password.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*domain.TokenBundle, error) {
	bundle, err := s.provider.AuthenticateUser(ctx, email, password)
	if err != nil {
		return nil, mapProviderError(err, func(pe *provider.Error) error {
			switch pe.Reason {
			case provider.ReasonUserNotConfirmed:
				return apperrors.Unauthorized("account is not confirmed")
			case provider.ReasonInvalidParameter:
				// Usually a misconfigured app client. The detail is logged, never returned.
				logger.WithContext(ctx, s.logger).Warn("sign-in rejected as invalid request",
					slog.String("error", pe.Error()),
				)
				return apperrors.Unauthorized("invalid email or password")
			default:
				return apperrors.Unauthorized("invalid email or password")
			}
		})
	}

	if err := bundle.Validate(); err != nil {
		return nil, apperrors.Internal(fmt.Errorf("sign in: %w", err))
	}

	logger.WithContext(ctx, s.logger).Debug("user signed in",
		slog.String("email", logger.MaskEmail(email)),
	)
	return bundle, nil
}

// RefreshTokens exchanges a refresh token for a new bundle. Cognito does not
// rotate refresh tokens, so the caller's token is echoed back when the
// provider omits one.
func (s *AuthService) RefreshTokens(ctx context.Context, refreshToken, email string) (*domain.TokenBundle, error) {
	bundle, err := s.provider.AuthenticateRefreshToken(ctx, refreshToken, email)
	if err != nil {
		return nil, mapProviderError(err, func(pe *provider.Error) error {
			if pe.Reason == provider.ReasonInvalidParameter {
				return apperrors.InvalidInput(rejectionMessage(pe, "invalid refresh request"))
			}
			return apperrors.Unauthorized("invalid or expired refresh token")
		})
	}

	if bundle.RefreshToken == "" {
		bundle.RefreshToken = refreshToken
	}
	if err := bundle.Validate(); err != nil {
		return nil, apperrors.Internal(fmt.Errorf("refresh tokens: %w", err))
	}
	return bundle, nil
}

// ForgotPassword starts a password reset. Every provider rejection, unknown
// emails included, succeeds silently so the endpoint cannot be used to learn
// anything about accounts.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	if err := s.provider.ForgotPassword(ctx, email); err != nil {
		return mapProviderError(err, func(pe *provider.Error) error {
			logger.WithContext(ctx, s.logger).Debug("password reset request rejected",
				slog.String("email", logger.MaskEmail(email)),
				slog.String("reason", string(pe.Reason)),
			)
			return nil
		})
	}

	s.publish(ctx, "user.password_reset_requested", func(ctx context.Context) error {
		return s.events.PasswordResetRequested(ctx, email)
	})
	return nil
}

// ConfirmForgotPassword completes a password reset with the emailed code.
func (s *AuthService) ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) error {
	if err := s.provider.ConfirmForgotPassword(ctx, email, code, newPassword); err != nil {
		return mapProviderError(err, func(pe *provider.Error) error {
			return apperrors.InvalidInput(rejectionMessage(pe, "password reset rejected"))
		})
	}

	logger.WithContext(ctx, s.logger).Info("password reset completed",
		slog.String("email", logger.MaskEmail(email)),
	)

	s.publish(ctx, "user.password_reset", func(ctx context.Context) error {
		return s.events.PasswordReset(ctx, email)
	})
	return nil
}

// publish emits an event on a best-effort basis, waiting at most
// publishTimeout. Failures are logged and never change the outcome of the
// operation.
func (s *AuthService) publish(ctx context.Context, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		logger.WithContext(ctx, s.logger).Warn("failed to publish event",
			slog.String("event", name),
			slog.String("error", err.Error()),
		)
	}
}

// --- Error mapping ---

// mapProviderError translates provider failures shared by every operation
// (throttling, unavailability, unknown faults) and hands rejections to
// rejected for an operation-specific mapping.
func mapProviderError(err error, rejected func(*provider.Error) error) error {
	var pe *provider.Error
	if !errors.As(err, &pe) {
		return apperrors.Internal(err)
	}

	switch pe.Reason {
	case provider.ReasonThrottled:
		appErr := apperrors.TooManyRequests("too many requests, try again later")
		appErr.Err = fmt.Errorf("%w: %w", appErr.Err, pe)
		return appErr
	case provider.ReasonUnavailable:
		return apperrors.ServiceUnavailable("identity provider unavailable", pe)
	case provider.ReasonUnknown:
		return apperrors.Internal(pe)
	default:
		return rejected(pe)
	}
}

// rejectionMessage returns the provider's explanation of a rejection, or
// fallback when it gave none.
func rejectionMessage(pe *provider.Error, fallback string) string {
	if pe.Message != "" {
		return pe.Message
	}
	return fallback
}
