// Package cognito implements provider.Client on top of an AWS Cognito user
// pool app client.
package cognito

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/authgate/internal/domain"
	"github.com/utafrali/authgate/internal/provider"
	"github.com/utafrali/authgate/pkg/httpclient"
	"github.com/utafrali/authgate/pkg/tracing"
)

const tracerName = "github.com/utafrali/authgate/internal/provider/cognito"

// API is the subset of the Cognito Identity Provider client used here.
// *cognitoidentityprovider.Client satisfies it.
type API interface {
	SignUp(ctx context.Context, in *cip.SignUpInput, optFns ...func(*cip.Options)) (*cip.SignUpOutput, error)
	ConfirmSignUp(ctx context.Context, in *cip.ConfirmSignUpInput, optFns ...func(*cip.Options)) (*cip.ConfirmSignUpOutput, error)
	AdminAddUserToGroup(ctx context.Context, in *cip.AdminAddUserToGroupInput, optFns ...func(*cip.Options)) (*cip.AdminAddUserToGroupOutput, error)
	InitiateAuth(ctx context.Context, in *cip.InitiateAuthInput, optFns ...func(*cip.Options)) (*cip.InitiateAuthOutput, error)
	ForgotPassword(ctx context.Context, in *cip.ForgotPasswordInput, optFns ...func(*cip.Options)) (*cip.ForgotPasswordOutput, error)
	ConfirmForgotPassword(ctx context.Context, in *cip.ConfirmForgotPasswordInput, optFns ...func(*cip.Options)) (*cip.ConfirmForgotPasswordOutput, error)
}

// Config identifies the user pool and app client.
type Config struct {
	Region       string
	UserPoolID   string
	ClientID     string
	ClientSecret string

	// Endpoint overrides the Cognito endpoint, e.g. for cognito-local.
	Endpoint string

	Timeout        time.Duration
	MaxAttempts    int
	CircuitBreaker httpclient.CircuitBreakerConfig
}

// Client implements provider.Client against Cognito.
type Client struct {
	api          API
	userPoolID   string
	clientID     string
	clientSecret string
	logger       *slog.Logger
}

var _ provider.Client = (*Client)(nil)

// New builds a Cognito client whose HTTP traffic goes through a pooled
// transport guarded by a circuit breaker.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	httpCfg := httpclient.DefaultConfig()
	if cfg.Timeout > 0 {
		httpCfg.Timeout = cfg.Timeout
	}
	transport := httpclient.NewCircuitBreakerClient(httpclient.New(httpCfg), cfg.CircuitBreaker, logger)

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(transport),
	}
	if cfg.MaxAttempts > 0 {
		opts = append(opts, awsconfig.WithRetryMaxAttempts(cfg.MaxAttempts))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.Endpoint))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return NewWithAPI(cip.NewFromConfig(awsCfg), cfg, logger), nil
}

// NewWithAPI wraps an existing API implementation.
func NewWithAPI(api API, cfg Config, logger *slog.Logger) *Client {
	return &Client{
		api:          api,
		userPoolID:   cfg.UserPoolID,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		logger:       logger,
	}
}

// SecretHash computes the SECRET_HASH Cognito requires when the app client
// has a secret: base64(HMAC-SHA256(secret, username + clientID)).
func SecretHash(username, clientID, clientSecret string) string {
	mac := hmac.New(sha256.New, []byte(clientSecret))
	mac.Write([]byte(username + clientID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Client) secretHash(username string) *string {
	if c.clientSecret == "" || username == "" {
		return nil
	}
	return aws.String(SecretHash(username, c.clientID, c.clientSecret))
}

// SignUp registers a user with the email as username and returns the
// provider's user sub.
func (c *Client) SignUp(ctx context.Context, email, password string) (string, error) {
	var userID string
	err := c.call(ctx, "SignUp", func(ctx context.Context) error {
		out, err := c.api.SignUp(ctx, &cip.SignUpInput{
			ClientId:   aws.String(c.clientID),
			Username:   aws.String(email),
			Password:   aws.String(password),
			SecretHash: c.secretHash(email),
			UserAttributes: []types.AttributeType{
				{Name: aws.String("email"), Value: aws.String(email)},
			},
		})
		if err != nil {
			return err
		}
		userID = aws.ToString(out.UserSub)
		return nil
	})
	if err != nil {
		return "", err
	}
	if userID == "" {
		return "", provider.NewError("SignUp", provider.ReasonUnknown, "response carried no user sub", nil)
	}
	return userID, nil
}

// ConfirmSignUp confirms a registration with the emailed code.
func (c *Client) ConfirmSignUp(ctx context.Context, email, code string) error {
	return c.call(ctx, "ConfirmSignUp", func(ctx context.Context) error {
		_, err := c.api.ConfirmSignUp(ctx, &cip.ConfirmSignUpInput{
			ClientId:         aws.String(c.clientID),
			Username:         aws.String(email),
			ConfirmationCode: aws.String(code),
			SecretHash:       c.secretHash(email),
		})
		return err
	})
}

// AdminAddUserToGroup adds the user to a user pool group.
func (c *Client) AdminAddUserToGroup(ctx context.Context, email, group string) error {
	return c.call(ctx, "AdminAddUserToGroup", func(ctx context.Context) error {
		_, err := c.api.AdminAddUserToGroup(ctx, &cip.AdminAddUserToGroupInput{
			UserPoolId: aws.String(c.userPoolID),
			Username:   aws.String(email),
			GroupName:  aws.String(group),
		})
		return err
	}, attribute.String("cognito.group", group))
}

// AuthenticateUser runs the USER_PASSWORD_AUTH flow.
func (c *Client) AuthenticateUser(ctx context.Context, email, password string) (*domain.TokenBundle, error) {
	params := map[string]string{
		"USERNAME": email,
		"PASSWORD": password,
	}
	if h := c.secretHash(email); h != nil {
		params["SECRET_HASH"] = *h
	}
	return c.initiateAuth(ctx, "AuthenticateUser", types.AuthFlowTypeUserPasswordAuth, params)
}

// AuthenticateRefreshToken runs the REFRESH_TOKEN_AUTH flow. email is only
// needed to compute the secret hash and may be empty otherwise.
func (c *Client) AuthenticateRefreshToken(ctx context.Context, refreshToken, email string) (*domain.TokenBundle, error) {
	params := map[string]string{
		"REFRESH_TOKEN": refreshToken,
	}
	if c.clientSecret != "" {
		if email == "" {
			return nil, provider.NewError("AuthenticateRefreshToken", provider.ReasonInvalidParameter,
				"email is required to refresh tokens for this client", nil)
		}
		params["SECRET_HASH"] = SecretHash(email, c.clientID, c.clientSecret)
	}
	return c.initiateAuth(ctx, "AuthenticateRefreshToken", types.AuthFlowTypeRefreshTokenAuth, params)
}

func (c *Client) initiateAuth(ctx context.Context, op string, flow types.AuthFlowType, params map[string]string) (*domain.TokenBundle, error) {
	var out *cip.InitiateAuthOutput
	err := c.call(ctx, op, func(ctx context.Context) error {
		var err error
		out, err = c.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
			AuthFlow:       flow,
			ClientId:       aws.String(c.clientID),
			AuthParameters: params,
		})
		return err
	}, attribute.String("cognito.auth_flow", string(flow)))
	if err != nil {
		return nil, err
	}

	res := out.AuthenticationResult
	if res == nil {
		return nil, provider.NewError(op, provider.ReasonInvalidCredentials,
			fmt.Sprintf("authentication requires challenge %s", out.ChallengeName), nil)
	}

	return &domain.TokenBundle{
		AccessToken:  aws.ToString(res.AccessToken),
		RefreshToken: aws.ToString(res.RefreshToken),
		IDToken:      aws.ToString(res.IdToken),
		TokenType:    aws.ToString(res.TokenType),
		ExpiresIn:    int(res.ExpiresIn),
	}, nil
}

// ForgotPassword asks Cognito to send a reset code to the user.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.call(ctx, "ForgotPassword", func(ctx context.Context) error {
		_, err := c.api.ForgotPassword(ctx, &cip.ForgotPasswordInput{
			ClientId:   aws.String(c.clientID),
			Username:   aws.String(email),
			SecretHash: c.secretHash(email),
		})
		return err
	})
}

// ConfirmForgotPassword sets a new password using the reset code.
func (c *Client) ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) error {
	return c.call(ctx, "ConfirmForgotPassword", func(ctx context.Context) error {
		_, err := c.api.ConfirmForgotPassword(ctx, &cip.ConfirmForgotPasswordInput{
			ClientId:         aws.String(c.clientID),
			Username:         aws.String(email),
			ConfirmationCode: aws.String(code),
			Password:         aws.String(newPassword),
			SecretHash:       c.secretHash(email),
		})
		return err
	})
}

// call runs fn inside a span, records metrics and translates the SDK error.
func (c *Client) call(ctx context.Context, op string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "cognito."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs,
			attribute.String("rpc.system", "aws-api"),
			attribute.String("rpc.service", "CognitoIdentityProvider"),
			attribute.String("rpc.method", op),
		)...),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err == nil {
		requestsTotal.WithLabelValues(op, "ok").Inc()
		return nil
	}

	perr := translateError(op, err)
	requestsTotal.WithLabelValues(op, string(perr.Reason)).Inc()
	span.SetAttributes(attribute.String("cognito.failure_reason", string(perr.Reason)))

	switch perr.Reason {
	case provider.ReasonUnavailable, provider.ReasonUnknown, provider.ReasonThrottled:
		tracing.RecordError(span, perr)
		c.logger.WarnContext(ctx, "cognito call failed",
			slog.String("operation", op),
			slog.String("reason", string(perr.Reason)),
			slog.String("error", err.Error()),
		)
	default:
		c.logger.DebugContext(ctx, "cognito rejected request",
			slog.String("operation", op),
			slog.String("reason", string(perr.Reason)),
		)
	}
	return perr
}
