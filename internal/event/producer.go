package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/authgate/pkg/kafka"
	"github.com/utafrali/authgate/pkg/logger"
)

// Kafka topics for user lifecycle events.
var (
	TopicUserSignedUp               = pkgkafka.Topic("user", "signed_up")
	TopicUserConfirmed              = pkgkafka.Topic("user", "confirmed")
	TopicUserPasswordResetRequested = pkgkafka.Topic("user", "password_reset_requested")
	TopicUserPasswordReset          = pkgkafka.Topic("user", "password_reset")
)

// SourceAuthGate identifies events originating from this service.
const SourceAuthGate = "authgate"

// UserSignedUpData is the payload for a user.signed_up event.
type UserSignedUpData struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// UserConfirmedData is the payload for a user.confirmed event.
type UserConfirmedData struct {
	Email string `json:"email"`
	Group string `json:"group"`
}

// UserPasswordResetData is the payload for the password reset events.
type UserPasswordResetData struct {
	Email string `json:"email"`
}

// Publisher emits user lifecycle events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	UserSignedUp(ctx context.Context, userID, email string) error
	UserConfirmed(ctx context.Context, email, group string) error
	PasswordResetRequested(ctx context.Context, email string) error
	PasswordReset(ctx context.Context, email string) error
}

// Sender writes an event envelope to a topic. *pkgkafka.Producer satisfies it.
type Sender interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes user events to Kafka.
type Producer struct {
	sender Sender
	logger *slog.Logger
}

var _ Publisher = (*Producer)(nil)

// NewProducer creates a new event producer.
func NewProducer(sender Sender, logger *slog.Logger) *Producer {
	return &Producer{
		sender: sender,
		logger: logger,
	}
}

// UserSignedUp publishes a user.signed_up event keyed by the provider user id.
func (p *Producer) UserSignedUp(ctx context.Context, userID, email string) error {
	return p.publish(ctx, TopicUserSignedUp, userID, UserSignedUpData{UserID: userID, Email: email})
}

// UserConfirmed publishes a user.confirmed event.
func (p *Producer) UserConfirmed(ctx context.Context, email, group string) error {
	return p.publish(ctx, TopicUserConfirmed, email, UserConfirmedData{Email: email, Group: group})
}

// PasswordResetRequested publishes a user.password_reset_requested event.
func (p *Producer) PasswordResetRequested(ctx context.Context, email string) error {
	return p.publish(ctx, TopicUserPasswordResetRequested, email, UserPasswordResetData{Email: email})
}

// PasswordReset publishes a user.password_reset event.
func (p *Producer) PasswordReset(ctx context.Context, email string) error {
	return p.publish(ctx, TopicUserPasswordReset, email, UserPasswordResetData{Email: email})
}

func (p *Producer) publish(ctx context.Context, topic, key string, data any) error {
	event, err := pkgkafka.NewEvent(topic, key, SourceAuthGate, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.sender.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("event_id", event.EventID),
	)
	return nil
}

// Nop discards every event. It is used when Kafka is disabled.
type Nop struct{}

var _ Publisher = Nop{}

func (Nop) UserSignedUp(context.Context, string, string) error   { return nil }
func (Nop) UserConfirmed(context.Context, string, string) error  { return nil }
func (Nop) PasswordResetRequested(context.Context, string) error { return nil }
func (Nop) PasswordReset(context.Context, string) error          { return nil }
