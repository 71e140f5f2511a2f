package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duynhne/onboarding-service/internal/core/domain"
)

// CodeNotification is the payload the notification service turns into an email.
type CodeNotification struct {
	Channel          string `json:"channel"`
	Recipient        string `json:"recipient"`
	Title            string `json:"title"`
	Body             string `json:"body"`
	Code             string `json:"code"`
	ExpiresInMinutes int    `json:"expiresInMinutes"`
}

// NotificationSender implements domain.CodeSender by publishing a
// notification request for the notification service to deliver.
type NotificationSender struct {
	publisher domain.EventPublisher
	now       func() time.Time
}

func NewNotificationSender(publisher domain.EventPublisher) *NotificationSender {
	return &NotificationSender{publisher: publisher, now: time.Now}
}

func (s *NotificationSender) SendCode(ctx context.Context, email, code string, ttl time.Duration) error {
	minutes := int(ttl.Minutes())
	return s.publisher.Publish(ctx, domain.Event{
		ID:         uuid.NewString(),
		Type:       domain.EventVerificationCode,
		Key:        email,
		OccurredAt: s.now(),
		Payload: CodeNotification{
			Channel:          "email",
			Recipient:        email,
			Title:            "Your verification code",
			Body:             fmt.Sprintf("Your verification code is %s. It is valid for %d minutes.", code, minutes),
			Code:             code,
			ExpiresInMinutes: minutes,
		},
	})
}

// LogCodeSender writes codes to the log. Development only.
type LogCodeSender struct {
	logger *zap.Logger
}

func NewLogCodeSender(logger *zap.Logger) *LogCodeSender {
	return &LogCodeSender{logger: logger}
}

func (s *LogCodeSender) SendCode(_ context.Context, email, code string, ttl time.Duration) error {
	s.logger.Info("Verification code (delivery disabled)",
		zap.String("email", email),
		zap.String("code", code),
		zap.Duration("ttl", ttl),
	)
	return nil
}
