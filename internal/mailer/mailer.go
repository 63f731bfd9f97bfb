// Package mailer delivers password reset links out-of-band. The queue
// mailer hands jobs to the message broker for an email worker to pick up;
// the log mailer is the no-broker fallback used in development.
package mailer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/relaychat/backend/internal/mq"
)

// ResetEmailChannel is the broker channel carrying password reset jobs.
const ResetEmailChannel = "password-reset-emails"

// Mailer sends a password reset link to an email address.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, link string) error
}

// ResetEmailJob is the payload published per reset request.
type ResetEmailJob struct {
	Email string `json:"email"`
	Link  string `json:"link"`
}

// QueueMailer publishes reset jobs to the message broker.
type QueueMailer struct {
	queue  *mq.MQ
	logger *slog.Logger
}

func NewQueueMailer(queue *mq.MQ, logger *slog.Logger) *QueueMailer {
	return &QueueMailer{queue: queue, logger: logger}
}

func (m *QueueMailer) SendPasswordReset(ctx context.Context, email, link string) error {
	data, err := json.Marshal(ResetEmailJob{Email: email, Link: link})
	if err != nil {
		return err
	}

	id, err := m.queue.Publish(ctx, ResetEmailChannel, data, map[string]string{"type": "password-reset"})
	if err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "password reset job queued",
		slog.String("message_id", id))
	return nil
}

// LogMailer writes the reset link to the log instead of delivering it.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, email, link string) error {
	m.logger.InfoContext(ctx, "password reset link",
		slog.String("email", email),
		slog.String("link", link))
	return nil
}
