/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/relaychat/backend/config"
	"github.com/relaychat/backend/internal/mailer"
	"github.com/relaychat/backend/internal/mq"
	"github.com/spf13/cobra"
)

// mailworkerCmd represents the mailworker command
var mailworkerCmd = &cobra.Command{
	Use:   "mailworker",
	Short: "Consumes queued password reset emails",
	Long: `Consumes password reset email jobs from the message queue and
delivers them. Usage:

	backend mailworker
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := slog.Default()

		var backend mq.Backend
		var err error
		switch cfg.MQBackend {
		case "rabbitmq":
			backend, err = mq.NewRabbitMQClient(cfg.RabbitMQ)
		case "pubsub":
			backend, err = mq.NewPubSubClient(cmd.Context(), cfg.PubSub)
		default:
			return fmt.Errorf("mailworker requires MQ_BACKEND to be rabbitmq or pubsub, got %q", cfg.MQBackend)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to queue: %v\n", err)
			os.Exit(1)
		}

		queue := mq.New(backend)
		defer func() {
			_ = queue.Close()
		}()

		logger.Info("mail worker started", "channel", mailer.ResetEmailChannel, "backend", cfg.MQBackend)
		return queue.Subscribe(cmd.Context(), mailer.ResetEmailChannel, func(ctx context.Context, msg mq.Message) error {
			var job mailer.ResetEmailJob
			if err := json.Unmarshal(msg.Data, &job); err != nil {
				logger.Error("discarding malformed reset email job", "message_id", msg.ID, "error", err)
				return nil
			}

			// Delivery target for a real SMTP provider; for now the link
			// is logged so operators can forward it manually.
			logger.Info("password reset email",
				"message_id", msg.ID,
				"email", job.Email,
				"link", job.Link,
			)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(mailworkerCmd)
}
