package notification

import (
	"context"
	"log/slog"
)

const (
	// KindTopUp indicates purchased value was credited to a user wallet.
	KindTopUp = "wallet_topup"
	// KindBonus indicates granted value was credited to a user wallet.
	KindBonus = "wallet_bonus"
	// KindSpend indicates value was debited from a user wallet.
	KindSpend = "wallet_spend"
)

// Message describes a notification payload.
type Message struct {
	Kind          string
	Destination   string
	Body          string
	TransactionID string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.InfoContext(ctx, "notification",
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("transaction_id", message.TransactionID),
		slog.String("body", message.Body),
	)
	return nil
}
