package notification

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/momo-settlement/internal/core/datamodel/payment"
	"github.com/frahmantamala/momo-settlement/internal/core/events"
)

// Notifier is the boundary the settlement engine informs once a record reaches a
// terminal outcome. How the message reaches the user (SMS, WhatsApp, email) is
// someone else's problem.
type Notifier interface {
	NotifySettled(ctx context.Context, record *payment.Payment)
	NotifyFailed(ctx context.Context, record *payment.Payment, failureReason string)
}

// EventNotifier publishes terminal outcomes on the in-process event bus; delivery
// channels subscribe there.
type EventNotifier struct {
	eventBus *events.EventBus
	logger   *slog.Logger
}

func NewEventNotifier(eventBus *events.EventBus, logger *slog.Logger) *EventNotifier {
	return &EventNotifier{
		eventBus: eventBus,
		logger:   logger,
	}
}

func (n *EventNotifier) NotifySettled(ctx context.Context, record *payment.Payment) {
	event := events.NewPaymentSettledEvent(
		record.ID,
		record.TransactionID,
		string(record.Intent),
		record.AmountPaid.StringFixed(2),
		record.ReceiverPhone,
	)

	if err := n.eventBus.Publish(ctx, event); err != nil {
		n.logger.Error("failed to publish payment settled event",
			"error", err,
			"payment_id", record.ID,
			"transaction_id", record.TransactionID)
		return
	}

	n.logger.Info("payment settled notification published",
		"payment_id", record.ID,
		"transaction_id", record.TransactionID,
		"event_id", event.EventID())
}

func (n *EventNotifier) NotifyFailed(ctx context.Context, record *payment.Payment, failureReason string) {
	event := events.NewPaymentFailedEvent(
		record.ID,
		record.TransactionID,
		string(record.Intent),
		record.AmountPaid.StringFixed(2),
		failureReason,
	)

	if err := n.eventBus.Publish(ctx, event); err != nil {
		n.logger.Error("failed to publish payment failed event",
			"error", err,
			"payment_id", record.ID,
			"transaction_id", record.TransactionID)
		return
	}

	n.logger.Info("payment failure notification published",
		"payment_id", record.ID,
		"transaction_id", record.TransactionID,
		"failure_reason", failureReason,
		"event_id", event.EventID())
}
