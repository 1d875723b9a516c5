package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentSettled    = "payment.settled"
	EventTypePaymentFailed     = "payment.failed"
	EventTypeReversalInitiated = "payment.reversal_initiated"
)

type PaymentSettledEvent struct {
	BaseEvent
	PaymentID     int64  `json:"payment_id"`
	TransactionID string `json:"transaction_id"`
	Intent        string `json:"intent"`
	Amount        string `json:"amount"`
	ReceiverPhone string `json:"receiver_phone"`
}

func NewPaymentSettledEvent(paymentID int64, transactionID, intent, amount, receiverPhone string) *PaymentSettledEvent {
	return &PaymentSettledEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentSettled,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":     paymentID,
				"transaction_id": transactionID,
				"intent":         intent,
				"amount":         amount,
				"receiver_phone": receiverPhone,
			},
		},
		PaymentID:     paymentID,
		TransactionID: transactionID,
		Intent:        intent,
		Amount:        amount,
		ReceiverPhone: receiverPhone,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	PaymentID     int64  `json:"payment_id"`
	TransactionID string `json:"transaction_id"`
	Intent        string `json:"intent"`
	Amount        string `json:"amount"`
	FailureReason string `json:"failure_reason"`
}

func NewPaymentFailedEvent(paymentID int64, transactionID, intent, amount, failureReason string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":     paymentID,
				"transaction_id": transactionID,
				"intent":         intent,
				"amount":         amount,
				"failure_reason": failureReason,
			},
		},
		PaymentID:     paymentID,
		TransactionID: transactionID,
		Intent:        intent,
		Amount:        amount,
		FailureReason: failureReason,
	}
}

type ReversalInitiatedEvent struct {
	BaseEvent
	ReversalPaymentID int64  `json:"reversal_payment_id"`
	OriginalPaymentID int64  `json:"original_payment_id"`
	TransactionID     string `json:"transaction_id"`
	Amount            string `json:"amount"`
}

func NewReversalInitiatedEvent(reversalPaymentID, originalPaymentID int64, transactionID, amount string) *ReversalInitiatedEvent {
	return &ReversalInitiatedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeReversalInitiated,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"reversal_payment_id": reversalPaymentID,
				"original_payment_id": originalPaymentID,
				"transaction_id":      transactionID,
				"amount":              amount,
			},
		},
		ReversalPaymentID: reversalPaymentID,
		OriginalPaymentID: originalPaymentID,
		TransactionID:     transactionID,
		Amount:            amount,
	}
}
