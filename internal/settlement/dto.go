package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/momo-settlement/internal"
	"github.com/frahmantamala/momo-settlement/internal/core/common/validation"
	"github.com/frahmantamala/momo-settlement/internal/core/datamodel/payment"
)

// NetworkBank marks payments routed through a bank rather than a mobile wallet;
// those require a bank code.
const NetworkBank = "BNK"

// MinAirtimeAmount is the smallest airtime top-up the gateway accepts.
var MinAirtimeAmount = decimal.NewFromFloat(1.00)

// InitiateRequest is the inbound payload for starting a payment.
type InitiateRequest struct {
	Intent           string          `json:"intent"`
	Amount           decimal.Decimal `json:"amount"`
	SenderPhone      string          `json:"sender_phone"`
	ReceiverPhone    string          `json:"receiver_phone"`
	SenderName       string          `json:"sender_name"`
	ReceiverName     string          `json:"receiver_name"`
	SenderProvider   string          `json:"sender_provider"`
	ReceiverProvider string          `json:"receiver_provider"`
	Network          string          `json:"network"`
	BankCode         string          `json:"bank_code"`
}

func (r *InitiateRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("intent", r.Intent).Required().OneOf(
		string(payment.IntentSendMoney),
		string(payment.IntentBuyAirtime),
		string(payment.IntentPayBill),
		string(payment.IntentGetLoan),
	)
	validator.Field("amount", r.Amount).Required().PositiveAmount(errors.ErrCodeInvalidAmount)
	validator.Field("sender_phone", r.SenderPhone).Required().PhoneNumber()
	validator.Field("receiver_phone", r.ReceiverPhone).Required().PhoneNumber()
	validator.Field("sender_provider", r.SenderProvider).Required()
	validator.Field("network", r.Network).Required()

	if r.Intent == string(payment.IntentBuyAirtime) {
		validator.Field("amount", r.Amount).MinAmount(MinAirtimeAmount, errors.ErrCodeAmountTooLow)
	}

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}

	if r.Network == NetworkBank && r.BankCode == "" {
		return errors.NewValidationFieldError("bank_code",
			"bank_code is required for bank network payments", errors.ErrCodeMissingBankCode)
	}

	return nil
}

// CallbackRequest is the parsed gateway webhook payload.
type CallbackRequest struct {
	TransRef    string `json:"trans_ref"`
	TransStatus string `json:"trans_status"`
	TransID     string `json:"trans_id"`
	Message     string `json:"message"`
}

func (r *CallbackRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("trans_ref", r.TransRef).Required()
	validator.Field("trans_status", r.TransStatus).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// PaymentView is the outbound representation of a payment record.
type PaymentView struct {
	ID                int64      `json:"id"`
	TransactionID     string     `json:"transaction_id"`
	Intent            string     `json:"intent"`
	Status            string     `json:"status"`
	Amount            string     `json:"amount"`
	SenderPhone       string     `json:"sender_phone"`
	ReceiverPhone     string     `json:"receiver_phone"`
	ReceiverName      string     `json:"receiver_name,omitempty"`
	OriginalPaymentID *int64     `json:"original_payment_id,omitempty"`
	FailureReason     *string    `json:"failure_reason,omitempty"`
	DatePaid          time.Time  `json:"date_paid"`
	UpdatedOn         time.Time  `json:"updated_on"`
}

func ToView(p *payment.Payment) *PaymentView {
	return &PaymentView{
		ID:                p.ID,
		TransactionID:     p.TransactionID,
		Intent:            string(p.Intent),
		Status:            string(p.Status),
		Amount:            p.AmountPaid.StringFixed(2),
		SenderPhone:       p.SenderPhone,
		ReceiverPhone:     p.ReceiverPhone,
		ReceiverName:      p.ReceiverName,
		OriginalPaymentID: p.OriginalPaymentID,
		FailureReason:     p.FailureReason,
		DatePaid:          p.DatePaid,
		UpdatedOn:         p.UpdatedOn,
	}
}

// SummaryView aggregates settled and failed volume over a date range.
type SummaryView struct {
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	SettledAmount  string    `json:"settled_amount"`
	SettledCount   int64     `json:"settled_count"`
	FailedCount    int64     `json:"failed_count"`
	PendingCount   int64     `json:"pending_count"`
	ReversedAmount string    `json:"reversed_amount"`
}
