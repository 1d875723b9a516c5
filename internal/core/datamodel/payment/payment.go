package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// Intent is the logical operation a payment record settles.
type Intent string

const (
	IntentSendMoney  Intent = "send_money"
	IntentBuyAirtime Intent = "buy_airtime"
	IntentPayBill    Intent = "pay_bill"
	IntentGetLoan    Intent = "get_loan"
	IntentReversal   Intent = "reversal"
)

// Status values for a payment record. PENDING through the *_PROCESSING states are
// in flight; everything reported by IsTerminal is final for this record.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusCTMSuccess    Status = "CTM_SUCCESS"
	StatusCTMFailed     Status = "CTM_FAILED"
	StatusMTCProcessing Status = "MTC_PROCESSING"
	StatusATPProcessing Status = "ATP_PROCESSING"
	StatusBLPProcessing Status = "BLP_PROCESSING"
	StatusMTCFailed     Status = "MTC_FAILED"
	StatusATPFailed     Status = "ATP_FAILED"
	StatusBLPFailed     Status = "BLP_FAILED"
	StatusSuccess       Status = "SUCCESS"
	StatusFailed        Status = "FAILED"
)

// Payment is one logical payment intent driven through the collect-then-disburse
// settlement flow. TransactionID doubles as the collect-leg external id and the
// record's primary external handle. Exactly one of the MTC/ATP/BLP ids is set once
// the disburse leg starts, depending on the intent. Records are never deleted.
type Payment struct {
	ID                int64   `gorm:"primaryKey"`
	TransactionID     string  `gorm:"column:transaction_id;not null;uniqueIndex"`
	CTMTransactionID  *string `gorm:"column:ctm_transaction_id;index"`
	MTCTransactionID  *string `gorm:"column:mtc_transaction_id;index"`
	ATPTransactionID  *string `gorm:"column:atp_transaction_id;index"`
	BLPTransactionID  *string `gorm:"column:blp_transaction_id;index"`
	OriginalPaymentID *int64  `gorm:"column:original_payment_id;index"`

	SenderPhone      string `gorm:"column:sender_phone;not null"`
	ReceiverPhone    string `gorm:"column:receiver_phone;not null"`
	SenderName       string `gorm:"column:sender_name"`
	ReceiverName     string `gorm:"column:receiver_name"`
	SenderProvider   string `gorm:"column:sender_provider"`
	ReceiverProvider string `gorm:"column:receiver_provider"`
	BankCode         string `gorm:"column:bank_code"`
	Network          string `gorm:"column:network"`

	AmountPaid    decimal.Decimal `gorm:"column:amount_paid;type:numeric(12,2);not null"`
	Intent        Intent          `gorm:"column:intent;not null"`
	Status        Status          `gorm:"column:status;not null;default:PENDING"`
	FailureReason *string         `gorm:"column:failure_reason"`

	DatePaid  time.Time `gorm:"column:date_paid;autoCreateTime"`
	UpdatedOn time.Time `gorm:"column:updated_on;autoUpdateTime"`
}

func (Payment) TableName() string {
	return "payments"
}

// IsTerminal reports whether no further transition may be applied to this record.
func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case StatusSuccess, StatusCTMFailed, StatusMTCFailed, StatusATPFailed, StatusBLPFailed, StatusFailed:
		return true
	}
	return false
}

// IsReversal reports whether this record refunds another payment. Reversal records
// never spawn reversals of their own.
func (p *Payment) IsReversal() bool {
	return p.OriginalPaymentID != nil
}

// InFlightTransactionID returns the external id of the leg currently awaiting a
// terminal outcome, or empty when no leg is in flight for the current status.
func (p *Payment) InFlightTransactionID() string {
	switch p.Status {
	case StatusPending:
		if p.CTMTransactionID != nil && *p.CTMTransactionID != "" {
			return *p.CTMTransactionID
		}
		return p.TransactionID
	case StatusMTCProcessing:
		if p.MTCTransactionID != nil {
			return *p.MTCTransactionID
		}
	case StatusATPProcessing:
		if p.ATPTransactionID != nil {
			return *p.ATPTransactionID
		}
	case StatusBLPProcessing:
		if p.BLPTransactionID != nil {
			return *p.BLPTransactionID
		}
	}
	return ""
}

// DisburseTransactionID returns whichever second-leg id is populated, if any.
func (p *Payment) DisburseTransactionID() *string {
	switch {
	case p.MTCTransactionID != nil:
		return p.MTCTransactionID
	case p.ATPTransactionID != nil:
		return p.ATPTransactionID
	case p.BLPTransactionID != nil:
		return p.BLPTransactionID
	}
	return nil
}

// ProcessingStatus maps the intent to its disburse-leg in-flight status.
func (i Intent) ProcessingStatus() Status {
	switch i {
	case IntentBuyAirtime:
		return StatusATPProcessing
	case IntentPayBill:
		return StatusBLPProcessing
	default:
		return StatusMTCProcessing
	}
}

// FailedStatus maps the intent to its disburse-leg failure status.
func (i Intent) FailedStatus() Status {
	switch i {
	case IntentBuyAirtime:
		return StatusATPFailed
	case IntentPayBill:
		return StatusBLPFailed
	default:
		return StatusMTCFailed
	}
}

// NewReversal builds the refund record for a failed disbursement: parties swapped,
// same amount, back-reference to the original. The caller assigns the fresh
// transaction id and runs it through the normal initiate flow.
func NewReversal(original *Payment) *Payment {
	return &Payment{
		OriginalPaymentID: &original.ID,
		SenderPhone:       original.ReceiverPhone,
		ReceiverPhone:     original.SenderPhone,
		SenderName:        original.ReceiverName,
		ReceiverName:      original.SenderName,
		SenderProvider:    original.ReceiverProvider,
		ReceiverProvider:  original.SenderProvider,
		BankCode:          original.BankCode,
		Network:           original.Network,
		AmountPaid:        original.AmountPaid,
		Intent:            IntentReversal,
		Status:            StatusPending,
	}
}
