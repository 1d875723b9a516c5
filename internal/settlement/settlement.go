package settlement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/momo-settlement/internal/core/datamodel/payment"
	"github.com/frahmantamala/momo-settlement/internal/gateway"
)

// Leg identifies which half of a settlement a status event refers to.
type Leg string

const (
	LegCollect  Leg = "collect"
	LegDisburse Leg = "disburse"
)

// RepositoryAPI is the persisted ledger of payment attempts. Records are only
// ever inserted and updated; the table is the permanent audit trail.
type RepositoryAPI interface {
	Create(p *payment.Payment) error
	Update(p *payment.Payment) error
	GetByID(id int64) (*payment.Payment, error)
	// GetByAnyTransactionID matches ref against transaction_id and all four leg
	// id columns; a callback reference may arrive under any of them.
	GetByAnyTransactionID(ref string) (*payment.Payment, error)
	GetByOriginalPaymentID(originalID int64) (*payment.Payment, error)
	GetInFlight() ([]*payment.Payment, error)
	SumAmountByStatus(status payment.Status, from, to time.Time) (decimal.Decimal, error)
	CountByStatus(status payment.Status, from, to time.Time) (int64, error)
	// SumReversedAmount totals successfully refunded volume (settled reversal
	// records) in the range.
	SumReversedAmount(from, to time.Time) (decimal.Decimal, error)
}

// GatewayAPI is the outbound surface of the settlement gateway the engine
// depends on.
type GatewayAPI interface {
	Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.Response, error)
	CheckStatus(ctx context.Context, externalTransactionID string) (gateway.LegStatus, error)
	CheckBalance(ctx context.Context) (*gateway.Balances, error)
	AccountInquiry(ctx context.Context, customerNumber, networkCode string) (string, error)
	BillerInquiry(ctx context.Context, accountNumber, billerCode string) (string, error)
}

// Monitor starts and stops background reconciliation for a record. Job identity
// is the record id; watching an already-watched record replaces its job.
type Monitor interface {
	Watch(recordID int64)
	Cancel(recordID int64)
}

// TransitionApplier is what the reconciler drives on every poll tick. Both
// methods apply the same transition rules as the callback path.
type TransitionApplier interface {
	// Reconcile polls the in-flight leg of one record and applies the resulting
	// transition. terminal reports whether polling can stop.
	Reconcile(ctx context.Context, recordID int64) (terminal bool, err error)
	// ForceTimeout fails whichever leg is still in flight after the attempt
	// budget is exhausted, exactly as an explicit FAILED poll result would.
	ForceTimeout(ctx context.Context, recordID int64) error
}
