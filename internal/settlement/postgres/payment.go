package postgres

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	errors "github.com/frahmantamala/momo-settlement/internal"
	"github.com/frahmantamala/momo-settlement/internal/core/datamodel/payment"
	"github.com/frahmantamala/momo-settlement/internal/settlement"
)

// PaymentRepository implements the settlement.RepositoryAPI interface using GORM
type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) settlement.RepositoryAPI {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(p *payment.Payment) error {
	return r.db.Create(p).Error
}

func (r *PaymentRepository) Update(p *payment.Payment) error {
	return r.db.Save(p).Error
}

func (r *PaymentRepository) GetByID(id int64) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.Where("id = ?", id).First(&p).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetByAnyTransactionID matches the reference against the record handle and all
// four leg id columns; callbacks and status lookups may carry any of them.
func (r *PaymentRepository) GetByAnyTransactionID(ref string) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.
		Where("transaction_id = ?", ref).
		Or("ctm_transaction_id = ?", ref).
		Or("mtc_transaction_id = ?", ref).
		Or("atp_transaction_id = ?", ref).
		Or("blp_transaction_id = ?", ref).
		First(&p).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetByOriginalPaymentID returns the reversal record for a payment, or nil when
// none exists.
func (r *PaymentRepository) GetByOriginalPaymentID(originalID int64) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.Where("original_payment_id = ?", originalID).First(&p).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// GetInFlight returns every record that still needs reconciliation, oldest
// first.
func (r *PaymentRepository) GetInFlight() ([]*payment.Payment, error) {
	var records []*payment.Payment
	err := r.db.
		Where("status IN ?", []payment.Status{
			payment.StatusPending,
			payment.StatusCTMSuccess,
			payment.StatusMTCProcessing,
			payment.StatusATPProcessing,
			payment.StatusBLPProcessing,
		}).
		Order("date_paid ASC").
		Find(&records).Error
	return records, err
}

func (r *PaymentRepository) SumAmountByStatus(status payment.Status, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.Model(&payment.Payment{}).
		Select("COALESCE(SUM(amount_paid), 0)").
		Where("status = ? AND date_paid >= ? AND date_paid < ?", status, from, to).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (r *PaymentRepository) CountByStatus(status payment.Status, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&payment.Payment{}).
		Where("status = ? AND date_paid >= ? AND date_paid < ?", status, from, to).
		Count(&count).Error
	return count, err
}

// SumReversedAmount totals refunds that actually settled in the range.
func (r *PaymentRepository) SumReversedAmount(from, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.Model(&payment.Payment{}).
		Select("COALESCE(SUM(amount_paid), 0)").
		Where("original_payment_id IS NOT NULL AND status = ? AND date_paid >= ? AND date_paid < ?",
			payment.StatusSuccess, from, to).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}
