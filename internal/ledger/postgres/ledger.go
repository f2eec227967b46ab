package postgres

import (
	stderrors "errors"

	"gorm.io/gorm"

	"github.com/sdms/payment-core/internal/core/datamodel/payment"
	"github.com/sdms/payment-core/internal/ledger"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) ledger.Repository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(p *payment.Payment) error {
	return r.db.Create(p).Error
}

func (r *PaymentRepository) GetByReference(reference string) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.Where("payment_reference = ?", reference).First(&p).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetLiveByOrderID(orderID int64) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.
		Where("order_id = ? AND status <> ?", orderID, payment.StatusFailed).
		Order("created_at DESC").
		First(&p).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CompareAndSetStatus performs the ledger's guarded transition as one
// conditional UPDATE. Zero rows affected means the guard did not hold and
// the caller lost the race.
func (r *PaymentRepository) CompareAndSetStatus(reference string, allowedFrom []string, updates map[string]interface{}) (bool, error) {
	res := r.db.Model(&payment.Payment{}).
		Where("payment_reference = ? AND status IN ?", reference, allowedFrom).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
