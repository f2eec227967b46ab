package postgres

import (
	stderrors "errors"
	"time"

	"gorm.io/gorm"

	webhookmodel "github.com/sdms/payment-core/internal/core/datamodel/webhook"
	"github.com/sdms/payment-core/internal/webhook"
)

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) webhook.Repository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Create(e *webhookmodel.Event) error {
	return r.db.Create(e).Error
}

func (r *EventRepository) GetAppliedByDedupKey(dedupKey string) (*webhookmodel.Event, error) {
	var e webhookmodel.Event
	err := r.db.
		Where("dedup_key = ? AND processing_status = ?", dedupKey, webhookmodel.StatusApplied).
		First(&e).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EventRepository) UpdateStatus(id int64, status string, rejectReason *string) error {
	updates := map[string]interface{}{
		"processing_status": status,
		"processed_at":      time.Now().UTC(),
		"updated_at":        time.Now().UTC(),
	}
	if rejectReason != nil {
		updates["reject_reason"] = *rejectReason
	}
	return r.db.Model(&webhookmodel.Event{}).Where("id = ?", id).Updates(updates).Error
}
