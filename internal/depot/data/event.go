package data

import (
	"context"
	"fmt"
	"time"

	"github.com/mhilgert/docdepot/internal/depot/biz"
	"github.com/mhilgert/docdepot/internal/pkg/database"
	"gorm.io/gorm"
)

// EventRepo 事件仓储实现
type EventRepo struct {
	db *database.DB
}

func NewEventRepo(db *database.DB) *EventRepo {
	return &EventRepo{db: db}
}

// Append resolves the token and inserts the event in one transaction.
func (r *EventRepo) Append(ctx context.Context, tokenValue, kind string) error {
	err := r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var token TokenPO
		if err := tx.Where("token = ?", tokenValue).First(&token).Error; err != nil {
			if database.IsRecordNotFoundError(err) {
				return biz.ErrTokenNotFound
			}
			return err
		}
		return tx.Create(&EventPO{
			TID:  token.TID,
			Date: time.Now().UTC(),
			Kind: kind,
		}).Error
	})
	if err != nil {
		if err == biz.ErrTokenNotFound {
			return err
		}
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *EventRepo) CountByToken(ctx context.Context, tid int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&EventPO{}).Where("tid = ?", tid).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

func (r *EventRepo) FirstDateByToken(ctx context.Context, tid int64) (*time.Time, error) {
	var po EventPO
	err := r.db.WithContext(ctx).
		Where("tid = ?", tid).
		Order("date").
		First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get first event: %w", err)
	}
	date := po.Date.UTC()
	return &date, nil
}

func (r *EventRepo) EarliestForDocument(ctx context.Context, did string) (*time.Time, error) {
	var po EventPO
	err := r.db.WithContext(ctx).
		Joins("JOIN tokens ON tokens.tid = events.tid").
		Where("tokens.did = ?", did).
		Order("events.date").
		First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get earliest event: %w", err)
	}
	date := po.Date.UTC()
	return &date, nil
}

func (r *EventRepo) List(ctx context.Context) ([]*biz.Event, error) {
	var pos []EventPO
	err := r.db.WithContext(ctx).Order("eid").Find(&pos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]*biz.Event, len(pos))
	for i := range pos {
		events[i] = eventToDomain(&pos[i])
	}
	return events, nil
}
