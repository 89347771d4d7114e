package data

import (
	"context"
	"fmt"
	"time"

	"github.com/mhilgert/docdepot/internal/depot/biz"
	"github.com/mhilgert/docdepot/internal/pkg/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepo 用户仓储实现
type UserRepo struct {
	db *database.DB
}

func NewUserRepo(db *database.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetOrCreate returns the user, inserting it with the default validity
// when missing. The insert races benignly: a concurrent writer's row wins.
func (r *UserRepo) GetOrCreate(ctx context.Context, uid string) (*biz.User, error) {
	po := &UserPO{
		UID:        uid,
		ValidUntil: time.Now().UTC().Add(biz.DefaultValidity),
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(po).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	var found UserPO
	if err := r.db.WithContext(ctx).Where("uid = ?", uid).First(&found).Error; err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return userToDomain(&found), nil
}

func (r *UserRepo) Get(ctx context.Context, uid string) (*biz.User, error) {
	var po UserPO
	err := r.db.WithContext(ctx).Where("uid = ?", uid).First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, biz.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return userToDomain(&po), nil
}

func (r *UserRepo) List(ctx context.Context) ([]*biz.User, error) {
	var pos []UserPO
	err := r.db.WithContext(ctx).Order("uid").Find(&pos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]*biz.User, len(pos))
	for i := range pos {
		users[i] = userToDomain(&pos[i])
	}
	return users, nil
}

func (r *UserRepo) UpdateValidUntil(ctx context.Context, uid string, validUntil time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&UserPO{}).
		Where("uid = ?", uid).
		Update("valid_until", validUntil.UTC())
	if result.Error != nil {
		return false, fmt.Errorf("failed to update user validity: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *UserRepo) SetAllValidUntil(ctx context.Context, validUntil time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&UserPO{}).
		Where("1 = 1").
		Update("valid_until", validUntil.UTC()).Error
	if err != nil {
		return fmt.Errorf("failed to update user validity: %w", err)
	}
	return nil
}

// Rename moves the uid and re-points every owned document in one
// transaction.
func (r *UserRepo) Rename(ctx context.Context, oldUID, newUID string) (bool, error) {
	renamed := false
	err := r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		result := tx.Model(&UserPO{}).Where("uid = ?", oldUID).Update("uid", newUID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		renamed = true
		return tx.Model(&DocumentPO{}).
			Where("user_uid = ?", oldUID).
			Update("user_uid", newUID).Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to rename user: %w", err)
	}
	return renamed, nil
}

func (r *UserRepo) ExpiredUIDs(ctx context.Context, now time.Time) ([]string, error) {
	var uids []string
	err := r.db.WithContext(ctx).
		Model(&UserPO{}).
		Where("valid_until < ?", now.UTC()).
		Pluck("uid", &uids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired users: %w", err)
	}
	return uids, nil
}
