package data

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mhilgert/docdepot/internal/depot/biz"
	"github.com/mhilgert/docdepot/internal/pkg/database"
)

// RedirectRepo 跳转仓储实现
type RedirectRepo struct {
	db *database.DB
}

func NewRedirectRepo(db *database.DB) *RedirectRepo {
	return &RedirectRepo{db: db}
}

func (r *RedirectRepo) Create(ctx context.Context, redirect *biz.Redirect) error {
	if (redirect.UID == "") == (redirect.DID == "") {
		return biz.ErrInvalidRedirect
	}
	if redirect.RID == "" {
		redirect.RID = uuid.NewString()
	}

	po := &RedirectPO{
		RID:         redirect.RID,
		UID:         redirect.UID,
		DID:         redirect.DID,
		URL:         redirect.URL,
		Description: redirect.Description,
		ValidUntil:  redirect.ValidUntil.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(po).Error; err != nil {
		return fmt.Errorf("failed to create redirect: %w", err)
	}
	return nil
}

func (r *RedirectRepo) ValidByDocument(ctx context.Context, did string, now time.Time) (*biz.Redirect, error) {
	return r.firstValid(ctx, "did = ?", did, now)
}

func (r *RedirectRepo) ValidByUser(ctx context.Context, uid string, now time.Time) (*biz.Redirect, error) {
	return r.firstValid(ctx, "uid = ?", uid, now)
}

func (r *RedirectRepo) firstValid(ctx context.Context, cond, arg string, now time.Time) (*biz.Redirect, error) {
	var po RedirectPO
	err := r.db.WithContext(ctx).
		Where(cond, arg).
		Where("valid_until >= ?", now.UTC()).
		Order("valid_until").
		First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query redirect: %w", err)
	}
	return redirectToDomain(&po), nil
}

func (r *RedirectRepo) Delete(ctx context.Context, rid string) error {
	result := r.db.WithContext(ctx).Where("rid = ?", rid).Delete(&RedirectPO{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete redirect: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return biz.ErrRedirectNotFound
	}
	return nil
}
