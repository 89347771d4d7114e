package data

import (
	"context"
	"fmt"

	"github.com/mhilgert/docdepot/internal/pkg/database"
	"gorm.io/gorm"
)

// CascadeRepo 级联删除仓储实现
//
// Each subtree delete runs in one transaction so readers never observe
// a token without its document or an attachment row without its owner.
// Stored files are removed by the caller after the transaction commits.
type CascadeRepo struct {
	db *database.DB
}

func NewCascadeRepo(db *database.DB) *CascadeRepo {
	return &CascadeRepo{db: db}
}

func (r *CascadeRepo) DeleteDocumentTree(ctx context.Context, did string) ([]string, bool, error) {
	var (
		aids  []string
		found bool
	)
	err := r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&DocumentPO{}).Where("did = ?", did).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		found = true

		// Events first, then tokens, then attachments, then the document.
		if err := tx.Where("tid IN (?)",
			tx.Session(&gorm.Session{NewDB: true}).
				Model(&TokenPO{}).Select("tid").Where("did = ?", did),
		).Delete(&EventPO{}).Error; err != nil {
			return err
		}
		if err := tx.Where("did = ?", did).Delete(&TokenPO{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&AttachmentPO{}).Where("did = ?", did).Pluck("aid", &aids).Error; err != nil {
			return err
		}
		if err := tx.Where("did = ?", did).Delete(&AttachmentPO{}).Error; err != nil {
			return err
		}
		return tx.Where("did = ?", did).Delete(&DocumentPO{}).Error
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to delete document tree: %w", err)
	}
	return aids, found, nil
}

func (r *CascadeRepo) DeleteTokenTree(ctx context.Context, tokenValue string) (bool, error) {
	var found bool
	err := r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var token TokenPO
		if err := tx.Where("token = ?", tokenValue).First(&token).Error; err != nil {
			if database.IsRecordNotFoundError(err) {
				return nil
			}
			return err
		}
		found = true

		if err := tx.Where("tid = ?", token.TID).Delete(&EventPO{}).Error; err != nil {
			return err
		}
		return tx.Where("tid = ?", token.TID).Delete(&TokenPO{}).Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete token tree: %w", err)
	}
	return found, nil
}

func (r *CascadeRepo) DeleteUserRow(ctx context.Context, uid string) (bool, error) {
	result := r.db.WithContext(ctx).Where("uid = ?", uid).Delete(&UserPO{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete user: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// SweepToken removes one expired token with its events. When that was
// the document's last token, the document's attachment rows and the
// document row are removed in the same transaction.
func (r *CascadeRepo) SweepToken(ctx context.Context, tid int64, did string) (bool, []string, error) {
	var (
		docDeleted bool
		aids       []string
	)
	err := r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := tx.Where("tid = ?", tid).Delete(&EventPO{}).Error; err != nil {
			return err
		}
		if err := tx.Where("tid = ?", tid).Delete(&TokenPO{}).Error; err != nil {
			return err
		}

		var remaining int64
		if err := tx.Model(&TokenPO{}).Where("did = ?", did).Count(&remaining).Error; err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}

		if err := tx.Model(&AttachmentPO{}).Where("did = ?", did).Pluck("aid", &aids).Error; err != nil {
			return err
		}
		if err := tx.Where("did = ?", did).Delete(&AttachmentPO{}).Error; err != nil {
			return err
		}
		result := tx.Where("did = ?", did).Delete(&DocumentPO{})
		if result.Error != nil {
			return result.Error
		}
		docDeleted = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, nil, fmt.Errorf("failed to sweep token: %w", err)
	}
	return docDeleted, aids, nil
}
