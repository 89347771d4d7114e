package data

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mhilgert/docdepot/internal/depot/biz"
	"github.com/mhilgert/docdepot/internal/pkg/database"
	"gorm.io/gorm"
)

// TokenRepo 令牌仓储实现
type TokenRepo struct {
	db *database.DB
}

func NewTokenRepo(db *database.DB) *TokenRepo {
	return &TokenRepo{db: db}
}

// Create issues a fresh token for the document. The existence check and
// the insert share one transaction so the token never outlives a
// concurrently deleted document.
func (r *TokenRepo) Create(ctx context.Context, did string) (*biz.Token, error) {
	po := &TokenPO{
		Token:      uuid.NewString(),
		DID:        did,
		ValidUntil: time.Now().UTC().Add(biz.DefaultValidity),
		Created:    time.Now().UTC(),
	}
	err := r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&DocumentPO{}).Where("did = ?", did).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return biz.ErrDocumentNotFound
		}
		return tx.Create(po).Error
	})
	if err != nil {
		if err == biz.ErrDocumentNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create token: %w", err)
	}
	return tokenToDomain(po), nil
}

func (r *TokenRepo) Get(ctx context.Context, tokenValue string) (*biz.Token, error) {
	var po TokenPO
	err := r.db.WithContext(ctx).Where("token = ?", tokenValue).First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, biz.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return tokenToDomain(&po), nil
}

func (r *TokenRepo) ListByDocument(ctx context.Context, did string) ([]*biz.Token, error) {
	var pos []TokenPO
	err := r.db.WithContext(ctx).Where("did = ?", did).Order("tid").Find(&pos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}

	tokens := make([]*biz.Token, len(pos))
	for i := range pos {
		tokens[i] = tokenToDomain(&pos[i])
	}
	return tokens, nil
}

func (r *TokenRepo) UpdateValidUntil(ctx context.Context, tokenValue string, validUntil time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&TokenPO{}).
		Where("token = ?", tokenValue).
		Update("valid_until", validUntil.UTC())
	if result.Error != nil {
		return false, fmt.Errorf("failed to update token validity: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *TokenRepo) Expired(ctx context.Context, now time.Time) ([]*biz.Token, error) {
	var pos []TokenPO
	err := r.db.WithContext(ctx).Where("valid_until < ?", now.UTC()).Find(&pos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired tokens: %w", err)
	}

	tokens := make([]*biz.Token, len(pos))
	for i := range pos {
		tokens[i] = tokenToDomain(&pos[i])
	}
	return tokens, nil
}
