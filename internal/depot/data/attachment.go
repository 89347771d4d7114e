package data

import (
	"context"
	"fmt"

	"github.com/mhilgert/docdepot/internal/depot/biz"
	"github.com/mhilgert/docdepot/internal/pkg/database"
	"gorm.io/gorm"
)

// AttachmentRepo 附件仓储实现
type AttachmentRepo struct {
	db *database.DB
}

func NewAttachmentRepo(db *database.DB) *AttachmentRepo {
	return &AttachmentRepo{db: db}
}

// Create verifies the owning document inside the insert transaction. The
// unique index on checksum backstops the duplicate pre-check.
func (r *AttachmentRepo) Create(ctx context.Context, att *biz.Attachment) error {
	po := &AttachmentPO{
		AID:      att.AID,
		DID:      att.DID,
		Name:     att.Name,
		Checksum: att.Checksum,
		Uploaded: att.Uploaded.UTC(),
	}
	err := r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&DocumentPO{}).Where("did = ?", att.DID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return biz.ErrDocumentNotFound
		}
		return tx.Create(po).Error
	})
	if err != nil {
		if err == biz.ErrDocumentNotFound {
			return err
		}
		if database.IsDuplicateKeyError(err) {
			return biz.ErrDuplicateContent
		}
		return fmt.Errorf("failed to create attachment: %w", err)
	}
	return nil
}

func (r *AttachmentRepo) Get(ctx context.Context, aid string) (*biz.Attachment, error) {
	var po AttachmentPO
	err := r.db.WithContext(ctx).Where("aid = ?", aid).First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, biz.ErrAttachmentNotFound
		}
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return attachmentToDomain(&po), nil
}

func (r *AttachmentRepo) ListByDocument(ctx context.Context, did string) ([]*biz.Attachment, error) {
	var pos []AttachmentPO
	err := r.db.WithContext(ctx).Where("did = ?", did).Order("uploaded").Find(&pos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}

	atts := make([]*biz.Attachment, len(pos))
	for i := range pos {
		atts[i] = attachmentToDomain(&pos[i])
	}
	return atts, nil
}

func (r *AttachmentRepo) ListIDs(ctx context.Context) ([]string, error) {
	var aids []string
	err := r.db.WithContext(ctx).Model(&AttachmentPO{}).Pluck("aid", &aids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attachment ids: %w", err)
	}
	return aids, nil
}

func (r *AttachmentRepo) Delete(ctx context.Context, aid string) error {
	result := r.db.WithContext(ctx).Where("aid = ?", aid).Delete(&AttachmentPO{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete attachment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return biz.ErrAttachmentNotFound
	}
	return nil
}

// ChecksumIndexRepo answers dedup queries across documents and attachments.
type ChecksumIndexRepo struct {
	db *database.DB
}

func NewChecksumIndexRepo(db *database.DB) *ChecksumIndexRepo {
	return &ChecksumIndexRepo{db: db}
}

// Exists checks both tables; an empty checksum never matches, rows
// awaiting backfill carry NULL.
func (r *ChecksumIndexRepo) Exists(ctx context.Context, checksum string) (bool, error) {
	if checksum == "" {
		return false, nil
	}

	var count int64
	err := r.db.WithContext(ctx).
		Model(&DocumentPO{}).
		Where("checksum = ?", checksum).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to query document checksums: %w", err)
	}
	if count > 0 {
		return true, nil
	}

	err = r.db.WithContext(ctx).
		Model(&AttachmentPO{}).
		Where("checksum = ?", checksum).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to query attachment checksums: %w", err)
	}
	return count > 0, nil
}

func (r *ChecksumIndexRepo) DocumentsMissingChecksum(ctx context.Context) ([]string, error) {
	var dids []string
	err := r.db.WithContext(ctx).
		Model(&DocumentPO{}).
		Where("checksum IS NULL").
		Pluck("did", &dids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list documents without checksum: %w", err)
	}
	return dids, nil
}
