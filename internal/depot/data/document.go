package data

import (
	"context"
	"fmt"
	"time"

	"github.com/mhilgert/docdepot/internal/depot/biz"
	"github.com/mhilgert/docdepot/internal/pkg/database"
)

// DocumentRepo 文档仓储实现
type DocumentRepo struct {
	db *database.DB
}

func NewDocumentRepo(db *database.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *biz.Document) error {
	po := &DocumentPO{
		DID:                doc.DID,
		Title:              doc.Title,
		Filename:           doc.Filename,
		UploadDatetime:     doc.UploadDatetime.UTC(),
		ValidUntil:         doc.ValidUntil.UTC(),
		UserUID:            doc.UserUID,
		AllowAttachment:    doc.AllowAttachment,
		AttachmentDeadline: doc.AttachmentDeadline,
	}
	if doc.Checksum != "" {
		po.Checksum = &doc.Checksum
	}
	if err := r.db.WithContext(ctx).Create(po).Error; err != nil {
		if database.IsDuplicateKeyError(err) {
			return biz.ErrDuplicateContent
		}
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (r *DocumentRepo) Get(ctx context.Context, did string) (*biz.Document, error) {
	var po DocumentPO
	err := r.db.WithContext(ctx).Where("did = ?", did).First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, biz.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return documentToDomain(&po), nil
}

func (r *DocumentRepo) List(ctx context.Context) ([]*biz.Document, error) {
	var pos []DocumentPO
	err := r.db.WithContext(ctx).Order("upload_datetime").Find(&pos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return documentsToDomain(pos), nil
}

func (r *DocumentRepo) ListByUser(ctx context.Context, uid string) ([]*biz.Document, error) {
	var pos []DocumentPO
	err := r.db.WithContext(ctx).
		Where("user_uid = ?", uid).
		Order("upload_datetime").
		Find(&pos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list documents for user: %w", err)
	}
	return documentsToDomain(pos), nil
}

func (r *DocumentRepo) ListIDs(ctx context.Context) ([]string, error) {
	var dids []string
	err := r.db.WithContext(ctx).Model(&DocumentPO{}).Pluck("did", &dids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list document ids: %w", err)
	}
	return dids, nil
}

func (r *DocumentRepo) Update(ctx context.Context, doc *biz.Document) error {
	result := r.db.WithContext(ctx).
		Model(&DocumentPO{}).
		Where("did = ?", doc.DID).
		Updates(map[string]interface{}{
			"title":               doc.Title,
			"filename":            doc.Filename,
			"valid_until":         doc.ValidUntil.UTC(),
			"allow_attachment":    doc.AllowAttachment,
			"attachment_deadline": doc.AttachmentDeadline,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return biz.ErrDocumentNotFound
	}
	return nil
}

// UpdateChecksum stores the checksum; an empty value clears the column
// back to NULL so the row is picked up by the next backfill.
func (r *DocumentRepo) UpdateChecksum(ctx context.Context, did, checksum string) error {
	var value interface{}
	if checksum != "" {
		value = checksum
	}
	result := r.db.WithContext(ctx).
		Model(&DocumentPO{}).
		Where("did = ?", did).
		Update("checksum", value)
	if result.Error != nil {
		if database.IsDuplicateKeyError(result.Error) {
			return biz.ErrDuplicateContent
		}
		return fmt.Errorf("failed to update document checksum: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return biz.ErrDocumentNotFound
	}
	return nil
}

// IDsWithoutEventsBefore finds stale documents: uploaded before the
// cutoff and never accessed through any of their tokens.
func (r *DocumentRepo) IDsWithoutEventsBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	var dids []string
	err := r.db.WithContext(ctx).
		Model(&DocumentPO{}).
		Where("upload_datetime < ?", cutoff.UTC()).
		Where("did NOT IN (?)",
			r.db.WithContext(ctx).
				Model(&TokenPO{}).
				Select("tokens.did").
				Joins("JOIN events ON events.tid = tokens.tid"),
		).
		Pluck("did", &dids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale documents: %w", err)
	}
	return dids, nil
}

func documentsToDomain(pos []DocumentPO) []*biz.Document {
	docs := make([]*biz.Document, len(pos))
	for i := range pos {
		docs[i] = documentToDomain(&pos[i])
	}
	return docs
}
