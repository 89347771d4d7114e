package biz

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mhilgert/docdepot/internal/pkg/locker"
	"github.com/mhilgert/docdepot/internal/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LifecycleUseCase owns creation and the explicit delete cascades. Row
// cascades run in the data layer transactions; stored files are removed
// here, after the rows are gone, so a crash leaves orphan files for
// SweepOrphans rather than dangling rows.
type LifecycleUseCase struct {
	users     UserRepo
	docs      DocumentRepo
	tokens    TokenRepo
	events    EventRepo
	atts      AttachmentRepo
	checksums ChecksumIndex
	cascade   CascadeRepo
	docStore  ContentStore
	attStore  ContentStore
	locks     locker.Locker
	log       *logger.Logger
}

func NewLifecycleUseCase(
	users UserRepo,
	docs DocumentRepo,
	tokens TokenRepo,
	events EventRepo,
	atts AttachmentRepo,
	checksums ChecksumIndex,
	cascade CascadeRepo,
	docStore ContentStore,
	attStore ContentStore,
	locks locker.Locker,
	log *logger.Logger,
) *LifecycleUseCase {
	if locks == nil {
		locks = locker.Noop{}
	}
	return &LifecycleUseCase{
		users:     users,
		docs:      docs,
		tokens:    tokens,
		events:    events,
		atts:      atts,
		checksums: checksums,
		cascade:   cascade,
		docStore:  docStore,
		attStore:  attStore,
		locks:     locks,
		log:       log,
	}
}

// AddUser creates the user if missing and returns it either way.
func (uc *LifecycleUseCase) AddUser(ctx context.Context, uid string) (*User, error) {
	if uid == "" {
		return nil, fmt.Errorf("uid is required")
	}
	return uc.users.GetOrCreate(ctx, uid)
}

// AddDocumentInput carries everything needed to deposit a document.
type AddDocumentInput struct {
	UID              string
	Title            string
	Filename         string
	Body             []byte
	DeclaredChecksum string // optional lower-case hex SHA-256 supplied by the uploader
	ValidUntil       *time.Time
	AllowAttachment  bool
}

// AddDocument deposits a document: get-or-create the owner, insert the
// row, write the body, then verify the stored bytes against the declared
// checksum. A mismatch rolls the row and the file back.
func (uc *LifecycleUseCase) AddDocument(ctx context.Context, in AddDocumentInput) (*Document, error) {
	if in.UID == "" {
		return nil, fmt.Errorf("uid is required")
	}
	if len(in.Body) == 0 {
		return nil, fmt.Errorf("document body is required")
	}

	user, err := uc.users.GetOrCreate(ctx, in.UID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	validUntil := now.Add(DefaultValidity)
	if in.ValidUntil != nil {
		validUntil = in.ValidUntil.UTC()
	}

	doc := &Document{
		DID:             uuid.NewString(),
		Title:           in.Title,
		Filename:        in.Filename,
		UploadDatetime:  now,
		ValidUntil:      validUntil,
		UserUID:         user.UID,
		AllowAttachment: in.AllowAttachment,
	}
	if err := uc.docs.Create(ctx, doc); err != nil {
		return nil, err
	}

	stored, err := uc.docStore.Put(ctx, doc.DID, in.Body)
	if err != nil {
		if _, _, derr := uc.cascade.DeleteDocumentTree(ctx, doc.DID); derr != nil {
			uc.log.Error("rollback after store failure", zap.String("did", doc.DID), zap.Error(derr))
		}
		return nil, err
	}

	// Verify from the stored bytes, not the request buffer.
	computed, err := uc.docStore.Checksum(ctx, doc.DID)
	if err == nil && computed != stored {
		err = fmt.Errorf("stored bytes differ from written bytes")
	}
	if err == nil && in.DeclaredChecksum != "" && in.DeclaredChecksum != computed {
		err = ErrChecksumMismatch
	}
	if err != nil {
		uc.rollbackDocument(ctx, doc.DID)
		return nil, err
	}

	// Duplicate check and checksum write under one lock; the unique
	// index on documents.checksum backstops the unlocked case.
	err = uc.locks.WithLock(ctx, "document:checksum:"+computed, func() error {
		exists, err := uc.checksums.Exists(ctx, computed)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateContent
		}
		return uc.docs.UpdateChecksum(ctx, doc.DID, computed)
	})
	if err != nil {
		uc.rollbackDocument(ctx, doc.DID)
		return nil, err
	}
	doc.Checksum = computed

	uc.log.Info("document added",
		zap.String("did", doc.DID),
		zap.String("uid", user.UID),
	)
	return doc, nil
}

func (uc *LifecycleUseCase) rollbackDocument(ctx context.Context, did string) {
	if _, _, err := uc.cascade.DeleteDocumentTree(ctx, did); err != nil {
		uc.log.Error("document rollback failed", zap.String("did", did), zap.Error(err))
		return
	}
	if err := uc.docStore.Delete(ctx, did); err != nil {
		uc.log.Error("document file rollback failed", zap.String("did", did), zap.Error(err))
	}
}

// AddToken issues a fresh capability token for the document.
func (uc *LifecycleUseCase) AddToken(ctx context.Context, did string) (*Token, error) {
	return uc.tokens.Create(ctx, did)
}

// AddEvent records an access against the token.
func (uc *LifecycleUseCase) AddEvent(ctx context.Context, tokenValue, kind string) error {
	if kind == "" {
		kind = EventKindDownload
	}
	return uc.events.Append(ctx, tokenValue, kind)
}

// DeleteDocument cascades events, tokens, attachments and files. A
// missing document is a no-op.
func (uc *LifecycleUseCase) DeleteDocument(ctx context.Context, did string) error {
	aids, found, err := uc.cascade.DeleteDocumentTree(ctx, did)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	for _, aid := range aids {
		if err := uc.attStore.Delete(ctx, aid); err != nil {
			uc.log.Warn("attachment file removal failed", zap.String("aid", aid), zap.Error(err))
		}
	}
	if err := uc.docStore.Delete(ctx, did); err != nil {
		uc.log.Warn("document file removal failed", zap.String("did", did), zap.Error(err))
	}

	uc.log.Info("document deleted", zap.String("did", did), zap.Int("attachments", len(aids)))
	return nil
}

// DeleteToken removes the token and its events. Idempotent.
func (uc *LifecycleUseCase) DeleteToken(ctx context.Context, tokenValue string) error {
	_, err := uc.cascade.DeleteTokenTree(ctx, tokenValue)
	return err
}

// DeleteUser cascades through every owned document, then the user row.
func (uc *LifecycleUseCase) DeleteUser(ctx context.Context, uid string) error {
	docs, err := uc.docs.ListByUser(ctx, uid)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := uc.DeleteDocument(ctx, doc.DID); err != nil {
			return err
		}
	}

	found, err := uc.cascade.DeleteUserRow(ctx, uid)
	if err != nil {
		return err
	}
	if found {
		uc.log.Info("user deleted", zap.String("uid", uid), zap.Int("documents", len(docs)))
	}
	return nil
}

// DeleteExpiredItems sweeps expired tokens, then documents left without
// tokens, then expired users. Document valid_until is advisory: a
// document with a live token survives.
func (uc *LifecycleUseCase) DeleteExpiredItems(ctx context.Context) error {
	now := time.Now().UTC()

	expired, err := uc.tokens.Expired(ctx, now)
	if err != nil {
		return err
	}
	var docsDeleted int
	for _, token := range expired {
		docDeleted, aids, err := uc.cascade.SweepToken(ctx, token.TID, token.DID)
		if err != nil {
			return err
		}
		if !docDeleted {
			continue
		}
		docsDeleted++
		for _, aid := range aids {
			if err := uc.attStore.Delete(ctx, aid); err != nil {
				uc.log.Warn("attachment file removal failed", zap.String("aid", aid), zap.Error(err))
			}
		}
		if err := uc.docStore.Delete(ctx, token.DID); err != nil {
			uc.log.Warn("document file removal failed", zap.String("did", token.DID), zap.Error(err))
		}
	}

	expiredUsers, err := uc.users.ExpiredUIDs(ctx, now)
	if err != nil {
		return err
	}
	for _, uid := range expiredUsers {
		if err := uc.DeleteUser(ctx, uid); err != nil {
			return err
		}
	}

	if len(expired) > 0 || len(expiredUsers) > 0 {
		uc.log.Info("expired items swept",
			zap.Int("tokens", len(expired)),
			zap.Int("documents", docsDeleted),
			zap.Int("users", len(expiredUsers)),
		)
	}
	return nil
}

// DeleteDocumentsWithoutEventsAfterDays deletes documents that were never
// accessed through any token within n days of upload.
func (uc *LifecycleUseCase) DeleteDocumentsWithoutEventsAfterDays(ctx context.Context, days int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	dids, err := uc.docs.IDsWithoutEventsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, did := range dids {
		if err := uc.DeleteDocument(ctx, did); err != nil {
			return 0, err
		}
	}
	return len(dids), nil
}

// RenameUsers re-keys users and their documents, one transaction per pair.
func (uc *LifecycleUseCase) RenameUsers(ctx context.Context, mapping map[string]string) error {
	for oldUID, newUID := range mapping {
		renamed, err := uc.users.Rename(ctx, oldUID, newUID)
		if err != nil {
			return err
		}
		if !renamed {
			uc.log.Warn("rename skipped, user not found", zap.String("uid", oldUID))
		}
	}
	return nil
}

func (uc *LifecycleUseCase) UpdateTokenValidUntil(ctx context.Context, tokenValue string, validUntil time.Time) error {
	updated, err := uc.tokens.UpdateValidUntil(ctx, tokenValue, validUntil)
	if err != nil {
		return err
	}
	if !updated {
		return ErrTokenNotFound
	}
	return nil
}

func (uc *LifecycleUseCase) UpdateUserValidUntil(ctx context.Context, uid string, validUntil time.Time) error {
	updated, err := uc.users.UpdateValidUntil(ctx, uid, validUntil)
	if err != nil {
		return err
	}
	if !updated {
		return ErrUserNotFound
	}
	return nil
}

func (uc *LifecycleUseCase) SetAllUsersValidUntil(ctx context.Context, validUntil time.Time) error {
	return uc.users.SetAllValidUntil(ctx, validUntil)
}

// OrphanReport summarises one SweepOrphans run.
type OrphanReport struct {
	DocumentRowsDeleted    int
	DocumentFilesRemoved   int
	AttachmentRowsDeleted  int
	AttachmentFilesRemoved int
	ChecksumsBackfilled    int
}

// SweepOrphans reconciles rows against stored files in both directions
// and backfills missing document checksums from the stored bytes. The
// scans run concurrently; mutations are applied afterwards.
func (uc *LifecycleUseCase) SweepOrphans(ctx context.Context) (*OrphanReport, error) {
	var (
		docIDs, docKeys []string
		attIDs, attKeys []string
		missing         []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		docIDs, err = uc.docs.ListIDs(gctx)
		return err
	})
	g.Go(func() (err error) {
		docKeys, err = uc.docStore.Keys(gctx)
		return err
	})
	g.Go(func() (err error) {
		attIDs, err = uc.atts.ListIDs(gctx)
		return err
	})
	g.Go(func() (err error) {
		attKeys, err = uc.attStore.Keys(gctx)
		return err
	})
	g.Go(func() (err error) {
		missing, err = uc.checksums.DocumentsMissingChecksum(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &OrphanReport{}
	docKeySet := toSet(docKeys)
	attKeySet := toSet(attKeys)
	docIDSet := toSet(docIDs)
	attIDSet := toSet(attIDs)

	// Rows whose file vanished.
	for _, did := range docIDs {
		if docKeySet[did] {
			continue
		}
		if err := uc.DeleteDocument(ctx, did); err != nil {
			return report, err
		}
		report.DocumentRowsDeleted++
	}
	for _, aid := range attIDs {
		if attKeySet[aid] {
			continue
		}
		if err := uc.atts.Delete(ctx, aid); err != nil && err != ErrAttachmentNotFound {
			return report, err
		}
		report.AttachmentRowsDeleted++
	}

	// Files whose row vanished.
	for _, key := range docKeys {
		if docIDSet[key] {
			continue
		}
		if err := uc.docStore.Delete(ctx, key); err != nil {
			return report, err
		}
		report.DocumentFilesRemoved++
	}
	for _, key := range attKeys {
		if attIDSet[key] {
			continue
		}
		if err := uc.attStore.Delete(ctx, key); err != nil {
			return report, err
		}
		report.AttachmentFilesRemoved++
	}

	// Lazy checksum backfill for rows predating the checksum column.
	for _, did := range missing {
		if !docKeySet[did] {
			continue
		}
		sum, err := uc.docStore.Checksum(ctx, did)
		if err != nil {
			uc.log.Warn("checksum backfill failed", zap.String("did", did), zap.Error(err))
			continue
		}
		if err := uc.docs.UpdateChecksum(ctx, did, sum); err != nil {
			if err == ErrDocumentNotFound {
				continue
			}
			if err == ErrDuplicateContent {
				uc.log.Warn("checksum backfill found duplicate content", zap.String("did", did))
				continue
			}
			return report, err
		}
		report.ChecksumsBackfilled++
	}

	uc.log.Info("orphan sweep finished",
		zap.Int("document_rows_deleted", report.DocumentRowsDeleted),
		zap.Int("document_files_removed", report.DocumentFilesRemoved),
		zap.Int("attachment_rows_deleted", report.AttachmentRowsDeleted),
		zap.Int("attachment_files_removed", report.AttachmentFilesRemoved),
		zap.Int("checksums_backfilled", report.ChecksumsBackfilled),
	)
	return report, nil
}

func toSet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}
