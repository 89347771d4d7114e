package biz_test

import (
	"context"
	"testing"
	"time"

	"github.com/mhilgert/docdepot/internal/depot/biz"
	"github.com/mhilgert/docdepot/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddDocument_StoresChecksum(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	body := uniqueBody()
	doc, _ := e.addDocument(t, "u1", body)

	assert.Equal(t, checksumOf(body), doc.Checksum)

	stored, err := e.docs.Get(ctx, doc.DID)
	require.NoError(t, err)
	assert.Equal(t, doc.Checksum, stored.Checksum)

	exists, err := e.docStore.Exists(ctx, doc.DID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestAddDocument_ChecksumMismatchRollsBack(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	body := uniqueBody()
	_, err := e.lifecycle.AddDocument(ctx, biz.AddDocumentInput{
		UID:              "u1",
		Title:            "Bescheinigung",
		Filename:         "a.pdf",
		Body:             body,
		DeclaredChecksum: "deadbeef",
	})
	assert.ErrorIs(t, err, biz.ErrChecksumMismatch)

	// The uploader's row and file must be gone again.
	docs, err := e.docs.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)

	keys, err := e.docStore.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	// The owner survives; it may own other documents.
	_, err = e.users.Get(ctx, "u1")
	assert.NoError(t, err)
}

// blindChecksumIndex never reports a match, standing in for a reader
// that races the duplicate pre-check.
type blindChecksumIndex struct{}

func (blindChecksumIndex) Exists(ctx context.Context, checksum string) (bool, error) {
	return false, nil
}

func (blindChecksumIndex) DocumentsMissingChecksum(ctx context.Context) ([]string, error) {
	return nil, nil
}

// recordingLocker wraps the no-op locker and keeps the keys it saw.
type recordingLocker struct {
	keys []string
}

func (l *recordingLocker) WithLock(ctx context.Context, key string, fn func() error) error {
	l.keys = append(l.keys, key)
	return fn()
}

func TestAddDocument_ChecksumIndexBackstopsMissedDuplicate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	body := uniqueBody()
	e.addDocument(t, "u1", body)

	locks := &recordingLocker{}
	blind := biz.NewLifecycleUseCase(
		e.users, e.docs, e.tokens, e.events, e.atts,
		blindChecksumIndex{}, e.cascade, e.docStore, e.attStore, locks,
		logger.NewNop(),
	)

	// The pre-check misses, so the unique index must reject the write
	// and the second deposit must roll back cleanly.
	_, err := blind.AddDocument(ctx, biz.AddDocumentInput{
		UID:      "u2",
		Title:    "Kopie",
		Filename: "b.pdf",
		Body:     uniqueBody(),
	})
	require.NoError(t, err)

	_, err = blind.AddDocument(ctx, biz.AddDocumentInput{
		UID:      "u2",
		Title:    "Kopie",
		Filename: "b.pdf",
		Body:     body,
	})
	assert.ErrorIs(t, err, biz.ErrDuplicateContent)
	assert.Contains(t, locks.keys, "document:checksum:"+checksumOf(body))

	docs, err := e.docs.ListByUser(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, docs, 1, "the rejected deposit must leave no row behind")

	keys, err := e.docStore.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 2, "the rejected deposit must leave no file behind")
}

func TestAddDocument_RejectsDuplicateBody(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	body := uniqueBody()
	e.addDocument(t, "u1", body)

	_, err := e.lifecycle.AddDocument(ctx, biz.AddDocumentInput{
		UID:      "u2",
		Title:    "Kopie",
		Filename: "b.pdf",
		Body:     body,
	})
	assert.ErrorIs(t, err, biz.ErrDuplicateContent)
}

func TestDeleteDocument_Cascades(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	doc, token := e.addDocument(t, "u1", uniqueBody())
	require.NoError(t, e.lifecycle.AddEvent(ctx, token.Token, ""))

	attBody := uniqueBody()
	att := &biz.Attachment{
		AID:      "a0000000-0000-0000-0000-000000000001",
		DID:      doc.DID,
		Name:     "antwort.png",
		Checksum: checksumOf(attBody),
		Uploaded: time.Now().UTC(),
	}
	require.NoError(t, e.atts.Create(ctx, att))
	_, err := e.attStore.Put(ctx, att.AID, attBody)
	require.NoError(t, err)

	require.NoError(t, e.lifecycle.DeleteDocument(ctx, doc.DID))

	_, err = e.tokens.Get(ctx, token.Token)
	assert.ErrorIs(t, err, biz.ErrTokenNotFound)
	_, err = e.atts.Get(ctx, att.AID)
	assert.ErrorIs(t, err, biz.ErrAttachmentNotFound)

	docKeys, err := e.docStore.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, docKeys)
	attKeys, err := e.attStore.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, attKeys)

	// Deleting again is a no-op.
	assert.NoError(t, e.lifecycle.DeleteDocument(ctx, doc.DID))
}

func TestDeleteUser_RemovesOwnedDocuments(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	doc1, _ := e.addDocument(t, "u1", uniqueBody())
	doc2, _ := e.addDocument(t, "u1", uniqueBody())
	other, _ := e.addDocument(t, "u2", uniqueBody())

	require.NoError(t, e.lifecycle.DeleteUser(ctx, "u1"))

	_, err := e.docs.Get(ctx, doc1.DID)
	assert.ErrorIs(t, err, biz.ErrDocumentNotFound)
	_, err = e.docs.Get(ctx, doc2.DID)
	assert.ErrorIs(t, err, biz.ErrDocumentNotFound)
	_, err = e.users.Get(ctx, "u1")
	assert.ErrorIs(t, err, biz.ErrUserNotFound)

	// The other user is untouched.
	_, err = e.docs.Get(ctx, other.DID)
	assert.NoError(t, err)
}

func TestDeleteExpiredItems_KeepsDocumentsWithLiveTokens(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	doc, expiredToken := e.addDocument(t, "u1", uniqueBody())
	liveToken, err := e.lifecycle.AddToken(ctx, doc.DID)
	require.NoError(t, err)

	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, e.lifecycle.UpdateTokenValidUntil(ctx, expiredToken.Token, past))

	require.NoError(t, e.lifecycle.DeleteExpiredItems(ctx))

	_, err = e.tokens.Get(ctx, expiredToken.Token)
	assert.ErrorIs(t, err, biz.ErrTokenNotFound)
	_, err = e.tokens.Get(ctx, liveToken.Token)
	assert.NoError(t, err)
	_, err = e.docs.Get(ctx, doc.DID)
	assert.NoError(t, err)

	// Expiring the last token takes the document and its file with it.
	require.NoError(t, e.lifecycle.UpdateTokenValidUntil(ctx, liveToken.Token, past))
	require.NoError(t, e.lifecycle.DeleteExpiredItems(ctx))

	_, err = e.docs.Get(ctx, doc.DID)
	assert.ErrorIs(t, err, biz.ErrDocumentNotFound)
	keys, err := e.docStore.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestDeleteExpiredItems_SweepsExpiredUsers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	doc, _ := e.addDocument(t, "u1", uniqueBody())
	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, e.lifecycle.UpdateUserValidUntil(ctx, "u1", past))

	require.NoError(t, e.lifecycle.DeleteExpiredItems(ctx))

	_, err := e.users.Get(ctx, "u1")
	assert.ErrorIs(t, err, biz.ErrUserNotFound)
	_, err = e.docs.Get(ctx, doc.DID)
	assert.ErrorIs(t, err, biz.ErrDocumentNotFound)
}

func TestDeleteDocumentsWithoutEventsAfterDays(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	stale, _ := e.addDocument(t, "u1", uniqueBody())
	viewed, viewedToken := e.addDocument(t, "u1", uniqueBody())
	require.NoError(t, e.lifecycle.AddEvent(ctx, viewedToken.Token, ""))

	// Nothing is old enough yet.
	deleted, err := e.lifecycle.DeleteDocumentsWithoutEventsAfterDays(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	deleted, err = e.lifecycle.DeleteDocumentsWithoutEventsAfterDays(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = e.docs.Get(ctx, stale.DID)
	assert.ErrorIs(t, err, biz.ErrDocumentNotFound)
	_, err = e.docs.Get(ctx, viewed.DID)
	assert.NoError(t, err)
}

func TestRenameUsers_RepointsDocuments(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	doc, _ := e.addDocument(t, "old-name", uniqueBody())

	require.NoError(t, e.lifecycle.RenameUsers(ctx, map[string]string{"old-name": "new-name"}))

	_, err := e.users.Get(ctx, "old-name")
	assert.ErrorIs(t, err, biz.ErrUserNotFound)
	_, err = e.users.Get(ctx, "new-name")
	assert.NoError(t, err)

	moved, err := e.docs.Get(ctx, doc.DID)
	require.NoError(t, err)
	assert.Equal(t, "new-name", moved.UserUID)
}

func TestSweepOrphans_Reconciles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	kept, _ := e.addDocument(t, "u1", uniqueBody())

	// A file with no row.
	_, err := e.attStore.Put(ctx, "f0000000-0000-0000-0000-000000000001", uniqueBody())
	require.NoError(t, err)

	// A row with no file.
	ghost, _ := e.addDocument(t, "u1", uniqueBody())
	require.NoError(t, e.docStore.Delete(ctx, ghost.DID))

	// A row predating the checksum column.
	require.NoError(t, e.docs.UpdateChecksum(ctx, kept.DID, ""))

	report, err := e.lifecycle.SweepOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DocumentRowsDeleted)
	assert.Equal(t, 1, report.AttachmentFilesRemoved)
	assert.Equal(t, 1, report.ChecksumsBackfilled)

	_, err = e.docs.Get(ctx, ghost.DID)
	assert.ErrorIs(t, err, biz.ErrDocumentNotFound)

	refilled, err := e.docs.Get(ctx, kept.DID)
	require.NoError(t, err)
	assert.NotEmpty(t, refilled.Checksum)

	attKeys, err := e.attStore.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, attKeys)
}
