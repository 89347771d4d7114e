package data

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mhilgert/docdepot/internal/depot/biz"
	"github.com/mhilgert/docdepot/internal/pkg/database"
	"github.com/mhilgert/docdepot/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(&database.Config{
		Driver:   database.DriverSQLite,
		Path:     filepath.Join(t.TempDir(), "depot.db"),
		LogLevel: "silent",
	}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.AutoMigrate(AllModels()...))
	return db
}

func seedDocument(t *testing.T, db *database.DB, uid string) *biz.Document {
	t.Helper()
	ctx := context.Background()

	users := NewUserRepo(db)
	_, err := users.GetOrCreate(ctx, uid)
	require.NoError(t, err)

	doc := &biz.Document{
		DID:             uuid.NewString(),
		Title:           "Nachweis",
		Filename:        "nachweis.pdf",
		Checksum:        uuid.NewString(),
		UploadDatetime:  time.Now().UTC(),
		ValidUntil:      time.Now().UTC().Add(24 * time.Hour),
		UserUID:         uid,
		AllowAttachment: true,
	}
	require.NoError(t, NewDocumentRepo(db).Create(ctx, doc))
	return doc
}

func TestUserRepo_GetOrCreateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	users := NewUserRepo(db)

	first, err := users.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	second, err := users.GetOrCreate(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, first.UID, second.UID)
	assert.True(t, first.ValidUntil.Equal(second.ValidUntil),
		"a second call must not refresh the validity")

	all, err := users.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTokenRepo_CreateRequiresDocument(t *testing.T) {
	db := newTestDB(t)
	tokens := NewTokenRepo(db)

	_, err := tokens.Create(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, biz.ErrDocumentNotFound)
}

func TestEventRepo_AppendRequiresToken(t *testing.T) {
	db := newTestDB(t)
	events := NewEventRepo(db)

	err := events.Append(context.Background(), "missing", biz.EventKindDownload)
	assert.ErrorIs(t, err, biz.ErrTokenNotFound)
}

func TestEventPO_ColumnNamedEvent(t *testing.T) {
	db := newTestDB(t)

	assert.True(t, db.Migrator().HasColumn(&EventPO{}, "event"))
	assert.False(t, db.Migrator().HasColumn(&EventPO{}, "kind"))
}

func TestChecksumIndex_SpansBothTables(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	index := NewChecksumIndexRepo(db)

	doc := seedDocument(t, db, "u1")

	exists, err := index.Exists(ctx, doc.Checksum)
	require.NoError(t, err)
	assert.True(t, exists)

	att := &biz.Attachment{
		AID:      uuid.NewString(),
		DID:      doc.DID,
		Name:     "antwort.png",
		Checksum: uuid.NewString(),
		Uploaded: time.Now().UTC(),
	}
	require.NoError(t, NewAttachmentRepo(db).Create(ctx, att))

	exists, err = index.Exists(ctx, att.Checksum)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = index.Exists(ctx, "0000000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.False(t, exists)

	// Empty checksums never match each other.
	exists, err = index.Exists(ctx, "")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAttachmentRepo_UniqueChecksum(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	atts := NewAttachmentRepo(db)

	doc := seedDocument(t, db, "u1")
	checksum := uuid.NewString()

	first := &biz.Attachment{
		AID: uuid.NewString(), DID: doc.DID,
		Name: "a.png", Checksum: checksum, Uploaded: time.Now().UTC(),
	}
	require.NoError(t, atts.Create(ctx, first))

	dup := &biz.Attachment{
		AID: uuid.NewString(), DID: doc.DID,
		Name: "b.png", Checksum: checksum, Uploaded: time.Now().UTC(),
	}
	assert.ErrorIs(t, atts.Create(ctx, dup), biz.ErrDuplicateContent)
}

func TestDocumentRepo_UniqueChecksum(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	docs := NewDocumentRepo(db)

	first := seedDocument(t, db, "u1")

	dup := &biz.Document{
		DID:            uuid.NewString(),
		Title:          "Kopie",
		Filename:       "kopie.pdf",
		Checksum:       first.Checksum,
		UploadDatetime: time.Now().UTC(),
		ValidUntil:     time.Now().UTC().Add(24 * time.Hour),
		UserUID:        "u1",
	}
	assert.ErrorIs(t, docs.Create(ctx, dup), biz.ErrDuplicateContent)

	// Rows without a checksum do not collide with each other.
	for i := 0; i < 2; i++ {
		pending := &biz.Document{
			DID:            uuid.NewString(),
			Title:          "Offen",
			Filename:       "offen.pdf",
			UploadDatetime: time.Now().UTC(),
			ValidUntil:     time.Now().UTC().Add(24 * time.Hour),
			UserUID:        "u1",
		}
		require.NoError(t, docs.Create(ctx, pending))

		// Writing an already stored checksum fails the same way.
		assert.ErrorIs(t, docs.UpdateChecksum(ctx, pending.DID, first.Checksum),
			biz.ErrDuplicateContent)
	}
}

func TestCascadeRepo_SweepTokenKeepsDocumentWithTokens(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tokens := NewTokenRepo(db)
	cascade := NewCascadeRepo(db)

	doc := seedDocument(t, db, "u1")
	first, err := tokens.Create(ctx, doc.DID)
	require.NoError(t, err)
	second, err := tokens.Create(ctx, doc.DID)
	require.NoError(t, err)

	docDeleted, _, err := cascade.SweepToken(ctx, first.TID, doc.DID)
	require.NoError(t, err)
	assert.False(t, docDeleted)

	docDeleted, _, err = cascade.SweepToken(ctx, second.TID, doc.DID)
	require.NoError(t, err)
	assert.True(t, docDeleted)

	_, err = NewDocumentRepo(db).Get(ctx, doc.DID)
	assert.ErrorIs(t, err, biz.ErrDocumentNotFound)
}

func TestFSStore_RejectsTraversalKeys(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Put(ctx, "../escape", []byte("x"))
	assert.Error(t, err)
	_, err = store.Get(ctx, "a/b")
	assert.Error(t, err)
	_, err = store.Put(ctx, "", []byte("x"))
	assert.Error(t, err)
}

func TestFSStore_RoundTrip(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	sum, err := store.Put(ctx, "k1", []byte("hello"))
	require.NoError(t, err)

	recomputed, err := store.Checksum(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, sum, recomputed)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, keys)

	require.NoError(t, store.Delete(ctx, "k1"))
	// Deleting a missing key stays silent.
	require.NoError(t, store.Delete(ctx, "k1"))

	exists, err := store.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, exists)
}
