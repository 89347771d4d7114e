package biz_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mhilgert/docdepot/internal/depot/biz"
	"github.com/mhilgert/docdepot/internal/depot/data"
	"github.com/mhilgert/docdepot/internal/pkg/database"
	"github.com/mhilgert/docdepot/internal/pkg/logger"
	"github.com/stretchr/testify/require"
)

// env wires real repositories against an in-memory database and
// temp-directory stores.
type env struct {
	db        *database.DB
	users     *data.UserRepo
	docs      *data.DocumentRepo
	tokens    *data.TokenRepo
	events    *data.EventRepo
	atts      *data.AttachmentRepo
	checksums *data.ChecksumIndexRepo
	cascade   *data.CascadeRepo
	redirects *data.RedirectRepo
	docStore  *data.FSStore
	attStore  *data.FSStore

	lifecycle *biz.LifecycleUseCase
	access    *biz.AccessUseCase
	analytics *biz.AnalyticsUseCase
}

func newEnv(t *testing.T) *env {
	t.Helper()

	log := logger.NewNop()
	db, err := database.New(&database.Config{
		Driver:   database.DriverSQLite,
		Path:     filepath.Join(t.TempDir(), "depot.db"),
		LogLevel: "silent",
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.AutoMigrate(data.AllModels()...))

	docStore, err := data.NewFSStore(t.TempDir())
	require.NoError(t, err)
	attStore, err := data.NewFSStore(t.TempDir())
	require.NoError(t, err)

	e := &env{
		db:        db,
		users:     data.NewUserRepo(db),
		docs:      data.NewDocumentRepo(db),
		tokens:    data.NewTokenRepo(db),
		events:    data.NewEventRepo(db),
		atts:      data.NewAttachmentRepo(db),
		checksums: data.NewChecksumIndexRepo(db),
		cascade:   data.NewCascadeRepo(db),
		redirects: data.NewRedirectRepo(db),
		docStore:  docStore,
		attStore:  attStore,
	}
	e.lifecycle = biz.NewLifecycleUseCase(
		e.users, e.docs, e.tokens, e.events, e.atts,
		e.checksums, e.cascade, e.docStore, e.attStore, nil, log,
	)
	e.access = biz.NewAccessUseCase(
		e.users, e.docs, e.tokens, e.events, e.atts,
		e.redirects, e.docStore, e.attStore, log,
	)
	e.analytics = biz.NewAnalyticsUseCase(e.users, e.docs, e.tokens, e.events)
	return e
}

// addDocument deposits a small document and returns it with one token.
func (e *env) addDocument(t *testing.T, uid string, body []byte) (*biz.Document, *biz.Token) {
	t.Helper()
	ctx := context.Background()

	doc, err := e.lifecycle.AddDocument(ctx, biz.AddDocumentInput{
		UID:             uid,
		Title:           "Bescheinigung",
		Filename:        "bescheinigung.pdf",
		Body:            body,
		AllowAttachment: true,
	})
	require.NoError(t, err)

	token, err := e.lifecycle.AddToken(ctx, doc.DID)
	require.NoError(t, err)
	return doc, token
}

func checksumOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// uniqueBody returns a distinct payload per call within a test run.
var bodyCounter struct {
	sync.Mutex
	n int
}

func uniqueBody() []byte {
	bodyCounter.Lock()
	defer bodyCounter.Unlock()
	bodyCounter.n++
	return []byte(time.Now().Format(time.RFC3339Nano) + string(rune('a'+bodyCounter.n%26)) + "-payload")
}
