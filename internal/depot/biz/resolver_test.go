package biz_test

import (
	"context"
	"testing"
	"time"

	"github.com/mhilgert/docdepot/internal/depot/biz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDocumentFromToken_EffectiveValidity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	doc, token := e.addDocument(t, "u1", uniqueBody())

	// The user expires first, so their validity wins.
	userLimit := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	require.NoError(t, e.lifecycle.UpdateUserValidUntil(ctx, "u1", userLimit))

	view, err := e.access.GetDocumentFromToken(ctx, token.Token)
	require.NoError(t, err)
	assert.Equal(t, doc.DID, view.Document.DID)
	assert.True(t, view.EffectiveValidUntil.Equal(userLimit),
		"effective validity should be the minimum of token, document and user")

	// Tightening the token below the user limit moves the minimum.
	tokenLimit := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, e.lifecycle.UpdateTokenValidUntil(ctx, token.Token, tokenLimit))

	view, err = e.access.GetDocumentFromToken(ctx, token.Token)
	require.NoError(t, err)
	assert.True(t, view.EffectiveValidUntil.Equal(tokenLimit))
	assert.False(t, view.Expired(time.Now().UTC()))
}

func TestGetDocumentFromToken_UnknownToken(t *testing.T) {
	e := newEnv(t)

	_, err := e.access.GetDocumentFromToken(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, biz.ErrTokenNotFound)
}

func TestGetDocumentBody_AppendsDownloadEvent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	body := uniqueBody()
	_, token := e.addDocument(t, "u1", body)

	view, err := e.access.GetDocumentFromToken(ctx, token.Token)
	require.NoError(t, err)

	data, err := e.access.GetDocumentBody(ctx, view)
	require.NoError(t, err)
	assert.Equal(t, body, data)

	count, err := e.access.GetDownloadEventCount(ctx, token.Token)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	first, err := e.access.GetFirstEventDatetime(ctx, token.Token)
	require.NoError(t, err)
	require.NotNil(t, first)
}

func TestGetRedirect_DocumentScopePrecedes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	doc, token := e.addDocument(t, "u1", uniqueBody())
	future := time.Now().UTC().Add(time.Hour)

	require.NoError(t, e.redirects.Create(ctx, &biz.Redirect{
		UID:        "u1",
		URL:        "https://example.org/user",
		ValidUntil: future,
	}))

	// Only the user-scoped redirect exists.
	redirect, err := e.access.GetRedirect(ctx, token.Token)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/user", redirect.URL)

	// A document-scoped redirect takes over.
	require.NoError(t, e.redirects.Create(ctx, &biz.Redirect{
		DID:        doc.DID,
		URL:        "https://example.org/document",
		ValidUntil: future,
	}))

	redirect, err = e.access.GetRedirect(ctx, token.Token)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/document", redirect.URL)
}

func TestGetRedirect_IgnoresExpired(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, token := e.addDocument(t, "u1", uniqueBody())

	require.NoError(t, e.redirects.Create(ctx, &biz.Redirect{
		UID:        "u1",
		URL:        "https://example.org/old",
		ValidUntil: time.Now().UTC().Add(-time.Hour),
	}))

	_, err := e.access.GetRedirect(ctx, token.Token)
	assert.ErrorIs(t, err, biz.ErrRedirectNotFound)
}

func TestRedirect_RequiresSingleScope(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	err := e.redirects.Create(ctx, &biz.Redirect{
		UID:        "u1",
		DID:        "d0000000-0000-0000-0000-000000000001",
		URL:        "https://example.org",
		ValidUntil: time.Now().UTC().Add(time.Hour),
	})
	assert.ErrorIs(t, err, biz.ErrInvalidRedirect)

	err = e.redirects.Create(ctx, &biz.Redirect{
		URL:        "https://example.org",
		ValidUntil: time.Now().UTC().Add(time.Hour),
	})
	assert.ErrorIs(t, err, biz.ErrInvalidRedirect)
}

func TestAreTokensValid(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, token1 := e.addDocument(t, "u1", uniqueBody())
	_, token2 := e.addDocument(t, "u1", uniqueBody())

	valid, err := e.access.AreTokensValid(ctx, []string{token1.Token, token2.Token})
	require.NoError(t, err)
	assert.True(t, valid)

	// One expired token spoils the batch.
	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, e.lifecycle.UpdateTokenValidUntil(ctx, token2.Token, past))

	valid, err = e.access.AreTokensValid(ctx, []string{token1.Token, token2.Token})
	require.NoError(t, err)
	assert.False(t, valid)

	// Unknown tokens are invalid, not an error.
	valid, err = e.access.AreTokensValid(ctx, []string{"missing"})
	require.NoError(t, err)
	assert.False(t, valid)
}
