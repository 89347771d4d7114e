package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mhilgert/docdepot/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWebhook_UnconfiguredReturnsNil(t *testing.T) {
	assert.Nil(t, NewWebhook(nil, logger.NewNop()))
	assert.Nil(t, NewWebhook(&WebhookConfig{}, logger.NewNop()))
}

func TestWebhook_PostsMessage(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer srv.Close()

	w := NewWebhook(&WebhookConfig{URL: srv.URL}, logger.NewNop())
	ok := w.Send(context.Background(), "neuer Anhang")
	assert.True(t, ok)
	assert.Equal(t, "neuer Anhang", received["message"])
}

func TestWebhook_FailureIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	w := NewWebhook(&WebhookConfig{URL: srv.URL}, logger.NewNop())
	assert.False(t, w.Send(context.Background(), "x"))
}

type stubSink struct {
	sent []string
	ok   bool
}

func (s *stubSink) Send(ctx context.Context, message string) bool {
	s.sent = append(s.sent, message)
	return s.ok
}

func TestMulti_FansOut(t *testing.T) {
	a := &stubSink{ok: true}
	b := &stubSink{ok: false}

	ok := Multi{a, b}.Send(context.Background(), "hallo")
	assert.True(t, ok, "one successful sink is enough")
	assert.Equal(t, []string{"hallo"}, a.sent)
	assert.Equal(t, []string{"hallo"}, b.sent)
}
