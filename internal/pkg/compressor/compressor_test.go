package compressor

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mhilgert/docdepot/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_UnconfiguredReturnsNil(t *testing.T) {
	assert.Nil(t, New(nil, logger.NewNop()))
	assert.Nil(t, New(&Config{}, logger.NewNop()))
}

func TestResizeImage_RoutesAndReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/resize", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		in, err := io.ReadAll(file)
		require.NoError(t, err)

		w.Write(append([]byte("small:"), in...))
	}))
	defer srv.Close()

	client := New(&Config{Endpoint: srv.URL}, logger.NewNop())
	out, err := client.ResizeImage(context.Background(), []byte("big"), "a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("small:big"), out)
}

func TestCompressPDF_RoutesToPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pdf", r.URL.Path)
		w.Write([]byte("pdf-out"))
	}))
	defer srv.Close()

	client := New(&Config{Endpoint: srv.URL}, logger.NewNop())
	out, err := client.CompressPDF(context.Background(), []byte("pdf-in"))
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf-out"), out)
}

func TestPost_ErrorsPropagate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := New(&Config{Endpoint: srv.URL}, logger.NewNop())
	_, err := client.ResizeImage(context.Background(), []byte("x"), "a.png")
	assert.Error(t, err)
}

func TestPost_EmptyBodyIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 200 with nothing in it.
	}))
	defer srv.Close()

	client := New(&Config{Endpoint: srv.URL}, logger.NewNop())
	_, err := client.CompressPDF(context.Background(), []byte("x"))
	assert.Error(t, err)
}
