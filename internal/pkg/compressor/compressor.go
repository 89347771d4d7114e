// Package compressor talks to the external image/PDF compression service.
// Unlike the classifier, a compression failure rejects the upload rather
// than storing the original.
package compressor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/mhilgert/docdepot/internal/pkg/logger"
)

// Compressor normalizes attachment bodies before they are persisted.
type Compressor interface {
	// ResizeImage auto-rotates and resizes an image.
	ResizeImage(ctx context.Context, data []byte, filename string) ([]byte, error)
	// CompressPDF paginates and recompresses a PDF.
	CompressPDF(ctx context.Context, data []byte) ([]byte, error)
}

// Config for the HTTP compressor client.
type Config struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Client is the HTTP implementation of Compressor.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *logger.Logger
}

// New creates a compressor client. A nil config or empty endpoint returns
// nil, which callers interpret as "no compressor configured".
func New(cfg *Config, log *logger.Logger) *Client {
	if cfg == nil || cfg.Endpoint == "" {
		return nil
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		endpoint: cfg.Endpoint,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: log,
	}
}

// ResizeImage posts the image to /resize and returns the processed bytes.
func (c *Client) ResizeImage(ctx context.Context, data []byte, filename string) ([]byte, error) {
	return c.post(ctx, c.endpoint+"/resize", data, filename)
}

// CompressPDF posts the PDF to /pdf and returns the processed bytes.
func (c *Client) CompressPDF(ctx context.Context, data []byte) ([]byte, error) {
	return c.post(ctx, c.endpoint+"/pdf", data, "document.pdf")
}

func (c *Client) post(ctx context.Context, url string, data []byte, filename string) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to build compress request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("compressor unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("compressor returned status %d", resp.StatusCode)
	}

	processed, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read compressor response: %w", err)
	}

	if len(processed) == 0 {
		return nil, fmt.Errorf("compressor returned an empty body")
	}

	return processed, nil
}
