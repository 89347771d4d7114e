// Package classifier talks to the external image-classification service.
// The service runs blur detection and an acceptance model over an uploaded
// image; when it is unreachable the quality gate is skipped, never failed.
package classifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/mhilgert/docdepot/internal/pkg/logger"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// ErrUnavailable signals that the classifier cannot be reached. Callers
// treat it as "skip the quality gate", not as a check failure.
var ErrUnavailable = errors.New("classifier unavailable")

// Result is the classifier verdict for one image.
type Result struct {
	Blur bool // blur detection passed
	CNN  bool // acceptance model cleared the threshold
	Pass bool // overall verdict
}

// Classifier scores an image. Implementations must return ErrUnavailable
// for transport-level failures.
type Classifier interface {
	Classify(ctx context.Context, data []byte, filename string) (*Result, error)
}

// Config for the HTTP classifier client.
type Config struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Client is the HTTP implementation of Classifier.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *logger.Logger
}

// New creates a classifier client. A nil config or empty endpoint returns
// nil, which callers interpret as "no classifier configured".
func New(cfg *Config, log *logger.Logger) *Client {
	if cfg == nil || cfg.Endpoint == "" {
		return nil
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
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

// Classify posts the image and parses {"blur": bool, "cnn": bool, "pass": bool}.
func (c *Client) Classify(ctx context.Context, data []byte, filename string) (*Result, error) {
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

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to build classify request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("classifier unreachable", zap.Error(err))
		return nil, ErrUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("classifier returned non-200",
			zap.Int("status", resp.StatusCode),
		)
		return nil, ErrUnavailable
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrUnavailable
	}

	if !gjson.ValidBytes(payload) {
		c.logger.Warn("classifier returned invalid JSON")
		return nil, ErrUnavailable
	}

	parsed := gjson.ParseBytes(payload)
	result := &Result{
		Blur: parsed.Get("blur").Bool(),
		CNN:  parsed.Get("cnn").Bool(),
		Pass: parsed.Get("pass").Bool(),
	}

	return result, nil
}
