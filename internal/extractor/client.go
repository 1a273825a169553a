// Package extractor is the HTTP client of the external feature extraction service.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/visualmatch/internal/colors"
	"github.com/kozaktomas/visualmatch/internal/constants"
	"github.com/kozaktomas/visualmatch/internal/logger"
	"github.com/kozaktomas/visualmatch/internal/metrics"
	"github.com/kozaktomas/visualmatch/internal/palette"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultExtractorURL = "http://localhost:8000"

// ImageRef points at the photo to extract features from. Data wins over URL.
type ImageRef struct {
	URL  string
	Data []byte
}

// Mode names the transport used for the reference: "bytes" or "url".
func (r ImageRef) Mode() string {
	if len(r.Data) > 0 {
		return "bytes"
	}
	return "url"
}

// Features is the extraction result for one photo.
type Features struct {
	Vector []float32
	Colors colors.Sample
}

// Client talks to the extraction service. It must be initialized with Init before
// Extract is used. Extract makes exactly one request and never retries.
type Client struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	logger  *zap.Logger
	ready   atomic.Bool
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit paces outgoing extraction requests. Zero or negative disables pacing.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger.OrNop(l)
	}
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultExtractorURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
		timeout: constants.DefaultExtractorTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init probes the service root and marks the client ready on a 2xx answer.
func (c *Client) Init(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+"/", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return c.transportError(ctx, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: health probe returned status %d", ErrExtractorUnavailable, resp.StatusCode)
	}

	c.ready.Store(true)
	c.logger.Info("feature extractor ready", zap.String("url", c.baseURL))
	return nil
}

// Ready reports whether Init has succeeded.
func (c *Client) Ready() bool {
	return c.ready.Load()
}

// extractResponse is the JSON answer of /embed and /embed-url.
type extractResponse struct {
	Embedding        []float32   `json:"embedding"`
	Colors           [][]float64 `json:"colors"`
	ColorPercentages []float64   `json:"color_percentages"`
}

type embedURLRequest struct {
	ImageURL string `json:"image_url"`
}

// Extract sends the image reference to the service and returns its feature vector
// and dominant colors ordered by descending area fraction. When the service reports
// no colors and the reference carries raw bytes, the colors are derived locally.
func (c *Client) Extract(ctx context.Context, ref ImageRef) (*Features, error) {
	if !c.Ready() {
		return nil, ErrExtractorNotReady
	}
	if len(ref.Data) == 0 && ref.URL == "" {
		return nil, ErrEmptyImageRef
	}

	start := time.Now()
	features, err := c.extract(ctx, ref)
	mode := ref.Mode()
	metrics.ExtractorRequestDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	metrics.ExtractorRequestsTotal.WithLabelValues(mode, statusLabel(err)).Inc()
	if err != nil {
		c.logger.Debug("feature extraction failed", zap.String("mode", mode), zap.Error(err))
		return nil, err
	}
	return features, nil
}

func (c *Client) extract(ctx context.Context, ref ImageRef) (*Features, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for extractor rate limit: %w", err)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		req *http.Request
		err error
	)
	if len(ref.Data) > 0 {
		req, err = c.newMultipartRequest(reqCtx, "/embed", ref.Data)
	} else {
		req, err = c.newJSONRequest(reqCtx, "/embed-url", embedURLRequest{ImageURL: ref.URL})
	}
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxResponseSize))
	if err != nil {
		return nil, c.transportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RejectedError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return c.parseResponse(body, ref)
}

func (c *Client) parseResponse(body []byte, ref ImageRef) (*Features, error) {
	var out extractResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, malformed("failed to parse response: %v", err)
	}
	if len(out.Embedding) == 0 {
		return nil, malformed("empty embedding returned")
	}

	sample, err := colors.NewSample(out.Colors, out.ColorPercentages)
	if err != nil {
		return nil, malformed("%v", err)
	}

	if len(sample) == 0 && len(ref.Data) > 0 {
		local, err := palette.Extract(ref.Data, palette.DefaultMaxColors)
		if err != nil {
			c.logger.Warn("local palette extraction failed", zap.Error(err))
		} else {
			sample = local
		}
	}

	return &Features{Vector: out.Embedding, Colors: sample}, nil
}

// transportError maps a failed round trip to the error taxonomy. Cancellation by
// the caller is returned as the context error.
func (c *Client) transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("feature extraction: %w", ctxErr)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", ErrExtractionTimeout, c.timeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w after %s: %w", ErrExtractionTimeout, c.timeout, err)
	}
	return fmt.Errorf("%w: %w", ErrExtractorUnavailable, err)
}

// newMultipartRequest builds a multipart form with the image as the "file" part.
func (c *Client) newMultipartRequest(ctx context.Context, endpoint string, imageData []byte) (*http.Request, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image"`)
	h.Set("Content-Type", DetectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}

func (c *Client) newJSONRequest(ctx context.Context, endpoint string, payload any) (*http.Request, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func statusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrExtractionTimeout):
		return "timeout"
	case errors.Is(err, ErrExtractionRejected):
		return "rejected"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, ErrExtractorUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

// DetectMIMEType detects the MIME type from image magic bytes
func DetectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
