package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/brunosaraiva/zapinsight/internal/config"
)

// Client defines the interface for sending messages through the
// WhatsApp gateway.
type Client interface {
	// SendText sends a plain text message to the given JID.
	SendText(ctx context.Context, toJID, text string) error

	// SendMedia sends a media message (image, video, audio, document)
	// referenced by URL or base64 payload.
	SendMedia(ctx context.Context, toJID, mediaType, media, caption string) error
}

// httpClient implements Client against the Evolution API REST surface.
type httpClient struct {
	baseURL    string
	apiKey     string
	instance   string
	maxRetries int
	http       *http.Client
	logger     *slog.Logger
}

// NewClient creates a gateway client from config.
func NewClient(cfg config.GatewayConfig, logger *slog.Logger) Client {
	return &httpClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		instance:   cfg.Instance,
		maxRetries: cfg.MaxRetries,
		http:       &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "gateway"),
	}
}

func (c *httpClient) SendText(ctx context.Context, toJID, text string) error {
	if toJID == "" {
		return fmt.Errorf("recipient JID cannot be empty")
	}
	if text == "" {
		return fmt.Errorf("message text cannot be empty")
	}

	body := sendTextRequest{Number: toJID, Text: text}
	path := fmt.Sprintf("/message/sendText/%s", c.instance)

	if err := c.postWithRetries(ctx, path, body); err != nil {
		return fmt.Errorf("failed to send text to %s: %w", toJID, err)
	}

	c.logger.DebugContext(ctx, "Text message sent", "to", toJID)
	return nil
}

func (c *httpClient) SendMedia(ctx context.Context, toJID, mediaType, media, caption string) error {
	if toJID == "" {
		return fmt.Errorf("recipient JID cannot be empty")
	}
	if media == "" {
		return fmt.Errorf("media payload cannot be empty")
	}

	body := sendMediaRequest{Number: toJID, MediaType: mediaType, Media: media, Caption: caption}
	path := fmt.Sprintf("/message/sendMedia/%s", c.instance)

	if err := c.postWithRetries(ctx, path, body); err != nil {
		return fmt.Errorf("failed to send media to %s: %w", toJID, err)
	}

	c.logger.DebugContext(ctx, "Media message sent", "to", toJID, "media_type", mediaType)
	return nil
}

// postWithRetries issues the request, retrying transient gateway
// failures (5xx, network errors) with exponential backoff.
func (c *httpClient) postWithRetries(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			c.logger.WarnContext(ctx, "Retrying gateway request",
				"path", path, "attempt", attempt+1, "backoff", backoff, "error", lastErr)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = c.post(ctx, path, payload)
		if lastErr == nil {
			return nil
		}

		var re *requestError
		if !errors.As(lastErr, &re) || !re.retryable {
			return lastErr
		}
	}

	return fmt.Errorf("gateway request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *httpClient) post(ctx context.Context, path string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return &requestError{retryable: true, err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err = fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, snippet)

	// 5xx and 429 are worth retrying; other client errors are not.
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return &requestError{retryable: true, err: err}
	}
	return &requestError{retryable: false, err: err}
}

// requestError wraps a transport or status failure with retryability.
type requestError struct {
	retryable bool
	err       error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }
