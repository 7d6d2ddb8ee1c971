package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/brunosaraiva/zapinsight/internal/analytics"
	"github.com/brunosaraiva/zapinsight/internal/gateway"
)

// WebhookController receives Evolution API event deliveries.
type WebhookController struct {
	processor *analytics.Processor
	logger    *slog.Logger
}

// NewWebhookController creates the webhook controller.
func NewWebhookController(processor *analytics.Processor, logger *slog.Logger) *WebhookController {
	return &WebhookController{
		processor: processor,
		logger:    logger.With("component", "webhook"),
	}
}

// historyImportRequest is the body of POST /api/history/import.
type historyImportRequest struct {
	Instance string                `json:"instance"`
	Messages []gateway.MessageData `json:"messages" validate:"required,min=1"`
}

// Handle accepts one webhook delivery. The gateway retries on
// non-2xx, so malformed payloads and unknown events are acknowledged
// with 200 and dropped; only storage failures surface as 500 to make
// the gateway redeliver.
func (h *WebhookController) Handle(c echo.Context) error {
	var envelope gateway.WebhookEnvelope
	if err := c.Bind(&envelope); err != nil {
		h.logger.Warn("Undecodable webhook body, acknowledging", "error", err)
		return okMessage(c, "ignored")
	}

	if envelope.Event != "messages.upsert" {
		h.logger.Debug("Ignoring webhook event", "event", envelope.Event)
		return okMessage(c, "ignored")
	}

	ctx := c.Request().Context()
	err := h.processor.ProcessInbound(ctx, envelope.Instance, &envelope.Data)
	switch {
	case errors.Is(err, analytics.ErrMalformedPayload):
		h.logger.Warn("Malformed message payload, acknowledging", "error", err)
		messagesIngested.WithLabelValues("malformed").Inc()
		return okMessage(c, "ignored")
	case err != nil:
		h.logger.Error("Failed to process webhook message", "error", err)
		messagesIngested.WithLabelValues("error").Inc()
		return fail(c, http.StatusInternalServerError, err)
	}

	messagesIngested.WithLabelValues("accepted").Inc()
	return okMessage(c, "processed")
}

// ImportHistory ingests a batch of historical messages through the
// same pipeline as live webhook deliveries.
func (h *WebhookController) ImportHistory(c echo.Context) error {
	var req historyImportRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	if err := c.Validate(&req); err != nil {
		return fail(c, http.StatusBadRequest, err)
	}

	processed, err := h.processor.ProcessHistoryBatch(c.Request().Context(), req.Instance, req.Messages)
	if err != nil {
		return fail(c, http.StatusInternalServerError, err)
	}

	return ok(c, map[string]int{"received": len(req.Messages), "processed": processed})
}
