package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/brunosaraiva/zapinsight/internal/analytics"
	"github.com/brunosaraiva/zapinsight/internal/database"
)

// DashboardController serves the read API backing the analytics
// dashboard.
type DashboardController struct {
	store         database.Store
	relationships *analytics.RelationshipBuilder
	patterns      *analytics.PatternDetector
	insights      *analytics.InsightGenerator
	logger        *slog.Logger
}

// NewDashboardController creates the dashboard controller.
func NewDashboardController(
	store database.Store,
	relationships *analytics.RelationshipBuilder,
	patterns *analytics.PatternDetector,
	insights *analytics.InsightGenerator,
	logger *slog.Logger,
) *DashboardController {
	return &DashboardController{
		store:         store,
		relationships: relationships,
		patterns:      patterns,
		insights:      insights,
		logger:        logger.With("component", "dashboard"),
	}
}

// Overview returns the aggregate counters plus the freshest alerts
// and insights.
func (h *DashboardController) Overview(c echo.Context) error {
	ctx := c.Request().Context()
	now := time.Now().UTC().Unix()

	metrics, err := h.store.DashboardMetrics(ctx, now)
	if err != nil {
		return fail(c, http.StatusInternalServerError, err)
	}
	alerts, err := h.store.UnreadAlerts(ctx, 10)
	if err != nil {
		return fail(c, http.StatusInternalServerError, err)
	}
	insights, err := h.store.ActiveInsights(ctx, 10)
	if err != nil {
		return fail(c, http.StatusInternalServerError, err)
	}

	return ok(c, map[string]any{
		"metrics":  metrics,
		"alerts":   alerts,
		"insights": insights,
	})
}

// Participants lists participants by message volume.
func (h *DashboardController) Participants(c echo.Context) error {
	participants, err := h.store.ListParticipants(c.Request().Context(), queryInt(c, "limit", 50))
	if err != nil {
		return fail(c, http.StatusInternalServerError, err)
	}
	return ok(c, participants)
}

// ParticipantProfile assembles everything known about one participant.
func (h *DashboardController) ParticipantProfile(c echo.Context) error {
	ctx := c.Request().Context()
	jid := c.Param("jid")

	participant, err := h.store.GetParticipant(ctx, jid)
	if err != nil {
		return fail(c, http.StatusInternalServerError, err)
	}
	if participant == nil {
		return fail(c, http.StatusNotFound, echo.NewHTTPError(http.StatusNotFound, "participant not found"))
	}

	patterns, err := h.store.PatternsByParticipant(ctx, jid)
	if err != nil {
		return fail(c, http.StatusInternalServerError, err)
	}
	relationships, err := h.store.RelationshipsByParticipant(ctx, jid)
	if err != nil {
		return fail(c, http.StatusInternalServerError, err)
	}
	since := time.Now().UTC().Add(-30 * 24 * time.Hour).Unix()
	progression, err := h.store.SentimentProgression(ctx, jid, since)
	if err != nil {
		return fail(c, http.StatusInternalServerError, err)
	}

	return ok(c, map[string]any{
		"participant":           participant,
		"patterns":              patterns,
		"relationships":         relationships,
		"sentiment_progression": progression,
	})
}

// AnalyzeParticipant runs pattern detection on demand.
func (h *DashboardController) AnalyzeParticipant(c echo.Context) error {
	patterns, err := h.patterns.DetectAll(c.Request().Context(), c.Param("jid"))
	if err != nil {
		return fail(c, http.StatusInternalServerError, err)
	}
	return ok(c, patterns)
}

// SentimentProgression returns daily sentiment averages for one
// participant.
func (h *DashboardController) SentimentProgression(c echo.Context) error {
	days := queryInt(c, "days", 30)
	since := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour).Unix()

	progression, err := h.store.SentimentProgression(c.Request().Context(), c.Param("jid"), since)
	if err != nil {
		return fail(c, http.StatusInternalServerError, err)
	}
	return ok(c, progression)
}

// RelationshipGraph returns the social graph.
func (h *DashboardController) RelationshipGraph(c echo.Context) error {
	graph, err := h.relationships.BuildGraph(c.Request().Context())
	if err != nil {
		return fail(c, http.StatusInternalServerError, err)
	}
	return ok(c, graph)
}

// StrongestRelationships lists the top relationships.
func (h *DashboardController) StrongestRelationships(c echo.Context) error {
	rels, err := h.store.StrongestRelationships(c.Request().Context(), queryInt(c, "limit", 20))
	if err != nil {
		return fail(c, http.StatusInternalServerError, err)
	}
	return ok(c, rels)
}

// Insights lists active insights.
func (h *DashboardController) Insights(c echo.Context) error {
	insights, err := h.store.ActiveInsights(c.Request().Context(), queryInt(c, "limit", 50))
	if err != nil {
		return fail(c, http.StatusInternalServerError, err)
	}
	return ok(c, insights)
}

// GenerateInsights runs insight generation for a participant on
// demand.
func (h *DashboardController) GenerateInsights(c echo.Context) error {
	var req struct {
		ParticipantJID string `json:"participant_jid" validate:"required"`
	}
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	if err := c.Validate(&req); err != nil {
		return fail(c, http.StatusBadRequest, err)
	}

	insights, err := h.insights.GenerateForParticipant(c.Request().Context(), req.ParticipantJID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, err)
	}
	return ok(c, insights)
}

// Alerts lists unread alerts.
func (h *DashboardController) Alerts(c echo.Context) error {
	alerts, err := h.store.UnreadAlerts(c.Request().Context(), queryInt(c, "limit", 50))
	if err != nil {
		return fail(c, http.StatusInternalServerError, err)
	}
	return ok(c, alerts)
}

// MarkAlertRead marks one alert as read.
func (h *DashboardController) MarkAlertRead(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}

	marked, err := h.store.MarkAlertRead(c.Request().Context(), id)
	if err != nil {
		return fail(c, http.StatusInternalServerError, err)
	}
	if !marked {
		return fail(c, http.StatusNotFound, echo.NewHTTPError(http.StatusNotFound, "alert not found or already read"))
	}
	return okMessage(c, "alert marked as read")
}

// Conversations lists conversations by recency.
func (h *DashboardController) Conversations(c echo.Context) error {
	conversations, err := h.store.ListConversations(c.Request().Context(), queryInt(c, "limit", 50))
	if err != nil {
		return fail(c, http.StatusInternalServerError, err)
	}
	return ok(c, conversations)
}

// ConversationMessages lists a conversation's recent messages.
func (h *DashboardController) ConversationMessages(c echo.Context) error {
	messages, err := h.store.RecentMessages(c.Request().Context(), c.Param("jid"), queryInt(c, "limit", 100))
	if err != nil {
		return fail(c, http.StatusInternalServerError, err)
	}
	return ok(c, messages)
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
