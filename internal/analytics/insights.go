package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/brunosaraiva/zapinsight/internal/database"
	"github.com/brunosaraiva/zapinsight/internal/llm"
)

// insightItem is one element of the JSON array the model produces.
type insightItem struct {
	Type           string  `json:"type"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Severity       string  `json:"severity"`
	Confidence     float64 `json:"confidence"`
	SupportingData string  `json:"supporting_data"`
}

var insightListSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"type":            {Type: genai.TypeString, Enum: []string{"pattern", "anomaly", "trend", "recommendation"}},
			"title":           {Type: genai.TypeString, Description: "Short headline for the insight."},
			"description":     {Type: genai.TypeString, Description: "Detailed explanation."},
			"severity":        {Type: genai.TypeString, Enum: []string{"info", "warning", "critical"}},
			"confidence":      {Type: genai.TypeNumber, Description: "0.0 to 1.0."},
			"supporting_data": {Type: genai.TypeString, Description: "JSON object with the numbers behind the insight."},
		},
		Required: []string{"type", "title", "description", "severity", "confidence"},
	},
}

// InsightGenerator asks the LLM for behavioral observations about a
// participant, grounded in their stored patterns, sentiment history,
// and relationships.
type InsightGenerator struct {
	store  database.Store
	llm    llm.Client
	logger *slog.Logger
}

// NewInsightGenerator creates an insight generator.
func NewInsightGenerator(store database.Store, client llm.Client, logger *slog.Logger) *InsightGenerator {
	return &InsightGenerator{
		store:  store,
		llm:    client,
		logger: logger.With("component", "insights"),
	}
}

// GenerateForParticipant builds a context from the participant's
// analytics and stores whatever insights the model returns. A
// participant with no detected patterns yields none.
func (g *InsightGenerator) GenerateForParticipant(ctx context.Context, participantJID string) ([]*database.Insight, error) {
	contextJSON, err := g.gatherContext(ctx, participantJID)
	if err != nil {
		return nil, err
	}
	if contextJSON == "" {
		return nil, nil
	}

	reply, err := g.llm.Complete(ctx, llm.Request{
		Prompt: buildInsightPrompt(participantJID, contextJSON),
		Schema: insightListSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("insight generation failed for %s: %w", participantJID, err)
	}

	items := parseInsightItems(reply)
	now := time.Now().UTC().Unix()

	var insights []*database.Insight
	for _, item := range items {
		supporting := item.SupportingData
		if !json.Valid([]byte(supporting)) {
			supporting = "{}"
		}
		insight := &database.Insight{
			InsightType:    normalizeInsightType(item.Type),
			SubjectType:    "participant",
			SubjectID:      participantJID,
			Title:          item.Title,
			Description:    item.Description,
			Severity:       normalizeSeverity(item.Severity),
			Confidence:     clamp(item.Confidence, 0, 1),
			SupportingData: supporting,
			IsActive:       true,
			DetectedAt:     now,
		}
		if err := g.store.SaveInsight(ctx, insight); err != nil {
			return insights, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		insights = append(insights, insight)
	}

	g.logger.InfoContext(ctx, "Insights generated", "participant", participantJID, "count", len(insights))
	return insights, nil
}

// gatherContext assembles the analytics snapshot the model reasons
// over. Returns "" when there is nothing to reason about yet.
func (g *InsightGenerator) gatherContext(ctx context.Context, participantJID string) (string, error) {
	patterns, err := g.store.PatternsByParticipant(ctx, participantJID)
	if err != nil {
		return "", fmt.Errorf("failed to load patterns for %s: %w", participantJID, err)
	}
	if len(patterns) == 0 {
		return "", nil
	}

	since := time.Now().UTC().Add(-30 * 24 * time.Hour).Unix()
	progression, err := g.store.SentimentProgression(ctx, participantJID, since)
	if err != nil {
		return "", fmt.Errorf("failed to load sentiment progression for %s: %w", participantJID, err)
	}

	rels, err := g.store.RelationshipsByParticipant(ctx, participantJID)
	if err != nil {
		return "", fmt.Errorf("failed to load relationships for %s: %w", participantJID, err)
	}

	snapshot := map[string]any{
		"behavior_patterns":     patterns,
		"sentiment_progression": progression,
		"relationships":         rels,
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("failed to encode analytics snapshot: %w", err)
	}
	return string(payload), nil
}

func buildInsightPrompt(participantJID, contextJSON string) string {
	var sb strings.Builder
	sb.WriteString("You are an expert in behavioral analysis of WhatsApp conversations.\n\n")
	sb.WriteString(fmt.Sprintf("PARTICIPANT: %s\n\n", participantJID))
	sb.WriteString("ANALYTICS DATA:\n")
	sb.WriteString(contextJSON)
	sb.WriteString("\n\nGenerate up to three valuable insights about this participant's behavior.\n")
	sb.WriteString("Focus on actionable and meaningful observations. Skip anything the data does not support.\n")
	return sb.String()
}

func parseInsightItems(reply string) []insightItem {
	clean := strings.TrimSpace(reply)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")

	var items []insightItem
	if err := json.Unmarshal([]byte(clean), &items); err != nil {
		return nil
	}
	return items
}

func normalizeInsightType(t string) string {
	switch strings.ToLower(t) {
	case "pattern", "anomaly", "trend", "recommendation":
		return strings.ToLower(t)
	}
	return "pattern"
}

func normalizeSeverity(s string) string {
	switch strings.ToLower(s) {
	case "info", "warning", "critical":
		return strings.ToLower(s)
	}
	return "info"
}
