package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"github.com/brunosaraiva/zapinsight/internal/database"
	"github.com/brunosaraiva/zapinsight/internal/llm"
)

// EmotionScores rates the presence of each base emotion in a message.
// Scores are independent and need not sum to one.
type EmotionScores struct {
	Joy      float64 `json:"joy"`
	Sadness  float64 `json:"sadness"`
	Anger    float64 `json:"anger"`
	Fear     float64 `json:"fear"`
	Surprise float64 `json:"surprise"`
	Disgust  float64 `json:"disgust"`
}

// sentimentVerdict is the JSON shape the model is asked to produce.
type sentimentVerdict struct {
	Label      string        `json:"label"`
	Score      float64       `json:"score"`
	Emotions   EmotionScores `json:"emotions"`
	Confidence float64       `json:"confidence"`
	Reasoning  string        `json:"reasoning"`
}

var emotionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"joy":      {Type: genai.TypeNumber},
		"sadness":  {Type: genai.TypeNumber},
		"anger":    {Type: genai.TypeNumber},
		"fear":     {Type: genai.TypeNumber},
		"surprise": {Type: genai.TypeNumber},
		"disgust":  {Type: genai.TypeNumber},
	},
	Required: []string{"joy", "sadness", "anger", "fear", "surprise", "disgust"},
}

var sentimentSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"label":      {Type: genai.TypeString, Enum: []string{"positive", "negative", "neutral", "mixed"}},
		"score":      {Type: genai.TypeNumber, Description: "Sentiment intensity from -1.0 (very negative) to 1.0 (very positive)."},
		"emotions":   emotionSchema,
		"confidence": {Type: genai.TypeNumber, Description: "How confident the analysis is, 0.0 to 1.0."},
		"reasoning":  {Type: genai.TypeString, Description: "Brief justification for the verdict."},
	},
	Required: []string{"label", "score", "emotions", "confidence", "reasoning"},
}

// SentimentAnalyzer scores message sentiment with the LLM and persists
// the verdicts.
type SentimentAnalyzer struct {
	store            database.Store
	llm              llm.Client
	minContentLength int
	concurrency      int
	logger           *slog.Logger
}

// NewSentimentAnalyzer creates a sentiment analyzer.
func NewSentimentAnalyzer(store database.Store, client llm.Client, minContentLength, concurrency int, logger *slog.Logger) *SentimentAnalyzer {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &SentimentAnalyzer{
		store:            store,
		llm:              client,
		minContentLength: minContentLength,
		concurrency:      concurrency,
		logger:           logger.With("component", "sentiment"),
	}
}

// Analyze scores one message and stores the verdict. Messages below
// the minimum content length return ErrAnalysisSkipped. An
// unparseable model reply falls back to a neutral verdict rather than
// failing the pipeline.
func (a *SentimentAnalyzer) Analyze(ctx context.Context, msg *database.Message) (*database.MessageSentiment, error) {
	content := strings.TrimSpace(msg.Content)
	if utf8.RuneCountInString(content) < a.minContentLength {
		return nil, fmt.Errorf("%w: content below %d characters", ErrAnalysisSkipped, a.minContentLength)
	}

	reply, err := a.llm.Complete(ctx, llm.Request{
		Prompt: buildSentimentPrompt(content),
		Schema: sentimentSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("sentiment analysis failed for message %s: %w", msg.MessageID, err)
	}

	verdict := a.parseVerdict(ctx, reply)

	emotionsJSON, err := json.Marshal(verdict.Emotions)
	if err != nil {
		emotionsJSON = []byte("{}")
	}

	sentiment := &database.MessageSentiment{
		MessageID:  msg.MessageID,
		Label:      verdict.Label,
		Score:      verdict.Score,
		Emotions:   string(emotionsJSON),
		Confidence: verdict.Confidence,
		ModelUsed:  a.llm.Model(),
		AnalyzedAt: time.Now().UTC().Unix(),
	}

	if err := a.store.SaveSentiment(ctx, sentiment); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	a.logger.DebugContext(ctx, "Sentiment analyzed",
		"message_id", msg.MessageID, "label", sentiment.Label, "score", sentiment.Score)
	return sentiment, nil
}

// AnalyzeBatch scores many messages with bounded concurrency. Failed
// and skipped messages are dropped from the result.
func (a *SentimentAnalyzer) AnalyzeBatch(ctx context.Context, messages []*database.Message) []*database.MessageSentiment {
	results := make([]*database.MessageSentiment, len(messages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i, msg := range messages {
		g.Go(func() error {
			sentiment, err := a.Analyze(gctx, msg)
			if err != nil {
				if !errors.Is(err, ErrAnalysisSkipped) {
					a.logger.WarnContext(gctx, "Batch sentiment analysis failed",
						"message_id", msg.MessageID, "error", err)
				}
				return nil
			}
			results[i] = sentiment
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*database.MessageSentiment, 0, len(results))
	for _, s := range results {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// parseVerdict decodes and normalizes the model reply. Malformed
// replies fall back to neutral with middling confidence.
func (a *SentimentAnalyzer) parseVerdict(ctx context.Context, reply string) sentimentVerdict {
	clean := strings.TrimSpace(reply)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")

	var verdict sentimentVerdict
	if err := json.Unmarshal([]byte(clean), &verdict); err != nil {
		a.logger.WarnContext(ctx, "Unparseable sentiment reply, using neutral fallback",
			"error", err, "reply", reply)
		return sentimentVerdict{Label: "neutral", Score: 0, Confidence: 0.5}
	}

	verdict.Label = normalizeLabel(verdict.Label)
	verdict.Score = clamp(verdict.Score, -1, 1)
	verdict.Confidence = clamp(verdict.Confidence, 0, 1)
	if verdict.Confidence == 0 {
		verdict.Confidence = 0.5
	}
	verdict.Emotions = EmotionScores{
		Joy:      clamp(verdict.Emotions.Joy, 0, 1),
		Sadness:  clamp(verdict.Emotions.Sadness, 0, 1),
		Anger:    clamp(verdict.Emotions.Anger, 0, 1),
		Fear:     clamp(verdict.Emotions.Fear, 0, 1),
		Surprise: clamp(verdict.Emotions.Surprise, 0, 1),
		Disgust:  clamp(verdict.Emotions.Disgust, 0, 1),
	}
	return verdict
}

func buildSentimentPrompt(content string) string {
	var sb strings.Builder
	sb.WriteString("You are an expert in sentiment and emotion analysis of WhatsApp conversations.\n\n")
	sb.WriteString("MESSAGE TO ANALYZE:\n")
	sb.WriteString(fmt.Sprintf("%q\n\n", content))
	sb.WriteString("Analyze the sentiment and emotions of this message.\n\n")
	sb.WriteString("Guidelines:\n")
	sb.WriteString("- Account for Brazilian Portuguese colloquialisms and slang\n")
	sb.WriteString("- Account for emojis and their emotional weight\n")
	sb.WriteString("- The score must reflect the intensity of the sentiment\n")
	sb.WriteString("- Emotion scores are independent and need not sum to 1.0\n")
	return sb.String()
}

func normalizeLabel(label string) string {
	switch strings.ToLower(label) {
	case "positive", "negative", "neutral", "mixed":
		return strings.ToLower(label)
	}
	return "neutral"
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
