package analytics

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brunosaraiva/zapinsight/internal/config"
	"github.com/brunosaraiva/zapinsight/internal/database"
)

// Orchestrator wires the analytics listeners onto the event
// dispatcher and drives the periodic sweeps. It is the only component
// that knows the whole pipeline.
type Orchestrator struct {
	store         database.Store
	events        *Events
	sentiment     *SentimentAnalyzer
	relationships *RelationshipBuilder
	patterns      *PatternDetector
	alerts        *AlertEngine
	insights      *InsightGenerator
	cfg           config.AnalyticsConfig
	logger        *slog.Logger

	mu        sync.Mutex
	started   bool
	baseCtx   context.Context
	processed atomic.Int64
}

// NewOrchestrator creates the analytics orchestrator.
func NewOrchestrator(
	store database.Store,
	events *Events,
	sentiment *SentimentAnalyzer,
	relationships *RelationshipBuilder,
	patterns *PatternDetector,
	alerts *AlertEngine,
	insights *InsightGenerator,
	cfg config.AnalyticsConfig,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:         store,
		events:        events,
		sentiment:     sentiment,
		relationships: relationships,
		patterns:      patterns,
		alerts:        alerts,
		insights:      insights,
		cfg:           cfg,
		logger:        logger.With("component", "orchestrator"),
	}
}

// Start registers the pipeline listeners. Calling Start twice is a
// no-op. Handlers run against ctx rather than the short-lived request
// contexts events are emitted with, so an HTTP response going out does
// not cancel analysis already in flight.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		o.logger.Warn("Orchestrator already started, ignoring")
		return
	}
	o.started = true
	o.baseCtx = ctx

	o.events.OnMessageSaved(o.handleMessageSaved)
	o.events.OnAnalyzeRequest(o.handleAnalyzeRequest)
	o.events.OnRelationshipUpdate(o.handleRelationshipUpdate)

	o.logger.Info("Analytics orchestrator started",
		"pattern_sweep_interval", o.cfg.PatternSweepInterval,
		"sweep_participant_limit", o.cfg.SweepParticipantLimit)
}

// Stop unregisters all listeners and waits for in-flight handlers to
// drain.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return
	}
	o.started = false
	o.mu.Unlock()

	o.events.RemoveAll()
	o.events.Wait()
	o.logger.Info("Analytics orchestrator stopped", "messages_processed", o.processed.Load())
}

// MessagesProcessed returns the number of saved messages observed
// since Start.
func (o *Orchestrator) MessagesProcessed() int64 {
	return o.processed.Load()
}

func (o *Orchestrator) handleMessageSaved(_ context.Context, _ MessageSavedEvent) {
	n := o.processed.Add(1)
	if n%int64(o.cfg.PatternSweepInterval) != 0 {
		return
	}

	o.logger.Info("Pattern sweep threshold reached", "messages_processed", n)
	if err := o.RunPatternSweep(o.baseCtx); err != nil {
		o.logger.Error("Pattern sweep failed", "error", err)
	}
}

func (o *Orchestrator) handleAnalyzeRequest(_ context.Context, ev AnalyzeRequestEvent) {
	_, err := o.sentiment.Analyze(o.baseCtx, ev.Message)
	if err != nil && !errors.Is(err, ErrAnalysisSkipped) {
		o.logger.Warn("Sentiment analysis failed",
			"message_id", ev.Message.MessageID, "error", err)
	}
}

func (o *Orchestrator) handleRelationshipUpdate(_ context.Context, ev RelationshipUpdateEvent) {
	if err := o.relationships.UpdateForSender(o.baseCtx, ev.ConversationJID, ev.SenderJID, ev.Timestamp); err != nil {
		o.logger.Warn("Relationship update failed",
			"conversation", ev.ConversationJID, "sender", ev.SenderJID, "error", err)
	}
}

// RunPatternSweep detects patterns, then insights, for the
// participants active in the last day. Per-participant failures are
// logged and do not stop the sweep.
func (o *Orchestrator) RunPatternSweep(ctx context.Context) error {
	since := time.Now().UTC().Add(-24 * time.Hour).Unix()
	participants, err := o.store.ActiveParticipants(ctx, since, o.cfg.SweepParticipantLimit)
	if err != nil {
		return err
	}

	for _, jid := range participants {
		if err := ctx.Err(); err != nil {
			return err
		}

		patterns, err := o.patterns.DetectAll(ctx, jid)
		if err != nil {
			o.logger.Warn("Pattern detection failed during sweep", "participant", jid, "error", err)
			continue
		}
		if len(patterns) == 0 {
			continue
		}

		if _, err := o.insights.GenerateForParticipant(ctx, jid); err != nil {
			o.logger.Warn("Insight generation failed during sweep", "participant", jid, "error", err)
		}
	}

	o.logger.Info("Pattern sweep completed", "participants", len(participants))
	return nil
}

// RunAlertSweep evaluates all alert rules once. Wired to the
// scheduler.
func (o *Orchestrator) RunAlertSweep(ctx context.Context) error {
	_, err := o.alerts.Sweep(ctx)
	return err
}
