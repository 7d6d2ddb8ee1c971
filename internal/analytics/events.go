package analytics

import (
	"context"
	"log/slog"
	"sync"

	"github.com/brunosaraiva/zapinsight/internal/database"
)

// MessageSavedEvent fires after a new message row is committed.
// Duplicate deliveries do not fire it.
type MessageSavedEvent struct {
	Message *database.Message
}

// AnalyzeRequestEvent asks for sentiment analysis of a stored message.
type AnalyzeRequestEvent struct {
	Message *database.Message
}

// RelationshipUpdateEvent asks for a relationship refresh around one
// sender after their message arrived in a conversation.
type RelationshipUpdateEvent struct {
	ConversationJID string
	SenderJID       string
	Timestamp       int64
}

// Events is the in-process dispatcher connecting the processor to the
// analytics listeners. Emission is fire-and-forget: each handler runs
// in its own goroutine and a panicking handler never takes down the
// pipeline. The WaitGroup lets Stop drain in-flight handlers.
type Events struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	logger *slog.Logger

	messageSaved       []func(context.Context, MessageSavedEvent)
	analyzeRequest     []func(context.Context, AnalyzeRequestEvent)
	relationshipUpdate []func(context.Context, RelationshipUpdateEvent)
}

// NewEvents creates an empty dispatcher.
func NewEvents(logger *slog.Logger) *Events {
	return &Events{logger: logger.With("component", "events")}
}

// OnMessageSaved registers a handler for saved messages.
func (e *Events) OnMessageSaved(fn func(context.Context, MessageSavedEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messageSaved = append(e.messageSaved, fn)
}

// OnAnalyzeRequest registers a handler for analysis requests.
func (e *Events) OnAnalyzeRequest(fn func(context.Context, AnalyzeRequestEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.analyzeRequest = append(e.analyzeRequest, fn)
}

// OnRelationshipUpdate registers a handler for relationship refreshes.
func (e *Events) OnRelationshipUpdate(fn func(context.Context, RelationshipUpdateEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.relationshipUpdate = append(e.relationshipUpdate, fn)
}

// EmitMessageSaved dispatches to all registered saved-message handlers.
func (e *Events) EmitMessageSaved(ctx context.Context, ev MessageSavedEvent) {
	e.mu.Lock()
	handlers := make([]func(context.Context, MessageSavedEvent), len(e.messageSaved))
	copy(handlers, e.messageSaved)
	e.wg.Add(len(handlers))
	e.mu.Unlock()

	for _, fn := range handlers {
		e.dispatch("message_saved", func() { fn(ctx, ev) })
	}
}

// EmitAnalyzeRequest dispatches to all registered analysis handlers.
func (e *Events) EmitAnalyzeRequest(ctx context.Context, ev AnalyzeRequestEvent) {
	e.mu.Lock()
	handlers := make([]func(context.Context, AnalyzeRequestEvent), len(e.analyzeRequest))
	copy(handlers, e.analyzeRequest)
	e.wg.Add(len(handlers))
	e.mu.Unlock()

	for _, fn := range handlers {
		e.dispatch("analyze_request", func() { fn(ctx, ev) })
	}
}

// EmitRelationshipUpdate dispatches to all registered relationship handlers.
func (e *Events) EmitRelationshipUpdate(ctx context.Context, ev RelationshipUpdateEvent) {
	e.mu.Lock()
	handlers := make([]func(context.Context, RelationshipUpdateEvent), len(e.relationshipUpdate))
	copy(handlers, e.relationshipUpdate)
	e.wg.Add(len(handlers))
	e.mu.Unlock()

	for _, fn := range handlers {
		e.dispatch("relationship_update", func() { fn(ctx, ev) })
	}
}

// dispatch runs one already-counted handler. The WaitGroup Add happens
// under the registry mutex in the Emit methods so an Emit racing
// RemoveAll+Wait can never Add concurrently with Wait.
func (e *Events) dispatch(event string, fn func()) {
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("Event handler panicked", "event", event, "panic", r)
			}
		}()
		fn()
	}()
}

// RemoveAll unregisters every handler. Events emitted afterwards are
// dropped.
func (e *Events) RemoveAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messageSaved = nil
	e.analyzeRequest = nil
	e.relationshipUpdate = nil
}

// Wait blocks until all in-flight handlers have finished.
func (e *Events) Wait() {
	e.wg.Wait()
}
