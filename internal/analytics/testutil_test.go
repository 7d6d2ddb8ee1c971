package analytics

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/brunosaraiva/zapinsight/internal/database"
	"github.com/brunosaraiva/zapinsight/internal/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, discardLogger())
}

func seedMessage(t *testing.T, store database.Store, messageID, conversationJID, senderJID string, timestamp int64) *database.Message {
	t.Helper()

	msg := &database.Message{
		MessageID:       messageID,
		Instance:        "main",
		ConversationJID: conversationJID,
		SenderJID:       senderJID,
		MessageType:     "conversation",
		Content:         "mensagem de teste para analise",
		Timestamp:       timestamp,
	}
	if _, err := store.SaveMessage(context.Background(), msg); err != nil {
		t.Fatalf("SaveMessage(%s) error = %v", messageID, err)
	}
	return msg
}

// relationshipFixture seeds one stored relationship row.
type relationshipFixture struct {
	a, b         string
	strength     float64
	interactions int64
}

func (f *relationshipFixture) save(t *testing.T, store database.Store) {
	t.Helper()

	err := store.UpsertRelationship(context.Background(), &database.ParticipantRelationship{
		ParticipantAJID:   f.a,
		ParticipantBJID:   f.b,
		Strength:          f.strength,
		TotalInteractions: f.interactions,
		LastInteractionAt: 1700000000,
		UpdatedAt:         1700000000,
	})
	if err != nil {
		t.Fatalf("UpsertRelationship(%s, %s) error = %v", f.a, f.b, err)
	}
}

// fakeLLM replays canned replies and records the prompts it saw.
type fakeLLM struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) Model() string { return "fake-model" }

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// fakeGateway records outbound sends.
type fakeGateway struct {
	mu    sync.Mutex
	err   error
	sends []string
}

func (f *fakeGateway) SendText(_ context.Context, toJID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sends = append(f.sends, toJID+": "+text)
	return nil
}

func (f *fakeGateway) SendMedia(_ context.Context, toJID, mediaType, media, caption string) error {
	return f.err
}

func (f *fakeGateway) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sends))
	copy(out, f.sends)
	return out
}
