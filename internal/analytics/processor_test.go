package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/brunosaraiva/zapinsight/internal/gateway"
)

func textPayload(id, remoteJID, text string, timestamp int64) *gateway.MessageData {
	return &gateway.MessageData{
		Key:              gateway.MessageKey{ID: id, RemoteJID: remoteJID},
		PushName:         "Bruno",
		Message:          gateway.MessageContent{Conversation: text},
		MessageType:      "conversation",
		MessageTimestamp: timestamp,
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		data        *gateway.MessageData
		wantErr     bool
		wantContent string
		wantSender  string
		wantMedia   string
		wantQuoted  string
	}{
		{
			name:        "plain text",
			data:        textPayload("M1", "5511999@s.whatsapp.net", "oi tudo bem", 1700000000),
			wantContent: "oi tudo bem",
			wantSender:  "5511999@s.whatsapp.net",
		},
		{
			name: "group message uses participant as sender",
			data: &gateway.MessageData{
				Key: gateway.MessageKey{
					ID:          "M2",
					RemoteJID:   "555@g.us",
					Participant: "alice@s.whatsapp.net",
				},
				Message:          gateway.MessageContent{Conversation: "bom dia"},
				MessageType:      "conversation",
				MessageTimestamp: 1700000000,
			},
			wantContent: "bom dia",
			wantSender:  "alice@s.whatsapp.net",
		},
		{
			name: "own message without participant",
			data: &gateway.MessageData{
				Key:              gateway.MessageKey{ID: "M3", RemoteJID: "5511999@s.whatsapp.net", FromMe: true},
				Message:          gateway.MessageContent{Conversation: "respondendo"},
				MessageType:      "conversation",
				MessageTimestamp: 1700000000,
			},
			wantContent: "respondendo",
			wantSender:  "me@whatsapp",
		},
		{
			name: "extended text with quote",
			data: &gateway.MessageData{
				Key: gateway.MessageKey{ID: "M4", RemoteJID: "555@g.us", Participant: "bob@s.whatsapp.net"},
				Message: gateway.MessageContent{
					ExtendedTextMessage: &gateway.ExtendedText{
						Text:        "concordo com isso",
						ContextInfo: &gateway.ContextInfo{StanzaID: "M1"},
					},
				},
				MessageType:      "extendedTextMessage",
				MessageTimestamp: 1700000000,
			},
			wantContent: "concordo com isso",
			wantSender:  "bob@s.whatsapp.net",
			wantQuoted:  "M1",
		},
		{
			name: "image with caption",
			data: &gateway.MessageData{
				Key:              gateway.MessageKey{ID: "M5", RemoteJID: "555@g.us", Participant: "bob@s.whatsapp.net"},
				Message:          gateway.MessageContent{ImageMessage: &gateway.MediaAttachment{Caption: "olha isso"}},
				MessageType:      "imageMessage",
				MessageTimestamp: 1700000000,
			},
			wantContent: "olha isso",
			wantSender:  "bob@s.whatsapp.net",
			wantMedia:   "image",
		},
		{
			name: "audio placeholder",
			data: &gateway.MessageData{
				Key:              gateway.MessageKey{ID: "M6", RemoteJID: "555@g.us", Participant: "bob@s.whatsapp.net"},
				Message:          gateway.MessageContent{AudioMessage: &gateway.MediaAttachment{Mimetype: "audio/ogg"}},
				MessageType:      "audioMessage",
				MessageTimestamp: 1700000000,
			},
			wantContent: "[audio]",
			wantSender:  "bob@s.whatsapp.net",
			wantMedia:   "audio",
		},
		{
			name: "document placeholder carries file name",
			data: &gateway.MessageData{
				Key:              gateway.MessageKey{ID: "M7", RemoteJID: "555@g.us", Participant: "bob@s.whatsapp.net"},
				Message:          gateway.MessageContent{DocumentMessage: &gateway.DocumentInfo{FileName: "contrato.pdf"}},
				MessageType:      "documentMessage",
				MessageTimestamp: 1700000000,
			},
			wantContent: "[document: contrato.pdf]",
			wantSender:  "bob@s.whatsapp.net",
			wantMedia:   "document",
		},
		{
			name: "sticker placeholder",
			data: &gateway.MessageData{
				Key:              gateway.MessageKey{ID: "M8", RemoteJID: "555@g.us", Participant: "bob@s.whatsapp.net"},
				Message:          gateway.MessageContent{StickerMessage: &gateway.MediaAttachment{}},
				MessageType:      "stickerMessage",
				MessageTimestamp: 1700000000,
			},
			wantContent: "[sticker]",
			wantSender:  "bob@s.whatsapp.net",
			wantMedia:   "sticker",
		},
		{
			name: "contact placeholder",
			data: &gateway.MessageData{
				Key:              gateway.MessageKey{ID: "M9", RemoteJID: "555@g.us", Participant: "bob@s.whatsapp.net"},
				Message:          gateway.MessageContent{ContactMessage: &gateway.ContactInfo{DisplayName: "Carol"}},
				MessageType:      "contactMessage",
				MessageTimestamp: 1700000000,
			},
			wantContent: "[contact]",
			wantSender:  "bob@s.whatsapp.net",
		},
		{
			name:    "nil payload",
			data:    nil,
			wantErr: true,
		},
		{
			name:    "missing message id",
			data:    textPayload("", "555@g.us", "oi", 1700000000),
			wantErr: true,
		},
		{
			name:    "missing conversation jid",
			data:    textPayload("M10", "", "oi", 1700000000),
			wantErr: true,
		},
		{
			name:    "missing timestamp",
			data:    textPayload("M11", "555@g.us", "oi", 0),
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			msg, err := Normalize(tc.data)
			if tc.wantErr {
				if !errors.Is(err, ErrMalformedPayload) {
					t.Fatalf("Normalize() error = %v, want ErrMalformedPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}

			if msg.Content != tc.wantContent {
				t.Errorf("content = %q, want %q", msg.Content, tc.wantContent)
			}
			if msg.SenderJID != tc.wantSender {
				t.Errorf("sender_jid = %q, want %q", msg.SenderJID, tc.wantSender)
			}
			if msg.MediaType != tc.wantMedia {
				t.Errorf("media_type = %q, want %q", msg.MediaType, tc.wantMedia)
			}
			if msg.HasMedia != (tc.wantMedia != "") {
				t.Errorf("has_media = %v, want %v", msg.HasMedia, tc.wantMedia != "")
			}
			if msg.QuotedMessageID != tc.wantQuoted {
				t.Errorf("quoted_message_id = %q, want %q", msg.QuotedMessageID, tc.wantQuoted)
			}
		})
	}
}

func TestShouldSkip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data *gateway.MessageData
		want bool
	}{
		{
			name: "protocol message",
			data: &gateway.MessageData{MessageType: typeProtocol},
			want: true,
		},
		{
			name: "reaction message",
			data: &gateway.MessageData{MessageType: typeReaction, Message: gateway.MessageContent{Conversation: "👍"}},
			want: true,
		},
		{
			name: "no extractable content still passes",
			data: &gateway.MessageData{MessageType: "conversation"},
			want: false,
		},
		{
			name: "plain text passes",
			data: &gateway.MessageData{MessageType: "conversation", Message: gateway.MessageContent{Conversation: "oi"}},
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, _ := shouldSkip(tc.data)
			if got != tc.want {
				t.Errorf("shouldSkip() = %v, want %v", got, tc.want)
			}
		})
	}
}

// eventRecorder counts emitted pipeline events.
type eventRecorder struct {
	mu            sync.Mutex
	saved         int
	analyze       int
	relationships int
}

func (r *eventRecorder) register(events *Events) {
	events.OnMessageSaved(func(context.Context, MessageSavedEvent) {
		r.mu.Lock()
		r.saved++
		r.mu.Unlock()
	})
	events.OnAnalyzeRequest(func(context.Context, AnalyzeRequestEvent) {
		r.mu.Lock()
		r.analyze++
		r.mu.Unlock()
	})
	events.OnRelationshipUpdate(func(context.Context, RelationshipUpdateEvent) {
		r.mu.Lock()
		r.relationships++
		r.mu.Unlock()
	})
}

func (r *eventRecorder) counts(events *Events) (saved, analyze, relationships int) {
	events.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved, r.analyze, r.relationships
}

func TestProcessInbound(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	events := NewEvents(discardLogger())
	recorder := &eventRecorder{}
	recorder.register(events)

	p := NewProcessor(store, events, 5, discardLogger())
	ctx := context.Background()

	groupMsg := &gateway.MessageData{
		Key:              gateway.MessageKey{ID: "G1", RemoteJID: "555@g.us", Participant: "alice@s.whatsapp.net"},
		PushName:         "Alice",
		Message:          gateway.MessageContent{Conversation: "bom dia pessoal, tudo certo?"},
		MessageType:      "conversation",
		MessageTimestamp: 1700000000,
	}
	if err := p.ProcessInbound(ctx, "main", groupMsg); err != nil {
		t.Fatalf("ProcessInbound() error = %v", err)
	}

	saved, analyze, relationships := recorder.counts(events)
	if saved != 1 || analyze != 1 || relationships != 1 {
		t.Fatalf("events after group message = (%d, %d, %d), want (1, 1, 1)", saved, analyze, relationships)
	}

	stored, err := store.GetMessage(ctx, "G1")
	if err != nil {
		t.Fatalf("GetMessage() error = %v", err)
	}
	if stored == nil {
		t.Fatal("message not persisted")
	}
	if stored.Instance != "main" {
		t.Errorf("instance = %q, want main", stored.Instance)
	}

	participant, err := store.GetParticipant(ctx, "alice@s.whatsapp.net")
	if err != nil {
		t.Fatalf("GetParticipant() error = %v", err)
	}
	if participant == nil || participant.MessageCount != 1 {
		t.Fatalf("participant = %+v, want message_count 1", participant)
	}

	conversations, err := store.ListConversations(ctx, 10)
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	if len(conversations) != 1 || conversations[0].Type != "group" {
		t.Fatalf("conversations = %+v, want one group", conversations)
	}
}

func TestProcessInboundDuplicateIsSilent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	events := NewEvents(discardLogger())
	recorder := &eventRecorder{}
	recorder.register(events)

	p := NewProcessor(store, events, 5, discardLogger())
	ctx := context.Background()

	payload := textPayload("D1", "5511999@s.whatsapp.net", "mensagem longa o suficiente", 1700000000)
	if err := p.ProcessInbound(ctx, "main", payload); err != nil {
		t.Fatalf("first ProcessInbound() error = %v", err)
	}
	if err := p.ProcessInbound(ctx, "main", payload); err != nil {
		t.Fatalf("duplicate ProcessInbound() error = %v", err)
	}

	saved, _, _ := recorder.counts(events)
	if saved != 1 {
		t.Errorf("saved events = %d, want 1 (duplicates fire no events)", saved)
	}

	participant, err := store.GetParticipant(ctx, "5511999@s.whatsapp.net")
	if err != nil {
		t.Fatalf("GetParticipant() error = %v", err)
	}
	if participant.MessageCount != 1 {
		t.Errorf("message_count = %d, want 1 (duplicates bump no counters)", participant.MessageCount)
	}
}

func TestProcessInboundEventGating(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		data              *gateway.MessageData
		wantSaved         int
		wantAnalyze       int
		wantRelationships int
	}{
		{
			name:        "short content skips analysis",
			data:        textPayload("E1", "5511999@s.whatsapp.net", "oi", 1700000000),
			wantSaved:   1,
			wantAnalyze: 0,
		},
		{
			name: "media placeholder skips analysis",
			data: &gateway.MessageData{
				Key:              gateway.MessageKey{ID: "E2", RemoteJID: "5511999@s.whatsapp.net"},
				Message:          gateway.MessageContent{AudioMessage: &gateway.MediaAttachment{}},
				MessageType:      "audioMessage",
				MessageTimestamp: 1700000000,
			},
			wantSaved: 1,
		},
		{
			name: "private chat skips relationship update",
			data: textPayload("E3", "5511999@s.whatsapp.net", "mensagem suficientemente longa", 1700000000),

			wantSaved:   1,
			wantAnalyze: 1,
		},
		{
			name: "own group message skips relationship update",
			data: &gateway.MessageData{
				Key:              gateway.MessageKey{ID: "E4", RemoteJID: "555@g.us", FromMe: true, Participant: "me@s.whatsapp.net"},
				Message:          gateway.MessageContent{Conversation: "mensagem suficientemente longa"},
				MessageType:      "conversation",
				MessageTimestamp: 1700000000,
			},
			wantSaved:   1,
			wantAnalyze: 1,
		},
		{
			name:      "protocol message is dropped entirely",
			data:      &gateway.MessageData{Key: gateway.MessageKey{ID: "E5", RemoteJID: "555@g.us"}, MessageType: typeProtocol, MessageTimestamp: 1700000000},
			wantSaved: 0,
		},
		{
			name: "captionless group image saves and keeps relationships",
			data: &gateway.MessageData{
				Key:              gateway.MessageKey{ID: "E6", RemoteJID: "555@g.us", Participant: "alice@s.whatsapp.net"},
				Message:          gateway.MessageContent{ImageMessage: &gateway.MediaAttachment{Mimetype: "image/jpeg"}},
				MessageType:      "imageMessage",
				MessageTimestamp: 1700000000,
			},
			wantSaved:         1,
			wantRelationships: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := newTestStore(t)
			events := NewEvents(discardLogger())
			recorder := &eventRecorder{}
			recorder.register(events)

			p := NewProcessor(store, events, 5, discardLogger())
			if err := p.ProcessInbound(context.Background(), "main", tc.data); err != nil {
				t.Fatalf("ProcessInbound() error = %v", err)
			}

			saved, analyze, relationships := recorder.counts(events)
			if saved != tc.wantSaved || analyze != tc.wantAnalyze || relationships != tc.wantRelationships {
				t.Errorf("events = (%d, %d, %d), want (%d, %d, %d)",
					saved, analyze, relationships, tc.wantSaved, tc.wantAnalyze, tc.wantRelationships)
			}
		})
	}
}

func TestProcessInboundCaptionlessMedia(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	events := NewEvents(discardLogger())
	recorder := &eventRecorder{}
	recorder.register(events)

	p := NewProcessor(store, events, 5, discardLogger())
	ctx := context.Background()

	payload := &gateway.MessageData{
		Key:              gateway.MessageKey{ID: "IMG1", RemoteJID: "555@g.us", Participant: "alice@s.whatsapp.net"},
		PushName:         "Alice",
		Message:          gateway.MessageContent{ImageMessage: &gateway.MediaAttachment{Mimetype: "image/jpeg"}},
		MessageType:      "imageMessage",
		MessageTimestamp: 1700000000,
	}
	if err := p.ProcessInbound(ctx, "main", payload); err != nil {
		t.Fatalf("ProcessInbound() error = %v", err)
	}

	stored, err := store.GetMessage(ctx, "IMG1")
	if err != nil {
		t.Fatalf("GetMessage() error = %v", err)
	}
	if stored == nil {
		t.Fatal("captionless image not persisted")
	}
	if stored.Content != "" {
		t.Errorf("content = %q, want empty", stored.Content)
	}
	if !stored.HasMedia || stored.MediaType != "image" {
		t.Errorf("media = (%v, %q), want (true, image)", stored.HasMedia, stored.MediaType)
	}

	participant, err := store.GetParticipant(ctx, "alice@s.whatsapp.net")
	if err != nil {
		t.Fatalf("GetParticipant() error = %v", err)
	}
	if participant == nil || participant.MessageCount != 1 {
		t.Fatalf("participant = %+v, want message_count 1", participant)
	}

	saved, analyze, _ := recorder.counts(events)
	if saved != 1 || analyze != 0 {
		t.Errorf("events = (saved %d, analyze %d), want (1, 0)", saved, analyze)
	}
}

func TestProcessHistoryBatch(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	events := NewEvents(discardLogger())
	p := NewProcessor(store, events, 5, discardLogger())

	batch := []gateway.MessageData{
		*textPayload("H1", "555@g.us", "primeira mensagem do historico", 1700000000),
		*textPayload("", "555@g.us", "sem id, deve ser pulada", 1700000001),
		*textPayload("H2", "555@g.us", "segunda mensagem do historico", 1700000002),
		*textPayload("H1", "555@g.us", "primeira mensagem do historico", 1700000000), // duplicate
	}

	processed, err := p.ProcessHistoryBatch(context.Background(), "main", batch)
	if err != nil {
		t.Fatalf("ProcessHistoryBatch() error = %v", err)
	}
	// Duplicates count as processed (handled without error); only the
	// malformed record is skipped.
	if processed != 3 {
		t.Errorf("processed = %d, want 3", processed)
	}
	events.Wait()
}

func TestIsGroupJID(t *testing.T) {
	t.Parallel()

	if !isGroupJID("12345-67890@g.us") {
		t.Error("isGroupJID() = false for group jid")
	}
	if isGroupJID("5511999@s.whatsapp.net") {
		t.Error("isGroupJID() = true for private jid")
	}
}
