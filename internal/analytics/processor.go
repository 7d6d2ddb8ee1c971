package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/brunosaraiva/zapinsight/internal/database"
	"github.com/brunosaraiva/zapinsight/internal/gateway"
)

// Message types that carry no analyzable human content.
const (
	typeProtocol = "protocolMessage"
	typeReaction = "reactionMessage"
)

// Processor normalizes inbound gateway payloads, persists them, and
// emits pipeline events for new messages.
type Processor struct {
	store            database.Store
	events           *Events
	minContentLength int
	logger           *slog.Logger
}

// NewProcessor creates a message processor.
func NewProcessor(store database.Store, events *Events, minContentLength int, logger *slog.Logger) *Processor {
	return &Processor{
		store:            store,
		events:           events,
		minContentLength: minContentLength,
		logger:           logger.With("component", "processor"),
	}
}

// ProcessInbound handles one messages.upsert payload. Duplicate
// message IDs are persisted idempotently: the stored row and the
// aggregate counters are unchanged and no events fire.
func (p *Processor) ProcessInbound(ctx context.Context, instance string, data *gateway.MessageData) error {
	msg, err := Normalize(data)
	if err != nil {
		return err
	}
	msg.Instance = instance

	if skip, reason := shouldSkip(data); skip {
		p.logger.DebugContext(ctx, "Skipping message", "message_id", msg.MessageID, "reason", reason)
		return nil
	}

	inserted, err := p.store.SaveMessage(ctx, msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if !inserted {
		p.logger.DebugContext(ctx, "Duplicate message, skipping analytics", "message_id", msg.MessageID)
		return nil
	}

	if err := p.store.UpsertParticipant(ctx, msg.SenderJID, msg.SenderName, msg.Timestamp); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	convType := "private"
	if isGroupJID(msg.ConversationJID) {
		convType = "group"
	}
	if err := p.store.UpsertConversation(ctx, msg.ConversationJID, "", convType, msg.Timestamp); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	p.events.EmitMessageSaved(ctx, MessageSavedEvent{Message: msg})

	if p.analyzable(msg) {
		p.events.EmitAnalyzeRequest(ctx, AnalyzeRequestEvent{Message: msg})
	}

	if convType == "group" && !msg.FromMe {
		p.events.EmitRelationshipUpdate(ctx, RelationshipUpdateEvent{
			ConversationJID: msg.ConversationJID,
			SenderJID:       msg.SenderJID,
			Timestamp:       msg.Timestamp,
		})
	}

	p.logger.InfoContext(ctx, "Message processed",
		"message_id", msg.MessageID, "conversation_jid", msg.ConversationJID, "type", msg.MessageType)
	return nil
}

// ProcessHistoryBatch imports a batch of historical messages. Errors
// on individual messages are logged and skipped so one bad record
// doesn't abort an import. Returns the number of newly stored
// messages.
func (p *Processor) ProcessHistoryBatch(ctx context.Context, instance string, batch []gateway.MessageData) (int, error) {
	processed := 0
	for i := range batch {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		before := batch[i].Key.ID
		if err := p.ProcessInbound(ctx, instance, &batch[i]); err != nil {
			p.logger.WarnContext(ctx, "Skipping history message", "message_id", before, "error", err)
			continue
		}
		processed++
	}

	p.logger.InfoContext(ctx, "History batch processed", "batch_size", len(batch), "processed", processed)
	return processed, nil
}

// analyzable reports whether the message has enough text to be worth
// an LLM sentiment call.
func (p *Processor) analyzable(msg *database.Message) bool {
	content := strings.TrimSpace(msg.Content)
	if strings.HasPrefix(content, "[") {
		// Media placeholder, not human text.
		return false
	}
	return utf8.RuneCountInString(content) >= p.minContentLength
}

// Normalize converts a raw gateway payload into a message record.
// Returns ErrMalformedPayload when required identity fields are
// missing.
func Normalize(data *gateway.MessageData) (*database.Message, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}
	if data.Key.ID == "" {
		return nil, fmt.Errorf("%w: missing message id", ErrMalformedPayload)
	}
	if data.Key.RemoteJID == "" {
		return nil, fmt.Errorf("%w: missing conversation jid", ErrMalformedPayload)
	}
	if data.MessageTimestamp <= 0 {
		return nil, fmt.Errorf("%w: missing timestamp", ErrMalformedPayload)
	}

	mediaType := extractMediaType(&data.Message)

	return &database.Message{
		MessageID:       data.Key.ID,
		ConversationJID: data.Key.RemoteJID,
		SenderJID:       extractSenderJID(data),
		SenderName:      data.PushName,
		FromMe:          data.Key.FromMe,
		MessageType:     data.MessageType,
		Content:         extractContent(&data.Message),
		HasMedia:        mediaType != "",
		MediaType:       mediaType,
		QuotedMessageID: extractQuotedMessageID(&data.Message),
		Timestamp:       data.MessageTimestamp,
	}, nil
}

func extractSenderJID(data *gateway.MessageData) string {
	// In groups the participant field carries the sender.
	if data.Key.Participant != "" {
		return data.Key.Participant
	}
	if data.Key.FromMe {
		return "me@whatsapp"
	}
	return data.Key.RemoteJID
}

func extractContent(msg *gateway.MessageContent) string {
	switch {
	case msg.Conversation != "":
		return msg.Conversation
	case msg.ExtendedTextMessage != nil && msg.ExtendedTextMessage.Text != "":
		return msg.ExtendedTextMessage.Text
	case msg.ImageMessage != nil && msg.ImageMessage.Caption != "":
		return msg.ImageMessage.Caption
	case msg.VideoMessage != nil && msg.VideoMessage.Caption != "":
		return msg.VideoMessage.Caption
	case msg.AudioMessage != nil:
		return "[audio]"
	case msg.DocumentMessage != nil:
		name := msg.DocumentMessage.FileName
		if name == "" {
			name = "document"
		}
		return fmt.Sprintf("[document: %s]", name)
	case msg.StickerMessage != nil:
		return "[sticker]"
	case msg.LocationMessage != nil:
		return fmt.Sprintf("[location: %f, %f]",
			msg.LocationMessage.DegreesLatitude, msg.LocationMessage.DegreesLongitude)
	case msg.ContactMessage != nil:
		return "[contact]"
	}
	return ""
}

func extractMediaType(msg *gateway.MessageContent) string {
	switch {
	case msg.ImageMessage != nil:
		return "image"
	case msg.VideoMessage != nil:
		return "video"
	case msg.AudioMessage != nil:
		return "audio"
	case msg.DocumentMessage != nil:
		return "document"
	case msg.StickerMessage != nil:
		return "sticker"
	}
	return ""
}

func extractQuotedMessageID(msg *gateway.MessageContent) string {
	if msg.ExtendedTextMessage != nil && msg.ExtendedTextMessage.ContextInfo != nil {
		return msg.ExtendedTextMessage.ContextInfo.StanzaID
	}
	return ""
}

// shouldSkip filters system message kinds. Content is optional:
// captionless media and unrecognized kinds still get a row.
func shouldSkip(data *gateway.MessageData) (bool, string) {
	switch data.MessageType {
	case typeProtocol:
		return true, "protocol message"
	case typeReaction:
		return true, "reaction message"
	}
	return false, ""
}

func isGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@g.us")
}
