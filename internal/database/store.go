package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveMessage inserts a message keyed by its gateway message ID.
	// Returns inserted=false when the ID was already stored; in that
	// case non-empty metadata fields are backfilled onto the existing
	// row and no aggregate counters should be bumped by the caller.
	SaveMessage(ctx context.Context, message *Message) (inserted bool, err error)

	// GetMessage retrieves a message by gateway message ID. Returns nil, nil if not found.
	GetMessage(ctx context.Context, messageID string) (*Message, error)

	// RecentMessages retrieves the most recent messages in a conversation.
	RecentMessages(ctx context.Context, conversationJID string, limit int) ([]*Message, error)

	// UpsertParticipant records a sender observation, incrementing the
	// participant's message count and advancing last_seen_at.
	UpsertParticipant(ctx context.Context, jid, name string, seenAt int64) error

	// UpsertConversation records a conversation observation.
	UpsertConversation(ctx context.Context, jid, name, convType string, messageAt int64) error

	// GetParticipant retrieves a participant by JID. Returns nil, nil if not found.
	GetParticipant(ctx context.Context, jid string) (*Participant, error)

	// ListParticipants retrieves participants ordered by message count.
	ListParticipants(ctx context.Context, limit int) ([]*Participant, error)

	// ListConversations retrieves conversations ordered by recency.
	ListConversations(ctx context.Context, limit int) ([]*Conversation, error)

	// SaveSentiment stores or replaces the sentiment verdict for a message.
	SaveSentiment(ctx context.Context, sentiment *MessageSentiment) error

	// GetSentiment retrieves the sentiment for a message. Returns nil, nil if not found.
	GetSentiment(ctx context.Context, messageID string) (*MessageSentiment, error)

	// SentimentProgression returns daily average sentiment scores for a
	// participant since the given time, oldest day first.
	SentimentProgression(ctx context.Context, participantJID string, since int64) ([]SentimentPoint, error)

	// CountAdjacentInteractions counts message pairs in shared
	// conversations where participants a and b posted within the given
	// window of each other.
	CountAdjacentInteractions(ctx context.Context, a, b string, window time.Duration, since int64) (int64, error)

	// PeersOf returns the distinct other senders active in the given
	// conversation since the given time.
	PeersOf(ctx context.Context, conversationJID, jid string, since int64, limit int) ([]string, error)

	// UpsertRelationship stores or replaces a relationship row. The
	// caller supplies the pair in canonical (a < b) order.
	UpsertRelationship(ctx context.Context, rel *ParticipantRelationship) error

	// StrongestRelationships retrieves relationships ordered by strength.
	StrongestRelationships(ctx context.Context, limit int) ([]*ParticipantRelationship, error)

	// RelationshipsByParticipant retrieves relationships involving the participant.
	RelationshipsByParticipant(ctx context.Context, jid string) ([]*ParticipantRelationship, error)

	// HourlyActivity buckets a participant's messages by hour of day.
	HourlyActivity(ctx context.Context, jid string, since int64) ([]HourCount, error)

	// ResponseTimeSamples returns the gaps, in seconds, between a
	// participant's quoted replies and the messages they quote. Gaps
	// above maxGap seconds, or non-positive ones, are discarded.
	ResponseTimeSamples(ctx context.Context, jid string, since, maxGap int64) ([]int64, error)

	// DailyMessageCounts buckets a participant's messages by calendar day.
	DailyMessageCounts(ctx context.Context, jid string, since int64) ([]DayCount, error)

	// ActiveParticipants returns JIDs of participants who sent messages
	// since the given time, most active first.
	ActiveParticipants(ctx context.Context, since int64, limit int) ([]string, error)

	// SaveBehaviorPattern stores or replaces a pattern, keyed by
	// (participant, pattern type). Observation counts accumulate.
	SaveBehaviorPattern(ctx context.Context, pattern *BehaviorPattern) error

	// PatternsByParticipant retrieves all detected patterns for a participant.
	PatternsByParticipant(ctx context.Context, jid string) ([]*BehaviorPattern, error)

	// InactivityCandidates compares each participant's trailing-week
	// volume against their trailing-month weekly average, as of now.
	InactivityCandidates(ctx context.Context, now int64) ([]InactivityCandidate, error)

	// NegativeBursts counts negative-sentiment messages per sender since
	// the given time.
	NegativeBursts(ctx context.Context, since int64) ([]NegativeBurst, error)

	// HasUnreadAlert reports whether an unread alert of the given type
	// already exists for the participant.
	HasUnreadAlert(ctx context.Context, alertType, participantJID string) (bool, error)

	// SaveAlert inserts a new alert.
	SaveAlert(ctx context.Context, alert *Alert) error

	// UnreadAlerts retrieves unread alerts, newest first.
	UnreadAlerts(ctx context.Context, limit int) ([]*Alert, error)

	// MarkAlertRead marks one alert as read. Returns false if no such alert exists.
	MarkAlertRead(ctx context.Context, id int64) (bool, error)

	// SaveInsight inserts a new insight, deactivating prior insights of
	// the same type for the same subject.
	SaveInsight(ctx context.Context, insight *Insight) error

	// ActiveInsights retrieves active insights, newest first.
	ActiveInsights(ctx context.Context, limit int) ([]*Insight, error)

	// DashboardMetrics assembles the aggregate overview counters.
	DashboardMetrics(ctx context.Context, now int64) (*DashboardMetrics, error)

	// RunMaintenance performs database maintenance tasks like VACUUM.
	RunMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveMessage inserts a message record, ignoring duplicates by
// message_id. Redeliveries backfill metadata the first delivery lacked.
func (s *sqlxStore) SaveMessage(ctx context.Context, message *Message) (bool, error) {
	if message == nil {
		return false, fmt.Errorf("cannot save nil message")
	}
	if message.MessageID == "" {
		return false, fmt.Errorf("message must have a non-empty message_id")
	}
	if message.ConversationJID == "" || message.SenderJID == "" {
		return false, fmt.Errorf("message must have conversation and sender JIDs")
	}
	if message.Timestamp == 0 {
		return false, fmt.Errorf("message must have a non-zero timestamp")
	}

	now := time.Now().UTC().Unix()
	message.CreatedAt = now
	message.UpdatedAt = now

	query := `
        INSERT OR IGNORE INTO messages (
            message_id, instance, conversation_jid, sender_jid, sender_name,
            message_type, content, timestamp, is_from_me, has_media,
            media_type, quoted_message_id, created_at, updated_at
        ) VALUES (
            :message_id, :instance, :conversation_jid, :sender_jid, :sender_name,
            :message_type, :content, :timestamp, :is_from_me, :has_media,
            :media_type, :quoted_message_id, :created_at, :updated_at
        );
    `

	result, err := s.db.NamedExecContext(ctx, query, message)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving message",
			"message_id", message.MessageID, "conversation_jid", message.ConversationJID, "error", err)
		return false, fmt.Errorf("failed to save message %s: %w", message.MessageID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check insert result for message %s: %w", message.MessageID, err)
	}

	if affected == 0 {
		// Duplicate delivery. Backfill metadata fields the stored row
		// may be missing, leaving counters untouched.
		backfill := `
            UPDATE messages SET
                sender_name = CASE WHEN sender_name = '' AND :sender_name != '' THEN :sender_name ELSE sender_name END,
                media_type = CASE WHEN media_type = '' AND :media_type != '' THEN :media_type ELSE media_type END,
                quoted_message_id = CASE WHEN quoted_message_id = '' AND :quoted_message_id != '' THEN :quoted_message_id ELSE quoted_message_id END,
                updated_at = :updated_at
            WHERE message_id = :message_id;
        `
		if _, err := s.db.NamedExecContext(ctx, backfill, message); err != nil {
			s.logger.WarnContext(ctx, "Failed to backfill duplicate message metadata",
				"message_id", message.MessageID, "error", err)
		}
		s.logger.DebugContext(ctx, "Duplicate message ignored", "message_id", message.MessageID)
		return false, nil
	}

	if id, err := result.LastInsertId(); err == nil {
		message.ID = id
	}

	s.logger.DebugContext(ctx, "Message saved",
		"message_id", message.MessageID, "conversation_jid", message.ConversationJID)
	return true, nil
}

func (s *sqlxStore) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	if messageID == "" {
		return nil, fmt.Errorf("message_id cannot be empty")
	}

	var message Message
	err := s.db.GetContext(ctx, &message, `SELECT * FROM messages WHERE message_id = ?`, messageID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}

	return &message, nil
}

func (s *sqlxStore) RecentMessages(ctx context.Context, conversationJID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 50
	} else if limit > 500 {
		limit = 500
	}

	var messages []*Message
	query := `
        SELECT * FROM messages
        WHERE conversation_jid = ?
        ORDER BY timestamp DESC, id DESC
        LIMIT ?;
    `
	if err := s.db.SelectContext(ctx, &messages, query, conversationJID, limit); err != nil {
		return nil, fmt.Errorf("failed to get recent messages for %s: %w", conversationJID, err)
	}
	return messages, nil
}

// UpsertParticipant records a sender observation. The name only
// overwrites a stored value when the incoming one is non-empty.
func (s *sqlxStore) UpsertParticipant(ctx context.Context, jid, name string, seenAt int64) error {
	if jid == "" {
		return fmt.Errorf("participant jid cannot be empty")
	}

	query := `
        INSERT INTO participants (jid, name, message_count, first_seen_at, last_seen_at)
        VALUES (?, ?, 1, ?, ?)
        ON CONFLICT(jid) DO UPDATE SET
            message_count = message_count + 1,
            last_seen_at = MAX(last_seen_at, excluded.last_seen_at),
            name = CASE WHEN excluded.name != '' THEN excluded.name ELSE name END;
    `
	if _, err := s.db.ExecContext(ctx, query, jid, name, seenAt, seenAt); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting participant", "jid", jid, "error", err)
		return fmt.Errorf("failed to upsert participant %s: %w", jid, err)
	}
	return nil
}

func (s *sqlxStore) UpsertConversation(ctx context.Context, jid, name, convType string, messageAt int64) error {
	if jid == "" {
		return fmt.Errorf("conversation jid cannot be empty")
	}

	query := `
        INSERT INTO conversations (jid, name, type, message_count, last_message_at)
        VALUES (?, ?, ?, 1, ?)
        ON CONFLICT(jid) DO UPDATE SET
            message_count = message_count + 1,
            last_message_at = MAX(last_message_at, excluded.last_message_at),
            name = CASE WHEN excluded.name != '' THEN excluded.name ELSE name END;
    `
	if _, err := s.db.ExecContext(ctx, query, jid, name, convType, messageAt); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting conversation", "jid", jid, "error", err)
		return fmt.Errorf("failed to upsert conversation %s: %w", jid, err)
	}
	return nil
}

func (s *sqlxStore) GetParticipant(ctx context.Context, jid string) (*Participant, error) {
	if jid == "" {
		return nil, fmt.Errorf("participant jid cannot be empty")
	}

	var participant Participant
	err := s.db.GetContext(ctx, &participant, `SELECT * FROM participants WHERE jid = ?`, jid)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get participant %s: %w", jid, err)
	}

	return &participant, nil
}

func (s *sqlxStore) ListParticipants(ctx context.Context, limit int) ([]*Participant, error) {
	if limit <= 0 {
		limit = 100
	}

	var participants []*Participant
	query := `SELECT * FROM participants ORDER BY message_count DESC, jid ASC LIMIT ?;`
	if err := s.db.SelectContext(ctx, &participants, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return participants, nil
}

func (s *sqlxStore) ListConversations(ctx context.Context, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 100
	}

	var conversations []*Conversation
	query := `SELECT * FROM conversations ORDER BY last_message_at DESC, jid ASC LIMIT ?;`
	if err := s.db.SelectContext(ctx, &conversations, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return conversations, nil
}

func (s *sqlxStore) SaveSentiment(ctx context.Context, sentiment *MessageSentiment) error {
	if sentiment == nil {
		return fmt.Errorf("cannot save nil sentiment")
	}
	if sentiment.MessageID == "" {
		return fmt.Errorf("sentiment must reference a message_id")
	}

	query := `
        INSERT INTO message_sentiment (message_id, sentiment_label, sentiment_score, emotions, confidence, model_used, analyzed_at)
        VALUES (:message_id, :sentiment_label, :sentiment_score, :emotions, :confidence, :model_used, :analyzed_at)
        ON CONFLICT(message_id) DO UPDATE SET
            sentiment_label = excluded.sentiment_label,
            sentiment_score = excluded.sentiment_score,
            emotions = excluded.emotions,
            confidence = excluded.confidence,
            model_used = excluded.model_used,
            analyzed_at = excluded.analyzed_at;
    `
	if _, err := s.db.NamedExecContext(ctx, query, sentiment); err != nil {
		s.logger.ErrorContext(ctx, "Error saving sentiment", "message_id", sentiment.MessageID, "error", err)
		return fmt.Errorf("failed to save sentiment for message %s: %w", sentiment.MessageID, err)
	}
	return nil
}

func (s *sqlxStore) GetSentiment(ctx context.Context, messageID string) (*MessageSentiment, error) {
	if messageID == "" {
		return nil, fmt.Errorf("message_id cannot be empty")
	}

	var sentiment MessageSentiment
	err := s.db.GetContext(ctx, &sentiment, `SELECT * FROM message_sentiment WHERE message_id = ?`, messageID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get sentiment for message %s: %w", messageID, err)
	}

	return &sentiment, nil
}

func (s *sqlxStore) SentimentProgression(ctx context.Context, participantJID string, since int64) ([]SentimentPoint, error) {
	var points []SentimentPoint
	query := `
        SELECT strftime('%Y-%m-%d', m.timestamp, 'unixepoch') AS day,
               AVG(ms.sentiment_score) AS avg_score,
               COUNT(*) AS count
        FROM message_sentiment ms
        JOIN messages m ON m.message_id = ms.message_id
        WHERE m.sender_jid = ? AND m.timestamp >= ?
        GROUP BY day
        ORDER BY day ASC;
    `
	if err := s.db.SelectContext(ctx, &points, query, participantJID, since); err != nil {
		return nil, fmt.Errorf("failed to get sentiment progression for %s: %w", participantJID, err)
	}
	return points, nil
}

func (s *sqlxStore) CountAdjacentInteractions(ctx context.Context, a, b string, window time.Duration, since int64) (int64, error) {
	var count int64
	query := `
        SELECT COUNT(*)
        FROM messages m1
        JOIN messages m2 ON m1.conversation_jid = m2.conversation_jid
        WHERE m1.sender_jid = ? AND m2.sender_jid = ?
          AND m1.timestamp >= ? AND m2.timestamp >= ?
          AND ABS(m1.timestamp - m2.timestamp) <= ?;
    `
	windowSecs := int64(window.Seconds())
	if err := s.db.GetContext(ctx, &count, query, a, b, since, since, windowSecs); err != nil {
		return 0, fmt.Errorf("failed to count interactions between %s and %s: %w", a, b, err)
	}
	return count, nil
}

func (s *sqlxStore) PeersOf(ctx context.Context, conversationJID, jid string, since int64, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}

	var peers []string
	query := `
        SELECT DISTINCT sender_jid
        FROM messages
        WHERE conversation_jid = ? AND sender_jid != ?
          AND timestamp >= ?
        LIMIT ?;
    `
	if err := s.db.SelectContext(ctx, &peers, query, conversationJID, jid, since, limit); err != nil {
		return nil, fmt.Errorf("failed to get peers of %s in %s: %w", jid, conversationJID, err)
	}
	return peers, nil
}

func (s *sqlxStore) UpsertRelationship(ctx context.Context, rel *ParticipantRelationship) error {
	if rel == nil {
		return fmt.Errorf("cannot save nil relationship")
	}
	if rel.ParticipantAJID == "" || rel.ParticipantBJID == "" {
		return fmt.Errorf("relationship must reference two participants")
	}
	if rel.ParticipantAJID >= rel.ParticipantBJID {
		return fmt.Errorf("relationship pair must be in canonical order: %s >= %s",
			rel.ParticipantAJID, rel.ParticipantBJID)
	}

	query := `
        INSERT INTO participant_relationships (
            participant_a_jid, participant_b_jid, relationship_strength,
            total_interactions, last_interaction_at, updated_at
        ) VALUES (
            :participant_a_jid, :participant_b_jid, :relationship_strength,
            :total_interactions, :last_interaction_at, :updated_at
        )
        ON CONFLICT(participant_a_jid, participant_b_jid) DO UPDATE SET
            relationship_strength = excluded.relationship_strength,
            total_interactions = excluded.total_interactions,
            last_interaction_at = excluded.last_interaction_at,
            updated_at = excluded.updated_at;
    `
	if _, err := s.db.NamedExecContext(ctx, query, rel); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting relationship",
			"participant_a", rel.ParticipantAJID, "participant_b", rel.ParticipantBJID, "error", err)
		return fmt.Errorf("failed to upsert relationship %s/%s: %w",
			rel.ParticipantAJID, rel.ParticipantBJID, err)
	}
	return nil
}

func (s *sqlxStore) StrongestRelationships(ctx context.Context, limit int) ([]*ParticipantRelationship, error) {
	if limit <= 0 {
		limit = 20
	}

	var rels []*ParticipantRelationship
	query := `
        SELECT * FROM participant_relationships
        ORDER BY relationship_strength DESC, total_interactions DESC
        LIMIT ?;
    `
	if err := s.db.SelectContext(ctx, &rels, query, limit); err != nil {
		return nil, fmt.Errorf("failed to get strongest relationships: %w", err)
	}
	return rels, nil
}

func (s *sqlxStore) RelationshipsByParticipant(ctx context.Context, jid string) ([]*ParticipantRelationship, error) {
	var rels []*ParticipantRelationship
	query := `
        SELECT * FROM participant_relationships
        WHERE participant_a_jid = ? OR participant_b_jid = ?
        ORDER BY relationship_strength DESC;
    `
	if err := s.db.SelectContext(ctx, &rels, query, jid, jid); err != nil {
		return nil, fmt.Errorf("failed to get relationships for %s: %w", jid, err)
	}
	return rels, nil
}

func (s *sqlxStore) HourlyActivity(ctx context.Context, jid string, since int64) ([]HourCount, error) {
	var hours []HourCount
	query := `
        SELECT CAST(strftime('%H', timestamp, 'unixepoch') AS INTEGER) AS hour,
               COUNT(*) AS count
        FROM messages
        WHERE sender_jid = ? AND timestamp >= ?
        GROUP BY hour
        ORDER BY hour ASC;
    `
	if err := s.db.SelectContext(ctx, &hours, query, jid, since); err != nil {
		return nil, fmt.Errorf("failed to get hourly activity for %s: %w", jid, err)
	}
	return hours, nil
}

func (s *sqlxStore) ResponseTimeSamples(ctx context.Context, jid string, since, maxGap int64) ([]int64, error) {
	var samples []int64
	query := `
        SELECT m2.timestamp - m1.timestamp AS delta
        FROM messages m2
        JOIN messages m1 ON m2.quoted_message_id = m1.message_id
        WHERE m2.sender_jid = ?
          AND m1.timestamp >= ?
          AND m2.timestamp - m1.timestamp > 0
          AND m2.timestamp - m1.timestamp <= ?
        ORDER BY m2.timestamp ASC;
    `
	if err := s.db.SelectContext(ctx, &samples, query, jid, since, maxGap); err != nil {
		return nil, fmt.Errorf("failed to get response time samples for %s: %w", jid, err)
	}
	return samples, nil
}

func (s *sqlxStore) DailyMessageCounts(ctx context.Context, jid string, since int64) ([]DayCount, error) {
	var days []DayCount
	query := `
        SELECT strftime('%Y-%m-%d', timestamp, 'unixepoch') AS day,
               COUNT(*) AS count
        FROM messages
        WHERE sender_jid = ? AND timestamp >= ?
        GROUP BY day
        ORDER BY day ASC;
    `
	if err := s.db.SelectContext(ctx, &days, query, jid, since); err != nil {
		return nil, fmt.Errorf("failed to get daily message counts for %s: %w", jid, err)
	}
	return days, nil
}

func (s *sqlxStore) ActiveParticipants(ctx context.Context, since int64, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}

	var jids []string
	query := `
        SELECT sender_jid
        FROM messages
        WHERE timestamp >= ?
        GROUP BY sender_jid
        ORDER BY COUNT(*) DESC, sender_jid ASC
        LIMIT ?;
    `
	if err := s.db.SelectContext(ctx, &jids, query, since, limit); err != nil {
		return nil, fmt.Errorf("failed to get active participants: %w", err)
	}
	return jids, nil
}

func (s *sqlxStore) SaveBehaviorPattern(ctx context.Context, pattern *BehaviorPattern) error {
	if pattern == nil {
		return fmt.Errorf("cannot save nil pattern")
	}
	if pattern.ParticipantJID == "" || pattern.PatternType == "" {
		return fmt.Errorf("pattern must have a participant and a type")
	}

	query := `
        INSERT INTO behavior_patterns (
            participant_jid, pattern_type, pattern_name, pattern_data,
            confidence, observation_count, detected_at, last_observed_at
        ) VALUES (
            :participant_jid, :pattern_type, :pattern_name, :pattern_data,
            :confidence, :observation_count, :detected_at, :last_observed_at
        )
        ON CONFLICT(participant_jid, pattern_type) DO UPDATE SET
            pattern_name = excluded.pattern_name,
            pattern_data = excluded.pattern_data,
            confidence = excluded.confidence,
            observation_count = observation_count + 1,
            last_observed_at = excluded.last_observed_at;
    `
	if _, err := s.db.NamedExecContext(ctx, query, pattern); err != nil {
		s.logger.ErrorContext(ctx, "Error saving behavior pattern",
			"participant_jid", pattern.ParticipantJID, "pattern_type", pattern.PatternType, "error", err)
		return fmt.Errorf("failed to save pattern %s for %s: %w",
			pattern.PatternType, pattern.ParticipantJID, err)
	}
	return nil
}

func (s *sqlxStore) PatternsByParticipant(ctx context.Context, jid string) ([]*BehaviorPattern, error) {
	var patterns []*BehaviorPattern
	query := `
        SELECT * FROM behavior_patterns
        WHERE participant_jid = ?
        ORDER BY pattern_type ASC;
    `
	if err := s.db.SelectContext(ctx, &patterns, query, jid); err != nil {
		return nil, fmt.Errorf("failed to get patterns for %s: %w", jid, err)
	}
	return patterns, nil
}

func (s *sqlxStore) InactivityCandidates(ctx context.Context, now int64) ([]InactivityCandidate, error) {
	weekAgo := now - 7*24*3600
	monthAgo := now - 30*24*3600

	var candidates []InactivityCandidate
	query := `
        SELECT p.jid AS jid,
               p.name AS name,
               SUM(CASE WHEN m.timestamp >= ? THEN 1 ELSE 0 END) AS recent_count,
               CAST(COUNT(*) AS REAL) / (30.0 / 7.0) AS weekly_avg
        FROM participants p
        JOIN messages m ON m.sender_jid = p.jid
        WHERE m.timestamp >= ? AND m.is_from_me = 0
        GROUP BY p.jid, p.name;
    `
	if err := s.db.SelectContext(ctx, &candidates, query, weekAgo, monthAgo); err != nil {
		return nil, fmt.Errorf("failed to get inactivity candidates: %w", err)
	}
	return candidates, nil
}

func (s *sqlxStore) NegativeBursts(ctx context.Context, since int64) ([]NegativeBurst, error) {
	var bursts []NegativeBurst
	query := `
        SELECT m.sender_jid AS jid,
               COUNT(*) AS negative_count
        FROM message_sentiment ms
        JOIN messages m ON m.message_id = ms.message_id
        WHERE ms.sentiment_label = 'negative' AND m.timestamp >= ?
        GROUP BY m.sender_jid;
    `
	if err := s.db.SelectContext(ctx, &bursts, query, since); err != nil {
		return nil, fmt.Errorf("failed to get negative bursts: %w", err)
	}
	return bursts, nil
}

func (s *sqlxStore) HasUnreadAlert(ctx context.Context, alertType, participantJID string) (bool, error) {
	var count int64
	query := `
        SELECT COUNT(*) FROM alerts
        WHERE alert_type = ? AND participant_jid = ? AND is_read = 0;
    `
	if err := s.db.GetContext(ctx, &count, query, alertType, participantJID); err != nil {
		return false, fmt.Errorf("failed to check unread alerts for %s: %w", participantJID, err)
	}
	return count > 0, nil
}

func (s *sqlxStore) SaveAlert(ctx context.Context, alert *Alert) error {
	if alert == nil {
		return fmt.Errorf("cannot save nil alert")
	}

	query := `
        INSERT INTO alerts (alert_type, severity, participant_jid, conversation_jid, message, is_read, triggered_at)
        VALUES (:alert_type, :severity, :participant_jid, :conversation_jid, :message, 0, :triggered_at);
    `
	result, err := s.db.NamedExecContext(ctx, query, alert)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving alert", "alert_type", alert.AlertType, "error", err)
		return fmt.Errorf("failed to save %s alert: %w", alert.AlertType, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		alert.ID = id
	}
	return nil
}

func (s *sqlxStore) UnreadAlerts(ctx context.Context, limit int) ([]*Alert, error) {
	if limit <= 0 {
		limit = 50
	}

	var alerts []*Alert
	query := `
        SELECT * FROM alerts
        WHERE is_read = 0
        ORDER BY triggered_at DESC, id DESC
        LIMIT ?;
    `
	if err := s.db.SelectContext(ctx, &alerts, query, limit); err != nil {
		return nil, fmt.Errorf("failed to get unread alerts: %w", err)
	}
	return alerts, nil
}

func (s *sqlxStore) MarkAlertRead(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE alerts SET is_read = 1 WHERE id = ? AND is_read = 0`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark alert %d as read: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check update result for alert %d: %w", id, err)
	}
	return affected > 0, nil
}

// SaveInsight stores a new insight. Older active insights of the same
// type for the same subject are deactivated in the same transaction so
// the dashboard shows one current insight per type and subject.
func (s *sqlxStore) SaveInsight(ctx context.Context, insight *Insight) error {
	if insight == nil {
		return fmt.Errorf("cannot save nil insight")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	deactivate := `
        UPDATE ai_insights SET is_active = 0
        WHERE insight_type = ? AND subject_type = ? AND subject_id = ? AND is_active = 1;
    `
	if _, err := tx.ExecContext(ctx, deactivate, insight.InsightType, insight.SubjectType, insight.SubjectID); err != nil {
		return fmt.Errorf("failed to deactivate prior insights: %w", err)
	}

	insert := `
        INSERT INTO ai_insights (
            insight_type, subject_type, subject_id, title, description,
            severity, confidence, supporting_data, is_active, detected_at
        ) VALUES (
            :insight_type, :subject_type, :subject_id, :title, :description,
            :severity, :confidence, :supporting_data, 1, :detected_at
        );
    `
	result, err := tx.NamedExecContext(ctx, insert, insight)
	if err != nil {
		return fmt.Errorf("failed to save insight: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	if id, err := result.LastInsertId(); err == nil {
		insight.ID = id
	}
	return nil
}

func (s *sqlxStore) ActiveInsights(ctx context.Context, limit int) ([]*Insight, error) {
	if limit <= 0 {
		limit = 50
	}

	var insights []*Insight
	query := `
        SELECT * FROM ai_insights
        WHERE is_active = 1
        ORDER BY detected_at DESC, id DESC
        LIMIT ?;
    `
	if err := s.db.SelectContext(ctx, &insights, query, limit); err != nil {
		return nil, fmt.Errorf("failed to get active insights: %w", err)
	}
	return insights, nil
}

func (s *sqlxStore) DashboardMetrics(ctx context.Context, now int64) (*DashboardMetrics, error) {
	dayAgo := now - 24*3600

	var metrics DashboardMetrics
	query := `
        SELECT
            (SELECT COUNT(*) FROM messages) AS total_messages,
            (SELECT COUNT(*) FROM participants) AS total_participants,
            (SELECT COUNT(*) FROM conversations) AS total_conversations,
            (SELECT COUNT(*) FROM messages WHERE timestamp >= ?) AS messages_today,
            (SELECT COUNT(*) FROM alerts WHERE is_read = 0) AS unread_alerts,
            (SELECT COUNT(*) FROM message_sentiment) AS analyzed_messages;
    `
	if err := s.db.GetContext(ctx, &metrics, query, dayAgo); err != nil {
		return nil, fmt.Errorf("failed to assemble dashboard metrics: %w", err)
	}
	return &metrics, nil
}

// RunMaintenance executes a VACUUM command on the SQLite database.
// VACUUM must run outside a transaction in SQLite.
func (s *sqlxStore) RunMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	return nil
}
