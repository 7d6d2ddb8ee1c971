package database

// Timestamps are stored as Unix epoch seconds throughout. That keeps
// SQLite aggregate queries (strftime bucketing, windowed counts)
// simple and avoids driver-dependent time parsing.

// Message is a normalized WhatsApp message.
type Message struct {
	ID        int64 `db:"id"`
	CreatedAt int64 `db:"created_at"`
	UpdatedAt int64 `db:"updated_at"`

	MessageID       string `db:"message_id"`
	Instance        string `db:"instance"`
	ConversationJID string `db:"conversation_jid"`
	SenderJID       string `db:"sender_jid"`
	SenderName      string `db:"sender_name"`
	FromMe          bool   `db:"is_from_me"`
	MessageType     string `db:"message_type"`
	Content         string `db:"content"`
	HasMedia        bool   `db:"has_media"`
	MediaType       string `db:"media_type"`
	QuotedMessageID string `db:"quoted_message_id"`
	Timestamp       int64  `db:"timestamp"`
}

// Participant is a WhatsApp account observed as a message sender.
type Participant struct {
	ID           int64  `db:"id"`
	JID          string `db:"jid"`
	Name         string `db:"name"`
	MessageCount int64  `db:"message_count"`
	FirstSeenAt  int64  `db:"first_seen_at"`
	LastSeenAt   int64  `db:"last_seen_at"`
}

// Conversation is a chat (group or private) messages arrive in.
type Conversation struct {
	ID            int64  `db:"id"`
	JID           string `db:"jid"`
	Name          string `db:"name"`
	Type          string `db:"type"`
	MessageCount  int64  `db:"message_count"`
	LastMessageAt int64  `db:"last_message_at"`
}

// MessageSentiment is the LLM sentiment verdict for one message.
type MessageSentiment struct {
	ID         int64   `db:"id"`
	MessageID  string  `db:"message_id"`
	Label      string  `db:"sentiment_label"`
	Score      float64 `db:"sentiment_score"`
	Emotions   string  `db:"emotions"` // JSON object of emotion scores
	Confidence float64 `db:"confidence"`
	ModelUsed  string  `db:"model_used"`
	AnalyzedAt int64   `db:"analyzed_at"`
}

// ParticipantRelationship records interaction strength between a
// canonical pair of participants (A < B lexicographically).
type ParticipantRelationship struct {
	ID                int64   `db:"id"`
	ParticipantAJID   string  `db:"participant_a_jid"`
	ParticipantBJID   string  `db:"participant_b_jid"`
	Strength          float64 `db:"relationship_strength"`
	TotalInteractions int64   `db:"total_interactions"`
	LastInteractionAt int64   `db:"last_interaction_at"`
	UpdatedAt         int64   `db:"updated_at"`
}

// BehaviorPattern is one detected pattern for a participant, unique
// per (participant, pattern type).
type BehaviorPattern struct {
	ID               int64   `db:"id"`
	ParticipantJID   string  `db:"participant_jid"`
	PatternType      string  `db:"pattern_type"`
	PatternName      string  `db:"pattern_name"`
	PatternData      string  `db:"pattern_data"` // JSON detector payload
	Confidence       float64 `db:"confidence"`
	ObservationCount int64   `db:"observation_count"`
	DetectedAt       int64   `db:"detected_at"`
	LastObservedAt   int64   `db:"last_observed_at"`
}

// Alert is a triggered notification awaiting review.
type Alert struct {
	ID              int64  `db:"id"`
	AlertType       string `db:"alert_type"`
	Severity        string `db:"severity"`
	ParticipantJID  string `db:"participant_jid"`
	ConversationJID string `db:"conversation_jid"`
	Message         string `db:"message"`
	IsRead          bool   `db:"is_read"`
	TriggeredAt     int64  `db:"triggered_at"`
}

// Insight is an LLM-generated observation about a participant or
// conversation.
type Insight struct {
	ID             int64   `db:"id"`
	InsightType    string  `db:"insight_type"`
	SubjectType    string  `db:"subject_type"`
	SubjectID      string  `db:"subject_id"`
	Title          string  `db:"title"`
	Description    string  `db:"description"`
	Severity       string  `db:"severity"`
	Confidence     float64 `db:"confidence"`
	SupportingData string  `db:"supporting_data"`
	IsActive       bool    `db:"is_active"`
	DetectedAt     int64   `db:"detected_at"`
}

// SentimentPoint is one day's average sentiment score for a
// participant.
type SentimentPoint struct {
	Day      string  `db:"day"`
	AvgScore float64 `db:"avg_score"`
	Count    int64   `db:"count"`
}

// HourCount is the number of messages a participant sent during one
// hour of day (0-23) over the observation window.
type HourCount struct {
	Hour  int   `db:"hour"`
	Count int64 `db:"count"`
}

// DayCount is the number of messages sent on one calendar day.
type DayCount struct {
	Day   string `db:"day"`
	Count int64  `db:"count"`
}

// SenderEvent is a (sender, timestamp) pair from a conversation's
// recent history, ordered by time.
type SenderEvent struct {
	SenderJID string `db:"sender_jid"`
	Timestamp int64  `db:"timestamp"`
}

// InactivityCandidate compares a participant's recent weekly volume
// against their monthly weekly average.
type InactivityCandidate struct {
	JID         string  `db:"jid"`
	Name        string  `db:"name"`
	RecentCount int64   `db:"recent_count"`
	WeeklyAvg   float64 `db:"weekly_avg"`
}

// NegativeBurst counts a participant's recent negative-sentiment
// messages.
type NegativeBurst struct {
	JID           string `db:"jid"`
	NegativeCount int64  `db:"negative_count"`
}

// DashboardMetrics is the aggregate snapshot served by the overview
// endpoint.
type DashboardMetrics struct {
	TotalMessages      int64 `db:"total_messages"`
	TotalParticipants  int64 `db:"total_participants"`
	TotalConversations int64 `db:"total_conversations"`
	MessagesToday      int64 `db:"messages_today"`
	UnreadAlerts       int64 `db:"unread_alerts"`
	AnalyzedMessages   int64 `db:"analyzed_messages"`
}
