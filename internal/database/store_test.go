// Package database_test tests the store against a real SQLite file.
package database_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/brunosaraiva/zapinsight/internal/database"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, nil)
}

func testMessage(messageID, senderJID string, timestamp int64) *database.Message {
	return &database.Message{
		MessageID:       messageID,
		Instance:        "main",
		ConversationJID: "555@g.us",
		SenderJID:       senderJID,
		SenderName:      "Bruno",
		MessageType:     "conversation",
		Content:         "bom dia pessoal",
		Timestamp:       timestamp,
	}
}

func TestSaveMessageIdempotency(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	msg := testMessage("MSG-1", "alice@s.whatsapp.net", 1700000000)
	inserted, err := store.SaveMessage(ctx, msg)
	if err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}
	if !inserted {
		t.Fatal("first SaveMessage() inserted = false, want true")
	}

	dup := testMessage("MSG-1", "alice@s.whatsapp.net", 1700000000)
	dup.Content = "different content should not overwrite"
	inserted, err = store.SaveMessage(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate SaveMessage() error = %v", err)
	}
	if inserted {
		t.Fatal("duplicate SaveMessage() inserted = true, want false")
	}

	stored, err := store.GetMessage(ctx, "MSG-1")
	if err != nil {
		t.Fatalf("GetMessage() error = %v", err)
	}
	if stored == nil {
		t.Fatal("GetMessage() = nil, want stored message")
	}
	if stored.Content != "bom dia pessoal" {
		t.Errorf("duplicate delivery overwrote content: got %q", stored.Content)
	}
}

func TestSaveMessageBackfillsMetadata(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	first := testMessage("MSG-2", "alice@s.whatsapp.net", 1700000000)
	first.SenderName = ""
	first.QuotedMessageID = ""
	if _, err := store.SaveMessage(ctx, first); err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}

	redelivery := testMessage("MSG-2", "alice@s.whatsapp.net", 1700000000)
	redelivery.SenderName = "Alice"
	redelivery.QuotedMessageID = "MSG-0"
	if _, err := store.SaveMessage(ctx, redelivery); err != nil {
		t.Fatalf("redelivery SaveMessage() error = %v", err)
	}

	stored, err := store.GetMessage(ctx, "MSG-2")
	if err != nil {
		t.Fatalf("GetMessage() error = %v", err)
	}
	if stored.SenderName != "Alice" {
		t.Errorf("sender_name = %q, want backfilled %q", stored.SenderName, "Alice")
	}
	if stored.QuotedMessageID != "MSG-0" {
		t.Errorf("quoted_message_id = %q, want backfilled %q", stored.QuotedMessageID, "MSG-0")
	}
}

func TestSaveMessageValidation(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		msg  *database.Message
	}{
		{name: "nil message", msg: nil},
		{name: "missing message_id", msg: &database.Message{ConversationJID: "a@g.us", SenderJID: "b", Timestamp: 1}},
		{name: "missing jids", msg: &database.Message{MessageID: "X", Timestamp: 1}},
		{name: "missing timestamp", msg: &database.Message{MessageID: "X", ConversationJID: "a@g.us", SenderJID: "b"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := store.SaveMessage(ctx, tc.msg); err == nil {
				t.Error("SaveMessage() error = nil, want validation error")
			}
		})
	}
}

func TestUpsertParticipant(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertParticipant(ctx, "alice@s.whatsapp.net", "Alice", 100); err != nil {
		t.Fatalf("UpsertParticipant() error = %v", err)
	}
	if err := store.UpsertParticipant(ctx, "alice@s.whatsapp.net", "", 200); err != nil {
		t.Fatalf("UpsertParticipant() error = %v", err)
	}
	// Out-of-order delivery must not rewind last_seen_at.
	if err := store.UpsertParticipant(ctx, "alice@s.whatsapp.net", "Alice B", 150); err != nil {
		t.Fatalf("UpsertParticipant() error = %v", err)
	}

	p, err := store.GetParticipant(ctx, "alice@s.whatsapp.net")
	if err != nil {
		t.Fatalf("GetParticipant() error = %v", err)
	}
	if p == nil {
		t.Fatal("GetParticipant() = nil, want participant")
	}
	if p.MessageCount != 3 {
		t.Errorf("message_count = %d, want 3", p.MessageCount)
	}
	if p.LastSeenAt != 200 {
		t.Errorf("last_seen_at = %d, want 200", p.LastSeenAt)
	}
	if p.FirstSeenAt != 100 {
		t.Errorf("first_seen_at = %d, want 100", p.FirstSeenAt)
	}
	if p.Name != "Alice B" {
		t.Errorf("name = %q, want %q (empty names never overwrite)", p.Name, "Alice B")
	}
}

func TestGetParticipantNotFound(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	p, err := store.GetParticipant(context.Background(), "nobody@s.whatsapp.net")
	if err != nil {
		t.Fatalf("GetParticipant() error = %v", err)
	}
	if p != nil {
		t.Errorf("GetParticipant() = %+v, want nil for unknown jid", p)
	}
}

func TestUpsertConversation(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertConversation(ctx, "555@g.us", "Familia", "group", 100); err != nil {
		t.Fatalf("UpsertConversation() error = %v", err)
	}
	if err := store.UpsertConversation(ctx, "555@g.us", "", "group", 300); err != nil {
		t.Fatalf("UpsertConversation() error = %v", err)
	}

	conversations, err := store.ListConversations(ctx, 10)
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	if len(conversations) != 1 {
		t.Fatalf("len(conversations) = %d, want 1", len(conversations))
	}
	c := conversations[0]
	if c.MessageCount != 2 {
		t.Errorf("message_count = %d, want 2", c.MessageCount)
	}
	if c.LastMessageAt != 300 {
		t.Errorf("last_message_at = %d, want 300", c.LastMessageAt)
	}
	if c.Name != "Familia" {
		t.Errorf("name = %q, want %q", c.Name, "Familia")
	}
	if c.Type != "group" {
		t.Errorf("type = %q, want group", c.Type)
	}
}

func TestSaveSentimentUpsert(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	first := &database.MessageSentiment{
		MessageID:  "MSG-1",
		Label:      "positive",
		Score:      0.8,
		Emotions:   `{"joy":0.9}`,
		Confidence: 0.9,
		ModelUsed:  "gemini-2.0-flash",
		AnalyzedAt: 1700000000,
	}
	if err := store.SaveSentiment(ctx, first); err != nil {
		t.Fatalf("SaveSentiment() error = %v", err)
	}

	second := &database.MessageSentiment{
		MessageID:  "MSG-1",
		Label:      "negative",
		Score:      -0.4,
		Emotions:   `{"anger":0.7}`,
		Confidence: 0.8,
		ModelUsed:  "gemini-2.0-flash",
		AnalyzedAt: 1700000100,
	}
	if err := store.SaveSentiment(ctx, second); err != nil {
		t.Fatalf("SaveSentiment() reanalysis error = %v", err)
	}

	stored, err := store.GetSentiment(ctx, "MSG-1")
	if err != nil {
		t.Fatalf("GetSentiment() error = %v", err)
	}
	if stored == nil {
		t.Fatal("GetSentiment() = nil, want stored verdict")
	}
	if stored.Label != "negative" || stored.Score != -0.4 {
		t.Errorf("reanalysis not applied: label = %q, score = %v", stored.Label, stored.Score)
	}
}

func TestUpsertRelationshipCanonicalOrder(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	err := store.UpsertRelationship(ctx, &database.ParticipantRelationship{
		ParticipantAJID: "zed@s.whatsapp.net",
		ParticipantBJID: "alice@s.whatsapp.net",
		Strength:        0.5,
	})
	if err == nil {
		t.Fatal("UpsertRelationship() with a > b: error = nil, want canonical order error")
	}

	rel := &database.ParticipantRelationship{
		ParticipantAJID:   "alice@s.whatsapp.net",
		ParticipantBJID:   "zed@s.whatsapp.net",
		Strength:          0.5,
		TotalInteractions: 25,
		LastInteractionAt: 1700000000,
		UpdatedAt:         1700000000,
	}
	if err := store.UpsertRelationship(ctx, rel); err != nil {
		t.Fatalf("UpsertRelationship() error = %v", err)
	}

	rel.Strength = 0.7
	rel.TotalInteractions = 35
	if err := store.UpsertRelationship(ctx, rel); err != nil {
		t.Fatalf("UpsertRelationship() update error = %v", err)
	}

	rels, err := store.StrongestRelationships(ctx, 10)
	if err != nil {
		t.Fatalf("StrongestRelationships() error = %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("len(rels) = %d, want 1 (updates must not create new rows)", len(rels))
	}
	if rels[0].Strength != 0.7 || rels[0].TotalInteractions != 35 {
		t.Errorf("relationship not updated: %+v", rels[0])
	}
}

func TestResponseTimeSamples(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	base := int64(1700000000)
	seed := []*database.Message{
		testMessage("Q-1", "alice@s.whatsapp.net", base),
		testMessage("Q-2", "alice@s.whatsapp.net", base+1000),
		testMessage("Q-3", "alice@s.whatsapp.net", base+2000),
	}
	replies := []*database.Message{
		testMessage("R-1", "bob@s.whatsapp.net", base+10),
		testMessage("R-2", "bob@s.whatsapp.net", base+1030),
		testMessage("R-3", "bob@s.whatsapp.net", base+2000+90000), // over a day late
	}
	replies[0].QuotedMessageID = "Q-1"
	replies[1].QuotedMessageID = "Q-2"
	replies[2].QuotedMessageID = "Q-3"

	for _, m := range append(seed, replies...) {
		if _, err := store.SaveMessage(ctx, m); err != nil {
			t.Fatalf("SaveMessage(%s) error = %v", m.MessageID, err)
		}
	}

	samples, err := store.ResponseTimeSamples(ctx, "bob@s.whatsapp.net", base-1, 86400)
	if err != nil {
		t.Fatalf("ResponseTimeSamples() error = %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("len(samples) = %d, want 2 (gap above maxGap discarded)", len(samples))
	}
	if samples[0] != 10 || samples[1] != 30 {
		t.Errorf("samples = %v, want [10 30]", samples)
	}
}

func TestHourlyActivityAndDailyCounts(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	// 2023-11-14 22:13:20 UTC.
	base := int64(1700000000)
	times := []int64{base, base + 60, base + 3600, base + 24*3600}
	for i, ts := range times {
		m := testMessage("H-"+string(rune('a'+i)), "alice@s.whatsapp.net", ts)
		if _, err := store.SaveMessage(ctx, m); err != nil {
			t.Fatalf("SaveMessage() error = %v", err)
		}
	}

	hours, err := store.HourlyActivity(ctx, "alice@s.whatsapp.net", base-1)
	if err != nil {
		t.Fatalf("HourlyActivity() error = %v", err)
	}
	var total int64
	for _, h := range hours {
		if h.Hour < 0 || h.Hour > 23 {
			t.Errorf("hour bucket out of range: %d", h.Hour)
		}
		total += h.Count
	}
	if total != 4 {
		t.Errorf("total hourly count = %d, want 4", total)
	}

	days, err := store.DailyMessageCounts(ctx, "alice@s.whatsapp.net", base-1)
	if err != nil {
		t.Fatalf("DailyMessageCounts() error = %v", err)
	}
	if len(days) != 2 {
		t.Errorf("len(days) = %d, want 2", len(days))
	}
}

func TestActiveParticipants(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	base := int64(1700000000)
	for i := 0; i < 3; i++ {
		m := testMessage("A-"+string(rune('a'+i)), "alice@s.whatsapp.net", base+int64(i))
		if _, err := store.SaveMessage(ctx, m); err != nil {
			t.Fatalf("SaveMessage() error = %v", err)
		}
	}
	m := testMessage("B-1", "bob@s.whatsapp.net", base)
	if _, err := store.SaveMessage(ctx, m); err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}
	old := testMessage("C-1", "carol@s.whatsapp.net", base-100000)
	if _, err := store.SaveMessage(ctx, old); err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}

	jids, err := store.ActiveParticipants(ctx, base-1, 10)
	if err != nil {
		t.Fatalf("ActiveParticipants() error = %v", err)
	}
	if len(jids) != 2 {
		t.Fatalf("len(jids) = %d, want 2 (stale sender excluded)", len(jids))
	}
	if jids[0] != "alice@s.whatsapp.net" {
		t.Errorf("most active = %q, want alice", jids[0])
	}
}

func TestSaveBehaviorPatternAccumulatesObservations(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	pattern := &database.BehaviorPattern{
		ParticipantJID:   "alice@s.whatsapp.net",
		PatternType:      "active_hours",
		PatternName:      "Most active around 21:00 (evening)",
		PatternData:      `{"most_active_hour":21}`,
		Confidence:       0.9,
		ObservationCount: 1,
		DetectedAt:       1700000000,
		LastObservedAt:   1700000000,
	}
	if err := store.SaveBehaviorPattern(ctx, pattern); err != nil {
		t.Fatalf("SaveBehaviorPattern() error = %v", err)
	}

	pattern.PatternName = "Most active around 22:00 (evening)"
	pattern.LastObservedAt = 1700001000
	if err := store.SaveBehaviorPattern(ctx, pattern); err != nil {
		t.Fatalf("SaveBehaviorPattern() redetection error = %v", err)
	}

	patterns, err := store.PatternsByParticipant(ctx, "alice@s.whatsapp.net")
	if err != nil {
		t.Fatalf("PatternsByParticipant() error = %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("len(patterns) = %d, want 1", len(patterns))
	}
	p := patterns[0]
	if p.ObservationCount != 2 {
		t.Errorf("observation_count = %d, want 2", p.ObservationCount)
	}
	if p.LastObservedAt != 1700001000 {
		t.Errorf("last_observed_at = %d, want 1700001000", p.LastObservedAt)
	}
}

func TestAlertLifecycle(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	pending, err := store.HasUnreadAlert(ctx, "inactivity", "alice@s.whatsapp.net")
	if err != nil {
		t.Fatalf("HasUnreadAlert() error = %v", err)
	}
	if pending {
		t.Fatal("HasUnreadAlert() = true on empty table")
	}

	alert := &database.Alert{
		AlertType:      "inactivity",
		Severity:       "warning",
		ParticipantJID: "alice@s.whatsapp.net",
		Message:        "Alice went quiet",
		TriggeredAt:    1700000000,
	}
	if err := store.SaveAlert(ctx, alert); err != nil {
		t.Fatalf("SaveAlert() error = %v", err)
	}
	if alert.ID == 0 {
		t.Fatal("SaveAlert() did not set alert ID")
	}

	pending, err = store.HasUnreadAlert(ctx, "inactivity", "alice@s.whatsapp.net")
	if err != nil {
		t.Fatalf("HasUnreadAlert() error = %v", err)
	}
	if !pending {
		t.Fatal("HasUnreadAlert() = false after SaveAlert")
	}

	marked, err := store.MarkAlertRead(ctx, alert.ID)
	if err != nil {
		t.Fatalf("MarkAlertRead() error = %v", err)
	}
	if !marked {
		t.Fatal("MarkAlertRead() = false, want true")
	}

	// Second read is a no-op.
	marked, err = store.MarkAlertRead(ctx, alert.ID)
	if err != nil {
		t.Fatalf("MarkAlertRead() second call error = %v", err)
	}
	if marked {
		t.Error("MarkAlertRead() = true on already-read alert")
	}

	unread, err := store.UnreadAlerts(ctx, 10)
	if err != nil {
		t.Fatalf("UnreadAlerts() error = %v", err)
	}
	if len(unread) != 0 {
		t.Errorf("len(unread) = %d, want 0", len(unread))
	}
}

func TestSaveInsightDeactivatesPrior(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	first := &database.Insight{
		InsightType:    "trend",
		SubjectType:    "participant",
		SubjectID:      "alice@s.whatsapp.net",
		Title:          "Sentiment trending down",
		Description:    "Average sentiment dropped over the last two weeks",
		Severity:       "warning",
		Confidence:     0.8,
		SupportingData: `{"avg_before":0.4,"avg_after":-0.1}`,
		DetectedAt:     1700000000,
	}
	if err := store.SaveInsight(ctx, first); err != nil {
		t.Fatalf("SaveInsight() error = %v", err)
	}

	second := &database.Insight{
		InsightType:    "trend",
		SubjectType:    "participant",
		SubjectID:      "alice@s.whatsapp.net",
		Title:          "Sentiment recovering",
		Description:    "Average sentiment back to baseline",
		Severity:       "info",
		Confidence:     0.7,
		SupportingData: "{}",
		DetectedAt:     1700001000,
	}
	if err := store.SaveInsight(ctx, second); err != nil {
		t.Fatalf("SaveInsight() replacement error = %v", err)
	}

	active, err := store.ActiveInsights(ctx, 10)
	if err != nil {
		t.Fatalf("ActiveInsights() error = %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("len(active) = %d, want 1 (prior same-type insight deactivated)", len(active))
	}
	if active[0].Title != "Sentiment recovering" {
		t.Errorf("active insight = %q, want the newest one", active[0].Title)
	}
}

func TestInactivityCandidates(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Unix()
	tenDaysAgo := now - 10*24*3600

	if err := store.UpsertParticipant(ctx, "alice@s.whatsapp.net", "Alice", tenDaysAgo); err != nil {
		t.Fatalf("UpsertParticipant() error = %v", err)
	}
	for i := 0; i < 50; i++ {
		m := testMessage("I-"+string(rune('0'+i/10))+string(rune('0'+i%10)), "alice@s.whatsapp.net", tenDaysAgo+int64(i))
		if _, err := store.SaveMessage(ctx, m); err != nil {
			t.Fatalf("SaveMessage() error = %v", err)
		}
	}

	// Own outbound traffic never makes its pseudo-participant a
	// candidate.
	if err := store.UpsertParticipant(ctx, "me@whatsapp", "", tenDaysAgo); err != nil {
		t.Fatalf("UpsertParticipant() error = %v", err)
	}
	for i := 0; i < 50; i++ {
		m := testMessage("IM-"+string(rune('0'+i/10))+string(rune('0'+i%10)), "me@whatsapp", tenDaysAgo+int64(i))
		m.FromMe = true
		if _, err := store.SaveMessage(ctx, m); err != nil {
			t.Fatalf("SaveMessage() error = %v", err)
		}
	}

	candidates, err := store.InactivityCandidates(ctx, now)
	if err != nil {
		t.Fatalf("InactivityCandidates() error = %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("len(candidates) = %d, want 1", len(candidates))
	}
	c := candidates[0]
	if c.JID != "alice@s.whatsapp.net" {
		t.Fatalf("candidate = %q, want alice@s.whatsapp.net", c.JID)
	}
	if c.RecentCount != 0 {
		t.Errorf("recent_count = %d, want 0", c.RecentCount)
	}
	// 50 messages over 30 days is roughly 11.7 per week.
	if c.WeeklyAvg < 11 || c.WeeklyAvg > 12 {
		t.Errorf("weekly_avg = %v, want about 11.7", c.WeeklyAvg)
	}
}

func TestNegativeBursts(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	base := int64(1700000000)
	for i := 0; i < 6; i++ {
		id := "N-" + string(rune('a'+i))
		m := testMessage(id, "bob@s.whatsapp.net", base+int64(i))
		if _, err := store.SaveMessage(ctx, m); err != nil {
			t.Fatalf("SaveMessage() error = %v", err)
		}
		label := "negative"
		if i >= 5 {
			label = "positive"
		}
		s := &database.MessageSentiment{
			MessageID: id, Label: label, Score: -0.6, Emotions: "{}",
			Confidence: 0.9, ModelUsed: "gemini-2.0-flash", AnalyzedAt: base,
		}
		if err := store.SaveSentiment(ctx, s); err != nil {
			t.Fatalf("SaveSentiment() error = %v", err)
		}
	}

	bursts, err := store.NegativeBursts(ctx, base-1)
	if err != nil {
		t.Fatalf("NegativeBursts() error = %v", err)
	}
	if len(bursts) != 1 {
		t.Fatalf("len(bursts) = %d, want 1", len(bursts))
	}
	if bursts[0].JID != "bob@s.whatsapp.net" || bursts[0].NegativeCount != 5 {
		t.Errorf("burst = %+v, want bob with 5 negatives", bursts[0])
	}
}

func TestDashboardMetrics(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Unix()
	recent := testMessage("D-1", "alice@s.whatsapp.net", now-3600)
	stale := testMessage("D-2", "bob@s.whatsapp.net", now-3*24*3600)
	for _, m := range []*database.Message{recent, stale} {
		if _, err := store.SaveMessage(ctx, m); err != nil {
			t.Fatalf("SaveMessage() error = %v", err)
		}
		if err := store.UpsertParticipant(ctx, m.SenderJID, m.SenderName, m.Timestamp); err != nil {
			t.Fatalf("UpsertParticipant() error = %v", err)
		}
	}
	if err := store.UpsertConversation(ctx, "555@g.us", "", "group", now); err != nil {
		t.Fatalf("UpsertConversation() error = %v", err)
	}

	metrics, err := store.DashboardMetrics(ctx, now)
	if err != nil {
		t.Fatalf("DashboardMetrics() error = %v", err)
	}
	if metrics.TotalMessages != 2 {
		t.Errorf("total_messages = %d, want 2", metrics.TotalMessages)
	}
	if metrics.TotalParticipants != 2 {
		t.Errorf("total_participants = %d, want 2", metrics.TotalParticipants)
	}
	if metrics.TotalConversations != 1 {
		t.Errorf("total_conversations = %d, want 1", metrics.TotalConversations)
	}
	if metrics.MessagesToday != 1 {
		t.Errorf("messages_today = %d, want 1", metrics.MessagesToday)
	}
}

func TestRunMaintenance(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	if err := store.RunMaintenance(context.Background()); err != nil {
		t.Fatalf("RunMaintenance() error = %v", err)
	}
}
