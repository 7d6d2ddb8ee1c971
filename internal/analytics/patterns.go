package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brunosaraiva/zapinsight/internal/database"
)

// Pattern types stored in behavior_patterns.
const (
	PatternActiveHours      = "active_hours"
	PatternResponseTime     = "response_time"
	PatternMessageFrequency = "message_frequency"
)

// maxResponseGap discards reply gaps longer than a day as unrelated.
const maxResponseGap = int64(24 * 3600)

// ActiveHoursData is the payload of an active_hours pattern.
type ActiveHoursData struct {
	MostActiveHour     int             `json:"most_active_hour"`
	LeastActiveHour    int             `json:"least_active_hour"`
	HourlyDistribution map[int]float64 `json:"hourly_distribution"` // percent of messages per hour
	PreferredTimeOfDay string          `json:"preferred_time_of_day"`
}

// ResponseTimeData is the payload of a response_time pattern.
type ResponseTimeData struct {
	AverageSeconds int64 `json:"average_response_time_seconds"`
	MedianSeconds  int64 `json:"median_response_time_seconds"`
	FastestSeconds int64 `json:"fastest_response_seconds"`
	SlowestSeconds int64 `json:"slowest_response_seconds"`
	SampleCount    int   `json:"sample_count"`
}

// MessageFrequencyData is the payload of a message_frequency pattern.
type MessageFrequencyData struct {
	MessagesPerDay  int64  `json:"messages_per_day"`
	MessagesPerWeek int64  `json:"messages_per_week"`
	PeakDay         string `json:"peak_day"`
	ActiveDays      int    `json:"active_days"`
}

// PatternDetector derives behavior patterns from message history.
type PatternDetector struct {
	store    database.Store
	lookback time.Duration
	logger   *slog.Logger
}

// NewPatternDetector creates a pattern detector.
func NewPatternDetector(store database.Store, lookback time.Duration, logger *slog.Logger) *PatternDetector {
	return &PatternDetector{
		store:    store,
		lookback: lookback,
		logger:   logger.With("component", "patterns"),
	}
}

// DetectAll runs every detector for a participant in parallel and
// persists whatever patterns emerge. Detectors without enough data
// yield no pattern, which is not an error.
func (d *PatternDetector) DetectAll(ctx context.Context, participantJID string) ([]*database.BehaviorPattern, error) {
	now := time.Now().UTC().Unix()
	since := now - int64(d.lookback.Seconds())

	var activeHours, responseTime, frequency *database.BehaviorPattern

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		activeHours, err = d.DetectActiveHours(gctx, participantJID, since, now)
		return err
	})
	g.Go(func() error {
		var err error
		responseTime, err = d.DetectResponseTime(gctx, participantJID, since, now)
		return err
	})
	g.Go(func() error {
		var err error
		frequency, err = d.DetectMessageFrequency(gctx, participantJID, since, now)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("pattern detection failed for %s: %w", participantJID, err)
	}

	var patterns []*database.BehaviorPattern
	for _, p := range []*database.BehaviorPattern{activeHours, responseTime, frequency} {
		if p == nil {
			continue
		}
		if err := d.store.SaveBehaviorPattern(ctx, p); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		patterns = append(patterns, p)
	}

	d.logger.DebugContext(ctx, "Patterns detected", "participant", participantJID, "count", len(patterns))
	return patterns, nil
}

// DetectActiveHours finds the hours of day a participant talks most.
// Returns nil when the participant has no messages in the window.
func (d *PatternDetector) DetectActiveHours(ctx context.Context, participantJID string, since, now int64) (*database.BehaviorPattern, error) {
	hours, err := d.store.HourlyActivity(ctx, participantJID, since)
	if err != nil {
		return nil, err
	}
	if len(hours) == 0 {
		return nil, nil
	}

	var total int64
	for _, h := range hours {
		total += h.Count
	}

	sorted := make([]database.HourCount, len(hours))
	copy(sorted, hours)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Count > sorted[j].Count })

	distribution := make(map[int]float64, len(hours))
	for _, h := range hours {
		distribution[h.Hour] = float64(h.Count) / float64(total) * 100
	}

	mostActive := sorted[0].Hour
	leastActive := sorted[len(sorted)-1].Hour

	data := ActiveHoursData{
		MostActiveHour:     mostActive,
		LeastActiveHour:    leastActive,
		HourlyDistribution: distribution,
		PreferredTimeOfDay: timeOfDay(mostActive),
	}

	confidence := 0.6
	if len(hours) >= 10 {
		confidence = 0.9
	}

	return d.newPattern(participantJID, PatternActiveHours,
		fmt.Sprintf("Most active around %02d:00 (%s)", mostActive, data.PreferredTimeOfDay),
		data, confidence, now), nil
}

// DetectResponseTime measures how fast a participant answers quoted
// messages. Returns nil with fewer than three reply samples.
func (d *PatternDetector) DetectResponseTime(ctx context.Context, participantJID string, since, now int64) (*database.BehaviorPattern, error) {
	samples, err := d.store.ResponseTimeSamples(ctx, participantJID, since, maxResponseGap)
	if err != nil {
		return nil, err
	}
	if len(samples) < 3 {
		return nil, nil
	}

	sorted := make([]int64, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum int64
	for _, s := range sorted {
		sum += s
	}
	avg := sum / int64(len(sorted))

	var median int64
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		median = sorted[mid]
	}

	data := ResponseTimeData{
		AverageSeconds: avg,
		MedianSeconds:  median,
		FastestSeconds: sorted[0],
		SlowestSeconds: sorted[len(sorted)-1],
		SampleCount:    len(sorted),
	}

	confidence := 0.65
	if len(sorted) >= 10 {
		confidence = 0.85
	}

	return d.newPattern(participantJID, PatternResponseTime,
		fmt.Sprintf("%s responder (average %d min)", responsiveness(avg), avg/60),
		data, confidence, now), nil
}

// DetectMessageFrequency measures daily and weekly message volume.
// Returns nil when the participant has no messages in the window.
func (d *PatternDetector) DetectMessageFrequency(ctx context.Context, participantJID string, since, now int64) (*database.BehaviorPattern, error) {
	days, err := d.store.DailyMessageCounts(ctx, participantJID, since)
	if err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return nil, nil
	}

	var total int64
	peak := days[0]
	for _, day := range days {
		total += day.Count
		if day.Count > peak.Count {
			peak = day
		}
	}
	perDay := total / int64(len(days))

	data := MessageFrequencyData{
		MessagesPerDay:  perDay,
		MessagesPerWeek: perDay * 7,
		PeakDay:         peak.Day,
		ActiveDays:      len(days),
	}

	return d.newPattern(participantJID, PatternMessageFrequency,
		fmt.Sprintf("%d messages/day", perDay),
		data, 0.8, now), nil
}

func (d *PatternDetector) newPattern(participantJID, patternType, name string, data any, confidence float64, now int64) *database.BehaviorPattern {
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte("{}")
	}
	return &database.BehaviorPattern{
		ParticipantJID:   participantJID,
		PatternType:      patternType,
		PatternName:      name,
		PatternData:      string(payload),
		Confidence:       confidence,
		ObservationCount: 1,
		DetectedAt:       now,
		LastObservedAt:   now,
	}
}

func timeOfDay(hour int) string {
	switch {
	case hour >= 6 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 18:
		return "afternoon"
	case hour >= 18 && hour < 22:
		return "evening"
	default:
		return "night"
	}
}

func responsiveness(avgSeconds int64) string {
	switch avgMinutes := avgSeconds / 60; {
	case avgMinutes < 5:
		return "Very fast"
	case avgMinutes < 30:
		return "Fast"
	case avgMinutes < 120:
		return "Moderate"
	default:
		return "Slow"
	}
}
