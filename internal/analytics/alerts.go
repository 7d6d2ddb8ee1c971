package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brunosaraiva/zapinsight/internal/database"
	"github.com/brunosaraiva/zapinsight/internal/gateway"
)

// Alert types produced by the sweep rules.
const (
	AlertInactivity    = "inactivity"
	AlertNegativeBurst = "negative_burst"
)

// Inactivity fires when the trailing week drops below this fraction of
// the participant's weekly average, provided the average is above the
// noise floor.
const (
	inactivityRatio     = 0.3
	inactivityNoiseAvg  = 10.0
	negativeBurstWindow = 24 * time.Hour
	negativeBurstCount  = 5
)

// AlertEngine evaluates alert rules against stored analytics and
// records the alerts they trigger. Critical alerts are forwarded to
// the admin JID through the gateway when one is configured.
type AlertEngine struct {
	store    database.Store
	gateway  gateway.Client
	adminJID string
	logger   *slog.Logger
}

// NewAlertEngine creates an alert engine. gw and adminJID may be
// empty; forwarding is then disabled.
func NewAlertEngine(store database.Store, gw gateway.Client, adminJID string, logger *slog.Logger) *AlertEngine {
	return &AlertEngine{
		store:    store,
		gateway:  gw,
		adminJID: adminJID,
		logger:   logger.With("component", "alerts"),
	}
}

// Sweep evaluates every rule once. Rules are independent: a failing
// rule is logged and the rest still run. Returns the alerts created.
func (e *AlertEngine) Sweep(ctx context.Context) ([]*database.Alert, error) {
	now := time.Now().UTC().Unix()
	var created []*database.Alert

	inactive, err := e.evaluateInactivity(ctx, now)
	if err != nil {
		e.logger.ErrorContext(ctx, "Inactivity rule failed", "error", err)
	} else {
		created = append(created, inactive...)
	}

	bursts, err := e.evaluateNegativeBursts(ctx, now)
	if err != nil {
		e.logger.ErrorContext(ctx, "Negative burst rule failed", "error", err)
	} else {
		created = append(created, bursts...)
	}

	if len(created) > 0 {
		e.logger.InfoContext(ctx, "Alert sweep completed", "alerts_created", len(created))
	}
	return created, nil
}

// evaluateInactivity flags participants whose trailing week fell well
// below their monthly baseline.
func (e *AlertEngine) evaluateInactivity(ctx context.Context, now int64) ([]*database.Alert, error) {
	candidates, err := e.store.InactivityCandidates(ctx, now)
	if err != nil {
		return nil, err
	}

	var created []*database.Alert
	for _, c := range candidates {
		if c.WeeklyAvg <= inactivityNoiseAvg {
			continue
		}
		if float64(c.RecentCount) >= inactivityRatio*c.WeeklyAvg {
			continue
		}

		name := c.Name
		if name == "" {
			name = c.JID
		}
		alert := &database.Alert{
			AlertType:      AlertInactivity,
			Severity:       "warning",
			ParticipantJID: c.JID,
			Message: fmt.Sprintf("%s sent %d messages this week, well below their usual %.0f per week",
				name, c.RecentCount, c.WeeklyAvg),
			TriggeredAt: now,
		}

		saved, err := e.trigger(ctx, alert)
		if err != nil {
			return created, err
		}
		if saved {
			created = append(created, alert)
		}
	}
	return created, nil
}

// evaluateNegativeBursts flags participants with a run of negative
// messages in the last day.
func (e *AlertEngine) evaluateNegativeBursts(ctx context.Context, now int64) ([]*database.Alert, error) {
	since := now - int64(negativeBurstWindow.Seconds())
	bursts, err := e.store.NegativeBursts(ctx, since)
	if err != nil {
		return nil, err
	}

	var created []*database.Alert
	for _, b := range bursts {
		if b.NegativeCount < negativeBurstCount {
			continue
		}

		alert := &database.Alert{
			AlertType:      AlertNegativeBurst,
			Severity:       "critical",
			ParticipantJID: b.JID,
			Message: fmt.Sprintf("%s sent %d negative messages in the last 24 hours",
				b.JID, b.NegativeCount),
			TriggeredAt: now,
		}

		saved, err := e.trigger(ctx, alert)
		if err != nil {
			return created, err
		}
		if saved {
			created = append(created, alert)
		}
	}
	return created, nil
}

// trigger saves an alert unless an unread one of the same type is
// already pending for the participant. Repeating sweeps therefore
// never pile up duplicates.
func (e *AlertEngine) trigger(ctx context.Context, alert *database.Alert) (bool, error) {
	pending, err := e.store.HasUnreadAlert(ctx, alert.AlertType, alert.ParticipantJID)
	if err != nil {
		return false, err
	}
	if pending {
		return false, nil
	}

	if err := e.store.SaveAlert(ctx, alert); err != nil {
		return false, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	e.logger.InfoContext(ctx, "Alert triggered",
		"alert_type", alert.AlertType, "severity", alert.Severity, "participant", alert.ParticipantJID)

	if alert.Severity == "critical" && e.gateway != nil && e.adminJID != "" {
		text := fmt.Sprintf("ALERT [%s]: %s", alert.AlertType, alert.Message)
		if err := e.gateway.SendText(ctx, e.adminJID, text); err != nil {
			// Notification failure must not lose the stored alert.
			e.logger.WarnContext(ctx, "Failed to forward critical alert", "error", err)
		}
	}

	return true, nil
}
