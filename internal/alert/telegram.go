package alert

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gate-monitor/internal/domain/gate"
)

const defaultAPIBase = "https://api.telegram.org"

// Dispatcher sends one Telegram notification per unauthorized event.
// Failure is terminal for that event: it is logged, alert_sent stays
// false, and nothing is retried.
type Dispatcher struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
	log      zerolog.Logger
}

func NewDispatcher(botToken, chatID string, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

// MaybeAlert sends a notification for an unauthorized event and reports
// whether the channel confirmed delivery. Authorized events are a no-op.
func (d *Dispatcher) MaybeAlert(ctx context.Context, event *gate.VehicleEvent) bool {
	if event.IsAuthorized {
		return false
	}

	if d.botToken == "" || d.chatID == "" {
		d.log.Warn().
			Str("plate", event.VehicleNumber).
			Msg("telegram credentials missing, alert not sent")
		return false
	}

	form := url.Values{}
	form.Set("chat_id", d.chatID)
	form.Set("text", formatMessage(event))

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", d.apiBase, d.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		d.log.Warn().Err(err).Str("plate", event.VehicleNumber).Msg("failed to build telegram request")
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Warn().Err(err).Str("plate", event.VehicleNumber).Msg("telegram alert failed")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		d.log.Warn().
			Int("status", resp.StatusCode).
			Str("plate", event.VehicleNumber).
			Msg("telegram API rejected alert")
		return false
	}

	d.log.Info().
		Str("plate", event.VehicleNumber).
		Msg("telegram alert sent")
	return true
}

func formatMessage(event *gate.VehicleEvent) string {
	ts := event.TimeStamp.UTC()
	return fmt.Sprintf(
		"Vehicle ALERT\nPlate: %s\nAuthorized As: %s\nVehicle Type: %s\nStatus: %s\nConfidence: %d%%\nDate: %s\nTime: %s",
		event.VehicleNumber,
		event.AuthorizedAs,
		event.VehicleType,
		event.Status,
		event.Confidence,
		ts.Format("2006-01-02"),
		ts.Format("15:04:05 MST"),
	)
}
