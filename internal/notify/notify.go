// Package notify turns fulfillment events from the broker into operator
// alerts.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ecomjrm/fulfillment-sync/internal/audit"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
)

//go:generate mockgen -source ./notify.go -destination=./mocks/notify.go -package=mock_notify

type Sender interface {
	Send(ctx context.Context, text string) error
}

type TelegramSender struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramSender(token string, chatID int64) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram bot: %w", err)
	}
	return &TelegramSender{bot: bot, chatID: chatID}, nil
}

func (s *TelegramSender) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := s.bot.Send(msg)
	return err
}

// LogSender writes alerts to the log when Telegram is not configured.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, text string) error {
	s.logger.Info("notification", zap.String("text", text))
	return nil
}

type Notifier struct {
	sender Sender
	logger *zap.Logger
}

func NewNotifier(sender Sender, logger *zap.Logger) *Notifier {
	return &Notifier{sender: sender, logger: logger}
}

// Handle decodes one event and sends an alert for the actions operators
// care about. Other actions are ignored.
func (n *Notifier) Handle(ctx context.Context, value []byte) error {
	var event repository.EventPayload
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}
	text, ok := Format(event)
	if !ok {
		n.logger.Debug("event ignored", zap.String("action", event.Action))
		return nil
	}
	if err := n.sender.Send(ctx, text); err != nil {
		return fmt.Errorf("failed to send %s alert: %w", event.Action, err)
	}
	return nil
}

// Format renders the alert for an event. The second result is false for
// events that do not warrant an alert, including refresh runs without
// failures.
func Format(event repository.EventPayload) (string, bool) {
	details := map[string]any{}
	if len(event.Details) > 0 {
		_ = json.Unmarshal(event.Details, &details)
	}
	str := func(key string) string {
		v, ok := details[key]
		if !ok || v == nil {
			return ""
		}
		return html.EscapeString(fmt.Sprint(v))
	}

	var b strings.Builder
	switch event.Action {
	case audit.ActionOrderFulfilled:
		fmt.Fprintf(&b, "📦 <b>Order %s fulfilled</b>\n", str("orderNumber"))
		fmt.Fprintf(&b, "Courier: %s (%s)\n", str("courier"), str("serviceId"))
		fmt.Fprintf(&b, "AWB: <code>%s</code>\n", str("trackingNumber"))
		fmt.Fprintf(&b, "Pickup: %s", str("pickupDate"))
		if overridden, _ := details["overriddenByAdmin"].(bool); overridden {
			b.WriteString("\nCourier overridden by admin")
		}

	case audit.ActionTrackingBatchRefresh:
		failed, _ := details["failed"].(float64)
		if failed == 0 {
			return "", false
		}
		fmt.Fprintf(&b, "⚠️ <b>Tracking refresh: %d failed</b>\n", int(failed))
		fmt.Fprintf(&b, "Total %s, successful %s, skipped %s", str("total"), str("successful"), str("skipped"))
		if errs, ok := details["errors"].([]any); ok {
			for _, e := range errs {
				item, _ := e.(map[string]any)
				fmt.Fprintf(&b, "\n• %s: %s",
					html.EscapeString(fmt.Sprint(item["trackingNumber"])),
					html.EscapeString(fmt.Sprint(item["error"])))
			}
		}

	case audit.ActionShipmentDelivered:
		fmt.Fprintf(&b, "✅ <b>Delivered</b> <code>%s</code>", str("trackingNumber"))

	case audit.ActionCredentialsSaved, audit.ActionCredentialsCleared:
		verb := "saved"
		if event.Action == audit.ActionCredentialsCleared {
			verb = "cleared"
		}
		fmt.Fprintf(&b, "🔑 <b>Courier credentials %s</b> by %s", verb, html.EscapeString(event.ActorID))
		if endpoint := str("endpoint"); endpoint != "" {
			fmt.Fprintf(&b, "\nEndpoint: %s", endpoint)
		}

	default:
		return "", false
	}

	if !event.OccurredAt.IsZero() {
		fmt.Fprintf(&b, "\n<i>%s</i>", event.OccurredAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	return b.String(), true
}
