package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"SpikeWatch/internal/domain/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of tgbotapi.BotAPI used to post messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier posts lifecycle events to a single chat.
type Notifier struct {
	bot    Sender
	chatID int64
}

// New authenticates the bot token and returns a notifier for chatID. Every
// request, the token check included, is bounded by timeout since Send takes
// no context.
func New(token string, chatID int64, timeout time.Duration) (*Notifier, error) {
	return newWithEndpoint(token, tgbotapi.APIEndpoint, chatID, timeout)
}

func newWithEndpoint(token, endpoint string, chatID int64, timeout time.Duration) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return NewWithSender(bot, chatID), nil
}

func NewWithSender(bot Sender, chatID int64) *Notifier {
	return &Notifier{bot: bot, chatID: chatID}
}

func (n *Notifier) Name() string { return "telegram" }

func (n *Notifier) Notify(ctx context.Context, ev models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text := Format(ev)
	if text == "" {
		return nil
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// Format renders an event as a short plain-text message. Events without a
// payload render as an empty string and are not sent.
func Format(ev models.Event) string {
	var b strings.Builder
	switch ev.Type {
	case models.EventAnomalyDetected:
		if ev.Anomaly == nil {
			return ""
		}
		a := ev.Anomaly
		fmt.Fprintf(&b, "🔎 Volume spike %s\n", a.Instrument)
		fmt.Fprintf(&b, "Direction: %s\n", a.Direction)
		fmt.Fprintf(&b, "Price: %s (baseline %s)\n", price(a.AnomalyPrice), price(a.BaselinePrice))
		fmt.Fprintf(&b, "Volume: x%.2f", a.VolumeLeverage)
	case models.EventWatchlistArmed:
		if ev.Entry == nil {
			return ""
		}
		e := ev.Entry
		fmt.Fprintf(&b, "⏳ Armed %s %s\n", e.Direction, e.Instrument)
		fmt.Fprintf(&b, "Entry: %s\nCancel: %s", price(e.EntryLevel), price(e.CancelLevel))
	case models.EventWatchlistCancelled:
		fmt.Fprintf(&b, "✖ Cancelled %s (%s)", ev.Instrument, ev.Reason)
	case models.EventWatchlistTimedOut:
		fmt.Fprintf(&b, "⌛ Timed out %s", ev.Instrument)
	case models.EventTradeOpened:
		if ev.Trade == nil {
			return ""
		}
		t := ev.Trade
		fmt.Fprintf(&b, "🟢 Opened %s %s @ %s\n", strings.ToUpper(string(t.Direction)), t.Instrument, price(t.EntryPrice))
		fmt.Fprintf(&b, "SL: %s\nTP: %s", price(t.StopLoss), price(t.TakeProfit))
	case models.EventTradeClosed:
		if ev.Trade == nil {
			return ""
		}
		t := ev.Trade
		mark := "🔴"
		if t.PnLPercent > 0 {
			mark = "✅"
		}
		fmt.Fprintf(&b, "%s Closed %s %s (%s)\n", mark, strings.ToUpper(string(t.Direction)), t.Instrument, t.ExitReason)
		fmt.Fprintf(&b, "Entry: %s\nExit: %s\nPnL: %+.2f%%", price(t.EntryPrice), price(t.ExitPrice), t.PnLPercent)
	case models.EventPeriodicStatus:
		if ev.Status == nil {
			return ""
		}
		s := ev.Status
		fmt.Fprintf(&b, "📊 Status\nWatchlist: %d\nOpen trades: %d\nClosed trades: %d\n", s.Watchlist, s.OpenTrades, s.ClosedTrades)
		fmt.Fprintf(&b, "Win rate: %.1f%%\nTotal PnL: %+.2f%%", s.Statistics.WinRate()*100, s.Statistics.TotalPnLPercent)
	default:
		return ""
	}
	return b.String()
}

func price(v float64) string {
	switch {
	case v >= 100:
		return fmt.Sprintf("%.2f", v)
	case v >= 1:
		return fmt.Sprintf("%.4f", v)
	default:
		return fmt.Sprintf("%.8f", v)
	}
}
