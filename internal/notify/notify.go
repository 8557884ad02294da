// Package notify delivers recommendation bundles to humans. The log
// notifier is always safe to wire; the Telegram notifier is enabled when a
// bot token and chat ID are configured.
package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/samlafell/mlb-betting-sub012/internal/models"
)

// LogNotifier writes each recommendation to the structured log. Default
// when no delivery channel is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, b models.RecommendationBundle) error {
	log.Info().
		Str("event", b.EventID).
		Str("market", string(b.Market)).
		Str("side", string(b.Winner.Side)).
		Str("strategy", b.Winner.StrategyID).
		Float64("quality", b.QualityScore).
		Strs("consensus", b.Consensus).
		Msg("recommendation")
	return nil
}

// Telegram pushes recommendations to a chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram dials the bot API once at startup so a bad token fails fast.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	log.Info().Str("bot", bot.Self.UserName).Msg("telegram notifier ready")
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) Notify(_ context.Context, b models.RecommendationBundle) error {
	msg := tgbotapi.NewMessage(t.chatID, FormatBundle(b))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// FormatBundle renders one bundle as a Telegram Markdown message.
func FormatBundle(b models.RecommendationBundle) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s* %s\n", b.EventID, b.Market)
	fmt.Fprintf(&sb, "Pick: *%s* (quality %.0f)\n", b.Winner.Side, b.QualityScore)
	fmt.Fprintf(&sb, "Strategy: %s, confidence %d\n", b.Winner.StrategyID, b.Winner.Confidence)
	if len(b.Consensus) > 1 {
		fmt.Fprintf(&sb, "Consensus: %s\n", strings.Join(b.Consensus, ", "))
	}
	if len(b.Conflicting) > 0 {
		fmt.Fprintf(&sb, "Against: %s\n", strings.Join(b.Conflicting, ", "))
	}
	return sb.String()
}
