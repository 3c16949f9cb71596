package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/tradefork/engine/pkg/logger"
)

// Messenger delivers engine-initiated messages to users. chatID is
// the user's telegram ID. Implementations return the provider message
// ID so callers can edit later.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) (int, error)
	SendWithKeyboard(ctx context.Context, chatID int64, text string, keyboard [][]Button) (int, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string) error
}

// Button is one inline keyboard button
type Button struct {
	Label string
	Data  string
}

// BotMessenger sends through the Telegram Bot API
type BotMessenger struct {
	api *tgbotapi.BotAPI
}

// NewBotMessenger creates a messenger from a bot token
func NewBotMessenger(botToken string) (*BotMessenger, error) {
	if botToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot.Debug = false

	logger.Info("telegram messenger initialized",
		zap.String("bot_username", bot.Self.UserName),
	)

	return &BotMessenger{api: bot}, nil
}

func (m *BotMessenger) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	sent, err := m.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to send message: %w", err)
	}
	return sent.MessageID, nil
}

func (m *BotMessenger) SendWithKeyboard(ctx context.Context, chatID int64, text string, keyboard [][]Button) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(keyboard))
	for _, row := range keyboard {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		rows = append(rows, buttons)
	}
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)

	sent, err := m.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to send keyboard message: %w", err)
	}
	return sent.MessageID, nil
}

func (m *BotMessenger) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := m.api.Send(edit); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

// SignalFeedbackKeyboard is attached to delivered signals so the user
// can grade them after the fact
func SignalFeedbackKeyboard(signalID int64) [][]Button {
	return [][]Button{{
		{Label: "👍 적중", Data: fmt.Sprintf("sig_fb:%d:hit", signalID)},
		{Label: "👎 빗나감", Data: fmt.Sprintf("sig_fb:%d:miss", signalID)},
	}, {
		{Label: "🔁 반대로 갔음", Data: fmt.Sprintf("sig_fb:%d:counter", signalID)},
	}}
}

// TradeConfirmKeyboard asks the user to confirm a detected trade
func TradeConfirmKeyboard(tradeID int64) [][]Button {
	return [][]Button{{
		{Label: "✅ 맞아", Data: fmt.Sprintf("trade_ack:%d:yes", tradeID)},
		{Label: "❌ 아니야", Data: fmt.Sprintf("trade_ack:%d:no", tradeID)},
	}}
}
