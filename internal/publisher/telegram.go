package publisher

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// telegramSender is the part of tgbotapi.BotAPI the platform needs
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts to a channel through a bot
type Telegram struct {
	bot     telegramSender
	channel string
	logger  *zap.Logger
}

// NewTelegram connects the bot. channel is "@name" or a numeric chat id.
func NewTelegram(token, channel string, logger *zap.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	logger.Info("Telegram publisher authorized",
		zap.String("bot", bot.Self.UserName),
		zap.String("channel", channel))

	return newTelegram(bot, channel, logger), nil
}

func newTelegram(bot telegramSender, channel string, logger *zap.Logger) *Telegram {
	return &Telegram{bot: bot, channel: channel, logger: logger}
}

func (t *Telegram) Name() string { return "telegram" }

// Post sends the message; the bot API has no context support, so ctx is only
// checked before sending.
func (t *Telegram) Post(ctx context.Context, text string) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	var msg tgbotapi.MessageConfig
	if strings.HasPrefix(t.channel, "@") {
		msg = tgbotapi.NewMessageToChannel(t.channel, text)
	} else {
		chatID, err := strconv.ParseInt(t.channel, 10, 64)
		if err != nil {
			return "", "", fmt.Errorf("invalid telegram channel %q", t.channel)
		}
		msg = tgbotapi.NewMessage(chatID, text)
	}
	msg.DisableWebPagePreview = true

	sent, err := t.bot.Send(msg)
	if err != nil {
		return "", "", fmt.Errorf("telegram send failed: %w", err)
	}

	postID := strconv.Itoa(sent.MessageID)
	url := ""
	if strings.HasPrefix(t.channel, "@") {
		url = fmt.Sprintf("https://t.me/%s/%d", strings.TrimPrefix(t.channel, "@"), sent.MessageID)
	}
	return postID, url, nil
}
