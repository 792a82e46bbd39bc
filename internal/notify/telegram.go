package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	Token     string
	ChatID    int64
	BatchSize int
	// APIURL overrides the Bot API endpoint. Offline skips the getMe
	// probe at construction. Both exist for tests.
	APIURL  string
	Offline bool
}

type telegramNotifier struct {
	bot    *tele.Bot
	chatID int64
	batch  int
}

func NewTelegram(cfg TelegramConfig) (Notifier, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Offline: cfg.Offline,
		Poller:  &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &telegramNotifier{bot: b, chatID: cfg.ChatID, batch: cfg.BatchSize}, nil
}

func (n *telegramNotifier) Name() string   { return "telegram" }
func (n *telegramNotifier) BatchSize() int { return n.batch }

func (n *telegramNotifier) Send(ctx context.Context, content string) error {
	_, err := n.bot.Send(tele.ChatID(n.chatID), content, &tele.SendOptions{
		DisableWebPagePreview: true,
	})
	return err
}
