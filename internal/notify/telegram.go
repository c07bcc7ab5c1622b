package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/elicharlese/ThePublic-sub000/internal/events"
)

// TelegramAlerter pushes node status transitions to the ops chat.
type TelegramAlerter struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	stop   func()
	donec  chan struct{}
	log    *logrus.Entry
}

// NewTelegramAlerter connects the bot and starts consuming node events.
func NewTelegramAlerter(bus *events.Bus, token string, chatID int64) (*TelegramAlerter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}

	ch, cancel := bus.Subscribe(events.ChannelNodes)
	a := &TelegramAlerter{
		bot:    bot,
		chatID: chatID,
		stop:   cancel,
		donec:  make(chan struct{}),
		log:    logrus.WithField("component", "telegram"),
	}
	go a.consume(ch)

	a.log.Infof("Telegram alerts enabled as @%s", bot.Self.UserName)
	return a, nil
}

func (a *TelegramAlerter) consume(ch <-chan events.Event) {
	defer close(a.donec)
	for ev := range ch {
		if ev.Type != events.NodeStatusChanged {
			continue
		}
		payload, ok := ev.Payload.(map[string]interface{})
		if !ok {
			continue
		}

		text := fmt.Sprintf("Node status change: %v -> %v", payload["old_status"], payload["new_status"])
		msg := tgbotapi.NewMessage(a.chatID, text)
		if _, err := a.bot.Send(msg); err != nil {
			a.log.Warnf("failed to send status alert: %v", err)
		}
	}
}

// Close stops consuming and waits for the worker to drain.
func (a *TelegramAlerter) Close() {
	a.stop()
	<-a.donec
}
