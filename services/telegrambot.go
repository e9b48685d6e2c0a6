package services

import (
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ghdlabs/ghd-market-maker/domain"
)

type subscribers interface {
	Subscribe(user *domain.User)
	Subscribers() []domain.User
}

type telegramBotCredentials interface {
	GetTelegramBotAPIToken() string
}

type telegramBotLogger interface {
	Panic(args ...interface{})
	Warnf(format string, args ...interface{})
}

// TelegramBot pushes fill and halt notifications to every chat that sent
// /start. It satisfies the notifier the reconciliation loop consumes.
type TelegramBot struct {
	bot    *tgbotapi.BotAPI
	users  subscribers
	logger telegramBotLogger
}

func NewTelegramBot(users subscribers, credentials telegramBotCredentials, logger telegramBotLogger) *TelegramBot {
	telegramBot := &TelegramBot{users: users, logger: logger}

	var err error
	telegramBot.bot, err = tgbotapi.NewBotAPI(credentials.GetTelegramBotAPIToken())
	if err != nil {
		telegramBot.logger.Panic(err)
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 10
	updates := telegramBot.bot.GetUpdatesChan(updateConfig)

	go func() {
		for update := range updates {
			if update.Message == nil {
				continue
			}

			if update.Message.Text == "/start" {
				telegramBot.users.Subscribe(&domain.User{ChatID: update.Message.Chat.ID})
				reply := tgbotapi.NewMessage(update.Message.Chat.ID, "Subscribed to fill and halt notifications 👍")
				telegramBot.bot.Send(reply)
			}
		}
	}()

	return telegramBot
}

func (telegramBot *TelegramBot) NotifyFill(order domain.Order, quantity float64, price float64) {
	verb := "Bought ➕"
	if order.Side == domain.SideSell {
		verb = "Sold ➖"
	}

	text := fmt.Sprintf("%s %s %s @ %s 💵\n%s ⏱",
		verb,
		strconv.FormatFloat(quantity, 'f', -1, 64),
		order.Symbol,
		strconv.FormatFloat(price, 'f', -1, 64),
		time.Now().Format(time.RFC1123),
	)
	telegramBot.broadcast(text)
}

func (telegramBot *TelegramBot) NotifyHalt(reason string) {
	telegramBot.broadcast("Engine halted 🛑 " + reason)
}

// broadcast sends off the trading loop's goroutine so a slow Telegram API
// never delays a reconciliation cycle.
func (telegramBot *TelegramBot) broadcast(text string) {
	users := telegramBot.users.Subscribers()
	go func() {
		for _, user := range users {
			message := tgbotapi.NewMessage(user.ChatID, text)
			if _, err := telegramBot.bot.Send(message); err != nil {
				telegramBot.logger.Warnf("telegram send to %d: %v", user.ChatID, err)
			}
		}
	}()
}
