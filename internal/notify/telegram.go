package notify

import (
	"encoding/json"
	"fmt"
	"strings"

	"fixhub/internal/config"
	"fixhub/internal/domain"
	"fixhub/internal/events"
	"fixhub/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Notifier pushes booking lifecycle events to manager chats in Telegram.
// It subscribes to the in-process bus; delivery is best-effort.
type Notifier struct {
	sender domain.TelegramSender
	cfg    config.NotifyConfig
	logger zerolog.Logger
}

func New(sender domain.TelegramSender, cfg config.NotifyConfig, logger zerolog.Logger) *Notifier {
	return &Notifier{sender: sender, cfg: cfg, logger: logger}
}

// NewBot dials the Telegram API with the configured token.
func NewBot(cfg config.NotifyConfig) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return bot, nil
}

// Attach subscribes the notifier to the event bus.
func (n *Notifier) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventBookingStatusChanged, n.onStatusChanged)
	if n.cfg.NotifyCreated {
		bus.Subscribe(events.EventBookingCreated, n.onBookingCreated)
	}
}

func (n *Notifier) onStatusChanged(event *events.Event) error {
	var e events.BookingStatusChanged
	if err := json.Unmarshal(event.Payload, &e); err != nil {
		n.logger.Error().Err(err).Msg("decode status change event")
		return err
	}

	if e.Forced && !n.cfg.NotifyForced {
		return nil
	}
	// Обычные переходы менеджерам не шлём, только принудительные и споры
	if !e.Forced && e.NewStatus != models.StatusDisputed && e.NewStatus != models.StatusCancelled {
		return nil
	}

	n.broadcast(formatStatusChange(e))
	return nil
}

func (n *Notifier) onBookingCreated(event *events.Event) error {
	var booking models.Booking
	if err := json.Unmarshal(event.Payload, &booking); err != nil {
		n.logger.Error().Err(err).Msg("decode booking created event")
		return err
	}

	n.broadcast(formatCreated(&booking))
	return nil
}

func (n *Notifier) broadcast(text string) {
	for _, chatID := range n.cfg.ManagerChats {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = "Markdown"
		if _, err := n.sender.Send(msg); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", chatID).Msg("telegram send error")
		}
	}
}

func formatStatusChange(e events.BookingStatusChanged) string {
	var b strings.Builder

	switch {
	case e.Forced:
		b.WriteString("⚠️ *Принудительная смена статуса*\n")
	case e.NewStatus == models.StatusDisputed:
		b.WriteString("🔴 *Открыт спор по заявке*\n")
	default:
		b.WriteString("❌ *Заявка отменена*\n")
	}

	fmt.Fprintf(&b, "Заявка: #%d\n", e.BookingID)
	fmt.Fprintf(&b, "Статус: %s → %s\n", e.PreviousStatus, e.NewStatus)
	fmt.Fprintf(&b, "Инициатор: %s\n", e.ActorRole)
	if e.Note != "" {
		fmt.Fprintf(&b, "Комментарий: %s\n", e.Note)
	}

	return b.String()
}

func formatCreated(booking *models.Booking) string {
	var b strings.Builder

	b.WriteString("🆕 *Новая заявка*\n")
	fmt.Fprintf(&b, "Заявка: #%d\n", booking.ID)
	fmt.Fprintf(&b, "Клиент: %d\n", booking.CustomerID)
	fmt.Fprintf(&b, "Услуга: %s\n", booking.ServiceType)
	fmt.Fprintf(&b, "Срочность: %s\n", booking.Urgency)
	fmt.Fprintf(&b, "Проблема: %s\n", booking.Issue)

	return b.String()
}
