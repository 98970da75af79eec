package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/giovanni-lunetta/giovanni-site/pkg/api"
)

const (
	pollTimeoutSec = 60
	retryDelay     = 3 * time.Second
)

// TextOnlyNotice answers messages without text (photos, stickers, voice).
const TextOnlyNotice = "I can only read text messages."

// TelegramConfig holds the bot credentials from @BotFather.
type TelegramConfig struct {
	Token string `json:"token"`
}

// botAPI is the part of *tgbotapi.BotAPI the channel uses.
type botAPI interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramChannel long-polls the Bot API and relays text messages.
type TelegramChannel struct {
	bot          botAPI
	messageLimit int
	transport    *http.Transport
	stopCtx      context.Context
	stopCancel   context.CancelFunc
}

// NewTelegramChannel authorizes the bot. Its HTTP transport dials under a
// context canceled by Stop, so an in-flight long poll is aborted on shutdown
// and a restarted bot does not hit 409 Conflict.
func NewTelegramChannel(cfg TelegramConfig, msgLimit int) (*TelegramChannel, error) {
	ctx, cancel := context.WithCancel(context.Background())

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext: func(dialCtx context.Context, network, addr string) (net.Conn, error) {
			mergedCtx, mergedCancel := context.WithCancel(dialCtx)
			go func() {
				select {
				case <-ctx.Done():
					mergedCancel()
				case <-mergedCtx.Done():
				}
			}()
			return dialer.DialContext(mergedCtx, network, addr)
		},
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	client := &http.Client{
		Timeout:   (pollTimeoutSec + 10) * time.Second,
		Transport: transport,
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, client)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	slog.Info("Telegram bot authorized", "username", bot.Self.UserName)

	t := newChannel(bot, msgLimit, ctx, cancel)
	t.transport = transport
	return t, nil
}

func newChannel(bot botAPI, msgLimit int, stopCtx context.Context, stopCancel context.CancelFunc) *TelegramChannel {
	if msgLimit <= 0 {
		msgLimit = 4000
	}
	return &TelegramChannel{
		bot:          bot,
		messageLimit: msgLimit,
		stopCtx:      stopCtx,
		stopCancel:   stopCancel,
	}
}

// ID returns "telegram".
func (t *TelegramChannel) ID() string {
	return "telegram"
}

// Start runs the long-poll loop in the background.
func (t *TelegramChannel) Start(ctx api.ChannelContext) error {
	go t.poll(ctx)
	return nil
}

func (t *TelegramChannel) poll(ctx api.ChannelContext) {
	offset := 0

	for {
		select {
		case <-t.stopCtx.Done():
			return
		default:
		}

		req := tgbotapi.NewUpdate(offset)
		req.Timeout = pollTimeoutSec

		updates, err := t.bot.GetUpdates(req)
		if err != nil {
			select {
			case <-t.stopCtx.Done():
				return
			case <-time.After(retryDelay):
				slog.Debug("Failed to get telegram updates", "error", err)
				continue
			}
		}

		for _, update := range updates {
			if update.UpdateID < offset {
				continue
			}
			offset = update.UpdateID + 1
			t.handleUpdate(ctx, update)
		}
	}
}

// handleUpdate turns one update into a UnifiedMessage. Each message is
// handled on its own goroutine so a slow turn never stalls polling.
func (t *TelegramChannel) handleUpdate(ctx api.ChannelContext, update tgbotapi.Update) {
	m := update.Message
	if m == nil || m.From == nil {
		return
	}

	session := api.SessionContext{
		ChannelID: t.ID(),
		UserID:    strconv.FormatInt(m.From.ID, 10),
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		Username:  m.From.UserName,
	}

	if strings.TrimSpace(m.Text) == "" {
		slog.Debug("Ignoring non-text telegram message", "chat", session.ChatID)
		if err := t.Send(session, TextOnlyNotice); err != nil {
			slog.Warn("Failed to send notice", "error", err)
		}
		return
	}

	msg := &api.UnifiedMessage{
		Session: session,
		Content: m.Text,
		Raw:     update,
	}
	go ctx.OnMessage(t.ID(), msg)
}

// SendSignal implements api.SignalingChannel by showing the typing indicator.
func (t *TelegramChannel) SendSignal(session api.SessionContext, signal string) error {
	if signal != api.SignalThinking {
		return nil
	}
	chatID, err := strconv.ParseInt(session.ChatID, 10, 64)
	if err != nil {
		return err
	}
	_, err = t.bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	return err
}

func (t *TelegramChannel) Stop() error {
	t.stopCancel()
	if t.transport != nil {
		t.transport.CloseIdleConnections()
	}
	return nil
}

// Send delivers message, split into chunks of at most messageLimit characters.
func (t *TelegramChannel) Send(session api.SessionContext, message string) error {
	chatID, err := strconv.ParseInt(session.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id for telegram: %s", session.ChatID)
	}

	for i, chunk := range splitMessage(message, t.messageLimit) {
		if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return fmt.Errorf("telegram send chunk %d failed: %w", i, err)
		}
	}
	return nil
}

// splitMessage cuts text into pieces of at most limit runes, preferring to
// break after a newline or space in the second half of a piece.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i >= limit/2; i-- {
			if runes[i] == '\n' || runes[i] == ' ' {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
