// Package handler runs one persona turn for every message the gateway receives.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/giovanni-lunetta/giovanni-site/pkg/agent"
	"github.com/giovanni-lunetta/giovanni-site/pkg/api"
	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
	"github.com/giovanni-lunetta/giovanni-site/pkg/monitor"
)

// Messages shown to the user when a turn cannot produce a reply.
const (
	GenericErrorMessage = "Sorry, something went wrong while answering. Please try again in a moment."
	TimeoutMessage      = "Sorry, that took too long. Please try again."
)

// ChatHandler owns the per-session history and hands each message to the turn controller.
// Only the user message and the final reply of a successful turn enter history.
type ChatHandler struct {
	responder api.Responder
	sessions  *llm.SessionManager
	gw        api.MessageResponder
	timeout   time.Duration

	locksMu sync.Mutex
	locks   map[string]*sessionLock
}

// sessionLock serializes turns of one session so history is read and written in order.
// refs counts turns holding or waiting on mu; the entry is dropped when it reaches zero.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewChatHandler creates a handler. timeout bounds one turn; zero means no bound.
func NewChatHandler(responder api.Responder, sessions *llm.SessionManager, timeout time.Duration) *ChatHandler {
	return &ChatHandler{
		responder: responder,
		sessions:  sessions,
		timeout:   timeout,
		locks:     make(map[string]*sessionLock),
	}
}

// SetResponder implements api.ResponderAware.
func (h *ChatHandler) SetResponder(r api.MessageResponder) {
	h.gw = r
}

func (h *ChatHandler) lockSession(key string) {
	h.locksMu.Lock()
	l, ok := h.locks[key]
	if !ok {
		l = &sessionLock{}
		h.locks[key] = l
	}
	l.refs++
	h.locksMu.Unlock()

	l.mu.Lock()
}

func (h *ChatHandler) unlockSession(key string) {
	h.locksMu.Lock()
	defer h.locksMu.Unlock()
	l := h.locks[key]
	l.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(h.locks, key)
	}
}

// OnMessage implements api.MessageProcessor.
func (h *ChatHandler) OnMessage(ctx context.Context, msg *api.UnifiedMessage) {
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return
	}

	ctx, _ = monitor.NewTurn(ctx)
	key := msg.Session.Key()

	h.lockSession(key)
	defer h.unlockSession(key)

	h.signal(msg.Session, api.SignalThinking)

	history, err := h.sessions.GetHistory(key)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load history", "session", key, "error", err)
		h.fail(ctx, msg.Session, GenericErrorMessage)
		return
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := h.responder.Respond(ctx, content, history.Turns())
	if err != nil {
		slog.ErrorContext(ctx, "Turn failed", "session", key, "duration", time.Since(start), "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			h.fail(ctx, msg.Session, TimeoutMessage)
		} else {
			h.fail(ctx, msg.Session, GenericErrorMessage)
		}
		return
	}
	slog.InfoContext(ctx, "Turn completed", "session", key, "duration", time.Since(start))

	history.AddExchange(content, reply)
	if err := h.sessions.SaveSession(key); err != nil {
		slog.WarnContext(ctx, "Failed to persist history", "session", key, "error", err)
	}

	if h.gw == nil {
		return
	}
	if err := h.gw.SendReply(msg.Session, reply); err != nil {
		slog.ErrorContext(ctx, "Failed to deliver reply", "session", key, "error", err)
	}
}

func (h *ChatHandler) signal(session api.SessionContext, signal string) {
	if h.gw == nil {
		return
	}
	if err := h.gw.SendSignal(session, signal); err != nil {
		slog.Debug("Failed to send signal", "signal", signal, "error", err)
	}
}

func (h *ChatHandler) fail(ctx context.Context, session api.SessionContext, text string) {
	if h.gw == nil {
		return
	}
	if err := h.gw.SendError(session, text); err != nil {
		slog.ErrorContext(ctx, "Failed to deliver error", "error", err)
	}
}

// compile-time checks
var (
	_ api.MessageProcessor = (*ChatHandler)(nil)
	_ api.ResponderAware   = (*ChatHandler)(nil)
	_ api.Responder        = (*agent.TurnController)(nil)
)
