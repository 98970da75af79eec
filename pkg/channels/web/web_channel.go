package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/giovanni-lunetta/giovanni-site/pkg/api"
	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
	"github.com/giovanni-lunetta/giovanni-site/pkg/tools"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultPort is used when the config leaves port empty.
const DefaultPort = 8080

const (
	maxMessageBytes = 16 << 10
	maxFormBytes    = 8 << 10
	writeTimeout    = 10 * time.Second
)

// Outbound frame types.
const (
	TypeReply   = "reply"
	TypeError   = "error"
	TypeSignal  = "signal"
	TypeHistory = "history"
)

// WebConfig configures the HTTP listener.
type WebConfig struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port"`
	// AllowedOrigins restricts websocket origins. Empty allows all, for a decoupled UI.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// IncomingMessage is a chat frame sent by the browser.
type IncomingMessage struct {
	Text string `json:"text"`
}

// OutgoingMessage is a frame sent to the browser.
type OutgoingMessage struct {
	Type    string     `json:"type"`
	Text    string     `json:"text,omitempty"`
	Value   string     `json:"value,omitempty"`
	Session string     `json:"session,omitempty"`
	Data    []llm.Turn `json:"data,omitempty"`
}

// ContactRequest is the body of POST /contact.
type ContactRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Notes string `json:"notes"`
}

// ContactResponse is returned by POST /contact.
type ContactResponse struct {
	Message string `json:"message"`
}

// SafeConn serializes writes to a websocket connection.
type SafeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (sc *SafeConn) WriteJSONFrame(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	_ = sc.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return sc.Conn.WriteMessage(websocket.TextMessage, data)
}

// WebChannel serves the chat websocket, the contact form, health and metrics.
type WebChannel struct {
	config      WebConfig
	server      *http.Server
	upgrader    websocket.Upgrader
	sessions    *llm.SessionManager
	contacts    api.ContactRecorder
	gatherer    prometheus.Gatherer
	connections map[string]*SafeConn // connection id -> socket
	mu          sync.RWMutex
}

// NewWebChannel creates the channel. contacts and gatherer may be nil, which
// disables /contact and /metrics respectively.
func NewWebChannel(cfg WebConfig, sessions *llm.SessionManager, contacts api.ContactRecorder, gatherer prometheus.Gatherer) *WebChannel {
	c := &WebChannel{
		config:      cfg,
		sessions:    sessions,
		contacts:    contacts,
		gatherer:    gatherer,
		connections: make(map[string]*SafeConn),
	}
	c.upgrader = websocket.Upgrader{CheckOrigin: c.checkOrigin}
	return c
}

func (c *WebChannel) ID() string {
	return "web"
}

func (c *WebChannel) checkOrigin(r *http.Request) bool {
	if len(c.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range c.config.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}

// Handler returns the HTTP routes of the channel bound to ctx.
func (c *WebChannel) Handler(ctx api.ChannelContext) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		c.handleWebSocket(w, r, ctx)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if c.contacts != nil {
		mux.HandleFunc("/contact", c.handleContact)
	}
	if c.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

func (c *WebChannel) Start(ctx api.ChannelContext) error {
	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
	c.server = &http.Server{
		Addr:              addr,
		Handler:           c.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Web API listening", "addr", addr)

	go func() {
		if err := c.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Web API server error", "error", err)
		}
	}()

	return nil
}

func (c *WebChannel) Stop() error {
	if c.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.mu.Lock()
	for id, conn := range c.connections {
		conn.Close()
		delete(c.connections, id)
	}
	c.mu.Unlock()

	return c.server.Shutdown(shutdownCtx)
}

func (c *WebChannel) connection(session api.SessionContext) (*SafeConn, error) {
	c.mu.RLock()
	conn, ok := c.connections[session.UserID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("web user %s not connected", session.UserID)
	}
	return conn, nil
}

func (c *WebChannel) Send(session api.SessionContext, message string) error {
	conn, err := c.connection(session)
	if err != nil {
		return err
	}
	return conn.WriteJSONFrame(OutgoingMessage{Type: TypeReply, Text: message})
}

// SendError implements api.ErrorChannel.
func (c *WebChannel) SendError(session api.SessionContext, message string) error {
	conn, err := c.connection(session)
	if err != nil {
		return err
	}
	return conn.WriteJSONFrame(OutgoingMessage{Type: TypeError, Text: message})
}

// SendSignal implements api.SignalingChannel.
func (c *WebChannel) SendSignal(session api.SessionContext, signal string) error {
	conn, err := c.connection(session)
	if err != nil {
		return err
	}
	return conn.WriteJSONFrame(OutgoingMessage{Type: TypeSignal, Value: signal})
}

// sessionID returns the conversation a socket resumes. Browsers pass the id
// received in the history frame as ?session=; anything else starts fresh.
func sessionID(r *http.Request) string {
	if id, err := uuid.Parse(r.URL.Query().Get("session")); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

func (c *WebChannel) handleWebSocket(w http.ResponseWriter, r *http.Request, ctx api.ChannelContext) {
	rawConn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WS upgrade failed", "error", err)
		return
	}
	rawConn.SetReadLimit(maxMessageBytes)
	conn := &SafeConn{Conn: rawConn}

	connID := uuid.NewString()
	session := api.SessionContext{
		ChannelID: c.ID(),
		UserID:    connID,
		ChatID:    sessionID(r),
		Username:  "visitor",
	}

	c.mu.Lock()
	c.connections[connID] = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.connections, connID)
		c.mu.Unlock()
		conn.Close()
	}()

	hello := OutgoingMessage{Type: TypeHistory, Session: session.ChatID}
	if h, err := c.sessions.GetHistory(session.Key()); err == nil {
		hello.Data = h.Turns()
	} else {
		slog.Warn("Failed to load web history", "session", session.ChatID, "error", err)
	}
	if err := conn.WriteJSONFrame(hello); err != nil {
		slog.Debug("Failed to send history", "error", err)
		return
	}

	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("WS read failed", "error", err)
			}
			return
		}

		var incoming IncomingMessage
		if err := json.Unmarshal(msgBytes, &incoming); err != nil {
			// plain text frames are accepted as-is
			incoming.Text = string(msgBytes)
		}
		if strings.TrimSpace(incoming.Text) == "" {
			continue
		}

		ctx.OnMessage(c.ID(), &api.UnifiedMessage{
			Session: session,
			Content: incoming.Text,
		})
	}
}

func (c *WebChannel) handleContact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, ContactResponse{Message: "method not allowed"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)

	var req ContactRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ContactResponse{Message: "invalid request body"})
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, ContactResponse{Message: "invalid form"})
			return
		}
		req = ContactRequest{
			Email: r.PostFormValue("email"),
			Name:  r.PostFormValue("name"),
			Notes: r.PostFormValue("notes"),
		}
	}

	confirmation, err := c.contacts.SubmitContactForm(r.Context(), req.Email, req.Name, req.Notes)
	switch {
	case errors.Is(err, tools.ErrInvalidEmail):
		writeJSON(w, http.StatusBadRequest, ContactResponse{Message: err.Error()})
	case err != nil:
		slog.ErrorContext(r.Context(), "Contact form failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, ContactResponse{Message: "could not record your details, please try again"})
	default:
		writeJSON(w, http.StatusOK, ContactResponse{Message: confirmation})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}
