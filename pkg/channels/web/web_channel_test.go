package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giovanni-lunetta/giovanni-site/pkg/api"
	"github.com/giovanni-lunetta/giovanni-site/pkg/channels"
	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
	"github.com/giovanni-lunetta/giovanni-site/pkg/tools"
)

// echoContext answers every message through the channel itself.
type echoContext struct {
	ch   *WebChannel
	fail bool
}

func (e *echoContext) SendReply(s api.SessionContext, content string) error {
	return e.ch.Send(s, content)
}

func (e *echoContext) SendError(s api.SessionContext, content string) error {
	return e.ch.SendError(s, content)
}

func (e *echoContext) SendSignal(s api.SessionContext, signal string) error {
	return e.ch.SendSignal(s, signal)
}

func (e *echoContext) OnMessage(_ string, msg *api.UnifiedMessage) {
	_ = e.SendSignal(msg.Session, api.SignalThinking)
	if e.fail {
		_ = e.SendError(msg.Session, "boom")
		return
	}
	_ = e.SendReply(msg.Session, "echo: "+msg.Content)
}

type fakeContacts struct {
	got []ContactRequest
}

func (f *fakeContacts) SubmitContactForm(_ context.Context, email, name, notes string) (string, error) {
	if !strings.Contains(email, "@") {
		return "", tools.ErrInvalidEmail
	}
	f.got = append(f.got, ContactRequest{Email: email, Name: name, Notes: notes})
	return "Thanks! I'll be in touch soon.", nil
}

func newServer(t *testing.T, fail bool) (*httptest.Server, *WebChannel, *llm.SessionManager, *fakeContacts) {
	t.Helper()
	sessions := llm.NewSessionManager("")
	contacts := &fakeContacts{}
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	ch := NewWebChannel(WebConfig{Port: DefaultPort}, sessions, contacts, reg)
	srv := httptest.NewServer(ch.Handler(&echoContext{ch: ch, fail: fail}))
	t.Cleanup(srv.Close)
	return srv, ch, sessions, contacts
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) OutgoingMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg OutgoingMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWebSocketChat(t *testing.T) {
	srv, _, _, _ := newServer(t, false)
	conn := dial(t, srv, "")

	hello := readFrame(t, conn)
	assert.Equal(t, TypeHistory, hello.Type)
	assert.NotEmpty(t, hello.Session)
	assert.Empty(t, hello.Data)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"text":"hi"}`)))
	signal := readFrame(t, conn)
	assert.Equal(t, TypeSignal, signal.Type)
	assert.Equal(t, api.SignalThinking, signal.Value)

	reply := readFrame(t, conn)
	assert.Equal(t, TypeReply, reply.Type)
	assert.Equal(t, "echo: hi", reply.Text)

	// plain text frames are accepted too
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("plain")))
	readFrame(t, conn)
	assert.Equal(t, "echo: plain", readFrame(t, conn).Text)
}

func TestWebSocketError(t *testing.T) {
	srv, _, _, _ := newServer(t, true)
	conn := dial(t, srv, "")
	readFrame(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"text":"hi"}`)))
	readFrame(t, conn)
	msg := readFrame(t, conn)
	assert.Equal(t, TypeError, msg.Type)
	assert.Equal(t, "boom", msg.Text)
}

func TestWebSocketResumesHistory(t *testing.T) {
	srv, _, sessions, _ := newServer(t, false)
	id := "6f1c1a52-3f0e-4a43-9b8e-6a2f0b2f7c11"

	h, err := sessions.GetHistory(api.SessionContext{ChannelID: "web", ChatID: id}.Key())
	require.NoError(t, err)
	h.AddExchange("hello", "Hi, I'm Giovanni.")

	conn := dial(t, srv, "?session="+id)
	hello := readFrame(t, conn)
	assert.Equal(t, id, hello.Session)
	assert.Equal(t, []llm.Turn{
		{Role: llm.RoleUser, Content: "hello"},
		{Role: llm.RoleAssistant, Content: "Hi, I'm Giovanni."},
	}, hello.Data)

	other := dial(t, srv, "?session=not-a-uuid")
	assert.NotEqual(t, "not-a-uuid", readFrame(t, other).Session)
}

func TestSendToUnknownConnection(t *testing.T) {
	ch := NewWebChannel(WebConfig{}, llm.NewSessionManager(""), nil, nil)
	assert.Error(t, ch.Send(api.SessionContext{UserID: "nobody"}, "hi"))
}

func TestContactForm(t *testing.T) {
	srv, _, _, contacts := newServer(t, false)

	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
	}{
		{"json", "application/json", `{"email":"ada@example.com","name":"Ada"}`, http.StatusOK},
		{"form", "application/x-www-form-urlencoded", url.Values{"email": {"bob@example.com"}, "notes": {"hiring"}}.Encode(), http.StatusOK},
		{"invalid email", "application/json", `{"email":"nope"}`, http.StatusBadRequest},
		{"bad json", "application/json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/contact", tt.contentType, strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var out ContactResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			assert.NotEmpty(t, out.Message)
		})
	}

	require.Len(t, contacts.got, 2)
	assert.Equal(t, "ada@example.com", contacts.got[0].Email)
	assert.Equal(t, "hiring", contacts.got[1].Notes)

	resp, err := http.Get(srv.URL + "/contact")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _, _, _ := newServer(t, false)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "test_total 1")
}

func TestFactory(t *testing.T) {
	f := &WebFactory{}

	_, err := f.Create([]byte(`{"port": 9000}`), channels.Deps{})
	assert.Error(t, err)

	ch, err := f.Create([]byte(`{"port": 9000}`), channels.Deps{Sessions: llm.NewSessionManager("")})
	require.NoError(t, err)
	assert.Equal(t, 9000, ch.(*WebChannel).config.Port)

	ch, err = f.Create(nil, channels.Deps{Sessions: llm.NewSessionManager("")})
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, ch.(*WebChannel).config.Port)
}
