package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushover_PostsForm(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		got = map[string]string{
			"token":   r.PostForm.Get("token"),
			"user":    r.PostForm.Get("user"),
			"message": r.PostForm.Get("message"),
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPushover("tok", "usr")
	p.Endpoint = srv.URL

	require.NoError(t, p.Notify(context.Background(), "Recording hello"))
	assert.Equal(t, map[string]string{"token": "tok", "user": "usr", "message": "Recording hello"}, got)
}

func TestPushover_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":0}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewPushover("tok", "usr")
	p.Endpoint = srv.URL

	err := p.Notify(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func TestTelegram_SendsToOwnerChat(t *testing.T) {
	s := &fakeSender{}
	n := &Telegram{bot: s, chatID: 42}

	require.NoError(t, n.Notify(context.Background(), "Recording question"))
	require.Len(t, s.sent, 1)
	msg, ok := s.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "Recording question", msg.Text)
}

type recordingNotifier struct {
	texts []string
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, text string) error {
	r.texts = append(r.texts, text)
	return r.err
}

func TestMultiAndBestEffort(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("boom")}

	err := Multi{ok, bad}.Notify(context.Background(), "hi")
	require.Error(t, err)
	assert.Equal(t, []string{"hi"}, ok.texts)
	assert.Equal(t, []string{"hi"}, bad.texts)

	assert.NoError(t, BestEffort{Notifier: Multi{bad}}.Notify(context.Background(), "hi"))
	assert.NoError(t, BestEffort{}.Notify(context.Background(), "hi"))
}
