package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// PushoverEndpoint is the Pushover message API.
const PushoverEndpoint = "https://api.pushover.net/1/messages.json"

// Pushover sends messages through the Pushover API.
type Pushover struct {
	Token    string
	User     string
	Endpoint string
	Client   *http.Client
}

// NewPushover creates a Pushover notifier with a bounded HTTP client.
func NewPushover(token, user string) *Pushover {
	return &Pushover{
		Token:    token,
		User:     user,
		Endpoint: PushoverEndpoint,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *Pushover) Notify(ctx context.Context, text string) error {
	form := url.Values{
		"token":   {p.Token},
		"user":    {p.User},
		"message": {text},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("pushover: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("pushover: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("pushover: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
