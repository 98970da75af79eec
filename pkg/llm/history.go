package llm

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ChatHistory is the role/content transcript of one session.
// Only user messages and final assistant replies are kept; tool exchanges stay inside a turn.
type ChatHistory struct {
	messages []Message
	mu       sync.RWMutex
}

// NewChatHistory creates an empty history.
func NewChatHistory() *ChatHistory {
	return &ChatHistory{
		messages: make([]Message, 0),
	}
}

// Add appends a message.
func (h *ChatHistory) Add(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msg)
}

// AddExchange appends a user message and its reply atomically.
func (h *ChatHistory) AddExchange(user, reply string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, NewUserMessage(user), NewAssistantMessage(reply))
}

// GetMessages returns a copy of the history.
func (h *ChatHistory) GetMessages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cp := make([]Message, len(h.messages))
	copy(cp, h.messages)
	return cp
}

// Turns returns the history as role/content pairs.
func (h *ChatHistory) Turns() []Turn {
	return ToTurns(h.GetMessages())
}

// Len returns the number of stored messages.
func (h *ChatHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Save writes the history to path as JSON.
func (h *ChatHistory) Save(path string) error {
	h.mu.RLock()
	data, err := json.MarshalIndent(h.messages, "", "  ")
	h.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create history dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load replaces the history with the content of path. A missing file is not an error.
func (h *ChatHistory) Load(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return fmt.Errorf("failed to parse history %s: %w", path, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = msgs
	return nil
}
