package llm

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

var filenameSafeRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)

// SessionManager keeps one ChatHistory per session id, optionally persisted to disk.
type SessionManager struct {
	histories map[string]*ChatHistory
	storage   string
	mu        sync.RWMutex
}

// NewSessionManager creates a manager. An empty storage keeps histories in memory only.
func NewSessionManager(storage string) *SessionManager {
	if storage != "" {
		if err := os.MkdirAll(storage, 0755); err != nil {
			slog.Warn("Failed to create history storage, keeping histories in memory", "dir", storage, "error", err)
			storage = ""
		}
	}
	return &SessionManager{
		histories: make(map[string]*ChatHistory),
		storage:   storage,
	}
}

// GetHistory returns the history for sessionID, loading or creating it.
func (sm *SessionManager) GetHistory(sessionID string) (*ChatHistory, error) {
	sm.mu.RLock()
	h, ok := sm.histories[sessionID]
	sm.mu.RUnlock()

	if ok {
		return h, nil
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	// Double check under lock
	if h, ok = sm.histories[sessionID]; ok {
		return h, nil
	}

	h = NewChatHistory()
	if sm.storage != "" {
		if err := h.Load(sm.historyPath(sessionID)); err != nil {
			return nil, err
		}
	}

	sm.histories[sessionID] = h
	return h, nil
}

// SaveSession persists a session's history. No-op without storage.
func (sm *SessionManager) SaveSession(sessionID string) error {
	sm.mu.RLock()
	h, ok := sm.histories[sessionID]
	sm.mu.RUnlock()

	if !ok || sm.storage == "" {
		return nil
	}
	return h.Save(sm.historyPath(sessionID))
}

func (sm *SessionManager) historyPath(sessionID string) string {
	safeID := filenameSafeRegex.ReplaceAllString(sessionID, "_")
	return filepath.Join(sm.storage, fmt.Sprintf("history_%s.json", safeID))
}
