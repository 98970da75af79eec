// Package audit appends line-delimited JSON records for offline review.
// Writes are serialized per stream so concurrent turns never interleave mid-record.
package audit

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Stream file names under the data directory.
const (
	EvaluationsFile      = "evaluations.jsonl"
	UnknownQuestionsFile = "unknown_questions.jsonl"
	ContactsFile         = "contacts.jsonl"
)

// EvaluationRecord is written once per successful evaluation, whatever the verdict.
type EvaluationRecord struct {
	Timestamp    string     `json:"timestamp"`
	Provider     string     `json:"provider"`
	Model        string     `json:"model"`
	Message      string     `json:"message"`
	Reply        string     `json:"reply"`
	History      []llm.Turn `json:"history"`
	IsAcceptable bool       `json:"is_acceptable"`
	Feedback     string     `json:"feedback"`
}

// UnknownQuestionRecord captures a question the persona could not answer.
type UnknownQuestionRecord struct {
	Question  string `json:"question"`
	Timestamp string `json:"timestamp"`
}

// ContactRecord captures contact details left by a visitor.
type ContactRecord struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Notes     string `json:"notes"`
	Source    string `json:"source"` // "tool" or "form"
	Timestamp string `json:"timestamp"`
}

// Recorder is the write-only view of the audit log used by the core.
type Recorder interface {
	RecordEvaluation(rec EvaluationRecord) error
	RecordUnknownQuestion(rec UnknownQuestionRecord) error
	RecordContact(rec ContactRecord) error
}

// Log is a file-backed Recorder.
type Log struct {
	dir   string
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	now   func() time.Time
}

// NewLog creates a log rooted at dir. The directory is created on first write.
func NewLog(dir string) *Log {
	return &Log{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
}

// Now returns the current UTC time formatted for records.
func (l *Log) Now() string {
	return l.now().UTC().Format(time.RFC3339Nano)
}

func (l *Log) RecordEvaluation(rec EvaluationRecord) error {
	if rec.Timestamp == "" {
		rec.Timestamp = l.Now()
	}
	return l.append(EvaluationsFile, rec)
}

func (l *Log) RecordUnknownQuestion(rec UnknownQuestionRecord) error {
	if rec.Timestamp == "" {
		rec.Timestamp = l.Now()
	}
	return l.append(UnknownQuestionsFile, rec)
}

func (l *Log) RecordContact(rec ContactRecord) error {
	if rec.Timestamp == "" {
		rec.Timestamp = l.Now()
	}
	return l.append(ContactsFile, rec)
}

func (l *Log) lockFor(name string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[name]
	if !ok {
		m = &sync.Mutex{}
		l.locks[name] = m
	}
	return m
}

// append marshals v and writes it as one line with a single write call.
func (l *Log) append(name string, v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("audit: marshal %s record: %w", name, err)
	}
	line = append(line, '\n')

	m := l.lockFor(name)
	m.Lock()
	defer m.Unlock()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("audit: create dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(l.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", name, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("audit: write %s: %w", name, err)
	}
	return nil
}

// BestEffort wraps a Recorder so failures are logged and swallowed.
type BestEffort struct {
	Recorder Recorder
}

func (b BestEffort) RecordEvaluation(rec EvaluationRecord) error {
	if err := b.Recorder.RecordEvaluation(rec); err != nil {
		slog.Error("Failed to log evaluation", "error", err)
	}
	return nil
}

func (b BestEffort) RecordUnknownQuestion(rec UnknownQuestionRecord) error {
	if err := b.Recorder.RecordUnknownQuestion(rec); err != nil {
		slog.Error("Failed to log unknown question", "error", err)
	}
	return nil
}

func (b BestEffort) RecordContact(rec ContactRecord) error {
	if err := b.Recorder.RecordContact(rec); err != nil {
		slog.Error("Failed to log contact", "error", err)
	}
	return nil
}

// Nop discards every record.
type Nop struct{}

func (Nop) RecordEvaluation(EvaluationRecord) error           { return nil }
func (Nop) RecordUnknownQuestion(UnknownQuestionRecord) error { return nil }
func (Nop) RecordContact(ContactRecord) error                 { return nil }
