package audit

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestRecordEvaluation(t *testing.T) {
	dir := t.TempDir()
	l := NewLog(dir)
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	err := l.RecordEvaluation(EvaluationRecord{
		Provider:     "gemini",
		Model:        "gemini-2.0-flash",
		Message:      "What projects are you proud of?",
		Reply:        "I led project X.",
		History:      []llm.Turn{{Role: "user", Content: "hi"}},
		IsAcceptable: true,
	})
	require.NoError(t, err)

	lines := readLines(t, filepath.Join(dir, EvaluationsFile))
	require.Len(t, lines, 1)

	var got EvaluationRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, "2026-01-02T03:04:05Z", got.Timestamp)
	assert.Equal(t, "gemini-2.0-flash", got.Model)
	assert.True(t, got.IsAcceptable)
	assert.Equal(t, []llm.Turn{{Role: "user", Content: "hi"}}, got.History)
}

func TestConcurrentAppendsDoNotInterleave(t *testing.T) {
	dir := t.TempDir()
	l := NewLog(dir)

	const writers, perWriter = 8, 50
	big := make([]byte, 8192)
	for i := range big {
		big[i] = 'x'
	}

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				q := fmt.Sprintf("%d-%d-%s", w, i, big)
				assert.NoError(t, l.RecordUnknownQuestion(UnknownQuestionRecord{Question: q}))
			}
		}(w)
	}
	wg.Wait()

	lines := readLines(t, filepath.Join(dir, UnknownQuestionsFile))
	require.Len(t, lines, writers*perWriter)
	for _, line := range lines {
		var rec UnknownQuestionRecord
		require.NoError(t, json.Unmarshal([]byte(line), &rec), "corrupt line")
		assert.NotEmpty(t, rec.Timestamp)
	}
}

type failingRecorder struct{ Nop }

func (failingRecorder) RecordContact(ContactRecord) error { return errors.New("disk full") }

func TestBestEffortSwallowsErrors(t *testing.T) {
	r := BestEffort{Recorder: failingRecorder{}}
	assert.NoError(t, r.RecordContact(ContactRecord{Email: "a@b.c"}))
}
