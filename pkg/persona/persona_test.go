package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giovanni-lunetta/giovanni-site/pkg/config"
	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
)

func TestSystemPrompt_ResumeSectionOnlyWhenPresent(t *testing.T) {
	with := New("Ada", "summary text", "resume text", "profile text").SystemPrompt()
	without := New("Ada", "summary text", "", "profile text").SystemPrompt()

	assert.Contains(t, with, "## Resume:\nresume text")
	assert.NotContains(t, without, "## Resume:")
	for _, p := range []string{with, without} {
		assert.True(t, strings.HasPrefix(p, "You are acting as Ada."))
		assert.Contains(t, p, "## Summary:\nsummary text")
		assert.Contains(t, p, "## LinkedIn Profile:\nprofile text")
		assert.True(t, strings.HasSuffix(p, "always staying in character as Ada."))
	}
}

func TestRegenerationPrompt(t *testing.T) {
	g := New("Ada", "s", "", "p")
	prompt := g.RegenerationPrompt("I led project X.", "Too vague, name the project.")

	assert.True(t, strings.HasPrefix(prompt, g.SystemPrompt()))
	assert.Contains(t, prompt, RejectionMarker)
	assert.Contains(t, prompt, "## Your attempted answer:\nI led project X.")
	assert.Contains(t, prompt, "## Reason for rejection:\nToo vague, name the project.")
}

func TestEvaluatorUserPrompt(t *testing.T) {
	history := []llm.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Content: "orphan"},
	}
	prompt := EvaluatorUserPrompt("reply", "question", history)

	assert.Contains(t, prompt, "User: hi\n\nAssistant: hello\n\nUnknown: orphan\n\n")
	assert.Contains(t, prompt, "Here's the latest message from the User:\n\nquestion")
	assert.Contains(t, prompt, "Here's the latest response from the Agent:\n\nreply")
	assert.Contains(t, prompt, `{"is_acceptable": boolean, "feedback": string}`)
}

func TestCapitalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"user", "User"},
		{"ASSISTANT", "Assistant"},
		{"élève", "Élève"},
		{"ömer", "Ömer"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, capitalize(tt.in), tt.in)
	}
}

func TestConversation_IsPure(t *testing.T) {
	g := New("Ada", "s", "r", "p")
	history := []llm.Message{
		{Role: "user", Content: "a", Timestamp: 1},
		{Role: "assistant", Content: "b", ToolCallID: "ignored"},
	}

	first := Conversation(g.SystemPrompt(), history, "c")
	second := Conversation(g.SystemPrompt(), history, "c")

	assert.Equal(t, first, second)
	require.Len(t, first, 4)
	assert.Equal(t, llm.RoleSystem, first[0].Role)
	assert.Equal(t, llm.Message{Role: "user", Content: "a"}, first[1])
	assert.Equal(t, llm.Message{Role: "assistant", Content: "b"}, first[2])
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "c"}, first[3])
}

func TestLoad_TextDocuments(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
		return p
	}

	cfg := config.PersonaConfig{
		Name:        "Ada",
		SummaryPath: write("summary.txt", "I build analytical engines."),
		ProfilePath: write("linkedin.txt", "Mathematician."),
		ResumePath:  filepath.Join(dir, "resume.pdf"),
	}

	g, err := Load(cfg)
	require.NoError(t, err)
	assert.Equal(t, "Ada", g.Name())
	assert.Equal(t, "I build analytical engines.", g.Summary())
	assert.Equal(t, "Mathematician.", g.Profile())
	assert.False(t, g.HasResume())
}

func TestLoad_MissingSummaryFails(t *testing.T) {
	_, err := Load(config.PersonaConfig{
		Name:        "Ada",
		SummaryPath: filepath.Join(t.TempDir(), "missing.txt"),
		ProfilePath: "irrelevant.txt",
	})
	assert.Error(t, err)
}
