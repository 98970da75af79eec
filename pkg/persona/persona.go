// Package persona holds the grounding context a chat persona answers from and
// the prompts built from it. Prompt construction is a pure function of the
// context, the prior turns and the new message.
package persona

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
)

// GroundingContext is the static background injected into every prompt.
// It is built once at startup and shared read-only by pointer across turns.
type GroundingContext struct {
	name    string
	summary string
	resume  string
	profile string
}

// New builds a grounding context. resume may be empty.
func New(name, summary, resume, profile string) *GroundingContext {
	return &GroundingContext{
		name:    name,
		summary: summary,
		resume:  resume,
		profile: profile,
	}
}

func (g *GroundingContext) Name() string    { return g.name }
func (g *GroundingContext) Summary() string { return g.summary }
func (g *GroundingContext) Resume() string  { return g.resume }
func (g *GroundingContext) Profile() string { return g.profile }

// HasResume reports whether a resume was loaded.
func (g *GroundingContext) HasResume() bool {
	return g.resume != ""
}

// writeBackground appends the summary, optional resume and profile sections.
func (g *GroundingContext) writeBackground(sb *strings.Builder) {
	fmt.Fprintf(sb, "\n\n## Summary:\n%s\n\n", g.summary)
	if g.HasResume() {
		fmt.Fprintf(sb, "## Resume:\n%s\n\n", g.resume)
	}
	fmt.Fprintf(sb, "## LinkedIn Profile:\n%s\n\n", g.profile)
}

// SystemPrompt is the instruction the generator runs under.
func (g *GroundingContext) SystemPrompt() string {
	n := g.name
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are acting as %s. You are answering questions on %s's website, "+
		"particularly questions related to %s's career, background, skills and experience. "+
		"Your responsibility is to represent %s for interactions on the website as faithfully as possible. "+
		"You are given a summary of %s's background, LinkedIn profile, and resume which you can use to answer questions. "+
		"Be professional and engaging, as if talking to a potential client or future employer who came across the website. "+
		"If you don't know the answer to any question, use your record_unknown_question tool to record the question that you couldn't answer, even if it's about something trivial or unrelated to career. "+
		"If the user is engaging in discussion, try to steer them towards getting in touch via email; ask for their email and record it using your record_user_details tool. ",
		n, n, n, n, n)
	g.writeBackground(&sb)
	fmt.Fprintf(&sb, "With this context, please chat with the user, always staying in character as %s.", n)
	return sb.String()
}

// RejectionMarker heads the section appended to the system prompt on regeneration.
const RejectionMarker = "## Previous answer rejected"

// RegenerationPrompt extends the system prompt with a rejected answer and the reason.
func (g *GroundingContext) RegenerationPrompt(rejected, feedback string) string {
	var sb strings.Builder
	sb.WriteString(g.SystemPrompt())
	sb.WriteString("\n\n" + RejectionMarker + "\nYou just tried to reply, but the quality control rejected your reply\n")
	fmt.Fprintf(&sb, "## Your attempted answer:\n%s\n\n", rejected)
	fmt.Fprintf(&sb, "## Reason for rejection:\n%s\n\n", feedback)
	sb.WriteString("Please provide a better response that addresses the feedback.")
	return sb.String()
}

// EvaluatorSystemPrompt instructs the evaluator model.
func (g *GroundingContext) EvaluatorSystemPrompt() string {
	n := g.name
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are an evaluator that decides whether a response to a question is acceptable. "+
		"You are provided with a conversation between a User and an Agent. Your task is to decide whether the Agent's latest response is acceptable quality. "+
		"The Agent is playing the role of %s and is representing %s on their website. "+
		"The Agent has been instructed to be professional and engaging, as if talking to a potential client or future employer who came across the website. "+
		"The Agent has been provided with context on %s in the form of their summary, resume, and LinkedIn details. Here's the information:",
		n, n, n)
	g.writeBackground(&sb)
	sb.WriteString("With this context, please evaluate the latest response, replying with whether the response is acceptable and your feedback.")
	return sb.String()
}

// EvaluatorUserPrompt renders the transcript, latest message and candidate reply.
func EvaluatorUserPrompt(reply, message string, history []llm.Message) string {
	var transcript strings.Builder
	for _, m := range history {
		role := m.Role
		if role == "" {
			role = "unknown"
		}
		fmt.Fprintf(&transcript, "%s: %s\n\n", capitalize(role), m.Content)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Here's the conversation between the User and the Agent:\n\n%s\n\n", transcript.String())
	fmt.Fprintf(&sb, "Here's the latest message from the User:\n\n%s\n\n", message)
	fmt.Fprintf(&sb, "Here's the latest response from the Agent:\n\n%s\n\n", reply)
	sb.WriteString("Please evaluate the response, replying with whether it is acceptable and your feedback. " +
		"Respond ONLY with a JSON object in the following format: " +
		"{\"is_acceptable\": boolean, \"feedback\": string}. " +
		"Do not include any extra text outside this json.")
	return sb.String()
}

// Conversation assembles system prompt, prior turns and the new user message.
// Only role and content of history entries are carried over.
func Conversation(systemPrompt string, history []llm.Message, message string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	for _, h := range history {
		msgs = append(msgs, llm.Message{Role: h.Role, Content: h.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: message})
	return msgs
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
