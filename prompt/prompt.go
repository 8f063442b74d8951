// Package prompt assembles the single grounded prompt sent to the text-generation gateway.
package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/dhamidi/pmcopilot/history"
)

const (
	// HistoryWindow is how many stored messages are loaded for context.
	HistoryWindow = 20
	// ContextTurns is how many of the loaded messages are rendered into the prompt.
	ContextTurns = 10
)

// SystemInstructions is the fixed preamble of every prompt.
const SystemInstructions = `You are a helpful Predictive Maintenance Copilot assistant.

Your job is to help engineers and maintenance staff:
1. Understand which machines are at risk of failure
2. Prioritize maintenance activities
3. Explain why certain machines are flagged as risky
4. Provide actionable recommendations

When answering:
- Be concise but informative
- Prioritize safety and preventing unplanned downtime
- If risk is high, emphasize urgency
- Explain technical concepts in simple terms

Failure types:
- TWF (Tool Wear Failure): Tool needs replacement
- HDF (Heat Dissipation Failure): Cooling system issues
- PWF (Power Failure): Power consumption problems
- OSF (Overstrain Failure): Machine is overloaded
- RNF (Random Failure): Random/unexpected issues

Formatting:
- Separate paragraphs with one blank line
- Put list items on consecutive lines with single newlines between them
- Put a blank line before and after every list and every **bold** header line`

// Briefer produces the live system brief.
type Briefer interface {
	Summarize(ctx context.Context) (string, error)
}

// Conversations is the part of the conversation store the builder reads.
type Conversations interface {
	VerifyOwnership(ctx context.Context, conversationID, userID string) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]*history.Message, error)
}

// Turn is one rendered line of previous conversation.
type Turn struct {
	Role string
	Text string
}

// Request describes the message a prompt is built for.
type Request struct {
	Message string
	// ConversationID is empty for a brand-new conversation.
	ConversationID string
	UserID         string
}

// Builder assembles prompts. It holds no per-call state.
type Builder struct {
	briefer       Briefer
	conversations Conversations
}

// NewBuilder creates a Builder.
func NewBuilder(briefer Briefer, conversations Conversations) *Builder {
	return &Builder{briefer: briefer, conversations: conversations}
}

// Build verifies ownership of an existing conversation, then renders the
// instructions, the system brief, recent history and the new message.
// If the user does not own the conversation, history.ErrUnauthorized is
// returned and nothing else is read.
func (b *Builder) Build(ctx context.Context, req Request) (string, error) {
	var turns []Turn
	if req.ConversationID != "" {
		if err := b.conversations.VerifyOwnership(ctx, req.ConversationID, req.UserID); err != nil {
			return "", fmt.Errorf("prompt: %w", err)
		}
		msgs, err := b.conversations.RecentMessages(ctx, req.ConversationID, HistoryWindow)
		if err != nil {
			return "", fmt.Errorf("prompt: load history of %s: %w", req.ConversationID, err)
		}
		turns = make([]Turn, 0, len(msgs))
		for _, m := range msgs {
			turns = append(turns, Turn{Role: string(m.Role), Text: m.Text})
		}
	}
	return b.BuildFromTurns(ctx, req.Message, turns)
}

// BuildFromTurns renders a prompt from history the caller already holds,
// oldest turn first.
func (b *Builder) BuildFromTurns(ctx context.Context, message string, turns []Turn) (string, error) {
	brief, err := b.briefer.Summarize(ctx)
	if err != nil {
		return "", fmt.Errorf("prompt: %w", err)
	}
	return Render(brief, turns, message), nil
}

// Render lays out a prompt. Only the last ContextTurns turns are included.
func Render(brief string, turns []Turn, message string) string {
	if len(turns) > ContextTurns {
		turns = turns[len(turns)-ContextTurns:]
	}

	var sb strings.Builder
	sb.WriteString(SystemInstructions)
	sb.WriteString("\n\n")
	sb.WriteString(strings.TrimRight(brief, "\n"))
	sb.WriteString("\n\n")

	if len(turns) > 0 {
		sb.WriteString("Previous conversation:\n")
		for _, t := range turns {
			fmt.Fprintf(&sb, "%s: %s\n", t.Role, t.Text)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "User: %s\n\nAssistant:", message)
	return sb.String()
}
