package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/dhamidi/pmcopilot/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticBriefer struct {
	brief string
	err   error
	calls int
}

func (s *staticBriefer) Summarize(ctx context.Context) (string, error) {
	s.calls++
	return s.brief, s.err
}

type fakeConversations struct {
	owner       string
	messages    []*history.Message
	reads       int
	askedLimit  int
	verifyCalls int
}

func (f *fakeConversations) VerifyOwnership(ctx context.Context, conversationID, userID string) error {
	f.verifyCalls++
	if userID != f.owner {
		return history.ErrUnauthorized
	}
	return nil
}

func (f *fakeConversations) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*history.Message, error) {
	f.reads++
	f.askedLimit = limit
	if len(f.messages) > limit {
		return f.messages[len(f.messages)-limit:], nil
	}
	return f.messages, nil
}

func exchange(n int) []*history.Message {
	var msgs []*history.Message
	for i := 0; i < n; i++ {
		role := history.RoleUser
		if i%2 == 1 {
			role = history.RoleAssistant
		}
		msgs = append(msgs, &history.Message{Role: role, Text: fmt.Sprintf("message %02d", i)})
	}
	return msgs
}

func TestBuildNewConversation(t *testing.T) {
	briefer := &staticBriefer{brief: "Current System State:\n- Total Machines: 4\n"}
	convs := &fakeConversations{owner: "7"}
	b := NewBuilder(briefer, convs)

	got, err := b.Build(context.Background(), Request{Message: "What machines need attention?", UserID: "7"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(got, SystemInstructions+"\n\n"))
	assert.Contains(t, got, "Current System State:\n- Total Machines: 4\n\n")
	assert.NotContains(t, got, "Previous conversation:")
	assert.True(t, strings.HasSuffix(got, "User: What machines need attention?\n\nAssistant:"))
	assert.Equal(t, 0, convs.verifyCalls, "no ownership check without a conversation id")
	assert.Equal(t, 0, convs.reads)
}

func TestBuildIncludesLastTenOfTwentyMessages(t *testing.T) {
	convs := &fakeConversations{owner: "7", messages: exchange(30)}
	b := NewBuilder(&staticBriefer{brief: "brief"}, convs)

	got, err := b.Build(context.Background(), Request{Message: "next", ConversationID: "c1", UserID: "7"})
	require.NoError(t, err)

	assert.Equal(t, HistoryWindow, convs.askedLimit)
	for i := 0; i < 20; i++ {
		assert.NotContains(t, got, fmt.Sprintf("message %02d\n", i))
	}
	var previous []string
	for i := 20; i < 30; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		previous = append(previous, fmt.Sprintf("%s: message %02d", role, i))
	}
	assert.Contains(t, got, "Previous conversation:\n"+strings.Join(previous, "\n")+"\n\nUser: next\n\nAssistant:")
}

func TestBuildRejectsForeignConversation(t *testing.T) {
	briefer := &staticBriefer{brief: "brief"}
	convs := &fakeConversations{owner: "7", messages: exchange(4)}
	b := NewBuilder(briefer, convs)

	got, err := b.Build(context.Background(), Request{Message: "hi", ConversationID: "c1", UserID: "9"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, history.ErrUnauthorized))
	assert.Empty(t, got)
	assert.Equal(t, 0, convs.reads, "history must not be read")
	assert.Equal(t, 0, briefer.calls, "brief must not be built")
}

func TestBuildPropagatesBriefErrors(t *testing.T) {
	boom := errors.New("storage unavailable")
	b := NewBuilder(&staticBriefer{err: boom}, &fakeConversations{})

	_, err := b.Build(context.Background(), Request{Message: "hi"})
	assert.True(t, errors.Is(err, boom))
}

func TestBuildIsDeterministic(t *testing.T) {
	b := NewBuilder(&staticBriefer{brief: "brief"}, &fakeConversations{owner: "7", messages: exchange(6)})
	req := Request{Message: "hi", ConversationID: "c1", UserID: "7"}

	first, err := b.Build(context.Background(), req)
	require.NoError(t, err)
	second, err := b.Build(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
