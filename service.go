// Package pmcopilot answers maintenance questions about a machine fleet,
// grounding every answer in live diagnostics and keeping per-user
// conversation history.
package pmcopilot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/dhamidi/pmcopilot/gateway"
	"github.com/dhamidi/pmcopilot/history"
	"github.com/dhamidi/pmcopilot/prompt"
	"github.com/dhamidi/pmcopilot/reflow"
	"github.com/dhamidi/pmcopilot/sessions"
)

const rollbackTimeout = 10 * time.Second

var (
	errEmptyMessage = errors.New("message must not be empty")
	errMissingUser  = errors.New("user id is required")
)

// Store is the conversation storage used by the Service.
type Store interface {
	prompt.Conversations
	CreateConversation(ctx context.Context, userID, title string) (*history.Conversation, error)
	AppendExchange(ctx context.Context, conversationID string, user, assistant history.Message) ([]*history.Message, error)
	Messages(ctx context.Context, conversationID string, limit int) ([]*history.Message, error)
	ListConversations(ctx context.Context, userID string) ([]history.ConversationMetadata, error)
	DeleteConversation(ctx context.Context, conversationID string) (bool, error)
}

// Generator produces answers for prompts.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*gateway.Result, error)
}

// ChatRequest is one user message. An empty ConversationID starts a new
// conversation.
type ChatRequest struct {
	Message        string
	ConversationID string
	UserID         string
}

// ChatResult is a persisted answer.
type ChatResult struct {
	Answer         string
	ConversationID string
	Sources        []string
	UsingAI        bool
}

// Service runs chat calls: build prompt, generate, reflow, persist.
type Service struct {
	store     Store
	builder   *prompt.Builder
	generator Generator
	sessions  *sessions.Store
	locks     *keyedMutex
	logger    zerolog.Logger
	outcomes  *prometheus.CounterVec
}

type Option func(*Service)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithSessions sets the store used for anonymous chat.
func WithSessions(store *sessions.Store) Option {
	return func(s *Service) { s.sessions = store }
}

// WithMetrics registers a chat outcome counter with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Service) {
		s.outcomes = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "pmcopilot",
			Name:      "chat_outcomes_total",
			Help:      "Chat calls by final state.",
		}, []string{"outcome"})
	}
}

func NewService(store Store, briefer prompt.Briefer, generator Generator, opts ...Option) *Service {
	s := &Service{
		store:     store,
		builder:   prompt.NewBuilder(briefer, store),
		generator: generator,
		locks:     newKeyedMutex(),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sessions == nil {
		s.sessions = sessions.New()
	}
	s.logger = s.logger.With().Str("component", "orchestrator").Logger()
	return s
}

// Sessions exposes the anonymous session store, for sweeping.
func (s *Service) Sessions() *sessions.Store {
	return s.sessions
}

// Chat answers req.Message. A new conversation is only created once an
// answer exists, and is removed again if its messages cannot be saved.
// Calls on the same existing conversation run one at a time.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	const op = "chat"
	message := strings.TrimSpace(req.Message)
	switch {
	case message == "":
		return nil, s.reject(s.logger, &ChatError{Kind: KindInvalidInput, Op: op, Err: errEmptyMessage})
	case req.UserID == "":
		return nil, s.reject(s.logger, &ChatError{Kind: KindInvalidInput, Op: op, Err: errMissingUser})
	}

	log := s.logger.With().Str("user_id", req.UserID).Str("conversation_id", req.ConversationID).Logger()
	if req.ConversationID != "" {
		// foreign requests must not queue behind the owner's generation
		if err := s.store.VerifyOwnership(ctx, req.ConversationID, req.UserID); err != nil {
			return nil, s.reject(log, newError(op, err))
		}
		unlock := s.locks.Lock(req.ConversationID)
		defer unlock()
	}

	text, err := s.builder.Build(ctx, prompt.Request{
		Message:        message,
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
	})
	if err != nil {
		return nil, s.reject(log, newError(op, err))
	}
	log.Debug().Str("state", "prompt_ready").Int("prompt_bytes", len(text)).Msg("chat")

	result, err := s.generator.Generate(ctx, text)
	if err != nil {
		return nil, s.reject(log, newError(op, err))
	}
	answer := reflow.Reflow(result.Text)
	log.Debug().Str("state", "generated").Str("provider", result.Provider).Str("model", result.Model).Msg("chat")

	conversationID := req.ConversationID
	created := false
	if conversationID == "" {
		conv, err := s.store.CreateConversation(ctx, req.UserID, Title(message))
		if err != nil {
			return nil, s.reject(log, saveError(ctx, op, err))
		}
		conversationID = conv.ID
		created = true
		log = log.With().Str("conversation_id", conversationID).Logger()
	}

	_, err = s.store.AppendExchange(ctx, conversationID,
		history.Message{Role: history.RoleUser, Text: message},
		history.Message{Role: history.RoleAssistant, Text: answer, Source: result.Source()},
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to save messages")
		if created {
			s.rollback(ctx, log, conversationID)
		}
		chatErr := saveError(ctx, op, err)
		if chatErr.Kind == KindCanceled {
			return nil, s.reject(log, chatErr)
		}
		s.count("persistence_failed")
		return nil, chatErr
	}

	log.Debug().Str("state", "persisted").Bool("created", created).Msg("chat")
	s.count("persisted")
	return &ChatResult{
		Answer:         answer,
		ConversationID: conversationID,
		Sources:        []string{result.Source()},
		UsingAI:        true,
	}, nil
}

// rollback deletes a conversation created by the failing call. It runs even
// if ctx was canceled.
func (s *Service) rollback(ctx context.Context, log zerolog.Logger, conversationID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if _, err := s.store.DeleteConversation(ctx, conversationID); err != nil {
		log.Error().Err(err).Msg("failed to roll back new conversation")
		return
	}
	log.Debug().Str("state", "rolled_back").Msg("chat")
	s.count("rolled_back")
}

// saveError reports a failed write as a cancellation when the caller went away.
func saveError(ctx context.Context, op string, err error) *ChatError {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &ChatError{Kind: KindCanceled, Op: op, Err: fmt.Errorf("%w: %v", ctxErr, err)}
	}
	return &ChatError{Kind: KindPersistence, Op: op, Err: err}
}

func (s *Service) reject(log zerolog.Logger, err *ChatError) *ChatError {
	log.Debug().Str("state", "rejected").Str("kind", string(err.Kind)).Err(err.Err).Msg("chat")
	s.count(string(err.Kind))
	return err
}

func (s *Service) count(outcome string) {
	if s.outcomes != nil {
		s.outcomes.WithLabelValues(outcome).Inc()
	}
}

// GetHistory returns up to limit messages of a conversation owned by
// userID, oldest first. A limit <= 0 means history.DefaultHistoryLimit.
func (s *Service) GetHistory(ctx context.Context, conversationID, userID string, limit int) ([]*history.Message, error) {
	const op = "get history"
	if err := s.store.VerifyOwnership(ctx, conversationID, userID); err != nil {
		return nil, newError(op, err)
	}
	if limit <= 0 {
		limit = history.DefaultHistoryLimit
	}
	msgs, err := s.store.Messages(ctx, conversationID, limit)
	if err != nil {
		return nil, newError(op, err)
	}
	return msgs, nil
}

// GetUserConversations lists the conversations of userID, most recently
// updated first.
func (s *Service) GetUserConversations(ctx context.Context, userID string) ([]history.ConversationMetadata, error) {
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, newError("list conversations", err)
	}
	return convs, nil
}

// DeleteConversation removes a conversation and its messages.
func (s *Service) DeleteConversation(ctx context.Context, conversationID, userID string) (bool, error) {
	const op = "delete conversation"
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	if err := s.store.VerifyOwnership(ctx, conversationID, userID); err != nil {
		return false, newError(op, err)
	}
	deleted, err := s.store.DeleteConversation(ctx, conversationID)
	if err != nil {
		return false, &ChatError{Kind: KindPersistence, Op: op, Err: err}
	}
	s.logger.Debug().Str("conversation_id", conversationID).Str("user_id", userID).Msg("conversation deleted")
	return deleted, nil
}

// ChatAnonymous answers without touching conversation storage. History is
// kept in memory under sessionID; an empty sessionID starts a new session,
// whose id is returned as ConversationID.
func (s *Service) ChatAnonymous(ctx context.Context, sessionID, message string) (*ChatResult, error) {
	const op = "anonymous chat"
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, s.reject(s.logger, &ChatError{Kind: KindInvalidInput, Op: op, Err: errEmptyMessage})
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	unlock := s.locks.Lock("session:" + sessionID)
	defer unlock()
	log := s.logger.With().Str("session_id", sessionID).Logger()

	remembered := s.sessions.Recent(sessionID)
	turns := make([]prompt.Turn, 0, len(remembered))
	for _, t := range remembered {
		turns = append(turns, prompt.Turn{Role: t.Role, Text: t.Text})
	}

	text, err := s.builder.BuildFromTurns(ctx, message, turns)
	if err != nil {
		return nil, s.reject(log, newError(op, err))
	}
	result, err := s.generator.Generate(ctx, text)
	if err != nil {
		return nil, s.reject(log, newError(op, err))
	}
	answer := reflow.Reflow(result.Text)

	s.sessions.Append(sessionID,
		sessions.Turn{Role: string(history.RoleUser), Text: message},
		sessions.Turn{Role: string(history.RoleAssistant), Text: answer},
	)
	s.count("anonymous")
	return &ChatResult{
		Answer:         answer,
		ConversationID: sessionID,
		Sources:        []string{result.Source()},
		UsingAI:        true,
	}, nil
}

// EndSession forgets an anonymous session.
func (s *Service) EndSession(sessionID string) bool {
	return s.sessions.Delete(sessionID)
}
