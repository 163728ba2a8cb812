package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"

	"chat-backend/internal/domain"
	"chat-backend/internal/observability"
)

const (
	defaultMaxMessage      = 4000
	defaultContextMessages = 5
)

type ParamGetter interface {
	GetParameters(ctx context.Context, names ...string) (map[string]string, error)
}

type LLMClient interface {
	Complete(ctx context.Context, model string, messages []domain.ChatMessage) (domain.Completion, error)
	WarmUp(ctx context.Context) bool
}

// Store is the persistence the chat flow needs. repository.Client and
// repository.Disabled both satisfy it.
type Store interface {
	CreateSession(ctx context.Context, userID, sessionID string) (domain.Session, error)
	RecordActivity(ctx context.Context, userID, sessionID, content string) error
	ListSessions(ctx context.Context, userID string, limit int) ([]domain.Session, error)
	DeleteSession(ctx context.Context, userID, sessionID string) error
	AppendMessage(ctx context.Context, in domain.NewMessage) (string, error)
	ListMessages(ctx context.Context, userID, sessionID string) ([]domain.Message, error)
	ListRecentMessages(ctx context.Context, userID, sessionID string, limit int) ([]domain.Message, error)
	DeleteSessionMessages(ctx context.Context, userID, sessionID string) (int, error)
	SetFeedback(ctx context.Context, u domain.FeedbackUpdate) (domain.Feedback, error)
	Enabled() bool
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type ChatService struct {
	params          ParamGetter
	llm             LLMClient
	store           Store
	paramPrefix     string
	maxMessageLen   int
	contextMessages int

	cacheMu      sync.RWMutex
	cacheLoaded  bool
	systemPrompt string
	openaiModel  string
}

type ChatInput struct {
	UserID    string
	SessionID string
	Message   string
	UserRoles []string
}

type ChatOutput struct {
	Response  string
	SessionID string
	MessageID string
	Sources   []domain.Source
}

func NewChatService(p ParamGetter, llm LLMClient, s Store, paramPrefix string, maxMessageLen, contextMessages int) (*ChatService, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if s == nil {
		return nil, errors.New("usecase: store must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	if maxMessageLen <= 0 {
		maxMessageLen = defaultMaxMessage
	}
	if contextMessages < 0 {
		contextMessages = defaultContextMessages
	}
	return &ChatService{
		params:          p,
		llm:             llm,
		store:           s,
		paramPrefix:     paramPrefix,
		maxMessageLen:   maxMessageLen,
		contextMessages: contextMessages,
	}, nil
}

// Chat runs one turn: persist the question, ask the model with recent
// context, persist the answer. Steps are not rolled back if a later one
// fails.
func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	userID, sessionID, err := requireSession(in.UserID, in.SessionID)
	if err != nil {
		return ChatOutput{}, err
	}
	// The message is stored and sent as written; trimming only decides
	// whether it is empty or too long.
	message := in.Message
	trimmed := strings.TrimSpace(message)
	switch {
	case trimmed == "":
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	case utf8.RuneCountInString(trimmed) > s.maxMessageLen:
		return ChatOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}
	if err := s.ensureConfig(ctx); err != nil {
		return ChatOutput{}, newError(ErrorInternal, "ssm_load_error", err)
	}

	log := observability.Logger(ctx).With("user_id", userID, "session_id", sessionID)
	log.DebugContext(ctx, "chat turn started", "roles", len(in.UserRoles))

	userMsgID := s.appendBestEffort(ctx, log, domain.NewMessage{
		UserID:    userID,
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   message,
	})

	var history []domain.Message
	if s.store.Enabled() {
		if err := s.store.RecordActivity(ctx, userID, sessionID, message); err != nil {
			return ChatOutput{}, storeError("dynamodb_record_activity_error", err)
		}
		history = s.recentHistory(ctx, log, userID, sessionID, userMsgID)
	}

	completion, err := s.llm.Complete(ctx, s.openaiModel, buildPromptMessages(s.systemPrompt, history, message))
	if err != nil {
		if status, ok := upstreamStatusCode(err); ok && status == 429 {
			return ChatOutput{}, newError(ErrorRateLimited, "openai_rate_limited", err)
		}
		return ChatOutput{}, newError(ErrorUpstream, "openai_error", err)
	}

	answer := stripDocReferences(completion.Content)
	msgID := s.appendBestEffort(ctx, log, domain.NewMessage{
		UserID:    userID,
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Content:   answer,
		Sources:   completion.Sources,
	})

	sources := completion.Sources
	if sources == nil {
		sources = []domain.Source{}
	}
	return ChatOutput{
		Response:  answer,
		SessionID: sessionID,
		MessageID: msgID,
		Sources:   sources,
	}, nil
}

// appendBestEffort persists a turn and returns its id, or "" when the write
// failed. A lost message must not fail the turn.
func (s *ChatService) appendBestEffort(ctx context.Context, log *slog.Logger, m domain.NewMessage) string {
	id, err := s.store.AppendMessage(ctx, m)
	if err != nil {
		log.ErrorContext(ctx, "failed to save message", "role", m.Role, "err", err)
		return ""
	}
	return id
}

func (s *ChatService) recentHistory(ctx context.Context, log *slog.Logger, userID, sessionID, skipID string) []domain.Message {
	if s.contextMessages == 0 {
		return nil
	}
	// One extra so the just-saved question can be dropped without shrinking
	// the window.
	limit := s.contextMessages
	if skipID != "" {
		limit++
	}
	recent, err := s.store.ListRecentMessages(ctx, userID, sessionID, limit)
	if err != nil {
		log.WarnContext(ctx, "failed to load conversation context", "err", err)
		return nil
	}
	history := make([]domain.Message, 0, len(recent))
	for _, m := range recent {
		if skipID != "" && m.ID == skipID {
			continue
		}
		history = append(history, m)
	}
	if len(history) > s.contextMessages {
		history = history[len(history)-s.contextMessages:]
	}
	return history
}

func (s *ChatService) ensureConfig(ctx context.Context) error {
	s.cacheMu.RLock()
	if s.cacheLoaded {
		s.cacheMu.RUnlock()
		return nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheLoaded {
		return nil
	}

	systemPrompt, openaiModel, err := s.loadSSMParams(ctx)
	if err != nil {
		return err
	}

	s.systemPrompt = systemPrompt
	s.openaiModel = openaiModel
	s.cacheLoaded = true
	return nil
}

func (s *ChatService) loadSSMParams(ctx context.Context) (systemPrompt, openaiModel string, err error) {
	promptName := s.paramPrefix + "/system_prompt"
	modelName := s.paramPrefix + "/config/openai_model"

	vals, err := s.params.GetParameters(ctx, promptName, modelName)
	if err != nil {
		return "", "", fmt.Errorf("usecase: load chat parameters: %w", err)
	}
	openaiModel = strings.TrimSpace(vals[modelName])
	if openaiModel == "" {
		return "", "", errors.New("usecase: openai model parameter is empty")
	}
	return vals[promptName], openaiModel, nil
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

var newUUID = func() string {
	return uuid.NewString()
}
