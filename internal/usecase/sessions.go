package usecase

import (
	"context"
	"strings"
	"time"

	"chat-backend/internal/domain"
	"chat-backend/internal/observability"
	"chat-backend/internal/repository"
)

const (
	FeedbackPositive = "positive"
	FeedbackNegative = "negative"
)

type FeedbackInput struct {
	MessageID string
	SessionID string
	UserID    string
	Feedback  string
}

type DeleteOutput struct {
	SessionID       string
	MessagesDeleted int
}

type HealthOutput struct {
	StoreEnabled bool
	LLMReady     bool
	Timestamp    time.Time
}

// NewSession opens an empty session under a fresh id.
func (s *ChatService) NewSession(ctx context.Context, userID string) (domain.Session, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return domain.Session{}, err
	}
	sess, err := s.store.CreateSession(ctx, userID, newUUID())
	if err != nil {
		return domain.Session{}, storeError("dynamodb_create_session_error", err)
	}
	return sess, nil
}

// ListSessions returns the user's sessions, most recently active first.
func (s *ChatService) ListSessions(ctx context.Context, userID string, limit int) ([]domain.Session, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessions(ctx, userID, limit)
	if err != nil {
		return nil, storeError("dynamodb_list_sessions_error", err)
	}
	return sessions, nil
}

func (s *ChatService) SessionMessages(ctx context.Context, userID, sessionID string) ([]domain.Message, error) {
	userID, sessionID, err := requireSession(userID, sessionID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, userID, sessionID)
	if err != nil {
		return nil, storeError("dynamodb_list_messages_error", err)
	}
	return msgs, nil
}

// UpdateFeedback records a thumbs up or down on one message. The flags are
// exclusive: setting one clears the other.
func (s *ChatService) UpdateFeedback(ctx context.Context, in FeedbackInput) (domain.Feedback, error) {
	userID, sessionID, err := requireSession(in.UserID, in.SessionID)
	if err != nil {
		return domain.Feedback{}, err
	}
	messageID := strings.TrimSpace(in.MessageID)
	if messageID == "" {
		return domain.Feedback{}, newError(ErrorInvalidInput, "missing_message_id", nil)
	}

	u := domain.FeedbackUpdate{MessageID: messageID, SessionID: sessionID, UserID: userID}
	switch strings.ToLower(strings.TrimSpace(in.Feedback)) {
	case FeedbackPositive:
		u.ThumbsUp = true
	case FeedbackNegative:
		u.ThumbsDown = true
	default:
		return domain.Feedback{}, newError(ErrorInvalidInput, "invalid_feedback_value", nil)
	}

	fb, err := s.store.SetFeedback(ctx, u)
	if err != nil {
		return domain.Feedback{}, storeError("dynamodb_feedback_error", err)
	}
	return fb, nil
}

// DeleteSession removes every message of the session and then the session
// record itself. A failure part way leaves the remaining items in place.
func (s *ChatService) DeleteSession(ctx context.Context, userID, sessionID string) (DeleteOutput, error) {
	userID, sessionID, err := requireSession(userID, sessionID)
	if err != nil {
		return DeleteOutput{}, err
	}
	n, err := s.store.DeleteSessionMessages(ctx, userID, sessionID)
	if err != nil {
		observability.Logger(ctx).ErrorContext(ctx, "session messages partially deleted", "session_id", sessionID, "deleted", n, "err", err)
		return DeleteOutput{}, storeError("dynamodb_delete_messages_error", err)
	}
	if err := s.store.DeleteSession(ctx, userID, sessionID); err != nil {
		return DeleteOutput{}, storeError("dynamodb_delete_session_error", err)
	}
	return DeleteOutput{SessionID: sessionID, MessagesDeleted: n}, nil
}

// Health warms the model endpoint and reports which collaborators are live.
func (s *ChatService) Health(ctx context.Context) HealthOutput {
	return HealthOutput{
		StoreEnabled: s.store.Enabled(),
		LLMReady:     s.llm.WarmUp(ctx),
		Timestamp:    time.Now().UTC(),
	}
}

// requireUser trims userID and rejects ids that cannot key a session.
func requireUser(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", newError(ErrorInvalidInput, "missing_user_id", nil)
	}
	if !repository.ValidUserID(userID) {
		return "", newError(ErrorInvalidInput, "invalid_user_id", nil)
	}
	return userID, nil
}

func requireSession(userID, sessionID string) (string, string, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return "", "", err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", "", newError(ErrorInvalidInput, "missing_session_id", nil)
	}
	return userID, sessionID, nil
}
