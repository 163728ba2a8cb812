package repository

import (
	"context"
	"log/slog"

	"chat-backend/internal/domain"
	"chat-backend/internal/observability"
)

// Store is the full set of chat persistence operations. Client is the live
// implementation; Disabled stands in when the database could not be reached
// at startup.
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

var (
	_ Store = (*Client)(nil)
	_ Store = Disabled{}
)

// Open builds the live store and checks both tables are reachable. When the
// check fails the error is logged and Disabled is returned so the service can
// still answer chats. Only invalid configuration is returned as an error.
func Open(ctx context.Context, api dynamodbAPI, tables Tables) (Store, error) {
	c, err := New(api, tables)
	if err != nil {
		return nil, err
	}
	if err := c.Ping(ctx); err != nil {
		slog.ErrorContext(ctx, "dynamodb unreachable, persistence disabled", "sessions_table", c.tables.Sessions, "messages_table", c.tables.Messages, "err", err)
		return Disabled{}, nil
	}
	return c, nil
}

// Enabled reports that the live store is wired.
func (c *Client) Enabled() bool { return true }

// Disabled is the store used when DynamoDB is unavailable. Appends are
// skipped so chat turns still complete; everything else fails closed.
type Disabled struct{}

func (Disabled) Enabled() bool { return false }

func (Disabled) AppendMessage(ctx context.Context, in domain.NewMessage) (string, error) {
	observability.Logger(ctx).DebugContext(ctx, "store disabled, skipping message save", "role", in.Role, "session_id", in.SessionID)
	return "", nil
}

func (Disabled) CreateSession(context.Context, string, string) (domain.Session, error) {
	return domain.Session{}, ErrStoreUnavailable
}

func (Disabled) RecordActivity(context.Context, string, string, string) error {
	return ErrStoreUnavailable
}

func (Disabled) ListSessions(context.Context, string, int) ([]domain.Session, error) {
	return nil, ErrStoreUnavailable
}

func (Disabled) DeleteSession(context.Context, string, string) error {
	return ErrStoreUnavailable
}

func (Disabled) ListMessages(context.Context, string, string) ([]domain.Message, error) {
	return nil, ErrStoreUnavailable
}

func (Disabled) ListRecentMessages(context.Context, string, string, int) ([]domain.Message, error) {
	return nil, ErrStoreUnavailable
}

func (Disabled) DeleteSessionMessages(context.Context, string, string) (int, error) {
	return 0, ErrStoreUnavailable
}

func (Disabled) SetFeedback(_ context.Context, u domain.FeedbackUpdate) (domain.Feedback, error) {
	if u.ThumbsUp && u.ThumbsDown {
		return domain.Feedback{}, ErrInvalidFeedback
	}
	return domain.Feedback{}, ErrStoreUnavailable
}
