package domain

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Source is a citation attached to an assistant turn.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Session is the summary record kept for one chat thread.
type Session struct {
	ID            string
	UserID        string
	MessageCount  int
	LastMessage   string
	LastMessageAt time.Time
}

// Message is a single persisted conversation turn. Only the feedback fields
// change after it is written.
type Message struct {
	ID                string
	UserID            string
	SessionID         string
	Role              string
	Content           string
	Timestamp         time.Time
	ThumbsUp          bool
	ThumbsDown        bool
	FeedbackUpdatedAt *time.Time
	Sources           []Source
}

// NewMessage describes a turn to append to a session.
type NewMessage struct {
	UserID    string
	SessionID string
	Role      string
	Content   string
	Sources   []Source
}

// FeedbackUpdate addresses one message and carries the exclusive flag pair.
type FeedbackUpdate struct {
	MessageID  string
	SessionID  string
	UserID     string
	ThumbsUp   bool
	ThumbsDown bool
}

// Feedback is the feedback state of a message after an update.
type Feedback struct {
	MessageID  string
	ThumbsUp   bool
	ThumbsDown bool
	UpdatedAt  time.Time
}
