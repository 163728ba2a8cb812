package handler

import (
	"strings"
	"time"

	"chat-backend/internal/domain"
	"chat-backend/internal/usecase"
)

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

type healthResponse struct {
	Status       string    `json:"status"`
	StoreEnabled bool      `json:"store_enabled"`
	Success      bool      `json:"success"`
	Timestamp    time.Time `json:"timestamp"`
}

type newSessionResponse struct {
	SessionID string `json:"session_id"`
}

type sessionDTO struct {
	ID            string    `json:"id"`
	LastMessage   string    `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
	MessageCount  int       `json:"message_count"`
}

type sessionsResponse struct {
	Sessions []sessionDTO `json:"sessions"`
}

type messageDTO struct {
	ID                string          `json:"id"`
	Role              string          `json:"role"`
	Content           string          `json:"content"`
	Timestamp         time.Time       `json:"timestamp"`
	ThumbsUp          bool            `json:"thumbs_up"`
	ThumbsDown        bool            `json:"thumbs_down"`
	FeedbackUpdatedAt *time.Time      `json:"feedback_updated_at,omitempty"`
	Sources           []domain.Source `json:"sources,omitempty"`
}

type messagesResponse struct {
	SessionID string       `json:"session_id"`
	Messages  []messageDTO `json:"messages"`
}

type deleteResponse struct {
	Status          string `json:"status"`
	SessionID       string `json:"session_id"`
	MessagesDeleted int    `json:"messages_deleted"`
}

// feedbackRequest accepts the camelCase names the web client sends as well
// as snake_case.
type feedbackRequest struct {
	ID           string `json:"id"`
	MessageID    string `json:"message_id"`
	SessionID    string `json:"sessionId"`
	SessionIDAlt string `json:"session_id"`
	UserID       string `json:"userId"`
	UserIDAlt    string `json:"user_id"`
	Feedback     string `json:"feedback"`
}

func (r feedbackRequest) toInput() usecase.FeedbackInput {
	return usecase.FeedbackInput{
		MessageID: firstNonEmpty(r.ID, r.MessageID),
		SessionID: firstNonEmpty(r.SessionID, r.SessionIDAlt),
		UserID:    firstNonEmpty(r.UserID, r.UserIDAlt),
		Feedback:  r.Feedback,
	}
}

type feedbackDTO struct {
	ID         string `json:"id"`
	ThumbsUp   bool   `json:"thumbs_up"`
	ThumbsDown bool   `json:"thumbs_down"`
}

type feedbackResponse struct {
	Status         string      `json:"status"`
	UpdatedMessage feedbackDTO `json:"updated_message"`
}

type chatRequest struct {
	Message   string   `json:"message"`
	SessionID string   `json:"session_id"`
	UserID    string   `json:"user_id"`
	UserRoles []string `json:"user_roles"`
}

type chatResponse struct {
	Response  string          `json:"response"`
	SessionID string          `json:"session_id"`
	MessageID string          `json:"message_id"`
	Sources   []domain.Source `json:"sources"`
}

func toSessionDTO(s domain.Session) sessionDTO {
	return sessionDTO{
		ID:            s.ID,
		LastMessage:   s.LastMessage,
		LastMessageAt: s.LastMessageAt,
		MessageCount:  s.MessageCount,
	}
}

func toMessageDTO(m domain.Message) messageDTO {
	return messageDTO{
		ID:                m.ID,
		Role:              m.Role,
		Content:           m.Content,
		Timestamp:         m.Timestamp,
		ThumbsUp:          m.ThumbsUp,
		ThumbsDown:        m.ThumbsDown,
		FeedbackUpdatedAt: m.FeedbackUpdatedAt,
		Sources:           m.Sources,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
