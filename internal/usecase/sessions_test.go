package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-backend/internal/domain"
	"chat-backend/internal/repository"
)

func stubUUID(t *testing.T, id string) {
	t.Helper()
	prev := newUUID
	newUUID = func() string { return id }
	t.Cleanup(func() { newUUID = prev })
}

func TestNewSession(t *testing.T) {
	stubUUID(t, "sess-fixed")
	store := &mockStore{}
	svc := newTestService(t, defaultParams(), answer("x"), store)

	sess, err := svc.NewSession(context.Background(), " u1 ")
	require.NoError(t, err)
	require.Equal(t, "sess-fixed", sess.ID)
	require.Equal(t, "u1", sess.UserID)
	require.Equal(t, "sess-fixed", store.createdID)
}

func TestNewSession_Errors(t *testing.T) {
	svc := newTestService(t, defaultParams(), answer("x"), &mockStore{})
	_, err := svc.NewSession(context.Background(), "")
	expectChatError(t, err, ErrorInvalidInput, "missing_user_id")

	_, err = svc.NewSession(context.Background(), "a#b")
	expectChatError(t, err, ErrorInvalidInput, "invalid_user_id")

	svc = newTestService(t, defaultParams(), answer("x"), &mockStore{createErr: fmt.Errorf("repository: CreateSession: %w", repository.ErrSessionExists)})
	_, err = svc.NewSession(context.Background(), "u1")
	expectChatError(t, err, ErrorConflict, "session_exists")

	svc = newTestService(t, defaultParams(), answer("x"), &mockStore{createErr: errors.New("boom")})
	_, err = svc.NewSession(context.Background(), "u1")
	expectChatError(t, err, ErrorInternal, "dynamodb_create_session_error")

	svc = newTestService(t, defaultParams(), answer("x"), repository.Disabled{})
	_, err = svc.NewSession(context.Background(), "u1")
	expectChatError(t, err, ErrorStoreUnavailable, "store_unavailable")
}

func TestListSessions(t *testing.T) {
	store := &mockStore{sessions: []domain.Session{{ID: "b"}, {ID: "a"}}}
	svc := newTestService(t, defaultParams(), answer("x"), store)

	got, err := svc.ListSessions(context.Background(), "u1", 7)
	require.NoError(t, err)
	require.Equal(t, store.sessions, got)
	require.Equal(t, 7, store.listLimit)

	_, err = svc.ListSessions(context.Background(), " ", 7)
	expectChatError(t, err, ErrorInvalidInput, "missing_user_id")

	_, err = svc.ListSessions(context.Background(), "a#b", 7)
	expectChatError(t, err, ErrorInvalidInput, "invalid_user_id")

	svc = newTestService(t, defaultParams(), answer("x"), &mockStore{listErr: errors.New("boom")})
	_, err = svc.ListSessions(context.Background(), "u1", 7)
	expectChatError(t, err, ErrorInternal, "dynamodb_list_sessions_error")
}

func TestSessionMessages(t *testing.T) {
	store := &mockStore{messages: []domain.Message{{ID: "m1"}}}
	svc := newTestService(t, defaultParams(), answer("x"), store)

	got, err := svc.SessionMessages(context.Background(), "u1", "s1")
	require.NoError(t, err)
	require.Equal(t, store.messages, got)

	_, err = svc.SessionMessages(context.Background(), "u1", "")
	expectChatError(t, err, ErrorInvalidInput, "missing_session_id")

	svc = newTestService(t, defaultParams(), answer("x"), repository.Disabled{})
	_, err = svc.SessionMessages(context.Background(), "u1", "s1")
	expectChatError(t, err, ErrorStoreUnavailable, "store_unavailable")
}

func TestUpdateFeedback_MapsValueToExclusiveFlags(t *testing.T) {
	cases := []struct {
		feedback string
		up, down bool
	}{
		{feedback: "positive", up: true},
		{feedback: "negative", down: true},
		{feedback: " Positive ", up: true},
	}
	for _, tc := range cases {
		t.Run(tc.feedback, func(t *testing.T) {
			store := &mockStore{}
			svc := newTestService(t, defaultParams(), answer("x"), store)

			fb, err := svc.UpdateFeedback(context.Background(), FeedbackInput{MessageID: "m1", SessionID: "s1", UserID: "u1", Feedback: tc.feedback})
			require.NoError(t, err)
			require.Equal(t, domain.FeedbackUpdate{MessageID: "m1", SessionID: "s1", UserID: "u1", ThumbsUp: tc.up, ThumbsDown: tc.down}, store.feedback)
			require.Equal(t, tc.up, fb.ThumbsUp)
			require.Equal(t, tc.down, fb.ThumbsDown)
		})
	}
}

func TestUpdateFeedback_Errors(t *testing.T) {
	valid := FeedbackInput{MessageID: "m1", SessionID: "s1", UserID: "u1", Feedback: "positive"}

	store := &mockStore{}
	svc := newTestService(t, defaultParams(), answer("x"), store)

	in := valid
	in.Feedback = "meh"
	_, err := svc.UpdateFeedback(context.Background(), in)
	expectChatError(t, err, ErrorInvalidInput, "invalid_feedback_value")

	in = valid
	in.MessageID = ""
	_, err = svc.UpdateFeedback(context.Background(), in)
	expectChatError(t, err, ErrorInvalidInput, "missing_message_id")

	in = valid
	in.UserID, in.SessionID = "a#b", "c"
	_, err = svc.UpdateFeedback(context.Background(), in)
	expectChatError(t, err, ErrorInvalidInput, "invalid_user_id")
	require.Empty(t, store.calls)

	svc = newTestService(t, defaultParams(), answer("x"), &mockStore{feedbackErr: fmt.Errorf("repository: SetFeedback: %w", repository.ErrInvalidUserID)})
	_, err = svc.UpdateFeedback(context.Background(), valid)
	expectChatError(t, err, ErrorInvalidInput, "invalid_user_id")

	svc = newTestService(t, defaultParams(), answer("x"), &mockStore{feedbackErr: fmt.Errorf("repository: SetFeedback: %w", repository.ErrNotFound)})
	_, err = svc.UpdateFeedback(context.Background(), valid)
	expectChatError(t, err, ErrorNotFound, "not_found")

	svc = newTestService(t, defaultParams(), answer("x"), &mockStore{feedbackErr: repository.ErrInvalidFeedback})
	_, err = svc.UpdateFeedback(context.Background(), valid)
	expectChatError(t, err, ErrorInvalidInput, "invalid_feedback")

	svc = newTestService(t, defaultParams(), answer("x"), &mockStore{feedbackErr: errors.New("throttled")})
	_, err = svc.UpdateFeedback(context.Background(), valid)
	expectChatError(t, err, ErrorInternal, "dynamodb_feedback_error")
}

func TestDeleteSession(t *testing.T) {
	store := &mockStore{deleted: 4}
	svc := newTestService(t, defaultParams(), answer("x"), store)

	out, err := svc.DeleteSession(context.Background(), "u1", "s1")
	require.NoError(t, err)
	require.Equal(t, DeleteOutput{SessionID: "s1", MessagesDeleted: 4}, out)
	require.Equal(t, []string{"DeleteSessionMessages", "DeleteSession"}, store.calls)
}

func TestDeleteSession_RejectsAmbiguousUserID(t *testing.T) {
	store := &mockStore{}
	svc := newTestService(t, defaultParams(), answer("x"), store)

	_, err := svc.DeleteSession(context.Background(), "a#b", "c")
	expectChatError(t, err, ErrorInvalidInput, "invalid_user_id")
	require.Empty(t, store.calls)
}

func TestDeleteSession_StopsWhenMessageDeleteFails(t *testing.T) {
	store := &mockStore{deleted: 2, delMsgsErr: errors.New("throttled")}
	svc := newTestService(t, defaultParams(), answer("x"), store)

	_, err := svc.DeleteSession(context.Background(), "u1", "s1")
	expectChatError(t, err, ErrorInternal, "dynamodb_delete_messages_error")
	require.Equal(t, []string{"DeleteSessionMessages"}, store.calls)
}

func TestDeleteSession_SessionRecordFailure(t *testing.T) {
	store := &mockStore{delSessErr: errors.New("throttled")}
	svc := newTestService(t, defaultParams(), answer("x"), store)

	_, err := svc.DeleteSession(context.Background(), "u1", "s1")
	expectChatError(t, err, ErrorInternal, "dynamodb_delete_session_error")

	_, err = svc.DeleteSession(context.Background(), "", "s1")
	expectChatError(t, err, ErrorInvalidInput, "missing_user_id")
}

func TestHealth(t *testing.T) {
	svc := newTestService(t, defaultParams(), &mockLLM{warm: true}, &mockStore{})
	h := svc.Health(context.Background())
	require.True(t, h.StoreEnabled)
	require.True(t, h.LLMReady)
	require.False(t, h.Timestamp.IsZero())

	svc = newTestService(t, defaultParams(), &mockLLM{warm: false}, repository.Disabled{})
	h = svc.Health(context.Background())
	require.False(t, h.StoreEnabled)
	require.False(t, h.LLMReady)
}
