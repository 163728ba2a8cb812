package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"chat-backend/internal/domain"
	"chat-backend/internal/observability"
	"chat-backend/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

type ChatUseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
	NewSession(ctx context.Context, userID string) (domain.Session, error)
	ListSessions(ctx context.Context, userID string, limit int) ([]domain.Session, error)
	SessionMessages(ctx context.Context, userID, sessionID string) ([]domain.Message, error)
	UpdateFeedback(ctx context.Context, in usecase.FeedbackInput) (domain.Feedback, error)
	DeleteSession(ctx context.Context, userID, sessionID string) (usecase.DeleteOutput, error)
	Health(ctx context.Context) usecase.HealthOutput
}

type Handler struct {
	uc      ChatUseCase
	origins map[string]struct{}
	routes  map[string]map[string]routeFunc
}

// routeFunc returns the status and JSON body for a request.
type routeFunc func(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error)

type Option func(*Handler)

// WithAllowedOrigins enables CORS for the listed origins. "*" allows any.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Handler) {
		for _, o := range origins {
			if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
				h.origins[o] = struct{}{}
			}
		}
	}
}

func NewHandler(uc ChatUseCase, opts ...Option) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	h := &Handler{uc: uc, origins: map[string]struct{}{}}
	for _, opt := range opts {
		opt(h)
	}
	h.routes = map[string]map[string]routeFunc{
		"/":                 {http.MethodGet: h.health},
		"/session/new":      {http.MethodGet: h.newSession},
		"/sessions":         {http.MethodGet: h.listSessions},
		"/session/messages": {http.MethodGet: h.sessionMessages},
		"/session":          {http.MethodDelete: h.deleteSession},
		"/update-feedback":  {http.MethodPost: h.updateFeedback},
		"/chat":             {http.MethodPost: h.chat},
	}
	return h, nil
}

// Handle serves one API Gateway proxy request. Failures are reported in the
// response; the returned error is always nil so Lambda never retries.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := header(req.Headers, correlationHeader)
	if corrID == "" {
		corrID = uuid.NewString()
	}
	path := normalizePath(req.Path)
	log := slog.With("correlation_id", corrID, "method", req.HTTPMethod, "path", path)
	ctx = observability.WithLogger(ctx, log)

	headers := map[string]string{
		"Content-Type":    "application/json",
		correlationHeader: corrID,
	}
	h.applyCORS(headers, header(req.Headers, "Origin"))

	if req.HTTPMethod == http.MethodOptions {
		if reqHeaders := header(req.Headers, "Access-Control-Request-Headers"); reqHeaders != "" && headers["Access-Control-Allow-Origin"] != "" {
			headers["Access-Control-Allow-Headers"] = reqHeaders
		}
		return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent, Headers: headers}, nil
	}

	status, body, err := h.dispatch(ctx, path, req)
	if err != nil {
		status, body = errorToResponse(err)
		if status >= http.StatusInternalServerError {
			log.ErrorContext(ctx, "request failed", "status", status, "err", err)
		} else {
			log.WarnContext(ctx, "request rejected", "status", status, "err", err)
		}
	} else {
		log.InfoContext(ctx, "request completed", "status", status)
	}

	raw, mErr := json.Marshal(body)
	if mErr != nil {
		log.ErrorContext(ctx, "failed to encode response", "err", mErr)
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers,
		Body:       string(raw),
	}, nil
}

func (h *Handler) dispatch(ctx context.Context, path string, req events.APIGatewayProxyRequest) (int, any, error) {
	methods, ok := h.routes[path]
	if !ok {
		return http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound), Reason: "unknown_route"}, nil
	}
	fn, ok := methods[req.HTTPMethod]
	if !ok {
		return http.StatusMethodNotAllowed, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "method_not_allowed"}, nil
	}
	return fn(ctx, req)
}

func (h *Handler) health(ctx context.Context, _ events.APIGatewayProxyRequest) (int, any, error) {
	out := h.uc.Health(ctx)
	return http.StatusOK, healthResponse{
		Status:       "healthy",
		StoreEnabled: out.StoreEnabled,
		Success:      out.LLMReady,
		Timestamp:    out.Timestamp,
	}, nil
}

func (h *Handler) newSession(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error) {
	sess, err := h.uc.NewSession(ctx, req.QueryStringParameters["user_id"])
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newSessionResponse{SessionID: sess.ID}, nil
}

func (h *Handler) listSessions(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error) {
	limit := 0
	if raw := strings.TrimSpace(req.QueryStringParameters["limit"]); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return 0, nil, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_limit", Err: err}
		}
		limit = n
	}
	sessions, err := h.uc.ListSessions(ctx, req.QueryStringParameters["user_id"], limit)
	if err != nil {
		return 0, nil, err
	}
	out := sessionsResponse{Sessions: make([]sessionDTO, 0, len(sessions))}
	for _, s := range sessions {
		out.Sessions = append(out.Sessions, toSessionDTO(s))
	}
	return http.StatusOK, out, nil
}

func (h *Handler) sessionMessages(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error) {
	sessionID := req.QueryStringParameters["session_id"]
	msgs, err := h.uc.SessionMessages(ctx, req.QueryStringParameters["user_id"], sessionID)
	if err != nil {
		return 0, nil, err
	}
	out := messagesResponse{SessionID: strings.TrimSpace(sessionID), Messages: make([]messageDTO, 0, len(msgs))}
	for _, m := range msgs {
		out.Messages = append(out.Messages, toMessageDTO(m))
	}
	return http.StatusOK, out, nil
}

func (h *Handler) deleteSession(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error) {
	out, err := h.uc.DeleteSession(ctx, req.QueryStringParameters["user_id"], req.QueryStringParameters["session_id"])
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, deleteResponse{Status: "success", SessionID: out.SessionID, MessagesDeleted: out.MessagesDeleted}, nil
}

func (h *Handler) updateFeedback(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error) {
	var in feedbackRequest
	if err := decodeBody(req, &in); err != nil {
		return 0, nil, err
	}
	fb, err := h.uc.UpdateFeedback(ctx, in.toInput())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, feedbackResponse{
		Status: "success",
		UpdatedMessage: feedbackDTO{
			ID:         fb.MessageID,
			ThumbsUp:   fb.ThumbsUp,
			ThumbsDown: fb.ThumbsDown,
		},
	}, nil
}

func (h *Handler) chat(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error) {
	var in chatRequest
	if err := decodeBody(req, &in); err != nil {
		return 0, nil, err
	}
	out, err := h.uc.Chat(ctx, usecase.ChatInput{
		UserID:    in.UserID,
		SessionID: in.SessionID,
		Message:   in.Message,
		UserRoles: in.UserRoles,
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, chatResponse{
		Response:  out.Response,
		SessionID: out.SessionID,
		MessageID: out.MessageID,
		Sources:   out.Sources,
	}, nil
}

func decodeBody(req events.APIGatewayProxyRequest, v any) error {
	body := req.Body
	if req.IsBase64Encoded {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body_encoding", Err: err}
		}
		body = string(raw)
	}
	if strings.TrimSpace(body) == "" {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_body"}
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_json", Err: err}
	}
	return nil
}

func errorToResponse(err error) (int, errorResponse) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)}
	}
	status := http.StatusInternalServerError
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		status = http.StatusBadRequest
	case usecase.ErrorNotFound:
		status = http.StatusNotFound
	case usecase.ErrorConflict:
		status = http.StatusConflict
	case usecase.ErrorRateLimited:
		status = http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		status = http.StatusBadGateway
	case usecase.ErrorStoreUnavailable:
		status = http.StatusServiceUnavailable
	}
	return status, errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason}
}

func (h *Handler) applyCORS(headers map[string]string, origin string) {
	origin = strings.TrimRight(origin, "/")
	if origin == "" || len(h.origins) == 0 {
		return
	}
	_, ok := h.origins[origin]
	if _, wildcard := h.origins["*"]; !ok && !wildcard {
		return
	}
	headers["Access-Control-Allow-Origin"] = origin
	headers["Access-Control-Allow-Credentials"] = "true"
	headers["Access-Control-Allow-Methods"] = "GET, POST, DELETE, OPTIONS"
	headers["Access-Control-Allow-Headers"] = "Content-Type, Authorization, " + correlationHeader
	headers["Access-Control-Expose-Headers"] = correlationHeader
	headers["Vary"] = "Origin"
}

// header looks a key up case-insensitively; API Gateway keeps client casing.
func header(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	if p == "" {
		return "/"
	}
	return p
}
