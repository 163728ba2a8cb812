package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"chat-backend/internal/domain"
	"chat-backend/internal/observability"
)

// AppendMessage writes a new turn and returns its generated id.
// Sources are only stored on assistant turns that carry at least one.
func (c *Client) AppendMessage(ctx context.Context, in domain.NewMessage) (string, error) {
	if err := requireSessionIDs("AppendMessage", in.UserID, in.SessionID); err != nil {
		return "", err
	}
	if in.Role != domain.RoleUser && in.Role != domain.RoleAssistant {
		return "", fmt.Errorf("repository: AppendMessage: unknown role %q", in.Role)
	}

	msg := domain.Message{
		ID:        newID(),
		UserID:    in.UserID,
		SessionID: in.SessionID,
		Role:      in.Role,
		Content:   in.Content,
		Timestamp: now(),
	}
	if in.Role == domain.RoleAssistant && len(in.Sources) > 0 {
		msg.Sources = append([]domain.Source(nil), in.Sources...)
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(c.tables.Messages),
		Item:                     messageItem(msg),
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": "id"},
	})
	if err != nil {
		return "", fmt.Errorf("repository: AppendMessage: %w", err)
	}
	return msg.ID, nil
}

// ListMessages returns every message of a session, oldest first.
func (c *Client) ListMessages(ctx context.Context, userID, sessionID string) ([]domain.Message, error) {
	if err := requireSessionIDs("ListMessages", userID, sessionID); err != nil {
		return nil, err
	}

	in := c.messagesQuery(sessionKey(userID, sessionID), true)
	var msgs []domain.Message
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: ListMessages query: %w", err)
		}
		for _, item := range out.Items {
			msg, err := itemToMessage(item)
			if err != nil {
				return nil, fmt.Errorf("repository: ListMessages unmarshal: %w", err)
			}
			msgs = append(msgs, msg)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

// ListRecentMessages returns at most limit of the latest messages of a
// session in chronological order.
func (c *Client) ListRecentMessages(ctx context.Context, userID, sessionID string, limit int) ([]domain.Message, error) {
	if err := requireSessionIDs("ListRecentMessages", userID, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []domain.Message{}, nil
	}

	in := c.messagesQuery(sessionKey(userID, sessionID), false)
	// Read newest first so LIMIT favors the most recent context.
	in.Limit = aws.Int32(int32(limit))

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: ListRecentMessages query: %w", err)
	}

	msgs := make([]domain.Message, 0, len(out.Items))
	for _, item := range out.Items {
		msg, err := itemToMessage(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListRecentMessages unmarshal: %w", err)
		}
		msgs = append(msgs, msg)
	}
	// Reverse to chronological order before returning to prompt assembly.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// DeleteSessionMessages deletes the messages of a session one by one and
// returns how many were removed. A failure part way leaves the rest in place.
func (c *Client) DeleteSessionMessages(ctx context.Context, userID, sessionID string) (int, error) {
	if err := requireSessionIDs("DeleteSessionMessages", userID, sessionID); err != nil {
		return 0, err
	}
	pk := sessionKey(userID, sessionID)

	in := &dynamodb.QueryInput{
		TableName:                aws.String(c.tables.Messages),
		KeyConditionExpression:   aws.String("#pk = :pk"),
		ProjectionExpression:     aws.String("#id"),
		ExpressionAttributeNames: map[string]string{"#pk": "user_session_key", "#id": "id"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": strValue(pk),
		},
	}
	var ids []string
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return 0, fmt.Errorf("repository: DeleteSessionMessages query: %w", err)
		}
		for _, item := range out.Items {
			id, err := strAttr(item, "id")
			if err != nil {
				return 0, fmt.Errorf("repository: DeleteSessionMessages unmarshal: %w", err)
			}
			ids = append(ids, id)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}

	deleted := 0
	for _, id := range ids {
		_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(c.tables.Messages),
			Key:       messageItemKey(pk, id),
		})
		if err != nil {
			return deleted, fmt.Errorf("repository: DeleteSessionMessages delete %s: %w", id, err)
		}
		deleted++
	}
	return deleted, nil
}

// SetFeedback overwrites the feedback flags of one message without reading it.
func (c *Client) SetFeedback(ctx context.Context, u domain.FeedbackUpdate) (domain.Feedback, error) {
	if u.ThumbsUp && u.ThumbsDown {
		return domain.Feedback{}, ErrInvalidFeedback
	}
	if err := requireIDs("SetFeedback", u.MessageID); err != nil {
		return domain.Feedback{}, err
	}
	if err := requireSessionIDs("SetFeedback", u.UserID, u.SessionID); err != nil {
		return domain.Feedback{}, err
	}
	pk := sessionKey(u.UserID, u.SessionID)
	updatedAt := now()

	log := observability.Logger(ctx)
	log.DebugContext(ctx, "updating message feedback",
		"message_id", u.MessageID,
		"partition_key", pk,
		"thumbs_up", u.ThumbsUp,
		"thumbs_down", u.ThumbsDown,
	)

	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tables.Messages),
		Key:                 messageItemKey(pk, u.MessageID),
		UpdateExpression:    aws.String("SET #up = :up, #down = :down, #updatedAt = :now"),
		ConditionExpression: aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id":        "id",
			"#up":        "thumbs_up",
			"#down":      "thumbs_down",
			"#updatedAt": "feedback_updated_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":up":   &types.AttributeValueMemberBOOL{Value: u.ThumbsUp},
			":down": &types.AttributeValueMemberBOOL{Value: u.ThumbsDown},
			":now":  strValue(formatTimestamp(updatedAt)),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			log.WarnContext(ctx, "feedback target not found", "message_id", u.MessageID, "partition_key", pk)
			return domain.Feedback{}, ErrNotFound
		}
		log.ErrorContext(ctx, "failed to update feedback", "message_id", u.MessageID, "partition_key", pk, "err", err)
		return domain.Feedback{}, fmt.Errorf("repository: SetFeedback: %w", err)
	}

	return domain.Feedback{
		MessageID:  u.MessageID,
		ThumbsUp:   u.ThumbsUp,
		ThumbsDown: u.ThumbsDown,
		UpdatedAt:  updatedAt,
	}, nil
}

func (c *Client) messagesQuery(pk string, ascending bool) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:                aws.String(c.tables.Messages),
		IndexName:                aws.String(c.tables.MessagesIndex),
		KeyConditionExpression:   aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{"#pk": "user_session_key"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": strValue(pk),
		},
		ScanIndexForward: aws.Bool(ascending),
	}
}

func messageItemKey(pk, messageID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_session_key": strValue(pk),
		"id":               strValue(messageID),
	}
}

func messageItem(msg domain.Message) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"user_session_key": strValue(sessionKey(msg.UserID, msg.SessionID)),
		"id":               strValue(msg.ID),
		"user_id":          strValue(msg.UserID),
		"session_id":       strValue(msg.SessionID),
		"role":             strValue(msg.Role),
		"content":          strValue(msg.Content),
		"timestamp":        strValue(formatTimestamp(msg.Timestamp)),
		"thumbs_up":        &types.AttributeValueMemberBOOL{Value: msg.ThumbsUp},
		"thumbs_down":      &types.AttributeValueMemberBOOL{Value: msg.ThumbsDown},
	}
	if len(msg.Sources) > 0 {
		item["sources"] = sourcesValue(msg.Sources)
	}
	if msg.FeedbackUpdatedAt != nil {
		item["feedback_updated_at"] = strValue(formatTimestamp(*msg.FeedbackUpdatedAt))
	}
	return item
}

func sourcesValue(sources []domain.Source) *types.AttributeValueMemberL {
	list := make([]types.AttributeValue, 0, len(sources))
	for _, s := range sources {
		list = append(list, &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"title": strValue(s.Title),
			"url":   strValue(s.URL),
		}})
	}
	return &types.AttributeValueMemberL{Value: list}
}

func itemToMessage(item map[string]types.AttributeValue) (domain.Message, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.Message{}, err
	}
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.Message{}, err
	}
	content, _ := strAttr(item, "content") // allow empty
	ts, err := timeAttr(item, "timestamp")
	if err != nil {
		return domain.Message{}, err
	}
	up, err := boolAttr(item, "thumbs_up")
	if err != nil {
		return domain.Message{}, err
	}
	down, err := boolAttr(item, "thumbs_down")
	if err != nil {
		return domain.Message{}, err
	}
	userID, _ := strAttr(item, "user_id")
	sessionID, _ := strAttr(item, "session_id")

	msg := domain.Message{
		ID:         id,
		UserID:     userID,
		SessionID:  sessionID,
		Role:       role,
		Content:    content,
		Timestamp:  ts,
		ThumbsUp:   up,
		ThumbsDown: down,
	}
	if _, ok := item["feedback_updated_at"]; ok {
		at, err := timeAttr(item, "feedback_updated_at")
		if err != nil {
			return domain.Message{}, err
		}
		msg.FeedbackUpdatedAt = &at
	}
	if v, ok := item["sources"]; ok {
		sources, err := itemToSources(v)
		if err != nil {
			return domain.Message{}, err
		}
		msg.Sources = sources
	}
	return msg, nil
}

func itemToSources(v types.AttributeValue) ([]domain.Source, error) {
	list, ok := v.(*types.AttributeValueMemberL)
	if !ok {
		return nil, fmt.Errorf("repository: attribute %q is not a list", "sources")
	}
	sources := make([]domain.Source, 0, len(list.Value))
	for _, entry := range list.Value {
		m, ok := entry.(*types.AttributeValueMemberM)
		if !ok {
			return nil, fmt.Errorf("repository: source entry is not a map")
		}
		title, _ := strAttr(m.Value, "title")
		url, _ := strAttr(m.Value, "url")
		sources = append(sources, domain.Source{Title: title, URL: url})
	}
	return sources, nil
}
