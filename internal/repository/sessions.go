package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"chat-backend/internal/domain"
)

const (
	defaultSessionLimit = 10
	maxSessionLimit     = 100
)

// CreateSession writes an empty summary record for a new session.
// An existing record with the same id is never overwritten.
func (c *Client) CreateSession(ctx context.Context, userID, sessionID string) (domain.Session, error) {
	if err := requireSessionIDs("CreateSession", userID, sessionID); err != nil {
		return domain.Session{}, err
	}
	session := domain.Session{
		ID:            sessionID,
		UserID:        userID,
		LastMessageAt: now(),
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(c.tables.Sessions),
		Item:                     sessionItem(session),
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": "id"},
	})
	if err != nil {
		if isConditionFailed(err) {
			return domain.Session{}, ErrSessionExists
		}
		return domain.Session{}, fmt.Errorf("repository: CreateSession: %w", err)
	}
	return session, nil
}

// RecordActivity stamps the latest turn on the session summary and bumps the
// message count in a single update.
func (c *Client) RecordActivity(ctx context.Context, userID, sessionID, content string) error {
	if err := requireSessionIDs("RecordActivity", userID, sessionID); err != nil {
		return err
	}
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tables.Sessions),
		Key:                 sessionItemKey(userID, sessionID),
		UpdateExpression:    aws.String("SET #last = :last, #lastAt = :now ADD #count :one"),
		ConditionExpression: aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id":     "id",
			"#last":   "last_message",
			"#lastAt": "last_message_at",
			"#count":  "message_count",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":last": strValue(truncate(content, lastMessageMax)),
			":now":  strValue(formatTimestamp(now())),
			":one":  &types.AttributeValueMemberN{Value: "1"},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("repository: RecordActivity: %w", err)
	}
	return nil
}

// ListSessions returns a user's sessions, most recently active first.
func (c *Client) ListSessions(ctx context.Context, userID string, limit int) ([]domain.Session, error) {
	if err := requireUserID("ListSessions", userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultSessionLimit
	}
	if limit > maxSessionLimit {
		limit = maxSessionLimit
	}

	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(c.tables.Sessions),
		IndexName:                aws.String(c.tables.SessionsIndex),
		KeyConditionExpression:   aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{"#pk": "user_id"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": strValue(userID),
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: ListSessions query: %w", err)
	}

	sessions := make([]domain.Session, 0, len(out.Items))
	for _, item := range out.Items {
		s, err := itemToSession(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListSessions unmarshal: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// DeleteSession removes the summary record only. Messages are deleted
// separately with DeleteSessionMessages.
func (c *Client) DeleteSession(ctx context.Context, userID, sessionID string) error {
	if err := requireSessionIDs("DeleteSession", userID, sessionID); err != nil {
		return err
	}
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tables.Sessions),
		Key:       sessionItemKey(userID, sessionID),
	})
	if err != nil {
		return fmt.Errorf("repository: DeleteSession: %w", err)
	}
	return nil
}

func sessionItemKey(userID, sessionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id": strValue(userID),
		"id":      strValue(sessionID),
	}
}

func sessionItem(s domain.Session) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id":         strValue(s.UserID),
		"id":              strValue(s.ID),
		"message_count":   &types.AttributeValueMemberN{Value: strconv.Itoa(s.MessageCount)},
		"last_message":    strValue(s.LastMessage),
		"last_message_at": strValue(formatTimestamp(s.LastMessageAt)),
	}
}

func itemToSession(item map[string]types.AttributeValue) (domain.Session, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.Session{}, err
	}
	userID, _ := strAttr(item, "user_id") // allow empty
	count, err := intAttr(item, "message_count")
	if err != nil {
		return domain.Session{}, err
	}
	last, _ := strAttr(item, "last_message") // allow empty
	lastAt, err := timeAttr(item, "last_message_at")
	if err != nil {
		return domain.Session{}, err
	}
	return domain.Session{
		ID:            id,
		UserID:        userID,
		MessageCount:  count,
		LastMessage:   last,
		LastMessageAt: lastAt,
	}, nil
}
