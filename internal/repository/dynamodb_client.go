package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

const (
	// DefaultSessionsIndex is the LSI on the sessions table sorted by last_message_at.
	DefaultSessionsIndex = "last_message_at-index"
	// DefaultMessagesIndex is the LSI on the messages table sorted by timestamp.
	DefaultMessagesIndex = "timestamp-index"

	// timestampLayout is fixed width so lexical order in sort keys matches time order.
	timestampLayout = "2006-01-02T15:04:05.000000Z"
	lastMessageMax  = 200

	keySeparator = "#"
)

var (
	ErrNotFound         = errors.New("repository: item not found")
	ErrSessionExists    = errors.New("repository: session already exists")
	ErrInvalidFeedback  = errors.New("repository: thumbs_up and thumbs_down cannot both be true")
	ErrStoreUnavailable = errors.New("repository: store unavailable")
	ErrInvalidUserID    = errors.New("repository: user id must not contain " + keySeparator)
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Tables names the DynamoDB tables and local secondary indexes used by Client.
type Tables struct {
	Sessions      string
	Messages      string
	SessionsIndex string
	MessagesIndex string
}

// Client persists chat sessions and messages in DynamoDB.
type Client struct {
	api    dynamodbAPI
	tables Tables
}

// New creates a new repository Client.
func New(api dynamodbAPI, tables Tables) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	tables.Sessions = strings.TrimSpace(tables.Sessions)
	tables.Messages = strings.TrimSpace(tables.Messages)
	if tables.Sessions == "" || tables.Messages == "" {
		return nil, errors.New("repository: table names must not be empty")
	}
	if strings.TrimSpace(tables.SessionsIndex) == "" {
		tables.SessionsIndex = DefaultSessionsIndex
	}
	if strings.TrimSpace(tables.MessagesIndex) == "" {
		tables.MessagesIndex = DefaultMessagesIndex
	}
	return &Client{api: api, tables: tables}, nil
}

// Ping checks that both tables exist and are reachable.
func (c *Client) Ping(ctx context.Context) error {
	for _, table := range []string{c.tables.Sessions, c.tables.Messages} {
		if _, err := c.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}); err != nil {
			return fmt.Errorf("repository: Ping %s: %w", table, err)
		}
	}
	return nil
}

// sessionKey returns the messages partition key for a user's session.
// Every message read and write goes through it so one session stays in one partition.
// Callers validate with requireSessionIDs first: the key is only unambiguous
// when userID has no separator.
func sessionKey(userID, sessionID string) string {
	return userID + keySeparator + sessionID
}

var newID = func() string {
	return uuid.NewString()
}

var now = func() time.Time {
	return time.Now().UTC()
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// truncate keeps the first n characters of s.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func requireIDs(op string, ids ...string) error {
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("repository: %s: identifiers are required", op)
		}
	}
	return nil
}

// requireSessionIDs checks the pair that forms a session key.
func requireSessionIDs(op, userID, sessionID string) error {
	if err := requireIDs(op, userID, sessionID); err != nil {
		return err
	}
	return requireUserID(op, userID)
}

// ValidUserID reports whether userID can be part of a session key.
func ValidUserID(userID string) bool {
	return !strings.Contains(userID, keySeparator)
}

func requireUserID(op, userID string) error {
	if err := requireIDs(op, userID); err != nil {
		return err
	}
	if !ValidUserID(userID) {
		return fmt.Errorf("repository: %s: %w", op, ErrInvalidUserID)
	}
	return nil
}

func strValue(s string) *types.AttributeValueMemberS {
	return &types.AttributeValueMemberS{Value: s}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

// boolAttr treats a missing attribute as false.
func boolAttr(item map[string]types.AttributeValue, key string) (bool, error) {
	v, ok := item[key]
	if !ok {
		return false, nil
	}
	b, ok := v.(*types.AttributeValueMemberBOOL)
	if !ok {
		return false, fmt.Errorf("repository: attribute %q is not a bool", key)
	}
	return b.Value, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := parseTimestamp(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return t, nil
}
