package repository

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type tableSchema struct {
	pk      string
	sk      string
	indexes map[string]string // index name -> sort attribute
}

// memDynamo is an in-memory stand-in for the handful of DynamoDB expressions
// the repository issues. It is not a general expression evaluator.
type memDynamo struct {
	mu      sync.Mutex
	schemas map[string]tableSchema
	tables  map[string][]map[string]types.AttributeValue

	pageSize    int
	putErr      error
	updateErr   error
	queryErr    error
	deleteErr   error
	describeErr error
	// failDeleteAfter makes DeleteItem fail once this many deletes succeeded; negative disables.
	failDeleteAfter int

	updateCalls  int
	queryCalls   int
	deleteCalls  int
	lastPutIn    *dynamodb.PutItemInput
	lastUpdateIn *dynamodb.UpdateItemInput
	lastQueryIn  *dynamodb.QueryInput
}

const (
	testSessionsTable = "chat_sessions"
	testMessagesTable = "chat_messages"
)

func newMemDynamo() *memDynamo {
	return &memDynamo{
		schemas: map[string]tableSchema{
			testSessionsTable: {pk: "user_id", sk: "id", indexes: map[string]string{DefaultSessionsIndex: "last_message_at"}},
			testMessagesTable: {pk: "user_session_key", sk: "id", indexes: map[string]string{DefaultMessagesIndex: "timestamp"}},
		},
		tables:          map[string][]map[string]types.AttributeValue{},
		failDeleteAfter: -1,
	}
}

func sval(v types.AttributeValue) string {
	switch t := v.(type) {
	case *types.AttributeValueMemberS:
		return t.Value
	case *types.AttributeValueMemberN:
		return t.Value
	}
	return ""
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func (f *memDynamo) find(table string, key map[string]types.AttributeValue) int {
	s := f.schemas[table]
	for i, item := range f.tables[table] {
		if sval(item[s.pk]) == sval(key[s.pk]) && sval(item[s.sk]) == sval(key[s.sk]) {
			return i
		}
	}
	return -1
}

func resolveNames(expr string, names map[string]string) string {
	keys := make([]string, 0, len(names))
	for k := range names {
		keys = append(keys, k)
	}
	// Longest first so "#last" does not clobber "#lastAt".
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	for _, k := range keys {
		expr = strings.ReplaceAll(expr, k, names[k])
	}
	return expr
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

func (f *memDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPutIn = in
	if f.putErr != nil {
		return nil, f.putErr
	}
	table := aws.ToString(in.TableName)
	idx := f.find(table, in.Item)
	if idx >= 0 && strings.Contains(aws.ToString(in.ConditionExpression), "attribute_not_exists") {
		return nil, conditionFailed()
	}
	if idx >= 0 {
		f.tables[table][idx] = copyItem(in.Item)
	} else {
		f.tables[table] = append(f.tables[table], copyItem(in.Item))
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (f *memDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	f.lastUpdateIn = in
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	table := aws.ToString(in.TableName)
	idx := f.find(table, in.Key)
	if idx < 0 {
		if strings.Contains(aws.ToString(in.ConditionExpression), "attribute_exists") {
			return nil, conditionFailed()
		}
		f.tables[table] = append(f.tables[table], copyItem(in.Key))
		idx = len(f.tables[table]) - 1
	}
	item := f.tables[table][idx]

	expr := resolveNames(aws.ToString(in.UpdateExpression), in.ExpressionAttributeNames)
	setPart, addPart, _ := strings.Cut(expr, " ADD ")
	setPart = strings.TrimPrefix(strings.TrimSpace(setPart), "SET ")
	for _, clause := range strings.Split(setPart, ",") {
		name, val, ok := strings.Cut(clause, "=")
		if !ok {
			continue
		}
		item[strings.TrimSpace(name)] = in.ExpressionAttributeValues[strings.TrimSpace(val)]
	}
	for _, clause := range strings.Split(addPart, ",") {
		fields := strings.Fields(clause)
		if len(fields) != 2 {
			continue
		}
		cur, _ := strconv.Atoi(sval(item[fields[0]]))
		inc, _ := strconv.Atoi(sval(in.ExpressionAttributeValues[fields[1]]))
		item[fields[0]] = &types.AttributeValueMemberN{Value: strconv.Itoa(cur + inc)}
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *memDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	if f.failDeleteAfter >= 0 && f.deleteCalls >= f.failDeleteAfter {
		return nil, errors.New("ProvisionedThroughputExceededException")
	}
	f.deleteCalls++
	table := aws.ToString(in.TableName)
	if idx := f.find(table, in.Key); idx >= 0 {
		f.tables[table] = append(f.tables[table][:idx], f.tables[table][idx+1:]...)
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *memDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	f.lastQueryIn = in
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	table := aws.ToString(in.TableName)
	schema := f.schemas[table]

	fields := strings.Fields(aws.ToString(in.KeyConditionExpression))
	attr := in.ExpressionAttributeNames[fields[0]]
	want := sval(in.ExpressionAttributeValues[fields[2]])

	var matched []map[string]types.AttributeValue
	for _, item := range f.tables[table] {
		if sval(item[attr]) == want {
			matched = append(matched, item)
		}
	}
	sortAttr := schema.sk
	if in.IndexName != nil {
		sortAttr = schema.indexes[aws.ToString(in.IndexName)]
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return sval(matched[i][sortAttr]) < sval(matched[j][sortAttr])
	})
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	if len(in.ExclusiveStartKey) > 0 {
		for i, item := range matched {
			if sval(item[schema.pk]) == sval(in.ExclusiveStartKey[schema.pk]) && sval(item[schema.sk]) == sval(in.ExclusiveStartKey[schema.sk]) {
				matched = matched[i+1:]
				break
			}
		}
	}

	n := len(matched)
	if in.Limit != nil && int(*in.Limit) < n {
		n = int(*in.Limit)
	}
	if f.pageSize > 0 && f.pageSize < n {
		n = f.pageSize
	}
	page := matched[:n]

	out := &dynamodb.QueryOutput{}
	projection := resolveNames(aws.ToString(in.ProjectionExpression), in.ExpressionAttributeNames)
	for _, item := range page {
		if projection == "" {
			out.Items = append(out.Items, copyItem(item))
			continue
		}
		projected := map[string]types.AttributeValue{}
		for _, name := range strings.Split(projection, ",") {
			name = strings.TrimSpace(name)
			if v, ok := item[name]; ok {
				projected[name] = v
			}
		}
		out.Items = append(out.Items, projected)
	}
	if n < len(matched) && n > 0 {
		last := page[n-1]
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			schema.pk: last[schema.pk],
			schema.sk: last[schema.sk],
		}
	}
	return out, nil
}

func (f *memDynamo) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	if _, ok := f.schemas[aws.ToString(in.TableName)]; !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Requested resource not found")}
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

func (f *memDynamo) count(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tables[table])
}

func (f *memDynamo) item(table string, key map[string]types.AttributeValue) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.find(table, key)
	if idx < 0 {
		return nil
	}
	return f.tables[table][idx]
}

// useClock makes now() advance by one millisecond per call.
func useClock(t *testing.T) {
	t.Helper()
	base := time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	prev := now
	now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}
	t.Cleanup(func() { now = prev })
}
