package callcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI captures the subset of DynamoDB client methods used by the store.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

type dynamoStore struct {
	client DynamoAPI
	table  string
	prefix string
}

const (
	dynamoEnsureTableMaxAttempts = 20
	dynamoEnsureTableRetryDelay  = 150 * time.Millisecond
	dynamoBatchWriteLimit        = 25
)

func newDynamoStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	if cfg.DynamoClient == nil {
		client, err := newDynamoClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		cfg.DynamoClient = client
	}
	if err := ensureDynamoTable(ctx, cfg.DynamoClient, cfg.DynamoTable); err != nil {
		return nil, err
	}
	return &dynamoStore{
		client: cfg.DynamoClient,
		table:  cfg.DynamoTable,
		prefix: cfg.Prefix,
	}, nil
}

func newDynamoClient(ctx context.Context, cfg StoreConfig) (*dynamodb.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.DynamoRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")),
	)
	if err != nil {
		return nil, err
	}
	if cfg.DynamoEndpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: cfg.DynamoEndpoint, HostnameImmutable: true}, nil
		})
		awsCfg.EndpointResolverWithOptions = resolver
	}
	return dynamodb.NewFromConfig(awsCfg), nil
}

func (s *dynamoStore) Driver() Driver { return DriverDynamo }

func (s *dynamoStore) Ready(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	return err
}

func (s *dynamoStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	rec, ok, err := s.getRecord(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	value, err := rec.scalar()
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *dynamoStore) Set(ctx context.Context, key string, value []byte) error {
	return s.putRecord(ctx, key, scalarRecord(value))
}

// Increment is a read-modify-write; concurrent writers to one key can lose updates.
func (s *dynamoStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	rec, ok, err := s.getRecord(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		rec = &record{Kind: kindScalar}
	}
	next, err := rec.increment(key, delta)
	if err != nil {
		return 0, err
	}
	if err := s.putRecord(ctx, key, rec); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *dynamoStore) Append(ctx context.Context, key string, value []byte) (int64, error) {
	// Drops an expired item first so list_append never extends a dead list.
	if _, _, err := s.getRecord(ctx, key); err != nil {
		return 0, err
	}
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 s.itemKey(key),
		UpdateExpression:    aws.String("SET l = list_append(if_not_exists(l, :empty), :item), t = :list"),
		ConditionExpression: aws.String("attribute_not_exists(v)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":item":  &types.AttributeValueMemberL{Value: []types.AttributeValue{&types.AttributeValueMemberB{Value: cloneBytes(value)}}},
			":list":  &types.AttributeValueMemberN{Value: strconv.Itoa(int(kindList))},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		var cce *types.ConditionalCheckFailedException
		if errors.As(err, &cce) {
			return 0, ErrWrongType
		}
		return 0, err
	}
	items, ok := out.Attributes["l"].(*types.AttributeValueMemberL)
	if !ok {
		return 0, errors.New("dynamodb update returned no list")
	}
	return int64(len(items.Value)), nil
}

func (s *dynamoStore) List(ctx context.Context, key string) ([][]byte, error) {
	rec, ok, err := s.getRecord(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return [][]byte{}, nil
	}
	return rec.list()
}

func (s *dynamoStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	_, ok, err := s.getRecord(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if ttl <= 0 {
		return true, s.Delete(ctx, key)
	}
	exp := time.Now().Add(ttl).UnixMilli()
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 s.itemKey(key),
		UpdateExpression:    aws.String("SET ea = :ea"),
		ConditionExpression: aws.String("attribute_exists(k)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ea": &types.AttributeValueMemberN{Value: strconv.FormatInt(exp, 10)},
		},
	})
	if err != nil {
		var cce *types.ConditionalCheckFailedException
		if errors.As(err, &cce) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *dynamoStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       s.itemKey(key),
	})
	return err
}

func (s *dynamoStore) Flush(ctx context.Context) error {
	input := &dynamodb.ScanInput{
		TableName:            aws.String(s.table),
		ProjectionExpression: aws.String("k"),
	}
	if s.prefix != "" {
		input.FilterExpression = aws.String("begins_with(k, :p)")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberS{Value: s.cacheKey("")},
		}
	}
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return err
		}
		if err := s.deleteItems(ctx, out.Items); err != nil {
			return err
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (s *dynamoStore) deleteItems(ctx context.Context, items []map[string]types.AttributeValue) error {
	for start := 0; start < len(items); start += dynamoBatchWriteLimit {
		end := start + dynamoBatchWriteLimit
		if end > len(items) {
			end = len(items)
		}
		writes := make([]types.WriteRequest, 0, end-start)
		for _, item := range items[start:end] {
			k, ok := item["k"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			writes = append(writes, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{
					Key: map[string]types.AttributeValue{"k": &types.AttributeValueMemberS{Value: k.Value}},
				},
			})
		}
		if len(writes) == 0 {
			continue
		}
		if _, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.table: writes},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *dynamoStore) getRecord(ctx context.Context, key string) (*record, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, err
	}
	if out.Item == nil {
		return nil, false, nil
	}
	rec, err := recordFromItem(out.Item)
	if err != nil {
		return nil, false, fmt.Errorf("dynamodb item %q: %w", key, err)
	}
	if rec.expired(time.Now()) {
		if err := s.Delete(ctx, key); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return rec, true, nil
}

func (s *dynamoStore) putRecord(ctx context.Context, key string, rec *record) error {
	item := map[string]types.AttributeValue{
		"k": &types.AttributeValueMemberS{Value: s.cacheKey(key)},
		"t": &types.AttributeValueMemberN{Value: strconv.Itoa(int(rec.Kind))},
	}
	if rec.Kind == kindList {
		values := make([]types.AttributeValue, 0, len(rec.Items))
		for _, v := range rec.Items {
			values = append(values, &types.AttributeValueMemberB{Value: cloneBytes(v)})
		}
		item["l"] = &types.AttributeValueMemberL{Value: values}
	} else {
		value := rec.Value
		if value == nil {
			value = []byte{}
		}
		item["v"] = &types.AttributeValueMemberB{Value: cloneBytes(value)}
	}
	if rec.ExpiresAt > 0 {
		item["ea"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.ExpiresAt, 10)}
	}
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	return err
}

func recordFromItem(item map[string]types.AttributeValue) (*record, error) {
	rec := &record{}
	if av, ok := item["ea"].(*types.AttributeValueMemberN); ok {
		exp, err := strconv.ParseInt(av.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid expiry %q", av.Value)
		}
		rec.ExpiresAt = exp
	}
	if l, ok := item["l"].(*types.AttributeValueMemberL); ok {
		rec.Kind = kindList
		rec.Items = make([][]byte, 0, len(l.Value))
		for _, av := range l.Value {
			b, ok := av.(*types.AttributeValueMemberB)
			if !ok {
				return nil, errors.New("list entry is not binary")
			}
			rec.Items = append(rec.Items, cloneBytes(b.Value))
		}
		return rec, nil
	}
	v, ok := item["v"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, errors.New("missing binary value")
	}
	rec.Kind = kindScalar
	rec.Value = cloneBytes(v.Value)
	return rec, nil
}

func (s *dynamoStore) itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"k": &types.AttributeValueMemberS{Value: s.cacheKey(key)}}
}

func (s *dynamoStore) cacheKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func ensureDynamoTable(ctx context.Context, client DynamoAPI, table string) error {
	var lastErr error
	for attempt := 1; attempt <= dynamoEnsureTableMaxAttempts; attempt++ {
		_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
		if err == nil {
			return nil
		}

		var rnfe *types.ResourceNotFoundException
		if errors.As(err, &rnfe) {
			_, createErr := client.CreateTable(ctx, &dynamodb.CreateTableInput{
				TableName: aws.String(table),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("k"), KeyType: types.KeyTypeHash},
				},
				AttributeDefinitions: []types.AttributeDefinition{
					{AttributeName: aws.String("k"), AttributeType: types.ScalarAttributeTypeS},
				},
				BillingMode: types.BillingModePayPerRequest,
			})
			if createErr == nil {
				return nil
			}
			var inUse *types.ResourceInUseException
			if errors.As(createErr, &inUse) {
				return nil
			}
			if !isDynamoStartupRetryable(createErr) {
				return createErr
			}
			lastErr = createErr
		} else {
			if !isDynamoStartupRetryable(err) {
				return err
			}
			lastErr = err
		}

		if attempt == dynamoEnsureTableMaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dynamoEnsureTableRetryDelay):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("dynamo table ensure failed")
	}
	return fmt.Errorf("ensure dynamo table %q: %w", table, lastErr)
}

func isDynamoStartupRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "request send failed") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "eof")
}
