package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"gmaps-engine/internal/domain"
)

// DynamoAPI is the slice of the DynamoDB client the sink uses.
type DynamoAPI interface {
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

const dynamoBatchLimit = 25

// dynamoItem is a place plus the batch it arrived in. The table key is "id".
type dynamoItem struct {
	domain.Place
	Batch    string `dynamodbav:"batch"`
	StoredAt string `dynamodbav:"stored_at"`
}

type DynamoSink struct {
	client DynamoAPI
	table  string
	// retries for UnprocessedItems
	maxRounds int
	pause     time.Duration
}

func NewDynamoSink(client DynamoAPI, table string) *DynamoSink {
	return &DynamoSink{client: client, table: table, maxRounds: 5, pause: 200 * time.Millisecond}
}

func (s *DynamoSink) Name() string { return TypeDynamoDB }

func (s *DynamoSink) Save(ctx context.Context, records []domain.Place, filename string) (string, error) {
	name, err := cleanFilename(filename)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC().Format(time.RFC3339)

	for start := 0; start < len(records); start += dynamoBatchLimit {
		end := start + dynamoBatchLimit
		if end > len(records) {
			end = len(records)
		}

		reqs := make([]dynamodbtypes.WriteRequest, 0, end-start)
		for _, p := range records[start:end] {
			item, err := attributevalue.MarshalMap(dynamoItem{Place: p, Batch: name, StoredAt: now})
			if err != nil {
				return "", fmt.Errorf("failed to marshal place %s: %w", p.ID, err)
			}
			reqs = append(reqs, dynamodbtypes.WriteRequest{PutRequest: &dynamodbtypes.PutRequest{Item: item}})
		}
		if err := s.write(ctx, reqs); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("dynamodb://%s/%s", s.table, name), nil
}

func (s *DynamoSink) write(ctx context.Context, reqs []dynamodbtypes.WriteRequest) error {
	pending := map[string][]dynamodbtypes.WriteRequest{s.table: reqs}
	for round := 0; round < s.maxRounds; round++ {
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("failed to write batch to DynamoDB: %w", err)
		}
		if len(out.UnprocessedItems[s.table]) == 0 {
			return nil
		}
		pending = out.UnprocessedItems

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pause * time.Duration(round+1)):
		}
	}
	return fmt.Errorf("dynamodb: %d items still unprocessed", len(pending[s.table]))
}

func (s *DynamoSink) Load(ctx context.Context, filename string) ([]domain.Place, error) {
	out := []domain.Place{}
	var lastEvaluatedKey map[string]dynamodbtypes.AttributeValue

	for {
		input := &dynamodb.ScanInput{
			TableName:                aws.String(s.table),
			FilterExpression:         aws.String("#b = :b"),
			ExpressionAttributeNames: map[string]string{"#b": "batch"},
			ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
				":b": &dynamodbtypes.AttributeValueMemberS{Value: filename},
			},
		}
		if lastEvaluatedKey != nil {
			input.ExclusiveStartKey = lastEvaluatedKey
		}

		res, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan places: %w", err)
		}
		for _, item := range res.Items {
			var it dynamoItem
			if err := attributevalue.UnmarshalMap(item, &it); err != nil {
				return nil, fmt.Errorf("failed to unmarshal place: %w", err)
			}
			out = append(out, it.Place)
		}

		lastEvaluatedKey = res.LastEvaluatedKey
		if lastEvaluatedKey == nil {
			break
		}
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}
