package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/domain"
)

// AuditRepository stores lifecycle events in the events table. Records
// are written once and expire through the table's ttl attribute.
type AuditRepository struct {
	client     DynamoDBAPI
	tableName  string
	emailIndex string
}

func NewAuditRepository(client DynamoDBAPI, tableName, emailIndex string) *AuditRepository {
	return &AuditRepository{
		client:     client,
		tableName:  tableName,
		emailIndex: emailIndex,
	}
}

func (r *AuditRepository) CreateEvent(ctx context.Context, record *domain.AuditRecord) error {
	av, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put audit record: %w", err)
	}

	return nil
}

// GetEntityEvents returns the records of one order or product, ordered by
// sort key. A non-empty eventType narrows to that type.
func (r *AuditRepository) GetEntityEvents(ctx context.Context, entity domain.Entity, id, eventType string) ([]domain.AuditRecord, error) {
	keyCond := expression.Key("pk").Equal(expression.Value(entity.PartitionPrefix() + id))
	if eventType != "" {
		keyCond = keyCond.And(expression.Key("sk").BeginsWith(domain.SortKeyPrefix(eventType)))
	}

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, err
	}

	return r.query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
}

// GetEventsByEmail returns every record of the entity family for a customer.
func (r *AuditRepository) GetEventsByEmail(ctx context.Context, email string, entity domain.Entity) ([]domain.AuditRecord, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("email").Equal(expression.Value(email))).
		WithFilter(expression.Name("pk").BeginsWith(entity.PartitionPrefix())).
		Build()
	if err != nil {
		return nil, err
	}

	return r.query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(r.emailIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
}

func (r *AuditRepository) GetEventsByEmailAndEventType(ctx context.Context, email, eventType string) ([]domain.AuditRecord, error) {
	keyCond := expression.Key("email").Equal(expression.Value(email)).
		And(expression.Key("sk").BeginsWith(domain.SortKeyPrefix(eventType)))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, err
	}

	return r.query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(r.emailIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
}

func (r *AuditRepository) query(ctx context.Context, input *dynamodb.QueryInput) ([]domain.AuditRecord, error) {
	var records []domain.AuditRecord
	for {
		result, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query audit records: %w", err)
		}

		var page []domain.AuditRecord
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit records: %w", err)
		}
		records = append(records, page...)

		if len(result.LastEvaluatedKey) == 0 {
			return records, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}
