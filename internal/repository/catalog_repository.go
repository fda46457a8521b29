package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/domain"
)

// BatchGetItem accepts at most 100 keys per request.
const _batchGetLimit = 100

const _maxUnprocessedRounds = 5

// CatalogRepository reads the products table owned by the catalog service.
type CatalogRepository struct {
	client    DynamoDBAPI
	tableName string
}

func NewCatalogRepository(client DynamoDBAPI, tableName string) *CatalogRepository {
	return &CatalogRepository{
		client:    client,
		tableName: tableName,
	}
}

// GetProductsByIDs returns the products that exist among ids, in no
// particular order. Duplicate ids are fetched once.
func (r *CatalogRepository) GetProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	seen := make(map[string]struct{}, len(ids))
	keys := make([]map[string]types.AttributeValue, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		})
	}

	var products []domain.Product
	for start := 0; start < len(keys); start += _batchGetLimit {
		chunk := keys[start:min(start+_batchGetLimit, len(keys))]
		page, err := r.batchGet(ctx, chunk)
		if err != nil {
			return nil, err
		}
		products = append(products, page...)
	}

	return products, nil
}

func (r *CatalogRepository) batchGet(ctx context.Context, keys []map[string]types.AttributeValue) ([]domain.Product, error) {
	var products []domain.Product
	request := map[string]types.KeysAndAttributes{
		r.tableName: {Keys: keys},
	}

	for round := 0; len(request) > 0; round++ {
		if round == _maxUnprocessedRounds {
			return nil, fmt.Errorf("failed to batch get products: unprocessed keys after %d rounds", round)
		}

		result, err := r.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
			RequestItems: request,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to batch get products: %w", err)
		}

		var page []domain.Product
		if err := attributevalue.UnmarshalListOfMaps(result.Responses[r.tableName], &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal products: %w", err)
		}
		products = append(products, page...)

		request = result.UnprocessedKeys
	}

	return products, nil
}
