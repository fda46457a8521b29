package domain

import (
	"fmt"
	"strings"
	"time"
)

// AuditRetention is how long an audit record lives before the table's TTL
// purges it.
const AuditRetention = 5 * time.Minute

type Entity string

const (
	EntityOrder   Entity = "order"
	EntityProduct Entity = "product"
)

// PartitionPrefix is the literal prefix shared by every partition key of the entity.
func (e Entity) PartitionPrefix() string {
	return "#" + string(e) + "_"
}

// AuditKey is the composite primary key of an audit record.
//
// The sort key is "<eventType>#<millis>" with millis zero padded to 13
// digits, so lexical order of sort keys equals (eventType, time) order and
// a begins_with on "<eventType>#" selects one event type.
type AuditKey struct {
	PK string
	SK string
}

func NewAuditKey(entity Entity, id, eventType string, at time.Time) AuditKey {
	return AuditKey{
		PK: entity.PartitionPrefix() + id,
		SK: SortKeyPrefix(eventType) + fmt.Sprintf("%013d", at.UnixMilli()),
	}
}

// SortKeyPrefix selects every record of one event type within a partition.
func SortKeyPrefix(eventType string) string {
	return eventType + "#"
}

// ParseSortKey splits a sort key back into event type and creation time.
func ParseSortKey(sk string) (string, time.Time, error) {
	i := strings.LastIndex(sk, "#")
	if i <= 0 || i == len(sk)-1 {
		return "", time.Time{}, fmt.Errorf("malformed sort key %q", sk)
	}
	var millis int64
	if _, err := fmt.Sscanf(sk[i+1:], "%d", &millis); err != nil {
		return "", time.Time{}, fmt.Errorf("malformed sort key %q: %w", sk, err)
	}
	return sk[:i], time.UnixMilli(millis), nil
}

// AuditRecord is the immutable persisted form of a lifecycle event.
type AuditRecord struct {
	PK        string    `dynamodbav:"pk"        json:"pk"`
	SK        string    `dynamodbav:"sk"        json:"sk"`
	TTL       int64     `dynamodbav:"ttl"       json:"ttl"`
	Email     string    `dynamodbav:"email"     json:"email"`
	RequestID string    `dynamodbav:"requestId" json:"requestId"`
	EventType string    `dynamodbav:"eventType" json:"eventType"`
	CreatedAt int64     `dynamodbav:"createdAt" json:"createdAt"`
	Info      AuditInfo `dynamodbav:"info"      json:"info"`
}

type AuditInfo struct {
	OrderID      string   `dynamodbav:"orderId,omitempty"      json:"orderId,omitempty"`
	ProductCodes []string `dynamodbav:"productCodes,omitempty" json:"productCodes,omitempty"`
	ProductID    string   `dynamodbav:"productId,omitempty"    json:"productId,omitempty"`
	Price        float64  `dynamodbav:"price,omitempty"        json:"price,omitempty"`
	MessageID    string   `dynamodbav:"messageId"              json:"messageId"`
}

// NewAuditRecord stamps key, creation time and ttl from at.
func NewAuditRecord(entity Entity, id, eventType string, at time.Time) *AuditRecord {
	key := NewAuditKey(entity, id, eventType, at)
	return &AuditRecord{
		PK:        key.PK,
		SK:        key.SK,
		TTL:       at.Add(AuditRetention).Unix(),
		EventType: eventType,
		CreatedAt: at.UnixMilli(),
	}
}
