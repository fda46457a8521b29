// Package memory holds in-process stores with the same semantics as the
// DynamoDB repositories. LOCAL_MODE and the tests run on them.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloud-wave-best-zizon/order-events-service/internal/domain"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/repository"
)

type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]map[string]domain.Order // email -> order id -> order
}

func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]map[string]domain.Order)}
}

func cloneOrder(o domain.Order) domain.Order {
	o.Products = append([]domain.OrderProduct(nil), o.Products...)
	return o
}

func (s *OrderStore) CreateOrder(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.orders[order.Email]
	if !ok {
		byID = make(map[string]domain.Order)
		s.orders[order.Email] = byID
	}
	byID[order.ID] = cloneOrder(*order)
	return nil
}

func (s *OrderStore) GetOrder(_ context.Context, email, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[email][orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

func (s *OrderStore) GetOrdersByEmail(_ context.Context, email string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Order, 0, len(s.orders[email]))
	for _, o := range s.orders[email] {
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *OrderStore) GetAllOrders(_ context.Context) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Order
	for _, byID := range s.orders {
		for _, o := range byID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Email != out[j].Email {
			return out[i].Email < out[j].Email
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *OrderStore) DeleteOrder(_ context.Context, email, orderID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[email][orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	delete(s.orders[email], orderID)
	if len(s.orders[email]) == 0 {
		delete(s.orders, email)
	}
	return &o, nil
}

// Catalog is a fixed product set keyed by id.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

func NewCatalog(products ...domain.Product) *Catalog {
	c := &Catalog{products: make(map[string]domain.Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *Catalog) Put(p domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

func (c *Catalog) GetProductsByIDs(_ context.Context, ids []string) ([]domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]struct{}, len(ids))
	var out []domain.Product
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := c.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// AuditStore keeps records keyed by (pk, sk) and honours ttl on read.
type AuditStore struct {
	mu      sync.RWMutex
	records map[string]domain.AuditRecord
	now     func() time.Time
}

func NewAuditStore() *AuditStore {
	return &AuditStore{
		records: make(map[string]domain.AuditRecord),
		now:     time.Now,
	}
}

// WithClock replaces the clock used for ttl expiry.
func (s *AuditStore) WithClock(now func() time.Time) *AuditStore {
	s.now = now
	return s
}

func (s *AuditStore) CreateEvent(_ context.Context, record *domain.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := *record
	r.Info.ProductCodes = append([]string(nil), record.Info.ProductCodes...)
	// same pk/sk overwrites, like PutItem
	s.records[r.PK+"|"+r.SK] = r
	return nil
}

func (s *AuditStore) GetEntityEvents(_ context.Context, entity domain.Entity, id, eventType string) ([]domain.AuditRecord, error) {
	pk := entity.PartitionPrefix() + id
	prefix := ""
	if eventType != "" {
		prefix = domain.SortKeyPrefix(eventType)
	}
	return s.filter(func(r domain.AuditRecord) bool {
		return r.PK == pk && strings.HasPrefix(r.SK, prefix)
	}), nil
}

func (s *AuditStore) GetEventsByEmail(_ context.Context, email string, entity domain.Entity) ([]domain.AuditRecord, error) {
	return s.filter(func(r domain.AuditRecord) bool {
		return r.Email == email && strings.HasPrefix(r.PK, entity.PartitionPrefix())
	}), nil
}

func (s *AuditStore) GetEventsByEmailAndEventType(_ context.Context, email, eventType string) ([]domain.AuditRecord, error) {
	prefix := domain.SortKeyPrefix(eventType)
	return s.filter(func(r domain.AuditRecord) bool {
		return r.Email == email && strings.HasPrefix(r.SK, prefix)
	}), nil
}

// All returns every live record.
func (s *AuditStore) All() []domain.AuditRecord {
	return s.filter(func(domain.AuditRecord) bool { return true })
}

func (s *AuditStore) filter(keep func(domain.AuditRecord) bool) []domain.AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nowSec := s.now().Unix()
	var out []domain.AuditRecord
	for _, r := range s.records {
		if r.TTL > 0 && r.TTL < nowSec {
			continue
		}
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PK != out[j].PK {
			return out[i].PK < out[j].PK
		}
		return out[i].SK < out[j].SK
	})
	return out
}
