package orders

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/example/eshop/pkg/events"
	"github.com/example/eshop/pkg/models"
	"github.com/example/eshop/pkg/repository"
)

// memStore is an in-memory Store. Fail* hooks inject errors per operation.
type memStore struct {
	mu         sync.Mutex
	orders     map[primitive.ObjectID]*models.Order
	items      map[primitive.ObjectID]*models.OrderItem
	products   map[primitive.ObjectID]*models.Product
	categories map[primitive.ObjectID]*models.Category
	users      map[primitive.ObjectID]*models.User

	failInsertOrder      error
	failInsertItem       error
	failDeleteItems      error
	failDeleteOrder      error
	failFindProduct      error
	deleteItemsCalls     int
	insertOrderItemCalls int
}

func newMemStore() *memStore {
	return &memStore{
		orders:     map[primitive.ObjectID]*models.Order{},
		items:      map[primitive.ObjectID]*models.OrderItem{},
		products:   map[primitive.ObjectID]*models.Product{},
		categories: map[primitive.ObjectID]*models.Category{},
		users:      map[primitive.ObjectID]*models.User{},
	}
}

func (s *memStore) addCategory(name string) *models.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &models.Category{ID: primitive.NewObjectID(), Name: name}
	s.categories[c.ID] = c
	return c
}

func (s *memStore) addProduct(name string, price float64, category primitive.ObjectID) *models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &models.Product{ID: primitive.NewObjectID(), Name: name, Price: price, Category: category}
	s.products[p.ID] = p
	return p
}

func (s *memStore) addUser(name string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &models.User{ID: primitive.NewObjectID(), Name: name}
	s.users[u.ID] = u
	return u
}

func (s *memStore) itemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memStore) InsertOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsertOrder != nil {
		return s.failInsertOrder
	}
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	cp := *order
	s.orders[order.ID] = &cp
	return nil
}

func (s *memStore) FindOrder(_ context.Context, id primitive.ObjectID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *memStore) FindOrders(_ context.Context, filter repository.OrderFilter) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Order{}
	for _, o := range s.orders {
		if !filter.User.IsZero() && o.User != filter.User {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateOrdered.After(out[j].DateOrdered) })
	return out, nil
}

func (s *memStore) UpdateOrderStatus(_ context.Context, id primitive.ObjectID, status string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	o.Status = status
	cp := *o
	return &cp, nil
}

func (s *memStore) DeleteOrder(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDeleteOrder != nil {
		return s.failDeleteOrder
	}
	if _, ok := s.orders[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.orders, id)
	return nil
}

func (s *memStore) InsertOrderItem(ctx context.Context, item *models.OrderItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertOrderItemCalls++
	if s.failInsertItem != nil {
		return s.failInsertItem
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if item.ID.IsZero() {
		item.ID = primitive.NewObjectID()
	}
	cp := *item
	s.items[item.ID] = &cp
	return nil
}

func (s *memStore) FindOrderItems(_ context.Context, ids []primitive.ObjectID) ([]*models.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.OrderItem{}
	for _, id := range ids {
		if it, ok := s.items[id]; ok {
			cp := *it
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) DeleteOrderItems(_ context.Context, ids []primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteItemsCalls++
	if s.failDeleteItems != nil {
		return 0, s.failDeleteItems
	}
	var n int64
	for _, id := range ids {
		if _, ok := s.items[id]; ok {
			delete(s.items, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) FindProduct(_ context.Context, id primitive.ObjectID) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFindProduct != nil {
		return nil, s.failFindProduct
	}
	p, ok := s.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) FindProducts(_ context.Context, ids []primitive.ObjectID) ([]*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Product{}
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) FindCategories(_ context.Context, ids []primitive.ObjectID) ([]*models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Category{}
	for _, id := range ids {
		if c, ok := s.categories[id]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) FindUserRefs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[primitive.ObjectID]models.UserRef{}
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = models.UserRef{ID: u.ID, Name: u.Name}
		}
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.OrderEvent
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, e events.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []*repository.AuditLog
	// release, when set, blocks every write until it is closed.
	release chan struct{}
}

func (a *recordingAudit) CreateAuditLog(ctx context.Context, log *repository.AuditLog) error {
	if a.release != nil {
		select {
		case <-a.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, log)
	return nil
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

var errBoom = errors.New("boom")
