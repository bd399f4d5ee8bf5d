// Package orders manages the order aggregate: placing orders from catalog
// prices, cascading deletion of order items and the expanded read views.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/example/eshop/pkg/events"
	"github.com/example/eshop/pkg/models"
	"github.com/example/eshop/pkg/pricing"
	"github.com/example/eshop/pkg/repository"
)

const (
	serviceName  = "order-service"
	auditTimeout = 5 * time.Second
)

// CreateRequest is a validated order placement.
type CreateRequest struct {
	Lines            []Line
	ShippingAddress1 string
	ShippingAddress2 string
	City             string
	Zip              string
	Country          string
	Phone            string
	Status           string
	User             primitive.ObjectID
	Discount         *pricing.Discount
}

// Validate checks the shape of the request. Discount values are not
// bounds-checked.
func (r CreateRequest) Validate() error {
	if len(r.Lines) == 0 {
		return fmt.Errorf("%w: at least one order item is required", ErrValidation)
	}
	for i, l := range r.Lines {
		if l.Product.IsZero() {
			return fmt.Errorf("%w: order item %d: product is required", ErrValidation, i)
		}
		if l.Quantity < 1 {
			return fmt.Errorf("%w: order item %d: quantity must be at least 1", ErrValidation, i)
		}
	}
	if r.User.IsZero() {
		return fmt.Errorf("%w: user is required", ErrValidation)
	}

	required := []struct{ name, value string }{
		{"shippingAddress1", r.ShippingAddress1},
		{"city", r.City},
		{"zip", r.Zip},
		{"country", r.Country},
		{"phone", r.Phone},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrValidation, f.name)
		}
	}
	return nil
}

type Option func(*Manager)

func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

func WithAuditLogger(a AuditLogger) Option {
	return func(m *Manager) { m.audit = a }
}

// WithUserDirectory overrides the store's user lookups, e.g. with a cache.
func WithUserDirectory(u UserDirectory) Option {
	return func(m *Manager) { m.users = u }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager is the order aggregate root service.
type Manager struct {
	store        Store
	users        UserDirectory
	materializer *Materializer
	projector    *Projector
	publisher    Publisher
	audit        AuditLogger
	logger       *zap.Logger
	now          func() time.Time
	pending      sync.WaitGroup
}

func NewManager(store Store, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		users:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.materializer = NewMaterializer(store, store, logger.Named("materializer"))
	m.projector = NewProjector(store, store, m.users)
	return m
}

// Create places an order. Totals come from current catalog prices, never from
// the request. Items are written before the order; if anything fails the
// written items are removed and no order is persisted.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*models.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	lines, err := m.materializer.Materialize(ctx, req.Lines)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreationFailed, err)
	}

	var cartTotal float64
	itemIDs := make([]primitive.ObjectID, 0, len(lines))
	for _, l := range lines {
		cartTotal += l.Total()
		itemIDs = append(itemIDs, l.OrderItemID)
	}

	total := cartTotal
	if req.Discount != nil {
		res := pricing.Apply(cartTotal, *req.Discount)
		total = res.NewTotal
		m.logger.Info("Discount applied",
			zap.String("type", req.Discount.Type),
			zap.Float64("cart_total", cartTotal),
			zap.Float64("discount_amount", res.DiscountAmount))
	}

	status := req.Status
	if status == "" {
		status = models.DefaultOrderStatus
	}

	order := &models.Order{
		OrderItems:       itemIDs,
		ShippingAddress1: req.ShippingAddress1,
		ShippingAddress2: req.ShippingAddress2,
		City:             req.City,
		Zip:              req.Zip,
		Country:          req.Country,
		Phone:            req.Phone,
		Status:           status,
		TotalPrice:       total,
		User:             req.User,
		DateOrdered:      m.now().UTC(),
	}

	if err := m.store.InsertOrder(ctx, order); err != nil {
		m.logger.Error("Failed to create order", zap.Error(err))
		m.materializer.Remove(ctx, lines)
		return nil, fmt.Errorf("%w: %w", ErrCreationFailed, storageErr("insert order", err))
	}

	m.logger.Info("Order created",
		zap.String("order_id", order.ID.Hex()),
		zap.String("user_id", order.User.Hex()),
		zap.Int("items", len(itemIDs)),
		zap.Float64("total_price", order.TotalPrice))

	m.record(ctx, events.OrderCreated, order, bson.M{
		"user_id":     order.User.Hex(),
		"total_price": order.TotalPrice,
		"items":       len(itemIDs),
	})
	return order, nil
}

// Get returns one order with users, items, products and categories expanded.
func (m *Manager) Get(ctx context.Context, id primitive.ObjectID) (*OrderView, error) {
	order, err := m.findOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	views, err := m.projector.Details(ctx, []*models.Order{order})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// List returns every order, most recent first, with only users expanded.
func (m *Manager) List(ctx context.Context) ([]*OrderView, error) {
	found, err := m.store.FindOrders(ctx, repository.OrderFilter{})
	if err != nil {
		return nil, storageErr("find orders", err)
	}
	return m.projector.Summaries(ctx, found)
}

// ListByUser returns one user's orders, most recent first, fully expanded.
func (m *Manager) ListByUser(ctx context.Context, user primitive.ObjectID) ([]*OrderView, error) {
	found, err := m.store.FindOrders(ctx, repository.OrderFilter{User: user})
	if err != nil {
		return nil, storageErr("find user orders", err)
	}
	return m.projector.Details(ctx, found)
}

// UpdateStatus changes only the status of an order.
func (m *Manager) UpdateStatus(ctx context.Context, id primitive.ObjectID, status string) (*models.Order, error) {
	if strings.TrimSpace(status) == "" {
		return nil, fmt.Errorf("%w: status is required", ErrValidation)
	}

	order, err := m.store.UpdateOrderStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, id.Hex())
		}
		return nil, storageErr("update order status", err)
	}

	m.record(ctx, events.OrderStatusUpdated, order, bson.M{"status": status})
	return order, nil
}

// Delete removes an order's items and then the order. The two steps are not
// atomic: if the second fails the items are already gone.
func (m *Manager) Delete(ctx context.Context, id primitive.ObjectID) error {
	order, err := m.findOrder(ctx, id)
	if err != nil {
		return err
	}

	if len(order.OrderItems) > 0 {
		removed, err := m.store.DeleteOrderItems(ctx, order.OrderItems)
		if err != nil {
			return storageErr("delete order items", err)
		}
		if int(removed) != len(order.OrderItems) {
			m.logger.Warn("Order referenced missing items",
				zap.String("order_id", id.Hex()),
				zap.Int("referenced", len(order.OrderItems)),
				zap.Int64("removed", removed))
		}
	}

	if err := m.store.DeleteOrder(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: order %s", ErrNotFound, id.Hex())
		}
		return storageErr("delete order", err)
	}

	m.record(ctx, events.OrderDeleted, order, bson.M{"items": len(order.OrderItems)})
	return nil
}

func (m *Manager) findOrder(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	order, err := m.store.FindOrder(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, id.Hex())
		}
		return nil, storageErr("find order", err)
	}
	return order, nil
}

// record publishes the lifecycle event and writes the audit entry. Neither can
// fail the operation that triggered it.
func (m *Manager) record(ctx context.Context, kind string, order *models.Order, data bson.M) {
	if m.publisher != nil {
		event := events.NewOrderEvent(kind, order, m.now())
		if err := m.publisher.PublishOrderEvent(ctx, event); err != nil {
			m.logger.Warn("Failed to publish order event",
				zap.String("type", kind),
				zap.String("order_id", order.ID.Hex()),
				zap.Error(err))
		}
	}

	if m.audit != nil {
		entry := &repository.AuditLog{
			Service:  serviceName,
			Action:   kind,
			EntityID: order.ID.Hex(),
			Data:     data,
		}
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
		m.pending.Add(1)
		go func() {
			defer m.pending.Done()
			defer cancel()
			if err := m.audit.CreateAuditLog(actx, entry); err != nil {
				m.logger.Warn("Failed to write audit log", zap.String("action", kind), zap.Error(err))
			}
		}()
	}
}

// Drain waits for in-flight audit writes. It returns ctx.Err() if ctx ends
// first.
func (m *Manager) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
