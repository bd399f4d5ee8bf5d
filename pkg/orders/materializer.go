package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/eshop/pkg/models"
	"github.com/example/eshop/pkg/repository"
)

const rollbackTimeout = 5 * time.Second

// Line is one requested (product, quantity) pair.
type Line struct {
	Product  primitive.ObjectID
	Quantity int
}

// MaterializedLine is a persisted order item with the catalog price it was
// ordered at.
type MaterializedLine struct {
	OrderItemID primitive.ObjectID
	Product     primitive.ObjectID
	UnitPrice   float64
	Quantity    int
}

func (l MaterializedLine) Total() float64 {
	return l.UnitPrice * float64(l.Quantity)
}

// Materializer persists one order item per requested line and resolves each
// line's unit price from the catalog.
type Materializer struct {
	items   OrderItemStore
	catalog Catalog
	logger  *zap.Logger
}

func NewMaterializer(items OrderItemStore, catalog Catalog, logger *zap.Logger) *Materializer {
	return &Materializer{
		items:   items,
		catalog: catalog,
		logger:  logger,
	}
}

// Materialize runs every line concurrently and waits for all of them. Results
// keep the order of lines. If any line fails, the items already written are
// removed and the first failure is returned as a *LineError.
func (m *Materializer) Materialize(ctx context.Context, lines []Line) ([]MaterializedLine, error) {
	results := make([]MaterializedLine, len(lines))
	written := make([]primitive.ObjectID, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	for i, line := range lines {
		i, line := i, line
		g.Go(func() error {
			item := &models.OrderItem{
				Product:  line.Product,
				Quantity: line.Quantity,
			}
			if err := m.items.InsertOrderItem(gctx, item); err != nil {
				return &LineError{Line: i, Product: line.Product, Err: storageErr("insert order item", err)}
			}
			written[i] = item.ID

			product, err := m.catalog.FindProduct(gctx, line.Product)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					err = fmt.Errorf("%w: product %s", ErrNotFound, line.Product.Hex())
				} else {
					err = storageErr("find product", err)
				}
				return &LineError{Line: i, Product: line.Product, Err: err}
			}

			results[i] = MaterializedLine{
				OrderItemID: item.ID,
				Product:     line.Product,
				UnitPrice:   product.Price,
				Quantity:    line.Quantity,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		m.rollback(ctx, written)
		return nil, err
	}

	return results, nil
}

// Remove deletes previously materialized items. It is best-effort: failures are
// logged and leave orphaned items behind.
func (m *Materializer) Remove(ctx context.Context, lines []MaterializedLine) {
	ids := make([]primitive.ObjectID, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.OrderItemID)
	}
	m.rollback(ctx, ids)
}

func (m *Materializer) rollback(ctx context.Context, ids []primitive.ObjectID) {
	var pending []primitive.ObjectID
	for _, id := range ids {
		if !id.IsZero() {
			pending = append(pending, id)
		}
	}
	if len(pending) == 0 {
		return
	}

	// The request context may already be cancelled by the failing line.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	if _, err := m.items.DeleteOrderItems(ctx, pending); err != nil {
		m.logger.Error("Failed to remove order items after failed materialization",
			zap.Int("count", len(pending)),
			zap.Error(err))
	}
}
