package orders

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/example/eshop/pkg/events"
	"github.com/example/eshop/pkg/models"
	"github.com/example/eshop/pkg/repository"
)

type OrderStore interface {
	InsertOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	FindOrders(ctx context.Context, filter repository.OrderFilter) ([]*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id primitive.ObjectID, status string) (*models.Order, error)
	DeleteOrder(ctx context.Context, id primitive.ObjectID) error
}

type OrderItemStore interface {
	InsertOrderItem(ctx context.Context, item *models.OrderItem) error
	FindOrderItems(ctx context.Context, ids []primitive.ObjectID) ([]*models.OrderItem, error)
	DeleteOrderItems(ctx context.Context, ids []primitive.ObjectID) (int64, error)
}

// Catalog resolves product and category references. FindProduct returns
// repository.ErrNotFound when the product does not exist.
type Catalog interface {
	FindProduct(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
	FindProducts(ctx context.Context, ids []primitive.ObjectID) ([]*models.Product, error)
	FindCategories(ctx context.Context, ids []primitive.ObjectID) ([]*models.Category, error)
}

type UserDirectory interface {
	FindUserRefs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserRef, error)
}

// Store is everything the order aggregate needs from persistence.
type Store interface {
	OrderStore
	OrderItemStore
	Catalog
	UserDirectory
}

type Publisher interface {
	PublishOrderEvent(ctx context.Context, event events.OrderEvent) error
}

type AuditLogger interface {
	CreateAuditLog(ctx context.Context, log *repository.AuditLog) error
}
