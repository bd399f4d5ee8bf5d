package orders

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/example/eshop/pkg/models"
)

// OrderView is an order with its references expanded for display.
type OrderView struct {
	ID               primitive.ObjectID `json:"id"`
	OrderItems       []OrderItemView    `json:"orderItems"`
	ShippingAddress1 string             `json:"shippingAddress1"`
	ShippingAddress2 string             `json:"shippingAddress2,omitempty"`
	City             string             `json:"city"`
	Zip              string             `json:"zip"`
	Country          string             `json:"country"`
	Phone            string             `json:"phone"`
	Status           string             `json:"status"`
	TotalPrice       float64            `json:"totalPrice"`
	User             *models.UserRef    `json:"user"`
	DateOrdered      time.Time          `json:"dateOrdered"`
}

// OrderItemView carries only the item id unless the order was fully expanded.
// Product is nil when the referenced product no longer exists.
type OrderItemView struct {
	ID       primitive.ObjectID  `json:"id"`
	Quantity int                 `json:"quantity,omitempty"`
	Product  *models.ProductView `json:"product,omitempty"`
}

// Projector composes read-only views over persisted orders.
type Projector struct {
	items   OrderItemStore
	catalog Catalog
	users   UserDirectory
}

func NewProjector(items OrderItemStore, catalog Catalog, users UserDirectory) *Projector {
	return &Projector{
		items:   items,
		catalog: catalog,
		users:   users,
	}
}

// Summaries expands the user reference of each order to its display name and
// leaves items as bare references.
func (p *Projector) Summaries(ctx context.Context, orders []*models.Order) ([]*OrderView, error) {
	users, err := p.userRefs(ctx, orders)
	if err != nil {
		return nil, err
	}

	views := make([]*OrderView, 0, len(orders))
	for _, o := range orders {
		v := newView(o, users)
		for _, id := range o.OrderItems {
			v.OrderItems = append(v.OrderItems, OrderItemView{ID: id})
		}
		views = append(views, v)
	}
	return views, nil
}

// Details expands users, order items, their products and the products'
// categories.
func (p *Projector) Details(ctx context.Context, orders []*models.Order) ([]*OrderView, error) {
	users, err := p.userRefs(ctx, orders)
	if err != nil {
		return nil, err
	}

	var itemIDs []primitive.ObjectID
	for _, o := range orders {
		itemIDs = append(itemIDs, o.OrderItems...)
	}
	items, err := p.orderItems(ctx, itemIDs)
	if err != nil {
		return nil, err
	}
	products, err := p.products(ctx, items)
	if err != nil {
		return nil, err
	}

	views := make([]*OrderView, 0, len(orders))
	for _, o := range orders {
		v := newView(o, users)
		for _, id := range o.OrderItems {
			iv := OrderItemView{ID: id}
			if item, ok := items[id]; ok {
				iv.Quantity = item.Quantity
				iv.Product = products[item.Product]
			}
			v.OrderItems = append(v.OrderItems, iv)
		}
		views = append(views, v)
	}
	return views, nil
}

func newView(o *models.Order, users map[primitive.ObjectID]models.UserRef) *OrderView {
	v := &OrderView{
		ID:               o.ID,
		OrderItems:       make([]OrderItemView, 0, len(o.OrderItems)),
		ShippingAddress1: o.ShippingAddress1,
		ShippingAddress2: o.ShippingAddress2,
		City:             o.City,
		Zip:              o.Zip,
		Country:          o.Country,
		Phone:            o.Phone,
		Status:           o.Status,
		TotalPrice:       o.TotalPrice,
		DateOrdered:      o.DateOrdered,
	}
	if ref, ok := users[o.User]; ok {
		v.User = &ref
	}
	return v
}

func (p *Projector) userRefs(ctx context.Context, orders []*models.Order) (map[primitive.ObjectID]models.UserRef, error) {
	ids := make([]primitive.ObjectID, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.User)
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return map[primitive.ObjectID]models.UserRef{}, nil
	}

	refs, err := p.users.FindUserRefs(ctx, ids)
	if err != nil {
		return nil, storageErr("find users", err)
	}
	return refs, nil
}

func (p *Projector) orderItems(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.OrderItem, error) {
	ids = uniqueIDs(ids)
	out := make(map[primitive.ObjectID]*models.OrderItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	items, err := p.items.FindOrderItems(ctx, ids)
	if err != nil {
		return nil, storageErr("find order items", err)
	}
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}

func (p *Projector) products(ctx context.Context, items map[primitive.ObjectID]*models.OrderItem) (map[primitive.ObjectID]*models.ProductView, error) {
	ids := make([]primitive.ObjectID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.Product)
	}
	ids = uniqueIDs(ids)
	out := make(map[primitive.ObjectID]*models.ProductView, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	products, err := p.catalog.FindProducts(ctx, ids)
	if err != nil {
		return nil, storageErr("find products", err)
	}

	categoryIDs := make([]primitive.ObjectID, 0, len(products))
	for _, product := range products {
		categoryIDs = append(categoryIDs, product.Category)
	}
	categoryIDs = uniqueIDs(categoryIDs)

	categories := make(map[primitive.ObjectID]*models.Category, len(categoryIDs))
	if len(categoryIDs) > 0 {
		found, err := p.catalog.FindCategories(ctx, categoryIDs)
		if err != nil {
			return nil, storageErr("find categories", err)
		}
		for _, c := range found {
			categories[c.ID] = c
		}
	}

	for _, product := range products {
		out[product.ID] = &models.ProductView{
			Product:  *product,
			Category: categories[product.Category],
		}
	}
	return out, nil
}

func uniqueIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if id.IsZero() {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
