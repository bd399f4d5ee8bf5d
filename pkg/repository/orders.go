package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/eshop/pkg/models"
)

// OrderFilter narrows FindOrders. A zero User matches every order.
type OrderFilter struct {
	User primitive.ObjectID
}

func (f OrderFilter) query() bson.M {
	q := bson.M{}
	if !f.User.IsZero() {
		q["user"] = f.User
	}
	return q
}

func (m *MongoRepository) InsertOrder(ctx context.Context, order *models.Order) error {
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	_, err := m.collection(ordersCollection).InsertOne(ctx, order)
	return err
}

func (m *MongoRepository) FindOrder(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	return findOne[models.Order](ctx, m.collection(ordersCollection), bson.M{"_id": id})
}

// FindOrders returns matching orders, most recent first.
func (m *MongoRepository) FindOrders(ctx context.Context, filter OrderFilter) ([]*models.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "dateOrdered", Value: -1}})
	return findMany[models.Order](ctx, m.collection(ordersCollection), filter.query(), opts)
}

func (m *MongoRepository) UpdateOrderStatus(ctx context.Context, id primitive.ObjectID, status string) (*models.Order, error) {
	return findOneAndUpdate[models.Order](ctx, m.collection(ordersCollection), id, bson.M{"$set": bson.M{"status": status}})
}

func (m *MongoRepository) DeleteOrder(ctx context.Context, id primitive.ObjectID) error {
	return deleteByID(ctx, m.collection(ordersCollection), id)
}

func (m *MongoRepository) InsertOrderItem(ctx context.Context, item *models.OrderItem) error {
	if item.ID.IsZero() {
		item.ID = primitive.NewObjectID()
	}
	_, err := m.collection(orderItemsCollection).InsertOne(ctx, item)
	return err
}

func (m *MongoRepository) FindOrderItems(ctx context.Context, ids []primitive.ObjectID) ([]*models.OrderItem, error) {
	return findMany[models.OrderItem](ctx, m.collection(orderItemsCollection), byIDs(ids))
}

func (m *MongoRepository) DeleteOrderItems(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	res, err := m.collection(orderItemsCollection).DeleteMany(ctx, byIDs(ids))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
