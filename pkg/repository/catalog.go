package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/eshop/pkg/models"
)

// ProductUpdate lists the product fields to overwrite. Nil fields are left
// untouched.
type ProductUpdate struct {
	Name            *string
	Description     *string
	RichDescription *string
	Image           *string
	Images          []string
	Brand           *string
	Price           *float64
	Category        *primitive.ObjectID
	CountInStock    *int
	Rating          *float64
	NumReviews      *int
	IsFeatured      *bool
}

func (u ProductUpdate) set() bson.M {
	set := bson.M{}
	put := func(key string, ok bool, v any) {
		if ok {
			set[key] = v
		}
	}
	put("name", u.Name != nil, deref(u.Name))
	put("description", u.Description != nil, deref(u.Description))
	put("richDescription", u.RichDescription != nil, deref(u.RichDescription))
	put("image", u.Image != nil, deref(u.Image))
	put("images", u.Images != nil, u.Images)
	put("brand", u.Brand != nil, deref(u.Brand))
	put("price", u.Price != nil, deref(u.Price))
	put("category", u.Category != nil, deref(u.Category))
	put("countInStock", u.CountInStock != nil, deref(u.CountInStock))
	put("rating", u.Rating != nil, deref(u.Rating))
	put("numReviews", u.NumReviews != nil, deref(u.NumReviews))
	put("isFeatured", u.IsFeatured != nil, deref(u.IsFeatured))
	return set
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func (m *MongoRepository) InsertProduct(ctx context.Context, product *models.Product) error {
	if product.ID.IsZero() {
		product.ID = primitive.NewObjectID()
	}
	if product.Images == nil {
		product.Images = []string{}
	}
	_, err := m.collection(productsCollection).InsertOne(ctx, product)
	return err
}

func (m *MongoRepository) FindProduct(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	return findOne[models.Product](ctx, m.collection(productsCollection), bson.M{"_id": id})
}

func (m *MongoRepository) FindProducts(ctx context.Context, ids []primitive.ObjectID) ([]*models.Product, error) {
	return findMany[models.Product](ctx, m.collection(productsCollection), byIDs(ids))
}

// ListProducts returns all products, or only those in one of categories when
// it is non-empty.
func (m *MongoRepository) ListProducts(ctx context.Context, categories []primitive.ObjectID) ([]*models.Product, error) {
	filter := bson.M{}
	if len(categories) > 0 {
		filter["category"] = bson.M{"$in": categories}
	}
	return findMany[models.Product](ctx, m.collection(productsCollection), filter)
}

func (m *MongoRepository) FeaturedProducts(ctx context.Context, limit int64) ([]*models.Product, error) {
	opts := options.Find().SetLimit(limit)
	return findMany[models.Product](ctx, m.collection(productsCollection), bson.M{"isFeatured": true}, opts)
}

func (m *MongoRepository) CountProducts(ctx context.Context) (int64, error) {
	return m.collection(productsCollection).CountDocuments(ctx, bson.M{})
}

func (m *MongoRepository) UpdateProduct(ctx context.Context, id primitive.ObjectID, update ProductUpdate) (*models.Product, error) {
	set := update.set()
	if len(set) == 0 {
		return m.FindProduct(ctx, id)
	}
	return findOneAndUpdate[models.Product](ctx, m.collection(productsCollection), id, bson.M{"$set": set})
}

func (m *MongoRepository) DeleteProduct(ctx context.Context, id primitive.ObjectID) error {
	return deleteByID(ctx, m.collection(productsCollection), id)
}

func (m *MongoRepository) InsertCategory(ctx context.Context, category *models.Category) error {
	if category.ID.IsZero() {
		category.ID = primitive.NewObjectID()
	}
	_, err := m.collection(categoriesCollection).InsertOne(ctx, category)
	return err
}

func (m *MongoRepository) FindCategory(ctx context.Context, id primitive.ObjectID) (*models.Category, error) {
	return findOne[models.Category](ctx, m.collection(categoriesCollection), bson.M{"_id": id})
}

func (m *MongoRepository) FindCategories(ctx context.Context, ids []primitive.ObjectID) ([]*models.Category, error) {
	return findMany[models.Category](ctx, m.collection(categoriesCollection), byIDs(ids))
}

func (m *MongoRepository) ListCategories(ctx context.Context) ([]*models.Category, error) {
	return findMany[models.Category](ctx, m.collection(categoriesCollection), bson.M{})
}

// UpdateCategory replaces the editable fields of a category.
func (m *MongoRepository) UpdateCategory(ctx context.Context, category *models.Category) (*models.Category, error) {
	set := bson.M{
		"name":  category.Name,
		"color": category.Color,
		"icon":  category.Icon,
		"image": category.Image,
	}
	return findOneAndUpdate[models.Category](ctx, m.collection(categoriesCollection), category.ID, bson.M{"$set": set})
}

func (m *MongoRepository) DeleteCategory(ctx context.Context, id primitive.ObjectID) error {
	return deleteByID(ctx, m.collection(categoriesCollection), id)
}
