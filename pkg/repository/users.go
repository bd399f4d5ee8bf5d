package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/eshop/pkg/models"
)

var ErrDuplicateEmail = errors.New("email already registered")

func (m *MongoRepository) InsertUser(ctx context.Context, user *models.User) error {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if _, err := m.collection(usersCollection).InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, user.Email)
		}
		return err
	}
	return nil
}

func (m *MongoRepository) FindUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return findOne[models.User](ctx, m.collection(usersCollection), bson.M{"_id": id})
}

func (m *MongoRepository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return findOne[models.User](ctx, m.collection(usersCollection), bson.M{"email": email})
}

func (m *MongoRepository) ListUsers(ctx context.Context) ([]*models.User, error) {
	return findMany[models.User](ctx, m.collection(usersCollection), bson.M{})
}

func (m *MongoRepository) CountUsers(ctx context.Context) (int64, error) {
	return m.collection(usersCollection).CountDocuments(ctx, bson.M{})
}

func (m *MongoRepository) DeleteUser(ctx context.Context, id primitive.ObjectID) error {
	return deleteByID(ctx, m.collection(usersCollection), id)
}

// FindUserRefs returns the display names of the given users. Unknown ids are
// absent from the result.
func (m *MongoRepository) FindUserRefs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserRef, error) {
	opts := options.Find().SetProjection(bson.M{"name": 1})
	refs, err := findMany[models.UserRef](ctx, m.collection(usersCollection), byIDs(ids), opts)
	if err != nil {
		return nil, err
	}

	out := make(map[primitive.ObjectID]models.UserRef, len(refs))
	for _, r := range refs {
		out[r.ID] = *r
	}
	return out, nil
}
