package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/example/eshop/pkg/auth"
	"github.com/example/eshop/pkg/config"
	"github.com/example/eshop/pkg/models"
	"github.com/example/eshop/pkg/orders"
	"github.com/example/eshop/pkg/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeOrders struct {
	mu      sync.Mutex
	created []orders.CreateRequest
	deleted []primitive.ObjectID
	err     error
	views   map[primitive.ObjectID]*orders.OrderView
}

func (f *fakeOrders) Create(_ context.Context, req orders.CreateRequest) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, req)
	return &models.Order{ID: primitive.NewObjectID(), User: req.User, Status: models.DefaultOrderStatus}, nil
}

func (f *fakeOrders) Get(_ context.Context, id primitive.ObjectID) (*orders.OrderView, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.views[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", orders.ErrNotFound, id.Hex())
	}
	return v, nil
}

func (f *fakeOrders) List(context.Context) ([]*orders.OrderView, error) {
	out := make([]*orders.OrderView, 0, len(f.views))
	for _, v := range f.views {
		out = append(out, v)
	}
	return out, f.err
}

func (f *fakeOrders) ListByUser(_ context.Context, user primitive.ObjectID) ([]*orders.OrderView, error) {
	var out []*orders.OrderView
	for _, v := range f.views {
		if v.User != nil && v.User.ID == user {
			out = append(out, v)
		}
	}
	return out, f.err
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id primitive.ObjectID, status string) (*models.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Order{ID: id, Status: status}, nil
}

func (f *fakeOrders) Delete(_ context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeCategories struct {
	CategoryStore
	byID map[primitive.ObjectID]*models.Category
}

func (f *fakeCategories) FindCategory(_ context.Context, id primitive.ObjectID) (*models.Category, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (f *fakeCategories) FindCategories(_ context.Context, ids []primitive.ObjectID) ([]*models.Category, error) {
	var out []*models.Category
	for _, id := range ids {
		if c, ok := f.byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCategories) InsertCategory(_ context.Context, c *models.Category) error {
	c.ID = primitive.NewObjectID()
	f.byID[c.ID] = c
	return nil
}

type fakeProducts struct {
	ProductStore
	products []*models.Product
	filter   []primitive.ObjectID
}

func (f *fakeProducts) CountProducts(context.Context) (int64, error) {
	return int64(len(f.products)), nil
}

func (f *fakeProducts) ListProducts(_ context.Context, categories []primitive.ObjectID) ([]*models.Product, error) {
	f.filter = categories
	return f.products, nil
}

type fakeUsers struct {
	UserStore
	byEmail  map[string]*models.User
	inserted []*models.User
}

func (f *fakeUsers) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) CountUsers(context.Context) (int64, error) {
	return int64(len(f.inserted)), nil
}

func (f *fakeUsers) InsertUser(_ context.Context, u *models.User) error {
	u.ID = primitive.NewObjectID()
	f.inserted = append(f.inserted, u)
	return nil
}

type testEnv struct {
	gateway    *Gateway
	orders     *fakeOrders
	categories *fakeCategories
	products   *fakeProducts
	users      *fakeUsers
	tokens     *auth.TokenIssuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Gateway: config.GatewayConfig{APIPrefix: "/api/v1"},
		Auth:    config.AuthConfig{Enabled: true, Secret: "test-secret", TokenTTL: time.Hour},
	}
	env := &testEnv{
		orders:     &fakeOrders{views: map[primitive.ObjectID]*orders.OrderView{}},
		categories: &fakeCategories{byID: map[primitive.ObjectID]*models.Category{}},
		products:   &fakeProducts{},
		users:      &fakeUsers{byEmail: map[string]*models.User{}},
		tokens:     auth.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL),
	}
	env.gateway = NewGateway(cfg, zap.NewNop(), Dependencies{
		Orders:     env.orders,
		Products:   env.products,
		Categories: env.categories,
		Users:      env.users,
		Tokens:     env.tokens,
	})
	env.gateway.SetupRoutes()
	return env
}

func (e *testEnv) token(t *testing.T, userID primitive.ObjectID, admin bool) string {
	t.Helper()
	tok, err := e.tokens.Issue(userID.Hex(), admin)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.gateway.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"bad request", badRequest("nope"), http.StatusBadRequest},
		{"validation", fmt.Errorf("%w: city is required", orders.ErrValidation), http.StatusBadRequest},
		{"order not found", fmt.Errorf("%w: order x", orders.ErrNotFound), http.StatusNotFound},
		{"record not found", repository.ErrNotFound, http.StatusNotFound},
		{"missing product during create", fmt.Errorf("%w: %w", orders.ErrCreationFailed, orders.ErrNotFound), http.StatusInternalServerError},
		{"storage", fmt.Errorf("%w: boom", orders.ErrStorage), http.StatusInternalServerError},
		{"duplicate email", repository.ErrDuplicateEmail, http.StatusConflict},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestOrdersRequireToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/orders", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListOrdersRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	user := primitive.NewObjectID()

	rec := env.do(t, http.MethodGet, "/api/v1/orders", env.token(t, user, false), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/orders", env.token(t, user, true), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateOrder(t *testing.T) {
	env := newTestEnv(t)
	user := primitive.NewObjectID()
	product := primitive.NewObjectID()

	body := map[string]any{
		"orderItems":       []map[string]any{{"product": product.Hex(), "quantity": 2}},
		"shippingAddress1": "1 Main St",
		"city":             "Springfield",
		"zip":              "12345",
		"country":          "US",
		"phone":            "555-0100",
		"discount":         map[string]any{"type": "percentage", "value": 10},
	}
	rec := env.do(t, http.MethodPost, "/api/v1/orders", env.token(t, user, false), body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Len(t, env.orders.created, 1)
	req := env.orders.created[0]
	assert.Equal(t, user, req.User, "user defaults to the caller")
	require.Len(t, req.Lines, 1)
	assert.Equal(t, orders.Line{Product: product, Quantity: 2}, req.Lines[0])
	require.NotNil(t, req.Discount)
	assert.Equal(t, "percentage", req.Discount.Type)
	assert.Equal(t, 10.0, req.Discount.Value)
}

func TestCreateOrderRejectsMalformedProductID(t *testing.T) {
	env := newTestEnv(t)

	body := map[string]any{
		"orderItems": []map[string]any{{"product": "xyz", "quantity": 1}},
	}
	rec := env.do(t, http.MethodPost, "/api/v1/orders", env.token(t, primitive.NewObjectID(), false), body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.orders.created)
}

func TestCreateOrderFailureIncludesCause(t *testing.T) {
	env := newTestEnv(t)
	env.orders.err = fmt.Errorf("%w: line 0: %w", orders.ErrCreationFailed, orders.ErrNotFound)

	body := map[string]any{
		"orderItems": []map[string]any{{"product": primitive.NewObjectID().Hex(), "quantity": 1}},
	}
	rec := env.do(t, http.MethodPost, "/api/v1/orders", env.token(t, primitive.NewObjectID(), false), body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	out := decode(t, rec)
	assert.Equal(t, "The order cannot be created", out["message"])
	assert.Contains(t, out["error"], "order creation failed")
}

func TestGetOrderNotFound(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, primitive.NewObjectID(), false)

	rec := env.do(t, http.MethodGet, "/api/v1/orders/"+primitive.NewObjectID().Hex(), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["error"])

	rec = env.do(t, http.MethodGet, "/api/v1/orders/not-an-id", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListUserOrdersRoutes(t *testing.T) {
	env := newTestEnv(t)
	user := primitive.NewObjectID()
	id := primitive.NewObjectID()
	env.orders.views[id] = &orders.OrderView{ID: id, User: &models.UserRef{ID: user, Name: "Ada"}}
	token := env.token(t, user, false)

	for _, path := range []string{"/api/v1/orders/user/", "/api/v1/orders/get/userorders/"} {
		rec := env.do(t, http.MethodGet, path+user.Hex(), token, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)

		var list []orders.OrderView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
		require.Len(t, list, 1, path)
		assert.Equal(t, id, list[0].ID)
	}
}

func TestUpdateAndDeleteOrder(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, primitive.NewObjectID(), true)
	id := primitive.NewObjectID()

	rec := env.do(t, http.MethodPut, "/api/v1/orders/"+id.Hex(), admin, map[string]string{"status": "Shipped"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Shipped", decode(t, rec)["status"])

	rec = env.do(t, http.MethodDelete, "/api/v1/orders/"+id.Hex(), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Order deleted", decode(t, rec)["message"])
	assert.Equal(t, []primitive.ObjectID{id}, env.orders.deleted)
}

func TestAuthDisabledLetsEveryoneThrough(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.config.Auth.Enabled = false

	rec := env.do(t, http.MethodGet, "/api/v1/orders", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)
	user := &models.User{ID: primitive.NewObjectID(), Email: "ada@example.com", PasswordHash: hash, IsAdmin: true}
	env.users.byEmail[user.Email] = user

	rec := env.do(t, http.MethodPost, "/api/v1/users/login", "", map[string]string{"email": "nobody@example.com", "password": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", decode(t, rec)["message"])

	rec = env.do(t, http.MethodPost, "/api/v1/users/login", "", map[string]string{"email": "ada@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid password", decode(t, rec)["message"])

	rec = env.do(t, http.MethodPost, "/api/v1/users/login", "", map[string]string{"email": "Ada@Example.com", "password": "s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "Login successful", out["message"])

	claims, err := env.tokens.Parse(out["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, user.ID.Hex(), claims.UserID)
	assert.True(t, claims.IsAdmin)
}

func TestRegisterNeverGrantsAdmin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/users/register", "", map[string]any{
		"name":     "Mallory",
		"email":    "mallory@example.com",
		"password": "pw",
		"isAdmin":  true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, env.users.inserted, 1)
	assert.False(t, env.users.inserted[0].IsAdmin)
	assert.NotContains(t, rec.Body.String(), "passwordHash")
}

func TestCreateCategoryRequiresName(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, primitive.NewObjectID(), true)

	rec := env.do(t, http.MethodPost, "/api/v1/categories", admin, map[string]string{"color": "#fff"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/categories", admin, map[string]string{"name": "Shoes"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, env.categories.byID, 1)
}

func TestListProductsExpandsCategories(t *testing.T) {
	env := newTestEnv(t)
	shoes := &models.Category{ID: primitive.NewObjectID(), Name: "Shoes"}
	env.categories.byID[shoes.ID] = shoes
	env.products.products = []*models.Product{
		{ID: primitive.NewObjectID(), Name: "Runner", Category: shoes.ID},
		{ID: primitive.NewObjectID(), Name: "Orphan", Category: primitive.NewObjectID()},
	}

	rec := env.do(t, http.MethodGet, "/api/v1/products?categories="+shoes.ID.Hex(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []primitive.ObjectID{shoes.ID}, env.products.filter)

	var views []struct {
		Name     string           `json:"name"`
		Category *models.Category `json:"category"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	require.NotNil(t, views[0].Category)
	assert.Equal(t, "Shoes", views[0].Category.Name)
	assert.Nil(t, views[1].Category)
}

func TestFeaturedProductsRejectsBadCount(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/products/get/featured/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

type fakeAudit struct {
	entity string
	limit  int64
}

func (f *fakeAudit) GetAuditLogs(_ context.Context, entityID string, limit int64) ([]*repository.AuditLog, error) {
	f.entity, f.limit = entityID, limit
	return []*repository.AuditLog{{Action: "order.created", EntityID: entityID}}, nil
}

func TestOrderAudit(t *testing.T) {
	env := newTestEnv(t)
	audit := &fakeAudit{}
	env.gateway.deps.Audit = audit
	admin := env.token(t, primitive.NewObjectID(), true)
	id := primitive.NewObjectID()

	rec := env.do(t, http.MethodGet, "/api/v1/orders/"+id.Hex()+"/audit", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id.Hex(), audit.entity)
	assert.Equal(t, int64(defaultAuditLimit), audit.limit)
	assert.Contains(t, rec.Body.String(), `"action":"order.created"`)

	rec = env.do(t, http.MethodGet, "/api/v1/orders/"+id.Hex()+"/audit?limit=0", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrdersOfAnotherUserAreForbidden(t *testing.T) {
	env := newTestEnv(t)
	owner := primitive.NewObjectID()
	other := primitive.NewObjectID()
	id := primitive.NewObjectID()
	env.orders.views[id] = &orders.OrderView{ID: id, User: &models.UserRef{ID: owner, Name: "Ada"}}

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"owner", env.token(t, owner, false), http.StatusOK},
		{"other user", env.token(t, other, false), http.StatusForbidden},
		{"admin", env.token(t, other, true), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/v1/orders/"+id.Hex(), tt.token, nil)
			assert.Equal(t, tt.want, rec.Code, "get order")

			rec = env.do(t, http.MethodGet, "/api/v1/orders/user/"+owner.Hex(), tt.token, nil)
			assert.Equal(t, tt.want, rec.Code, "list user orders")

			rec = env.do(t, http.MethodGet, "/api/v1/orders/get/userorders/"+owner.Hex(), tt.token, nil)
			assert.Equal(t, tt.want, rec.Code, "list user orders alias")
		})
	}
}

func TestCountProducts(t *testing.T) {
	env := newTestEnv(t)
	env.products.products = []*models.Product{{Name: "a"}, {Name: "b"}, {Name: "c"}}

	rec := env.do(t, http.MethodGet, "/api/v1/products/get/count", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":3}`, rec.Body.String())
}

func TestCountUsers(t *testing.T) {
	env := newTestEnv(t)
	env.users.inserted = []*models.User{{Name: "a"}, {Name: "b"}}

	rec := env.do(t, http.MethodGet, "/api/v1/users/get/count", env.token(t, primitive.NewObjectID(), true), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":2}`, rec.Body.String())
}

func TestAPIDocs(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/api-docs/doc.json", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var doc struct {
		BasePath string                    `json:"basePath"`
		Paths    map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "/api/v1", doc.BasePath)
	assert.Contains(t, doc.Paths["/orders"], "post")
	assert.Contains(t, doc.Paths["/orders/{id}"], "delete")
	assert.Contains(t, doc.Paths["/orders/user/{userId}"], "get")
}

func TestShutdownBeforeStart(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.gateway.Shutdown(context.Background()))
	assert.NoError(t, env.gateway.Start())
}
