package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/example/eshop/pkg/events"
	"github.com/example/eshop/pkg/models"
	"github.com/example/eshop/pkg/pricing"
)

type fixture struct {
	store    *memStore
	manager  *Manager
	pub      *recordingPublisher
	audit    *recordingAudit
	user     *models.User
	category *models.Category
	productA *models.Product
	productB *models.Product
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store: newMemStore(),
		pub:   &recordingPublisher{},
		audit: &recordingAudit{},
		clock: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}
	f.user = f.store.addUser("Ada")
	f.category = f.store.addCategory("Shoes")
	f.productA = f.store.addProduct("Runner", 10, f.category.ID)
	f.productB = f.store.addProduct("Boot", 2.5, f.category.ID)

	f.manager = NewManager(f.store, zap.NewNop(),
		WithPublisher(f.pub),
		WithAuditLogger(f.audit),
		WithClock(func() time.Time {
			f.clock = f.clock.Add(time.Minute)
			return f.clock
		}),
	)
	return f
}

func (f *fixture) request(lines ...Line) CreateRequest {
	return CreateRequest{
		Lines:            lines,
		ShippingAddress1: "1 Main St",
		City:             "Springfield",
		Zip:              "12345",
		Country:          "US",
		Phone:            "555-0100",
		User:             f.user.ID,
	}
}

func TestManager_Create_TotalFromCatalogPrices(t *testing.T) {
	f := newFixture(t)

	order, err := f.manager.Create(context.Background(), f.request(Line{Product: f.productA.ID, Quantity: 2}))
	require.NoError(t, err)

	assert.Equal(t, 20.0, order.TotalPrice)
	assert.Equal(t, models.DefaultOrderStatus, order.Status)
	assert.Equal(t, f.user.ID, order.User)
	require.Len(t, order.OrderItems, 1)
	assert.False(t, order.ID.IsZero())
	assert.Equal(t, 1, f.store.orderCount())
	assert.Equal(t, 1, f.store.itemCount())
	assert.Equal(t, []string{events.OrderCreated}, f.pub.types())
	assert.Eventually(t, func() bool {
		return len(f.audit.actions()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestManager_Create_Discounts(t *testing.T) {
	tests := []struct {
		name     string
		discount *pricing.Discount
		want     float64
	}{
		{name: "none", discount: nil, want: 25},
		{name: "fixed", discount: &pricing.Discount{Type: pricing.DiscountFixed, Value: 5}, want: 20},
		{name: "percentage", discount: &pricing.Discount{Type: pricing.DiscountPercentage, Value: 20}, want: 20},
		{name: "unknown type", discount: &pricing.Discount{Type: "bogus", Value: 5}, want: 25},
		{name: "fixed above total", discount: &pricing.Discount{Type: pricing.DiscountFixed, Value: 40}, want: -15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := f.request(
				Line{Product: f.productA.ID, Quantity: 2},
				Line{Product: f.productB.ID, Quantity: 2},
			)
			req.Discount = tt.discount

			order, err := f.manager.Create(context.Background(), req)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, order.TotalPrice, 1e-9)
		})
	}
}

func TestManager_Create_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(*CreateRequest)
	}{
		{name: "no lines", mutate: func(r *CreateRequest) { r.Lines = nil }},
		{name: "zero quantity", mutate: func(r *CreateRequest) { r.Lines[0].Quantity = 0 }},
		{name: "missing product", mutate: func(r *CreateRequest) { r.Lines[0].Product = primitive.NilObjectID }},
		{name: "missing user", mutate: func(r *CreateRequest) { r.User = primitive.NilObjectID }},
		{name: "missing city", mutate: func(r *CreateRequest) { r.City = " " }},
		{name: "missing phone", mutate: func(r *CreateRequest) { r.Phone = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request(Line{Product: f.productA.ID, Quantity: 1})
			tt.mutate(&req)

			order, err := f.manager.Create(context.Background(), req)
			require.Error(t, err)
			assert.Nil(t, order)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	assert.Zero(t, f.store.insertOrderItemCalls)
	assert.Zero(t, f.store.orderCount())
}

func TestManager_Create_UnknownProductPersistsNothing(t *testing.T) {
	f := newFixture(t)
	missing := primitive.NewObjectID()

	order, err := f.manager.Create(context.Background(), f.request(
		Line{Product: f.productA.ID, Quantity: 1},
		Line{Product: missing, Quantity: 3},
	))
	require.Error(t, err)
	assert.Nil(t, order)

	assert.ErrorIs(t, err, ErrCreationFailed)
	assert.ErrorIs(t, err, ErrNotFound)
	var lineErr *LineError
	require.True(t, errors.As(err, &lineErr))
	assert.Equal(t, 1, lineErr.Line)
	assert.Equal(t, missing, lineErr.Product)
	assert.Contains(t, err.Error(), missing.Hex())

	assert.Zero(t, f.store.orderCount())
	assert.Zero(t, f.store.itemCount())
	assert.Empty(t, f.pub.types())
}

func TestManager_Create_OrderInsertFailureRemovesItems(t *testing.T) {
	f := newFixture(t)
	f.store.failInsertOrder = errBoom

	_, err := f.manager.Create(context.Background(), f.request(Line{Product: f.productA.ID, Quantity: 1}))
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrCreationFailed)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, errBoom)
	assert.Zero(t, f.store.itemCount())
}

func TestManager_Create_PublishFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errBoom

	order, err := f.manager.Create(context.Background(), f.request(Line{Product: f.productA.ID, Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, 10.0, order.TotalPrice)
}

func TestManager_Get(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, f.request(
		Line{Product: f.productA.ID, Quantity: 2},
		Line{Product: f.productB.ID, Quantity: 1},
	))
	require.NoError(t, err)

	view, err := f.manager.Get(ctx, created.ID)
	require.NoError(t, err)

	require.NotNil(t, view.User)
	assert.Equal(t, "Ada", view.User.Name)
	require.Len(t, view.OrderItems, 2)
	for i, item := range view.OrderItems {
		assert.Equal(t, created.OrderItems[i], item.ID)
		require.NotNil(t, item.Product)
		require.NotNil(t, item.Product.Category)
		assert.Equal(t, "Shoes", item.Product.Category.Name)
	}
	assert.Equal(t, 2, view.OrderItems[0].Quantity)
	assert.Equal(t, "Runner", view.OrderItems[0].Product.Name)
	assert.Equal(t, "Boot", view.OrderItems[1].Product.Name)
}

func TestManager_Get_NotFound(t *testing.T) {
	f := newFixture(t)

	view, err := f.manager.Get(context.Background(), primitive.NewObjectID())
	assert.Nil(t, view)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_ListAndListByUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := f.store.addUser("Grace")

	first, err := f.manager.Create(ctx, f.request(Line{Product: f.productA.ID, Quantity: 1}))
	require.NoError(t, err)
	otherReq := f.request(Line{Product: f.productB.ID, Quantity: 1})
	otherReq.User = other.ID
	_, err = f.manager.Create(ctx, otherReq)
	require.NoError(t, err)
	last, err := f.manager.Create(ctx, f.request(Line{Product: f.productB.ID, Quantity: 4}))
	require.NoError(t, err)

	all, err := f.manager.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, last.ID, all[0].ID)
	assert.Equal(t, first.ID, all[2].ID)
	for _, v := range all {
		require.NotNil(t, v.User)
		for _, item := range v.OrderItems {
			assert.Nil(t, item.Product, "list does not expand items")
		}
	}

	mine, err := f.manager.ListByUser(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, last.ID, mine[0].ID)
	assert.Equal(t, first.ID, mine[1].ID)
	for _, v := range mine {
		assert.Equal(t, f.user.ID, v.User.ID)
		require.NotNil(t, v.OrderItems[0].Product)
	}

	none, err := f.manager.ListByUser(ctx, primitive.NewObjectID())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestManager_UpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, f.request(Line{Product: f.productA.ID, Quantity: 1}))
	require.NoError(t, err)

	updated, err := f.manager.UpdateStatus(ctx, created.ID, "Shipped")
	require.NoError(t, err)
	assert.Equal(t, "Shipped", updated.Status)
	assert.Equal(t, created.TotalPrice, updated.TotalPrice)

	_, err = f.manager.UpdateStatus(ctx, primitive.NewObjectID(), "Shipped")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.manager.UpdateStatus(ctx, created.ID, "")
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, []string{events.OrderCreated, events.OrderStatusUpdated}, f.pub.types())
}

func TestManager_Delete_CascadesItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, f.request(
		Line{Product: f.productA.ID, Quantity: 1},
		Line{Product: f.productB.ID, Quantity: 2},
	))
	require.NoError(t, err)
	require.Equal(t, 2, f.store.itemCount())

	require.NoError(t, f.manager.Delete(ctx, created.ID))

	left, err := f.store.FindOrderItems(ctx, created.OrderItems)
	require.NoError(t, err)
	assert.Empty(t, left)
	_, err = f.manager.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, f.pub.types(), events.OrderDeleted)
}

func TestManager_Delete_NotFound(t *testing.T) {
	f := newFixture(t)

	err := f.manager.Delete(context.Background(), primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, f.store.deleteItemsCalls)
}

func TestManager_Delete_ItemFailureKeepsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, f.request(Line{Product: f.productA.ID, Quantity: 1}))
	require.NoError(t, err)
	f.store.failDeleteItems = errBoom

	err = f.manager.Delete(ctx, created.ID)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, 1, f.store.orderCount())
}

func TestManager_Delete_OrderFailureAfterItemsRemoved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, f.request(Line{Product: f.productA.ID, Quantity: 1}))
	require.NoError(t, err)
	f.store.failDeleteOrder = errBoom

	err = f.manager.Delete(ctx, created.ID)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Zero(t, f.store.itemCount())
	assert.Equal(t, 1, f.store.orderCount())
}

func TestManager_DrainWaitsForAuditWrites(t *testing.T) {
	f := newFixture(t)
	f.audit.release = make(chan struct{})

	_, err := f.manager.Create(context.Background(), f.request(Line{Product: f.productA.ID, Quantity: 1}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.manager.Drain(ctx), context.DeadlineExceeded)
	assert.Empty(t, f.audit.actions())

	close(f.audit.release)
	require.NoError(t, f.manager.Drain(context.Background()))
	assert.Equal(t, []string{events.OrderCreated}, f.audit.actions())
}

func TestManager_AuditSurvivesCancelledRequest(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := f.manager.Create(ctx, f.request(Line{Product: f.productA.ID, Quantity: 1}))
	require.NoError(t, err)
	cancel()

	require.NoError(t, f.manager.Drain(context.Background()))
	assert.Equal(t, []string{events.OrderCreated}, f.audit.actions())
}
