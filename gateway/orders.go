package gateway

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/example/eshop/pkg/models"
	"github.com/example/eshop/pkg/orders"
	"github.com/example/eshop/pkg/pricing"
	"github.com/example/eshop/pkg/repository"
)

// OrderService is the order aggregate as seen by the HTTP layer.
type OrderService interface {
	Create(ctx context.Context, req orders.CreateRequest) (*models.Order, error)
	Get(ctx context.Context, id primitive.ObjectID) (*orders.OrderView, error)
	List(ctx context.Context) ([]*orders.OrderView, error)
	ListByUser(ctx context.Context, user primitive.ObjectID) ([]*orders.OrderView, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status string) (*models.Order, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type orderLineRequest struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
}

type createOrderRequest struct {
	OrderItems       []orderLineRequest `json:"orderItems"`
	ShippingAddress1 string             `json:"shippingAddress1"`
	ShippingAddress2 string             `json:"shippingAddress2"`
	City             string             `json:"city"`
	Zip              string             `json:"zip"`
	Country          string             `json:"country"`
	Phone            string             `json:"phone"`
	Status           string             `json:"status"`
	User             string             `json:"user"`
	Discount         *pricing.Discount  `json:"discount"`
}

// toCreateRequest falls back to the caller's own id when no user is named.
func (r createOrderRequest) toCreateRequest(claimsUser string) (orders.CreateRequest, error) {
	req := orders.CreateRequest{
		Lines:            make([]orders.Line, 0, len(r.OrderItems)),
		ShippingAddress1: r.ShippingAddress1,
		ShippingAddress2: r.ShippingAddress2,
		City:             r.City,
		Zip:              r.Zip,
		Country:          r.Country,
		Phone:            r.Phone,
		Status:           r.Status,
		Discount:         r.Discount,
	}

	for _, item := range r.OrderItems {
		product, err := parseObjectID(item.Product, "product")
		if err != nil {
			return req, err
		}
		req.Lines = append(req.Lines, orders.Line{Product: product, Quantity: item.Quantity})
	}

	user := r.User
	if user == "" {
		user = claimsUser
	}
	if user != "" {
		id, err := parseObjectID(user, "user")
		if err != nil {
			return req, err
		}
		req.User = id
	}
	return req, nil
}

// createOrder godoc
// @Summary      Place an order
// @Tags         orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        order  body  createOrderRequest  true  "Order to place"
// @Success      201  {object}  models.Order
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /orders [post]
func (g *Gateway) createOrder(c *gin.Context) {
	var body createOrderRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		g.respondError(c, badRequest("%v", err), "Invalid order")
		return
	}

	var claimsUser string
	if claims := claimsFrom(c); claims != nil {
		claimsUser = claims.UserID
	}

	req, err := body.toCreateRequest(claimsUser)
	if err != nil {
		g.respondError(c, err, "Invalid order")
		return
	}

	order, err := g.deps.Orders.Create(c.Request.Context(), req)
	if err != nil {
		g.respondError(c, err, "The order cannot be created")
		return
	}

	if g.deps.Metrics != nil {
		g.deps.Metrics.OrdersCreated.Inc()
	}
	c.JSON(http.StatusCreated, order)
}

// listOrders godoc
// @Summary      List all orders, newest first
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}  orders.OrderView
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /orders [get]
func (g *Gateway) listOrders(c *gin.Context) {
	list, err := g.deps.Orders.List(c.Request.Context())
	if err != nil {
		g.respondError(c, err, "Failed to list orders")
		return
	}
	c.JSON(http.StatusOK, list)
}

// getOrder godoc
// @Summary      Get one order with items, products and categories expanded
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Order ID"
// @Success      200  {object}  orders.OrderView
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /orders/{id} [get]
func (g *Gateway) getOrder(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		g.respondError(c, err, "Invalid order id")
		return
	}

	view, err := g.deps.Orders.Get(c.Request.Context(), id)
	if err != nil {
		g.respondError(c, err, "Failed to get order")
		return
	}
	var owner primitive.ObjectID
	if view.User != nil {
		owner = view.User.ID
	}
	if !g.canAccess(c, owner) {
		forbidden(c)
		return
	}
	c.JSON(http.StatusOK, view)
}

// listUserOrders godoc
// @Summary      List a user's orders, newest first
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        userId  path  string  true  "User ID"
// @Success      200  {array}  orders.OrderView
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /orders/user/{userId} [get]
// @Router       /orders/get/userorders/{userId} [get]
func (g *Gateway) listUserOrders(c *gin.Context) {
	user, err := paramID(c, "userId")
	if err != nil {
		g.respondError(c, err, "Invalid user id")
		return
	}
	if !g.canAccess(c, user) {
		forbidden(c)
		return
	}

	list, err := g.deps.Orders.ListByUser(c.Request.Context(), user)
	if err != nil {
		g.respondError(c, err, "Failed to list user orders")
		return
	}
	c.JSON(http.StatusOK, list)
}

type statusRequest struct {
	Status string `json:"status"`
}

// updateOrderStatus godoc
// @Summary      Update the status of an order
// @Tags         orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Order ID"
// @Param        status  body  statusRequest  true  "New status"
// @Success      200  {object}  models.Order
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /orders/{id} [put]
func (g *Gateway) updateOrderStatus(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		g.respondError(c, err, "Invalid order id")
		return
	}

	var body statusRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		g.respondError(c, badRequest("%v", err), "Invalid status update")
		return
	}

	order, err := g.deps.Orders.UpdateStatus(c.Request.Context(), id, body.Status)
	if err != nil {
		g.respondError(c, err, "The order cannot be updated")
		return
	}
	c.JSON(http.StatusOK, order)
}

// deleteOrder godoc
// @Summary      Delete an order and its items
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Order ID"
// @Success      200  {object}  messageResponse
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /orders/{id} [delete]
func (g *Gateway) deleteOrder(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		g.respondError(c, err, "Invalid order id")
		return
	}

	if err := g.deps.Orders.Delete(c.Request.Context(), id); err != nil {
		g.respondError(c, err, "The order cannot be deleted")
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Order deleted"})
}

const defaultAuditLimit = 50

// AuditReader returns the recorded history of an entity, newest first.
type AuditReader interface {
	GetAuditLogs(ctx context.Context, entityID string, limit int64) ([]*repository.AuditLog, error)
}

// orderAudit godoc
// @Summary      Audit history of an order, newest first
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Order ID"
// @Param        limit  query  integer  false  "Maximum entries (default 50)"
// @Success      200  {array}  repository.AuditLog
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /orders/{id}/audit [get]
func (g *Gateway) orderAudit(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		g.respondError(c, err, "Invalid order id")
		return
	}
	if g.deps.Audit == nil {
		c.JSON(http.StatusOK, []*repository.AuditLog{})
		return
	}

	limit := int64(defaultAuditLimit)
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || limit < 1 {
			g.respondError(c, badRequest("invalid limit %q", raw), "Invalid limit")
			return
		}
	}

	logs, err := g.deps.Audit.GetAuditLogs(c.Request.Context(), id.Hex(), limit)
	if err != nil {
		g.respondError(c, err, "Failed to read order history")
		return
	}
	if logs == nil {
		logs = []*repository.AuditLog{}
	}
	c.JSON(http.StatusOK, logs)
}
