package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/example/eshop/pkg/orders"
	"github.com/example/eshop/pkg/repository"
	"github.com/example/eshop/pkg/storage"
)

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type countResponse struct {
	Total int64 `json:"total"`
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, orders.ErrValidation),
		errors.Is(err, storage.ErrInvalidImageType):
		return http.StatusBadRequest
	case errors.Is(err, orders.ErrCreationFailed):
		return http.StatusInternalServerError
	case errors.Is(err, orders.ErrNotFound),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrDuplicateEmail):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"message", "error"} with a status derived from err. The
// cause is always included.
func (g *Gateway) respondError(c *gin.Context, err error, message string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		g.logger.Error(message, zap.Error(err), zap.String("request_id", c.GetString("request_id")))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorResponse{Message: message, Error: err.Error()})
}

func parseObjectID(value, field string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(value)
	if err != nil {
		return primitive.NilObjectID, badRequest("invalid %s %q", field, value)
	}
	return id, nil
}

func paramID(c *gin.Context, name string) (primitive.ObjectID, error) {
	return parseObjectID(c.Param(name), name)
}
