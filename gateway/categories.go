package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/example/eshop/pkg/models"
)

type CategoryStore interface {
	InsertCategory(ctx context.Context, category *models.Category) error
	FindCategory(ctx context.Context, id primitive.ObjectID) (*models.Category, error)
	FindCategories(ctx context.Context, ids []primitive.ObjectID) ([]*models.Category, error)
	ListCategories(ctx context.Context) ([]*models.Category, error)
	UpdateCategory(ctx context.Context, category *models.Category) (*models.Category, error)
	DeleteCategory(ctx context.Context, id primitive.ObjectID) error
}

type categoryRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
	Image string `json:"image"`
}

func (r categoryRequest) category() (*models.Category, error) {
	if strings.TrimSpace(r.Name) == "" {
		return nil, badRequest("name is required")
	}
	return &models.Category{
		Name:  r.Name,
		Color: r.Color,
		Icon:  r.Icon,
		Image: r.Image,
	}, nil
}

// listCategories godoc
// @Summary      List categories
// @Tags         categories
// @Produce      json
// @Success      200  {array}  models.Category
// @Failure      500  {object}  errorResponse
// @Router       /categories [get]
func (g *Gateway) listCategories(c *gin.Context) {
	list, err := g.deps.Categories.ListCategories(c.Request.Context())
	if err != nil {
		g.respondError(c, err, "Failed to list categories")
		return
	}
	c.JSON(http.StatusOK, list)
}

// getCategory godoc
// @Summary      Get a category
// @Tags         categories
// @Produce      json
// @Param        id  path  string  true  "Category ID"
// @Success      200  {object}  models.Category
// @Failure      400  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /categories/{id} [get]
func (g *Gateway) getCategory(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		g.respondError(c, err, "Invalid category id")
		return
	}

	category, err := g.deps.Categories.FindCategory(c.Request.Context(), id)
	if err != nil {
		g.respondError(c, err, "The category with the given ID was not found")
		return
	}
	c.JSON(http.StatusOK, category)
}

// createCategory godoc
// @Summary      Create a category
// @Tags         categories
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        category  body  categoryRequest  true  "Category"
// @Success      201  {object}  models.Category
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /categories [post]
func (g *Gateway) createCategory(c *gin.Context) {
	var body categoryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		g.respondError(c, badRequest("%v", err), "Invalid category")
		return
	}
	category, err := body.category()
	if err != nil {
		g.respondError(c, err, "Invalid category")
		return
	}

	if err := g.deps.Categories.InsertCategory(c.Request.Context(), category); err != nil {
		g.respondError(c, err, "The category cannot be created")
		return
	}
	c.JSON(http.StatusCreated, category)
}

// updateCategory godoc
// @Summary      Update a category
// @Tags         categories
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Category ID"
// @Param        category  body  categoryRequest  true  "Category"
// @Success      200  {object}  models.Category
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /categories/{id} [put]
func (g *Gateway) updateCategory(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		g.respondError(c, err, "Invalid category id")
		return
	}

	var body categoryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		g.respondError(c, badRequest("%v", err), "Invalid category")
		return
	}
	category, err := body.category()
	if err != nil {
		g.respondError(c, err, "Invalid category")
		return
	}
	category.ID = id

	updated, err := g.deps.Categories.UpdateCategory(c.Request.Context(), category)
	if err != nil {
		g.respondError(c, err, "The category cannot be updated")
		return
	}
	c.JSON(http.StatusOK, updated)
}

// deleteCategory godoc
// @Summary      Delete a category
// @Tags         categories
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Category ID"
// @Success      200  {object}  messageResponse
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /categories/{id} [delete]
func (g *Gateway) deleteCategory(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		g.respondError(c, err, "Invalid category id")
		return
	}

	if err := g.deps.Categories.DeleteCategory(c.Request.Context(), id); err != nil {
		g.respondError(c, err, "The category cannot be deleted")
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Category deleted"})
}
