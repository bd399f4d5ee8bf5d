package gateway

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/example/eshop/pkg/models"
	"github.com/example/eshop/pkg/repository"
	"github.com/example/eshop/pkg/storage"
)

const (
	maxGalleryImages = 10
	maxCountInStock  = 255
)

type ProductStore interface {
	InsertProduct(ctx context.Context, product *models.Product) error
	FindProduct(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
	ListProducts(ctx context.Context, categories []primitive.ObjectID) ([]*models.Product, error)
	FeaturedProducts(ctx context.Context, limit int64) ([]*models.Product, error)
	CountProducts(ctx context.Context) (int64, error)
	UpdateProduct(ctx context.Context, id primitive.ObjectID, update repository.ProductUpdate) (*models.Product, error)
	DeleteProduct(ctx context.Context, id primitive.ObjectID) error
}

// listProducts godoc
// @Summary      List products
// @Tags         products
// @Produce      json
// @Param        categories  query  string  false  "Comma separated category IDs"
// @Success      200  {array}  models.ProductView
// @Failure      400  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /products [get]
func (g *Gateway) listProducts(c *gin.Context) {
	var categories []primitive.ObjectID
	if raw := c.Query("categories"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := parseObjectID(strings.TrimSpace(part), "category")
			if err != nil {
				g.respondError(c, err, "Invalid category filter")
				return
			}
			categories = append(categories, id)
		}
	}

	products, err := g.deps.Products.ListProducts(c.Request.Context(), categories)
	if err != nil {
		g.respondError(c, err, "Failed to list products")
		return
	}

	views, err := g.productViews(c.Request.Context(), products)
	if err != nil {
		g.respondError(c, err, "Failed to list products")
		return
	}
	c.JSON(http.StatusOK, views)
}

// getProduct godoc
// @Summary      Get a product
// @Tags         products
// @Produce      json
// @Param        id  path  string  true  "Product ID"
// @Success      200  {object}  models.ProductView
// @Failure      400  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /products/{id} [get]
func (g *Gateway) getProduct(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		g.respondError(c, err, "Invalid product id")
		return
	}

	product, err := g.deps.Products.FindProduct(c.Request.Context(), id)
	if err != nil {
		g.respondError(c, err, "Product not found")
		return
	}

	views, err := g.productViews(c.Request.Context(), []*models.Product{product})
	if err != nil {
		g.respondError(c, err, "Failed to get product")
		return
	}
	c.JSON(http.StatusOK, views[0])
}

// countProducts godoc
// @Summary      Count products
// @Tags         products
// @Produce      json
// @Success      200  {object}  countResponse
// @Failure      500  {object}  errorResponse
// @Router       /products/get/count [get]
func (g *Gateway) countProducts(c *gin.Context) {
	count, err := g.deps.Products.CountProducts(c.Request.Context())
	if err != nil {
		g.respondError(c, err, "Failed to count products")
		return
	}
	c.JSON(http.StatusOK, countResponse{Total: count})
}

// featuredProducts godoc
// @Summary      List featured products
// @Tags         products
// @Produce      json
// @Param        count  path  integer  true  "Maximum number of products"
// @Success      200  {array}  models.Product
// @Failure      400  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /products/get/featured/{count} [get]
func (g *Gateway) featuredProducts(c *gin.Context) {
	limit, err := strconv.ParseInt(c.Param("count"), 10, 64)
	if err != nil || limit < 0 {
		g.respondError(c, badRequest("invalid count %q", c.Param("count")), "Invalid count")
		return
	}

	products, err := g.deps.Products.FeaturedProducts(c.Request.Context(), limit)
	if err != nil {
		g.respondError(c, err, "Failed to list featured products")
		return
	}
	c.JSON(http.StatusOK, products)
}

// createProduct godoc
// @Summary      Create a product
// @Tags         products
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        image  formData  file  true  "Product image (png, jpeg)"
// @Param        name  formData  string  true  "Name"
// @Param        category  formData  string  true  "Category ID"
// @Param        description  formData  string  false  "Description"
// @Param        richDescription  formData  string  false  "Rich description"
// @Param        brand  formData  string  false  "Brand"
// @Param        price  formData  number  false  "Price"
// @Param        countInStock  formData  integer  false  "Stock, 0 to 255"
// @Param        rating  formData  number  false  "Rating"
// @Param        numReviews  formData  integer  false  "Number of reviews"
// @Param        isFeatured  formData  boolean  false  "Featured"
// @Success      201  {object}  models.Product
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /products [post]
func (g *Gateway) createProduct(c *gin.Context) {
	ctx := c.Request.Context()

	form, err := parseProductForm(c)
	if err != nil {
		g.respondError(c, err, "Invalid product")
		return
	}
	if form.Name == nil || strings.TrimSpace(*form.Name) == "" {
		g.respondError(c, badRequest("name is required"), "Invalid product")
		return
	}
	if form.Category == nil {
		g.respondError(c, badRequest("category is required"), "Invalid product")
		return
	}
	if err := g.checkCategory(ctx, *form.Category); err != nil {
		g.respondError(c, err, "Invalid category")
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		g.respondError(c, badRequest("no image in the request"), "Invalid product")
		return
	}
	image, err := g.saveUpload(c, file)
	if err != nil {
		g.respondError(c, err, "Failed to upload image")
		return
	}

	product := &models.Product{
		Name:            deref(form.Name),
		Description:     deref(form.Description),
		RichDescription: deref(form.RichDescription),
		Image:           image,
		Brand:           deref(form.Brand),
		Price:           deref(form.Price),
		Category:        *form.Category,
		CountInStock:    deref(form.CountInStock),
		Rating:          deref(form.Rating),
		NumReviews:      deref(form.NumReviews),
		IsFeatured:      deref(form.IsFeatured),
		DateCreated:     time.Now().UTC(),
	}
	if err := g.deps.Products.InsertProduct(ctx, product); err != nil {
		g.respondError(c, err, "The product cannot be created")
		return
	}
	c.JSON(http.StatusCreated, product)
}

// updateProduct godoc
// @Summary      Update a product
// @Tags         products
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Product ID"
// @Param        image  formData  file  false  "Replacement image"
// @Param        name  formData  string  false  "Name"
// @Param        category  formData  string  false  "Category ID"
// @Param        price  formData  number  false  "Price"
// @Param        countInStock  formData  integer  false  "Stock, 0 to 255"
// @Success      200  {object}  models.Product
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /products/{id} [put]
func (g *Gateway) updateProduct(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := paramID(c, "id")
	if err != nil {
		g.respondError(c, err, "Invalid product id")
		return
	}

	form, err := parseProductForm(c)
	if err != nil {
		g.respondError(c, err, "Invalid product")
		return
	}
	if form.Category != nil {
		if err := g.checkCategory(ctx, *form.Category); err != nil {
			g.respondError(c, err, "Invalid category")
			return
		}
	}

	if file, err := c.FormFile("image"); err == nil {
		image, err := g.saveUpload(c, file)
		if err != nil {
			g.respondError(c, err, "Failed to upload image")
			return
		}
		form.Image = &image
	}

	product, err := g.deps.Products.UpdateProduct(ctx, id, form)
	if err != nil {
		g.respondError(c, err, "The product cannot be updated")
		return
	}
	c.JSON(http.StatusOK, product)
}

// updateGalleryImages godoc
// @Summary      Replace the gallery images of a product
// @Tags         products
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Product ID"
// @Param        images  formData  file  true  "Up to 10 images"
// @Success      200  {object}  models.Product
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /products/gallery-images/{id} [put]
func (g *Gateway) updateGalleryImages(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		g.respondError(c, err, "Invalid product id")
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		g.respondError(c, badRequest("%v", err), "Invalid gallery upload")
		return
	}
	files := form.File["images"]
	if len(files) > maxGalleryImages {
		g.respondError(c, badRequest("at most %d images are allowed", maxGalleryImages), "Invalid gallery upload")
		return
	}

	paths := make([]string, 0, len(files))
	for _, file := range files {
		p, err := g.saveUpload(c, file)
		if err != nil {
			g.respondError(c, err, "Failed to upload image")
			return
		}
		paths = append(paths, p)
	}

	product, err := g.deps.Products.UpdateProduct(c.Request.Context(), id, repository.ProductUpdate{Images: paths})
	if err != nil {
		g.respondError(c, err, "The product cannot be updated")
		return
	}
	c.JSON(http.StatusOK, product)
}

// deleteProduct godoc
// @Summary      Delete a product
// @Tags         products
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Product ID"
// @Success      200  {object}  messageResponse
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /products/{id} [delete]
func (g *Gateway) deleteProduct(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		g.respondError(c, err, "Invalid product id")
		return
	}

	if err := g.deps.Products.DeleteProduct(c.Request.Context(), id); err != nil {
		g.respondError(c, err, "The product cannot be deleted")
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Product deleted"})
}

func (g *Gateway) checkCategory(ctx context.Context, id primitive.ObjectID) error {
	if _, err := g.deps.Categories.FindCategory(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return badRequest("category %s does not exist", id.Hex())
		}
		return err
	}
	return nil
}

// productViews expands the category of each product. Products whose category
// is gone get a nil category.
func (g *Gateway) productViews(ctx context.Context, products []*models.Product) ([]*models.ProductView, error) {
	ids := make([]primitive.ObjectID, 0, len(products))
	seen := make(map[primitive.ObjectID]bool, len(products))
	for _, p := range products {
		if !seen[p.Category] {
			seen[p.Category] = true
			ids = append(ids, p.Category)
		}
	}

	categories := map[primitive.ObjectID]*models.Category{}
	if len(ids) > 0 {
		found, err := g.deps.Categories.FindCategories(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, cat := range found {
			categories[cat.ID] = cat
		}
	}

	views := make([]*models.ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, &models.ProductView{Product: *p, Category: categories[p.Category]})
	}
	return views, nil
}

// saveUpload stores the file and turns server-relative locations into
// absolute URLs.
func (g *Gateway) saveUpload(c *gin.Context, file *multipart.FileHeader) (string, error) {
	if g.deps.Images == nil {
		return "", errors.New("image storage is not configured")
	}

	body, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer body.Close()

	location, err := g.deps.Images.Put(c.Request.Context(), storage.Upload{
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Size:        file.Size,
		Body:        body,
	})
	if err != nil {
		return "", err
	}

	if strings.HasPrefix(location, "/") {
		location = g.baseURL(c) + location
	}
	g.logger.Debug("Image stored", zap.String("location", location))
	return location, nil
}

func (g *Gateway) baseURL(c *gin.Context) string {
	if g.config.Gateway.PublicURL != "" {
		return strings.TrimSuffix(g.config.Gateway.PublicURL, "/")
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}

// parseProductForm reads the optional text fields of a product form. Absent
// fields stay nil.
func parseProductForm(c *gin.Context) (repository.ProductUpdate, error) {
	var u repository.ProductUpdate

	text := func(key string) *string {
		v, ok := c.GetPostForm(key)
		if !ok {
			return nil
		}
		return &v
	}
	u.Name = text("name")
	u.Description = text("description")
	u.RichDescription = text("richDescription")
	u.Brand = text("brand")

	if v := text("price"); v != nil {
		price, err := strconv.ParseFloat(*v, 64)
		if err != nil {
			return u, badRequest("invalid price %q", *v)
		}
		u.Price = &price
	}
	if v := text("rating"); v != nil {
		rating, err := strconv.ParseFloat(*v, 64)
		if err != nil {
			return u, badRequest("invalid rating %q", *v)
		}
		u.Rating = &rating
	}
	if v := text("countInStock"); v != nil {
		n, err := strconv.Atoi(*v)
		if err != nil || n < 0 || n > maxCountInStock {
			return u, badRequest("countInStock must be between 0 and %d", maxCountInStock)
		}
		u.CountInStock = &n
	}
	if v := text("numReviews"); v != nil {
		n, err := strconv.Atoi(*v)
		if err != nil || n < 0 {
			return u, badRequest("invalid numReviews %q", *v)
		}
		u.NumReviews = &n
	}
	if v := text("isFeatured"); v != nil {
		featured, err := strconv.ParseBool(*v)
		if err != nil {
			return u, badRequest("invalid isFeatured %q", *v)
		}
		u.IsFeatured = &featured
	}
	if v := text("category"); v != nil {
		id, err := parseObjectID(*v, "category")
		if err != nil {
			return u, err
		}
		u.Category = &id
	}
	return u, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
