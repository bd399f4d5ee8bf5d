package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/example/eshop/pkg/auth"
	"github.com/example/eshop/pkg/models"
	"github.com/example/eshop/pkg/repository"
)

type UserStore interface {
	InsertUser(ctx context.Context, user *models.User) error
	FindUser(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	CountUsers(ctx context.Context) (int64, error)
	DeleteUser(ctx context.Context, id primitive.ObjectID) error
}

// UserCache drops cached display names when a user goes away.
type UserCache interface {
	InvalidateUserRef(ctx context.Context, id primitive.ObjectID) error
}

type userRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Phone     string `json:"phone"`
	IsAdmin   bool   `json:"isAdmin"`
	Street    string `json:"street"`
	Apartment string `json:"apartment"`
	Zip       string `json:"zip"`
	City      string `json:"city"`
	Country   string `json:"country"`
}

func (r userRequest) user() (*models.User, error) {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return nil, badRequest("name is required")
	case strings.TrimSpace(r.Email) == "":
		return nil, badRequest("email is required")
	case r.Password == "":
		return nil, badRequest("password is required")
	}

	hash, err := auth.HashPassword(r.Password)
	if err != nil {
		return nil, err
	}
	return &models.User{
		Name:         r.Name,
		Email:        strings.ToLower(strings.TrimSpace(r.Email)),
		PasswordHash: hash,
		Phone:        r.Phone,
		IsAdmin:      r.IsAdmin,
		Street:       r.Street,
		Apartment:    r.Apartment,
		Zip:          r.Zip,
		City:         r.City,
		Country:      r.Country,
	}, nil
}

// createUser godoc
// @Summary      Create a user
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        user  body  userRequest  true  "User"
// @Success      201  {object}  models.User
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /users [post]
func (g *Gateway) createUser(c *gin.Context) {
	g.insertUser(c, true)
}

// register is the public sign-up; it never grants admin rights.
//
// @Summary      Register a customer account
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        user  body  userRequest  true  "User"
// @Success      201  {object}  models.User
// @Failure      400  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /users/register [post]
func (g *Gateway) register(c *gin.Context) {
	g.insertUser(c, false)
}

func (g *Gateway) insertUser(c *gin.Context, allowAdmin bool) {
	var body userRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		g.respondError(c, badRequest("%v", err), "Invalid user")
		return
	}
	if !allowAdmin {
		body.IsAdmin = false
	}

	user, err := body.user()
	if err != nil {
		g.respondError(c, err, "Invalid user")
		return
	}
	if err := g.deps.Users.InsertUser(c.Request.Context(), user); err != nil {
		g.respondError(c, err, "The user cannot be created")
		return
	}
	c.JSON(http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message string `json:"message"`
	User    string `json:"user"`
	Token   string `json:"token"`
}

// login godoc
// @Summary      Log in and receive a token
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        credentials  body  loginRequest  true  "Email and password"
// @Success      200  {object}  loginResponse
// @Failure      400  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /users/login [post]
func (g *Gateway) login(c *gin.Context) {
	var body loginRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		g.respondError(c, badRequest("%v", err), "Invalid login")
		return
	}

	email := strings.ToLower(strings.TrimSpace(body.Email))
	user, err := g.deps.Users.FindUserByEmail(c.Request.Context(), email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, messageResponse{Message: "User not found"})
			return
		}
		g.respondError(c, err, "Login failed")
		return
	}

	if !auth.CheckPassword(user.PasswordHash, body.Password) {
		c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid password"})
		return
	}

	token, err := g.deps.Tokens.Issue(user.ID.Hex(), user.IsAdmin)
	if err != nil {
		g.respondError(c, err, "Login failed")
		return
	}

	g.logger.Info("User logged in", zap.String("user_id", user.ID.Hex()))
	c.JSON(http.StatusOK, loginResponse{Message: "Login successful", User: user.Email, Token: token})
}

// listUsers godoc
// @Summary      List users
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}  models.User
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /users [get]
func (g *Gateway) listUsers(c *gin.Context) {
	users, err := g.deps.Users.ListUsers(c.Request.Context())
	if err != nil {
		g.respondError(c, err, "Failed to list users")
		return
	}
	c.JSON(http.StatusOK, users)
}

// getUser lets admins read any user and everyone else only themselves.
//
// @Summary      Get a user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  models.User
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /users/{id} [get]
func (g *Gateway) getUser(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		g.respondError(c, err, "Invalid user id")
		return
	}

	if !g.canAccess(c, id) {
		forbidden(c)
		return
	}

	user, err := g.deps.Users.FindUser(c.Request.Context(), id)
	if err != nil {
		g.respondError(c, err, "The user with the given ID was not found")
		return
	}
	c.JSON(http.StatusOK, user)
}

// countUsers godoc
// @Summary      Count users
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  countResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /users/get/count [get]
func (g *Gateway) countUsers(c *gin.Context) {
	count, err := g.deps.Users.CountUsers(c.Request.Context())
	if err != nil {
		g.respondError(c, err, "Failed to count users")
		return
	}
	c.JSON(http.StatusOK, countResponse{Total: count})
}

// deleteUser godoc
// @Summary      Delete a user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  messageResponse
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /users/{id} [delete]
func (g *Gateway) deleteUser(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		g.respondError(c, err, "Invalid user id")
		return
	}

	if err := g.deps.Users.DeleteUser(c.Request.Context(), id); err != nil {
		g.respondError(c, err, "The user cannot be deleted")
		return
	}
	if g.deps.UserCache != nil {
		if err := g.deps.UserCache.InvalidateUserRef(c.Request.Context(), id); err != nil {
			g.logger.Warn("Failed to invalidate cached user", zap.String("user_id", id.Hex()), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, messageResponse{Message: "User deleted"})
}
