package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/dllu1/go-chatroom/internal/domain"
	"github.com/dllu1/go-chatroom/internal/registry"
	"github.com/dllu1/go-chatroom/internal/repository"
	"github.com/dllu1/go-chatroom/internal/service"
	"github.com/dllu1/go-chatroom/pkg/log"
	"github.com/dllu1/go-chatroom/pkg/response"
)

// Handler handles the HTTP side: registration, login, and health.
type Handler struct {
	userService service.UserService
	registry    *registry.Registry
	db          *gorm.DB
}

// NewHandler creates a new HTTP handler.
func NewHandler(userService service.UserService, reg *registry.Registry, db *gorm.DB) *Handler {
	return &Handler{
		userService: userService,
		registry:    reg,
		db:          db,
	}
}

// RegisterRoutes registers all HTTP routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
	r.GET("/health", h.Health)
}

// Register handles user registration.
func (h *Handler) Register(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid register request")
		response.BadRequest(c, "Username and password are required")
		return
	}

	result, err := h.userService.Register(ctx, &req)
	if err != nil {
		if errors.Is(err, repository.ErrUsernameExists) {
			response.Conflict(c, "Username already exists")
			return
		}
		l.Error().Err(err).Msg("register failed")
		response.InternalError(c, "Failed to register user")
		return
	}

	response.Created(c, result)
}

// Login handles user login.
func (h *Handler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid login request")
		response.BadRequest(c, "Username and password are required")
		return
	}

	result, err := h.userService.Login(ctx, &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Unauthorized(c, "Invalid username or password")
			return
		}
		l.Error().Err(err).Msg("login failed")
		response.InternalError(c, "Failed to login")
		return
	}

	response.Success(c, result)
}

// Health reports store connectivity and the current online-user count.
func (h *Handler) Health(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		response.ServiceUnavailable(c, "database unreachable")
		return
	}

	response.Success(c, gin.H{
		"status":       "ok",
		"online_users": h.registry.Count(),
	})
}
