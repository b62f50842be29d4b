// Package handlers exposes reminders, partnerships and sweep administration over HTTP.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"learnbot/internal/auth"
	"learnbot/internal/config"
	"learnbot/internal/schedule"
	"learnbot/internal/services"
	"learnbot/internal/store"
	"learnbot/internal/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SweepRunner runs one due-reminder pass on demand
type SweepRunner interface {
	Run(ctx context.Context) (services.Report, error)
}

// Handler holds the collaborators every route needs
type Handler struct {
	reminders    *store.Reminders
	partnerships *store.Partnerships
	prefs        *store.Preferences
	sweep        SweepRunner
	policy       *schedule.Policy
	log          *zap.SugaredLogger
}

// New creates the API handler
func New(reminders *store.Reminders, partnerships *store.Partnerships, prefs *store.Preferences,
	sweep SweepRunner, policy *schedule.Policy, log *zap.SugaredLogger) *Handler {
	return &Handler{
		reminders:    reminders,
		partnerships: partnerships,
		prefs:        prefs,
		sweep:        sweep,
		policy:       policy,
		log:          log.With("component", "api"),
	}
}

// NewRouter builds the gin engine with logging, CORS and all routes
func NewRouter(cfg config.APIConfig, h *Handler, tokens *auth.TokenService, log *zap.SugaredLogger) (*gin.Engine, error) {
	router := gin.New()
	router.Use(gin.Recovery(), utils.RequestLogger(log.With("component", "http")))

	// Configure trusted proxies
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
			AllowHeaders:     []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	h.RegisterRoutes(router, tokens)
	return router, nil
}

// RegisterRoutes mounts every route on r
func (h *Handler) RegisterRoutes(r gin.IRouter, tokens *auth.TokenService) {
	r.GET("/health", HealthHandler)

	// Protected routes (auth required)
	api := r.Group("")
	api.Use(auth.AuthMiddleware(tokens))
	{
		api.GET("/me/honorific", h.GetHonorific)
		api.PUT("/me/honorific", h.SetHonorific)

		api.POST("/archives/:id/unarchive", h.UnarchiveReminder)

		server := api.Group("/servers/:server_id")
		server.POST("/reminders", h.CreateReminder)
		server.GET("/reminders", h.ListReminders)
		server.GET("/reminders/item", h.ViewReminder)
		server.PATCH("/reminders/rename", h.RenameReminder)
		server.PATCH("/reminders/frequency", h.ChangeFrequency)
		server.DELETE("/reminders", h.DeleteReminder)
		server.POST("/reminders/archive", h.ArchiveReminder)
		server.GET("/archives", h.ListArchives)
		server.GET("/stats", h.GetStats)

		server.POST("/partnerships", h.InvitePartner)
		server.POST("/partnerships/accept", h.AcceptInvite)
		server.POST("/partnerships/decline", h.DeclineInvite)
		server.DELETE("/partnerships", h.LeavePartnership)
		server.GET("/partnerships/partner", h.GetPartner)

		admin := api.Group("/admin")
		admin.Use(auth.RequireAdmin())
		admin.POST("/sweep", h.TriggerSweep)
		admin.POST("/partnerships/expire", h.ExpireInvites)
	}
}

// HealthHandler is a simple health check endpoint
func HealthHandler(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// handleError provides a consistent way to handle and log errors
func (h *Handler) handleError(c *gin.Context, status int, message string, err error) {
	if status >= http.StatusInternalServerError {
		h.log.Errorw(message, "path", c.FullPath(), "err", err)
	} else {
		h.log.Debugw(message, "path", c.FullPath(), "err", err)
	}
	c.JSON(status, gin.H{"error": message})
}

// handleStoreError maps store and schedule errors onto HTTP statuses
func (h *Handler) handleStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.handleError(c, http.StatusNotFound, "Not found", err)
	case errors.Is(err, store.ErrNoPendingInvite):
		h.handleError(c, http.StatusNotFound, store.ErrNoPendingInvite.Error(), err)
	case errors.Is(err, store.ErrDuplicate):
		h.handleError(c, http.StatusConflict, "Already exists", err)
	case errors.Is(err, store.ErrAlreadyPartnered):
		h.handleError(c, http.StatusConflict, store.ErrAlreadyPartnered.Error(), err)
	case errors.Is(err, store.ErrInvitePending):
		h.handleError(c, http.StatusConflict, store.ErrInvitePending.Error(), err)
	case errors.Is(err, store.ErrSelfPartner):
		h.handleError(c, http.StatusBadRequest, store.ErrSelfPartner.Error(), err)
	case errors.Is(err, schedule.ErrInvalidFrequency):
		h.handleError(c, http.StatusBadRequest, "Invalid frequency", err)
	case errors.Is(err, store.ErrInvalidInput):
		h.handleError(c, http.StatusBadRequest, "Invalid input", err)
	case errors.Is(err, store.ErrStoreUnavailable):
		h.handleError(c, http.StatusServiceUnavailable, "Storage temporarily unavailable", err)
	default:
		h.handleError(c, http.StatusInternalServerError, "Internal error", err)
	}
}

// bindJSON binds the request body and answers 400 on failure
func (h *Handler) bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.handleError(c, http.StatusBadRequest, fmt.Sprintf("Invalid input: %s", err.Error()), err)
		return false
	}
	return true
}
