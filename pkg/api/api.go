// Package api exposes the mentorship services over HTTP with gin. Every route under /api except
// login requires a bearer session token; authorization is checked per request against the
// caller's current roles.
package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jakechorley/mentor-bridge/internal/config"
	"github.com/jakechorley/mentor-bridge/pkg/core/lifecycle"
	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/core/participants"
	"github.com/jakechorley/mentor-bridge/pkg/core/services"
	"github.com/jakechorley/mentor-bridge/pkg/core/tasks"
	"github.com/jakechorley/mentor-bridge/pkg/core/visibility"
	"github.com/jakechorley/mentor-bridge/pkg/db"
	"github.com/jakechorley/mentor-bridge/pkg/session"
)

const (
	userKey   = "user"
	claimsKey = "claims"
)

// Handler serves the HTTP API
type Handler struct {
	DB       db.Database
	Sessions *session.Manager
	Config   *config.Config
	Logger   *zap.Logger

	// Publisher writes published schedules; schedule publishing is unavailable when nil
	Publisher services.SchedulePublisher

	// Snapshot, when set and fresh, serves participant list reads instead of the database
	Snapshot *participants.Store

	now func() time.Time
}

// NewRouter builds the gin engine with every route registered under /api
func NewRouter(h *Handler) *gin.Engine {
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}
	if h.now == nil {
		h.now = func() time.Time { return time.Now().UTC() }
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.Logger))

	api := r.Group("/api")
	{
		api.POST("/login", h.Login)

		auth := api.Group("", h.RequireSession())
		auth.GET("/me", h.Me)
		auth.POST("/me/password", h.ChangePassword)
		auth.POST("/impersonate/:id", h.Impersonate)

		auth.GET("/participants", h.ListParticipants)
		auth.POST("/participants", h.CreateParticipant)
		auth.POST("/participants/bulk-move", h.BulkMoveToMentorship)
		auth.POST("/participants/bulk-assign", h.BulkAssignToMentor)
		auth.GET("/participants/:id", h.GetParticipant)
		auth.POST("/participants/:id/transitions", h.TransitionParticipant)
		auth.POST("/participants/:id/notes", h.AddNote)
		auth.POST("/participants/:id/graduation-steps", h.CompleteGraduationStep)

		auth.GET("/users", h.ListUsers)
		auth.POST("/users", h.CreateUser)
		auth.PATCH("/users/:id", h.UpdateUser)
		auth.DELETE("/users/:id", h.DeleteUser)
		auth.POST("/users/:id/reset-password", h.ResetPassword)

		auth.GET("/tasks", h.ListTasks)
		auth.POST("/tasks", h.CreateTask)
		auth.PATCH("/tasks/:id", h.UpdateTask)
		auth.DELETE("/tasks/:id", h.DeleteTask)
		auth.POST("/tasks/:id/status", h.UpdateTaskStatus)
		auth.POST("/tasks/:id/form", h.SubmitTaskForm)

		auth.GET("/shifts", h.ListShifts)
		auth.POST("/shifts", h.CreateShifts)
		auth.GET("/shifts/violations", h.ShiftViolations)
		auth.PATCH("/shifts/:id", h.UpdateShift)
		auth.DELETE("/shifts/:id", h.DeleteShift)
		auth.POST("/shifts/:id/signup", h.SignUpForShift)
		auth.DELETE("/shifts/:id/signup/:userId", h.CancelShiftSignUp)
		auth.POST("/shifts/:id/assign", h.AssignShiftUsers)
		auth.DELETE("/shift-series/:groupId", h.DeleteShiftSeries)

		auth.GET("/meetings", h.ListMeetings)
		auth.POST("/meetings", h.CreateMeetings)
		auth.DELETE("/meetings/:id", h.DeleteMeeting)
		auth.POST("/meetings/:id/rsvp", h.RespondToMeeting)

		auth.GET("/stats", h.Stats)
		auth.POST("/schedule/publish", h.PublishSchedule)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return r
}

// RequestLogger logs one line per request, at warn for client errors and error for server errors
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("bytes", c.Writer.Size()),
		}
		if u, ok := c.Get(userKey); ok {
			fields = append(fields, zap.String("user_id", u.(model.User).ID))
		}

		switch {
		case status >= 500:
			logger.Error("http_request", fields...)
		case status >= 400:
			logger.Warn("http_request", fields...)
		default:
			logger.Info("http_request", fields...)
		}
	}
}

// RequireSession validates the bearer token and loads the caller's current account
func (h *Handler) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if header == "" || token == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := h.Sessions.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		user, err := h.DB.GetUser(c.Request.Context(), claims.UserID)
		if errors.Is(err, db.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": session.ErrInvalidToken.Error()})
			return
		}
		if err != nil {
			h.abortWithError(c, err)
			return
		}

		c.Set(userKey, *user)
		c.Set(claimsKey, claims)
		c.Next()
	}
}

func currentUser(c *gin.Context) model.User {
	return c.MustGet(userKey).(model.User)
}

func currentClaims(c *gin.Context) *session.Claims {
	return c.MustGet(claimsKey).(*session.Claims)
}

func actorFor(u model.User) lifecycle.Actor {
	return lifecycle.Actor{ID: u.ID, Name: u.DisplayName()}
}

// authorize aborts with 403 unless the caller holds action
func authorize(c *gin.Context, action visibility.Action) bool {
	if visibility.UserCan(currentUser(c), action) {
		return true
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "forbidden: requires " + string(action)})
	return false
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	var vErr *services.ValidationError
	var formErr *tasks.FormError
	switch {
	case errors.As(err, &vErr), errors.As(err, &formErr), errors.Is(err, lifecycle.ErrMentorRequired):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, session.ErrInvalidToken),
		errors.Is(err, session.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrVersionConflict),
		errors.Is(err, db.ErrDuplicateEmail),
		errors.Is(err, services.ErrSignUpRefused),
		errors.Is(err, lifecycle.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("Request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.AbortWithStatusJSON(status, gin.H{"error": "internal server error"})
		return
	}

	body := gin.H{"error": err.Error()}
	var formErr *tasks.FormError
	if errors.As(err, &formErr) {
		body["fields"] = formErr.Fields
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
