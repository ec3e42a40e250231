package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/core/services"
	"github.com/jakechorley/mentor-bridge/pkg/core/visibility"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type passwordRequest struct {
	Current string `json:"currentPassword" binding:"required"`
	New     string `json:"newPassword" binding:"required"`
}

type createUserRequest struct {
	Name     string       `json:"name"`
	Nickname string       `json:"nickname"`
	Email    string       `json:"email"`
	Role     model.Role   `json:"role"`
	Roles    []model.Role `json:"roles"`
	Phone    string       `json:"phone"`
	Password string       `json:"password"`
}

type updateUserRequest struct {
	Name     *string       `json:"name"`
	Nickname *string       `json:"nickname"`
	Email    *string       `json:"email"`
	Role     *model.Role   `json:"role"`
	Roles    *[]model.Role `json:"roles"`
	Phone    *string       `json:"phone"`
}

func sessionResponse(token string, user *model.User, expiresAt time.Time) gin.H {
	return gin.H{
		"token":                  token,
		"expiresAt":              expiresAt,
		"user":                   user,
		"requiresPasswordChange": user.RequiresPasswordChange,
	}
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	token, expiresAt, user, err := services.Login(c.Request.Context(), h.DB, h.Sessions, h.Logger, req.Email, req.Password)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse(token, user, expiresAt))
}

func (h *Handler) Me(c *gin.Context) {
	user := currentUser(c)
	claims := currentClaims(c)
	c.JSON(http.StatusOK, gin.H{
		"user":           user,
		"permissions":    visibility.Permissions(user.EffectiveRoles()),
		"impersonatorId": claims.ImpersonatorID,
	})
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := services.ChangePassword(c.Request.Context(), h.DB, h.Config, h.Logger, currentUser(c).ID, req.Current, req.New); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) Impersonate(c *gin.Context) {
	if currentClaims(c).Impersonating() {
		c.JSON(http.StatusForbidden, gin.H{"error": "already impersonating"})
		return
	}

	token, expiresAt, user, err := services.Impersonate(c.Request.Context(), h.DB, h.Sessions, h.Logger, currentUser(c), c.Param("id"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse(token, user, expiresAt))
}

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.DB.GetUsers(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, visibility.VisibleUsersForUser(users, currentUser(c)))
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, temporary, err := services.CreateUser(c.Request.Context(), h.DB, h.Logger, currentUser(c), services.UserInput{
		Name:     req.Name,
		Nickname: req.Nickname,
		Email:    req.Email,
		Role:     req.Role,
		Roles:    req.Roles,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	body := gin.H{"user": user}
	if temporary != "" {
		body["temporaryPassword"] = temporary
	}
	c.JSON(http.StatusCreated, body)
}

func (h *Handler) UpdateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := services.UpdateUser(c.Request.Context(), h.DB, h.Config, h.Logger, currentUser(c), c.Param("id"), services.UserUpdate{
		Name:     req.Name,
		Nickname: req.Nickname,
		Email:    req.Email,
		Role:     req.Role,
		Roles:    req.Roles,
		Phone:    req.Phone,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) DeleteUser(c *gin.Context) {
	if err := services.DeleteUser(c.Request.Context(), h.DB, h.Logger, currentUser(c), c.Param("id")); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) ResetPassword(c *gin.Context) {
	temporary, err := services.ResetPassword(c.Request.Context(), h.DB, h.Config, h.Logger, currentUser(c), c.Param("id"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"temporaryPassword": temporary})
}
