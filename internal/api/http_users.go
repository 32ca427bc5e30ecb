package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"staffhub/internal/entity"

	"github.com/gin-gonic/gin"
)

// ListUsers 分页查询用户
func (h *HTTPHandler) ListUsers(c *gin.Context) {
	var query entity.UserQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		BadRequest(c, ErrCodeValidation, "invalid query parameters")
		return
	}
	query.Normalise(20, 100)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	users, meta, err := h.credentials.ListUsers(ctx, &query)
	if err != nil {
		respondError(c, err)
		return
	}

	response := entity.UserListResponse{
		Users: make([]entity.UserSummary, 0, len(users)),
		Meta:  meta,
	}
	for idx := range users {
		response.Users = append(response.Users, users[idx].Summary())
	}

	Success(c, http.StatusOK, "Users retrieved", response)
}

// GetUserByEmail 按邮箱查询用户，供员工服务调用
func (h *HTTPHandler) GetUserByEmail(c *gin.Context) {
	email := strings.TrimSpace(c.Param("email"))
	if email == "" {
		MissingField(c, "email")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	user, err := h.credentials.GetUserByEmail(ctx, email)
	if err != nil {
		respondError(c, err)
		return
	}

	Success(c, http.StatusOK, "User retrieved", user.Summary())
}

// GetUser 查询单个用户，仅本人或具备 users:update 权限者可访问
func (h *HTTPHandler) GetUser(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	user, err := h.credentials.GetUserByID(ctx, strings.TrimSpace(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}

	Success(c, http.StatusOK, "User retrieved", user.Summary())
}

// SetActiveStatus 启用或停用用户，停用时同时销毁其刷新令牌
func (h *HTTPHandler) SetActiveStatus(c *gin.Context) {
	var req entity.SetActiveStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		MissingField(c, "is_active")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	actor := CurrentUser(c)
	user, err := h.sessions.SetActiveStatus(ctx, strings.TrimSpace(c.Param("id")), *req.IsActive, actor.ID, requestMeta(c))
	if err != nil {
		respondError(c, err)
		return
	}

	message := "User activated"
	if !user.IsActive {
		message = "User deactivated"
	}
	Success(c, http.StatusOK, message, entity.SetActiveStatusResponse{
		ID:       user.ID,
		Email:    user.Email,
		IsActive: user.IsActive,
	})
}
