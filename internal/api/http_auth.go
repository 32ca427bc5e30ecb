package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"staffhub/internal/entity"
	"staffhub/internal/service"

	"github.com/gin-gonic/gin"
)

const refreshTokenCookie = "refreshToken"

func requestMeta(c *gin.Context) service.RequestMeta {
	return service.RequestMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// setRefreshCookie stores the refresh token in an http-only, same-site strict cookie.
func (h *HTTPHandler) setRefreshCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshTokenCookie, token, maxAge, "/", "", h.cfg.CookieSecure || h.cfg.IsProduction(), true)
}

func (h *HTTPHandler) clearRefreshCookie(c *gin.Context) {
	h.setRefreshCookie(c, "", -1)
}

// refreshTokenFromRequest reads refreshToken from an optional JSON body, falling back to the cookie.
// A body that does not decode is ignored when the cookie carries a token.
func refreshTokenFromRequest(c *gin.Context) (string, bool) {
	var req entity.AuthRefreshRequest
	token := ""
	bindErr := c.ShouldBindJSON(&req)
	if bindErr == nil {
		token = strings.TrimSpace(req.RefreshToken)
	} else if errors.Is(bindErr, io.EOF) {
		bindErr = nil
	}
	if token == "" {
		if cookie, err := c.Cookie(refreshTokenCookie); err == nil {
			token = strings.TrimSpace(cookie)
		}
	}
	if token == "" && bindErr != nil {
		return "", false
	}
	return token, true
}

func (h *HTTPHandler) accessExpiresIn() int64 {
	return int64(h.sessions.AccessTTL() / time.Second)
}

// Login 用户登录
func (h *HTTPHandler) Login(c *gin.Context) {
	var req entity.AuthLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, ErrCodeValidation, "email and password are required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	result, err := h.sessions.Login(ctx, service.LoginInput{
		Email:       req.Email,
		Password:    req.Password,
		RequestMeta: requestMeta(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.setRefreshCookie(c, result.Tokens.RefreshToken, int(h.sessions.RefreshTTL()/time.Second))
	Success(c, http.StatusOK, "Login successful", entity.AuthLoginResponse{
		Employee:             result.User.Summary(),
		AccessToken:          result.Tokens.AccessToken,
		AccessTokenExpiresIn: h.accessExpiresIn(),
	})
}

// RefreshToken 轮换刷新令牌
func (h *HTTPHandler) RefreshToken(c *gin.Context) {
	token, ok := refreshTokenFromRequest(c)
	if !ok {
		InvalidPayload(c)
		return
	}
	if token == "" {
		BadRequest(c, ErrCodeMissingRefreshToken, "Refresh token is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	result, err := h.sessions.Refresh(ctx, token)
	if err != nil {
		h.clearRefreshCookie(c)
		// 令牌所属用户已停用或删除时同样按令牌失效处理
		if errors.Is(err, service.ErrUserNotFound) {
			err = service.ErrTokenNotFoundOrExpired
		}
		respondError(c, err)
		return
	}

	h.setRefreshCookie(c, result.Tokens.RefreshToken, int(h.sessions.RefreshTTL()/time.Second))
	Success(c, http.StatusOK, "Token refreshed", entity.AuthRefreshResponse{
		AccessToken:          result.Tokens.AccessToken,
		AccessTokenExpiresIn: h.accessExpiresIn(),
	})
}

// Logout 注销当前会话
func (h *HTTPHandler) Logout(c *gin.Context) {
	token, ok := refreshTokenFromRequest(c)
	if !ok {
		InvalidPayload(c)
		return
	}
	if token == "" {
		BadRequest(c, ErrCodeMissingRefreshToken, "Refresh token is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	userID := ""
	if user := CurrentUser(c); user != nil {
		userID = user.ID
	}
	if err := h.sessions.Logout(ctx, token, userID, requestMeta(c)); err != nil {
		respondError(c, err)
		return
	}

	h.clearRefreshCookie(c)
	Success(c, http.StatusOK, "Logged out successfully", nil)
}

// LogoutAll 注销当前用户的所有会话
func (h *HTTPHandler) LogoutAll(c *gin.Context) {
	user := CurrentUser(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	removed, err := h.sessions.LogoutAll(ctx, user.ID, requestMeta(c))
	if err != nil {
		respondError(c, err)
		return
	}

	h.clearRefreshCookie(c)
	Success(c, http.StatusOK, "Logged out from all devices", gin.H{"sessionsRemoved": removed})
}

// Register 管理员创建新用户
func (h *HTTPHandler) Register(c *gin.Context) {
	var req entity.AuthRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, ErrCodeValidation, "name, valid email and password are required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	actorID := ""
	if user := CurrentUser(c); user != nil {
		actorID = user.ID
	}
	user, err := h.sessions.Register(ctx, service.RegisterInput{
		CreateUserInput: service.CreateUserInput{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
			Role:     req.Role,
		},
		ActorID:     actorID,
		RequestMeta: requestMeta(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	Success(c, http.StatusCreated, "User registered successfully", user.Summary())
}

// ChangePassword 修改当前用户密码
func (h *HTTPHandler) ChangePassword(c *gin.Context) {
	var req entity.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, ErrCodeValidation, "currentPassword and newPassword are required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	user := CurrentUser(c)
	if err := h.sessions.ChangePassword(ctx, user.ID, req.CurrentPassword, req.NewPassword, requestMeta(c)); err != nil {
		respondError(c, err)
		return
	}

	h.clearRefreshCookie(c)
	Success(c, http.StatusOK, "Password changed successfully, please log in again", nil)
}

// ResetPassword 管理员重置用户密码
func (h *HTTPHandler) ResetPassword(c *gin.Context) {
	var req entity.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, ErrCodeValidation, "userId and newPassword are required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	admin := CurrentUser(c)
	if err := h.sessions.ResetPassword(ctx, strings.TrimSpace(req.UserID), req.NewPassword, admin.ID, requestMeta(c)); err != nil {
		respondError(c, err)
		return
	}

	Success(c, http.StatusOK, "Password reset successfully", nil)
}

// LoginLogs 查询登录日志
func (h *HTTPHandler) LoginLogs(c *gin.Context) {
	var query entity.AuditLogQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		BadRequest(c, ErrCodeValidation, "invalid query parameters")
		return
	}
	start, _, err := parseDateParam(c.Query("startDate"))
	if err != nil {
		BadRequest(c, ErrCodeValidation, "startDate must be YYYY-MM-DD or RFC 3339")
		return
	}
	end, endIsDay, err := parseDateParam(c.Query("endDate"))
	if err != nil {
		BadRequest(c, ErrCodeValidation, "endDate must be YYYY-MM-DD or RFC 3339")
		return
	}
	query.StartDate, query.EndDate, query.EndDateIsDay = start, end, endIsDay

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	logs, err := h.sessions.LoginLogs(ctx, query)
	if err != nil {
		respondError(c, err)
		return
	}

	Success(c, http.StatusOK, "Login logs retrieved", logs)
}

// parseDateParam parses a YYYY-MM-DD or RFC 3339 query value. isDay reports the first form.
func parseDateParam(raw string) (value *time.Time, isDay bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false, nil
	}
	if day, err := time.ParseInLocation(time.DateOnly, raw, time.UTC); err == nil {
		return &day, true, nil
	}
	instant, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, false, err
	}
	instant = instant.UTC()
	return &instant, false, nil
}

// Me 返回当前令牌中的身份
func (h *HTTPHandler) Me(c *gin.Context) {
	user := CurrentUser(c)
	Success(c, http.StatusOK, "Current user", entity.MeResponse{
		ID:          user.ID,
		Email:       user.Email,
		Role:        user.Role,
		Permissions: user.Permissions.ToMap(),
	})
}
