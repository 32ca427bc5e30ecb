package api

import (
	"errors"
	"net/http"

	"staffhub/internal/auth"
	"staffhub/internal/entity"
	"staffhub/internal/obs"
	"staffhub/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 错误码定义
const (
	// 请求错误
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeWeakPassword        = "WEAK_PASSWORD"
	ErrCodeMissingRefreshToken = "MISSING_REFRESH_TOKEN"
	ErrCodeIncorrectPassword   = "INCORRECT_PASSWORD"

	// 认证错误
	ErrCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	ErrCodeMissingToken           = "MISSING_TOKEN"
	ErrCodeInvalidToken           = "INVALID_TOKEN"
	ErrCodeTokenExpired           = "TOKEN_EXPIRED"
	ErrCodeWrongTokenKind         = "WRONG_TOKEN_KIND"
	ErrCodeTokenNotFoundOrExpired = "TOKEN_NOT_FOUND_OR_EXPIRED"

	// 授权错误
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeInactiveUser     = "INACTIVE_USER"

	// 资源错误
	ErrCodeUserNotFound   = "USER_NOT_FOUND"
	ErrCodeRoleNotFound   = "ROLE_NOT_FOUND"
	ErrCodeDuplicateEmail = "DUPLICATE_EMAIL"

	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// errorMapping pairs a sentinel with its HTTP status, code and client-facing message.
type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

var errorMappings = []errorMapping{
	{service.ErrInvalidCredentials, http.StatusUnauthorized, ErrCodeInvalidCredentials, "Invalid email or password"},
	{auth.ErrMissingToken, http.StatusUnauthorized, ErrCodeMissingToken, "Access token is required"},
	{auth.ErrTokenExpired, http.StatusUnauthorized, ErrCodeTokenExpired, "Token has expired"},
	{auth.ErrWrongTokenKind, http.StatusUnauthorized, ErrCodeWrongTokenKind, "Token type is not accepted here"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, ErrCodeInvalidToken, "Token is invalid"},
	{service.ErrTokenNotFoundOrExpired, http.StatusUnauthorized, ErrCodeTokenNotFoundOrExpired, "Refresh token not found or expired"},
	{auth.ErrWeakPassword, http.StatusBadRequest, ErrCodeWeakPassword, "Password must be at least 8 characters and contain upper case, lower case, digit and symbol"},
	{service.ErrIncorrectPassword, http.StatusBadRequest, ErrCodeIncorrectPassword, "Current password is incorrect"},
	{service.ErrUserInactive, http.StatusForbidden, ErrCodeInactiveUser, "User account is inactive"},
	{service.ErrUserNotFound, http.StatusNotFound, ErrCodeUserNotFound, "User not found"},
	{service.ErrRoleNotFound, http.StatusNotFound, ErrCodeRoleNotFound, "Role not found"},
	{service.ErrDuplicateEmail, http.StatusConflict, ErrCodeDuplicateEmail, "Email already registered"},
}

// ErrorResponse 返回统一格式的错误响应
func ErrorResponse(c *gin.Context, status int, code string, message string) {
	c.AbortWithStatusJSON(status, entity.Envelope{
		Success: false,
		Message: message,
		Data:    nil,
		Code:    &code,
	})
}

// Success 返回统一格式的成功响应
func Success(c *gin.Context, status int, message string, data any) {
	c.JSON(status, entity.Envelope{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// respondError maps err to its envelope. Unknown errors are logged, reported, and hidden behind a generic 500.
func respondError(c *gin.Context, err error) {
	var validation *service.ValidationError
	if errors.As(err, &validation) {
		BadRequest(c, ErrCodeValidation, validation.Reason)
		return
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			ErrorResponse(c, m.status, m.code, m.message)
			return
		}
	}

	logrus.WithError(err).WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
	}).Error("request failed")
	obs.CaptureError(c, err)
	InternalError(c, "Internal server error")
}

// 常用错误响应快捷函数

// BadRequest 400 错误请求
func BadRequest(c *gin.Context, code string, message string) {
	ErrorResponse(c, http.StatusBadRequest, code, message)
}

// Unauthorized 401 未授权
func Unauthorized(c *gin.Context, code string, message string) {
	ErrorResponse(c, http.StatusUnauthorized, code, message)
}

// Forbidden 403 禁止访问
func Forbidden(c *gin.Context, code string, message string) {
	ErrorResponse(c, http.StatusForbidden, code, message)
}

// InternalError 500 服务器内部错误
func InternalError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// ServiceUnavailable 503 服务不可用
func ServiceUnavailable(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, message)
}

// TooManyRequests 429 请求过于频繁
func TooManyRequests(c *gin.Context) {
	ErrorResponse(c, http.StatusTooManyRequests, ErrCodeRateLimited, "Too many requests, please try again later")
}

// MissingField 缺少必填字段
func MissingField(c *gin.Context, field string) {
	BadRequest(c, ErrCodeValidation, field+" is required")
}

// InvalidPayload 无效的请求体
func InvalidPayload(c *gin.Context) {
	BadRequest(c, ErrCodeValidation, "invalid request payload")
}
