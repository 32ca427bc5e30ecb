package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"staffhub/internal/auth"
	"staffhub/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	currentUserContextKey = "current-user"
)

// RequestUser 存储请求上下文中的认证用户信息
type RequestUser struct {
	ID          string
	Email       string
	Role        string
	Permissions auth.PermissionSet
}

// HasRole reports whether the user holds any of roles.
func (u *RequestUser) HasRole(roles ...string) bool {
	if u == nil {
		return false
	}
	for _, role := range roles {
		if u.Role == role {
			return true
		}
	}
	return false
}

// Can reports whether the user may perform action on resource.
func (u *RequestUser) Can(resource auth.Resource, action auth.Action) bool {
	if u == nil {
		return false
	}
	return u.Permissions.Has(resource, action)
}

func (u *RequestUser) payload() *auth.Payload {
	return &auth.Payload{
		UserID:      u.ID,
		Email:       u.Email,
		Role:        u.Role,
		Permissions: u.Permissions,
	}
}

func requestUserFromPayload(p auth.Payload) *RequestUser {
	perms := p.Permissions
	if perms == nil {
		perms = auth.NewPermissionSet()
	}
	return &RequestUser{
		ID:          p.UserID,
		Email:       p.Email,
		Role:        p.Role,
		Permissions: perms,
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(c *gin.Context) (string, error) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return "", auth.ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", auth.ErrInvalidToken
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", auth.ErrMissingToken
	}
	return token, nil
}

// Authenticate verifies the bearer access token and trusts its payload. Deactivated users keep
// access until the token expires; use AuthenticateStrict where that matters.
func (h *HTTPHandler) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := h.verifyBearer(c)
		if !ok {
			return
		}
		setCurrentUser(c, user)
		c.Next()
	}
}

// AuthenticateStrict verifies the token and then reloads the user and role from the store,
// so deactivation and role changes apply immediately.
func (h *HTTPHandler) AuthenticateStrict() gin.HandlerFunc {
	return func(c *gin.Context) {
		claimed, ok := h.verifyBearer(c)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		user, err := h.credentials.GetUserByID(ctx, claimed.ID)
		if err != nil {
			if errors.Is(err, service.ErrUserNotFound) {
				Unauthorized(c, ErrCodeInvalidToken, "Token subject no longer exists")
				return
			}
			logrus.WithError(err).WithField("user_id", claimed.ID).Error("failed to load user")
			respondError(c, err)
			return
		}
		if !user.IsActive {
			respondError(c, service.ErrUserInactive)
			return
		}

		setCurrentUser(c, requestUserFromPayload(user.TokenPayload()))
		c.Next()
	}
}

func (h *HTTPHandler) verifyBearer(c *gin.Context) (*RequestUser, bool) {
	token, err := bearerToken(c)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	claims, err := h.codec.Verify(token, auth.KindAccess)
	if err != nil {
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Debug("rejected access token")
		respondError(c, err)
		return nil, false
	}
	return requestUserFromPayload(claims.Payload), true
}

func setCurrentUser(c *gin.Context, user *RequestUser) {
	c.Set(currentUserContextKey, user)
	c.Request = c.Request.WithContext(auth.ContextWithIdentity(c.Request.Context(), user.payload()))
}

// RequirePermission 资源权限守卫，须在 Authenticate 之后使用
func (h *HTTPHandler) RequirePermission(resource auth.Resource, action auth.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			respondError(c, auth.ErrMissingToken)
			return
		}
		if !user.Can(resource, action) {
			Forbidden(c, ErrCodePermissionDenied, "Permission denied: "+auth.Permission{Resource: resource, Action: action}.String())
			return
		}
		c.Next()
	}
}

// RequireRole 角色守卫
func (h *HTTPHandler) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			respondError(c, auth.ErrMissingToken)
			return
		}
		if !user.HasRole(roles...) {
			Forbidden(c, ErrCodePermissionDenied, "Permission denied: role "+strings.Join(roles, " or ")+" required")
			return
		}
		c.Next()
	}
}

// RequireSelf rejects callers whose id differs from the path parameter param.
// Holders of users:update may act on anyone.
func (h *HTTPHandler) RequireSelf(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			respondError(c, auth.ErrMissingToken)
			return
		}
		target := strings.TrimSpace(c.Param(param))
		if target != user.ID && !user.Can(auth.ResourceUsers, auth.ActionUpdate) {
			Forbidden(c, ErrCodeForbidden, "You can only access your own resources")
			return
		}
		c.Next()
	}
}

// CurrentUser 从上下文获取当前认证用户
func CurrentUser(c *gin.Context) *RequestUser {
	value, exists := c.Get(currentUserContextKey)
	if !exists {
		return nil
	}
	user, ok := value.(*RequestUser)
	if !ok {
		return nil
	}
	return user
}

