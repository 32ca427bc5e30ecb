package api

import (
	"fmt"

	"staffhub/internal/auth"
	"staffhub/internal/config"
	"staffhub/internal/entity"
	"staffhub/internal/model"
	"staffhub/internal/service"

	"github.com/gin-gonic/gin"
)

// HTTPHandler HTTP 请求处理器
type HTTPHandler struct {
	cfg         config.Config
	repo        model.Repository
	codec       *auth.Codec
	credentials *service.CredentialStore
	sessions    *service.SessionManager
	limiter     *ipRateLimiter
}

// NewHTTPHandler 创建 HTTP 处理器实例
func NewHTTPHandler(cfg config.Config, repo model.Repository, opts ...service.SessionOption) (*HTTPHandler, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is nil")
	}
	codec, err := auth.NewCodec(auth.CodecConfig{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		Issuer:        cfg.JWTIssuer,
		Audience:      cfg.JWTAudience,
		AccessTTL:     cfg.JWTAccessTTL,
		RefreshTTL:    cfg.JWTRefreshTTL,
	})
	if err != nil {
		return nil, err
	}

	credentials := service.NewCredentialStore(repo, auth.NewPasswordHasher(cfg.BcryptCost))

	return &HTTPHandler{
		cfg:         cfg,
		repo:        repo,
		codec:       codec,
		credentials: credentials,
		sessions:    service.NewSessionManager(repo, credentials, codec, opts...),
		limiter:     newIPRateLimiter(cfg.LoginRatePerMinute, cfg.LoginRateBurst),
	}, nil
}

// RegisterRoutes mounts the auth API on group, normally /api/auth.
func (h *HTTPHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/login", h.RateLimit(), h.Login)
	group.POST("/refresh-token", h.RefreshToken)
	group.POST("/logout", h.Authenticate(), h.Logout)
	group.POST("/logout-all", h.AuthenticateStrict(), h.LogoutAll)
	group.POST("/register", h.RateLimit(), h.AuthenticateStrict(), h.RequireRole(entity.RoleAdmin), h.Register)
	group.POST("/change-password", h.AuthenticateStrict(), h.ChangePassword)
	group.POST("/reset-password", h.AuthenticateStrict(), h.RequireRole(entity.RoleAdmin, entity.RoleHR), h.ResetPassword)
	group.GET("/login-logs", h.Authenticate(), h.RequirePermission(auth.ResourceAuditLogs, auth.ActionRead), h.LoginLogs)
	group.GET("/me", h.Authenticate(), h.Me)

	users := group.Group("/users")
	users.GET("", h.Authenticate(), h.RequirePermission(auth.ResourceUsers, auth.ActionRead), h.ListUsers)
	users.GET("/email/:email", h.Authenticate(), h.RequirePermission(auth.ResourceUsers, auth.ActionRead), h.GetUserByEmail)
	users.GET("/:id", h.Authenticate(), h.RequireSelf("id"), h.GetUser)
	users.PATCH("/:id/active", h.AuthenticateStrict(), h.RequirePermission(auth.ResourceUsers, auth.ActionUpdate), h.SetActiveStatus)
}
