package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"staffhub/internal/api"
	"staffhub/internal/auth"
	"staffhub/internal/config"
	"staffhub/internal/model"
	"staffhub/internal/obs"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	// 初始化logger
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	// 初始化配置
	cfg, err := config.ParseConfig()
	if err != nil {
		logrus.WithError(err).Error("Failed to parse config")
		os.Exit(1)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	} else {
		logrus.WithField("log_level", cfg.LogLevel).Warn("unknown log level, keeping info")
	}

	if err := obs.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logrus.WithError(err).Warn("failed to initialise sentry")
	}
	defer obs.FlushSentry()
	obs.Init()

	repo, err := model.InitRepository(&cfg)
	if err != nil {
		fatal(err, "failed to initialise repository")
	}

	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 30*time.Second)
	if err := model.SeedDefaultRoles(seedCtx, repo); err != nil {
		logrus.WithError(err).Warn("failed to seed default roles")
	}
	if created, err := model.SeedAdminUser(seedCtx, repo, cfg, auth.NewPasswordHasher(cfg.BcryptCost)); err != nil {
		logrus.WithError(err).Warn("failed to seed admin user")
	} else if created {
		logrus.WithField("email", cfg.AdminEmail).Info("bootstrap admin created")
	}
	cancelSeed()

	httpHandler, err := api.NewHTTPHandler(cfg, repo)
	if err != nil {
		fatal(err, "failed to initialise http handler")
	}

	// 设置Gin模式
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// 添加中间件
	r.Use(LoggingMiddleware())
	r.Use(CORSMiddleware(cfg.CORSAllowedOrigins))
	r.Use(obs.GinMiddleware())
	r.Use(obs.RecoveryMiddleware())

	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := repo.Ping(ctx); err != nil {
			logrus.WithError(err).Warn("health check failed")
			api.ServiceUnavailable(c, "database unavailable")
			return
		}
		api.Success(c, http.StatusOK, "Auth service is healthy", gin.H{"status": "ok", "service": "auth"})
	})
	r.GET("/metrics", gin.WrapH(obs.Handler()))

	httpHandler.RegisterRoutes(r.Group("/api/auth"))

	serverHost := fmt.Sprintf("0.0.0.0:%s", cfg.HTTPPort)
	logrus.WithField("host", serverHost).Info("服务器启动")
	// 创建HTTP服务器
	httpServer := &http.Server{
		Addr:         serverHost,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logrus.WithError(err).Error("服务器启动失败")
	case sig := <-stop:
		logrus.WithField("signal", sig.String()).Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("graceful shutdown failed")
	}
}

var exit = os.Exit

// fatal 记录启动错误并上报 Sentry，退出前刷新缓冲的事件
func fatal(err error, msg string) {
	logrus.WithError(err).Error(msg)
	obs.CaptureError(nil, fmt.Errorf("%s: %w", msg, err))
	obs.FlushSentry()
	exit(1)
}

// CORSMiddleware CORS跨域中间件，刷新令牌走 cookie，因此必须允许携带凭证
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if trimmed := strings.TrimRight(strings.TrimSpace(origin), "/"); trimmed != "" {
			allowed[trimmed] = struct{}{}
		}
	}
	return cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			_, ok := allowed[strings.TrimRight(origin, "/")]
			return ok
		},
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// LoggingMiddleware 日志记录中间件
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		// 处理请求
		c.Next()
		// 记录请求结束
		duration := time.Since(start)
		logrus.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"duration":  duration.String(),
			"size":      c.Writer.Size(),
			"client_ip": c.ClientIP(),
		}).Info("http_request")
	}
}
