package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	HTTPPort string `env:"HTTP_PORT" envDefault:"3001"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DBType     string `env:"DB_TYPE" envDefault:"sqlite"`
	DSNURL     string `env:"DSN_URL" envDefault:""`
	DBUser     string `env:"DB_USER" envDefault:""`
	DBPassword string `env:"DB_PASSWORD" envDefault:""`
	DBAddr     string `env:"DB_ADDR" envDefault:""`
	DBName     string `env:"DB_NAME" envDefault:"staffhub_auth"`
	DBPath     string `env:"DB_PATH" envDefault:"datas/auth.db"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`

	DBMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" envDefault:"100"`
	DBMaxIdleConns int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`

	// 令牌配置，访问令牌与刷新令牌必须使用不同的密钥
	JWTAccessSecret  string        `env:"JWT_ACCESS_SECRET"`
	JWTRefreshSecret string        `env:"JWT_REFRESH_SECRET"`
	JWTIssuer        string        `env:"JWT_ISSUER" envDefault:"employee-management-system"`
	JWTAudience      string        `env:"JWT_AUDIENCE" envDefault:"employee-management-users"`
	JWTAccessTTL     time.Duration `env:"JWT_ACCESS_TTL" envDefault:"15m"`
	JWTRefreshTTL    time.Duration `env:"JWT_REFRESH_TTL" envDefault:"168h"`

	BcryptCost   int  `env:"BCRYPT_COST" envDefault:"10"`
	CookieSecure bool `env:"COOKIE_SECURE" envDefault:"false"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`

	LoginRatePerMinute int `env:"LOGIN_RATE_PER_MINUTE" envDefault:"10"`
	LoginRateBurst     int `env:"LOGIN_RATE_BURST" envDefault:"5"`

	SentryDSN string `env:"SENTRY_DSN" envDefault:""`

	// 初始管理员，留空则不创建
	AdminEmail    string `env:"ADMIN_EMAIL" envDefault:""`
	AdminPassword string `env:"ADMIN_PASSWORD" envDefault:""`
	AdminName     string `env:"ADMIN_NAME" envDefault:"System Administrator"`
}

// IsProduction reports whether the service runs with production cookie and logging settings.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), "production")
}

// Validate checks the settings the auth core cannot start without.
func (c Config) Validate() error {
	access := strings.TrimSpace(c.JWTAccessSecret)
	refresh := strings.TrimSpace(c.JWTRefreshSecret)
	if access == "" || refresh == "" {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required")
	}
	if access == refresh {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	return nil
}

func ParseConfig() (Config, error) {
	// .env 文件可选
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("failed to load .env file")
	}

	var Conf Config
	err := env.Parse(&Conf)
	if err != nil {
		logrus.WithError(err).Error("env.Parse error")
		return Config{}, err
	}
	if err := Conf.Validate(); err != nil {
		return Config{}, err
	}
	logrus.WithFields(logrus.Fields{
		"db_type":     Conf.DBType,
		"http_port":   Conf.HTTPPort,
		"access_ttl":  Conf.JWTAccessTTL.String(),
		"refresh_ttl": Conf.JWTRefreshTTL.String(),
	}).Debug("config loaded")
	return Conf, nil
}
