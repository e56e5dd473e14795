// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ストアの種類
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// 検証器の種類。identity.Mode と同じ値を使う。
const (
	VerifierModeFirebase = "firebase"
	VerifierModeMock     = "mock"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Store
	StoreDriver       string        `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL       string        `env:"DATABASE_URL"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"30s"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	DBConnectTimeout  time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"2s"`

	// Identity
	IdentityVerifierMode string `env:"IDENTITY_VERIFIER_MODE" envDefault:"firebase"`
	FirebaseProjectID    string `env:"FIREBASE_PROJECT_ID"`
	FirebaseJWKSURL      string `env:"FIREBASE_JWKS_URL" envDefault:"https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"`

	// Session
	JWTSecret           string        `env:"JWT_SECRET"`
	JWTIssuer           string        `env:"JWT_ISSUER" envDefault:"polylearn"`
	JWTExpiresIn        time.Duration `env:"JWT_EXPIRES_IN" envDefault:"168h"`
	JWTRefreshExpiresIn time.Duration `env:"JWT_REFRESH_EXPIRES_IN" envDefault:"720h"`

	// Streak
	StreakTimezone string `env:"STREAK_TIMEZONE" envDefault:"UTC"`
	streakLocation *time.Location

	// Server
	ServerPort        string        `env:"SERVER_PORT" envDefault:"8080"`
	CORSAllowedOrigin string        `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load は.envファイル（存在する場合）と環境変数からConfigを読み込む。
// 既に設定されている環境変数は.envの値で上書きしない。
// 必須環境変数が未設定の場合や値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	// .env は任意
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be one of [postgres memory]: %q", c.StoreDriver)
	}

	switch c.IdentityVerifierMode {
	case VerifierModeFirebase, VerifierModeMock:
	default:
		return fmt.Errorf("IDENTITY_VERIFIER_MODE must be one of [firebase mock]: %q", c.IdentityVerifierMode)
	}

	var missing []string
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.StoreDriver == StoreDriverPostgres && c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.IdentityVerifierMode == VerifierModeFirebase && c.FirebaseProjectID == "" {
		missing = append(missing, "FIREBASE_PROJECT_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if c.JWTExpiresIn <= 0 || c.JWTRefreshExpiresIn <= 0 {
		return fmt.Errorf("JWT_EXPIRES_IN and JWT_REFRESH_EXPIRES_IN must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive: %s", c.RequestTimeout)
	}

	loc, err := time.LoadLocation(c.StreakTimezone)
	if err != nil {
		return fmt.Errorf("invalid STREAK_TIMEZONE %q: %w", c.StreakTimezone, err)
	}
	c.streakLocation = loc

	return nil
}

// StreakLocation はストリークの日付境界に使うタイムゾーンを返す。
func (c *Config) StreakLocation() *time.Location {
	if c.streakLocation == nil {
		return time.UTC
	}
	return c.streakLocation
}
