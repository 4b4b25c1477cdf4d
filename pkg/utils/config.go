package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	OTP       OTPConfig
	Gateway   GatewayConfig
	Avatar    AvatarConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Name    string
	Port    string
	Debug   bool
	LogPath string
	Env     string
}

type DatabaseConfig struct {
	Host        string
	Port        string
	Name        string
	User        string
	Password    string
	MaxConns    int32
	AutoMigrate bool
}

// DSN returns the postgres URL form used by the migration runner.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MaxOTPAttempts is the highest failed-verify count the users table accepts.
const MaxOTPAttempts = 3

// OTPConfig holds the phone verification policy knobs.
type OTPConfig struct {
	RateLimitSeconds      int
	MaxAttempts           int
	ExpiresInSeconds      int
	LockRetryAfterSeconds int
}

type GatewayConfig struct {
	Provider           string // dev | firebase | idtoken
	Timeout            time.Duration
	FirebaseAPIKey     string
	FirebaseProjectID  string
	IdentityToolkitURL string
	JWKSURL            string
}

type AvatarConfig struct {
	Dir      string
	BaseURL  string
	MaxBytes int64
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// Set defaults
	v.SetDefault("APP_NAME", "phone-auth")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DEBUG", false)
	v.SetDefault("LOG_PATH", "logs/")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_AUTO_MIGRATE", false)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("OTP_RATE_LIMIT_SECONDS", 60)
	v.SetDefault("OTP_MAX_ATTEMPTS", 3)
	v.SetDefault("OTP_EXPIRES_IN_SECONDS", 300)
	v.SetDefault("OTP_LOCK_RETRY_AFTER_SECONDS", 60)
	v.SetDefault("GATEWAY_PROVIDER", "dev")
	v.SetDefault("GATEWAY_TIMEOUT", "10s")
	v.SetDefault("IDENTITY_TOOLKIT_URL", "https://identitytoolkit.googleapis.com/v1")
	v.SetDefault("FIREBASE_JWKS_URL", "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com")
	v.SetDefault("AVATAR_DIR", "media/")
	v.SetDefault("AVATAR_BASE_URL", "/media")
	v.SetDefault("AVATAR_MAX_BYTES", 5*1024*1024)
	v.SetDefault("RATE_LIMIT_REQUESTS", 20)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")

	// .env is optional; environment variables always win
	_ = v.ReadInConfig()
	v.AutomaticEnv()

	config := &Config{
		App: AppConfig{
			Name:    v.GetString("APP_NAME"),
			Port:    v.GetString("PORT"),
			Debug:   v.GetBool("DEBUG"),
			LogPath: v.GetString("LOG_PATH"),
			Env:     v.GetString("APP_ENV"),
		},
		Database: DatabaseConfig{
			Host:        v.GetString("DB_HOST"),
			Port:        v.GetString("DB_PORT"),
			Name:        v.GetString("DB_NAME"),
			User:        v.GetString("DB_USER"),
			Password:    v.GetString("DB_PASS"),
			MaxConns:    v.GetInt32("DB_MAX_CONNS"),
			AutoMigrate: v.GetBool("DB_AUTO_MIGRATE"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		OTP: OTPConfig{
			RateLimitSeconds:      v.GetInt("OTP_RATE_LIMIT_SECONDS"),
			MaxAttempts:           v.GetInt("OTP_MAX_ATTEMPTS"),
			ExpiresInSeconds:      v.GetInt("OTP_EXPIRES_IN_SECONDS"),
			LockRetryAfterSeconds: v.GetInt("OTP_LOCK_RETRY_AFTER_SECONDS"),
		},
		Gateway: GatewayConfig{
			Provider:           v.GetString("GATEWAY_PROVIDER"),
			Timeout:            v.GetDuration("GATEWAY_TIMEOUT"),
			FirebaseAPIKey:     v.GetString("FIREBASE_API_KEY"),
			FirebaseProjectID:  v.GetString("FIREBASE_PROJECT_ID"),
			IdentityToolkitURL: v.GetString("IDENTITY_TOOLKIT_URL"),
			JWKSURL:            v.GetString("FIREBASE_JWKS_URL"),
		},
		Avatar: AvatarConfig{
			Dir:      v.GetString("AVATAR_DIR"),
			BaseURL:  v.GetString("AVATAR_BASE_URL"),
			MaxBytes: v.GetInt64("AVATAR_MAX_BYTES"),
		},
		RateLimit: RateLimitConfig{
			Requests: v.GetInt("RATE_LIMIT_REQUESTS"),
			Window:   v.GetDuration("RATE_LIMIT_WINDOW"),
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.App.Port == "" {
		return errors.New("config: PORT must be set")
	}

	switch c.Gateway.Provider {
	case "dev":
		if c.App.Env == "production" {
			return errors.New("config: GATEWAY_PROVIDER=dev must not be used when APP_ENV=production")
		}
	case "firebase":
		if c.Gateway.FirebaseAPIKey == "" {
			return errors.New("config: FIREBASE_API_KEY is required for the firebase gateway")
		}
	case "idtoken":
		if c.Gateway.FirebaseProjectID == "" {
			return errors.New("config: FIREBASE_PROJECT_ID is required for the idtoken gateway")
		}
	default:
		return fmt.Errorf("config: unknown GATEWAY_PROVIDER %q", c.Gateway.Provider)
	}

	// users.otp_attempts is CHECKed to 0..MaxOTPAttempts in the schema
	if c.OTP.MaxAttempts < 1 || c.OTP.MaxAttempts > MaxOTPAttempts {
		return fmt.Errorf("config: OTP_MAX_ATTEMPTS must be between 1 and %d", MaxOTPAttempts)
	}
	if c.Gateway.Timeout <= 0 {
		c.Gateway.Timeout = 10 * time.Second
	}

	return nil
}
