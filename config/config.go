package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DefaultPort                  = "8080"
	DefaultAccessTokenExpiryMin  = 24 * 60
	DefaultRefreshTokenExpiryMin = 7 * 24 * 60
	DefaultLoginMaxAttempts      = 5
	DefaultLoginWindowMinutes    = 15
	DefaultOTPLength             = 6
	DefaultOTPMaxAttempts        = 3
	DefaultOTPBlockMinutes       = 15
	DefaultSignupOTPExpiryMin    = 5
	DefaultResetOTPExpiryMin     = 15
	DefaultTxTimeoutSeconds      = 20
	DefaultEventsChannel         = "securesteps:events"
	DefaultSMTPPort              = 587
)

type Config struct {
	Env                string
	Port               string
	DBURL              string
	RedisURL           string
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessExpiryMin    int
	RefreshExpiryMin   int

	LoginMaxAttempts   int
	LoginWindowMinutes int

	OTPLength          int
	OTPMaxAttempts     int
	OTPBlockMinutes    int
	SignupOTPExpiryMin int
	ResetOTPExpiryMin  int

	// TxTimeoutSeconds bounds every store transaction.
	TxTimeoutSeconds int
	CookieSecure     bool
	CORSOrigins      string
	EventsChannel    string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// Load reads config/.env.dev or config/.env.prod (picked by ENV) and then the
// process environment. Values already present in the environment win.
func Load() *Config {
	env := getEnv("ENV", EnvDevelopment)

	file := ".env.dev"
	if env == EnvProduction {
		file = ".env.prod"
	}
	if err := godotenv.Load(filepath.Join("config", file)); err != nil {
		log.Printf("config: %s not loaded, using environment only: %v", file, err)
	}

	return &Config{
		Env:                env,
		Port:               getEnv("PORT", DefaultPort),
		DBURL:              mustGetEnv("DB_URL"),
		RedisURL:           getEnv("REDIS_URL", ""),
		AccessTokenSecret:  mustGetEnv("ACCESS_TOKEN_SECRET"),
		RefreshTokenSecret: mustGetEnv("REFRESH_TOKEN_SECRET"),
		AccessExpiryMin:    getEnvAsInt("ACCESS_TOKEN_EXPIRY", DefaultAccessTokenExpiryMin),
		RefreshExpiryMin:   getEnvAsInt("REFRESH_TOKEN_EXPIRY", DefaultRefreshTokenExpiryMin),

		LoginMaxAttempts:   getEnvAsInt("LOGIN_MAX_ATTEMPTS", DefaultLoginMaxAttempts),
		LoginWindowMinutes: getEnvAsInt("LOGIN_WINDOW_MINUTES", DefaultLoginWindowMinutes),

		OTPLength:          getEnvAsInt("OTP_LENGTH", DefaultOTPLength),
		OTPMaxAttempts:     getEnvAsInt("OTP_MAX_ATTEMPTS", DefaultOTPMaxAttempts),
		OTPBlockMinutes:    getEnvAsInt("OTP_BLOCK_MINUTES", DefaultOTPBlockMinutes),
		SignupOTPExpiryMin: getEnvAsInt("SIGNUP_OTP_EXPIRY", DefaultSignupOTPExpiryMin),
		ResetOTPExpiryMin:  getEnvAsInt("RESET_OTP_EXPIRY", DefaultResetOTPExpiryMin),

		TxTimeoutSeconds: getEnvAsInt("TX_TIMEOUT_SECONDS", DefaultTxTimeoutSeconds),
		CookieSecure:     getEnvAsBool("COOKIE_SECURE", env == EnvProduction),
		CORSOrigins:      getEnv("CORS_ORIGINS", ""),
		EventsChannel:    getEnv("EVENTS_CHANNEL", DefaultEventsChannel),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", DefaultSMTPPort),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", "no-reply@securesteps.app"),
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessExpiryMin) * time.Minute
}

func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshExpiryMin) * time.Minute
}

func (c *Config) TxTimeout() time.Duration {
	return time.Duration(c.TxTimeoutSeconds) * time.Second
}

func getEnv(key string, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func mustGetEnv(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	log.Fatalf("Missing required config: %s", key)
	return ""
}

func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		log.Printf("Invalid value for %s, using default %d", key, defaultVal)
		return defaultVal
	}
	return val
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("Invalid value for %s, using default %t", key, defaultVal)
		return defaultVal
	}
	return val
}
