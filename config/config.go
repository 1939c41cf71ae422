package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Hub      HubConfig
	Gateway  GatewayConfig
	CORS     CORSConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret         string
	ExpiryHours    int
	StreamTokenTTL time.Duration
}

type HubConfig struct {
	SessionTimeout  time.Duration
	ReapInterval    time.Duration
	RateLimitPerSec int
}

type GatewayConfig struct {
	Port                   string
	URL                    string
	MaxViewersPerCamera    int
	StreamTimeoutNoViewers time.Duration
	AutoRestartDelay       time.Duration
	MaxRestarts            int
	HealthCheckInterval    time.Duration
	HealthCallbackURL      string
	GatewaySecret          string
	FFmpegPath             string
	HLSDir                 string
}

type CORSConfig struct {
	AllowedOrigins []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	origins := strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"), ",")

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "kioskwatch"),
			Password: getEnv("DB_PASSWORD", "kioskwatch_password"),
			DBName:   getEnv("DB_NAME", "kioskwatch_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:         getEnv("JWT_SECRET", ""),
			ExpiryHours:    getEnvInt("JWT_EXPIRY_HOURS", 24),
			StreamTokenTTL: time.Duration(getEnvInt("STREAM_TOKEN_TTL", 60)) * time.Second,
		},
		Hub: HubConfig{
			SessionTimeout:  time.Duration(getEnvInt("SESSION_TIMEOUT_MS", 300000)) * time.Millisecond,
			ReapInterval:    time.Duration(getEnvInt("SESSION_REAP_INTERVAL_MS", 30000)) * time.Millisecond,
			RateLimitPerSec: getEnvInt("RATE_LIMIT_PER_SECOND", 10),
		},
		Gateway: GatewayConfig{
			Port:                   getEnv("GATEWAY_PORT", "8081"),
			URL:                    getEnv("GATEWAY_URL", "http://localhost:8081"),
			MaxViewersPerCamera:    getEnvInt("MAX_VIEWERS_PER_CAMERA", 10),
			StreamTimeoutNoViewers: time.Duration(getEnvInt("STREAM_TIMEOUT_NO_VIEWERS", 60000)) * time.Millisecond,
			AutoRestartDelay:       time.Duration(getEnvInt("AUTO_RESTART_DELAY", 5000)) * time.Millisecond,
			MaxRestarts:            getEnvInt("MAX_RESTARTS", 5),
			HealthCheckInterval:    time.Duration(getEnvInt("HEALTH_CHECK_INTERVAL", 30000)) * time.Millisecond,
			HealthCallbackURL:      getEnv("HEALTH_CALLBACK_URL", "http://localhost:8080/api/cctv/health-callback"),
			GatewaySecret:          getEnv("GATEWAY_SECRET", ""),
			FFmpegPath:             getEnv("FFMPEG_PATH", "ffmpeg"),
			HLSDir:                 getEnv("HLS_DIR", "./hls"),
		},
		CORS: CORSConfig{
			AllowedOrigins: origins,
		},
	}

	if cfg.JWT.Secret == "" {
		// Fallback key; tokens signed with it carry no trust
		cfg.JWT.Secret = "dev-signing-key"
		fmt.Println("Warning: JWT_SECRET not set, using insecure development key")
	}

	return cfg, nil
}

// GetDSN returns the database connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return value
}
