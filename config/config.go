package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AppPort string `yaml:"app_port"`
	AppMode string `yaml:"app_mode"`

	StoreDriver string `yaml:"store_driver"`
	DBHost      string `yaml:"db_host"`
	DBUser      string `yaml:"db_user"`
	DBPassword  string `yaml:"db_password"`
	DBName      string `yaml:"db_name"`
	DBPort      string `yaml:"db_port"`
	DBSSLMode   string `yaml:"db_sslmode"`

	JWTSecret string `yaml:"jwt_secret"`

	RedisEnabled  bool   `yaml:"redis_enabled"`
	RedisHost     string `yaml:"redis_host"`
	RedisPort     string `yaml:"redis_port"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	TaskAPIURL       string `yaml:"task_api_url"`
	TaskAPIToken     string `yaml:"task_api_token"`
	TaskAPITimeoutMS int    `yaml:"task_api_timeout_ms"`

	FanoutWorkers   int   `yaml:"fanout_workers"`
	FanoutQueue     int   `yaml:"fanout_queue"`
	FanoutTimeoutMS int   `yaml:"fanout_timeout_ms"`
	EventLogMaxLen  int64 `yaml:"event_log_maxlen"`

	MessageRateLimit     int `yaml:"message_rate_limit"`
	MessageRateWindowSec int `yaml:"message_rate_window_sec"`
	TypingTTLSec         int `yaml:"typing_ttl_sec"`
	MemberCacheTTLSec    int `yaml:"member_cache_ttl_sec"`
}

func defaults() *Config {
	return &Config{
		AppPort:              "8080",
		AppMode:              "debug",
		StoreDriver:          "postgres",
		DBHost:               "localhost",
		DBUser:               "postgres",
		DBPassword:           "postgres",
		DBName:               "scope_chat",
		DBPort:               "5432",
		DBSSLMode:            "disable",
		JWTSecret:            "change-me",
		RedisEnabled:         true,
		RedisHost:            "localhost",
		RedisPort:            "6379",
		TaskAPIURL:           "http://localhost:3003",
		TaskAPITimeoutMS:     5000,
		FanoutWorkers:        4,
		FanoutQueue:          1024,
		FanoutTimeoutMS:      2000,
		EventLogMaxLen:       1000,
		MessageRateLimit:     60,
		MessageRateWindowSec: 60,
		TypingTTLSec:         10,
		MemberCacheTTLSec:    300,
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// named by CONFIG_FILE and finally the environment. Environment wins.
func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := defaults()
	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := loadYAML(path, cfg); err != nil {
			log.Printf("Ignoring config file %s: %v", path, err)
		}
	}
	applyEnv(cfg)
	return cfg
}

func loadYAML(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, cfg)
}

func applyEnv(cfg *Config) {
	cfg.AppPort = getEnv("APP_PORT", cfg.AppPort)
	cfg.AppMode = getEnv("APP_MODE", cfg.AppMode)
	cfg.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", cfg.StoreDriver))
	cfg.DBHost = getEnv("DB_HOST", cfg.DBHost)
	cfg.DBUser = getEnv("DB_USER", cfg.DBUser)
	cfg.DBPassword = getEnv("DB_PASSWORD", cfg.DBPassword)
	cfg.DBName = getEnv("DB_NAME", cfg.DBName)
	cfg.DBPort = getEnv("DB_PORT", cfg.DBPort)
	cfg.DBSSLMode = getEnv("DB_SSLMODE", cfg.DBSSLMode)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.RedisEnabled = getEnvAsBool("REDIS_ENABLED", cfg.RedisEnabled)
	cfg.RedisHost = getEnv("REDIS_HOST", cfg.RedisHost)
	cfg.RedisPort = getEnv("REDIS_PORT", cfg.RedisPort)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvAsInt("REDIS_DB", cfg.RedisDB)
	cfg.TaskAPIURL = getEnv("TASK_API_URL", cfg.TaskAPIURL)
	cfg.TaskAPIToken = getEnv("TASK_API_TOKEN", cfg.TaskAPIToken)
	cfg.TaskAPITimeoutMS = getEnvAsInt("TASK_API_TIMEOUT_MS", cfg.TaskAPITimeoutMS)
	cfg.FanoutWorkers = getEnvAsInt("FANOUT_WORKERS", cfg.FanoutWorkers)
	cfg.FanoutQueue = getEnvAsInt("FANOUT_QUEUE", cfg.FanoutQueue)
	cfg.FanoutTimeoutMS = getEnvAsInt("FANOUT_TIMEOUT_MS", cfg.FanoutTimeoutMS)
	cfg.EventLogMaxLen = int64(getEnvAsInt("EVENT_LOG_MAXLEN", int(cfg.EventLogMaxLen)))
	cfg.MessageRateLimit = getEnvAsInt("MESSAGE_RATE_LIMIT", cfg.MessageRateLimit)
	cfg.MessageRateWindowSec = getEnvAsInt("MESSAGE_RATE_WINDOW_SEC", cfg.MessageRateWindowSec)
	cfg.TypingTTLSec = getEnvAsInt("TYPING_TTL_SEC", cfg.TypingTTLSec)
	cfg.MemberCacheTTLSec = getEnvAsInt("MEMBER_CACHE_TTL_SEC", cfg.MemberCacheTTLSec)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}
