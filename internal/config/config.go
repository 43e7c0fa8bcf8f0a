package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the server and the flow CLI
type Config struct {
	App     AppConfig
	Storage StorageConfig
	AI      *AIConfig
	Ranking RankingConfig
	Vision  VisionConfig
	Flow    FlowConfig
}

// AppConfig holds HTTP server settings
type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	AuthEnabled        bool
	JWTSecret          string
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// StorageConfig selects the repository backend and cache
type StorageConfig struct {
	Backend       string // "memory", "sqlite" or "mongo"
	SQLitePath    string
	MongoURI      string
	MongoDatabase string
	RedisURL      string // empty disables the ranking cache

	// MemoryRetention evicts idle sessions from the memory backend
	MemoryRetention time.Duration
}

// RankingConfig selects how candidate pools are ordered
type RankingConfig struct {
	Policy   string // "llm" or "passthrough"
	TopN     int
	PastDays int
}

// VisionConfig controls image caption enrichment
type VisionConfig struct {
	Enabled        bool
	MaxConcurrency int
}

// FlowConfig holds client-side session settings used by cmd/quizflow
type FlowConfig struct {
	APIBaseURL          string
	APIToken            string
	StorefrontURL       string
	StorefrontToken     string
	StorefrontRPS       float64
	SearchPageSize      int
	SearchPageCap       int
	RecommendedPageSize int
	RankingPageSize     int
	StallTimeout        time.Duration
	ResultsScreen       string
}

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"

	PolicyLLM         = "llm"
	PolicyPassThrough = "passthrough"
)

// Load reads .env (if present) and the process environment
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("PORT", "3001"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/quizpicks.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AuthEnabled:        getEnvAsBool("AUTH_ENABLED", false),
			JWTSecret:          getEnv("JWT_SECRET", "super-secret-key-change-in-production"),
			// 100 requests per 15 minutes per client
			RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 100.0/900.0),
			RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 100),
		},
		Storage: StorageConfig{
			Backend:         strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
			SQLitePath:      getEnv("SQLITE_PATH", "data/quizpicks.db"),
			MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
			MongoDatabase:   getEnv("MONGO_DATABASE", "quizpicks"),
			RedisURL:        getEnv("REDIS_URL", ""),
			MemoryRetention: getEnvAsDuration("MEMORY_RETENTION", 48*time.Hour),
		},
		AI: DefaultAIConfig(),
		Ranking: RankingConfig{
			Policy:   strings.ToLower(getEnv("RANKING_POLICY", PolicyLLM)),
			TopN:     getEnvAsInt("RANKING_TOP_N", 20),
			PastDays: getEnvAsInt("RANKING_PAST_DAYS", 5),
		},
		Vision: VisionConfig{
			Enabled:        getEnvAsBool("VISION_ENABLED", true),
			MaxConcurrency: getEnvAsInt("VISION_MAX_CONCURRENCY", 8),
		},
		Flow: FlowConfig{
			APIBaseURL:          getEnv("API_BASE_URL", "http://localhost:3001/api"),
			APIToken:            getEnv("API_TOKEN", ""),
			StorefrontURL:       getEnv("STOREFRONT_URL", "http://localhost:4000/graphql"),
			StorefrontToken:     getEnv("STOREFRONT_TOKEN", ""),
			StorefrontRPS:       getEnvAsFloat("STOREFRONT_RPS", 4),
			SearchPageSize:      getEnvAsInt("SEARCH_PAGE_SIZE", 10),
			SearchPageCap:       getEnvAsInt("SEARCH_PAGE_CAP", 1),
			RecommendedPageSize: getEnvAsInt("RECOMMENDED_PAGE_SIZE", 10),
			RankingPageSize:     getEnvAsInt("RANKING_PAGE_SIZE", 20),
			StallTimeout:        getEnvAsDuration("STALL_TIMEOUT", 6*time.Second),
			ResultsScreen:       getEnv("RESULTS_SCREEN", "card"),
		},
	}
}

// IsProduction reports whether the server runs with production logging
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
