package config

// GeminiModels defines which Gemini models to use for different tasks
type GeminiModels struct {
	// Queries turns quiz answers into catalogue search queries (fast)
	Queries string `json:"queries"`

	// Ranking scores the accumulated candidate pool (quality over speed)
	Ranking string `json:"ranking"`

	// Vision captions product images, runs in background batches
	Vision string `json:"vision"`
}

// AIConfig holds all AI-related configuration
type AIConfig struct {
	APIKey    string       `json:"-"` // Never serialize
	BaseURL   string       `json:"baseUrl"`
	Models    GeminiModels `json:"models"`
	TimeoutMS int          `json:"timeoutMs"`
	// MaxQueries caps generated search queries
	MaxQueries int `json:"maxQueries"`
}

// DefaultAIConfig returns the default AI configuration
func DefaultAIConfig() *AIConfig {
	return &AIConfig{
		APIKey:  getEnv("GEMINI_API_KEY", ""),
		BaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/models"),
		Models: GeminiModels{
			Queries: getEnvOrDefault("GEMINI_MODEL_QUERIES", "gemini-2.0-flash"),
			Ranking: getEnvOrDefault("GEMINI_MODEL_RANKING", "gemini-2.0-flash"),
			Vision:  getEnvOrDefault("GEMINI_MODEL_VISION", "gemini-2.0-flash"),
		},
		TimeoutMS:  getEnvAsInt("GEMINI_TIMEOUT_MS", 20000),
		MaxQueries: getEnvAsInt("MAX_GENERATED_QUERIES", 6),
	}
}

// IsEnabled returns true if the AI API is configured
func (c *AIConfig) IsEnabled() bool {
	return c.APIKey != ""
}

// ModelEndpoint returns the full endpoint for a given model
func (c *AIConfig) ModelEndpoint(model string) string {
	return c.BaseURL + "/" + model + ":generateContent"
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := getEnv(key, ""); v != "" {
		return v
	}
	return defaultValue
}
