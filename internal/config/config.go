package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	UseMemoryStore bool
	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool

	// Model providers
	ModelProvider         string
	OpenAIAPIKey          string
	OpenAIChatModel       string
	OpenAITranscribeModel string
	OpenAITTSModel        string
	OpenAITTSVoice        string
	OpenAIEmbeddingModel  string
	GeminiAPIKey          string
	GeminiChatModel       string
	GeminiTTSModel        string
	GeminiTTSVoice        string
	GeminiEmbeddingModel  string

	// Channels
	MetaVerifyToken  string
	MetaAppSecret    string
	MetaGraphBaseURL string
	ZAPIBaseURL      string
	ZAPIClientToken  string
	UAZAPIBaseURL    string

	// Pipeline tuning
	HistoryTokenBudget  int
	HistoryMessageLimit int
	KnowledgeTopK       int
	ModelTimeout        time.Duration
	ChannelTimeout      time.Duration
	MediaMaxBytes       int64
	DefaultLeadStatus   string
	TaskConcurrency     int
	TaskTimeout         time.Duration
	AgentCacheTTL       time.Duration

	// Per-IP webhook throttle; a zero rate disables it.
	WebhookRatePerSecond float64
	WebhookBurst         int

	// Synthesized reply archive
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	MediaArchiveBucket  string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first without overriding real variables.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		UseMemoryStore: getEnvAsBool("USE_MEMORY_STORE", false),
		RedisAddr:      getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),

		ModelProvider:         strings.ToLower(strings.TrimSpace(getEnv("MODEL_PROVIDER", "openai"))),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIChatModel:       getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		OpenAITranscribeModel: getEnv("OPENAI_TRANSCRIBE_MODEL", "whisper-1"),
		OpenAITTSModel:        getEnv("OPENAI_TTS_MODEL", "tts-1"),
		OpenAITTSVoice:        getEnv("OPENAI_TTS_VOICE", "alloy"),
		OpenAIEmbeddingModel:  getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiChatModel:       getEnv("GEMINI_CHAT_MODEL", "gemini-2.5-flash"),
		GeminiTTSModel:        getEnv("GEMINI_TTS_MODEL", "gemini-2.5-flash-preview-tts"),
		GeminiTTSVoice:        getEnv("GEMINI_TTS_VOICE", "Kore"),
		GeminiEmbeddingModel:  getEnv("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),

		MetaVerifyToken:  getEnv("META_VERIFY_TOKEN", ""),
		MetaAppSecret:    getEnv("META_APP_SECRET", ""),
		MetaGraphBaseURL: getEnv("META_GRAPH_BASE_URL", "https://graph.facebook.com/v21.0"),
		ZAPIBaseURL:      getEnv("ZAPI_BASE_URL", "https://api.z-api.io"),
		ZAPIClientToken:  getEnv("ZAPI_CLIENT_TOKEN", ""),
		UAZAPIBaseURL:    getEnv("UAZAPI_BASE_URL", ""),

		HistoryTokenBudget:  getEnvAsInt("HISTORY_TOKEN_BUDGET", 6000),
		HistoryMessageLimit: getEnvAsInt("HISTORY_MESSAGE_LIMIT", 60),
		KnowledgeTopK:       getEnvAsInt("KNOWLEDGE_TOP_K", 3),
		ModelTimeout:        getEnvAsDuration("MODEL_TIMEOUT", 45*time.Second),
		ChannelTimeout:      getEnvAsDuration("CHANNEL_TIMEOUT", 15*time.Second),
		MediaMaxBytes:       int64(getEnvAsInt("MEDIA_MAX_BYTES", 16<<20)),
		DefaultLeadStatus:   getEnv("DEFAULT_LEAD_STATUS", "new"),
		TaskConcurrency:     getEnvAsInt("TASK_CONCURRENCY", 32),
		TaskTimeout:         getEnvAsDuration("TASK_TIMEOUT", 2*time.Minute),
		AgentCacheTTL:       getEnvAsDuration("AGENT_CACHE_TTL", 5*time.Minute),

		WebhookRatePerSecond: getEnvAsFloat("WEBHOOK_RATE_PER_SECOND", 0),
		WebhookBurst:         getEnvAsInt("WEBHOOK_BURST", 50),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		MediaArchiveBucket:  getEnv("MEDIA_ARCHIVE_BUCKET", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
