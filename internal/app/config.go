package app

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment names recognized by Config.Environment.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

type Config struct {
	Environment string
	LogLevel    string

	RedisURL string

	// Orchestration knobs.
	ConsensusThreshold float64
	MaxModels          int
	TimeoutSeconds     int
	CacheTTLSeconds    int

	// Budgets and admission.
	DailyBudgetUSD        float64
	RateLimit             int
	RateWindowSeconds     int
	BackpressureThreshold int

	PolicyFile string
	AuditDB    string // empty keeps the audit trail in memory

	// Provider credentials. Empty disables the provider outside development.
	OpenAIKey    string
	AnthropicKey string
	DeepSeekKey  string
	GroqKey      string
	MistralKey   string
	GoogleKey    string
	TogetherKey  string

	// OpenTelemetry tracing.
	OTelEnabled  bool
	OTelEndpoint string
	OTelService  string
}

// LoadConfig reads configuration from the environment. A .env file in the
// working directory is loaded first when present; explicit environment
// variables take precedence over it.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment: getEnv("NEXUS_ENVIRONMENT", EnvDevelopment),
		LogLevel:    getEnv("NEXUS_LOG_LEVEL", "info"),

		RedisURL: getEnv("NEXUS_REDIS_URL", "redis://localhost:6379/0"),

		ConsensusThreshold: getEnvFloat("NEXUS_CONSENSUS_THRESHOLD", 0.75),
		MaxModels:          getEnvInt("NEXUS_MAX_MODELS", 5),
		TimeoutSeconds:     getEnvInt("NEXUS_TIMEOUT_SECONDS", 120),
		CacheTTLSeconds:    getEnvInt("NEXUS_CACHE_TTL_SECONDS", 3600),

		DailyBudgetUSD:        getEnvFloat("NEXUS_DAILY_BUDGET_USD", 10000),
		RateLimit:             getEnvInt("NEXUS_RATE_LIMIT", 60),
		RateWindowSeconds:     getEnvInt("NEXUS_RATE_WINDOW_SECONDS", 60),
		BackpressureThreshold: getEnvInt("NEXUS_BACKPRESSURE_THRESHOLD", 1000),

		PolicyFile: getEnv("NEXUS_POLICY_FILE", "config/policies.yaml"),
		AuditDB:    getEnv("NEXUS_AUDIT_DB", ""),

		OpenAIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicKey: getEnv("ANTHROPIC_API_KEY", ""),
		DeepSeekKey:  getEnv("DEEPSEEK_API_KEY", ""),
		GroqKey:      getEnv("GROQ_API_KEY", ""),
		MistralKey:   getEnv("MISTRAL_API_KEY", ""),
		GoogleKey:    getEnv("GOOGLE_API_KEY", ""),
		TogetherKey:  getEnv("TOGETHER_API_KEY", ""),

		OTelEnabled:  getEnvBool("NEXUS_OTEL_ENABLED", false),
		OTelEndpoint: getEnv("NEXUS_OTEL_ENDPOINT", "localhost:4318"),
		OTelService:  getEnv("NEXUS_OTEL_SERVICE", "nexus"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks config values for obviously invalid settings.
func (c Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return fmt.Errorf("NEXUS_ENVIRONMENT must be development, staging or production, got %q", c.Environment)
	}
	if c.ConsensusThreshold < 0 || c.ConsensusThreshold > 1 {
		return fmt.Errorf("NEXUS_CONSENSUS_THRESHOLD must be in [0,1], got %f", c.ConsensusThreshold)
	}
	if c.MaxModels < 1 {
		return fmt.Errorf("NEXUS_MAX_MODELS must be >= 1, got %d", c.MaxModels)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("NEXUS_TIMEOUT_SECONDS must be > 0, got %d", c.TimeoutSeconds)
	}
	if c.CacheTTLSeconds < 0 {
		return fmt.Errorf("NEXUS_CACHE_TTL_SECONDS must be >= 0, got %d", c.CacheTTLSeconds)
	}
	if c.DailyBudgetUSD < 0 {
		return fmt.Errorf("NEXUS_DAILY_BUDGET_USD must be >= 0, got %f", c.DailyBudgetUSD)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("NEXUS_RATE_LIMIT must be >= 0, got %d", c.RateLimit)
	}
	if c.RateWindowSeconds <= 0 {
		return fmt.Errorf("NEXUS_RATE_WINDOW_SECONDS must be > 0, got %d", c.RateWindowSeconds)
	}
	if c.BackpressureThreshold <= 0 {
		return fmt.Errorf("NEXUS_BACKPRESSURE_THRESHOLD must be > 0, got %d", c.BackpressureThreshold)
	}
	return nil
}

// IsDevelopment reports whether the gateway runs in development mode, where
// every provider is treated as available regardless of credentials.
func (c Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// CredentialFor returns the configured API key for a provider name.
func (c Config) CredentialFor(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAIKey
	case "anthropic":
		return c.AnthropicKey
	case "deepseek":
		return c.DeepSeekKey
	case "groq":
		return c.GroqKey
	case "mistral":
		return c.MistralKey
	case "google":
		return c.GoogleKey
	case "together":
		return c.TogetherKey
	default:
		return ""
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}
