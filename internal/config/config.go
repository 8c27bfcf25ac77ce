package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"biomark/internal/errors"

	"github.com/go-playground/validator/v10"
)

// Predictor backends selectable with PREDICTOR
const (
	PredictorRandom     = "random"
	PredictorDualBranch = "dualbranch"
	PredictorRemote     = "remote"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig
	Model     ModelConfig
	Session   SessionConfig
	Upload    UploadConfig
	Report    ReportConfig
	UI        UIConfig
	Profiling ProfilingConfig
	LogLevel  string `validate:"oneof=ERROR WARN INFO DEBUG TRACE"`
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string `validate:"required,numeric"`
	GinMode string `validate:"oneof=debug release test"`
}

// ModelConfig selects and configures the predictor
type ModelConfig struct {
	Predictor        string `validate:"oneof=random dualbranch remote"`
	WeightsPath      string
	RemoteURL        string `validate:"omitempty,url"`
	RemoteTimeout    time.Duration
	Seed             int64
	SimulatedLatency time.Duration `validate:"gte=0"`
}

// SessionConfig holds session lifetime and history settings
type SessionConfig struct {
	CookieName      string
	TTL             time.Duration `validate:"gt=0"`
	JanitorInterval time.Duration `validate:"gt=0"`
	MaxEvents       int           `validate:"gte=0"`
}

// UploadConfig bounds accepted image uploads
type UploadConfig struct {
	MaxBytes  int64 `validate:"gt=0"`
	MaxPixels int64 `validate:"gt=0"`
}

// ReportConfig holds export settings
type ReportConfig struct {
	PDFMaxPages int `validate:"gte=1,lte=50"`
}

// UIConfig holds presentation settings
type UIConfig struct {
	Title string
	Icon  string
}

// ProfilingConfig holds the ops listener settings
type ProfilingConfig struct {
	Port    string `validate:"omitempty,numeric"`
	Enabled bool
}

var validate = validator.New()

func loadUploadConfig() *UploadConfig {
	return &UploadConfig{
		MaxBytes:  int64(getEnvIntOrDefault("MAX_UPLOAD_BYTES", 20<<20)),
		MaxPixels: int64(getEnvIntOrDefault("MAX_UPLOAD_PIXELS", 64<<20)),
	}
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Server:    *loadServerConfig(),
		Model:     *loadModelConfig(),
		Session:   *loadSessionConfig(),
		Upload:    *loadUploadConfig(),
		Report:    ReportConfig{PDFMaxPages: getEnvIntOrDefault("PDF_MAX_PAGES", 3)},
		UI:        *loadUIConfig(),
		Profiling: *loadProfilingConfig(),
		LogLevel:  strings.ToUpper(getEnvOrDefault("LOG_LEVEL", "INFO")),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "debug"),
	}
}

func loadModelConfig() *ModelConfig {
	return &ModelConfig{
		Predictor:        strings.ToLower(getEnvOrDefault("PREDICTOR", PredictorRandom)),
		WeightsPath:      getEnvOrDefault("MODEL_WEIGHTS_PATH", "./models/weights.json"),
		RemoteURL:        getEnvOrDefault("PREDICTION_API_URL", ""),
		RemoteTimeout:    getEnvDurationOrDefault("PREDICTION_API_TIMEOUT", 30*time.Second),
		Seed:             int64(getEnvIntOrDefault("RANDOM_SEED", 0)),
		SimulatedLatency: getEnvDurationOrDefault("SIMULATED_LATENCY", 0),
	}
}

func loadSessionConfig() *SessionConfig {
	return &SessionConfig{
		CookieName:      getEnvOrDefault("SESSION_COOKIE", "biomark_session"),
		TTL:             getEnvDurationOrDefault("SESSION_TTL", 2*time.Hour),
		JanitorInterval: getEnvDurationOrDefault("SESSION_JANITOR_INTERVAL", time.Minute),
		MaxEvents:       getEnvIntOrDefault("HISTORY_MAX_EVENTS", 0),
	}
}

func loadUIConfig() *UIConfig {
	return &UIConfig{
		Title: getEnvOrDefault("APP_TITLE", "Biomarker Analysis Platform"),
		Icon:  getEnvOrDefault("APP_ICON", "🔬"),
	}
}

func loadProfilingConfig() *ProfilingConfig {
	return &ProfilingConfig{
		Port:    getEnvOrDefault("PPROF_PORT", "6060"),
		Enabled: getEnvBoolOrDefault("PPROF_ENABLED", false),
	}
}

func validateConfig(config *Config) error {
	if err := validate.Struct(config); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			first := verrs[0]
			return errors.ConfigInvalid(fmt.Sprintf("%s failed %q check (value %v)", first.Namespace(), first.Tag(), first.Value()))
		}
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}
	if config.Model.Predictor == PredictorRemote && config.Model.RemoteURL == "" {
		return errors.ConfigInvalid("PREDICTION_API_URL is required when PREDICTOR=remote")
	}
	if config.Profiling.Enabled && config.Profiling.Port == config.Server.Port {
		return errors.ConfigInvalid("PPROF_PORT must differ from PORT")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
