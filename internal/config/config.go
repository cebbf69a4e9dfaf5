package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Mode              string
	Port              string
	Environment       string
	AdminEmail        string
	AuthMode          string
	JWTSecret         string
	JWTTTL            time.Duration
	SeedSpots         bool
	GateControllerURL string
	GateSignalRetries int
	TelemetryEnabled  bool
	OTelServiceName   string
	OTelEndpoint      string
}

// Load reads an optional .env file from the working directory and then
// builds the configuration from the environment. Values already present in
// the environment win over the file.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Mode:              envOr("APP_MODE", "server"),
		Port:              envOr("APP_PORT", "5000"),
		Environment:       envOr("APP_ENV", "development"),
		AdminEmail:        envOr("ADMIN_EMAIL", "nareshs@student.tce.edu"),
		AuthMode:          strings.ToLower(envOr("AUTH_MODE", "static")),
		JWTSecret:         envOr("JWT_SECRET", "change-me-in-production"),
		JWTTTL:            time.Duration(envOrInt("JWT_TTL_HOURS", 24)) * time.Hour,
		SeedSpots:         envOrBool("SEED_SPOTS", true),
		GateControllerURL: os.Getenv("GATE_CONTROLLER_URL"),
		GateSignalRetries: envOrInt("GATE_SIGNAL_RETRIES", 3),
		TelemetryEnabled:  envOrBool("TELEMETRY_ENABLED", true),
		OTelServiceName:   envOr("OTEL_SERVICE_NAME", "parking-spots-service"),
		OTelEndpoint:      envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envOrBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
