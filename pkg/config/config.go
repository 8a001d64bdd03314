// Package config loads server configuration from environment variables,
// following 12-factor conventions: every setting has a safe local-dev
// default, and ops overrides it with a plain env var.
package config

import "os"

// Config holds server configuration.
type Config struct {
	Port     string
	LogLevel string
	NodeEnv  string

	DBMode      string // "memory" | "postgres"
	DatabaseURL string

	QueueMode string // "memory" | "durable"
	RedisURL  string

	ToolMode string // "live" | "stub" — selects the oracle client wiring

	DemoMode          bool
	OfflineMode       bool
	OfflineHashDBPath string

	LegalRulesPath string
	CORSOrigins    []string
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	nodeEnv := os.Getenv("NODE_ENV")
	if nodeEnv == "" {
		nodeEnv = "development"
	}

	dbMode := os.Getenv("DB_MODE")
	if dbMode == "" {
		dbMode = "memory"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		// Default to local generic postgres
		dbURL = "postgres://cybertip@localhost:5432/cybertip?sslmode=disable"
	}

	queueMode := os.Getenv("QUEUE_MODE")
	if queueMode == "" {
		queueMode = "memory"
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	toolMode := os.Getenv("TOOL_MODE")
	if toolMode == "" {
		toolMode = "live"
	}

	legalRulesPath := os.Getenv("LEGAL_RULES_PATH")
	if legalRulesPath == "" {
		legalRulesPath = "legalrules/circuits.yaml"
	}

	return &Config{
		Port:     port,
		LogLevel: logLevel,
		NodeEnv:  nodeEnv,

		DBMode:      dbMode,
		DatabaseURL: dbURL,

		QueueMode: queueMode,
		RedisURL:  redisURL,

		ToolMode: toolMode,

		DemoMode:          os.Getenv("DEMO_MODE") == "true",
		OfflineMode:       os.Getenv("OFFLINE_MODE") == "true",
		OfflineHashDBPath: os.Getenv("OFFLINE_HASH_DB_PATH"),

		LegalRulesPath: legalRulesPath,
		CORSOrigins:    splitCSV(os.Getenv("CORS_ORIGINS")),
	}
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}
