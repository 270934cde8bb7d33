package config

import (
	"os"
)

// Backend selects which adapter set the client runs against.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRemote   = "remote"
)

type Config struct {
	Backend    string
	Locale     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	GatewayURL string
	GatewayWS  string
}

func Load() *Config {
	return &Config{
		Backend:    getEnv("CHATLINK_BACKEND", BackendMemory),
		Locale:     getEnv("CHATLINK_LOCALE", "en-US"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "chatlink"),
		DBPassword: getEnv("DB_PASSWORD", "chatlink_dev_password"),
		DBName:     getEnv("DB_NAME", "chatlink"),
		GatewayURL: getEnv("GATEWAY_URL", "http://localhost:8080"),
		GatewayWS:  getEnv("GATEWAY_WS", "ws://localhost:8080/ws"),
	}
}

func getEnv(key, fallback string) string {
	val, exists := os.LookupEnv(key)

	if exists {
		return val
	}

	return fallback
}
