package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppEnv         string
	AppPort        string
	AllowedOrigins string
	DBPath         string
	DBMaxIdleConns int
	DBMaxOpenConns int
	NatsServerURL  string

	// Debounce windows for the canvas save writers. Positions coalesce into
	// one write per window; MaxWait bounds staleness while dragging continues.
	CardSaveDebounce       time.Duration
	ConnectionSaveDebounce time.Duration
	CanvasSaveMaxWait      time.Duration
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("%s not set, defaulting to %s", key, defaultValue)
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Invalid integer value for %s, defaulting to %d", key, defaultValue)
	}
	return defaultValue
}

func getEnvAsMillis(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultValue)) * time.Millisecond
}

func Load() Config {
	log.Println("Loading configuration...")

	return Config{
		AppEnv:                 getEnv("APP_ENV", "development"),
		AppPort:                getEnv("APP_PORT", "8080"),
		AllowedOrigins:         getEnv("ALLOWED_ORIGINS", "*"),
		DBPath:                 getEnv("DB_PATH", "marginalia.db"),
		DBMaxIdleConns:         getEnvAsInt("DB_MAX_IDLE_CONNS", 1),
		DBMaxOpenConns:         getEnvAsInt("DB_MAX_OPEN_CONNS", 1),
		NatsServerURL:          getEnv("NATS_SERVER_URL", "nats://localhost:4222"),
		CardSaveDebounce:       getEnvAsMillis("CARD_SAVE_DEBOUNCE_MS", 300),
		ConnectionSaveDebounce: getEnvAsMillis("CONNECTION_SAVE_DEBOUNCE_MS", 1000),
		CanvasSaveMaxWait:      getEnvAsMillis("CANVAS_SAVE_MAX_WAIT_MS", 1000),
	}
}
