package config

import (
	"errors"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey       string
	ChatModel          string
	DatabaseDriver     string
	DatabaseURL        string
	HTTPPort           string
	LogLevel           string
	MacroRatePerMinute int
	FoodAliasesFile    string
	HistoryLimit       int
}

var AppConfig Config

var ErrMissingAPIKey = errors.New("GEMINI_API_KEY environment variable is required")

// Load reads .env (if present) and the environment into AppConfig.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := Config{
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		ChatModel:          getEnv("CHAT_MODEL", "gemini-1.5-flash-latest"),
		DatabaseDriver:     getEnv("DATABASE_DRIVER", "sqlite3"),
		DatabaseURL:        getEnv("DATABASE_URL", "mealplan.db"),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		MacroRatePerMinute: getEnvAsInt("MACRO_RATE_PER_MINUTE", 30),
		FoodAliasesFile:    getEnv("FOOD_ALIASES_FILE", ""),
		HistoryLimit:       getEnvAsInt("HISTORY_LIMIT", 6),
	}

	if cfg.DatabaseDriver != "sqlite3" && cfg.DatabaseDriver != "sqlite" {
		log.Printf("Unknown DATABASE_DRIVER %q, falling back to sqlite3", cfg.DatabaseDriver)
		cfg.DatabaseDriver = "sqlite3"
	}

	AppConfig = cfg
	if cfg.GeminiAPIKey == "" {
		return cfg, ErrMissingAPIKey
	}
	return cfg, nil
}

// LoadConfig is Load for process start-up: a missing key is fatal.
func LoadConfig() {
	if _, err := Load(); err != nil {
		log.Fatal(err)
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil && value > 0 {
		return value
	}
	return defaultValue
}
