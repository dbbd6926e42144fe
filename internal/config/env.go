package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const envPrefix = "FUNDSCOPE_"

// LoadEnvFile loads a .env file if present; a missing file is not an error.
func LoadEnvFile(path string) {
	if path == "" {
		path = ".env"
	}
	_ = godotenv.Load(path)
}

// applyEnv overrides secrets and endpoints from the environment so they
// never have to live in the config file.
func applyEnv(c *Config) {
	c.Database.Host = getString("DB_HOST", c.Database.Host)
	c.Database.Port = getInt("DB_PORT", c.Database.Port)
	c.Database.User = getString("DB_USER", c.Database.User)
	c.Database.Password = getString("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getString("DB_NAME", c.Database.DBName)

	c.Redis.Addr = getString("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getString("REDIS_PASSWORD", c.Redis.Password)

	c.Logging.Level = getString("LOG_LEVEL", c.Logging.Level)
}

func getString(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue
	}
	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}
	return defaultValue
}
