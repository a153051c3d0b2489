package env

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var Env map[string]string

func GetEnv(key, def string) string {
	// First check our loaded Env map
	if val, ok := Env[key]; ok {
		return val
	}
	// Fallback to OS environment variables (for Docker/tests)
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetInt returns the integer value of key or def when unset or malformed.
func GetInt(key string, def int) int {
	n, err := strconv.Atoi(GetEnv(key, ""))
	if err != nil {
		return def
	}
	return n
}

// GetBool returns true for "true", "1" or "yes".
func GetBool(key string, def bool) bool {
	switch GetEnv(key, "") {
	case "":
		return def
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// GetDuration parses key with time.ParseDuration, falling back to def.
func GetDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(GetEnv(key, ""))
	if err != nil {
		return def
	}
	return d
}

// SetupEnvFile loads the first .env file found. Unlike the OS environment it
// is optional: containers usually pass configuration directly.
func SetupEnvFile() {
	// Look for .env file in project root
	envFiles := []string{
		".env",          // Current directory
		"../../.env",    // From cmd/sermonario to project root
		"../../../.env", // Fallback for deeper nesting
	}

	var err error
	for _, envFile := range envFiles {
		Env, err = godotenv.Read(envFile)
		if err == nil {
			return
		}
	}
	Env = map[string]string{}
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
