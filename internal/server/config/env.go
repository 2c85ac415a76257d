package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// dotenvFile is loaded, if present, before the environment is read.
// Variables already set in the process environment win.
var dotenvFile = ".env"

// parseEnv overlays Config with environment variables. Integer durations
// follow the deployment convention: JWT_EXPIRE_MINUTES in minutes and
// JWT_REFRESH_EXPIRE_DAYS in days. A malformed number panics.
func parseEnv(config *Config) {
	if _, err := os.Stat(dotenvFile); err == nil {
		if err := godotenv.Load(dotenvFile); err != nil {
			panic(fmt.Errorf("load %s: %w", dotenvFile, err))
		}
	}

	lookupString("DATABASE_DSN", &config.DatabaseDSN)
	lookupString("JWT_SECRET", &config.SecretKey)
	lookupDuration("JWT_EXPIRE_MINUTES", time.Minute, &config.AccessTokenValidityDuration)
	lookupDuration("JWT_REFRESH_EXPIRE_DAYS", 24*time.Hour, &config.RefreshTokenValidityDuration)
	lookupInt("BCRYPT_COST", &config.BcryptCost)
	lookupString("STORAGE_BACKEND", &config.StorageBackend)
	lookupString("AUDIO_UPLOAD_DIR", &config.AudioUploadDir)
	lookupString("S3_ROOT_USER", &config.S3RootUser)
	lookupString("S3_ROOT_PASSWORD", &config.S3RootPassword)
	lookupString("S3_BUCKET", &config.S3Bucket)
	lookupString("S3_REGION", &config.S3Region)
	lookupString("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)
	lookupString("YANDEX_CLIENT_ID", &config.YandexClientID)
	lookupString("YANDEX_CLIENT_SECRET", &config.YandexClientSecret)
	lookupString("YANDEX_REDIRECT_URI", &config.YandexRedirectURL)
	lookupString("LOG_LEVEL", &config.LogLevel)
	lookupString("LOG_FORMAT", &config.LogFormat)
}

func lookupString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func lookupInt(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Errorf("%s: %w", key, err))
	}
	*dst = n
}

func lookupDuration(key string, unit time.Duration, dst *time.Duration) {
	n := -1
	lookupInt(key, &n)
	if n >= 0 {
		*dst = time.Duration(n) * unit
	}
}
