package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/audiokeeper/internal/flagx"
	"github.com/dmitrijs2005/audiokeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Duration
// fields accept "30m" style strings or integer nanoseconds. Absent keys
// leave the corresponding Config field untouched.
type JsonConfig struct {
	DatabaseDSN                  *string         `json:"database_dsn"`
	SecretKey                    *string         `json:"secret_key"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	BcryptCost                   *int            `json:"bcrypt_cost"`
	StorageBackend               *string         `json:"storage_backend"`
	AudioUploadDir               *string         `json:"audio_upload_dir"`
	S3RootUser                   *string         `json:"s3_root_user"`
	S3RootPassword               *string         `json:"s3_root_password"`
	S3Bucket                     *string         `json:"s3_bucket"`
	S3Region                     *string         `json:"s3_region"`
	S3BaseEndpoint               *string         `json:"s3_base_endpoint"`
	YandexClientID               *string         `json:"yandex_client_id"`
	YandexClientSecret           *string         `json:"yandex_client_secret"`
	YandexRedirectURL            *string         `json:"yandex_redirect_url"`
	YandexAuthURL                *string         `json:"yandex_auth_url"`
	YandexTokenURL               *string         `json:"yandex_token_url"`
	YandexProfileURL             *string         `json:"yandex_profile_url"`
	LogLevel                     *string         `json:"log_level"`
	LogFormat                    *string         `json:"log_format"`
}

// parseJson loads configuration values from the JSON file named by the
// -c or -config flag. Without the flag nothing is loaded. An unreadable
// file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration != nil {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.BcryptCost != nil {
		config.BcryptCost = *c.BcryptCost
	}
	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.AudioUploadDir, c.AudioUploadDir)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.YandexClientID, c.YandexClientID)
	setString(&config.YandexClientSecret, c.YandexClientSecret)
	setString(&config.YandexRedirectURL, c.YandexRedirectURL)
	setString(&config.YandexAuthURL, c.YandexAuthURL)
	setString(&config.YandexTokenURL, c.YandexTokenURL)
	setString(&config.YandexProfileURL, c.YandexProfileURL)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
