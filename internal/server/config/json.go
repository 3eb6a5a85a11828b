package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/parley/internal/flagx"
	"github.com/dmitrijs2005/parley/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept both
// "15m" strings and integer nanoseconds via timex.Duration. Pointer fields
// distinguish "absent" from an explicit zero/false.
type JsonConfig struct {
	EndpointAddrHTTP            string          `json:"endpoint_addr_http"`
	DatabaseDSN                 string          `json:"database_dsn"`
	SecretKey                   string          `json:"secret_key"`
	MessageKeySecret            string          `json:"message_key_secret"`
	AccessTokenValidityDuration *timex.Duration `json:"access_token_validity_duration"`
	S3RootUser                  string          `json:"s3_root_user"`
	S3RootPassword              string          `json:"s3_root_password"`
	S3Bucket                    string          `json:"s3_bucket"`
	S3Region                    string          `json:"s3_region"`
	S3BaseEndpoint              string          `json:"s3_base_endpoint"`
	MediaBackend                string          `json:"media_backend"`
	MediaDir                    string          `json:"media_dir"`
	MaxMediaSize                *int64          `json:"max_media_size"`
	EditWindow                  *timex.Duration `json:"edit_window"`
	RetainPlaintext             *bool           `json:"retain_plaintext"`
	LogBackend                  string          `json:"log_backend"`
	LogLevel                    string          `json:"log_level"`
	LoginMaxAttempts            *int            `json:"login_max_attempts"`
	LoginAttemptWindow          *timex.Duration `json:"login_attempt_window"`
}

// parseJson overlays values from the JSON file named by -c/-config onto
// config. Keys missing from the file leave the current value untouched.
// An unreadable or invalid file panics: the server must not start on a
// half-applied configuration.
func parseJson(config *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.MessageKeySecret, c.MessageKeySecret)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.MediaBackend, c.MediaBackend)
	setString(&config.MediaDir, c.MediaDir)
	setString(&config.LogBackend, c.LogBackend)
	setString(&config.LogLevel, c.LogLevel)

	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.EditWindow != nil {
		config.EditWindow = c.EditWindow.Duration
	}
	if c.LoginAttemptWindow != nil {
		config.LoginAttemptWindow = c.LoginAttemptWindow.Duration
	}
	if c.MaxMediaSize != nil {
		config.MaxMediaSize = *c.MaxMediaSize
	}
	if c.RetainPlaintext != nil {
		config.RetainPlaintext = *c.RetainPlaintext
	}
	if c.LoginMaxAttempts != nil {
		config.LoginMaxAttempts = *c.LoginMaxAttempts
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
