package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/wellkeeper/internal/flagx"
	"github.com/dmitrijs2005/wellkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "15m" and integer nanoseconds are accepted.
// Absent or zero-valued fields leave the corresponding Config value alone.
type JsonConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                  string         `json:"database_dsn"`
	LogLevel                     string         `json:"log_level"`
	AccessTokenSecret            string         `json:"access_token_secret"`
	RefreshTokenSecret           string         `json:"refresh_token_secret"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	BcryptCost                   int            `json:"bcrypt_cost"`
	AppleClientID                string         `json:"apple_client_id"`
	AppleKeysURL                 string         `json:"apple_keys_url"`
	GoogleIOSClientID            string         `json:"google_ios_client_id"`
	GoogleAndroidClientID        string         `json:"google_android_client_id"`
	GoogleWebClientID            string         `json:"google_web_client_id"`
	GoogleTokenInfoURL           string         `json:"google_tokeninfo_url"`
	WebhookSecret                string         `json:"webhook_secret"`
	GatewayBaseURL               string         `json:"gateway_base_url"`
	GatewayAPIKey                string         `json:"gateway_api_key"`
	RedisAddr                    string         `json:"redis_addr"`
	ResetRequestLimit            int            `json:"reset_request_limit"`
	ResetRequestWindow           timex.Duration `json:"reset_request_window"`
	PasswordResetURL             string         `json:"password_reset_url"`
	MailFrom                     string         `json:"mail_from"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
}

// parseJson loads the file named by -c/-config (if any) over config.
// An unreadable file or invalid JSON panics, as does a bad flag.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
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

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.AccessTokenSecret, c.AccessTokenSecret)
	setString(&config.RefreshTokenSecret, c.RefreshTokenSecret)
	if c.AccessTokenValidityDuration.Duration > 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration > 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.BcryptCost > 0 {
		config.BcryptCost = c.BcryptCost
	}
	setString(&config.AppleClientID, c.AppleClientID)
	setString(&config.AppleKeysURL, c.AppleKeysURL)
	setString(&config.GoogleIOSClientID, c.GoogleIOSClientID)
	setString(&config.GoogleAndroidClientID, c.GoogleAndroidClientID)
	setString(&config.GoogleWebClientID, c.GoogleWebClientID)
	setString(&config.GoogleTokenInfoURL, c.GoogleTokenInfoURL)
	setString(&config.WebhookSecret, c.WebhookSecret)
	setString(&config.GatewayBaseURL, c.GatewayBaseURL)
	setString(&config.GatewayAPIKey, c.GatewayAPIKey)
	setString(&config.RedisAddr, c.RedisAddr)
	if c.ResetRequestLimit > 0 {
		config.ResetRequestLimit = c.ResetRequestLimit
	}
	if c.ResetRequestWindow.Duration > 0 {
		config.ResetRequestWindow = c.ResetRequestWindow.Duration
	}
	setString(&config.PasswordResetURL, c.PasswordResetURL)
	setString(&config.MailFrom, c.MailFrom)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
