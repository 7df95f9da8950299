package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/vaultsync/internal/flagx"
	"github.com/dmitrijs2005/vaultsync/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept
// strings such as "1m" or integer nanoseconds. Absent fields keep the value
// the Config already has.
type JsonConfig struct {
	EndpointAddrGRPC string         `json:"endpoint_addr_grpc"`
	EndpointAddrHTTP string         `json:"endpoint_addr_http"`
	StorageBackend   string         `json:"storage_backend"`
	DatabaseDSN      string         `json:"database_dsn"`
	SecretKey        string         `json:"secret_key"`
	AllowUndelete    *bool          `json:"allow_undelete"`
	RateLimitRPS     float64        `json:"rate_limit_rps"`
	RateLimitBurst   int            `json:"rate_limit_burst"`
	LimiterIdleTTL   timex.Duration `json:"limiter_idle_ttl"`
	CORSOrigins      []string       `json:"cors_origins"`
	LogFormat        string         `json:"log_format"`
	S3RootUser       string         `json:"s3_root_user"`
	S3RootPassword   string         `json:"s3_root_password"`
	S3Bucket         string         `json:"s3_bucket"`
	S3Region         string         `json:"s3_region"`
	S3BaseEndpoint   string         `json:"s3_base_endpoint"`
	PresignTTL       timex.Duration `json:"presign_ttl"`
}

// parseJson loads configuration values from the file named by -c or -config.
// Without either flag nothing is loaded. An unreadable file or invalid JSON
// panics, as the server cannot start with a half-read configuration.
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
	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if c.AllowUndelete != nil {
		config.AllowUndelete = *c.AllowUndelete
	}
	if c.RateLimitRPS > 0 {
		config.RateLimitRPS = c.RateLimitRPS
	}
	if c.RateLimitBurst > 0 {
		config.RateLimitBurst = c.RateLimitBurst
	}
	if c.LimiterIdleTTL.Duration > 0 {
		config.LimiterIdleTTL = c.LimiterIdleTTL.Duration
	}
	if len(c.CORSOrigins) > 0 {
		config.CORSOrigins = c.CORSOrigins
	}
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if c.PresignTTL.Duration > 0 {
		config.PresignTTL = c.PresignTTL.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
