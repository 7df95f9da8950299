package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "VAULTSYNC_"

// envFile is the dotenv file merged into the environment before parsing,
// unless VAULTSYNC_ENV_FILE names another one. Variables already set in the
// process environment win.
const envFile = ".env"

// parseEnv overlays VAULTSYNC_* variables. A missing .env file is fine;
// malformed values panic like malformed flags do.
func parseEnv(config *Config) {
	path := envFile
	if p := os.Getenv(EnvPrefix + "ENV_FILE"); p != "" {
		path = p
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(fmt.Errorf("load %s: %w", path, err))
	}

	envString(&config.EndpointAddrGRPC, "GRPC_ADDR")
	envString(&config.EndpointAddrHTTP, "HTTP_ADDR")
	envString(&config.StorageBackend, "STORAGE")
	envString(&config.DatabaseDSN, "DATABASE_DSN")
	envString(&config.SecretKey, "SECRET_KEY")
	envString(&config.LogFormat, "LOG_FORMAT")
	envString(&config.S3RootUser, "S3_ROOT_USER")
	envString(&config.S3RootPassword, "S3_ROOT_PASSWORD")
	envString(&config.S3Bucket, "S3_BUCKET")
	envString(&config.S3Region, "S3_REGION")
	envString(&config.S3BaseEndpoint, "S3_BASE_ENDPOINT")

	if v, ok := lookup("ALLOW_UNDELETE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			panic(fmt.Errorf("%sALLOW_UNDELETE: %w", EnvPrefix, err))
		}
		config.AllowUndelete = b
	}
	if v, ok := lookup("RATE_LIMIT_RPS"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			panic(fmt.Errorf("%sRATE_LIMIT_RPS: %w", EnvPrefix, err))
		}
		config.RateLimitRPS = f
	}
	if v, ok := lookup("RATE_LIMIT_BURST"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			panic(fmt.Errorf("%sRATE_LIMIT_BURST: %w", EnvPrefix, err))
		}
		config.RateLimitBurst = n
	}
	envDuration(&config.LimiterIdleTTL, "LIMITER_IDLE_TTL")
	envDuration(&config.PresignTTL, "PRESIGN_TTL")
	if v, ok := lookup("CORS_ORIGINS"); ok {
		config.CORSOrigins = splitList(v)
	}
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func envString(dst *string, name string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

func envDuration(dst *time.Duration, name string) {
	if v, ok := lookup(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			panic(fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
		}
		*dst = d
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
