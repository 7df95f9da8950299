package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string    gRPC bind address (e.g., ":50051")
//	-l string    HTTP bind address (e.g., ":8080")
//	-m string    storage backend: postgres, sqlite, bolt, memory
//	-d string    database DSN or file path
//	-s string    JWT HMAC secret key
//	-undelete    allow reviving tombstones
//	-q float     rate limit, requests per second per user
//	-w int       rate limit burst
//	-i int       limiter idle TTL, minutes
//	-o string    comma separated CORS origins
//	-f string    log format: slog or zap
//	-u string    S3 root user
//	-p string    S3 root password
//	-b string    S3 bucket name
//	-g string    S3 region
//	-e string    S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-t int       presigned URL lifetime, minutes
//
// os.Args is first filtered with flagx so that -c/-config and unknown flags
// do not break parsing.
func parseFlags(config *Config) {
	args := flagx.FilterArgsWithBools(os.Args[1:],
		[]string{"-a", "-l", "-m", "-d", "-s", "-q", "-w", "-i", "-o", "-f", "-u", "-p", "-b", "-g", "-e", "-t"},
		[]string{"-undelete"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run gRPC server")
	fs.StringVar(&config.EndpointAddrHTTP, "l", config.EndpointAddrHTTP, "address and port to run HTTP server")
	fs.StringVar(&config.StorageBackend, "m", config.StorageBackend, "storage backend")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.BoolVar(&config.AllowUndelete, "undelete", config.AllowUndelete, "allow reviving deleted records")
	fs.Float64Var(&config.RateLimitRPS, "q", config.RateLimitRPS, "rate limit (requests per second per user)")
	fs.IntVar(&config.RateLimitBurst, "w", config.RateLimitBurst, "rate limit burst")
	limiterIdleTTL := fs.Int("i", int(config.LimiterIdleTTL.Minutes()), "limiter idle ttl (in minutes)")
	corsOrigins := fs.String("o", "", "comma separated CORS origins")
	fs.StringVar(&config.LogFormat, "f", config.LogFormat, "log format (slog or zap)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	presignTTL := fs.Int("t", int(config.PresignTTL.Minutes()), "presigned url ttl (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.LimiterIdleTTL = time.Duration(*limiterIdleTTL) * time.Minute
	config.PresignTTL = time.Duration(*presignTTL) * time.Minute
	if *corsOrigins != "" {
		config.CORSOrigins = splitList(*corsOrigins)
	}
}
