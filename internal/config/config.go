// Package config loads gateway configuration from CLI flags and
// environment variables, following the env-first layering of
// branched-services-go-gas's internal/config, plus godotenv so a local
// .env file can populate the environment during development.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// defaultSSLCiphers is spec §6's documented --ssl_ciphers default.
const defaultSSLCiphers = "ECDHE-RSA-AES256-GCM-SHA384:ECDHE-RSA-AES256-SHA384:ECDHE-RSA-AES128-GCM-SHA256:ECDHE-RSA-AES128-SHA256:ECDHE-RSA-AES256-SHA:DHE-RSA-AES256-SHA"

// Config holds everything the gateway needs to bind, talk to Redis, and
// optionally terminate TLS (spec §2, §9).
type Config struct {
	BindHost string
	BindPort int

	RedisHost string
	RedisPort int

	// LogPath is where structured log output is written (spec §6's --log
	// flag: "Log file path"). "/dev/stdout" and "/dev/stderr" are handled
	// specially rather than opened as regular files.
	LogPath string

	UseSSL              bool
	SSLCertificateChain string
	SSLPrivateKey       string
	SSLDHParams         string
	SSLCiphers          string
}

// Load parses CLI flags, falling back to environment variables (and a
// .env file, if present) for anything not given on the command line.
// Flags take precedence, matching the original's getopt-over-environment
// precedence (original_source's server startup).
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("wsgate", flag.ContinueOnError)
	bindHost := fs.String("bind_host", envOrDefault("WSGATE_BIND_HOST", "0.0.0.0"), "address to listen on")
	bindPort := fs.Int("bind_port", envIntOrDefault("WSGATE_BIND_PORT", 9999), "port to listen on")
	redisHost := fs.String("redis_host", envOrDefault("WSGATE_REDIS_HOST", "127.0.0.1"), "Redis server host")
	redisPort := fs.Int("redis_port", envIntOrDefault("WSGATE_REDIS_PORT", 6379), "Redis server port")
	logPath := fs.String("log", envOrDefault("WSGATE_LOG", "/dev/stderr"), "log file path")
	useSSL := fs.Bool("use_ssl", envBoolOrDefault("WSGATE_USE_SSL", false), "terminate TLS on the listening socket")
	sslChain := fs.String("ssl_certificate_chain", os.Getenv("WSGATE_SSL_CERTIFICATE_CHAIN"), "path to PEM certificate chain")
	sslKey := fs.String("ssl_private_key", os.Getenv("WSGATE_SSL_PRIVATE_KEY"), "path to PEM private key")
	sslDHParams := fs.String("ssl_dh_params", os.Getenv("WSGATE_SSL_DH_PARAMS"), "path to DH parameters (accepted, unused; see DESIGN.md)")
	sslCiphers := fs.String("ssl_ciphers", envOrDefault("WSGATE_SSL_CIPHERS", defaultSSLCiphers), "colon-separated OpenSSL cipher list")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{
		BindHost:            *bindHost,
		BindPort:            *bindPort,
		RedisHost:           *redisHost,
		RedisPort:           *redisPort,
		LogPath:             *logPath,
		UseSSL:              *useSSL,
		SSLCertificateChain: *sslChain,
		SSLPrivateKey:       *sslKey,
		SSLDHParams:         *sslDHParams,
		SSLCiphers:          *sslCiphers,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.BindPort < 0 || c.BindPort > 65535 {
		return errors.New("bind_port must be between 0 and 65535")
	}
	if c.RedisPort < 1 || c.RedisPort > 65535 {
		return errors.New("redis_port must be between 1 and 65535")
	}
	if c.UseSSL {
		if c.SSLCertificateChain == "" || c.SSLPrivateKey == "" {
			return errors.New("use_ssl requires ssl_certificate_chain and ssl_private_key")
		}
	}
	return nil
}

// RedisAddr returns the host:port pair go-redis expects.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// BindAddr returns the host:port pair net.Listen expects.
func (c *Config) BindAddr() string {
	return fmt.Sprintf("%s:%d", c.BindHost, c.BindPort)
}

func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func envBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
