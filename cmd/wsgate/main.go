// Command wsgate is the gateway entry point: it loads configuration,
// wires structured logging, and runs the listener/Redis/fan-out pipeline
// until a termination signal arrives, following the shape of
// alanyoungcy-polymarketbot's cmd/polybot/main.go.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pepnova/wsgate/internal/config"
	"github.com/pepnova/wsgate/internal/gateway"
	"github.com/pepnova/wsgate/internal/tlsconfig"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to load config", "error", err.Error())
		os.Exit(1)
	}

	logWriter, err := openLogPath(cfg.LogPath)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to open log path", "error", err.Error())
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(logWriter, nil))
	slog.SetDefault(logger)

	opt := gateway.Options{
		BindAddr:  cfg.BindAddr(),
		RedisAddr: cfg.RedisAddr(),
	}
	if cfg.UseSSL {
		tlsCfg, err := tlsconfig.Build(tlsconfig.Options{
			CertificateChainPath: cfg.SSLCertificateChain,
			PrivateKeyPath:       cfg.SSLPrivateKey,
			DHParamsPath:         cfg.SSLDHParams,
			Ciphers:              cfg.SSLCiphers,
		})
		if err != nil {
			logger.Error("failed to build TLS config", "error", err.Error())
			os.Exit(1)
		}
		opt.TLSConfig = tlsCfg
	}

	gw := gateway.New(opt, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("wsgate starting", "bind", opt.BindAddr, "redis", opt.RedisAddr, "tls", cfg.UseSSL)
	if err := gw.Run(ctx); err != nil {
		logger.Error("gateway exited with error", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("wsgate stopped")
}

// openLogPath resolves the --log flag's file path (spec §6), special-casing
// the two standard-stream device paths the default and common overrides use
// rather than actually opening /dev/stdout or /dev/stderr as a file.
func openLogPath(path string) (io.Writer, error) {
	switch path {
	case "/dev/stderr", "":
		return os.Stderr, nil
	case "/dev/stdout":
		return os.Stdout, nil
	default:
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		return f, nil
	}
}
