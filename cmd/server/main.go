// Command server runs the Student Data Vault HTTP API.
//
// Configuration is read from configs/config.<SDV_ENV>.yaml and SDV_*
// environment variables; a .env file in the working directory is loaded
// first when present.
package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/sakif/student-data-vault/internal/config"
	"github.com/sakif/student-data-vault/internal/logger"
	"github.com/sakif/student-data-vault/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not load .env file", slog.String("error", err.Error()))
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New(cfg.Env, cfg.Log.Format, cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.Crypto.EmailKey == config.DevEmailKey && cfg.Env != "local" {
		log.Warn("crypto.email_key is the development default; set SDV_CRYPTO_EMAIL_KEY")
	}

	srv, err := server.New(cfg, log)
	if err != nil {
		log.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		log.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
