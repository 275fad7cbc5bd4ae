package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/imrenagi/go-drive-upload/config"
	"github.com/imrenagi/go-drive-upload/server"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	_ = server.InitializeLogger(cfg.Telemetry.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := server.New(server.Opts{Config: cfg})
	if err := server.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to run the server")
	}
}
