package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kirillkom/docintel/internal/adapters/cli"
	"github.com/kirillkom/docintel/internal/bootstrap"
	"github.com/kirillkom/docintel/internal/config"
	"github.com/kirillkom/docintel/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	// stdout carries command output and the MCP protocol.
	logger := logging.NewJSONLoggerTo(os.Stderr, "docctl", cfg.LogLevel)

	load := func(ctx context.Context) (*cli.Services, func(), error) {
		app, err := bootstrap.New(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return &cli.Services{
			Ingest:            app.Ingest,
			Query:             app.Query,
			Documents:         app.Documents,
			Remover:           app.Documents,
			Index:             app.Index,
			AllowedExtensions: cfg.AllowedExtensions,
			MaxUploadBytes:    cfg.APIMaxUploadBytes,
			Logger:            logger,
		}, app.Close, nil
	}

	if err := cli.Execute(context.Background(), load); err != nil {
		fmt.Fprintln(os.Stderr, "docctl:", err)
		os.Exit(1)
	}
}
