package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ragqa/internal/config"
	"ragqa/internal/logging"
	"ragqa/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var cfgPath string
	var force bool
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/rag/config.yaml if not provided)")
	flag.BoolVar(&force, "force", false, "Rebuild the collection even if it already exists")
	flag.Parse()
	if extra := flag.Args(); len(extra) > 0 {
		return errors.New("usage: rag-index [--config=config.yaml] [--force]")
	}

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rag, err := service.FromConfig(ctx, cfg, logger, nil)
	if err != nil {
		logger.Error("assemble components", zap.Error(err))
		return err
	}
	defer func() {
		if err := rag.Close(); err != nil {
			logger.Warn("close", zap.Error(err))
		}
	}()

	report, err := rag.Open(ctx, force)
	if err != nil {
		logger.Error("ingest failed", zap.Error(err))
		return fmt.Errorf("ingest: %w", err)
	}
	if report.Skipped {
		fmt.Printf("collection %q already holds %d chunks; use -force to rebuild\n", cfg.Index.Collection, report.Chunks)
		return nil
	}
	fmt.Printf("indexed %d chunks from %d documents into %q\n", report.Chunks, report.Documents, cfg.Index.Collection)
	for _, f := range report.Failed {
		fmt.Printf("  failed: %s: %v\n", f.Source, f.Err)
	}
	return nil
}
