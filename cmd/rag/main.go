package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ragqa/internal/config"
	"ragqa/internal/logging"
	"ragqa/internal/service"
	"ragqa/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var (
		cfgPath string
		ask     string
		force   bool
		timeout time.Duration
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/rag/config.yaml if not provided)")
	flag.StringVar(&ask, "ask", "", "Answer a single question and exit instead of opening the chat")
	flag.BoolVar(&force, "force", false, "Rebuild the index even if one exists")
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "Upper bound for answering one question")
	flag.Parse()

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
	if ask == "" && len(cfg.Log.OutputPaths) == 0 {
		// keep the terminal for the chat UI
		cfg.Log.OutputPaths = []string{"rag.log"}
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var reg prometheus.Registerer
	if cfg.Metrics.Addr != "" {
		r := prometheus.NewRegistry()
		reg = r
		go serveMetrics(cfg.Metrics.Addr, r, logger)
	}

	rag, err := service.FromConfig(ctx, cfg, logger, reg)
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
		logger.Error("index unavailable", zap.Error(err))
		return fmt.Errorf("index unavailable: %w", err)
	}

	if ask != "" {
		qctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		answer, err := rag.AskQuestion(qctx, ask)
		if err != nil {
			return err
		}
		fmt.Println(answer)
		return nil
	}

	header := fmt.Sprintf("%d chunks indexed in %s", report.Chunks, cfg.Index.Collection)
	if len(report.Failed) > 0 {
		header += fmt.Sprintf(" (%d sources failed)", len(report.Failed))
	}
	m := tui.New(ctx, rag, header, timeout)
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		logger.Error("tui stopped", zap.Error(err))
		return err
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server", zap.Error(err))
	}
}
