package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/exec-dashboard/backend/internal/analysis/metrics"
	"github.com/zhouzirui/exec-dashboard/backend/internal/config"
	"github.com/zhouzirui/exec-dashboard/backend/internal/dataset"
	"github.com/zhouzirui/exec-dashboard/backend/internal/handler"
	"github.com/zhouzirui/exec-dashboard/backend/internal/model/querymode"
	"github.com/zhouzirui/exec-dashboard/backend/internal/service/ai"
	conversationservice "github.com/zhouzirui/exec-dashboard/backend/internal/service/conversation"
	insightservice "github.com/zhouzirui/exec-dashboard/backend/internal/service/insight"
	"github.com/zhouzirui/exec-dashboard/backend/internal/store/archive"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// The dashboard is useless without its datasets; refuse to start
	// when any workbook is missing or unreadable.
	manifest, err := loadManifest(cfg.Dataset)
	if err != nil {
		log.Fatalf("failed to load dataset manifest: %v", err)
	}
	data, err := dataset.Load(manifest)
	if err != nil {
		log.Fatalf("failed to load datasets: %v", err)
	}
	log.Printf("datasets loaded from %s", manifest.DataDir)

	calc := metrics.NewCalculator(data)
	insights := insightservice.NewService(calc, data)
	modeStore := querymode.NewMemoryStore(querymode.Seed())

	// Session archive is optional; without it sessions are in-memory only.
	var sessionStore conversationservice.Archive
	if cfg.Archive.Path != "" {
		store, err := archive.Open(cfg.Archive.Path)
		if err != nil {
			log.Printf("warning: failed to open session archive at %s: %v", cfg.Archive.Path, err)
			log.Println("continuing with in-memory sessions only")
		} else {
			defer store.Close()
			sessionStore = store
			log.Printf("session archive opened at %s", cfg.Archive.Path)
		}
	}

	sessions := conversationservice.NewService(cfg.Chat.MaxExchanges, sessionStore)
	if sessionStore != nil {
		restored, err := sessions.RestoreSessions(ctx)
		if err != nil {
			log.Printf("warning: failed to restore archived sessions: %v", err)
		} else if restored > 0 {
			log.Printf("restored %d archived sessions", restored)
		}
	}

	// Initialize AI service
	var aiService *ai.Service
	if cfg.AI.Enabled() {
		aiService, err = ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing with metrics-only answers - 请检查 LLM 相关环境变量")
		} else {
			log.Println("AI service initialized successfully")
		}
	} else {
		log.Println("LLM 凭证未配置，问答将使用本地指标回答")
	}

	router := handler.NewRouter(handler.Dependencies{
		Sessions:     sessions,
		Insights:     insights,
		Modes:        modeStore,
		Calculator:   calc,
		Datasets:     data,
		AI:           aiService,
		LiveInterval: cfg.Live.Interval,
	})

	startServer(ctx, cfg.Server, router)
}

func loadManifest(cfg config.DatasetConfig) (dataset.Manifest, error) {
	if cfg.ManifestPath != "" {
		return dataset.LoadManifest(cfg.ManifestPath)
	}
	return dataset.DefaultManifest(cfg.DataDir), nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Exec dashboard backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
