package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kbdesk/backend/internal/api"
	"github.com/kbdesk/backend/internal/backend"
	"github.com/kbdesk/backend/internal/chat"
	"github.com/kbdesk/backend/internal/config"
	"github.com/kbdesk/backend/internal/logging"
	"github.com/kbdesk/backend/internal/models"
	"github.com/kbdesk/backend/internal/storage"
	"github.com/kbdesk/backend/internal/upload"
	"github.com/kbdesk/backend/internal/watch"
	"github.com/kbdesk/backend/internal/web"
	"github.com/kbdesk/backend/internal/widget"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to kbdesk.yaml (default: next to the executable)")
	flag.Parse()

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if *configPath == "" {
		exePath, err := os.Executable()
		if err != nil {
			fmt.Printf("Failed to get executable path: %v\n", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(exePath), "kbdesk.yaml")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Advanced.LogLevel, cfg.Advanced.PrettyLogs)

	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatal().Err(err).Msg("failed to create directories")
	}

	spool, err := storage.NewLocalStore(cfg.Storage.SpoolDirectory)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize spool storage")
	}
	if n, err := spool.CleanupOlderThan(0); err != nil {
		log.Warn().Err(err).Msg("failed to clear spool directory")
	} else if n > 0 {
		log.Info().Int("files", n).Msg("removed spool files from a previous run")
	}

	client := backend.NewClient(cfg.Backend.URL, cfg.BackendTimeout())

	relay := chat.NewRelay(client, chat.Options{
		CopyFeedback:  cfg.CopyFeedback(),
		KnowledgeBase: cfg.Backend.KnowledgeBase,
	})
	defer relay.Close()

	w := widget.New(client, widget.Options{
		NoticeTTL: cfg.NoticeTTL(),
		// The backend loads a freshly built knowledge base straight away.
		OnSubmitted: func(res models.RebuildResult) {
			relay.Remember(res.DBName)
		},
	})
	defer w.Close()

	jobs := upload.NewManager(w)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runCleanup(ctx, cfg, spool, jobs)

	if dir := cfg.Storage.WatchDirectory; dir != "" {
		inbox, err := watch.NewInbox(dir, w, cfg.WatchSettle())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create inbox watcher")
		}
		defer inbox.Stop()
		go func() {
			if err := inbox.Run(ctx); err != nil {
				log.Error().Err(err).Str("dir", dir).Msg("[watch] inbox watcher stopped")
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	api.SetupMiddleware(e, api.MiddlewareConfig{
		EnableCORS:     cfg.Server.EnableCORS,
		AllowOrigins:   api.SplitOrigins(cfg.Server.AllowOrigins),
		BodyLimit:      cfg.Server.BodyLimit,
		RequestLogging: cfg.Advanced.EnableRequestLogging,
	})

	handlers := api.NewHandlers(&api.Dependencies{
		Widget:         w,
		Relay:          relay,
		Jobs:           jobs,
		Spool:          spool,
		Backend:        client,
		Version:        Version,
		WSMaxMessageKB: cfg.Advanced.WebSocketMaxMessageSize,
	})
	api.RegisterRoutes(e, handlers)
	api.RegisterWebSocketRoutes(e, handlers)

	embeddedMode := web.HasEmbeddedFiles()
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			log.Warn().Err(err).Msg("failed to register static routes")
		}
	}

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(*configPath, cfg, embeddedMode)

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
	jobs.Wait()
}

// runCleanup sweeps abandoned spool files and finished jobs.
func runCleanup(ctx context.Context, cfg *config.AppConfig, spool *storage.LocalStore, jobs *upload.Manager) {
	interval := cfg.CleanupInterval()
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			jobs.CleanupOldJobs(time.Hour)
			if n, err := spool.CleanupOlderThan(cfg.SpoolMaxAge()); err != nil {
				log.Warn().Err(err).Msg("spool cleanup failed")
			} else if n > 0 {
				log.Info().Int("files", n).Msg("removed abandoned spool files")
			}
		}
	}
}

func printBanner(configPath string, cfg *config.AppConfig, embeddedMode bool) {
	mode := "API only"
	if embeddedMode {
		mode = "Embedded front end"
	}
	watchDir := cfg.Storage.WatchDirectory
	if watchDir == "" {
		watchDir = "(disabled)"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           kbdesk Knowledge Base Companion                 ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Backend:   %-46s║\n", cfg.Backend.URL)
	fmt.Printf("║  Inbox:     %-46s║\n", watchDir)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	if embeddedMode {
		fmt.Printf("Open http://localhost:%d in your browser\n\n", cfg.Server.Port)
	}
}
