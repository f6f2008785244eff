package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"nutri-practice/internal/access"
	"nutri-practice/internal/agent"
	"nutri-practice/internal/chat"
	"nutri-practice/internal/config"
	"nutri-practice/internal/consultation"
	"nutri-practice/internal/platform/middleware"
	"nutri-practice/internal/platform/telegram"
	"nutri-practice/internal/portal"
	"nutri-practice/internal/record"
	"nutri-practice/internal/report"
	"nutri-practice/internal/storage"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "nutri",
		Short:        "Nutrition practice API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(recordsCmd())
	rootCmd.AddCommand(hashSecretCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openRepository(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*record.Repository, io.Closer, error) {
	store, closer, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return record.NewRepository(store, logger), closer, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cfg, newLogger(cfg))
		},
	}
}

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	ctx := context.Background()

	records, closer, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closer.Close()
	logger.Info().Str("driver", cfg.StoreDriver).Msg("store ready")

	if cfg.GeminiAPIKey == "" {
		logger.Warn().Msg("GEMINI_API_KEY is not set, analysis and chat requests will fail")
	}
	ai := agent.NewGeminiClient(agent.Config{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		Timeout: cfg.AITimeout,
	}, logger)

	renderer := report.NewRenderer(cfg.ReportFontPath)
	if _, err := renderer.FontPath(); err != nil {
		logger.Warn().Err(err).Msg("no report font found, PDF downloads will fail")
	}

	var reports consultation.ReportService
	if cfg.TelegramEnabled() {
		reports = report.NewService(renderer, telegram.NewClient(cfg.TelegramBotToken), cfg.TelegramChatID, logger)
	} else {
		logger.Info().Msg("telegram is not configured, saved plans will not be forwarded")
	}

	consultationSvc := consultation.NewService(records, ai, reports, logger)
	if err := consultationSvc.History().Refresh(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial history load failed")
	}

	if cfg.GeneratedJWTSecret {
		logger.Warn().Msg("JWT_SECRET is not set, using a per-process secret")
	}
	if cfg.ProfessionalSecret == "" {
		logger.Warn().Msg("PROFESSIONAL_SECRET_HASH is not set, professional login is disabled")
	}
	tokens := access.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	gate := access.NewGate(cfg.ProfessionalSecret, records, consultationSvc, tokens, access.NewLimiter(cfg.LoginRatePerMinute), logger)

	portalSvc := portal.NewService(records, ai, logger)
	chatSvc := chat.NewService(ai, logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		access.RegisterRoutes(r, access.NewHandler(gate))

		r.Group(func(r chi.Router) {
			r.Use(access.Authenticate(tokens))

			r.Group(func(r chi.Router) {
				r.Use(access.RequireRole(access.RoleProfessional))
				consultation.RegisterRoutes(r, consultation.NewHandler(consultationSvc))
				report.RegisterRoutes(r, report.NewHandler(renderer, records))
			})

			r.Group(func(r chi.Router) {
				r.Use(access.RequireRole(access.RolePatient))
				portal.RegisterRoutes(r, portal.NewHandler(portalSvc))
			})

			r.Group(func(r chi.Router) {
				r.Use(access.RequireRole(access.RoleProfessional, access.RolePatient))
				chat.RegisterRoutes(r, chat.NewHandler(chatSvc))
			})
		})
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
