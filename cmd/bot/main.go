// Command bot runs the conversation engine: it terminates the messaging
// gateway webhook, drives the per-user state machine, escalates to
// counsellors, and serves the admin API.
//
// Startup order:
//  1. Load .env (optional) and environment configuration
//  2. Configure zerolog (level, pretty/dev output)
//  3. Open SQLite and run migrations
//  4. Load the route table and question set; start the route watcher
//  5. Wire services (delivery, roster, tickets, escalation, sessions)
//  6. Optionally install the OTel trace pipeline
//  7. Serve HTTP with graceful shutdown on SIGINT/SIGTERM
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/awaa-health/go-counsel-backend/internal/ai"
	"github.com/awaa-health/go-counsel-backend/internal/chatapp"
	"github.com/awaa-health/go-counsel-backend/internal/config"
	"github.com/awaa-health/go-counsel-backend/internal/delivery"
	httpapi "github.com/awaa-health/go-counsel-backend/internal/http"
	"github.com/awaa-health/go-counsel-backend/internal/intent"
	"github.com/awaa-health/go-counsel-backend/internal/language"
	"github.com/awaa-health/go-counsel-backend/internal/observability"
	"github.com/awaa-health/go-counsel-backend/internal/questions"
	"github.com/awaa-health/go-counsel-backend/internal/repo"
	"github.com/awaa-health/go-counsel-backend/internal/services"
	"github.com/awaa-health/go-counsel-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Info().Str("version", version).Str("mode", cfg.Mode).Msg("starting conversation engine")
	if cfg.AdminToken == "" {
		log.Warn().Msg("ADMIN_API_TOKEN is not set; the admin API is locked")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	mode, err := services.ParseMode(cfg.Mode)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid mode")
	}

	// Route table: file-backed with hot reload on edits.
	if cfg.RoutesPath == "" {
		log.Fatal().Msg("ROUTES_PATH must point at a route table")
	}
	routes, err := delivery.LoadTable(cfg.RoutesPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.RoutesPath).Msg("route table load failed")
	}
	if err := routes.Watch(ctx); err != nil {
		log.Fatal().Err(err).Msg("route table watcher failed")
	}
	log.Info().Strs("routes", routes.Names()).Msg("route table loaded")

	qs := questions.Default()
	if cfg.QuestionsPath != "" {
		qs, err = questions.Load(cfg.QuestionsPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.QuestionsPath).Msg("question set load failed")
		}
	}

	sender := delivery.NewSender(routes)
	sender.MaxRetries = cfg.Retry.MaxRetries
	sender.BaseDelay = cfg.Retry.BaseDelay
	sender.MaxDelay = cfg.Retry.MaxDelay
	sender.Factor = cfg.Retry.Factor
	botSender := delivery.NewPersistingSender(sender, db, cfg.BotID)

	var chatClient chatapp.Client
	if cfg.ChatApp.URL != "" {
		chatClient = chatapp.NewHTTPClient(cfg.ChatApp.URL, cfg.ChatAppAdminSecret, cfg.ChatApp.Timeout)
	}

	var classifier intent.Classifier
	if cfg.Classifier.URL != "" {
		classifier = intent.NewHTTPClassifier(cfg.Classifier.URL, cfg.Classifier.Timeout)
	}
	var generator ai.Generator
	if cfg.Generator.URL != "" {
		generator = ai.NewHTTPGenerator(cfg.Generator.URL, cfg.Generator.Token, cfg.Generator.Timeout)
	} else {
		log.Fatal().Msg("GENERATOR_URL must point at the answer generator")
	}

	roster := services.NewRosterService(db, chatClient, mode)
	tickets := services.NewTicketService(db, roster, sender, chatClient, mode)
	escalation := services.NewEscalationService(classifier, cfg.EscalateThreshold)
	resolver := language.NewResolver(cfg.SupportedLanguages, cfg.DefaultLanguage, language.StopwordDetector{})

	sessions := services.NewSessionService(db, botSender, sender, qs, resolver, escalation, tickets, generator)
	sessions.BotID = cfg.BotID
	sessions.DefaultRoute = cfg.DefaultRoute

	// Dedupe records expire; sweep them in the background.
	go purgeEvents(ctx, db)

	if cfg.OTEL.Enabled {
		shutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
		if err != nil {
			log.Fatal().Err(err).Msg("otel setup failed")
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				log.Error().Err(err).Msg("otel shutdown failed")
			}
		}()
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:       db,
		Sessions: sessions,
		Tickets:  tickets,
		Roster:   roster,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// purgeEvents sweeps expired webhook dedupe records hourly.
func purgeEvents(ctx context.Context, db *gorm.DB) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := repo.PurgeExpiredEvents(ctx, db); err != nil {
				log.Error().Err(err).Msg("event purge failed")
			}
		}
	}
}
