package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"smidr/smidr/config"
	"smidr/smidr/controllers"
	"smidr/smidr/middlewares"
	"smidr/smidr/routes"
	"smidr/smidr/services/orchestrator"
	"smidr/smidr/services/provider"
	"smidr/smidr/sources/psql"
	"smidr/smidr/sources/psql/dao"
	"smidr/smidr/sources/session"
	"smidr/smidr/utils/logging"
)

func main() {
	cfg := config.LoadConfig()
	logging.InitLogger(cfg.LogDir)
	defer logging.Sync()

	for _, w := range cfg.Validate() {
		logging.AppLogger.Warn("startup", zap.String("warning", w))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := psql.NewDatabase(ctx, cfg)
	if err != nil {
		cancel()
		logging.ErrorLogger.Error("database connection error", zap.Error(err))
		logging.AppLogger.Fatal("database connection error", zap.Error(err))
	}
	if err := db.SeedUsers(ctx, cfg.Users); err != nil {
		cancel()
		logging.AppLogger.Fatal("seeding users failed", zap.Error(err))
	}
	cancel()
	defer db.Close()

	conversations := session.NewConversations()
	store := session.NewMemoryStore(cfg.SessionTTL, session.OnRevoke(conversations.Drop))
	authn := &middlewares.Authenticator{Store: store, JWTSecret: cfg.JWTSecret}

	client := provider.NewClient(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.ProviderTimeout)
	orch := orchestrator.New(client, conversations, orchestrator.Config{
		Mode:        orchestrator.Mode(cfg.ChatMode),
		AssistantID: cfg.AssistantID,
		AgentID:     cfg.AgentID,
		Model:       cfg.Model,
	})

	authCtrl := controllers.NewAuthController(dao.NewUserDAO(db.DB), store, authn, cfg.LoginRatePerMin)
	chatCtrl := controllers.NewChatController(orch, client, cfg.WorkflowID, cfg.PollInterval, cfg.PollMaxAttempts)
	healthCtrl := controllers.NewHealthController(cfg.ChatMode, store)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewares.RequestLogging)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{middlewares.TraceHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Mount("/health", routes.HealthRoutes(healthCtrl))
	r.Mount("/api", routes.APIRoutes(authCtrl, chatCtrl, authn, routes.Options{
		CookieSecure:   cfg.CookieSecure,
		CookieSameSite: cfg.CookieSameSite,
		AllowedOrigins: cfg.CORSOrigins,
		RequestTimeout: cfg.ProviderTimeout + 30*time.Second,
	}))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		logging.AppLogger.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("mode", cfg.ChatMode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logging.ErrorLogger.Error("server error", zap.Error(err))
		logging.AppLogger.Error("server error", zap.Error(err))
	}
	logging.AppLogger.Info("server shutdown complete")
}
