package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/aramistech/website-backend/internal/ai"
	"github.com/aramistech/website-backend/internal/auth"
	"github.com/aramistech/website-backend/internal/chat"
	"github.com/aramistech/website-backend/internal/config"
	"github.com/aramistech/website-backend/internal/relay"
	"github.com/aramistech/website-backend/migrations"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config error: %v", err)
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	// --- DB ---
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("db ping error: %v", err)
	}

	if err := migrations.Up(db); err != nil {
		log.Fatalf("migrations error: %v", err)
	}

	// --- Relay hub ---
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := relay.NewHub(log)

	// --- Chat module wiring ---
	chatRepo := chat.NewRepo(db)
	responder := ai.NewOpenAIResponder(cfg.OpenAIKey, cfg.OpenAIModel, cfg.BotSystemPrompt, log)
	chatService := chat.NewService(chatRepo, responder, hub, log, chat.ServiceOptions{
		BotTimeout:  cfg.BotTimeout,
		BotFallback: cfg.BotFallback,
	})
	chatHandler := chat.NewHandler(chatService)

	hub.SetNotificationGate(chatService)
	go hub.Run(hubCtx)

	wsHandler := relay.NewHandler(hub, chatService, []byte(cfg.JWTSecret), log)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	chat.RegisterRoutes(r, chatHandler)

	r.Route("/api/admin/chat", func(r chi.Router) {
		r.Post("/token", auth.TokenHandler([]byte(cfg.JWTSecret), cfg.AdminPassword, cfg.TokenDuration))
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware([]byte(cfg.JWTSecret)))
			chat.RegisterAdminRoutes(r, chatHandler)
		})
	})

	r.Get("/ws/chat", wsHandler.ServeHTTP)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		log.Infof("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	stopHub()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown error: %v", err)
	}
}
