package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-course/internal/ai"
	"github.com/p-n-ai/pai-course/internal/assessment"
	"github.com/p-n-ai/pai-course/internal/auth"
	"github.com/p-n-ai/pai-course/internal/catalog"
	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/generator"
	"github.com/p-n-ai/pai-course/internal/platform/cache"
	"github.com/p-n-ai/pai-course/internal/platform/config"
	"github.com/p-n-ai/pai-course/internal/platform/database"
	"github.com/p-n-ai/pai-course/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	checks := map[string]func(context.Context) error{}

	var (
		store  course.Store
		events course.EventLogger = course.NopEventLogger{}
	)
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Database.AutoMigrate {
			if err := database.Migrate(cfg.Database.URL); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
			slog.Info("database migrated")
		}
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return err
		}
		defer db.Close()
		pgStore, err := course.NewPostgresStore(db.Pool)
		if err != nil {
			return err
		}
		store = pgStore
		events = course.NewPostgresEventLogger(db.Pool)
		checks["database"] = db.HealthCheck
	default:
		slog.Warn("using in-memory store; data is lost on restart")
		store = course.NewMemoryStore()
	}

	var (
		pending assessment.PendingStore = assessment.NewMemoryPendingStore(nil)
		budget  ai.BudgetChecker        = ai.NewInMemoryBudget(cfg.Generator.DailyTokenBudget)
		lessons course.LessonCache
	)
	if cfg.Cache.Enabled {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			slog.Warn("cache unavailable, falling back to in-process state", "error", err)
		} else {
			defer c.Close()
			pending = assessment.NewRedisPendingStore(c.Client)
			budget = ai.NewRedisBudget(c.Client, cfg.Generator.DailyTokenBudget)
			lessons = c
			checks["cache"] = c.HealthCheck
		}
	}

	router := newAIRouter(cfg.AI)
	slog.Info("AI providers registered", "providers", strings.Join(router.Providers(), ","))

	topics, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}

	gen := generator.NewAIGenerator(generator.AIConfig{
		AI:        router,
		Budget:    budget,
		Timeout:   cfg.Generator.Timeout(),
		MaxTokens: cfg.Generator.MaxTokens,
	})
	engine := course.NewEngine(course.EngineConfig{
		Store:   store,
		Lessons: gen,
		Events:  events,
		Cache:   lessons,
	})
	api := web.NewServer(web.Config{
		Auth: auth.NewService(auth.Config{
			Users:    store,
			Secret:   cfg.Auth.JWTSecret,
			TokenTTL: time.Duration(cfg.Auth.AccessTokenTTL) * time.Minute,
		}),
		Engine: engine,
		Assessments: assessment.NewService(assessment.Config{
			Generator: gen,
			Courses:   engine,
			Store:     store,
			Pending:   pending,
			Topics:    topics,
			TTL:       cfg.Assessment.PendingTTL(),
		}),
		Users:  store,
		Topics: topics,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      web.LogRequests(newMux(api, checks)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Generator.Timeout() + 30*time.Second, // generation runs inside requests
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// newAIRouter registers every configured provider in fallback order.
func newAIRouter(cfg config.AIConfig) *ai.Router {
	router := ai.NewRouter()
	if cfg.OpenAI.APIKey != "" {
		router.Register("openai", ai.NewOpenAIProvider(cfg.OpenAI.APIKey, ai.WithDefaultModel(cfg.OpenAI.Model)))
	}
	if cfg.Anthropic.APIKey != "" {
		p, err := ai.NewAnthropicProvider(cfg.Anthropic.APIKey, ai.WithAnthropicModel(cfg.Anthropic.Model))
		if err != nil {
			slog.Warn("skipping anthropic provider", "error", err)
		} else {
			router.Register("anthropic", p)
		}
	}
	if cfg.Google.APIKey != "" {
		router.Register("google", ai.NewGoogleProvider(cfg.Google.APIKey, ai.WithGoogleModel(cfg.Google.Model)))
	}
	if cfg.DeepSeek.APIKey != "" {
		router.Register("deepseek", ai.NewDeepSeekProvider(cfg.DeepSeek.APIKey))
	}
	if cfg.OpenRouter.APIKey != "" {
		router.Register("openrouter", ai.NewOpenRouterProvider(cfg.OpenRouter.APIKey, ai.WithDefaultModel(cfg.OpenRouter.Model)))
	}
	if cfg.Ollama.Enabled {
		router.Register("ollama", ai.NewOllamaProvider(cfg.Ollama.URL, cfg.Ollama.Model))
	}
	return router
}

// newMux creates the HTTP router with the API and health check endpoints.
func newMux(api *web.Server, checks map[string]func(context.Context) error) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(checks))
	if api != nil {
		api.Register(mux)
	}
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func handleReadyz(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		for name, check := range checks {
			if err := check(ctx); err != nil {
				slog.Warn("readiness check failed", "check", name, "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, `{"status":"unavailable","check":%q}`, name)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}
