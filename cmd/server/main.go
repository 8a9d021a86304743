package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spendbook/internal/config"
	"spendbook/internal/handlers"
	"spendbook/internal/storage"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load .env if present; real environment wins.
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	db, err := storage.NewDB(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	h := handlers.NewHandlers(db, cfg.TemplateDir, cfg.SecureCookie, logger)
	mux := setupRouter(h, cfg.StaticDir)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", "port", cfg.Port, "db", cfg.DBPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// setupRouter registers the route surface. Guards compose by wrapping:
// admin-only routes run RequireAdmin inside RequireAuth.
func setupRouter(h *handlers.Handlers, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/expenses", http.StatusFound)
	})

	mux.HandleFunc("GET /login", h.LoginForm)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("GET /logout", h.Logout)
	mux.HandleFunc("GET /register", h.RegisterForm)
	mux.HandleFunc("POST /register", h.Register)

	mux.Handle("GET /expenses", h.RequireAuth(http.HandlerFunc(h.ListExpenses)))
	mux.Handle("GET /expenses/add", h.RequireAuth(http.HandlerFunc(h.AddExpenseForm)))
	mux.Handle("POST /expenses/add", h.RequireAuth(http.HandlerFunc(h.AddExpense)))
	mux.Handle("GET /expenses/{id}/edit", h.RequireAuth(http.HandlerFunc(h.EditExpenseForm)))
	mux.Handle("POST /expenses/{id}/edit", h.RequireAuth(http.HandlerFunc(h.UpdateExpense)))
	mux.Handle("POST /expenses/{id}/delete", h.RequireAuth(http.HandlerFunc(h.DeleteExpense)))

	mux.Handle("GET /categories", h.RequireAuth(h.RequireAdmin(http.HandlerFunc(h.Categories))))
	mux.Handle("POST /categories", h.RequireAuth(h.RequireAdmin(http.HandlerFunc(h.CreateCategory))))

	return mux
}
