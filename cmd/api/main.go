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

	"github.com/gin-gonic/gin"

	"academy/internal/app"
	"academy/internal/config"
	"academy/internal/handler"
	"academy/internal/httpmiddleware"
)

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// A memory queue only lives in this process, so the reaper runs here.
	if cfg.QueueBackend == "memory" {
		go func() {
			if err := a.Logbook.ReapOrphans(ctx, a.Orphans); err != nil {
				log.Printf("orphan reaper stopped: %v", err)
			}
		}()
	}

	limiter := httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	go sweepLimiter(ctx, limiter)

	h := handler.New(handler.Deps{
		Directory:      a.Directory,
		Logbook:        a.Logbook,
		Notifier:       a.Notifier,
		Verifier:       a.Verifier,
		Visits:         a.Visits,
		Location:       cfg.Location(),
		Checks:         a.Checks(),
		MaxUploadBytes: cfg.MediaMaxBytes,
		SecureCookies:  cfg.Production(),
	})
	r := h.Router(handler.RouterConfig{
		CORSOrigins: cfg.CORSOrigins,
		RateLimiter: limiter,
		Metrics:     a.Metrics,
	})

	// WriteTimeout stays zero: event streams and large media uploads hold the
	// connection open.
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s (version %s)", cfg.HTTPPort, app.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

func sweepLimiter(ctx context.Context, l *httpmiddleware.TokenBucket) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Sweep(10 * time.Minute)
		}
	}
}

func init() {
	if v, ok := os.LookupEnv("APP_VERSION"); ok && app.Version == "dev" {
		app.Version = v
	}
}
