// Package app assembles the services from configuration. The API server,
// the worker and the admin CLI all start from Build.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"academy/internal/auth"
	"academy/internal/blob"
	"academy/internal/config"
	"academy/internal/directory"
	"academy/internal/errreport"
	"academy/internal/live"
	"academy/internal/logbook"
	"academy/internal/media"
	"academy/internal/metrics"
	"academy/internal/model"
	"academy/internal/notify"
	"academy/internal/queue"
	"academy/internal/store"
	"academy/internal/visits"
)

// Version is stamped at build time with -ldflags "-X academy/internal/app.Version=...".
var Version = "dev"

// Repository is everything the services and the maintenance commands need
// from the primary store.
type Repository interface {
	directory.Repository
	logbook.Repository
	CheckRangeIndex(ctx context.Context) error
	InstrumentLabels(ctx context.Context) (map[string]int, error)
	CanonicalizeInstruments(ctx context.Context, dryRun bool) (int, error)
}

type App struct {
	Config config.App

	DB    *store.DB    // nil with the memory store
	Redis *store.Redis // nil when no backend needs it
	Repo  Repository

	Hub     live.Hub
	Orphans queue.Queue
	Blobs   blob.Store
	Visits  visits.Counter

	Metrics  *metrics.Metrics
	Reporter errreport.Reporter

	AlimTalk  *notify.AlimTalk
	Notifier  *notify.Dispatcher
	Logbook   *logbook.Service
	Directory *directory.Service
	Verifier  *auth.Verifier
}

// Build connects the backends named in cfg and wires the services. An
// unreachable database is logged, not fatal, so /healthz can report it.
func Build(ctx context.Context, cfg config.App) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		Config:   cfg,
		Metrics:  metrics.New(),
		Reporter: errreport.New(cfg.RollbarToken, cfg.Env, Version),
	}

	switch cfg.StoreBackend {
	case "memory":
		log.Println("store: using in-memory backend")
		a.Repo = store.NewMemory()
	default:
		db, err := store.NewDB(cfg.DatabaseURL)
		if db == nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		if err != nil {
			log.Printf("warning: db not reachable: %v", err)
		} else if cfg.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				log.Printf("warning: migrations failed: %v", err)
			}
		}
		a.DB = db
		a.Repo = store.NewPostgres(db)
	}

	if cfg.NeedsRedis() {
		a.Redis = store.NewRedis(cfg.RedisAddr)
	}
	if cfg.HubBackend == "redis" {
		a.Hub = live.NewRedis(a.Redis.Client, "")
	} else {
		a.Hub = live.NewMemory()
	}
	if cfg.QueueBackend == "redis" {
		a.Orphans = queue.NewRedisQueue(a.Redis.Client, "academy:orphans")
	} else {
		a.Orphans = queue.NewInMemory(256)
	}
	if cfg.VisitsBackend == "redis" {
		a.Visits = visits.NewRedis(a.Redis.Client, "", 400*24*time.Hour)
	} else {
		a.Visits = visits.NewMemory()
	}

	blobs, err := newBlobStore(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Blobs = blobs

	a.AlimTalk = notify.NewAlimTalk(cfg.AlimTalkBaseURL, cfg.AlimTalkAppKey, cfg.AlimTalkSecretKey, cfg.AlimTalkSenderKey)
	if !a.AlimTalk.Configured() {
		log.Println("AlimTalk not configured (NHN_APP_KEY / NHN_SECRET_KEY / NHN_SENDER_KEY not set), sends are simulated")
	}
	a.Notifier = notify.NewDispatcher(a.AlimTalk, a.Metrics, a.Reporter)

	a.Logbook = logbook.NewService(logbook.Deps{
		Repo:     a.Repo,
		Blobs:    a.Blobs,
		Notifier: a.Notifier,
		Hub:      a.Hub,
		Orphans:  a.Orphans,
		Images:   media.NewDownscaler(cfg.ImageMaxDimension),
		Metrics:  a.Metrics,
		Reporter: a.Reporter,
	}, logbook.Options{
		MaxMediaBytes:     cfg.MediaMaxBytes,
		TemplateID:        cfg.NotifyTemplateID,
		NotifyByDefault:   cfg.NotifyByDefault,
		PublicBaseURL:     cfg.PublicBaseURL,
		Location:          cfg.Location(),
		OrphanMaxAttempts: cfg.OrphanMaxAttempts,
		OrphanBackoff:     cfg.OrphanRetryBackoff,
	})
	a.Directory = directory.NewService(a.Repo, a.Hub, a.Logbook)
	a.Verifier = auth.NewVerifier(cfg.JWTSigningKey, cfg.JWTIssuer, a.Repo)
	return a, nil
}

func newBlobStore(cfg config.App) (blob.Store, error) {
	switch cfg.BlobBackend {
	case "oss":
		if !cfg.OSSConfigured() {
			return nil, fmt.Errorf("blob: %w: OSS_ENDPOINT / OSS_ACCESS_KEY_ID / OSS_ACCESS_KEY_SECRET / OSS_BUCKET not set", model.ErrMisconfigured)
		}
		return blob.NewOSS(cfg.OSSEndpoint, cfg.OSSAccessKeyID, cfg.OSSAccessKeySecret, cfg.OSSBucket, cfg.OSSPublicBaseURL)
	case "memory":
		log.Println("blob: using in-memory backend, media is lost on restart")
		return blob.NewMemory(), nil
	default:
		if !cfg.CloudinaryConfigured() {
			log.Println("Cloudinary not configured (CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set), uploads will be refused")
		} else {
			log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
		}
		return blob.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret), nil
	}
}

// Checks are the probes served on /healthz.
func (a *App) Checks() map[string]func(context.Context) bool {
	checks := map[string]func(context.Context) bool{}
	if a.DB != nil {
		checks["db"] = a.DB.Healthy
	}
	if a.Redis != nil {
		checks["redis"] = a.Redis.Healthy
	}
	return checks
}

// Close releases connections and flushes the error reporter.
func (a *App) Close() {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if err := errors.Join(errs...); err != nil {
		log.Printf("close: %v", err)
	}
	if a.Reporter != nil {
		a.Reporter.Close()
	}
}
