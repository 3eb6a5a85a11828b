// Package server wires configuration, storage, services and the HTTP API
// into a runnable application with graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/parley/internal/cryptox"
	"github.com/dmitrijs2005/parley/internal/logging"
	"github.com/dmitrijs2005/parley/internal/server/config"
	"github.com/dmitrijs2005/parley/internal/server/httpapi"
	"github.com/dmitrijs2005/parley/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/parley/internal/server/services"
	"github.com/dmitrijs2005/parley/internal/server/storage"
)

const (
	MediaBackendDisk = "disk"
	MediaBackendS3   = "s3"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	limiter *services.AttemptLimiter
	server  *httpapi.Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(c.LogBackend, c.LogLevel, os.Stdout)
	if err != nil {
		return nil, err
	}

	db, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, mediaRoot, err := newBlobStore(ctx, c)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("media storage error: %w", err)
	}

	engine := cryptox.NewEngine(c.MessageKeySecret)
	media := services.NewMediaService(store, logger, c.MaxMediaSize)
	limiter := services.NewAttemptLimiter(c.LoginMaxAttempts, c.LoginAttemptWindow)

	us := services.NewUserService(db, rm, limiter, logger, c)
	ms := services.NewMessageService(db, rm, engine, media, logger, c)
	cs := services.NewConversationService(db, rm, engine, logger)

	srv := httpapi.NewServer(httpapi.Options{
		Address:      c.EndpointAddrHTTP,
		JWTSecret:    c.SecretKey,
		MediaRoot:    mediaRoot,
		MaxMediaSize: c.MaxMediaSize,
	}, logger, us, ms, cs, media)

	return &App{config: c, logger: logger, db: db, limiter: limiter, server: srv}, nil
}

// newBlobStore builds the configured media backend. mediaRoot is non-empty
// only for the disk backend, whose files are served directly.
func newBlobStore(ctx context.Context, c *config.Config) (store storage.BlobStore, mediaRoot string, err error) {
	switch c.MediaBackend {
	case MediaBackendDisk:
		d, err := storage.NewDiskStore(c.MediaDir)
		if err != nil {
			return nil, "", err
		}
		return d, d.Root(), nil
	case MediaBackendS3:
		s, err := storage.NewS3Store(ctx, storage.S3Options{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
			Bucket:       c.S3Bucket,
		})
		if err != nil {
			return nil, "", err
		}
		return s, "", nil
	}
	return nil, "", fmt.Errorf("unknown media backend %q", c.MediaBackend)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run blocks until a termination signal arrives or the HTTP server fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.limiter.Run(ctx, app.config.LoginAttemptWindow)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx); err != nil {
			app.logger.Error(ctx, "http server error", "error", err)
			cancelFunc()
		}
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "db close error", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}
