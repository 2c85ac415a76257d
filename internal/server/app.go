// Package server assembles the audio backend: database, migrations, blob
// storage, identity provider and the services built on top of them. It
// owns their lifetime and shuts down on SIGINT or SIGTERM.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/audiokeeper/internal/cryptox"
	"github.com/dmitrijs2005/audiokeeper/internal/logging"
	"github.com/dmitrijs2005/audiokeeper/internal/server/auth"
	"github.com/dmitrijs2005/audiokeeper/internal/server/config"
	"github.com/dmitrijs2005/audiokeeper/internal/server/oauth"
	"github.com/dmitrijs2005/audiokeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/audiokeeper/internal/server/services"
	"github.com/dmitrijs2005/audiokeeper/internal/server/storage"
)

var (
	openDB               = repomanager.Open
	newRepositoryManager = repomanager.NewPostgresRepositoryManager
	newS3Storage         = func(ctx context.Context, cfg storage.S3Config) (storage.Storage, error) {
		return storage.NewS3Storage(ctx, cfg)
	}
	logOutput io.Writer = os.Stdout
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	storage     storage.Storage

	userService  *services.UserService
	authService  *services.AuthService
	audioService *services.AudioService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(logOutput, c.LogLevel, c.LogFormat)

	store, err := newStorage(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	db, err := openDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := newRepositoryManager()
	hasher := cryptox.NewPasswordHasher(c.BcryptCost)
	tokens := auth.NewTokenCodec([]byte(c.SecretKey))
	idp := oauth.NewYandexClient(oauth.YandexConfig{
		ClientID:     c.YandexClientID,
		ClientSecret: c.YandexClientSecret,
		RedirectURL:  c.YandexRedirectURL,
		AuthURL:      c.YandexAuthURL,
		TokenURL:     c.YandexTokenURL,
		ProfileURL:   c.YandexProfileURL,
	})

	us := services.NewUserService(db, rm, hasher, store, logger.With("service", "users"))
	as := services.NewAuthService(us, hasher, tokens, idp, c, logger.With("service", "auth"))
	au := services.NewAudioService(db, rm, store, logger.With("service", "audio"))

	return &App{
		config:       c,
		logger:       logger,
		db:           db,
		repomanager:  rm,
		storage:      store,
		userService:  us,
		authService:  as,
		audioService: au,
	}, nil
}

func newStorage(ctx context.Context, c *config.Config) (storage.Storage, error) {
	switch c.StorageBackend {
	case config.StorageLocal, "":
		return storage.NewLocalStorage(c.AudioUploadDir), nil
	case config.StorageS3:
		return newS3Storage(ctx, storage.S3Config{
			User:         c.S3RootUser,
			Password:     c.S3RootPassword,
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
}

func (app *App) Users() *services.UserService  { return app.userService }
func (app *App) Auth() *services.AuthService   { return app.authService }
func (app *App) Audio() *services.AudioService { return app.audioService }

// Run applies migrations, prepares blob storage and then blocks until ctx
// is cancelled or the process is signalled. The database is closed on
// return.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	defer func() {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "db close error", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting app...")

	if err := app.repomanager.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations error: %w", err)
	}

	if err := app.storage.EnsureReady(ctx); err != nil {
		return fmt.Errorf("storage init error: %w", err)
	}

	app.logger.Info(ctx, "app ready", "storage", app.config.StorageBackend)

	<-ctx.Done()

	app.logger.Info(context.Background(), "Shutting down...")
	return nil
}
