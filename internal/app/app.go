package app

import (
	"context"
	"fmt"

	"github.com/cozy-creator/image-ingest/internal/config"
	"github.com/cozy-creator/image-ingest/internal/db"
	"github.com/cozy-creator/image-ingest/internal/db/drivers"
	"github.com/cozy-creator/image-ingest/internal/db/migrations"
	"github.com/cozy-creator/image-ingest/internal/events"
	"github.com/cozy-creator/image-ingest/internal/mq"
	"github.com/cozy-creator/image-ingest/internal/services/filestorage"
	"github.com/cozy-creator/image-ingest/internal/services/fileuploader"
	"github.com/cozy-creator/image-ingest/internal/services/imagevariants"
	"github.com/cozy-creator/image-ingest/internal/services/ingest"
	"github.com/cozy-creator/image-ingest/pkg/logger"
	"github.com/uptrace/bun"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type App struct {
	mq           mq.MQ
	db           *bun.DB
	driver       drivers.Driver
	config       *config.Config
	ctx          context.Context
	cancelFunc   context.CancelFunc
	fileuploader *fileuploader.Uploader
	generator    *imagevariants.PoolGenerator

	Logger *zap.Logger
	Ingest *ingest.Service
}

// Option funcs used to initialize the App struct
type OptionFunc func(app *App) error

func WithDB(driver drivers.Driver) OptionFunc {
	return func(app *App) error {
		app.driver = driver
		app.db = driver.GetDB()
		return nil
	}
}

func WithLogger(logger *zap.Logger) OptionFunc {
	return func(app *App) error {
		app.Logger = logger
		return nil
	}
}

func WithMQ() OptionFunc {
	return func(app *App) error {
		queue, err := mq.NewMQ(app.config, app.Logger)
		if err != nil {
			return err
		}
		app.mq = queue
		return nil
	}
}

// WithDBInitialization connects to the configured database and applies every
// pending migration.
func WithDBInitialization() OptionFunc {
	return func(app *App) error {
		driver, err := db.NewConnection(app.ctx, app.config)
		if err != nil {
			return err
		}
		app.driver = driver
		app.db = driver.GetDB()

		group, err := migrations.Migrate(app.ctx, app.db)
		if err != nil {
			return err
		}
		if !group.IsZero() {
			app.Logger.Info("applied migrations", zap.String("group", group.String()))
		}

		return nil
	}
}

func WithFileUploader() OptionFunc {
	return func(app *App) error {
		storage, err := filestorage.NewFileStorage(app.ctx, app.config)
		if err != nil {
			return err
		}
		app.fileuploader = fileuploader.NewFileUploader(storage, app.config.Upload.UploadWorkers)
		return nil
	}
}

// WithIngestService wires the pipeline. It must come after the database, file
// uploader and (optionally) MQ options.
func WithIngestService() OptionFunc {
	return func(app *App) error {
		if app.db == nil || app.fileuploader == nil {
			return fmt.Errorf("ingest service needs a database and a file uploader")
		}

		var publisher events.Publisher = events.NopPublisher{}
		if app.mq != nil {
			publisher = events.NewMQPublisher(app.mq, config.DefaultImageEventsTopic, app.Logger)
		}

		app.generator = imagevariants.NewGenerator(app.config.Upload.VariantWorkers, app.config.Upload.JPEGQuality)
		service, err := ingest.NewService(ingest.Dependencies{
			DB:        app.db,
			Validator: ingest.NewValidator(app.config.Upload),
			Generator: app.generator,
			Uploader:  app.fileuploader,
			Publisher: publisher,
			Logger:    app.Logger,
		})
		if err != nil {
			return err
		}

		app.Ingest = service
		return nil
	}
}

func NewApp(config *config.Config, options ...OptionFunc) (*App, error) {
	logger, err := logger.InitLogger(config)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		ctx:        ctx,
		config:     config,
		Logger:     logger,
		cancelFunc: cancel,
	}

	for _, opt := range options {
		if err := opt(app); err != nil {
			app.Logger.Error("failed to apply option", zap.Error(err))
			app.Close()
			return nil, err
		}
	}

	return app, nil
}

func (app *App) Close() error {
	app.cancelFunc()

	var err error
	if app.fileuploader != nil {
		app.fileuploader.Stop()
	}
	if app.generator != nil {
		app.generator.Stop()
	}
	if app.mq != nil {
		err = multierr.Append(err, app.mq.Close())
	}
	if app.driver != nil {
		err = multierr.Append(err, app.driver.Close())
	}

	app.Logger.Sync() //nolint:errcheck
	return err
}

func (app *App) Config() *config.Config {
	return app.config
}

func (app *App) Context() context.Context {
	return app.ctx
}

func (app *App) MQ() mq.MQ {
	return app.mq
}

func (app *App) DB() *bun.DB {
	return app.db
}
