package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cozy-creator/image-ingest/internal/app"
	"github.com/cozy-creator/image-ingest/internal/config"
	"github.com/cozy-creator/image-ingest/internal/events"
	"github.com/cozy-creator/image-ingest/internal/server"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var Cmd = &cobra.Command{
	Use:   "run",
	Short: "Start the image ingestion server",
	RunE:  runApp,
}

func init() {
	flags := Cmd.Flags()

	flags.Int("port", config.DefaultPort, "Port to run the server on")
	flags.String("host", config.DefaultHost, "Host to run the server on")
	flags.String("environment", config.DefaultEnvironment, "Environment configuration: dev, test or prod")
	flags.String("public-url", "", "Base URL clients use to reach locally stored files")
	flags.String("filesystem-type", config.FilesystemLocal, "Filesystem type: 'local' or 's3'")

	flags.String("db-driver", config.DBDriverSQLite, "Database driver: 'sqlite' or 'pg'")
	flags.String("db-dsn", config.DefaultSQLiteDSN, "Database DSN (Connection URL or Path)")
	flags.String("pulsar-url", "", "URL of the pulsar broker. Example: pulsar+ssl://my-cluster.streamnative.cloud:6651")

	flags.String("s3-access-key", "", "S3 access key")
	flags.String("s3-secret-key", "", "S3 secret key")
	flags.String("s3-region-name", "", "S3 region name")
	flags.String("s3-bucket-name", "", "S3 bucket name")
	flags.String("s3-folder", "", "S3 folder")
	flags.String("s3-vanity-url", "", "Public URL for S3 files")
	flags.String("s3-endpoint-url", "", "S3 endpoint URL")

	flags.Int64("max-file-size", config.DefaultMaxFileSize, "Maximum accepted upload size in bytes")
	flags.Int("jpeg-quality", config.DefaultJPEGQuality, "JPEG quality of generated variants")

	bindFlags()
}

var flagKeys = map[string]string{
	"port":            "port",
	"host":            "host",
	"environment":     "environment",
	"public-url":      "public_url",
	"filesystem-type": "filesystem_type",
	"db-driver":       "db.driver",
	"db-dsn":          "db.dsn",
	"pulsar-url":      "pulsar.url",
	"s3-access-key":   "s3.access_key",
	"s3-secret-key":   "s3.secret_key",
	"s3-region-name":  "s3.region_name",
	"s3-bucket-name":  "s3.bucket_name",
	"s3-folder":       "s3.folder",
	"s3-vanity-url":   "s3.vanity_url",
	"s3-endpoint-url": "s3.endpoint_url",
	"max-file-size":   "upload.max_file_size",
	"jpeg-quality":    "upload.jpeg_quality",
}

// bindFlags maps each flag onto its config key. Env vars use the COZY_ prefix,
// e.g. COZY_DB_DSN or COZY_S3_BUCKET_NAME.
func bindFlags() {
	flags := Cmd.Flags()
	for flag, key := range flagKeys {
		viper.BindPFlag(key, flags.Lookup(flag))
		viper.BindEnv(key)
	}
}

func runApp(_ *cobra.Command, _ []string) error {
	errc := make(chan error, 2)
	signalc := make(chan os.Signal, 1)

	app, err := createNewApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := app.Context()

	server, err := runServer(app, errc)
	if err != nil {
		return err
	}

	go func() {
		if err := events.Drain(ctx, app.MQ(), config.DefaultImageEventsTopic, app.Logger.Named("events")); err != nil {
			errc <- err
		}
	}()

	signal.Notify(signalc, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		return err
	case sig := <-signalc:
		app.Logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return server.Stop(context.Background())
	}
}

func createNewApp() (*app.App, error) {
	return app.NewApp(config.MustGetConfig(),
		app.WithMQ(),
		app.WithDBInitialization(),
		app.WithFileUploader(),
		app.WithIngestService(),
	)
}

func runServer(app *app.App, errc chan<- error) (*server.Server, error) {
	server, err := server.NewServer(app.Config(), app.Logger)
	if err != nil {
		return nil, err
	}

	server.SetupRoutes(app)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	return server, nil
}
