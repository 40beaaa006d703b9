package config

import "errors"

const (
	DefaultPort        = 8881
	DefaultHost        = "localhost"
	DefaultEnvironment = "dev"
	DefaultHomeDir     = "~/.cozy-ingest"
	DefaultSQLiteDSN   = "file:./data/images.db"

	DefaultMaxFileSize    = 10 << 20
	DefaultJPEGQuality    = 85
	DefaultVariantWorkers = 4
	DefaultUploadWorkers  = 8
)

var DefaultAllowedTypes = []string{"image/jpeg", "image/png", "image/webp"}

var DefaultImageEventsTopic = "cozy-ingest/images/events"

var (
	ErrHomeNotSet       = errors.New("home directory is not set")
	ErrHomeExpandFailed = errors.New("failed to expand home directory")
	ErrAssetsDirNotSet  = errors.New("assets directory is not set")
	ErrS3NotConfigured  = errors.New("s3 config is not set")
)
