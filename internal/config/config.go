package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cozy-creator/image-ingest/internal/templates"
	"github.com/cozy-creator/image-ingest/internal/utils/pathutil"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	FilesystemLocal = "local"
	FilesystemS3    = "s3"
)

const (
	DBDriverSQLite = "sqlite"
	DBDriverPG     = "pg"
)

const cozyPrefix = "COZY"

type Config struct {
	Port           int           `mapstructure:"port"`
	Host           string        `mapstructure:"host"`
	HomeDir        string        `mapstructure:"home_dir"`
	Environment    string        `mapstructure:"environment"`
	PublicURL      string        `mapstructure:"public_url"`
	AssetsDir      string        `mapstructure:"assets_dir"`
	FilesystemType string        `mapstructure:"filesystem_type"`
	DB             *DBConfig     `mapstructure:"db"`
	S3             *S3Config     `mapstructure:"s3"`
	Upload         *UploadConfig `mapstructure:"upload"`
	Pulsar         *PulsarConfig `mapstructure:"pulsar"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type S3Config struct {
	Folder      string `mapstructure:"folder"`
	Region      string `mapstructure:"region_name"`
	Bucket      string `mapstructure:"bucket_name"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	EndpointUrl string `mapstructure:"endpoint_url"`
	VanityUrl   string `mapstructure:"vanity_url"`
	PathStyle   bool   `mapstructure:"path_style"`
}

type UploadConfig struct {
	MaxFileSize    int64    `mapstructure:"max_file_size"`
	AllowedTypes   []string `mapstructure:"allowed_types"`
	JPEGQuality    int      `mapstructure:"jpeg_quality"`
	VariantWorkers int      `mapstructure:"variant_workers"`
	UploadWorkers  int      `mapstructure:"upload_workers"`
}

type PulsarConfig struct {
	URL string `mapstructure:"url"`
}

var config *Config

// LoadEnvAndConfigFiles resolves the home directory, loads the .env file and the
// config.yaml found there (writing templates on first run), then unmarshals the
// merged viper state into the package config.
func LoadEnvAndConfigFiles() error {
	homeDir, err := getHomeDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(homeDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create home directory: %w", err)
	}

	assetsDir, err := getAssetsDir(homeDir)
	if err != nil {
		return err
	}

	viper.Set("home_dir", homeDir)
	viper.Set("assets_dir", assetsDir)

	envFile := viper.GetString("env_file")
	if envFile == "" {
		envFile = filepath.Join(homeDir, ".env")
	}

	configFile := viper.GetString("config_file")
	if configFile == "" {
		configFile = filepath.Join(homeDir, "config.yaml")
		if _, err := os.Stat(configFile); err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("failed to stat config.yaml file: %w", err)
			}

			if err := templates.WriteConfig(configFile); err != nil {
				return fmt.Errorf("failed to create config.yaml file: %w", err)
			}
		}
	}

	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat .env file: %w", err)
	}

	viper.SetEnvPrefix(cozyPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`, `-`, `_`))
	viper.AutomaticEnv()
	viper.SetConfigFile(configFile)

	if err := viper.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) && !os.IsNotExist(err) {
			return fmt.Errorf("error reading config: %w", err)
		}
	}

	cfg, err := Unmarshal(viper.GetViper())
	if err != nil {
		return err
	}

	config = cfg
	return nil
}

// Unmarshal decodes v into a Config, filling defaults for anything left unset.
func Unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Environment == "" {
		c.Environment = DefaultEnvironment
	}
	if c.FilesystemType == "" {
		c.FilesystemType = FilesystemLocal
	}
	if c.PublicURL == "" {
		c.PublicURL = fmt.Sprintf("http://%s:%d", c.Host, c.Port)
	}

	if c.DB == nil {
		c.DB = &DBConfig{}
	}
	if c.DB.Driver == "" {
		c.DB.Driver = DBDriverSQLite
	}
	if c.DB.DSN == "" {
		c.DB.DSN = DefaultSQLiteDSN
	}

	if c.Upload == nil {
		c.Upload = &UploadConfig{}
	}
	if c.Upload.MaxFileSize <= 0 {
		c.Upload.MaxFileSize = DefaultMaxFileSize
	}
	if len(c.Upload.AllowedTypes) == 0 {
		c.Upload.AllowedTypes = append([]string(nil), DefaultAllowedTypes...)
	}
	if c.Upload.JPEGQuality <= 0 || c.Upload.JPEGQuality > 100 {
		c.Upload.JPEGQuality = DefaultJPEGQuality
	}
	if c.Upload.VariantWorkers <= 0 {
		c.Upload.VariantWorkers = DefaultVariantWorkers
	}
	if c.Upload.UploadWorkers <= 0 {
		c.Upload.UploadWorkers = DefaultUploadWorkers
	}
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.FilesystemType) {
	case FilesystemLocal:
		if c.AssetsDir == "" {
			return ErrAssetsDirNotSet
		}
	case FilesystemS3:
		if c.S3 == nil || c.S3.Bucket == "" {
			return ErrS3NotConfigured
		}
	default:
		return fmt.Errorf("invalid filesystem type: %s", c.FilesystemType)
	}

	switch c.DB.Driver {
	case DBDriverSQLite, DBDriverPG:
	default:
		return fmt.Errorf("invalid database driver: %s", c.DB.Driver)
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "prod"
}

func GetConfig() *Config {
	return config
}

func MustGetConfig() *Config {
	if config == nil {
		panic("config not loaded")
	}

	return config
}

// Returns the home directory path.
// It attempts to retrieve the home directory from the following sources in order:
// 1. The `home_dir` flag from viper.
// 2. The `COZY_HOME` environment variable.
// 3. The default home directory.
func getHomeDir() (string, error) {
	homeDir := viper.GetString("home_dir")
	if homeDir == "" {
		homeDir = os.Getenv("COZY_HOME")
		if homeDir == "" {
			homeDir = DefaultHomeDir
		}
	}

	homeDir, err := pathutil.ExpandPath(homeDir)
	if err != nil {
		return "", fmt.Errorf("failed to expand home path: %w", err)
	}

	return homeDir, nil
}

func getAssetsDir(homeDir string) (string, error) {
	if homeDir == "" {
		return "", ErrHomeNotSet
	}

	assetsDir := viper.GetString("assets_dir")
	if assetsDir == "" {
		assetsDir = filepath.Join(homeDir, "assets")
	}

	assetsDir, err := pathutil.ExpandPath(assetsDir)
	if err != nil {
		return "", ErrHomeExpandFailed
	}

	return assetsDir, nil
}
