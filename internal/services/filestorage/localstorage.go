package filestorage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cozy-creator/image-ingest/internal/config"
	"github.com/cozy-creator/image-ingest/internal/utils/pathutil"
	"github.com/gabriel-vasile/mimetype"
)

// FilesRoutePrefix is where the HTTP server exposes the local assets directory.
const FilesRoutePrefix = "/files"

type LocalFileStorage struct {
	assetsDir string
	publicURL string
}

func NewLocalFileStorage(cfg *config.Config) (*LocalFileStorage, error) {
	if !strings.EqualFold(cfg.FilesystemType, config.FilesystemLocal) {
		return nil, fmt.Errorf("filesystem is not local")
	}
	if cfg.AssetsDir == "" {
		return nil, config.ErrAssetsDirNotSet
	}

	return &LocalFileStorage{
		assetsDir: cfg.AssetsDir,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
	}, nil
}

func (u *LocalFileStorage) Upload(ctx context.Context, file FileInfo) (string, error) {
	filedest, key, err := u.resolve(file.Key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(filedest), os.ModePerm); err != nil {
		return "", err
	}

	if err := writeFileAtomic(filedest, file.Content, os.FileMode(0644)); err != nil {
		return "", err
	}

	return fmt.Sprintf("%s%s/%s", u.publicURL, FilesRoutePrefix, key), nil
}

func (u *LocalFileStorage) Delete(ctx context.Context, key string) error {
	filedest, _, err := u.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filedest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}

func (u *LocalFileStorage) GetFile(ctx context.Context, key string) (*FileInfo, error) {
	filedest, key, err := u.resolve(key)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(filedest)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}

	return &FileInfo{
		Key:         key,
		Content:     content,
		ContentType: mimetype.Detect(content).String(),
	}, nil
}

func (u *LocalFileStorage) resolve(key string) (string, string, error) {
	clean, ok := pathutil.CleanKey(key)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	return filepath.Join(u.assetsDir, filepath.FromSlash(clean)), clean, nil
}

// writeFileAtomic writes through a temp file in the destination directory so
// readers never observe a half written variant.
func writeFileAtomic(filedest string, content []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(filedest), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to save content to file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), filedest)
}
