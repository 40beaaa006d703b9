package filestorage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cozy-creator/image-ingest/internal/config"
)

var (
	ErrInvalidKey   = errors.New("invalid object key")
	ErrFileNotFound = errors.New("file not found")
)

type FileInfo struct {
	Key         string
	Content     []byte
	ContentType string
}

// FileStorage stores objects under caller-chosen keys. Uploading the same key
// twice overwrites the object, and deleting a missing key is not an error.
type FileStorage interface {
	Upload(ctx context.Context, file FileInfo) (string, error)
	Delete(ctx context.Context, key string) error
	GetFile(ctx context.Context, key string) (*FileInfo, error)
}

func NewFileInfo(key string, content []byte, contentType string) FileInfo {
	return FileInfo{
		Key:         key,
		Content:     content,
		ContentType: contentType,
	}
}

func NewFileStorage(ctx context.Context, cfg *config.Config) (FileStorage, error) {
	switch strings.ToLower(cfg.FilesystemType) {
	case config.FilesystemLocal:
		return NewLocalFileStorage(cfg)
	case config.FilesystemS3:
		return NewS3FileStorage(ctx, cfg)
	}

	return nil, fmt.Errorf("invalid filesystem type %s", cfg.FilesystemType)
}

// VariantKey is the content-addressed key of one resized variant. The two
// character fan-out keeps directories small on local disks.
func VariantKey(fileHash, size string) string {
	return fmt.Sprintf("images/%s/%s/%s.jpg", hashPrefix(fileHash), fileHash, size)
}

func SiteKey(fileHash, extension string) string {
	return fmt.Sprintf("site/%s%s", fileHash, extension)
}

func hashPrefix(fileHash string) string {
	if len(fileHash) < 2 {
		return "00"
	}

	return fileHash[:2]
}
