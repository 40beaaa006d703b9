package ingest

import (
	"mime"
	"strings"

	"github.com/cozy-creator/image-ingest/internal/config"
	"github.com/gabriel-vasile/mimetype"
)

// Validator applies the cheap checks that run before any hashing or decoding.
// It trusts the declared type; decoding catches content that lies about it.
type Validator struct {
	maxSize      int64
	allowedTypes []string
}

func NewValidator(cfg *config.UploadConfig) *Validator {
	return &Validator{
		maxSize:      cfg.MaxFileSize,
		allowedTypes: cfg.AllowedTypes,
	}
}

func (v *Validator) Validate(declaredType string, declaredSize int64, data []byte) error {
	if data == nil {
		return newError(KindNoFile, StageReceived, "no file provided", nil)
	}
	if len(data) == 0 || declaredSize == 0 {
		return validationError(StageReceived, "file is empty")
	}

	size := max(declaredSize, int64(len(data)))
	if size > v.maxSize {
		return validationError(StageReceived, "file too large: %d bytes exceeds the %d byte limit", size, v.maxSize)
	}

	mediaType, _, err := mime.ParseMediaType(declaredType)
	if err != nil {
		return validationError(StageReceived, "invalid content type %q", declaredType)
	}
	if !mimetype.EqualsAny(mediaType, v.allowedTypes...) {
		return validationError(StageReceived, "unsupported file type %q, allowed: %s", mediaType, strings.Join(v.allowedTypes, ", "))
	}

	return nil
}
