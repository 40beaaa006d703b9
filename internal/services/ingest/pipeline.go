package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/cozy-creator/image-ingest/internal/db/models"
	"github.com/cozy-creator/image-ingest/internal/events"
	"github.com/cozy-creator/image-ingest/internal/services/filestorage"
	"github.com/cozy-creator/image-ingest/internal/services/imagevariants"
	"github.com/cozy-creator/image-ingest/internal/utils/hashutil"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

type ProductUpload struct {
	ProductID   int64
	ImageIndex  *int
	IsPrimary   bool
	ContentType string
	Size        int64
	Data        []byte
}

type ProductUploadResult struct {
	GroupKey     uuid.UUID     `json:"groupKey"`
	Images       []VariantURL  `json:"images"`
	PrimaryImage *LogicalImage `json:"primaryImage,omitempty"`
	Deduplicated bool          `json:"deduplicated"`
}

// UploadProductImage runs one upload through validation, hashing, dedup,
// variant generation, storage and record insertion. A failure at any stage
// leaves no rows behind.
func (s *Service) UploadProductImage(ctx context.Context, upload ProductUpload) (*ProductUploadResult, error) {
	logger := s.logger.With(zap.Int64("product_id", upload.ProductID))

	if upload.ProductID <= 0 {
		return nil, s.logFailure(logger, validationError(StageReceived, "productId must be a positive integer"))
	}
	if upload.ImageIndex != nil && *upload.ImageIndex < 0 {
		return nil, s.logFailure(logger, validationError(StageReceived, "imageIndex must be a non-negative integer"))
	}
	if err := s.validator.Validate(upload.ContentType, upload.Size, upload.Data); err != nil {
		return nil, s.logFailure(logger, err)
	}
	if err := s.productExists(ctx, StageValidated, upload.ProductID); err != nil {
		return nil, s.logFailure(logger, err)
	}

	hash := hashutil.Blake3Hash(upload.Data)
	logger = logger.With(zap.String("hash", hash))

	unlock, err := s.hashLocks.Lock(ctx, hash)
	if err != nil {
		return nil, s.logFailure(logger, newError(KindInternal, StageHashed, "upload cancelled", err))
	}
	defer unlock()

	urls, dedup, err := s.resolveVariants(ctx, logger, hash, upload.Data)
	if err != nil {
		return nil, s.logFailure(logger, err)
	}

	rows, err := s.insertLogicalImage(ctx, upload, hash, urls)
	if err != nil {
		if !dedup {
			s.reclaimVariantsLocked(ctx, logger, hash)
		}
		return nil, s.logFailure(logger, err)
	}

	images := groupRows(rows)
	result := &ProductUploadResult{
		GroupKey:     images[0].GroupKey,
		Images:       images[0].Variants,
		Deduplicated: dedup,
	}
	if images[0].IsPrimary {
		result.PrimaryImage = &images[0]
	}

	productID := upload.ProductID
	s.publisher.Publish(ctx, events.ImageEvent{
		Type:      events.ImageUploaded,
		ProductID: &productID,
		GroupKey:  result.GroupKey.String(),
		FileHash:  hash,
		Dedup:     dedup,
	})

	logger.Info("image uploaded",
		zap.String("stage", string(StageDone)),
		zap.String("group_key", result.GroupKey.String()),
		zap.Bool("dedup", dedup),
		zap.Bool("primary", images[0].IsPrimary),
	)

	return result, nil
}

// resolveVariants returns the stored URL of every size for hash, generating
// and writing the variants only when no complete set exists yet. The caller
// must hold the hash lock.
func (s *Service) resolveVariants(ctx context.Context, logger *zap.Logger, hash string, data []byte) (map[models.ImageSize]string, bool, error) {
	existing, err := s.images.FindByHash(ctx, hash)
	if err != nil {
		return nil, false, databaseError(StageHashed, err)
	}

	if urls, ok := variantURLs(existing); ok {
		logger.Debug("reusing stored variants", zap.String("stage", string(StageDedupHit)))
		return urls, true, nil
	}

	variants, err := s.generator.Generate(ctx, data)
	if err != nil {
		if errors.Is(err, imagevariants.ErrDecode) {
			return nil, false, newError(KindCorruptImage, StageDedupMiss, "file content is not a valid image", err)
		}
		return nil, false, newError(KindInternal, StageDedupMiss, "failed to generate image variants", err)
	}

	files := make([]filestorage.FileInfo, len(variants))
	for i, variant := range variants {
		files[i] = filestorage.NewFileInfo(filestorage.VariantKey(hash, string(variant.Size)), variant.Content, imagevariants.ContentType)
	}

	written, err := s.uploader.UploadAll(ctx, files)
	if err != nil {
		return nil, false, newError(KindStorageWrite, StageGenerated, "failed to store image variants", err)
	}

	urls := make(map[models.ImageSize]string, len(variants))
	for i, variant := range variants {
		urls[variant.Size] = written[i]
	}

	logger.Debug("stored new variants", zap.String("stage", string(StageStored)))
	return urls, false, nil
}

// insertLogicalImage writes the four size rows and reconciles the primary flag
// in one transaction, serialized per product.
func (s *Service) insertLogicalImage(ctx context.Context, upload ProductUpload, hash string, urls map[models.ImageSize]string) ([]models.ProductImage, error) {
	unlock, err := s.lockProduct(ctx, upload.ProductID)
	if err != nil {
		return nil, newError(KindInternal, StageStored, "upload cancelled", err)
	}
	defer unlock()

	groupKey := uuid.New()
	productID := upload.ProductID
	createdAt := time.Now().UTC()

	rows := make([]*models.ProductImage, 0, len(imagevariants.Specs))
	for _, spec := range imagevariants.Specs {
		row := models.NewProductImage(groupKey, &productID, spec.Size, urls[spec.Size], hash)
		row.CreatedAt = createdAt
		rows = append(rows, row)
	}

	err = s.inTx(ctx, func(ctx context.Context, tx *bun.Tx) error {
		images := s.images.WithTx(tx)

		if err := images.LockProduct(ctx, productID); err != nil {
			return databaseError(StageStored, err)
		}

		displayOrder := 0
		if upload.ImageIndex != nil {
			displayOrder = *upload.ImageIndex
		} else {
			next, err := images.NextDisplayOrder(ctx, productID)
			if err != nil {
				return databaseError(StageStored, err)
			}
			displayOrder = next
		}

		count, err := images.CountLogicalByProduct(ctx, productID)
		if err != nil {
			return databaseError(StageStored, err)
		}

		primary := upload.IsPrimary || count == 0
		if primary {
			if err := images.ClearPrimary(ctx, productID); err != nil {
				return databaseError(StagePrimaryReconciled, err)
			}
		}

		for _, row := range rows {
			row.IsPrimary = primary
			row.DisplayOrder = displayOrder
		}

		if err := images.CreateLogicalImage(ctx, rows); err != nil {
			return databaseError(StageStored, err)
		}

		return nil
	})
	if err != nil {
		var pe *PipelineError
		if errors.As(err, &pe) {
			return nil, pe
		}
		return nil, databaseError(StageStored, err)
	}

	result := make([]models.ProductImage, len(rows))
	for i, row := range rows {
		result[i] = *row
	}
	return result, nil
}
