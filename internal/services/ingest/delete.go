package ingest

import (
	"context"
	"errors"

	"github.com/cozy-creator/image-ingest/internal/db/models"
	"github.com/cozy-creator/image-ingest/internal/db/repository"
	"github.com/cozy-creator/image-ingest/internal/events"
	"github.com/cozy-creator/image-ingest/internal/services/filestorage"
	"github.com/cozy-creator/image-ingest/internal/services/imagevariants"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// DeleteImage removes one logical image. When it was the product's primary,
// the product's oldest remaining image takes over.
func (s *Service) DeleteImage(ctx context.Context, groupKey uuid.UUID) error {
	logger := s.logger.With(zap.String("group_key", groupKey.String()))

	rows, err := s.images.GetByGroupKey(ctx, groupKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.logFailure(logger, notFoundError(StageReceived, "image %s not found", groupKey))
		}
		return s.logFailure(logger, databaseError(StageReceived, err))
	}

	// The product lock must be released before reclaiming storage, which takes
	// the hash lock; uploads acquire them in the opposite order.
	unlock := func() {}
	productID := rows[0].ProductID
	if productID != nil {
		logger = logger.With(zap.Int64("product_id", *productID))

		unlock, err = s.lockProduct(ctx, *productID)
		if err != nil {
			return s.logFailure(logger, newError(KindInternal, StageReceived, "request cancelled", err))
		}
	}

	var deleted []models.ProductImage
	err = s.inTx(ctx, func(ctx context.Context, tx *bun.Tx) error {
		images := s.images.WithTx(tx)

		if productID != nil {
			if err := images.LockProduct(ctx, *productID); err != nil {
				return databaseError(StageReceived, err)
			}
		}

		rows, err := images.DeleteByGroupKey(ctx, groupKey)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFoundError(StageReceived, "image %s not found", groupKey)
			}
			return databaseError(StageReceived, err)
		}
		deleted = rows

		if productID == nil || !deleted[0].IsPrimary {
			return nil
		}

		next, err := images.OldestGroupKey(ctx, *productID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return databaseError(StagePrimaryReconciled, err)
		}

		if _, err := images.SetPrimary(ctx, *productID, next); err != nil {
			return databaseError(StagePrimaryReconciled, err)
		}
		logger.Info("promoted primary image", zap.String("primary", next.String()))
		return nil
	})
	unlock()
	if err != nil {
		return s.logFailure(logger, asPipelineError(err, StageReceived))
	}

	s.publisher.Publish(ctx, events.ImageEvent{
		Type:      events.ImageDeleted,
		ProductID: productID,
		GroupKey:  groupKey.String(),
		FileHash:  deleted[0].FileHash,
	})
	logger.Info("image deleted")

	s.reclaimVariants(ctx, logger, deleted[0].FileHash)
	return nil
}

// DeleteAllForProduct removes every image of productID. Deleting from a product
// without images succeeds and reports zero.
func (s *Service) DeleteAllForProduct(ctx context.Context, productID int64) (int, error) {
	logger := s.logger.With(zap.Int64("product_id", productID))

	if productID <= 0 {
		return 0, s.logFailure(logger, validationError(StageReceived, "productId must be a positive integer"))
	}

	unlock, err := s.lockProduct(ctx, productID)
	if err != nil {
		return 0, s.logFailure(logger, newError(KindInternal, StageReceived, "request cancelled", err))
	}

	var deleted []models.ProductImage
	err = s.inTx(ctx, func(ctx context.Context, tx *bun.Tx) error {
		images := s.images.WithTx(tx)

		if err := images.LockProduct(ctx, productID); err != nil {
			return err
		}

		rows, err := images.DeleteByProduct(ctx, productID)
		deleted = rows
		return err
	})
	unlock()
	if err != nil {
		return 0, s.logFailure(logger, databaseError(StageReceived, err))
	}

	logical := groupRows(deleted)
	if len(logical) == 0 {
		return 0, nil
	}

	s.publisher.Publish(ctx, events.ImageEvent{
		Type:      events.ProductImagesDeleted,
		ProductID: &productID,
	})
	logger.Info("product images deleted", zap.Int("count", len(logical)))

	seen := make(map[string]bool, len(logical))
	for _, image := range logical {
		if seen[image.FileHash] {
			continue
		}
		seen[image.FileHash] = true
		s.reclaimVariants(ctx, logger, image.FileHash)
	}

	return len(logical), nil
}

// reclaimVariants deletes the stored variants of hash once no product image
// references it any more.
func (s *Service) reclaimVariants(ctx context.Context, logger *zap.Logger, hash string) {
	unlock, err := s.hashLocks.Lock(context.WithoutCancel(ctx), hash)
	if err != nil {
		return
	}
	defer unlock()

	s.reclaimVariantsLocked(ctx, logger, hash)
}

// reclaimVariantsLocked is reclaimVariants for callers already holding the
// hash lock.
func (s *Service) reclaimVariantsLocked(ctx context.Context, logger *zap.Logger, hash string) {
	ctx = context.WithoutCancel(ctx)

	refs, err := s.images.CountByHash(ctx, hash)
	if err != nil {
		logger.Warn("failed to count hash references", zap.String("hash", hash), zap.Error(err))
		return
	}
	if refs > 0 {
		return
	}

	keys := make([]string, 0, len(imagevariants.Specs))
	for _, spec := range imagevariants.Specs {
		keys = append(keys, filestorage.VariantKey(hash, string(spec.Size)))
	}

	if err := s.uploader.DeleteAll(ctx, keys); err != nil {
		logger.Warn("failed to reclaim variants", zap.String("hash", hash), zap.Error(err))
		return
	}

	s.publisher.Publish(ctx, events.ImageEvent{Type: events.ObjectsReclaimed, FileHash: hash})
	logger.Debug("reclaimed variants", zap.String("hash", hash))
}

// reclaimSiteObject deletes a superseded site image object once no slot
// references its hash.
func (s *Service) reclaimSiteObject(ctx context.Context, logger *zap.Logger, previous *models.SiteImage) {
	unlock, err := s.hashLocks.Lock(context.WithoutCancel(ctx), previous.FileHash)
	if err != nil {
		return
	}
	defer unlock()

	s.reclaimSiteObjectLocked(ctx, logger, previous.Slot, previous.FileHash, previous.ObjectKey)
}

// reclaimSiteObjectLocked is reclaimSiteObject for callers already holding the
// hash lock.
func (s *Service) reclaimSiteObjectLocked(ctx context.Context, logger *zap.Logger, slot models.SiteSlot, hash, key string) {
	ctx = context.WithoutCancel(ctx)

	refs, err := s.siteImages.CountByHash(ctx, hash)
	if err != nil {
		logger.Warn("failed to count hash references", zap.String("hash", hash), zap.Error(err))
		return
	}
	if refs > 0 {
		return
	}

	if err := s.uploader.DeleteAll(ctx, []string{key}); err != nil {
		logger.Warn("failed to reclaim site image", zap.String("key", key), zap.Error(err))
		return
	}

	s.publisher.Publish(ctx, events.ImageEvent{Type: events.ObjectsReclaimed, Slot: string(slot), FileHash: hash})
}
