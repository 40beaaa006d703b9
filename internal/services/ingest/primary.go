package ingest

import (
	"context"
	"errors"

	"github.com/cozy-creator/image-ingest/internal/db/repository"
	"github.com/cozy-creator/image-ingest/internal/events"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// SetPrimary makes groupKey the single primary image of productID. Calls for
// the same product are serialized, and the clear and set happen in one
// transaction, so readers never see zero or two primaries.
func (s *Service) SetPrimary(ctx context.Context, productID int64, groupKey uuid.UUID) (*LogicalImage, error) {
	logger := s.logger.With(zap.Int64("product_id", productID), zap.String("group_key", groupKey.String()))

	if productID <= 0 {
		return nil, s.logFailure(logger, validationError(StageReceived, "productId must be a positive integer"))
	}

	unlock, err := s.lockProduct(ctx, productID)
	if err != nil {
		return nil, s.logFailure(logger, newError(KindInternal, StageReceived, "request cancelled", err))
	}
	defer unlock()

	var image *LogicalImage
	err = s.inTx(ctx, func(ctx context.Context, tx *bun.Tx) error {
		images := s.images.WithTx(tx)

		if err := images.LockProduct(ctx, productID); err != nil {
			return databaseError(StagePrimaryReconciled, err)
		}

		rows, err := images.GetByGroupKey(ctx, groupKey)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFoundError(StageReceived, "image %s not found", groupKey)
			}
			return databaseError(StagePrimaryReconciled, err)
		}
		if rows[0].ProductID == nil || *rows[0].ProductID != productID {
			return notFoundError(StageReceived, "image %s does not belong to product %d", groupKey, productID)
		}

		if err := images.ClearPrimary(ctx, productID); err != nil {
			return databaseError(StagePrimaryReconciled, err)
		}
		if _, err := images.SetPrimary(ctx, productID, groupKey); err != nil {
			return databaseError(StagePrimaryReconciled, err)
		}

		for i := range rows {
			rows[i].IsPrimary = true
		}
		image = &groupRows(rows)[0]
		return nil
	})
	if err != nil {
		return nil, s.logFailure(logger, asPipelineError(err, StagePrimaryReconciled))
	}

	s.publisher.Publish(ctx, events.ImageEvent{
		Type:      events.PrimaryChanged,
		ProductID: &productID,
		GroupKey:  groupKey.String(),
		FileHash:  image.FileHash,
	})
	logger.Info("primary image changed")

	return image, nil
}

func asPipelineError(err error, stage Stage) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return databaseError(stage, err)
}
