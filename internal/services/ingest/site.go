package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/cozy-creator/image-ingest/internal/db/models"
	"github.com/cozy-creator/image-ingest/internal/db/repository"
	"github.com/cozy-creator/image-ingest/internal/events"
	"github.com/cozy-creator/image-ingest/internal/services/filestorage"
	"github.com/cozy-creator/image-ingest/internal/utils/hashutil"
	"github.com/cozy-creator/image-ingest/internal/utils/imageutil"
	"github.com/gabriel-vasile/mimetype"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

type SiteUpload struct {
	Slot        string
	ContentType string
	Size        int64
	Data        []byte
}

func parseSlot(slot string) (models.SiteSlot, error) {
	s := models.SiteSlot(slot)
	if !s.Valid() {
		return "", validationError(StageReceived, "invalid site image type %q, expected hero or logo", slot)
	}
	return s, nil
}

// UploadSiteImage stores the original bytes and makes them the slot's current
// image, superseding whatever was there.
func (s *Service) UploadSiteImage(ctx context.Context, upload SiteUpload) (*models.SiteImage, error) {
	logger := s.logger.With(zap.String("slot", upload.Slot))

	slot, err := parseSlot(upload.Slot)
	if err != nil {
		return nil, s.logFailure(logger, err)
	}
	if err := s.validator.Validate(upload.ContentType, upload.Size, upload.Data); err != nil {
		return nil, s.logFailure(logger, err)
	}
	if _, _, err := imageutil.Decode(upload.Data); err != nil {
		return nil, s.logFailure(logger, newError(KindCorruptImage, StageValidated, "file content is not a valid image", err))
	}

	hash := hashutil.Blake3Hash(upload.Data)
	logger = logger.With(zap.String("hash", hash))

	image, previous, err := s.storeSiteImage(ctx, slot, hash, upload.Data)
	if err != nil {
		return nil, s.logFailure(logger, err)
	}

	s.publisher.Publish(ctx, events.ImageEvent{Type: events.SiteImageReplaced, Slot: string(slot), FileHash: hash})
	logger.Info("site image replaced", zap.String("stage", string(StageDone)))

	if previous != nil && previous.FileHash != hash {
		s.reclaimSiteObject(ctx, logger, previous)
	}

	return image, nil
}

func (s *Service) storeSiteImage(ctx context.Context, slot models.SiteSlot, hash string, data []byte) (*models.SiteImage, *models.SiteImage, error) {
	unlockHash, err := s.hashLocks.Lock(ctx, hash)
	if err != nil {
		return nil, nil, newError(KindInternal, StageHashed, "upload cancelled", err)
	}
	defer unlockHash()

	// Another slot may already hold these bytes.
	url, key, written := "", "", false
	existing, err := s.siteImages.FindByHash(ctx, hash)
	switch {
	case err == nil:
		url, key = existing.Url, existing.ObjectKey
	case errors.Is(err, repository.ErrNotFound):
		detected := mimetype.Detect(data)
		key = filestorage.SiteKey(hash, detected.Extension())

		urls, err := s.uploader.UploadAll(ctx, []filestorage.FileInfo{filestorage.NewFileInfo(key, data, detected.String())})
		if err != nil {
			return nil, nil, newError(KindStorageWrite, StageHashed, "failed to store site image", err)
		}
		url, written = urls[0], true
	default:
		return nil, nil, databaseError(StageHashed, err)
	}

	unlockSlot, err := s.slotLocks.Lock(ctx, string(slot))
	if err != nil {
		if written {
			s.reclaimSiteObjectLocked(ctx, s.logger, slot, hash, key)
		}
		return nil, nil, newError(KindInternal, StageStored, "upload cancelled", err)
	}
	defer unlockSlot()

	image := &models.SiteImage{
		Slot:      slot,
		Url:       url,
		FileHash:  hash,
		ObjectKey: key,
		UpdatedAt: time.Now().UTC(),
	}

	var previous *models.SiteImage
	err = s.inTx(ctx, func(ctx context.Context, tx *bun.Tx) error {
		siteImages := s.siteImages.WithTx(tx)

		current, err := siteImages.Get(ctx, slot)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		previous = current

		return siteImages.Upsert(ctx, image)
	})
	if err != nil {
		if written {
			s.reclaimSiteObjectLocked(ctx, s.logger, slot, hash, key)
		}
		return nil, nil, databaseError(StageStored, err)
	}

	return image, previous, nil
}

func (s *Service) GetSiteImage(ctx context.Context, slotName string) (*models.SiteImage, error) {
	slot, err := parseSlot(slotName)
	if err != nil {
		return nil, err
	}

	image, err := s.siteImages.Get(ctx, slot)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError(StageReceived, "no %s image has been uploaded", slot)
		}
		return nil, s.logFailure(s.logger.With(zap.String("slot", slotName)), databaseError(StageReceived, err))
	}

	return image, nil
}
