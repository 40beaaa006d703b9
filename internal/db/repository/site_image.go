package repository

import (
	"context"

	"github.com/cozy-creator/image-ingest/internal/db/models"
	"github.com/uptrace/bun"
)

type ISiteImageRepository interface {
	WithTx(tx *bun.Tx) ISiteImageRepository
	Get(ctx context.Context, slot models.SiteSlot) (*models.SiteImage, error)
	Upsert(ctx context.Context, image *models.SiteImage) error
	CountByHash(ctx context.Context, fileHash string) (int, error)
	FindByHash(ctx context.Context, fileHash string) (*models.SiteImage, error)
}

type SiteImageRepository struct {
	db bun.IDB
}

func NewSiteImageRepository(db *bun.DB) ISiteImageRepository {
	return &SiteImageRepository{db: db}
}

func (r *SiteImageRepository) Get(ctx context.Context, slot models.SiteSlot) (*models.SiteImage, error) {
	image := &models.SiteImage{}
	q := r.db.NewSelect().Model(image).Where("slot = ?", slot)
	if isPostgres(r.db) {
		q = q.For("UPDATE")
	}

	if err := q.Scan(ctx); err != nil {
		return nil, notFound(err)
	}

	return image, nil
}

// Upsert replaces whatever currently occupies the slot.
func (r *SiteImageRepository) Upsert(ctx context.Context, image *models.SiteImage) error {
	_, err := r.db.NewInsert().
		Model(image).
		On("CONFLICT (slot) DO UPDATE").
		Set("url = EXCLUDED.url").
		Set("file_hash = EXCLUDED.file_hash").
		Set("object_key = EXCLUDED.object_key").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (r *SiteImageRepository) CountByHash(ctx context.Context, fileHash string) (int, error) {
	return r.db.NewSelect().
		Model((*models.SiteImage)(nil)).
		Where("file_hash = ?", fileHash).
		Count(ctx)
}

// FindByHash returns any slot currently holding fileHash.
func (r *SiteImageRepository) FindByHash(ctx context.Context, fileHash string) (*models.SiteImage, error) {
	image := &models.SiteImage{}
	if err := r.db.NewSelect().
		Model(image).
		Where("file_hash = ?", fileHash).
		Order("slot ASC").
		Limit(1).
		Scan(ctx); err != nil {
		return nil, notFound(err)
	}

	return image, nil
}

func (r *SiteImageRepository) WithTx(tx *bun.Tx) ISiteImageRepository {
	return &SiteImageRepository{db: tx}
}
