package repository

import (
	"context"
	"fmt"

	"github.com/cozy-creator/image-ingest/internal/db/models"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type GalleryFilter string

const (
	GalleryFilterAll    GalleryFilter = "all"
	GalleryFilterUsed   GalleryFilter = "used"
	GalleryFilterUnused GalleryFilter = "unused"
)

type IImageRepository interface {
	WithTx(tx *bun.Tx) IImageRepository
	CreateLogicalImage(ctx context.Context, rows []*models.ProductImage) error
	GetByGroupKey(ctx context.Context, groupKey uuid.UUID) ([]models.ProductImage, error)
	GetByGroupKeys(ctx context.Context, groupKeys []uuid.UUID) ([]models.ProductImage, error)
	ListByProduct(ctx context.Context, productID int64) ([]models.ProductImage, error)
	FindByHash(ctx context.Context, fileHash string) ([]models.ProductImage, error)
	CountByHash(ctx context.Context, fileHash string) (int, error)
	CountLogicalByProduct(ctx context.Context, productID int64) (int, error)
	NextDisplayOrder(ctx context.Context, productID int64) (int, error)
	LockProduct(ctx context.Context, productID int64) error
	ClearPrimary(ctx context.Context, productID int64) error
	SetPrimary(ctx context.Context, productID int64, groupKey uuid.UUID) (int, error)
	OldestGroupKey(ctx context.Context, productID int64) (uuid.UUID, error)
	DeleteByGroupKey(ctx context.Context, groupKey uuid.UUID) ([]models.ProductImage, error)
	DeleteByProduct(ctx context.Context, productID int64) ([]models.ProductImage, error)
	ListGroupKeys(ctx context.Context, query GalleryListQuery) ([]uuid.UUID, int, error)
}

type ImageRepository struct {
	db bun.IDB
}

func NewImageRepository(db *bun.DB) IImageRepository {
	return &ImageRepository{db: db}
}

func (r *ImageRepository) CreateLogicalImage(ctx context.Context, rows []*models.ProductImage) error {
	if len(rows) == 0 {
		return fmt.Errorf("logical image has no rows")
	}

	_, err := r.db.NewInsert().Model(&rows).Exec(ctx)
	return err
}

func (r *ImageRepository) GetByGroupKey(ctx context.Context, groupKey uuid.UUID) ([]models.ProductImage, error) {
	var images []models.ProductImage
	if err := r.db.NewSelect().
		Model(&images).
		Where("group_key = ?", groupKey).
		Scan(ctx); err != nil {
		return nil, err
	}

	if len(images) == 0 {
		return nil, ErrNotFound
	}

	return images, nil
}

func (r *ImageRepository) GetByGroupKeys(ctx context.Context, groupKeys []uuid.UUID) ([]models.ProductImage, error) {
	var images []models.ProductImage
	if len(groupKeys) == 0 {
		return images, nil
	}

	err := r.db.NewSelect().
		Model(&images).
		Where("group_key IN (?)", bun.In(groupKeys)).
		Order("created_at DESC", "group_key ASC").
		Scan(ctx)
	return images, err
}

func (r *ImageRepository) ListByProduct(ctx context.Context, productID int64) ([]models.ProductImage, error) {
	var images []models.ProductImage
	err := r.db.NewSelect().
		Model(&images).
		Where("product_id = ?", productID).
		Order("display_order ASC", "created_at ASC", "group_key ASC").
		Scan(ctx)
	return images, err
}

// FindByHash returns the rows of the oldest logical image stored under fileHash,
// or an empty slice when the content has never been stored.
func (r *ImageRepository) FindByHash(ctx context.Context, fileHash string) ([]models.ProductImage, error) {
	var groupKeys []uuid.UUID
	if err := r.db.NewSelect().
		Model((*models.ProductImage)(nil)).
		Column("group_key").
		Where("file_hash = ?", fileHash).
		Order("created_at ASC", "group_key ASC").
		Limit(1).
		Scan(ctx, &groupKeys); err != nil {
		return nil, err
	}

	var images []models.ProductImage
	if len(groupKeys) == 0 {
		return images, nil
	}

	err := r.db.NewSelect().
		Model(&images).
		Where("group_key = ?", groupKeys[0]).
		Scan(ctx)
	return images, err
}

func (r *ImageRepository) CountByHash(ctx context.Context, fileHash string) (int, error) {
	return r.db.NewSelect().
		Model((*models.ProductImage)(nil)).
		Where("file_hash = ?", fileHash).
		Count(ctx)
}

func (r *ImageRepository) CountLogicalByProduct(ctx context.Context, productID int64) (int, error) {
	var count int
	err := r.db.NewSelect().
		Model((*models.ProductImage)(nil)).
		ColumnExpr("COUNT(DISTINCT group_key)").
		Where("product_id = ?", productID).
		Scan(ctx, &count)
	return count, err
}

func (r *ImageRepository) NextDisplayOrder(ctx context.Context, productID int64) (int, error) {
	var next int
	err := r.db.NewSelect().
		Model((*models.ProductImage)(nil)).
		ColumnExpr("COALESCE(MAX(display_order) + 1, 0)").
		Where("product_id = ?", productID).
		Scan(ctx, &next)
	return next, err
}

// LockProduct serializes primary-flag mutations for productID until the
// surrounding transaction ends. SQLite already serializes writers, so only
// PostgreSQL needs explicit locking.
func (r *ImageRepository) LockProduct(ctx context.Context, productID int64) error {
	if !isPostgres(r.db) {
		return nil
	}

	if _, err := r.db.ExecContext(ctx, "SELECT pg_advisory_xact_lock(?)", productID); err != nil {
		return err
	}

	var ids []uuid.UUID
	return r.db.NewSelect().
		Model((*models.ProductImage)(nil)).
		Column("id").
		Where("product_id = ?", productID).
		For("UPDATE").
		Scan(ctx, &ids)
}

func (r *ImageRepository) ClearPrimary(ctx context.Context, productID int64) error {
	_, err := r.db.NewUpdate().
		Model((*models.ProductImage)(nil)).
		Set("is_primary = ?", false).
		Where("product_id = ?", productID).
		Where("is_primary = ?", true).
		Exec(ctx)
	return err
}

// SetPrimary flags every size row of groupKey as primary and reports how many
// rows matched. Zero means the logical image does not belong to productID.
func (r *ImageRepository) SetPrimary(ctx context.Context, productID int64, groupKey uuid.UUID) (int, error) {
	res, err := r.db.NewUpdate().
		Model((*models.ProductImage)(nil)).
		Set("is_primary = ?", true).
		Where("product_id = ?", productID).
		Where("group_key = ?", groupKey).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	return int(affected), nil
}

func (r *ImageRepository) OldestGroupKey(ctx context.Context, productID int64) (uuid.UUID, error) {
	var groupKeys []uuid.UUID
	if err := r.db.NewSelect().
		Model((*models.ProductImage)(nil)).
		Column("group_key").
		Where("product_id = ?", productID).
		Order("display_order ASC", "created_at ASC", "group_key ASC").
		Limit(1).
		Scan(ctx, &groupKeys); err != nil {
		return uuid.Nil, err
	}

	if len(groupKeys) == 0 {
		return uuid.Nil, ErrNotFound
	}

	return groupKeys[0], nil
}

func (r *ImageRepository) DeleteByGroupKey(ctx context.Context, groupKey uuid.UUID) ([]models.ProductImage, error) {
	images, err := r.GetByGroupKey(ctx, groupKey)
	if err != nil {
		return nil, err
	}

	if _, err := r.db.NewDelete().
		Model((*models.ProductImage)(nil)).
		Where("group_key = ?", groupKey).
		Exec(ctx); err != nil {
		return nil, err
	}

	return images, nil
}

func (r *ImageRepository) DeleteByProduct(ctx context.Context, productID int64) ([]models.ProductImage, error) {
	images, err := r.ListByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	if len(images) == 0 {
		return images, nil
	}

	if _, err := r.db.NewDelete().
		Model((*models.ProductImage)(nil)).
		Where("product_id = ?", productID).
		Exec(ctx); err != nil {
		return nil, err
	}

	return images, nil
}

type GalleryListQuery struct {
	Filter    GalleryFilter
	ProductID *int64
	Limit     int
	Offset    int
}

// ListGroupKeys pages through logical images, newest first. Used images belong
// to a product that still exists; unused ones are orphaned.
func (r *ImageRepository) ListGroupKeys(ctx context.Context, query GalleryListQuery) ([]uuid.UUID, int, error) {
	base := func() *bun.SelectQuery {
		q := r.db.NewSelect().
			TableExpr("product_images AS pi").
			Join("LEFT JOIN products AS p ON p.id = pi.product_id")

		if query.ProductID != nil {
			q = q.Where("pi.product_id = ?", *query.ProductID)
		}

		switch query.Filter {
		case GalleryFilterUsed:
			q = q.Where("p.id IS NOT NULL")
		case GalleryFilterUnused:
			q = q.Where("p.id IS NULL")
		}

		return q
	}

	var total int
	if err := base().
		ColumnExpr("COUNT(DISTINCT pi.group_key)").
		Scan(ctx, &total); err != nil {
		return nil, 0, err
	}

	var groupKeys []uuid.UUID
	if err := base().
		ColumnExpr("pi.group_key").
		GroupExpr("pi.group_key").
		OrderExpr("MAX(pi.created_at) DESC").
		OrderExpr("pi.group_key ASC").
		Limit(query.Limit).
		Offset(query.Offset).
		Scan(ctx, &groupKeys); err != nil {
		return nil, 0, err
	}

	return groupKeys, total, nil
}

func (r *ImageRepository) WithTx(tx *bun.Tx) IImageRepository {
	return &ImageRepository{db: tx}
}
