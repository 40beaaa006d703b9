package repository

import (
	"context"
	"fmt"

	"github.com/cozy-creator/image-ingest/internal/db/models"
	"github.com/uptrace/bun"
)

type ProductSort string

const (
	ProductSortName       ProductSort = "name"
	ProductSortImageCount ProductSort = "image_count"
)

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

type ProductImageCount struct {
	ID         int64   `bun:"id" json:"id"`
	Name       string  `bun:"name" json:"name"`
	Price      float64 `bun:"price" json:"price"`
	ImageCount int     `bun:"image_count" json:"image_count"`
}

type ProductCountQuery struct {
	SortBy    ProductSort
	Direction SortDirection
	// HasImages restricts the listing to products with (true) or without
	// (false) images. Nil lists every product.
	HasImages *bool
}

type IProductRepository interface {
	Exists(ctx context.Context, productID int64) (bool, error)
	ListWithImageCounts(ctx context.Context, query ProductCountQuery) ([]ProductImageCount, error)
}

type ProductRepository struct {
	db bun.IDB
}

func NewProductRepository(db *bun.DB) IProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Exists(ctx context.Context, productID int64) (bool, error) {
	return r.db.NewSelect().
		Model((*models.Product)(nil)).
		Where("id = ?", productID).
		Exists(ctx)
}

func (r *ProductRepository) ListWithImageCounts(ctx context.Context, query ProductCountQuery) ([]ProductImageCount, error) {
	q := r.db.NewSelect().
		TableExpr("products AS p").
		ColumnExpr("p.id, p.name, p.price").
		ColumnExpr("COUNT(DISTINCT pi.group_key) AS image_count").
		Join("LEFT JOIN product_images AS pi ON pi.product_id = p.id").
		GroupExpr("p.id, p.name, p.price")

	if query.HasImages != nil {
		if *query.HasImages {
			q = q.Having("COUNT(pi.id) > 0")
		} else {
			q = q.Having("COUNT(pi.id) = 0")
		}
	}

	direction := "ASC"
	if query.Direction == SortDesc {
		direction = "DESC"
	}

	switch query.SortBy {
	case ProductSortImageCount:
		q = q.OrderExpr(fmt.Sprintf("image_count %s", direction))
	case ProductSortName, "":
		q = q.OrderExpr(fmt.Sprintf("p.name %s", direction))
	default:
		return nil, fmt.Errorf("invalid sort field: %s", query.SortBy)
	}

	var rows []ProductImageCount
	if err := q.OrderExpr("p.id ASC").Scan(ctx, &rows); err != nil {
		return nil, err
	}

	return rows, nil
}
