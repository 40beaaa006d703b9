package ingest

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/cozy-creator/image-ingest/internal/db/repository"
	"github.com/google/uuid"
)

const (
	DefaultGalleryLimit = 20
	MaxGalleryLimit     = 100
)

type GalleryQuery struct {
	Filter    string
	ProductID string
	Page      string
	Limit     string
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type GalleryPage struct {
	Images     []LogicalImage `json:"images"`
	Pagination Pagination     `json:"pagination"`
}

// Gallery pages through logical images, newest first. "used" images belong to
// an existing product, "unused" ones do not.
func (s *Service) Gallery(ctx context.Context, query GalleryQuery) (*GalleryPage, error) {
	filter := repository.GalleryFilter(strings.ToLower(query.Filter))
	switch filter {
	case "":
		filter = repository.GalleryFilterAll
	case repository.GalleryFilterAll, repository.GalleryFilterUsed, repository.GalleryFilterUnused:
	default:
		return nil, validationError(StageReceived, "invalid filter %q, expected all, used or unused", query.Filter)
	}

	page, err := positiveParam("page", query.Page, 1)
	if err != nil {
		return nil, err
	}
	limit, err := positiveParam("limit", query.Limit, DefaultGalleryLimit)
	if err != nil {
		return nil, err
	}
	limit = min(limit, MaxGalleryLimit)
	if page-1 > math.MaxInt/limit {
		return nil, validationError(StageReceived, "page %d is out of range", page)
	}

	list := repository.GalleryListQuery{Filter: filter, Limit: limit, Offset: (page - 1) * limit}
	if query.ProductID != "" {
		productID, err := strconv.ParseInt(query.ProductID, 10, 64)
		if err != nil || productID <= 0 {
			return nil, validationError(StageReceived, "productId must be a positive integer")
		}
		list.ProductID = &productID
	}

	groupKeys, total, err := s.images.ListGroupKeys(ctx, list)
	if err != nil {
		return nil, s.logFailure(s.logger, databaseError(StageReceived, err))
	}

	rows, err := s.images.GetByGroupKeys(ctx, groupKeys)
	if err != nil {
		return nil, s.logFailure(s.logger, databaseError(StageReceived, err))
	}

	return &GalleryPage{
		Images: orderByKeys(groupRows(rows), groupKeys),
		Pagination: Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: (total + limit - 1) / limit,
		},
	}, nil
}

func (s *Service) ListProductImages(ctx context.Context, productID int64) ([]LogicalImage, error) {
	if productID <= 0 {
		return nil, validationError(StageReceived, "productId must be a positive integer")
	}
	if err := s.productExists(ctx, StageReceived, productID); err != nil {
		return nil, err
	}

	rows, err := s.images.ListByProduct(ctx, productID)
	if err != nil {
		return nil, s.logFailure(s.logger, databaseError(StageReceived, err))
	}

	images := groupRows(rows)
	if images == nil {
		images = []LogicalImage{}
	}
	return images, nil
}

type ProductCountsQuery struct {
	SortBy        string
	SortDirection string
	HasImages     string
}

func (s *Service) ProductImageCounts(ctx context.Context, query ProductCountsQuery) ([]repository.ProductImageCount, error) {
	q := repository.ProductCountQuery{
		SortBy:    repository.ProductSortName,
		Direction: repository.SortAsc,
	}

	switch sortBy := repository.ProductSort(strings.ToLower(query.SortBy)); sortBy {
	case "":
	case repository.ProductSortName, repository.ProductSortImageCount:
		q.SortBy = sortBy
	default:
		return nil, validationError(StageReceived, "invalid sort_by %q, expected name or image_count", query.SortBy)
	}

	switch direction := repository.SortDirection(strings.ToLower(query.SortDirection)); direction {
	case "":
	case repository.SortAsc, repository.SortDesc:
		q.Direction = direction
	default:
		return nil, validationError(StageReceived, "invalid sort_direction %q, expected asc or desc", query.SortDirection)
	}

	switch strings.ToLower(query.HasImages) {
	case "":
	case "yes", "true", "1":
		hasImages := true
		q.HasImages = &hasImages
	case "no", "false", "0":
		hasImages := false
		q.HasImages = &hasImages
	default:
		return nil, validationError(StageReceived, "invalid has_images %q, expected yes or no", query.HasImages)
	}

	rows, err := s.products.ListWithImageCounts(ctx, q)
	if err != nil {
		return nil, s.logFailure(s.logger, databaseError(StageReceived, err))
	}
	if rows == nil {
		rows = []repository.ProductImageCount{}
	}

	return rows, nil
}

func positiveParam(name, value string, fallback int) (int, error) {
	if value == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return 0, validationError(StageReceived, "%s must be a positive integer", name)
	}
	return n, nil
}

func orderByKeys(images []LogicalImage, groupKeys []uuid.UUID) []LogicalImage {
	byKey := make(map[uuid.UUID]LogicalImage, len(images))
	for _, image := range images {
		byKey[image.GroupKey] = image
	}

	ordered := make([]LogicalImage, 0, len(groupKeys))
	for _, key := range groupKeys {
		if image, ok := byKey[key]; ok {
			ordered = append(ordered, image)
		}
	}
	return ordered
}
