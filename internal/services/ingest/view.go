package ingest

import (
	"slices"
	"time"

	"github.com/cozy-creator/image-ingest/internal/db/models"
	"github.com/cozy-creator/image-ingest/internal/services/imagevariants"
	"github.com/google/uuid"
)

type VariantURL struct {
	Size     models.ImageSize `json:"size"`
	URL      string           `json:"url"`
	FileHash string           `json:"fileHash"`
}

// LogicalImage is one uploaded image with its four size variants.
type LogicalImage struct {
	GroupKey     uuid.UUID    `json:"groupKey"`
	ProductID    *int64       `json:"productId"`
	FileHash     string       `json:"fileHash"`
	IsPrimary    bool         `json:"isPrimary"`
	DisplayOrder int          `json:"displayOrder"`
	CreatedAt    time.Time    `json:"createdAt"`
	Variants     []VariantURL `json:"variants"`
}

var sizeRank = func() map[models.ImageSize]int {
	rank := make(map[models.ImageSize]int, len(imagevariants.Specs))
	for i, spec := range imagevariants.Specs {
		rank[spec.Size] = i
	}
	return rank
}()

// groupRows folds size rows into logical images, keeping the order in which
// group keys first appear.
func groupRows(rows []models.ProductImage) []LogicalImage {
	var (
		images []LogicalImage
		index  = make(map[uuid.UUID]int)
	)

	for _, row := range rows {
		i, ok := index[row.GroupKey]
		if !ok {
			i = len(images)
			index[row.GroupKey] = i
			images = append(images, LogicalImage{
				GroupKey:     row.GroupKey,
				ProductID:    row.ProductID,
				FileHash:     row.FileHash,
				IsPrimary:    row.IsPrimary,
				DisplayOrder: row.DisplayOrder,
				CreatedAt:    row.CreatedAt,
				Variants:     make([]VariantURL, 0, len(imagevariants.Specs)),
			})
		}

		images[i].Variants = append(images[i].Variants, VariantURL{Size: row.Size, URL: row.Url, FileHash: row.FileHash})
	}

	for i := range images {
		sortVariants(images[i].Variants)
	}

	return images
}

func sortVariants(variants []VariantURL) {
	slices.SortFunc(variants, func(a, b VariantURL) int {
		return sizeRank[a.Size] - sizeRank[b.Size]
	})
}

// variantURLs returns the URL of each size when rows form a complete set.
func variantURLs(rows []models.ProductImage) (map[models.ImageSize]string, bool) {
	urls := make(map[models.ImageSize]string, len(imagevariants.Specs))
	for _, row := range rows {
		urls[row.Size] = row.Url
	}

	for _, spec := range imagevariants.Specs {
		if urls[spec.Size] == "" {
			return nil, false
		}
	}

	return urls, len(rows) == len(imagevariants.Specs)
}
