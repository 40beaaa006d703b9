package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ImageSize string

const (
	ImageSizeThumb  ImageSize = "thumb"
	ImageSizeSmall  ImageSize = "small"
	ImageSizeMedium ImageSize = "medium"
	ImageSizeLarge  ImageSize = "large"
)

// ProductImage is one stored variant of a logical image. The four rows of a
// logical image share GroupKey, FileHash, IsPrimary and DisplayOrder.
type ProductImage struct {
	bun.BaseModel `bun:"table:product_images,alias:pi"`

	ID           uuid.UUID `bun:",type:uuid,pk"`
	GroupKey     uuid.UUID `bun:",type:uuid,notnull"`
	ProductID    *int64    `bun:",nullzero"`
	Size         ImageSize `bun:",notnull"`
	Url          string    `bun:",notnull"`
	FileHash     string    `bun:",notnull"`
	IsPrimary    bool      `bun:",notnull,default:false"`
	DisplayOrder int       `bun:",notnull,default:0"`
	CreatedAt    time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

func NewProductImage(groupKey uuid.UUID, productID *int64, size ImageSize, url, fileHash string) *ProductImage {
	return &ProductImage{
		ID:        uuid.Must(uuid.NewRandom()),
		GroupKey:  groupKey,
		ProductID: productID,
		Size:      size,
		Url:       url,
		FileHash:  fileHash,
	}
}
