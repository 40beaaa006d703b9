package imagevariants

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/cozy-creator/image-ingest/internal/db/models"
	"github.com/cozy-creator/image-ingest/internal/utils/imageutil"
	"github.com/gammazero/workerpool"
	"go.uber.org/multierr"
)

var ErrDecode = errors.New("failed to decode image")

type Spec struct {
	Size         models.ImageSize
	MaxDimension int
}

// Specs lists the variant sizes in the order Generate returns them.
var Specs = [4]Spec{
	{Size: models.ImageSizeThumb, MaxDimension: 150},
	{Size: models.ImageSizeSmall, MaxDimension: 400},
	{Size: models.ImageSizeMedium, MaxDimension: 800},
	{Size: models.ImageSizeLarge, MaxDimension: 1600},
}

const ContentType = "image/jpeg"

type Variant struct {
	Size    models.ImageSize
	Width   int
	Height  int
	Content []byte
}

// Variants is always complete: one encoded JPEG per entry of Specs.
type Variants [4]Variant

type Generator interface {
	Generate(ctx context.Context, source []byte) (Variants, error)
}

type PoolGenerator struct {
	wp      *workerpool.WorkerPool
	quality int
}

func NewGenerator(maxWorkers, quality int) *PoolGenerator {
	return &PoolGenerator{
		wp:      workerpool.New(maxWorkers),
		quality: quality,
	}
}

func (g *PoolGenerator) Stop() {
	g.wp.StopWait()
}

// Generate decodes source once and renders every variant on the pool. Either
// all four variants are returned or none are.
func (g *PoolGenerator) Generate(ctx context.Context, source []byte) (Variants, error) {
	var variants Variants

	img, _, err := imageutil.Decode(source)
	if err != nil {
		return variants, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	var (
		wg   sync.WaitGroup
		errs [len(Specs)]error
	)
	for i, spec := range Specs {
		i, spec := i, spec
		wg.Add(1)
		g.wp.Submit(func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}

			variants[i], errs[i] = g.render(img, spec)
		})
	}
	wg.Wait()

	if err := multierr.Combine(errs[:]...); err != nil {
		return Variants{}, err
	}

	return variants, nil
}

func (g *PoolGenerator) render(img image.Image, spec Spec) (Variant, error) {
	resized := imageutil.FlattenOnWhite(imageutil.Resize(img, spec.MaxDimension))

	content, err := imageutil.EncodeJPEG(resized, g.quality)
	if err != nil {
		return Variant{}, fmt.Errorf("encode %s: %w", spec.Size, err)
	}

	size := resized.Bounds().Size()
	return Variant{
		Size:    spec.Size,
		Width:   size.X,
		Height:  size.Y,
		Content: content,
	}, nil
}
