package ingest

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cozy-creator/image-ingest/internal/config"
	"github.com/cozy-creator/image-ingest/internal/db/drivers"
	"github.com/cozy-creator/image-ingest/internal/db/migrations"
	"github.com/cozy-creator/image-ingest/internal/db/models"
	"github.com/cozy-creator/image-ingest/internal/services/filestorage"
	"github.com/cozy-creator/image-ingest/internal/services/fileuploader"
	"github.com/cozy-creator/image-ingest/internal/services/imagevariants"
	"github.com/uptrace/bun"
)

type countingGenerator struct {
	inner imagevariants.Generator
	calls atomic.Int32
	fail  error
}

func (g *countingGenerator) Generate(ctx context.Context, source []byte) (imagevariants.Variants, error) {
	g.calls.Add(1)
	if g.fail != nil {
		return imagevariants.Variants{}, g.fail
	}
	return g.inner.Generate(ctx, source)
}

type testEnv struct {
	service   *Service
	db        *bun.DB
	generator *countingGenerator
	assetsDir string
	storage   filestorage.FileStorage
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStorage(t, nil)
}

// newTestEnvWithStorage lets wrap replace the local storage the uploader
// writes through; env.storage stays the underlying local storage.
func newTestEnvWithStorage(t *testing.T, wrap func(filestorage.FileStorage) filestorage.FileStorage) *testEnv {
	t.Helper()
	ctx := context.Background()

	driver, err := drivers.NewSQLiteDriver(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { driver.Close() })

	db := driver.GetDB()
	if _, err := migrations.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	assetsDir := t.TempDir()
	cfg := &config.Config{
		FilesystemType: config.FilesystemLocal,
		AssetsDir:      assetsDir,
		PublicURL:      "http://localhost:8881",
		Upload: &config.UploadConfig{
			MaxFileSize:  config.DefaultMaxFileSize,
			AllowedTypes: config.DefaultAllowedTypes,
		},
	}

	storage, err := filestorage.NewLocalFileStorage(cfg)
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}

	inner := imagevariants.NewGenerator(2, 80)
	var uploadTarget filestorage.FileStorage = storage
	if wrap != nil {
		uploadTarget = wrap(storage)
	}
	uploader := fileuploader.NewFileUploader(uploadTarget, 4)
	t.Cleanup(func() {
		inner.Stop()
		uploader.Stop()
	})

	generator := &countingGenerator{inner: inner}
	service, err := NewService(Dependencies{
		DB:        db,
		Validator: NewValidator(cfg.Upload),
		Generator: generator,
		Uploader:  uploader,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	return &testEnv{service: service, db: db, generator: generator, assetsDir: assetsDir, storage: storage}
}

func (e *testEnv) seedProduct(t *testing.T, id int64, name string) {
	t.Helper()
	if _, err := e.db.NewInsert().Model(&models.Product{ID: id, Name: name, Price: 9.5}).Exec(context.Background()); err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

func (e *testEnv) productRows(t *testing.T, productID int64) []models.ProductImage {
	t.Helper()
	var rows []models.ProductImage
	if err := e.db.NewSelect().Model(&rows).Where("product_id = ?", productID).Scan(context.Background()); err != nil {
		t.Fatalf("select rows: %v", err)
	}
	return rows
}

func primaryGroups(rows []models.ProductImage) map[string]int {
	groups := map[string]int{}
	for _, row := range rows {
		if row.IsPrimary {
			groups[row.GroupKey.String()]++
		}
	}
	return groups
}

func pngBytes(t *testing.T, width, height int, shade uint8) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: shade, G: uint8(x), B: uint8(y), A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func productUpload(productID int64, data []byte) ProductUpload {
	return ProductUpload{ProductID: productID, ContentType: "image/png", Size: int64(len(data)), Data: data}
}

func TestUploadProductImageScenario(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, 42, "Lamp")
	ctx := context.Background()

	upload := productUpload(42, pngBytes(t, 1800, 1200, 10))
	upload.IsPrimary = true

	result, err := env.service.UploadProductImage(ctx, upload)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(result.Images) != 4 {
		t.Fatalf("expected 4 variant urls, got %d", len(result.Images))
	}
	if result.PrimaryImage == nil || !result.PrimaryImage.IsPrimary {
		t.Fatal("expected primary image in result")
	}
	for i, variant := range result.Images {
		if variant.Size != imagevariants.Specs[i].Size {
			t.Fatalf("variant %d: expected %s, got %s", i, imagevariants.Specs[i].Size, variant.Size)
		}
		key := filestorage.VariantKey(variant.FileHash, string(variant.Size))
		if _, err := env.storage.GetFile(ctx, key); err != nil {
			t.Fatalf("variant %s not stored: %v", variant.Size, err)
		}
	}

	images, err := env.service.ListProductImages(ctx, 42)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(images) != 1 || !images[0].IsPrimary || len(images[0].Variants) != 4 {
		t.Fatalf("unexpected product images: %+v", images)
	}
	for _, variant := range images[0].Variants {
		if variant.FileHash != images[0].FileHash {
			t.Fatal("expected all size rows to share one hash")
		}
	}
}

func TestUploadDeduplicatesContent(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, 1, "Desk")
	env.seedProduct(t, 2, "Shelf")
	ctx := context.Background()

	data := pngBytes(t, 300, 300, 50)
	first, err := env.service.UploadProductImage(ctx, productUpload(1, data))
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	second, err := env.service.UploadProductImage(ctx, productUpload(2, data))
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}

	if got := env.generator.calls.Load(); got != 1 {
		t.Fatalf("expected generator to run once, ran %d times", got)
	}
	if !second.Deduplicated || first.Deduplicated {
		t.Fatalf("unexpected dedup flags: first=%v second=%v", first.Deduplicated, second.Deduplicated)
	}
	if first.GroupKey == second.GroupKey {
		t.Fatal("expected a new logical image for the second product")
	}
	for i := range first.Images {
		if first.Images[i].URL != second.Images[i].URL {
			t.Fatalf("size %s: urls differ %q vs %q", first.Images[i].Size, first.Images[i].URL, second.Images[i].URL)
		}
	}
}

func TestConcurrentIdenticalUploads(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, 5, "Sofa")
	ctx := context.Background()

	const n = 8
	data := pngBytes(t, 500, 400, 99)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*ProductUploadResult
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := env.service.UploadProductImage(ctx, productUpload(5, data))
			if err != nil {
				t.Errorf("upload: %v", err)
				return
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if got := env.generator.calls.Load(); got != 1 {
		t.Fatalf("expected a single generation, got %d", got)
	}
	if len(results) != n {
		t.Fatalf("expected %d results, got %d", n, len(results))
	}
	for _, result := range results {
		for i := range result.Images {
			if result.Images[i].URL != results[0].Images[i].URL {
				t.Fatal("expected every logical image to share the same urls")
			}
		}
	}

	rows := env.productRows(t, 5)
	if len(rows) != n*4 {
		t.Fatalf("expected %d rows, got %d", n*4, len(rows))
	}
	if groups := primaryGroups(rows); len(groups) != 1 {
		t.Fatalf("expected exactly one primary image, got %v", groups)
	}
}

func TestFirstImageBecomesPrimary(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, 3, "Rug")
	ctx := context.Background()

	first, err := env.service.UploadProductImage(ctx, productUpload(3, pngBytes(t, 64, 64, 1)))
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	if first.PrimaryImage == nil {
		t.Fatal("expected the first image to become primary")
	}

	second, err := env.service.UploadProductImage(ctx, productUpload(3, pngBytes(t, 64, 64, 2)))
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if second.PrimaryImage != nil {
		t.Fatal("expected second image to stay non-primary")
	}

	upload := productUpload(3, pngBytes(t, 64, 64, 3))
	upload.IsPrimary = true
	third, err := env.service.UploadProductImage(ctx, upload)
	if err != nil {
		t.Fatalf("third upload: %v", err)
	}

	groups := primaryGroups(env.productRows(t, 3))
	if len(groups) != 1 || groups[third.GroupKey.String()] != 4 {
		t.Fatalf("expected third image as the only primary, got %v", groups)
	}
}

func TestConcurrentSetPrimary(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, 8, "Table")
	ctx := context.Background()

	var results []*ProductUploadResult
	for i := 0; i < 5; i++ {
		result, err := env.service.UploadProductImage(ctx, productUpload(8, pngBytes(t, 32, 32, uint8(i*40))))
		if err != nil {
			t.Fatalf("upload %d: %v", i, err)
		}
		results = append(results, result)
	}

	var wg sync.WaitGroup
	for round := 0; round < 3; round++ {
		for _, result := range results {
			wg.Add(1)
			go func(result *ProductUploadResult) {
				defer wg.Done()
				if _, err := env.service.SetPrimary(ctx, 8, result.GroupKey); err != nil {
					t.Errorf("set primary: %v", err)
				}
			}(result)
		}
	}
	wg.Wait()

	groups := primaryGroups(env.productRows(t, 8))
	if len(groups) != 1 {
		t.Fatalf("expected exactly one primary image, got %v", groups)
	}
	for _, count := range groups {
		if count != 4 {
			t.Fatalf("expected all four size rows primary, got %d", count)
		}
	}
}

func TestSetPrimaryRejectsForeignImage(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, 1, "A")
	env.seedProduct(t, 2, "B")
	ctx := context.Background()

	result, err := env.service.UploadProductImage(ctx, productUpload(1, pngBytes(t, 32, 32, 7)))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if _, err := env.service.SetPrimary(ctx, 2, result.GroupKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGenerationFailureLeavesNoRows(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, 4, "Stool")
	env.generator.fail = errors.New("encode large: out of memory")
	ctx := context.Background()

	data := pngBytes(t, 64, 64, 200)
	if _, err := env.service.UploadProductImage(ctx, productUpload(4, data)); err == nil {
		t.Fatal("expected failure")
	}

	count, err := env.service.images.CountByHash(ctx, hashOf(data))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no rows for the failed hash, got %d", count)
	}
}

// failingStorage rejects writes whose key ends with suffix.
type failingStorage struct {
	filestorage.FileStorage
	suffix string
}

func (s *failingStorage) Upload(ctx context.Context, file filestorage.FileInfo) (string, error) {
	if strings.HasSuffix(file.Key, s.suffix) {
		return "", errors.New("bucket unavailable")
	}
	return s.FileStorage.Upload(ctx, file)
}

func assertNoVariants(t *testing.T, storage filestorage.FileStorage, hash string) {
	t.Helper()
	for _, spec := range imagevariants.Specs {
		key := filestorage.VariantKey(hash, string(spec.Size))
		if _, err := storage.GetFile(context.Background(), key); !errors.Is(err, filestorage.ErrFileNotFound) {
			t.Fatalf("expected %s to be absent, got %v", key, err)
		}
	}
}

func TestStorageFailureLeavesNothing(t *testing.T) {
	env := newTestEnvWithStorage(t, func(inner filestorage.FileStorage) filestorage.FileStorage {
		return &failingStorage{FileStorage: inner, suffix: "/medium.jpg"}
	})
	env.seedProduct(t, 8, "Rug")
	ctx := context.Background()

	data := pngBytes(t, 900, 900, 40)
	_, err := env.service.UploadProductImage(ctx, productUpload(8, data))
	if !errors.Is(err, ErrStorageWrite) {
		t.Fatalf("expected ErrStorageWrite, got %v", err)
	}
	if KindOf(err).HTTPStatus() != 500 || !KindOf(err).Retryable() {
		t.Fatalf("expected retryable 500, got %d", KindOf(err).HTTPStatus())
	}

	count, err := env.service.images.CountByHash(ctx, hashOf(data))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no rows, got %d", count)
	}
	assertNoVariants(t, env.storage, hashOf(data))
}

func TestInsertFailureReclaimsVariants(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, 9, "Lamp")
	ctx := context.Background()

	if _, err := env.db.ExecContext(ctx, `CREATE TRIGGER reject_product_images BEFORE INSERT ON product_images
		BEGIN SELECT RAISE(ABORT, 'insert rejected'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	data := pngBytes(t, 300, 300, 90)
	_, err := env.service.UploadProductImage(ctx, productUpload(9, data))
	if !errors.Is(err, ErrDatabase) {
		t.Fatalf("expected ErrDatabase, got %v", err)
	}
	if env.generator.calls.Load() != 1 {
		t.Fatalf("expected variants to be generated once, got %d", env.generator.calls.Load())
	}

	count, err := env.service.images.CountByHash(ctx, hashOf(data))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no rows, got %d", count)
	}
	assertNoVariants(t, env.storage, hashOf(data))
}

func TestCorruptImageRejected(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, 6, "Vase")
	ctx := context.Background()

	data := []byte("this is a text file with an image content type")
	upload := ProductUpload{ProductID: 6, ContentType: "image/jpeg", Size: int64(len(data)), Data: data}

	_, err := env.service.UploadProductImage(ctx, upload)
	if !errors.Is(err, ErrCorruptImage) {
		t.Fatalf("expected ErrCorruptImage, got %v", err)
	}
	if KindOf(err).HTTPStatus() != 400 {
		t.Fatalf("expected 400, got %d", KindOf(err).HTTPStatus())
	}
	if rows := env.productRows(t, 6); len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
}

func TestUploadValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, 1, "A")
	data := pngBytes(t, 16, 16, 0)
	negative := -1

	tests := []struct {
		name   string
		upload ProductUpload
		want   error
	}{
		{name: "missing product", upload: productUpload(0, data), want: ErrValidation},
		{name: "negative index", upload: ProductUpload{ProductID: 1, ImageIndex: &negative, ContentType: "image/png", Size: 10, Data: data}, want: ErrValidation},
		{name: "no file", upload: ProductUpload{ProductID: 1, ContentType: "image/png"}, want: ErrNoFile},
		{name: "bad type", upload: ProductUpload{ProductID: 1, ContentType: "text/plain", Size: int64(len(data)), Data: data}, want: ErrValidation},
		{name: "too large", upload: ProductUpload{ProductID: 1, ContentType: "image/png", Size: config.DefaultMaxFileSize + 1, Data: data}, want: ErrValidation},
		{name: "unknown product", upload: productUpload(77, data), want: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.UploadProductImage(context.Background(), tt.upload)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if got := env.generator.calls.Load(); got != 0 {
		t.Fatalf("expected no generation for rejected uploads, got %d", got)
	}
}

func TestDeleteAllForProduct(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, 9, "Bed")
	ctx := context.Background()

	deleted, err := env.service.DeleteAllForProduct(ctx, 9)
	if err != nil || deleted != 0 {
		t.Fatalf("expected idempotent delete, got %d %v", deleted, err)
	}

	result, err := env.service.UploadProductImage(ctx, productUpload(9, pngBytes(t, 48, 48, 9)))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	deleted, err = env.service.DeleteAllForProduct(ctx, 9)
	if err != nil || deleted != 1 {
		t.Fatalf("expected one deleted image, got %d %v", deleted, err)
	}

	key := filestorage.VariantKey(result.Images[0].FileHash, string(result.Images[0].Size))
	if _, err := env.storage.GetFile(ctx, key); !errors.Is(err, filestorage.ErrFileNotFound) {
		t.Fatalf("expected unreferenced variants to be reclaimed, got %v", err)
	}

	deleted, err = env.service.DeleteAllForProduct(ctx, 9)
	if err != nil || deleted != 0 {
		t.Fatalf("expected second delete to be a no-op, got %d %v", deleted, err)
	}
}

func TestDeleteImageKeepsSharedContentAndPromotes(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, 1, "A")
	env.seedProduct(t, 2, "B")
	ctx := context.Background()

	shared := pngBytes(t, 40, 40, 11)
	a, err := env.service.UploadProductImage(ctx, productUpload(1, shared))
	if err != nil {
		t.Fatalf("upload a: %v", err)
	}
	other, err := env.service.UploadProductImage(ctx, productUpload(1, pngBytes(t, 40, 40, 12)))
	if err != nil {
		t.Fatalf("upload other: %v", err)
	}
	b, err := env.service.UploadProductImage(ctx, productUpload(2, shared))
	if err != nil {
		t.Fatalf("upload b: %v", err)
	}

	if err := env.service.DeleteImage(ctx, a.GroupKey); err != nil {
		t.Fatalf("delete: %v", err)
	}

	key := filestorage.VariantKey(b.Images[0].FileHash, string(b.Images[0].Size))
	if _, err := env.storage.GetFile(ctx, key); err != nil {
		t.Fatalf("shared variants must survive while referenced: %v", err)
	}

	groups := primaryGroups(env.productRows(t, 1))
	if len(groups) != 1 || groups[other.GroupKey.String()] != 4 {
		t.Fatalf("expected remaining image to be promoted, got %v", groups)
	}

	if err := env.service.DeleteImage(ctx, a.GroupKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	if err := env.service.DeleteImage(ctx, b.GroupKey); err != nil {
		t.Fatalf("delete b: %v", err)
	}
	if _, err := env.storage.GetFile(ctx, key); !errors.Is(err, filestorage.ErrFileNotFound) {
		t.Fatalf("expected variants to be reclaimed after last reference, got %v", err)
	}
}

func TestSiteImageSlotSingularity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := pngBytes(t, 120, 40, 1)
	second := pngBytes(t, 120, 40, 2)

	for _, data := range [][]byte{first, second} {
		if _, err := env.service.UploadSiteImage(ctx, SiteUpload{Slot: "hero", ContentType: "image/png", Size: int64(len(data)), Data: data}); err != nil {
			t.Fatalf("upload site image: %v", err)
		}
	}

	count, err := env.db.NewSelect().Model((*models.SiteImage)(nil)).Where("slot = ?", "hero").Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one hero row, got %d", count)
	}

	current, err := env.service.GetSiteImage(ctx, "hero")
	if err != nil {
		t.Fatalf("get site image: %v", err)
	}
	if current.FileHash != hashOf(second) {
		t.Fatal("expected the latest upload to be current")
	}

	if _, err := env.storage.GetFile(ctx, filestorage.SiteKey(hashOf(first), ".png")); !errors.Is(err, filestorage.ErrFileNotFound) {
		t.Fatalf("expected superseded object to be reclaimed, got %v", err)
	}

	if _, err := env.service.GetSiteImage(ctx, "logo"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected empty logo slot, got %v", err)
	}
	if _, err := env.service.GetSiteImage(ctx, "banner"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected invalid slot, got %v", err)
	}
}

// countingStorage counts the writes that reach the wrapped storage.
type countingStorage struct {
	filestorage.FileStorage
	uploads atomic.Int32
}

func (s *countingStorage) Upload(ctx context.Context, file filestorage.FileInfo) (string, error) {
	s.uploads.Add(1)
	return s.FileStorage.Upload(ctx, file)
}

func TestSiteImageReusesStoredObject(t *testing.T) {
	counter := &countingStorage{}
	env := newTestEnvWithStorage(t, func(inner filestorage.FileStorage) filestorage.FileStorage {
		counter.FileStorage = inner
		return counter
	})
	ctx := context.Background()

	data := pngBytes(t, 80, 80, 33)
	upload := func(slot string) *models.SiteImage {
		t.Helper()
		image, err := env.service.UploadSiteImage(ctx, SiteUpload{Slot: slot, ContentType: "image/png", Size: int64(len(data)), Data: data})
		if err != nil {
			t.Fatalf("upload %s: %v", slot, err)
		}
		return image
	}

	hero := upload("hero")
	again := upload("hero")
	logo := upload("logo")

	if got := counter.uploads.Load(); got != 1 {
		t.Fatalf("expected one object write, got %d", got)
	}
	if again.Url != hero.Url || logo.Url != hero.Url || logo.ObjectKey != hero.ObjectKey {
		t.Fatal("expected every slot to point at the stored object")
	}
}

func TestSiteImageUpsertFailureReclaimsObject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.db.ExecContext(ctx, `CREATE TRIGGER reject_site_images BEFORE INSERT ON site_images
		BEGIN SELECT RAISE(ABORT, 'insert rejected'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	data := pngBytes(t, 60, 30, 12)
	_, err := env.service.UploadSiteImage(ctx, SiteUpload{Slot: "logo", ContentType: "image/png", Size: int64(len(data)), Data: data})
	if !errors.Is(err, ErrDatabase) {
		t.Fatalf("expected ErrDatabase, got %v", err)
	}

	if _, err := env.storage.GetFile(ctx, filestorage.SiteKey(hashOf(data), ".png")); !errors.Is(err, filestorage.ErrFileNotFound) {
		t.Fatalf("expected the written object to be reclaimed, got %v", err)
	}
}

func TestGalleryAndCounts(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, 1, "Chair")
	env.seedProduct(t, 2, "Bench")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := env.service.UploadProductImage(ctx, productUpload(1, pngBytes(t, 24, 24, uint8(i)))); err != nil {
			t.Fatalf("upload: %v", err)
		}
	}

	page, err := env.service.Gallery(ctx, GalleryQuery{Filter: "used", Page: "1", Limit: "2"})
	if err != nil {
		t.Fatalf("gallery: %v", err)
	}
	if page.Pagination.Total != 3 || page.Pagination.Pages != 2 || len(page.Images) != 2 {
		t.Fatalf("unexpected page: %+v", page.Pagination)
	}

	unused, err := env.service.Gallery(ctx, GalleryQuery{Filter: "unused"})
	if err != nil {
		t.Fatalf("gallery unused: %v", err)
	}
	if unused.Pagination.Total != 0 {
		t.Fatalf("expected no unused images, got %d", unused.Pagination.Total)
	}

	if _, err := env.service.Gallery(ctx, GalleryQuery{Filter: "recent"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected invalid filter, got %v", err)
	}
	if _, err := env.service.Gallery(ctx, GalleryQuery{Page: "-1"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected invalid page, got %v", err)
	}
	if _, err := env.service.Gallery(ctx, GalleryQuery{Page: strconv.Itoa(math.MaxInt)}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected out of range page, got %v", err)
	}

	if _, err := env.service.UploadProductImage(ctx, productUpload(2, pngBytes(t, 24, 24, 200))); err != nil {
		t.Fatalf("upload: %v", err)
	}
	byProduct, err := env.service.Gallery(ctx, GalleryQuery{ProductID: "2"})
	if err != nil {
		t.Fatalf("gallery by product: %v", err)
	}
	if byProduct.Pagination.Total != 1 || len(byProduct.Images) != 1 || *byProduct.Images[0].ProductID != 2 {
		t.Fatalf("expected only product 2 images, got %+v", byProduct.Pagination)
	}
	if _, err := env.service.Gallery(ctx, GalleryQuery{ProductID: "x"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected invalid product id, got %v", err)
	}

	counts, err := env.service.ProductImageCounts(ctx, ProductCountsQuery{SortBy: "image_count", SortDirection: "desc"})
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if len(counts) != 2 || counts[0].ID != 1 || counts[0].ImageCount != 3 || counts[1].ImageCount != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}

	if _, err := env.service.ProductImageCounts(ctx, ProductCountsQuery{SortBy: "price"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected invalid sort, got %v", err)
	}
}
