package ingest

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cozy-creator/image-ingest/internal/db/repository"
	"github.com/cozy-creator/image-ingest/internal/events"
	"github.com/cozy-creator/image-ingest/internal/services/fileuploader"
	"github.com/cozy-creator/image-ingest/internal/services/imagevariants"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Service runs the image ingestion pipeline and the queries over its records.
type Service struct {
	db         *bun.DB
	images     repository.IImageRepository
	siteImages repository.ISiteImageRepository
	products   repository.IProductRepository

	validator *Validator
	generator imagevariants.Generator
	uploader  *fileuploader.Uploader
	publisher events.Publisher
	logger    *zap.Logger

	hashLocks    *KeyedMutex
	productLocks *KeyedMutex
	slotLocks    *KeyedMutex
}

type Dependencies struct {
	DB        *bun.DB
	Validator *Validator
	Generator imagevariants.Generator
	Uploader  *fileuploader.Uploader
	Publisher events.Publisher
	Logger    *zap.Logger
}

func NewService(deps Dependencies) (*Service, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if deps.Validator == nil || deps.Generator == nil || deps.Uploader == nil {
		return nil, fmt.Errorf("validator, generator and uploader are required")
	}

	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		db:           deps.DB,
		images:       repository.NewImageRepository(deps.DB),
		siteImages:   repository.NewSiteImageRepository(deps.DB),
		products:     repository.NewProductRepository(deps.DB),
		validator:    deps.Validator,
		generator:    deps.Generator,
		uploader:     deps.Uploader,
		publisher:    publisher,
		logger:       logger.Named("ingest"),
		hashLocks:    NewKeyedMutex(),
		productLocks: NewKeyedMutex(),
		slotLocks:    NewKeyedMutex(),
	}, nil
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context, tx *bun.Tx) error) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &tx)
	})
}

func (s *Service) lockProduct(ctx context.Context, productID int64) (func(), error) {
	return s.productLocks.Lock(ctx, fmt.Sprintf("product:%d", productID))
}

func (s *Service) productExists(ctx context.Context, stage Stage, productID int64) error {
	exists, err := s.products.Exists(ctx, productID)
	if err != nil {
		return databaseError(stage, err)
	}
	if !exists {
		return notFoundError(stage, "product %d not found", productID)
	}

	return nil
}

// logFailure records err with its pipeline context and returns it unchanged.
func (s *Service) logFailure(logger *zap.Logger, err error) error {
	fields := []zap.Field{zap.String("kind", string(KindOf(err))), zap.Error(err)}
	if pe, ok := err.(*PipelineError); ok {
		fields = append(fields, zap.String("stage", string(pe.Stage)))
	}

	if KindOf(err).HTTPStatus() >= 500 {
		logger.Error("pipeline failed", fields...)
	} else {
		logger.Info("pipeline rejected request", fields...)
	}

	return err
}
