package migrations

import (
	"context"

	"github.com/cozy-creator/image-ingest/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			tables := []interface{}{
				(*models.Product)(nil),
				(*models.ProductImage)(nil),
				(*models.SiteImage)(nil),
			}

			for _, table := range tables {
				if _, err := tx.NewCreateTable().
					Model(table).
					IfNotExists().
					Exec(ctx); err != nil {
					return err
				}
			}

			indexes := []struct {
				name    string
				columns []string
				unique  bool
			}{
				{name: "product_images_group_size_idx", columns: []string{"group_key", "size"}, unique: true},
				{name: "product_images_file_hash_idx", columns: []string{"file_hash"}},
				{name: "product_images_product_id_idx", columns: []string{"product_id"}},
				{name: "site_images_file_hash_idx", columns: []string{"file_hash"}},
			}

			for _, index := range indexes {
				model := interface{}((*models.ProductImage)(nil))
				if index.name == "site_images_file_hash_idx" {
					model = (*models.SiteImage)(nil)
				}

				q := tx.NewCreateIndex().
					Model(model).
					Index(index.name).
					Column(index.columns...).
					IfNotExists()
				if index.unique {
					q = q.Unique()
				}

				if _, err := q.Exec(ctx); err != nil {
					return err
				}
			}

			// At most one primary logical image per product: one primary row per size.
			if _, err := tx.ExecContext(ctx, `
				CREATE UNIQUE INDEX IF NOT EXISTS product_images_one_primary_idx
				ON product_images (product_id, size)
				WHERE is_primary
			`); err != nil {
				return err
			}

			return nil
		})
	}, func(ctx context.Context, db *bun.DB) error {
		if _, err := db.NewDropTable().Model((*models.SiteImage)(nil)).IfExists().Exec(ctx); err != nil {
			return err
		}

		if _, err := db.NewDropTable().Model((*models.ProductImage)(nil)).IfExists().Exec(ctx); err != nil {
			return err
		}

		return nil
	})
}
