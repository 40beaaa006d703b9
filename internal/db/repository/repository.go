package repository

import (
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

var ErrNotFound = errors.New("record not found")

func isPostgres(db bun.IDB) bool {
	return db.Dialect().Name() == dialect.PG
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	return err
}
