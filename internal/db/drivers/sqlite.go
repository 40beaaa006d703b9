package drivers

import (
	"context"
	"database/sql"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

const libsqlDriverName = "libsql"

type SQLiteDriver struct {
	db *bun.DB
}

// NewSQLiteDriver opens a local SQLite database through sqliteshim, or a remote
// libSQL database when the DSN uses a libsql/http(s) scheme.
func NewSQLiteDriver(ctx context.Context, dsn string) (*SQLiteDriver, error) {
	name := sqliteshim.ShimName
	if isRemoteDSN(dsn) {
		name = libsqlDriverName
	}

	sqldb, err := sql.Open(name, dsn)
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; one connection serializes transactions
	// instead of failing them with SQLITE_BUSY. It also keeps :memory:
	// databases alive for the lifetime of the pool.
	if name == sqliteshim.ShimName {
		sqldb.SetMaxOpenConns(1)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteDriver{db: db}, nil
}

func (d *SQLiteDriver) GetDB() *bun.DB {
	return d.db
}

func (d *SQLiteDriver) Close() error {
	return d.db.Close()
}

func isRemoteDSN(dsn string) bool {
	for _, prefix := range []string{"libsql://", "http://", "https://", "ws://", "wss://"} {
		if strings.HasPrefix(dsn, prefix) {
			return true
		}
	}

	return false
}
