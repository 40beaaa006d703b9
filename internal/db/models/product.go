package models

import "github.com/uptrace/bun"

// Product is the read-only view of the catalog table owned by the catalog
// service. Only the columns the image pipeline joins against are mapped.
type Product struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID    int64   `bun:",pk,autoincrement"`
	Name  string  `bun:",notnull"`
	Price float64 `bun:",notnull,default:0"`
}
