package store

import (
	"context"

	"gorm.io/gorm"
)

// DBRepo hands out database handles to services. Services never call gorm
// directly; they pass the handle to the sub-stores.
type DBRepo interface {
	DB(ctx context.Context) *gorm.DB
	DoInTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type repo struct {
	Database *gorm.DB
}

// NewDBRepo wraps an open connection pool.
func NewDBRepo(db *gorm.DB) DBRepo {
	return &repo{Database: db}
}

func (r *repo) DB(ctx context.Context) *gorm.DB {
	return r.Database.WithContext(ctx)
}

func (r *repo) DoInTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return DoInTx(r.Database.WithContext(ctx), fn)
}
