// Package dbtx carries an open gorm transaction through a context so that several
// services can take part in one unit of work.
package dbtx

import (
	"context"

	"gorm.io/gorm"
)

type contextKey struct{}

// WithTx returns a context whose database calls run inside tx.
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, contextKey{}, tx)
}

// From returns the transaction stored in ctx, or db when there is none. The result is
// bound to ctx.
func From(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(contextKey{}).(*gorm.DB); ok && tx != nil {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// Run executes fn in a transaction, reusing the one already carried by ctx.
func Run(ctx context.Context, db *gorm.DB, fn func(ctx context.Context) error) error {
	return From(ctx, db).Transaction(func(tx *gorm.DB) error {
		return fn(WithTx(ctx, tx))
	})
}
