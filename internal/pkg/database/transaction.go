package database

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TxFunc defines a transaction function
type TxFunc func(ctx context.Context, tx *gorm.DB) error

// Transaction executes a function within a database transaction.
// Every logical store call runs inside exactly one of these: a failure
// rolls the whole call back, so concurrent readers never observe a
// half-applied multi-row mutation.
func (db *DB) Transaction(ctx context.Context, fn TxFunc) error {
	return db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := fn(ctx, tx); err != nil {
			db.logger.Debug("transaction rolled back", zap.Error(err))
			return err
		}
		return nil
	})
}
