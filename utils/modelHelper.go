package utils

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

/* DB fetching */

// FetchModel loads T by id on tx, preloading associations.
// (may return ErrorRecordNotFound)
func FetchModel[T any](tx *gorm.DB, id int, associations ...string) (*T, error) {
	dbCtx := tx
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	if err := dbCtx.First(&result, id).Error; err != nil {
		return nil, NotFoundOr(err)
	}
	return &result, nil
}

// FetchModelForUpdate is FetchModel with SELECT ... FOR UPDATE on the row.
// Must run inside a transaction.
func FetchModelForUpdate[T any](tx *gorm.DB, id int, associations ...string) (*T, error) {
	return FetchModel[T](tx.Clauses(clause.Locking{Strength: "UPDATE"}), id, associations...)
}
