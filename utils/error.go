package utils

import (
	"errors"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var ErrorRecordNotFound = errors.New("record not found")

// NotFoundOr maps gorm's not-found to ErrorRecordNotFound and passes other errors through.
func NotFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrorRecordNotFound
	}
	return err
}

// IsDuplicateKeyErr detects unique violations. gorm translates them when
// TranslateError is on; the driver checks cover raw queries and older dialectors.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
