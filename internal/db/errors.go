package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// StoreErrorClass is a coarse classification of store failures. It exists for
// diagnostics only: every class is handled the same way (the current unit of
// work is aborted), the class just makes the log line useful.
type StoreErrorClass string

const (
	ErrClassDuplicateKey StoreErrorClass = "duplicate_key"
	ErrClassForeignKey   StoreErrorClass = "foreign_key"
	ErrClassSyntax       StoreErrorClass = "syntax"
	ErrClassNotFound     StoreErrorClass = "not_found"
	ErrClassOther        StoreErrorClass = "other"
)

func Classify(err error) StoreErrorClass {
	if err == nil {
		return ErrClassOther
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrClassNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrClassDuplicateKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrClassDuplicateKey
		case "23503":
			return ErrClassForeignKey
		case "42601":
			return ErrClassSyntax
		}
	}
	return ErrClassOther
}

// IsDuplicateKey reports whether err is a unique-constraint violation. The
// session manager relies on this to detect a lost open-session race against
// another process instance.
func IsDuplicateKey(err error) bool {
	return Classify(err) == ErrClassDuplicateKey
}
