// Package repository holds the sqlx-backed MySQL stores. The sentinel
// values below let the service layer tell absence and uniqueness
// conflicts apart from infrastructure failures.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an insert hits a unique email index.
var ErrEmailExists = errors.New("email already exists")

// ErrConflict is returned when an insert violates another unique key.
var ErrConflict = errors.New("conflict")

const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
