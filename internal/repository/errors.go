// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow the service layer to tell
// storage outcomes apart without inspecting driver errors. For example,
// ErrSlotTaken means another non-cancelled appointment already holds the
// (doctor, date, slot) key, while ErrConflict signals that a conditional
// update lost to a concurrent writer.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrSlotTaken is returned when a booking would place a second active
// appointment on the same doctor, date and slot.
var ErrSlotTaken = errors.New("slot already taken")

// ErrConflict is returned when a compare-and-swap update matched no row
// because the state it was conditioned on has changed.
var ErrConflict = errors.New("conflict")

// MySQL server error numbers inspected by the repositories.
const (
	mysqlDupEntry        = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// isMySQLError reports whether err (or anything it wraps) is a MySQL error
// with one of the given numbers.
func isMySQLError(err error, numbers ...uint16) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	for _, n := range numbers {
		if me.Number == n {
			return true
		}
	}
	return false
}

// slotContention maps the errors two racing bookings can produce onto
// ErrSlotTaken: the unique index rejects the loser, or InnoDB aborts it
// while both wait on the same gap lock.
func slotContention(err error) error {
	if isMySQLError(err, mysqlDupEntry, mysqlDeadlock, mysqlLockWaitTimeout) {
		return ErrSlotTaken
	}
	return err
}
