// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package errors

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// IsUniqueError returns a boolean indicating whether the error is known to
// report a unique constraint violation.
func IsUniqueError(err error) bool {
	if err == nil {
		return false
	}

	var domainErr *Err
	if errors.As(err, &domainErr) {
		if domainErr.Code == NotUnique {
			return true
		}
	}

	var pgxError *pgconn.PgError
	if errors.As(err, &pgxError) {
		if pgxError.Code == "23505" { // unique_violation
			return true
		}
	}

	return false
}

// IsMissingTableError returns a boolean indicating whether the error is known
// to report a undefined/missing table violation.
func IsMissingTableError(err error) bool {
	if err == nil {
		return false
	}

	var domainErr *Err
	if errors.As(err, &domainErr) {
		if domainErr.Code == MissingTable {
			return true
		}
	}

	var pgxError *pgconn.PgError
	if errors.As(err, &pgxError) {
		if pgxError.Code == "42P01" { // undefined_table
			return true
		}
	}
	return false
}

// IsCode returns true when err is, or wraps, an Err with the given Code.
func IsCode(err error, c Code) bool {
	return Match(T(c), err)
}
