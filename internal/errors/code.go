// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package errors

// Code specifies a code for the error.
type Code uint32

// String will return the Code's Info.Message
func (c Code) String() string {
	return c.Info().Message
}

// Info will look up the Code's Info.  If the Info is not found, it will return
// Info for an Unknown Code.
func (c Code) Info() Info {
	if info, ok := errorCodeInfo[c]; ok {
		return info
	}
	return errorCodeInfo[Unknown]
}

const (
	Unknown Code = 0 // Unknown will be equal to a zero value for Codes

	// General function errors are reserved Codes 100-999
	InvalidParameter Code = 100 // InvalidParameter represents an invalid parameter for an operation.
	InvalidVersion   Code = 101 // InvalidVersion represents a version string that does not match the version grammar.
	InvalidPath      Code = 102 // InvalidPath represents a path that is missing or is not a readable directory.
	Io               Code = 103 // Io represents an error during an io operation.
	Configuration    Code = 104 // Configuration represents an invalid or incomplete configuration.

	// DB errors are reserved Codes from 1000-1999
	NotUnique    Code = 1002 // NotUnique represents a value must be unique error
	MissingTable Code = 1004 // MissingTable represents an undefined table error

	// Migration errors are reserved Codes from 2000-2999
	MigrationIntegrity Code = 2000 // MigrationIntegrity represents an inconsistency in the migration files or bookkeeping state.
	MigrationFailed    Code = 2001 // MigrationFailed represents a migration file that failed to apply.
	UnreachableVersion Code = 2002 // UnreachableVersion represents a target version no hop sequence can reach.
	HookFailed         Code = 2003 // HookFailed represents a before/after patch hook returning an error.
)
