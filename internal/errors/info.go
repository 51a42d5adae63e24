// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package errors

// Info contains details of the specific error code
type Info struct {
	// Kind specifies the kind of error (unknown, parameter, integrity, etc).
	Kind Kind

	// Message provides a default message for the error code
	Message string
}

// errorCodeInfo provides a map of unique Codes (IDs) to their
// corresponding Kind and a default Message.
var errorCodeInfo = map[Code]Info{
	Unknown: {
		Message: "unknown",
		Kind:    Other,
	},
	InvalidParameter: {
		Message: "invalid parameter",
		Kind:    Parameter,
	},
	InvalidVersion: {
		Message: "invalid version",
		Kind:    Parameter,
	},
	InvalidPath: {
		Message: "invalid path",
		Kind:    Parameter,
	},
	Io: {
		Message: "error during io operation",
		Kind:    Integrity,
	},
	Configuration: {
		Message: "invalid configuration",
		Kind:    Config,
	},
	NotUnique: {
		Message: "unique constraint violation",
		Kind:    Integrity,
	},
	MissingTable: {
		Message: "missing table",
		Kind:    Integrity,
	},
	MigrationIntegrity: {
		Message: "migration integrity",
		Kind:    Migration,
	},
	MigrationFailed: {
		Message: "migration failed",
		Kind:    Migration,
	},
	UnreachableVersion: {
		Message: "target version unreachable",
		Kind:    Migration,
	},
	HookFailed: {
		Message: "patch hook failed",
		Kind:    Migration,
	},
}
