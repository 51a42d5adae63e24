// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package base

// Exit codes of the patcher commands.
const (
	// CommandSuccess is returned when the command completed.
	CommandSuccess int = iota
	// CommandMigrationError is returned when the database or a migration
	// failed and the batch was rolled back.
	CommandMigrationError
	// CommandCliError is returned for local failures, such as an unwritable
	// metrics file.
	CommandCliError
	// CommandUserError is returned for invalid flags, arguments or
	// configuration.
	CommandUserError
)

const (
	// FlagNameConfig is the flag used to point at an HCL configuration file.
	FlagNameConfig = "config"
	// FlagNameDatabaseUrl is the flag used to read in the database url.
	FlagNameDatabaseUrl = "database-url"
	// FlagNameLogLevel is the flag used to set the log level.
	FlagNameLogLevel = "log-level"
	// FlagNameLogFormat is the flag used to set the log format.
	FlagNameLogFormat = "log-format"
	// FlagNameFormat is the flag used to select the output format.
	FlagNameFormat = "format"
)

const (
	EnvPatcherCLINoColor = `PATCHER_CLI_NO_COLOR`
	EnvPatcherCLIFormat  = `PATCHER_CLI_FORMAT`
	EnvPatcherConfig     = `PATCHER_CONFIG`
)
