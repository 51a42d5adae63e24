// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package base

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gridguyz/patcher/internal/errors"
	"github.com/hashicorp/go-hclog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFormat is the output format of the patcher logger.
type LogFormat int

const (
	UnspecifiedFormat LogFormat = iota
	StandardFormat
	JSONFormat
)

func (l LogFormat) String() string {
	switch l {
	case StandardFormat:
		return "standard"
	case JSONFormat:
		return "json"
	}
	return "unspecified"
}

// ParseLogFormat parses a log format name. The empty string is the
// unspecified format.
func ParseLogFormat(format string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "":
		return UnspecifiedFormat, nil
	case "standard":
		return StandardFormat, nil
	case "json":
		return JSONFormat, nil
	default:
		return UnspecifiedFormat, fmt.Errorf("unknown log format: %s", format)
	}
}

// ProcessLogLevelAndFormat resolves the log level and format, preferring
// flag values over config values and defaulting to info and standard.
func ProcessLogLevelAndFormat(flagLogLevel, flagLogFormat, configLogLevel, configLogFormat string) (hclog.Level, LogFormat, error) {
	logFormat := UnspecifiedFormat

	// If the flag wasn't set, check config; if not set use info
	logLevel := strings.ToLower(strings.TrimSpace(flagLogLevel))
	if logLevel == "" {
		logLevel = strings.ToLower(strings.TrimSpace(configLogLevel))
		if logLevel == "" {
			logLevel = "info"
		}
	}

	// Set level based off text value
	var level hclog.Level
	switch logLevel {
	case "trace":
		level = hclog.Trace
	case "debug":
		level = hclog.Debug
	case "notice", "info":
		level = hclog.Info
	case "warn", "warning":
		level = hclog.Warn
	case "err", "error":
		level = hclog.Error
	default:
		return level, logFormat, fmt.Errorf("unknown log level: %s", logLevel)
	}

	if flagLogFormat != "" {
		var err error
		logFormat, err = ParseLogFormat(flagLogFormat)
		if err != nil {
			return level, logFormat, err
		}
	}
	if logFormat == UnspecifiedFormat {
		var err error
		logFormat, err = ParseLogFormat(configLogFormat)
		if err != nil {
			return level, logFormat, err
		}
	}
	if logFormat == UnspecifiedFormat {
		logFormat = StandardFormat
	}

	return level, logFormat, nil
}

// NewLogger builds the root logger. Output goes to stderr, and also to a
// rotated file when logFile is set. The returned closer releases the file.
func NewLogger(name string, level hclog.Level, format LogFormat, logFile string) (hclog.Logger, io.Closer, error) {
	const op = "base.NewLogger"
	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if logFile != "" {
		// Ensure the file is created with the desired permissions.
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, errors.Wrap(err, op, errors.WithCode(errors.Io))
		}
		_ = f.Close()
		lj := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10,
			MaxBackups: 3,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, lj)
		closer = lj
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      level,
		Output:     out,
		JSONFormat: format == JSONFormat,
	})
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
