// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package base

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/mitchellh/cli"
	"github.com/mitchellh/go-wordwrap"
)

// WrapForHelpText wraps every line at TermWidth, keeping its indentation.
func WrapForHelpText(lines []string) string {
	var ret []string
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		trimmed := strings.TrimSpace(line)
		diff := uint(len(line) - len(trimmed))
		wrapped := wordwrap.WrapString(trimmed, TermWidth-diff)
		splitWrapped := strings.Split(wrapped, "\n")
		for i := range splitWrapped {
			splitWrapped[i] = fmt.Sprintf("%s%s", strings.Repeat(" ", int(diff)), strings.TrimSpace(splitWrapped[i]))
		}
		ret = append(ret, strings.Join(splitWrapped, "\n"))
	}

	return strings.Join(ret, "\n")
}

// WrapSlice indents every entry of input by prefixSpaces.
func WrapSlice(prefixSpaces int, input []string) string {
	var ret []string
	for _, v := range input {
		ret = append(ret, fmt.Sprintf("%s%s",
			strings.Repeat(" ", prefixSpaces),
			v,
		))
	}

	return strings.Join(ret, "\n")
}

// WrapMap prints input as aligned "key: value" lines sorted by key.
func WrapMap(prefixSpaces, maxLengthOverride int, input map[string]any) string {
	maxKeyLength := maxLengthOverride
	if maxKeyLength == 0 {
		maxKeyLength = MaxAttributesLength(input)
	}

	var sortedKeys []string
	for k := range input {
		sortedKeys = append(sortedKeys, k)
	}
	sort.Strings(sortedKeys)

	var ret []string
	for _, k := range sortedKeys {
		v := input[k]
		spaces := maxKeyLength - len(k)
		if spaces < 0 {
			spaces = 0
		}

		if sv, ok := v.([]string); ok {
			nv := make([]string, 0, len(sv))
			for _, si := range sv {
				nv = append(nv, fmt.Sprintf("%q", si))
			}
			v = nv
		}

		ret = append(ret, fmt.Sprintf("%s%s%s%v",
			strings.Repeat(" ", prefixSpaces),
			fmt.Sprintf("%s: ", k),
			strings.Repeat(" ", spaces),
			v,
		))
	}

	return strings.Join(ret, "\n")
}

// MaxAttributesLength returns the length of the longest key of m.
func MaxAttributesLength(m map[string]any) int {
	maxLength := 0
	for k := range m {
		if len(k) > maxLength {
			maxLength = len(k)
		}
	}
	return maxLength
}

// PrintCliError prints the given CLI error to the UI in the appropriate format
func (c *Command) PrintCliError(err error) {
	switch Format(c.UI) {
	case "json":
		output := struct {
			Error string `json:"error"`
		}{
			Error: err.Error(),
		}
		b, _ := JsonFormatter{}.Format(output)
		c.UI.Error(string(b))
	default:
		c.UI.Error(err.Error())
	}
}

// PrintJson prints the given value in our common JSON format.
func (c *Command) PrintJson(input any) bool {
	b, err := JsonFormatter{}.Format(input)
	if err != nil {
		c.PrintCliError(fmt.Errorf("Error formatting as JSON: %w", err))
		return false
	}
	c.UI.Output(string(b))
	return true
}

// Highlight renders s in bold when the UI is colored.
func Highlight(s string) string {
	return color.New(color.Bold).Sprint(s)
}

// An output formatter for json output of an object
type JsonFormatter struct{}

func (j JsonFormatter) Format(data any) ([]byte, error) {
	return json.Marshal(data)
}

// Format returns the output format of ui, falling back to
// PATCHER_CLI_FORMAT and then "table".
func Format(ui cli.Ui) string {
	switch t := ui.(type) {
	case *PatcherUI:
		return t.Format
	}

	format := os.Getenv(EnvPatcherCLIFormat)
	if format == "" {
		format = "table"
	}

	return format
}
