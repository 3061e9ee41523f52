package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Format is the encoding of a document on disk.
type Format string

const (
	FormatYAML     Format = "yaml"
	FormatJSON     Format = "json"
	FormatCUE      Format = "cue"
	FormatStarlark Format = "starlark"
	// FormatText is a plan written one "action(arg, ...)" per line.
	FormatText Format = "text"
)

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".cue":
		return FormatCUE, nil
	case ".star", ".starlark":
		return FormatStarlark, nil
	case ".txt", ".plan":
		return FormatText, nil
	}
	return "", fmt.Errorf("cannot infer document format of %s", path)
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the document path to the error (e.g., "actions.0.effects").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}

func (ve ValidationError) String() string {
	var loc string
	switch {
	case ve.File != "" && ve.Line > 0:
		loc = fmt.Sprintf("%s:%d:%d: ", ve.File, ve.Line, ve.Column)
	case ve.File != "":
		loc = ve.File + ": "
	}
	if ve.Path != "" {
		loc += ve.Path + ": "
	}
	return loc + ve.Message
}

// ValidationErrors is returned when a document fails schema validation.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 1 {
		return errs[0].String()
	}
	lines := make([]string, len(errs))
	for i, e := range errs {
		lines[i] = e.String()
	}
	return fmt.Sprintf("%d validation errors:\n  %s", len(errs), strings.Join(lines, "\n  "))
}

// StarlarkResult represents the result of Starlark execution.
type StarlarkResult struct {
	// Output is the output data from Starlark.
	Output map[string]interface{} `json:"output,omitempty"`

	// ExecutionTime is how long the script took to execute.
	ExecutionTime time.Duration `json:"execution_time"`

	// Error is any error that occurred.
	Error string `json:"error,omitempty"`
}
