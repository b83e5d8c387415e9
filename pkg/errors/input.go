package errors

import (
	"fmt"
	"path/filepath"
	"strings"
)

// InputContext locates a problem inside an inbound data file
type InputContext struct {
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Found    []string `json:"found,omitempty"`
	Expected []string `json:"expected,omitempty"`
}

// InputError is a file-content problem found while validating an inbound file.
// Its Message is the human-readable line recorded in the file's error list.
type InputError struct {
	*SyncError
	Input *InputContext `json:"input"`
}

// Error returns the message without the suggestion so it can be logged verbatim
func (e *InputError) Error() string {
	return e.Message
}

// GetDetailedError returns a detailed multi-line error description
func (e *InputError) GetDetailedError() string {
	lines := []string{fmt.Sprintf("ERROR: %s", e.Message)}

	if e.Input != nil {
		lines = append(lines, fmt.Sprintf("  → File: %s", filepath.Base(e.Input.File)))
		if e.Input.Line >= 0 {
			lines = append(lines, fmt.Sprintf("  → Line: %d", e.Input.Line))
		}
		if len(e.Input.Expected) > 0 {
			lines = append(lines, fmt.Sprintf("  → Expected: %s", strings.Join(e.Input.Expected, ", ")))
		}
	}

	if e.Suggestion != "" {
		lines = append(lines, fmt.Sprintf("  → Suggestion: %s", e.Suggestion))
	}

	return strings.Join(lines, "\n")
}

func newInputError(code ErrorCode, input *InputContext, message, suggestion string) *InputError {
	base := New(CategoryParse, code, message).
		WithSuggestion(suggestion).
		WithContext("file", input.File).
		WithContext("line", input.Line)

	return &InputError{SyncError: base, Input: input}
}

// HeaderCountError reports a header line with the wrong number of columns
func HeaderCountError(file string, found, expected []string) *InputError {
	input := &InputContext{File: file, Line: 0, Found: found, Expected: expected}
	message := fmt.Sprintf("File %s has incorrect number of headers: found %d, it must be %d",
		file, len(found), len(expected))
	return newInputError(CodeHeaderCount, input, message,
		"export the file with the fixed column layout for its kind")
}

// HeaderMismatchError reports a header line whose names differ from the expected schema
func HeaderMismatchError(file string, found, expected []string) *InputError {
	input := &InputContext{File: file, Line: 0, Found: found, Expected: expected}
	message := fmt.Sprintf("File %s has incorrect headers: found [%s], it must be [%s]",
		file, strings.Join(found, ", "), strings.Join(expected, ", "))
	return newInputError(CodeHeaderMismatch, input, message,
		"header names are matched exactly and in order")
}

// ColumnCountError reports a data line whose column count differs from the header
func ColumnCountError(file string, line int, cells []string) *InputError {
	input := &InputContext{File: file, Line: line, Found: cells}
	message := fmt.Sprintf("File %s incorrect number of columns %d in row %d: %s",
		file, len(cells), line, strings.Join(cells, ", "))
	return newInputError(CodeColumnCount, input, message,
		"quote cells that contain the delimiter")
}

// MalformedLineError reports a line the delimited reader could not tokenize
func MalformedLineError(file string, line int, cause error) *InputError {
	input := &InputContext{File: file, Line: line}
	message := fmt.Sprintf("File %s has a malformed row %d: %v", file, line, cause)
	err := newInputError(CodeInvalidFormat, input, message,
		"check the quoting of the row")
	err.Cause = cause
	return err
}

// FormatInputErrorsForUser formats multiple input errors in a user-friendly way
func FormatInputErrorsForUser(errs []*InputError) string {
	if len(errs) == 0 {
		return "No input errors"
	}

	if len(errs) == 1 {
		return errs[0].GetDetailedError()
	}

	lines := []string{fmt.Sprintf("Found %d input errors:", len(errs))}

	maxDetailedErrors := 3
	for i, err := range errs {
		if i == maxDetailedErrors {
			lines = append(lines, "", fmt.Sprintf("... and %d more errors", len(errs)-maxDetailedErrors))
			break
		}
		lines = append(lines, "", err.GetDetailedError())
	}

	return strings.Join(lines, "\n")
}
