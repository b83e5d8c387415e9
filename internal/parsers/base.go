// Package parsers reads the delimited data files dropped into the inbound
// directory and turns them into validated rows.
//
// Inbound files come from an external system and are treated as untrusted:
//   - the byte stream is decoded as UTF-8 (a leading byte-order mark is
//     dropped) or, when it is not valid UTF-8, as Windows-1252
//   - cells are trimmed and stripped of embedded byte-order-mark artifacts
//   - the first non-empty record must match the expected header exactly
//   - records whose column count differs from the header are reported and
//     skipped without aborting the file
//
// Example usage:
//
//	validator := NewValidator(DefaultParseConfig())
//	result, err := validator.Validate(ctx, spec, "/sync/current", auditLog)
//	if result.NotFound() {
//		// nothing to do
//	}
package parsers

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"location-sync-service/pkg/errors"
)

// Encoding names reported on a validation result
const (
	EncodingUTF8        = "utf-8"
	EncodingUTF16       = "utf-16"
	EncodingWindows1252 = "windows-1252"
)

// bomArtifacts are byte-order-mark remnants that survive decoding inside cells.
// The second entry is a UTF-8 mark read as Windows-1252.
var bomArtifacts = []string{"\ufeff", "\u00ef\u00bb\u00bf"}

// ParseConfig holds configuration for CSV parsing
type ParseConfig struct {
	Delimiter   rune
	Comment     rune
	LazyQuotes  bool
	DecodeInput bool
}

// DefaultParseConfig returns a comma-delimited, quote-aware configuration
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Delimiter:   ',',
		Comment:     0,
		LazyQuotes:  true,
		DecodeInput: true,
	}
}

// Validate checks that the parse configuration is usable
func (c *ParseConfig) Validate() error {
	if c.Delimiter == 0 || c.Delimiter == '"' || c.Delimiter == '\r' || c.Delimiter == '\n' {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "delimiter", string(c.Delimiter), nil)
	}
	if c.Comment != 0 && c.Comment == c.Delimiter {
		return errors.ConfigurationError(errors.CodeConfigConflict, "comment", string(c.Comment), nil)
	}
	return nil
}

// newReader creates a csv.Reader for the configuration. Field counts are not
// enforced by the reader; the validator compares them against the header.
func (c *ParseConfig) newReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.Comma = c.Delimiter
	reader.Comment = c.Comment
	reader.LazyQuotes = c.LazyQuotes
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false
	return reader
}

func hasUTF16BOM(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0xFF, 0xFE}) || bytes.HasPrefix(data, []byte{0xFE, 0xFF})
}

// decodeInput converts raw file content to UTF-8 and reports the encoding it assumed
func decodeInput(data []byte) ([]byte, string, error) {
	switch {
	case hasUTF16BOM(data):
		out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
		return out, EncodingUTF16, err
	case utf8.Valid(data):
		out, _, err := transform.Bytes(unicode.UTF8BOM.NewDecoder(), data)
		return out, EncodingUTF8, err
	default:
		out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
		return out, EncodingWindows1252, err
	}
}

// cleanCell strips byte-order-mark artifacts and surrounding whitespace
func cleanCell(cell string) string {
	for _, artifact := range bomArtifacts {
		if strings.Contains(cell, artifact) {
			cell = strings.ReplaceAll(cell, artifact, "")
		}
	}
	return strings.TrimSpace(cell)
}

// cleanRecord returns a cleaned copy of a record
func cleanRecord(record []string) []string {
	cleaned := make([]string, len(record))
	for i, cell := range record {
		cleaned[i] = cleanCell(cell)
	}
	return cleaned
}

// isEmptyRecord reports whether a record carries no fields at all
func isEmptyRecord(record []string) bool {
	return len(record) == 0
}

// equalHeaders compares two header lists exactly and in order
func equalHeaders(found, expected []string) bool {
	if len(found) != len(expected) {
		return false
	}
	for i := range found {
		if found[i] != expected[i] {
			return false
		}
	}
	return true
}

// csvParseError is the reader's tokenizing error for one record
type csvParseError = csv.ParseError
