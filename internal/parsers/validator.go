package parsers

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"location-sync-service/internal/audit"
	"location-sync-service/internal/models"
	"location-sync-service/pkg/errors"
	"location-sync-service/pkg/logger"
)

// FileNotFound is the sole error recorded for a file that is absent from the
// inbound directory. Callers skip such files rather than routing them.
const FileNotFound = "file not found"

// ValidationResult is the outcome of validating one inbound file
type ValidationResult struct {
	Kind        models.Kind          `json:"kind"`
	FileName    string               `json:"file_name"`
	Path        string               `json:"path"`
	Encoding    string               `json:"encoding,omitempty"`
	Headers     []string             `json:"headers"`
	Rows        []models.Row         `json:"rows"`
	Errors      []string             `json:"errors"`
	InputErrors []*errors.InputError `json:"-"`
}

// NotFound reports whether the file was absent
func (r *ValidationResult) NotFound() bool {
	return len(r.Errors) == 1 && r.Errors[0] == FileNotFound
}

// HasErrors reports whether any error was recorded, including FileNotFound
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Failed reports whether the file content was invalid
func (r *ValidationResult) Failed() bool {
	return r.HasErrors() && !r.NotFound()
}

func (r *ValidationResult) addInputError(err *errors.InputError) {
	r.InputErrors = append(r.InputErrors, err)
	r.Errors = append(r.Errors, err.Error())
}

// Validator validates inbound files against their expected header schema
type Validator struct {
	config *ParseConfig
	logger logger.Logger
}

// NewValidator creates a Validator with the given configuration
func NewValidator(config *ParseConfig) *Validator {
	if config == nil {
		config = DefaultParseConfig()
	}

	log := logger.GetGlobalLogger().WithComponent("validator")
	log.WithFields(logger.Fields{
		"delimiter":    string(config.Delimiter),
		"lazy_quotes":  config.LazyQuotes,
		"decode_input": config.DecodeInput,
	}).Debug("Created validator")

	return &Validator{
		config: config,
		logger: log,
	}
}

// Validate reads spec.FileName from dir and validates it against spec.Headers.
// Every observation is appended to the audit log. The returned error is only
// non-nil when ctx is cancelled; file problems are reported on the result.
func (v *Validator) Validate(ctx context.Context, spec models.FileSpec, dir string, log *audit.Log) (*ValidationResult, error) {
	path := filepath.Join(dir, spec.FileName)
	result := &ValidationResult{
		Kind:     spec.Kind,
		FileName: spec.FileName,
		Path:     path,
		Headers:  []string{},
		Rows:     []models.Row{},
		Errors:   []string{},
	}

	log.Infof("Read %s data file starting", spec.Kind)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Errorf("%s file not found", spec.Kind)
			result.Errors = append(result.Errors, FileNotFound)
			return result, nil
		}
		// An unreadable file is content we cannot trust, not an absent one.
		fileErr := errors.FileError(errors.CodeFilePermission, path, err)
		log.Errorf("File %s could not be read: %v", spec.FileName, err)
		result.Errors = append(result.Errors, fileErr.Message)
		return result, nil
	}

	if err := v.parse(ctx, spec, data, result, log); err != nil {
		return result, err
	}

	log.Infof("Read %s data file complete", spec.Kind)

	v.logger.WithFields(logger.Fields{
		"file":     spec.FileName,
		"kind":     spec.Kind,
		"encoding": result.Encoding,
		"rows":     len(result.Rows),
		"errors":   len(result.Errors),
	}).Debug("Validated file")

	return result, nil
}

// ValidateReader validates content from r as if it were the file named by spec
func (v *Validator) ValidateReader(ctx context.Context, spec models.FileSpec, r io.Reader, log *audit.Log) (*ValidationResult, error) {
	result := &ValidationResult{
		Kind:     spec.Kind,
		FileName: spec.FileName,
		Headers:  []string{},
		Rows:     []models.Row{},
		Errors:   []string{},
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return result, errors.FileError(errors.CodeFileCorrupted, spec.FileName, err)
	}

	if err := v.parse(ctx, spec, data, result, log); err != nil {
		return result, err
	}
	return result, nil
}

func (v *Validator) parse(ctx context.Context, spec models.FileSpec, data []byte, result *ValidationResult, log *audit.Log) error {
	result.Encoding = EncodingUTF8
	if v.config.DecodeInput {
		decoded, encoding, err := decodeInput(data)
		if err != nil {
			parseErr := errors.ParseError(errors.CodeEncodingError, spec.FileName, 0, "", err)
			log.Errorf("File %s could not be decoded: %v", spec.FileName, err)
			result.Errors = append(result.Errors, parseErr.Message)
			return nil
		}
		data = decoded
		result.Encoding = encoding
	}

	reader := v.config.newReader(bytes.NewReader(data))
	headerSeen := false

	for {
		if err := ctx.Err(); err != nil {
			return errors.InternalError(errors.CodeUnexpectedError, "validate "+spec.FileName, err)
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}

		var csvErr *csvParseError
		if err != nil {
			if !errors.As(err, &csvErr) {
				return errors.FileError(errors.CodeFileCorrupted, spec.FileName, err)
			}
			inputErr := errors.MalformedLineError(spec.FileName, csvErr.StartLine-1, csvErr.Err)
			log.Errorf("%s", inputErr.Error())
			result.addInputError(inputErr)
			continue
		}

		if isEmptyRecord(record) {
			continue
		}

		line, _ := reader.FieldPos(0)
		index := line - 1
		cells := cleanRecord(record)

		if !headerSeen {
			headerSeen = true
			result.Headers = cells

			if len(cells) != len(spec.Headers) {
				inputErr := errors.HeaderCountError(spec.FileName, cells, spec.Headers)
				log.Errorf("%s", inputErr.Error())
				result.addInputError(inputErr)
				return nil
			}
			if !equalHeaders(cells, spec.Headers) {
				inputErr := errors.HeaderMismatchError(spec.FileName, cells, spec.Headers)
				log.Errorf("%s", inputErr.Error())
				result.addInputError(inputErr)
				return nil
			}
			log.Infof("File %s with correct %d header columns", spec.FileName, len(cells))
			continue
		}

		if len(cells) != len(spec.Headers) {
			inputErr := errors.ColumnCountError(spec.FileName, index, cells)
			log.Errorf("%s", inputErr.Error())
			result.addInputError(inputErr)
			continue
		}

		row := make(models.Row, len(cells))
		for i, column := range spec.Headers {
			row[column] = cells[i]
		}
		result.Rows = append(result.Rows, row)
	}

	return nil
}
