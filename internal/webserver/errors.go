package webserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"formrunner/internal/field"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeUpload     ErrorType = "upload"
	ErrorTypeFileIO     ErrorType = "file_io"
	ErrorTypeSecurity   ErrorType = "security"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeInternal   ErrorType = "internal"
)

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	Type        ErrorType `json:"type"`
	Code        string    `json:"code"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Details     string    `json:"details"`
	Field       string    `json:"field,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

// UploadRejectedError reports an upload that violates its field's accept or size limits.
type UploadRejectedError struct {
	Field  field.Descriptor
	Reason string
}

func (e *UploadRejectedError) Error() string {
	return fmt.Sprintf("invalid upload for %s: %s", e.Field.Label(), e.Reason)
}

// InvalidValueError reports a submitted value that does not fit its field.
type InvalidValueError struct {
	Field  field.Descriptor
	Reason string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value for %s: %s", e.Field.Label(), e.Reason)
}

// StorageError wraps failures while persisting an upload.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to store upload %s: %v", e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

var (
	errCSRF     = errors.New("csrf token missing or invalid")
	errNotFound = errors.New("file not found")
)

// CategorizeError analyzes an error and returns an appropriate ErrorResponse
// with texts in lang.
func (c *Catalog) CategorizeError(err error, lang string) ErrorResponse {
	if err == nil {
		return ErrorResponse{
			Type:        ErrorTypeInternal,
			Code:        "unknown_error",
			Title:       c.Text(lang, "error_processing_title"),
			Description: c.Text(lang, "error_processing_description"),
			Details:     "No error details available",
		}
	}

	validation := func(code, fieldName string) ErrorResponse {
		return ErrorResponse{
			Type:        ErrorTypeValidation,
			Code:        code,
			Title:       c.Text(lang, "error_validation_title"),
			Description: c.Text(lang, "error_validation_description"),
			Details:     err.Error(),
			Field:       fieldName,
			Suggestions: []string{
				c.Text(lang, "error_validation_suggestion_required"),
				c.Text(lang, "error_validation_suggestion_limits"),
			},
		}
	}

	var (
		missing   *field.MissingValueError
		rejected  *UploadRejectedError
		invalid   *InvalidValueError
		storage   *StorageError
		tooLarge  *http.MaxBytesError
		errMsgLow = strings.ToLower(err.Error())
	)

	switch {
	case errors.As(err, &missing):
		return validation("missing_required_field", missing.Field.Name())

	case errors.As(err, &rejected):
		return validation("invalid_upload", rejected.Field.Name())

	case errors.As(err, &invalid):
		return validation("invalid_value", invalid.Field.Name())

	case errors.Is(err, errCSRF):
		return ErrorResponse{
			Type:        ErrorTypeSecurity,
			Code:        "csrf_token_invalid",
			Title:       c.Text(lang, "error_security_title"),
			Description: c.Text(lang, "error_security_description"),
			Details:     err.Error(),
			Suggestions: []string{c.Text(lang, "error_security_suggestion_reload")},
		}

	case errors.Is(err, errNotFound):
		return ErrorResponse{
			Type:        ErrorTypeNotFound,
			Code:        "file_not_found",
			Title:       c.Text(lang, "error_not_found_title"),
			Description: c.Text(lang, "error_not_found_description"),
			Details:     err.Error(),
		}

	case errors.As(err, &storage):
		return ErrorResponse{
			Type:        ErrorTypeFileIO,
			Code:        "file_write_error",
			Title:       c.Text(lang, "error_file_io_title"),
			Description: c.Text(lang, "error_file_io_description"),
			Details:     err.Error(),
			Suggestions: []string{
				c.Text(lang, "error_file_io_suggestion_space"),
				c.Text(lang, "error_file_io_suggestion_retry"),
			},
		}

	case errors.As(err, &tooLarge),
		strings.Contains(errMsgLow, "multipart"),
		strings.Contains(errMsgLow, "form"):
		return ErrorResponse{
			Type:        ErrorTypeUpload,
			Code:        "upload_form_error",
			Title:       c.Text(lang, "error_upload_title"),
			Description: c.Text(lang, "error_upload_description"),
			Details:     err.Error(),
			Suggestions: []string{
				c.Text(lang, "error_upload_suggestion_size"),
				c.Text(lang, "error_upload_suggestion_refresh"),
			},
		}
	}

	return ErrorResponse{
		Type:        ErrorTypeInternal,
		Code:        "processing_error",
		Title:       c.Text(lang, "error_processing_title"),
		Description: c.Text(lang, "error_processing_description"),
		Details:     err.Error(),
		Suggestions: []string{c.Text(lang, "error_processing_suggestion_retry")},
	}
}

// WriteErrorResponse writes a structured error response as JSON with texts in lang.
func (c *Catalog) WriteErrorResponse(w http.ResponseWriter, err error, statusCode int, lang string) {
	errorResp := c.CategorizeError(err, lang)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if jsonErr := json.NewEncoder(w).Encode(errorResp); jsonErr != nil {
		fmt.Fprintf(w, "Error: %v", err)
	}
}
