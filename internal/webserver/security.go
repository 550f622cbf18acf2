package webserver

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"formrunner/internal/field"
)

const (
	// DefaultMaxUploadBytes limits a whole submission to 32MB
	DefaultMaxUploadBytes = 32 * 1024 * 1024
	// maxMemory is the part of a multipart form kept in memory; the rest spills to disk
	maxMemory = 1024 * 1024
	// CSRFTokenLength defines the length of CSRF tokens
	CSRFTokenLength = 32

	csrfCookieName = "csrf_token"
	csrfFieldName  = "csrf_token"
)

// ValidateFileUpload checks an upload against its field's size limit and accept filter.
func ValidateFileUpload(header *multipart.FileHeader, f field.File) error {
	if strings.TrimSpace(header.Filename) == "" {
		return &UploadRejectedError{Field: f, Reason: "filename cannot be empty"}
	}

	if limit := f.MaxBytes(); limit > 0 && header.Size > limit {
		return &UploadRejectedError{
			Field:  f,
			Reason: fmt.Sprintf("file too large: %d bytes (max %d)", header.Size, limit),
		}
	}

	if !acceptsFile(f.Accept, header) {
		return &UploadRejectedError{
			Field:  f,
			Reason: fmt.Sprintf("invalid file type: %s (allowed: %s)", filepath.Ext(header.Filename), f.Accept),
		}
	}

	return nil
}

// acceptsFile applies an HTML accept filter: extensions, exact MIME types or
// type wildcards such as "image/*".
func acceptsFile(accept string, header *multipart.FileHeader) bool {
	accept = strings.TrimSpace(accept)
	if accept == "" {
		return true
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			contentType = byExt
		}
	}

	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}

	for token := range strings.SplitSeq(accept, ",") {
		token = strings.ToLower(strings.TrimSpace(token))

		switch {
		case token == "":
			continue
		case strings.HasPrefix(token, "."):
			if ext == token {
				return true
			}
		case strings.HasSuffix(token, "/*"):
			if strings.HasPrefix(contentType, strings.TrimSuffix(token, "*")) {
				return true
			}
		case contentType == token:
			return true
		}
	}

	return false
}

// SanitizeFilename sanitizes filenames to prevent issues
func SanitizeFilename(filename string) string {
	filename = filepath.Base(strings.ReplaceAll(filename, "\\", "/"))

	filename = strings.ReplaceAll(filename, "/", "")
	filename = strings.ReplaceAll(filename, "..", "")
	filename = strings.ReplaceAll(filename, ":", "")
	filename = strings.ReplaceAll(filename, "*", "")
	filename = strings.ReplaceAll(filename, "?", "")
	filename = strings.ReplaceAll(filename, "<", "")
	filename = strings.ReplaceAll(filename, ">", "")
	filename = strings.ReplaceAll(filename, "|", "")
	filename = strings.ReplaceAll(filename, "\x00", "")
	filename = strings.TrimSpace(filename)

	// Ensure filename is not empty after sanitization
	if filename == "" || filename == "." {
		filename = "upload"
	}

	return filename
}

// ValidateNumber checks that a submitted number parses and respects the field bounds.
func ValidateNumber(raw string, f field.Number) error {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return &InvalidValueError{Field: f, Reason: fmt.Sprintf("%q is not a number", raw)}
	}

	if f.Min != nil && value < *f.Min {
		return &InvalidValueError{Field: f, Reason: fmt.Sprintf("must be at least %s", formatNumber(*f.Min))}
	}

	if f.Max != nil && value > *f.Max {
		return &InvalidValueError{Field: f, Reason: fmt.Sprintf("must be at most %s", formatNumber(*f.Max))}
	}

	return nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// GenerateToken returns a hex encoded random token of CSRFTokenLength bytes.
func GenerateToken() (string, error) {
	bytes := make([]byte, CSRFTokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return hex.EncodeToString(bytes), nil
}

// ValidateCSRFToken validates a CSRF token from the parsed request form
func ValidateCSRFToken(r *http.Request, sessionToken string) bool {
	formToken := r.PostFormValue(csrfFieldName)

	return formToken != "" && sessionToken != "" &&
		subtle.ConstantTimeCompare([]byte(formToken), []byte(sessionToken)) == 1
}

// SetCSRFTokenCookie sets a CSRF token in a cookie
func SetCSRFTokenCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	})
}

// GetCSRFTokenFromCookie retrieves CSRF token from cookie
func GetCSRFTokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil {
		return ""
	}

	return cookie.Value
}
