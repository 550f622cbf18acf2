package webserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"formrunner/internal/dispatch"
	"formrunner/internal/field"
)

// IndexHandler renders the form on GET and processes it on POST.
func (s *Server) IndexHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.showForm(w, r)
	case http.MethodPost:
		s.submit(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) showForm(w http.ResponseWriter, r *http.Request) {
	lang := s.catalog.Language(r)

	var token string

	if s.cfg.CSRF {
		token = GetCSRFTokenFromCookie(r)
		if token == "" {
			var err error

			token, err = GenerateToken()
			if err != nil {
				s.log.Error("Failed to generate CSRF token", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)

				return
			}

			SetCSRFTokenCookie(w, r, token)
		}
	}

	fields, examples := fieldViews(s.cfg.Fields, s.examples)

	s.render(w, http.StatusOK, "form.html", formPage{
		Lang:      lang,
		T:         s.catalog.All(lang),
		Title:     s.cfg.Title,
		CustomCSS: template.CSS(s.cfg.CustomCSS), //nolint:gosec // operator supplied
		Fields:    fields,
		Examples:  examples,
		Flashes:   s.flashes.Pop(w, r),
		CSRFToken: token,
	})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	log := s.log.With("handler", "IndexHandler")
	log.Info("Received form submission", "remote_addr", r.RemoteAddr)

	lang := s.catalog.Language(r)
	asJSON := wantsJSON(r)

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	err := parseForm(r)
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll() //nolint:errcheck
	}

	if err != nil {
		log.Error("Failed to parse form", "error", err)

		status := http.StatusBadRequest

		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}

		s.catalog.WriteErrorResponse(w, fmt.Errorf("form parsing error: %w", err), status, lang)

		return
	}

	if s.cfg.CSRF && !ValidateCSRFToken(r, GetCSRFTokenFromCookie(r)) {
		log.Warn("Rejected submission with invalid CSRF token")
		s.catalog.WriteErrorResponse(w, errCSRF, http.StatusForbidden, lang)

		return
	}

	values, err := s.collectValues(r)
	if err != nil {
		var storage *StorageError
		if errors.As(err, &storage) {
			log.Error("Failed to store upload", "error", err)
			s.catalog.WriteErrorResponse(w, err, http.StatusInternalServerError, lang)

			return
		}

		log.Info("Submission rejected", "error", err)
		s.reject(w, r, lang, asJSON, err)

		return
	}

	log.Info("Processing form submission", "title", s.cfg.Title, "fields", values.Names())

	result := s.dispatcher.Dispatch(r.Context(), values)

	log.Info("Submission processed", "status", result.Status)

	if asJSON {
		w.Header().Set("Content-Type", "application/json")

		if err := json.NewEncoder(w).Encode(result); err != nil {
			log.Error("Failed to send response", "error", err)
		}

		return
	}

	s.render(w, http.StatusOK, "result.html", resultPage{
		Lang:           lang,
		T:              s.catalog.All(lang),
		Title:          s.cfg.Title,
		CustomCSS:      template.CSS(s.cfg.CustomCSS), //nolint:gosec // operator supplied
		Result:         result,
		SuccessMessage: s.cfg.SuccessMessage,
		Data:           dataRows(result.Data),
	})
}

func parseForm(r *http.Request) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return r.ParseMultipartForm(maxMemory)
	}

	return r.ParseForm()
}

// collectValues reads every descriptor in order. Uploads are stored as they are
// reached, so a later failure leaves earlier files in place.
func (s *Server) collectValues(r *http.Request) (dispatch.Values, error) {
	values := make(dispatch.Values, len(s.cfg.Fields))

	for _, d := range s.cfg.Fields {
		switch f := d.(type) {
		case field.File:
			path, err := s.receiveUpload(r, f)
			if errors.Is(err, http.ErrMissingFile) {
				if f.Required() {
					return nil, &field.MissingValueError{Field: f}
				}

				continue
			}

			if err != nil {
				return nil, err
			}

			values[f.Name()] = path

		case field.Checkbox:
			_, checked := r.PostForm[f.Name()]
			values[f.Name()] = checked

		default:
			value := r.PostFormValue(d.Name())
			if value == "" {
				if d.Required() {
					return nil, &field.MissingValueError{Field: d}
				}

				values[d.Name()] = value

				continue
			}

			if n, ok := d.(field.Number); ok {
				if err := ValidateNumber(value, n); err != nil {
					return nil, err
				}
			}

			values[d.Name()] = value
		}
	}

	return values, nil
}

func (s *Server) receiveUpload(r *http.Request, f field.File) (string, error) {
	if r.MultipartForm == nil {
		return "", http.ErrMissingFile
	}

	file, header, err := r.FormFile(f.Name())
	if err != nil {
		return "", err
	}
	defer file.Close()

	if header.Filename == "" {
		return "", http.ErrMissingFile
	}

	if err := ValidateFileUpload(header, f); err != nil {
		return "", err
	}

	return s.saveUpload(file, SanitizeFilename(header.Filename))
}

// saveUpload writes into a temporary file next to the target and renames it into
// place, so two uploads with the same name never interleave; the last one wins.
func (s *Server) saveUpload(src multipart.File, name string) (string, error) {
	dst := filepath.Join(s.cfg.UploadDir, name)

	tmp, err := os.CreateTemp(s.cfg.UploadDir, "."+name+".*.part")
	if err != nil {
		return "", &StorageError{Path: dst, Err: err}
	}

	_, err = io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err == nil {
		err = os.Rename(tmp.Name(), dst)
	}

	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", &StorageError{Path: dst, Err: err}
	}

	return dst, nil
}

// reject answers a submission that failed validation: a flash message and a
// redirect to the form, or a structured error for JSON clients.
func (s *Server) reject(w http.ResponseWriter, r *http.Request, lang string, asJSON bool, err error) {
	if asJSON {
		s.catalog.WriteErrorResponse(w, err, http.StatusBadRequest, lang)
		return
	}

	s.flashes.Add(w, r, "error", s.rejectionMessage(lang, err))
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) rejectionMessage(lang string, err error) string {
	var (
		missing  *field.MissingValueError
		rejected *UploadRejectedError
		invalid  *InvalidValueError
	)

	switch {
	case errors.As(err, &missing):
		key := "missing_required_field"
		if missing.Field.Kind() == field.KindFile {
			key = "missing_required_file"
		}

		return s.catalog.Textf(lang, key, missing.Field.Label())
	case errors.As(err, &rejected):
		return s.catalog.Textf(lang, "invalid_upload", rejected.Field.Label(), rejected.Reason)
	case errors.As(err, &invalid):
		return s.catalog.Textf(lang, "invalid_number", invalid.Field.Label(), invalid.Reason)
	}

	return err.Error()
}

// DownloadExampleHandler sends a file from the example directory as an attachment.
func (s *Server) DownloadExampleHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.PathValue("name")
	lang := s.catalog.Language(r)

	file, info, err := s.openExample(name)
	if err != nil {
		s.log.Info("Example file not found", "name", name, "error", err)

		if wantsJSON(r) {
			s.catalog.WriteErrorResponse(w, fmt.Errorf("example %q: %w", name, errNotFound), http.StatusNotFound, lang)
			return
		}

		s.flashes.Add(w, r, "error", s.catalog.Textf(lang, "example_not_found", name))
		http.Redirect(w, r, "/", http.StatusFound)

		return
	}
	defer file.Close()

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), file)
}

func (s *Server) openExample(name string) (*os.File, os.FileInfo, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return nil, nil, fmt.Errorf("invalid example name %q", name)
	}

	file, err := os.Open(filepath.Join(s.cfg.ExampleDir, name))
	if err != nil {
		return nil, nil, err
	}

	info, err := file.Stat()
	if err == nil && !info.Mode().IsRegular() {
		err = fmt.Errorf("%s is not a regular file", name)
	}

	if err != nil {
		file.Close()
		return nil, nil, err
	}

	return file, info, nil
}

// OpenAPIHandler serves the OpenAPI document describing form submissions.
func (s *Server) OpenAPIHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(s.openapi); err != nil {
		s.log.Error("Failed to encode OpenAPI document", "error", err)
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
