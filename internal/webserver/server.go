package webserver

import (
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"formrunner/internal/dispatch"
	"formrunner/internal/field"
)

const (
	DefaultTitle          = "Utility"
	DefaultUploadDir      = "uploaded_files"
	DefaultSuccessMessage = "Processing complete!"
)

// Config describes one form and what happens to its submissions. Exactly one
// of Command and Handler must be set.
type Config struct {
	Title  string
	Fields []field.Descriptor

	// Command is the program to run with {field} placeholders in its arguments.
	Command []string
	// Timeout bounds the command. Zero means no limit.
	Timeout time.Duration
	// WorkDir is the command's working directory.
	WorkDir string
	// Env is appended to the command's inherited environment as KEY=VALUE pairs.
	Env []string

	// Handler processes submissions in-process instead of a command.
	Handler dispatch.Handler
	// ErrorHandler, when set, turns processing failures into the rendered Result.
	ErrorHandler dispatch.ErrorHandler

	UploadDir      string
	ExampleDir     string
	EnableExamples bool
	CustomCSS      string
	SuccessMessage string

	// SecretKey signs flash cookies. A random key is generated when empty.
	SecretKey string
	// MaxUploadBytes bounds a whole submission. Zero means DefaultMaxUploadBytes.
	MaxUploadBytes int64
	// CSRF enables token checks on submissions.
	CSRF bool

	Logger *slog.Logger
}

// Server renders the form and handles its submissions.
type Server struct {
	cfg        Config
	dispatcher dispatch.Dispatcher
	examples   []string
	templates  *template.Template
	catalog    *Catalog
	flashes    *flashStore
	openapi    *openapi3.T
	log        *slog.Logger
	mux        *http.ServeMux
}

// New validates cfg, prepares the upload directory and builds the routes.
func New(cfg Config) (*Server, error) {
	if cfg.Title == "" {
		cfg.Title = DefaultTitle
	}

	if cfg.UploadDir == "" {
		cfg.UploadDir = DefaultUploadDir
	}

	if cfg.SuccessMessage == "" {
		cfg.SuccessMessage = DefaultSuccessMessage
	}

	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if err := field.Validate(cfg.Fields); err != nil {
		return nil, fmt.Errorf("invalid fields: %w", err)
	}

	dispatcher, err := dispatch.New(dispatch.Config{
		Command:      cfg.Command,
		Timeout:      cfg.Timeout,
		Dir:          cfg.WorkDir,
		Env:          cfg.Env,
		Handler:      cfg.Handler,
		ErrorHandler: cfg.ErrorHandler,
		Logger:       cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.SecretKey == "" {
		cfg.SecretKey, err = GenerateToken()
		if err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	catalog, err := LoadCatalog()
	if err != nil {
		return nil, err
	}

	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	examples, err := listExamples(cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		examples:   examples,
		templates:  templates,
		catalog:    catalog,
		flashes:    newFlashStore(cfg.SecretKey),
		openapi:    BuildOpenAPI(cfg.Title, cfg.Fields),
		log:        cfg.Logger.With("component", "webserver"),
		mux:        http.NewServeMux(),
	}

	s.routes()

	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/{$}", s.IndexHandler)
	s.mux.HandleFunc("/openapi.json", s.OpenAPIHandler)
	s.mux.Handle("/www/", http.StripPrefix("/www/", StaticFileServer()))

	if s.cfg.EnableExamples && s.cfg.ExampleDir != "" {
		s.mux.HandleFunc("/download-example/{name}", s.DownloadExampleHandler)
	}
}

// ServeHTTP serves the routes without middleware.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Handler returns the routes wrapped in access logging and compression.
func (s *Server) Handler() http.Handler {
	return AccessLogMiddleware(s.log, CompressionMiddleware(s.mux))
}

// Examples returns the example file names offered for download.
func (s *Server) Examples() []string {
	return append([]string(nil), s.examples...)
}

func listExamples(cfg Config) ([]string, error) {
	if !cfg.EnableExamples || cfg.ExampleDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(cfg.ExampleDir)
	if errors.Is(err, os.ErrNotExist) {
		cfg.Logger.Warn("Example directory does not exist", "dir", cfg.ExampleDir)
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list example directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}

	return names, nil
}
