package webserver

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"formrunner/internal/dispatch"
	"formrunner/internal/field"
)

//go:embed www/*
var wwwFiles embed.FS

var (
	helpPolicyOnce sync.Once
	helpPolicy     *bluemonday.Policy
)

func helpSanitizer() *bluemonday.Policy {
	helpPolicyOnce.Do(func() {
		policy := bluemonday.UGCPolicy()
		policy.RequireNoFollowOnLinks(true)
		policy.AddTargetBlankToFullyQualifiedLinks(true)
		helpPolicy = policy
	})

	return helpPolicy
}

// sanitizeHelp strips anything but basic inline markup from descriptor help text.
func sanitizeHelp(raw string) template.HTML {
	if raw == "" {
		return ""
	}

	return template.HTML(helpSanitizer().Sanitize(raw)) //nolint:gosec // sanitized above
}

func parseTemplates() (*template.Template, error) {
	tmpl, err := template.New("pages").ParseFS(wwwFiles, "www/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return tmpl, nil
}

// StaticFileServer serves the embedded stylesheet and scripts.
func StaticFileServer() http.Handler {
	subFS, err := fs.Sub(wwwFiles, "www")
	if err != nil {
		slog.Error("Failed to create sub-filesystem", "error", err)
		return http.FileServer(http.FS(wwwFiles))
	}

	return http.FileServer(http.FS(subFS))
}

type fieldView struct {
	Kind        field.Kind
	Name        string
	Label       string
	Required    bool
	Help        template.HTML
	Accept      string
	Placeholder string
	Multiline   bool
	Value       string
	Min         string
	Max         string
	Step        string
	Choices     []field.Choice
	Checked     bool
	Example     string
}

type formPage struct {
	Lang      string
	T         Translation
	Title     string
	CustomCSS template.CSS
	Fields    []fieldView
	Examples  []string
	Flashes   []Flash
	CSRFToken string
}

type dataRow struct {
	Key   string
	Value string
}

type resultPage struct {
	Lang           string
	T              Translation
	Title          string
	CustomCSS      template.CSS
	Result         dispatch.Result
	SuccessMessage string
	Data           []dataRow
}

func optionalNumber(v *float64) string {
	if v == nil {
		return ""
	}

	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// fieldViews flattens descriptors for the template. A field gets a download link
// when an example file with its name exists; the other examples are listed apart.
func fieldViews(fields []field.Descriptor, examples []string) ([]fieldView, []string) {
	available := make(map[string]bool, len(examples))
	for _, name := range examples {
		available[name] = true
	}

	views := make([]fieldView, 0, len(fields))
	linked := make(map[string]bool)

	for _, d := range fields {
		v := fieldView{
			Kind:     d.Kind(),
			Name:     d.Name(),
			Label:    d.Label(),
			Required: d.Required(),
			Help:     sanitizeHelp(d.Help()),
		}

		if available[d.Name()] {
			v.Example = d.Name()
			linked[d.Name()] = true
		}

		switch f := d.(type) {
		case field.File:
			v.Accept = f.Accept
		case field.Text:
			v.Value = f.Default
			v.Placeholder = f.Placeholder
			v.Multiline = f.Multiline
		case field.Number:
			v.Value = optionalNumber(f.Default)
			v.Min = optionalNumber(f.Min)
			v.Max = optionalNumber(f.Max)
			v.Step = optionalNumber(f.Step)
		case field.Select:
			v.Choices = f.Choices
			v.Value = f.Default
		case field.Checkbox:
			v.Checked = f.Default
		}

		views = append(views, v)
	}

	rest := make([]string, 0, len(examples))
	for _, name := range examples {
		if !linked[name] {
			rest = append(rest, name)
		}
	}

	return views, rest
}

func dataRows(data map[string]any) []dataRow {
	rows := make([]dataRow, 0, len(data))
	for k, v := range data {
		rows = append(rows, dataRow{Key: k, Value: fmt.Sprint(v)})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })

	return rows
}

// render executes a page into a buffer first so template errors still yield a clean 500.
func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer

	err := s.templates.ExecuteTemplate(&buf, name, data)
	if err != nil {
		s.log.Error("Error executing template", "template", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
