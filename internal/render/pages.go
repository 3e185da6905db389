// Package render produces the HTML pages and PDF documents served to
// clients.
package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Pages renders server-side HTML from embedded templates.
type Pages struct {
	t *template.Template
}

// NewPages parses the embedded templates.
func NewPages() (*Pages, error) {
	t, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return &Pages{t: t}, nil
}

// Render writes the named page with the given data.
func (p *Pages) Render(w io.Writer, page string, data any) error {
	if err := p.t.ExecuteTemplate(w, page+".html", data); err != nil {
		return fmt.Errorf("rendering %s: %w", page, err)
	}
	return nil
}
