package web

import (
	"embed"
	"html/template"
	"io"

	"livepreview/internal/models"

	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html
var templateFS embed.FS

// PageData is the view model shared by every page.
type PageData struct {
	Title   string
	Refresh int // seconds; zero disables auto-refresh
	ID      string
	Preview *models.Preview
}

// TemplateRenderer is a custom html/template renderer for Echo framework
type TemplateRenderer struct {
	Templates map[string]*template.Template
}

// NewRenderer parses the embedded pages, each wrapped in layout.html.
func NewRenderer() (*TemplateRenderer, error) {
	pages := []string{"preview.html", "not_found.html"}
	r := &TemplateRenderer{Templates: make(map[string]*template.Template, len(pages))}
	for _, page := range pages {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, err
		}
		r.Templates[page] = t
	}
	return r, nil
}

// Render renders a template document
func (t *TemplateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	tmpl, ok := t.Templates[name]
	if !ok {
		return echo.NewHTTPError(500, "template "+name+" not found")
	}
	if tmpl.Lookup("layout.html") != nil {
		return tmpl.ExecuteTemplate(w, "layout.html", data)
	}
	return tmpl.Execute(w, data)
}
