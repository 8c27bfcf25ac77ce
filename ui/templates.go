package ui

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"biomark/domain/core"
	"biomark/internal/report"
)

var funcMap = template.FuncMap{
	"pct":   report.Percent,
	"mul":   func(a, b float64) float64 { return a * b },
	"add":   func(a, b int) int { return a + b },
	"upper": strings.ToUpper,
	"when":  func(t core.Timestamp) string { return t.Display() },
	"kb":    func(n int64) string { return fmt.Sprintf("%.1f KB", float64(n)/1024) },
	"ptrFloat": func(p *float64) string {
		if p == nil {
			return ""
		}
		return fmt.Sprintf("%g", *p)
	},
	"selected": func(current, option string) template.HTMLAttr {
		if current == option {
			return "selected"
		}
		return ""
	},
}

func parseTemplates() (*template.Template, error) {
	templates, err := template.New("").Funcs(funcMap).ParseFS(embeddedFiles, "templates/*.html", "templates/fragments/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return templates, nil
}

// renderAbout converts the embedded model notes from markdown to HTML
func renderAbout() (template.HTML, error) {
	md, err := embeddedFiles.ReadFile("content/about.md")
	if err != nil {
		return "", fmt.Errorf("failed to read about page: %w", err)
	}
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank})
	return template.HTML(markdown.ToHTML(md, p, renderer)), nil
}

// renderTemplate renders into a buffer first so a template error never
// leaves a half-written page
func (s *Server) renderTemplate(c *gin.Context, status int, name string, data interface{}) error {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
	return nil
}
