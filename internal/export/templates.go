package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

// SafeHTML is a template function that marks a string as safe HTML
func SafeHTML(s interface{}) template.HTML {
	switch v := s.(type) {
	case string:
		return template.HTML(v)
	case template.HTML:
		return v
	default:
		return template.HTML("")
	}
}

var canvasTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"safeHTML": SafeHTML,
	}
	canvasTemplate = template.Must(template.New("canvas").Funcs(funcMap).Parse(canvasTemplateHTML))
}

// TemplateData holds data for canvas template rendering
type TemplateData struct {
	Title         string
	ContentHTML   template.HTML
	Author        string
	UpdatedAt     time.Time
	WorkspaceName string
}

// RenderCanvasHTML renders the canvas template with provided data
func RenderCanvasHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := canvasTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const canvasTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #6b3fd4; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    pre { background: #f5f5f5; padding: 1rem; overflow-x: auto; }
    blockquote { border-left: 3px solid #6b3fd4; margin-left: 0; padding-left: 1rem; color: #444; }
    img { max-width: 100%; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.WorkspaceName}} | {{.Author}} | {{.UpdatedAt.Format "Jan 2, 2006"}}</div>
  <div>{{.ContentHTML | safeHTML}}</div>
</body>
</html>`
