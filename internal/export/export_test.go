package export

import (
	"html/template"
	"strings"
	"testing"
	"time"
)

func TestBlocksToHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected string
	}{
		{
			name:     "nil input",
			input:    nil,
			expected: "",
		},
		{
			name: "text block",
			input: map[string]interface{}{
				"blocks": []interface{}{
					map[string]interface{}{"type": "text", "text": "Hello world"},
				},
			},
			expected: "<p>Hello world</p>",
		},
		{
			name: "heading with level",
			input: map[string]interface{}{
				"blocks": []interface{}{
					map[string]interface{}{"type": "heading", "level": 2.0, "text": "Section Title"},
				},
			},
			expected: "<h2>Section Title</h2>",
		},
		{
			name: "list items",
			input: map[string]interface{}{
				"blocks": []interface{}{
					map[string]interface{}{
						"type":  "list",
						"items": []interface{}{"Item 1", "Item 2"},
					},
				},
			},
			expected: "<li>Item 1</li>",
		},
		{
			name: "code block escapes html",
			input: map[string]interface{}{
				"blocks": []interface{}{
					map[string]interface{}{"type": "code", "text": "if a < b {}"},
				},
			},
			expected: "<pre><code>if a &lt; b {}</code></pre>",
		},
		{
			name: "unknown type falls back to text",
			input: map[string]interface{}{
				"blocks": []interface{}{
					map[string]interface{}{"type": "widget-v9", "text": "still visible"},
				},
			},
			expected: "<p>still visible</p>",
		},
		{
			name: "image without url is skipped",
			input: map[string]interface{}{
				"blocks": []interface{}{
					map[string]interface{}{"type": "image", "alt": "broken"},
				},
			},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := strings.TrimSpace(BlocksToHTML(tt.input))
			if !strings.Contains(result, strings.TrimSpace(tt.expected)) {
				t.Errorf("BlocksToHTML() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"My Canvas v1.2", "My-Canvas-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "canvas"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRenderCanvasHTML(t *testing.T) {
	data := TemplateData{
		Title:         "Launch Funnel",
		ContentHTML:   template.HTML("<p>This is the content.</p>"),
		Author:        "Test Author",
		UpdatedAt:     time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		WorkspaceName: "Test Workspace",
	}

	html, err := RenderCanvasHTML(data)
	if err != nil {
		t.Fatalf("RenderCanvasHTML() error = %v", err)
	}

	if !strings.Contains(html, "Launch Funnel") {
		t.Error("HTML missing title")
	}
	if !strings.Contains(html, "Test Workspace") {
		t.Error("HTML missing workspace name")
	}
	if !strings.Contains(html, "Mar 14, 2026") {
		t.Error("HTML missing formatted date")
	}
	if strings.Contains(html, "&lt;p&gt;") {
		t.Error("HTML content was escaped, should be rendered as raw HTML")
	}
	if !strings.Contains(html, "<p>This is the content.</p>") {
		t.Error("HTML content should contain unescaped <p> tags")
	}
}
