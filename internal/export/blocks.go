package export

import (
	"fmt"
	"html"
	"strings"
)

// BlocksToHTML converts a canvas block document to HTML. The document is a
// map with a "blocks" array; each block carries a "type" plus type-specific
// fields. Unknown block types fall back to their text, so a newer editor
// never breaks export.
func BlocksToHTML(doc interface{}) string {
	if doc == nil {
		return ""
	}

	root, ok := doc.(map[string]interface{})
	if !ok {
		return ""
	}

	blocks, ok := root["blocks"].([]interface{})
	if !ok {
		return ""
	}

	var result strings.Builder
	for _, item := range blocks {
		if block, ok := item.(map[string]interface{}); ok {
			result.WriteString(renderBlock(block))
		}
	}
	return result.String()
}

func renderBlock(block map[string]interface{}) string {
	blockType, _ := block["type"].(string)
	text, _ := block["text"].(string)

	switch blockType {
	case "heading":
		level := 1
		if lvl, ok := block["level"].(float64); ok && lvl >= 1 && lvl <= 6 {
			level = int(lvl)
		}
		return fmt.Sprintf("<h%d>%s</h%d>\n", level, html.EscapeString(text), level)
	case "text", "paragraph":
		return fmt.Sprintf("<p>%s</p>\n", html.EscapeString(text))
	case "list":
		items, _ := block["items"].([]interface{})
		var list strings.Builder
		list.WriteString("<ul>\n")
		for _, it := range items {
			if s, ok := it.(string); ok {
				list.WriteString(fmt.Sprintf("<li>%s</li>\n", html.EscapeString(s)))
			}
		}
		list.WriteString("</ul>\n")
		return list.String()
	case "code":
		return fmt.Sprintf("<pre><code>%s</code></pre>\n", html.EscapeString(text))
	case "quote":
		return fmt.Sprintf("<blockquote>%s</blockquote>\n", html.EscapeString(text))
	case "image":
		src, _ := block["url"].(string)
		alt, _ := block["alt"].(string)
		if src == "" {
			return ""
		}
		return fmt.Sprintf(`<img src="%s" alt="%s">`+"\n", html.EscapeString(src), html.EscapeString(alt))
	case "divider":
		return "<hr>\n"
	default:
		if text == "" {
			return ""
		}
		return fmt.Sprintf("<p>%s</p>\n", html.EscapeString(text))
	}
}
