package render

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/net/html"
)

// HTMLRenderer turns segments into page markup. Prose is treated as Markdown;
// raw HTML inside prose is not passed through.
type HTMLRenderer struct {
	md goldmark.Markdown
}

// NewHTMLRenderer builds a renderer with GitHub-flavored Markdown for prose.
func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
	}
}

// Render writes segments in order. Blank prose segments are skipped.
func (r *HTMLRenderer) Render(segments []Segment) (template.HTML, error) {
	var buf bytes.Buffer
	for _, seg := range segments {
		switch seg.Kind {
		case KindCode:
			hint := seg.Hint
			if hint == "" {
				hint = DefaultHint
			}
			fmt.Fprintf(&buf, `<pre class="code-block"><code class="language-%s">%s</code></pre>`,
				html.EscapeString(hint), html.EscapeString(seg.Text))
			buf.WriteByte('\n')
		default:
			if seg.IsBlank() {
				continue
			}
			if err := r.md.Convert([]byte(seg.Text), &buf); err != nil {
				return "", fmt.Errorf("render: markdown: %w", err)
			}
		}
	}
	// Code is escaped above and goldmark escapes raw HTML in prose.
	return template.HTML(buf.String()), nil
}

// RenderText splits and renders in one step, falling back to escaped text.
func (r *HTMLRenderer) RenderText(lexer Lexer, text string) template.HTML {
	out, err := r.Render(lexer.Split(text))
	if err != nil {
		return template.HTML("<p>" + html.EscapeString(text) + "</p>")
	}
	return out
}
