package render

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// TerminalRenderer prints segments for a TTY: prose through glamour, code in a
// bordered lipgloss box labeled with its hint.
type TerminalRenderer struct {
	prose *glamour.TermRenderer
	code  lipgloss.Style
	label lipgloss.Style
}

// NewTerminalRenderer picks a glamour style from the terminal background.
// Pass style "notty" for plain output.
func NewTerminalRenderer(style string, width int) (*TerminalRenderer, error) {
	if width <= 0 {
		width = 100
	}
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	tr, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, err
	}
	return &TerminalRenderer{
		prose: tr,
		code: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1),
		label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Italic(true),
	}, nil
}

// Render returns the printable form of segments. Prose that glamour rejects is
// printed as-is.
func (r *TerminalRenderer) Render(segments []Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		if seg.IsBlank() {
			continue
		}
		switch seg.Kind {
		case KindCode:
			b.WriteString(r.label.Render(seg.Hint))
			b.WriteString("\n")
			b.WriteString(r.code.Render(seg.Text))
			b.WriteString("\n")
		default:
			out, err := r.prose.Render(seg.Text)
			if err != nil {
				out = seg.Text + "\n"
			}
			b.WriteString(out)
		}
	}
	return b.String()
}
