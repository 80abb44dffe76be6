// Package render draws the grouped activity feed in a terminal.
package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"example.com/closet/internal/feed"
)

var iconGlyphs = map[string]string{
	"shirt-outline":      "👕",
	"flame-outline":      "🔥",
	"add-circle-outline": "➕",
	"trash-outline":      "🗑",
}

// Options controls colors and icons.
type Options struct {
	Color bool
	Icons bool
}

// Renderer writes feed groups as styled text.
type Renderer struct {
	opts   Options
	header lipgloss.Style
	muted  lipgloss.Style
	text   lipgloss.Style
}

// New constructs a Renderer.
func New(opts Options) *Renderer {
	r := &Renderer{
		opts:   opts,
		header: lipgloss.NewStyle().Bold(true).MarginTop(1),
		muted:  lipgloss.NewStyle(),
		text:   lipgloss.NewStyle(),
	}
	if opts.Color {
		r.header = r.header.Foreground(lipgloss.Color("#F0507B"))
		r.muted = r.muted.Foreground(lipgloss.Color("#888888"))
	}
	return r
}

// Feed writes result to w. Times are shown in loc.
func (r *Renderer) Feed(w io.Writer, result feed.Result, loc *time.Location) error {
	var b strings.Builder
	if len(result.Groups) == 0 {
		b.WriteString(r.muted.Render("No activity yet."))
		b.WriteString("\n")
	}
	for _, group := range result.Groups {
		b.WriteString(r.header.Render(group.Label))
		b.WriteString("\n")
		for _, record := range group.Items {
			b.WriteString(r.item(record, loc))
			b.WriteString("\n")
		}
	}
	if n := len(result.Skipped); n > 0 {
		noun := "records"
		if n == 1 {
			noun = "record"
		}
		b.WriteString("\n")
		b.WriteString(r.muted.Render(fmt.Sprintf("%d %s skipped: %s", n, noun, strings.Join(result.SkippedIDs(), ", "))))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Renderer) item(record feed.Record, loc *time.Location) string {
	p := feed.PresentationFor(record.Kind)
	clock := ""
	if ts, err := record.Time(loc); err == nil {
		clock = feed.FormatTime(ts.In(loc))
	}

	parts := []string{"  "}
	if r.opts.Icons {
		bubble := lipgloss.NewStyle().Padding(0, 1)
		if r.opts.Color {
			bubble = bubble.Background(lipgloss.Color(p.Background)).Foreground(lipgloss.Color(p.Color))
		}
		parts = append(parts, bubble.Render(glyph(p.Icon)), " ")
	}
	parts = append(parts, r.text.Render(record.Description))
	if clock != "" {
		parts = append(parts, "  ", r.muted.Render(clock))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func glyph(icon string) string {
	if g, ok := iconGlyphs[icon]; ok {
		return g
	}
	return "•"
}
