// Package markdown renders model responses for the terminal.
package markdown

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog/log"
)

var (
	mu        sync.Mutex
	renderers = map[int]*glamour.TermRenderer{}
	plain     bool
)

// SetPlain disables styling; Render then returns its input unchanged.
func SetPlain(v bool) {
	mu.Lock()
	plain = v
	mu.Unlock()
}

// Render converts markdown to styled ANSI output wrapped at width. Renderers
// are built once per width. On any failure the raw text is returned.
func Render(md string, width int) string {
	if strings.TrimSpace(md) == "" {
		return md
	}
	if width < 20 {
		width = 20
	}
	r := renderer(width)
	if r == nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	// glamour pads with blank lines; trim for inline display.
	return strings.Trim(out, "\n")
}

func renderer(width int) *glamour.TermRenderer {
	mu.Lock()
	defer mu.Unlock()
	if plain {
		return nil
	}
	if r, ok := renderers[width]; ok {
		return r
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		log.Debug().Err(err).Msg("markdown renderer unavailable")
		r = nil
	}
	renderers[width] = r
	return r
}
