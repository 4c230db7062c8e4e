package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	lru "github.com/hashicorp/golang-lru"
)

const renderCacheSize = 128

type renderKey struct {
	width   int
	content string
}

// MarkdownRenderer wraps glamour for rendering answers. Rendered output is
// cached per width.
type MarkdownRenderer struct {
	renderer *glamour.TermRenderer
	width    int
	cache    *lru.Cache
}

// NewMarkdownRenderer creates a renderer wrapping at width columns
func NewMarkdownRenderer(width int) (*MarkdownRenderer, error) {
	cache, err := lru.New(renderCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create render cache: %w", err)
	}
	m := &MarkdownRenderer{cache: cache}
	if err := m.SetWidth(width); err != nil {
		return nil, err
	}
	return m, nil
}

// SetWidth updates the wrap width
func (m *MarkdownRenderer) SetWidth(width int) error {
	if width <= 0 {
		return fmt.Errorf("width must be positive, got %d", width)
	}
	if width == m.width && m.renderer != nil {
		return nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	m.renderer = renderer
	m.width = width
	return nil
}

// Width returns the wrap width
func (m *MarkdownRenderer) Width() int {
	return m.width
}

// Render converts markdown to styled terminal output, falling back to the
// raw text when glamour fails
func (m *MarkdownRenderer) Render(content string) string {
	if content == "" {
		return ""
	}

	key := renderKey{width: m.width, content: content}
	if cached, ok := m.cache.Get(key); ok {
		return cached.(string)
	}

	rendered, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	rendered = strings.Trim(rendered, "\n")

	m.cache.Add(key, rendered)
	return rendered
}

// Cached reports how many renders are cached
func (m *MarkdownRenderer) Cached() int {
	return m.cache.Len()
}

// Clear drops all cached renders
func (m *MarkdownRenderer) Clear() {
	m.cache.Purge()
}
