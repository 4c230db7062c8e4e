package selection

import (
	"sync"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
)

// StaticSource holds a selection set programmatically
type StaticSource struct {
	mu   sync.Mutex
	text string
	rect *Rect
}

// NewStaticSource creates a source holding text with no bounding box
func NewStaticSource(text string) *StaticSource {
	return &StaticSource{text: text}
}

// Set replaces the selection
func (s *StaticSource) Set(text string, rect *Rect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
	if rect != nil {
		r := *rect
		rect = &r
	}
	s.rect = rect
}

func (s *StaticSource) Selection() (string, *Rect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rect == nil {
		return s.text, nil
	}
	r := *s.rect
	return s.text, &r
}

func (s *StaticSource) Collapse() {
	s.Set("", nil)
}

// ClipboardSource treats the system clipboard as the selection, the closest
// terminal analogue of highlighting a passage. Collapsing does not touch the
// clipboard; it hides the current contents until they change.
type ClipboardSource struct {
	read   func() (string, error)
	logger *log.Logger

	mu        sync.Mutex
	collapsed string
	hidden    bool
}

// NewClipboardSource creates a source over the system clipboard
func NewClipboardSource(logger *log.Logger) *ClipboardSource {
	return newClipboardSource(clipboard.ReadAll, logger)
}

func newClipboardSource(read func() (string, error), logger *log.Logger) *ClipboardSource {
	if logger == nil {
		logger = log.Default().WithPrefix("clipboard")
	}
	return &ClipboardSource{read: read, logger: logger}
}

// Available reports whether the platform has a usable clipboard
func (c *ClipboardSource) Available() bool {
	return !clipboard.Unsupported
}

func (c *ClipboardSource) Selection() (string, *Rect) {
	text, err := c.read()
	if err != nil {
		c.logger.Debug("clipboard read failed", "err", err)
		return "", nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hidden {
		if text == c.collapsed {
			return "", nil
		}
		c.hidden = false
	}
	return text, nil
}

func (c *ClipboardSource) Collapse() {
	text, err := c.read()
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.collapsed = text
	c.hidden = true
}
