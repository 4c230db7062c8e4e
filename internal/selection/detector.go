// Package selection turns the user's current text selection into a validated
// context candidate for a question.
package selection

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/entrepeneur4lyf/bookchat/internal/events"
)

// Default length bounds, in characters, for a usable selection
const (
	DefaultMinLength = 10
	DefaultMaxLength = 2000

	// anchorOffset lifts the anchor above the selection
	anchorOffset = 10
)

// Signal is an input event that may have changed the selection
type Signal int

const (
	SignalSelectionChange Signal = iota
	SignalMouseUp
	SignalTouchEnd
)

func (s Signal) String() string {
	switch s {
	case SignalSelectionChange:
		return "selectionchange"
	case SignalMouseUp:
		return "mouseup"
	case SignalTouchEnd:
		return "touchend"
	default:
		return "unknown"
	}
}

// Rect is the bounding box of a selection
type Rect struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// Point is where an "ask about this" affordance is anchored
type Point struct {
	X float64
	Y float64
}

// Source provides the active selection
type Source interface {
	// Selection returns the selected text and its bounding box, if known
	Selection() (string, *Rect)
	// Collapse removes the selection
	Collapse()
}

// Selection is the derived view of the current selection
type Selection struct {
	Text     string
	IsValid  bool
	Position *Point

	HasSelection bool
	IsTooShort   bool
	IsTooLong    bool
}

// Detector recomputes the selection on every signal. It is safe for
// concurrent use.
type Detector struct {
	source       Source
	minLength    int
	maxLength    int
	enableMobile bool
	logger       *log.Logger
	broker       *events.Broker[Selection]

	mu      sync.Mutex
	current Selection
}

// Option configures a Detector
type Option func(*Detector)

// WithBounds sets the accepted selection length range
func WithBounds(minLength, maxLength int) Option {
	return func(d *Detector) {
		if minLength > 0 {
			d.minLength = minLength
		}
		if maxLength > 0 {
			d.maxLength = maxLength
		}
	}
}

// WithMobile controls whether touch signals are honoured
func WithMobile(enabled bool) Option {
	return func(d *Detector) { d.enableMobile = enabled }
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(d *Detector) { d.logger = l }
}

// NewDetector creates a detector over src with an empty selection
func NewDetector(src Source, opts ...Option) *Detector {
	d := &Detector{
		source:       src,
		minLength:    DefaultMinLength,
		maxLength:    DefaultMaxLength,
		enableMobile: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = log.Default().WithPrefix("selection")
	}
	d.broker = events.NewBrokerWithOptions[Selection](0, d.logger)
	return d
}

// Handle processes a signal and returns the resulting selection. Touch
// signals are ignored when mobile support is off.
func (d *Detector) Handle(sig Signal) Selection {
	if sig == SignalTouchEnd && !d.enableMobile {
		return d.Current()
	}

	text, rect := d.source.Selection()
	sel := d.evaluate(text, rect)

	d.mu.Lock()
	changed := !sameSelection(sel, d.current)
	d.current = sel
	d.mu.Unlock()

	if changed {
		d.logger.Debug("selection changed", "signal", sig, "valid", sel.IsValid, "length", utf8.RuneCountInString(sel.Text))
		d.broker.Publish(events.SelectionChanged, sel)
	}
	return sel
}

// evaluate derives a Selection from raw source output
func (d *Detector) evaluate(raw string, rect *Rect) Selection {
	text := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(text)

	switch {
	case n >= d.minLength && n <= d.maxLength:
		sel := Selection{Text: text, IsValid: true, HasSelection: true}
		if rect != nil {
			sel.Position = &Point{
				X: rect.Left + rect.Width/2,
				Y: rect.Top - anchorOffset,
			}
		}
		return sel
	case n > 0 && n < d.minLength:
		return Selection{Text: text, HasSelection: true, IsTooShort: true}
	default:
		return Selection{IsTooLong: n > d.maxLength}
	}
}

func sameSelection(a, b Selection) bool {
	if a.Text != b.Text || a.IsValid != b.IsValid || a.IsTooLong != b.IsTooLong {
		return false
	}
	if (a.Position == nil) != (b.Position == nil) {
		return false
	}
	return a.Position == nil || *a.Position == *b.Position
}

// Bounds returns the accepted selection length range
func (d *Detector) Bounds() (minLength, maxLength int) {
	return d.minLength, d.maxLength
}

// Current returns the last computed selection
func (d *Detector) Current() Selection {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// ClearSelection collapses the source selection and resets the state
func (d *Detector) ClearSelection() {
	d.source.Collapse()

	d.mu.Lock()
	changed := d.current.HasSelection || d.current.IsTooLong
	d.current = Selection{}
	d.mu.Unlock()

	if changed {
		d.broker.Publish(events.SelectionChanged, Selection{})
	}
}

// Subscribe streams selection changes until ctx is done or Close is called
func (d *Detector) Subscribe(ctx context.Context) <-chan events.Event[Selection] {
	return d.broker.Subscribe(ctx)
}

// Close ends all subscriptions
func (d *Detector) Close() {
	d.broker.Shutdown()
}
