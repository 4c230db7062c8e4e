package selection

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrepeneur4lyf/bookchat/internal/events"
)

func newTestDetector(t *testing.T, src Source, opts ...Option) *Detector {
	t.Helper()
	d := NewDetector(src, append([]Option{WithLogger(log.New(io.Discard))}, opts...)...)
	t.Cleanup(d.Close)
	return d
}

func TestDetectorValidSelection(t *testing.T) {
	src := NewStaticSource("")
	src.Set("  Embodied intelligence  ", &Rect{Left: 100, Top: 200, Width: 80, Height: 16})
	d := newTestDetector(t, src)

	sel := d.Handle(SignalMouseUp)
	assert.Equal(t, "Embodied intelligence", sel.Text)
	assert.True(t, sel.IsValid)
	assert.True(t, sel.HasSelection)
	assert.False(t, sel.IsTooShort)
	assert.False(t, sel.IsTooLong)
	require.NotNil(t, sel.Position)
	assert.Equal(t, Point{X: 140, Y: 190}, *sel.Position)
	assert.Equal(t, sel, d.Current())
}

func TestDetectorValidWithoutRect(t *testing.T) {
	d := newTestDetector(t, NewStaticSource("fifteen chars!!"))

	sel := d.Handle(SignalSelectionChange)
	assert.True(t, sel.IsValid)
	assert.Nil(t, sel.Position)
}

func TestDetectorTooShort(t *testing.T) {
	src := NewStaticSource("")
	src.Set("short", &Rect{Left: 1, Top: 1, Width: 1})
	d := newTestDetector(t, src)

	sel := d.Handle(SignalMouseUp)
	assert.Equal(t, "short", sel.Text)
	assert.False(t, sel.IsValid)
	assert.True(t, sel.IsTooShort)
	assert.True(t, sel.HasSelection)
	assert.Nil(t, sel.Position)
}

func TestDetectorTooLong(t *testing.T) {
	d := newTestDetector(t, NewStaticSource(strings.Repeat("x", 2001)))

	sel := d.Handle(SignalSelectionChange)
	assert.Empty(t, sel.Text)
	assert.False(t, sel.IsValid)
	assert.False(t, sel.HasSelection)
	assert.True(t, sel.IsTooLong)
	assert.Nil(t, sel.Position)
}

func TestDetectorBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		valid bool
	}{
		{"nine", strings.Repeat("a", 9), false},
		{"ten", strings.Repeat("a", 10), true},
		{"max", strings.Repeat("a", 2000), true},
		{"runes", strings.Repeat("é", 10), true},
		{"whitespace only", "     \n  ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDetector(t, NewStaticSource(tt.text))
			assert.Equal(t, tt.valid, d.Handle(SignalSelectionChange).IsValid)
		})
	}
}

func TestDetectorRecomputesEverySignal(t *testing.T) {
	src := NewStaticSource("a perfectly fine selection")
	d := newTestDetector(t, src)
	require.True(t, d.Handle(SignalSelectionChange).IsValid)

	src.Set("tiny", nil)
	sel := d.Handle(SignalMouseUp)
	assert.False(t, sel.IsValid)
	assert.Equal(t, "tiny", sel.Text)

	src.Set("", nil)
	assert.Equal(t, Selection{}, d.Handle(SignalSelectionChange))
}

func TestDetectorMobileSignals(t *testing.T) {
	src := NewStaticSource("a perfectly fine selection")

	off := newTestDetector(t, src, WithMobile(false))
	assert.False(t, off.Handle(SignalTouchEnd).IsValid)

	on := newTestDetector(t, src)
	assert.True(t, on.Handle(SignalTouchEnd).IsValid)
}

func TestDetectorCustomBounds(t *testing.T) {
	d := newTestDetector(t, NewStaticSource("abcdef"), WithBounds(3, 5))
	assert.True(t, d.Handle(SignalSelectionChange).IsTooLong)

	minLength, maxLength := d.Bounds()
	assert.Equal(t, 3, minLength)
	assert.Equal(t, 5, maxLength)

	minLength, maxLength = newTestDetector(t, NewStaticSource("")).Bounds()
	assert.Equal(t, DefaultMinLength, minLength)
	assert.Equal(t, DefaultMaxLength, maxLength)
}

func TestClearSelection(t *testing.T) {
	src := NewStaticSource("a perfectly fine selection")
	d := newTestDetector(t, src)
	d.Handle(SignalSelectionChange)

	d.ClearSelection()
	assert.Equal(t, Selection{}, d.Current())

	text, _ := src.Selection()
	assert.Empty(t, text)
	assert.Equal(t, Selection{}, d.Handle(SignalSelectionChange))
}

func TestDetectorPublishesChanges(t *testing.T) {
	src := NewStaticSource("a perfectly fine selection")
	d := newTestDetector(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := d.Subscribe(ctx)

	d.Handle(SignalSelectionChange)
	d.Handle(SignalMouseUp) // unchanged, no event
	d.ClearSelection()

	ev := <-ch
	assert.Equal(t, events.SelectionChanged, ev.Type)
	assert.True(t, ev.Payload.IsValid)

	ev = <-ch
	assert.False(t, ev.Payload.HasSelection)

	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %+v", extra)
	default:
	}
}

func TestClipboardSource(t *testing.T) {
	contents := "copied from chapter three"
	var readErr error
	src := newClipboardSource(func() (string, error) { return contents, readErr }, log.New(io.Discard))

	text, rect := src.Selection()
	assert.Equal(t, "copied from chapter three", text)
	assert.Nil(t, rect)

	src.Collapse()
	text, _ = src.Selection()
	assert.Empty(t, text, "collapsed contents stay hidden")

	contents = "something new entirely"
	text, _ = src.Selection()
	assert.Equal(t, "something new entirely", text)

	readErr = errors.New("no clipboard")
	text, _ = src.Selection()
	assert.Empty(t, text)
}

func TestDetectorOverClipboard(t *testing.T) {
	src := newClipboardSource(func() (string, error) { return "Physical AI combines perception and action", nil }, log.New(io.Discard))
	d := newTestDetector(t, src)

	sel := d.Handle(SignalSelectionChange)
	assert.True(t, sel.IsValid)
	assert.Nil(t, sel.Position)

	d.ClearSelection()
	assert.False(t, d.Handle(SignalSelectionChange).HasSelection)
}
