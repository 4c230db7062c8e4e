// Package chat drives the chat panel: open state, the send flow against the
// backend, error surfacing, auto-hide on scroll and connectivity.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"

	"github.com/entrepeneur4lyf/bookchat/internal/api"
	"github.com/entrepeneur4lyf/bookchat/internal/events"
	"github.com/entrepeneur4lyf/bookchat/internal/session"
)

// User-facing error text
const (
	MsgEmptyQuestion   = "Please enter a question"
	MsgQuestionTooLong = "Question must be 2000 characters or less"
	MsgConnectionLost  = "Connection lost. Please check your internet and try again."
	MsgTimeout         = "Request timeout. The server is taking too long to respond."
	MsgGenericFailure  = "Failed to get response. Please try again."

	// ErrorPrefix marks transcript entries that record a failure
	ErrorPrefix = "❌ "

	DefaultScrollHideDelay = 500 * time.Millisecond
)

// ErrBusy is returned by SendMessage while another send is in flight
var ErrBusy = errors.New("chat: a message is already being sent")

// SessionStore is the part of the session store the controller uses
type SessionStore interface {
	SessionID() string
	Messages() []session.Message
	AddMessage(m session.NewMessage) session.Message
	UpdateActivity()
	ClearSession()
	Snapshot() session.State
}

// QueryClient is the part of the backend client the controller uses
type QueryClient interface {
	Query(ctx context.Context, req api.QueryRequest) (*api.QueryResponse, error)
	CheckConnection(ctx context.Context) bool
}

// State is an immutable view of the controller and its session
type State struct {
	IsOpen         bool
	IsLoading      bool
	Error          string
	IsOffline      bool
	SessionID      string
	Messages       []session.Message
	MessageCount   int
	IsNearLimit    bool
	TimeoutWarning bool
	ArchiveWarning bool
}

// Controller orchestrates a SessionStore and a QueryClient. It is safe for
// concurrent use.
type Controller struct {
	store  SessionStore
	client QueryClient
	clock  clock.Clock
	logger *log.Logger

	broker     *events.Broker[State]
	ownsBroker bool

	mu              sync.Mutex
	open            bool
	sending         bool
	errMsg          string
	offline         bool
	autoHide        bool
	scrollHideDelay time.Duration
	scrollTimer     *clock.Timer
	scrollGen       uint64
	stopProbe       context.CancelFunc
	disposed        bool
}

// Option configures a Controller
type Option func(*Controller)

// WithClock replaces the wall clock
func WithClock(c clock.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(ctl *Controller) { ctl.logger = l }
}

// WithBroker publishes state changes on an existing broker
func WithBroker(b *events.Broker[State]) Option {
	return func(ctl *Controller) { ctl.broker = b }
}

// WithAutoHide configures closing the panel after scrolling settles
func WithAutoHide(enabled bool, delay time.Duration) Option {
	return func(ctl *Controller) {
		ctl.autoHide = enabled
		if delay > 0 {
			ctl.scrollHideDelay = delay
		}
	}
}

// NewController creates a closed, idle controller
func NewController(store SessionStore, client QueryClient, opts ...Option) *Controller {
	c := &Controller{
		store:           store,
		client:          client,
		clock:           clock.New(),
		autoHide:        true,
		scrollHideDelay: DefaultScrollHideDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.Default().WithPrefix("chat")
	}
	if c.broker == nil {
		c.broker = events.NewBrokerWithOptions[State](0, c.logger)
		c.ownsBroker = true
	}
	return c
}

// Open shows the panel and clears any error
func (c *Controller) Open() {
	c.mu.Lock()
	c.open = true
	c.errMsg = ""
	c.mu.Unlock()
	c.publish()
}

// Close hides the panel
func (c *Controller) Close() {
	c.mu.Lock()
	c.open = false
	c.stopScrollTimerLocked()
	c.mu.Unlock()
	c.publish()
}

// Toggle flips the panel and clears any error
func (c *Controller) Toggle() {
	c.mu.Lock()
	c.open = !c.open
	c.errMsg = ""
	if !c.open {
		c.stopScrollTimerLocked()
	}
	c.mu.Unlock()
	c.publish()
}

// Escape closes the panel when it is open
func (c *Controller) Escape() {
	c.mu.Lock()
	wasOpen := c.open
	c.mu.Unlock()

	if wasOpen {
		c.Close()
	}
}

// IsOpen reports whether the panel is shown
func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// SendMessage runs one question through the backend. The user message is
// recorded before the request is made; the outcome, answer or failure, is
// recorded as an assistant message. A failure is also returned to the caller.
// While a send is in flight further calls return ErrBusy and change nothing.
func (c *Controller) SendMessage(ctx context.Context, question, selection string) error {
	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return ErrBusy
	}
	if msg := validateQuestion(question); msg != "" {
		c.errMsg = msg
		c.mu.Unlock()
		c.publish()
		return &api.Error{Kind: api.KindValidation, Message: msg}
	}

	c.errMsg = ""
	c.offline = false
	c.sending = true
	c.mu.Unlock()

	history := buildHistory(c.store.Messages())
	c.store.AddMessage(session.NewMessage{Role: session.RoleUser, Content: question})
	c.publish()

	resp, err := c.client.Query(ctx, api.QueryRequest{
		Question:            question,
		SessionID:           c.store.SessionID(),
		Context:             selection,
		ConversationHistory: history,
	})

	if err == nil {
		c.store.AddMessage(session.NewMessage{
			Role:      session.RoleAssistant,
			Content:   resp.Answer,
			Citations: toSessionCitations(resp.Citations),
			MessageID: resp.MessageID,
		})
		c.store.UpdateActivity()

		c.mu.Lock()
		c.sending = false
		c.mu.Unlock()
		c.publish()
		return nil
	}

	text, offline := describeFailure(err)
	kind := string(api.KindOf(err))
	if kind == "" {
		kind = "unknown"
	}
	c.logger.Warn("query failed", "kind", kind, "err", err)

	c.store.AddMessage(session.NewMessage{
		Role:    session.RoleAssistant,
		Content: ErrorPrefix + text,
		Error:   &session.MessageError{Kind: kind},
	})

	c.mu.Lock()
	c.errMsg = text
	if offline {
		c.offline = true
	}
	c.sending = false
	c.mu.Unlock()
	c.publish()
	return err
}

func validateQuestion(question string) string {
	if strings.TrimSpace(question) == "" {
		return MsgEmptyQuestion
	}
	if utf8.RuneCountInString(question) > api.MaxQuestionLength {
		return MsgQuestionTooLong
	}
	return ""
}

// describeFailure maps a query error to the text shown to the user and
// whether it means the client is offline
func describeFailure(err error) (string, bool) {
	switch api.KindOf(err) {
	case api.KindNetwork:
		return MsgConnectionLost, true
	case api.KindTimeout:
		return MsgTimeout, false
	}
	if msg := api.Message(err); msg != "" {
		return msg, false
	}
	if err != nil && err.Error() != "" {
		return err.Error(), false
	}
	return MsgGenericFailure, false
}

func toSessionCitations(in []api.Citation) []session.Citation {
	if len(in) == 0 {
		return nil
	}
	out := make([]session.Citation, len(in))
	for i, c := range in {
		out[i] = session.Citation{
			Section:   c.Section,
			URL:       c.URL,
			Score:     c.Score,
			ModuleID:  c.ModuleID,
			ChapterID: c.ChapterID,
		}
	}
	return out
}

// IsSending reports whether a send is in flight
func (c *Controller) IsSending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// Scroll records a scroll gesture. While the panel is open and auto-hide is
// on, the panel closes once no further scroll arrives within the delay.
func (c *Controller) Scroll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.autoHide || !c.open || c.disposed {
		return
	}
	c.stopScrollTimerLocked()
	gen := c.scrollGen
	c.scrollTimer = c.clock.AfterFunc(c.scrollHideDelay, func() {
		c.hideAfterScroll(gen)
	})
}

func (c *Controller) hideAfterScroll(gen uint64) {
	c.mu.Lock()
	if gen != c.scrollGen || !c.open {
		c.mu.Unlock()
		return
	}
	c.open = false
	c.scrollTimer = nil
	c.mu.Unlock()

	c.logger.Debug("auto-hiding after scroll")
	c.publish()
}

func (c *Controller) stopScrollTimerLocked() {
	c.scrollGen++
	if c.scrollTimer != nil {
		c.scrollTimer.Stop()
		c.scrollTimer = nil
	}
}

// SetAutoHide changes the auto-hide behaviour at runtime
func (c *Controller) SetAutoHide(enabled bool, delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.autoHide = enabled
	if delay > 0 {
		c.scrollHideDelay = delay
	}
	if !enabled {
		c.stopScrollTimerLocked()
	}
}

// SetOnline records a connectivity change
func (c *Controller) SetOnline(online bool) {
	c.mu.Lock()
	changed := c.offline == online
	c.offline = !online
	c.mu.Unlock()

	if changed {
		c.publish()
	}
}

// WatchConnectivity probes the backend every interval until ctx is done or
// the controller is disposed. A previous watch is replaced.
func (c *Controller) WatchConnectivity(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		cancel()
		return
	}
	if c.stopProbe != nil {
		c.stopProbe()
	}
	c.stopProbe = cancel
	c.mu.Unlock()

	ticker := c.clock.Ticker(interval)
	go func() {
		defer ticker.Stop()
		c.SetOnline(c.client.CheckConnection(ctx))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				online := c.client.CheckConnection(ctx)
				if ctx.Err() != nil {
					return
				}
				c.SetOnline(online)
			}
		}
	}()
}

// ClearChat starts a new session and clears any error
func (c *Controller) ClearChat() {
	c.store.ClearSession()

	c.mu.Lock()
	c.errMsg = ""
	c.mu.Unlock()
	c.publish()
}

// LastAnswer returns the newest successful assistant message
func (c *Controller) LastAnswer() (session.Message, bool) {
	msgs := c.store.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == session.RoleAssistant && !msgs[i].IsError() {
			return msgs[i], true
		}
	}
	return session.Message{}, false
}

// Snapshot returns the current state
func (c *Controller) Snapshot() State {
	ss := c.store.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		IsOpen:         c.open,
		IsLoading:      c.sending,
		Error:          c.errMsg,
		IsOffline:      c.offline,
		SessionID:      ss.SessionID,
		Messages:       ss.Messages,
		MessageCount:   ss.MessageCount,
		IsNearLimit:    ss.IsNearLimit,
		TimeoutWarning: ss.TimeoutWarning,
		ArchiveWarning: ss.ArchiveWarning,
	}
}

// Subscribe streams state changes until ctx is done or the controller is
// disposed
func (c *Controller) Subscribe(ctx context.Context) <-chan events.Event[State] {
	return c.broker.Subscribe(ctx)
}

func (c *Controller) publish() {
	state := c.Snapshot()
	c.broker.Publish(events.ChatStateChanged, state, events.WithSessionID(state.SessionID))
}

// Dispose stops timers and the connectivity probe
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.stopScrollTimerLocked()
	if c.stopProbe != nil {
		c.stopProbe()
		c.stopProbe = nil
	}
	c.mu.Unlock()

	if c.ownsBroker {
		c.broker.Shutdown()
	}
}
