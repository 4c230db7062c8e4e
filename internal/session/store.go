package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"

	"github.com/entrepeneur4lyf/bookchat/internal/events"
	"github.com/entrepeneur4lyf/bookchat/internal/storage"
)

// Defaults mirror the web widget
const (
	DefaultKey             = "chatbot_session"
	DefaultTimeout         = 2 * time.Hour
	DefaultMaxMessages     = 50
	DefaultWarningWindow   = 60 * time.Second
	DefaultCheckInterval   = 30 * time.Second
	DefaultArchiveDuration = 5 * time.Second

	nearLimitMargin       = 5
	defaultPersistTimeout = 5 * time.Second
)

// Store owns the current session. All methods are safe for concurrent use.
type Store struct {
	persister storage.Persister
	key       string
	clock     clock.Clock
	logger    *log.Logger

	broker     *events.Broker[State]
	ownsBroker bool

	timeout         time.Duration
	maxMessages     int
	warningWindow   time.Duration
	checkInterval   time.Duration
	archiveDuration time.Duration
	persistTimeout  time.Duration

	mu             sync.Mutex
	data           Data
	loaded         bool
	watching       bool
	closed         bool
	timeoutWarning bool
	archiveWarning bool
	archiveTimer   *clock.Timer
	archiveGen     uint64
	stop           chan struct{}
}

// Option configures a Store
type Option func(*Store)

// WithKey sets the storage key the session blob lives under
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithClock replaces the wall clock, mainly for tests
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithBroker publishes change events on an existing broker instead of a
// private one
func WithBroker(b *events.Broker[State]) Option {
	return func(s *Store) { s.broker = b }
}

// WithTimeout sets the idle period after which a session expires
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxMessages sets the history cap
func WithMaxMessages(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxMessages = n
		}
	}
}

// WithWarningWindow sets how long before expiry the timeout warning shows
func WithWarningWindow(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.warningWindow = d
		}
	}
}

// WithCheckInterval sets the timeout watch period
func WithCheckInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.checkInterval = d
		}
	}
}

// WithArchiveDuration sets how long the archive warning stays raised
func WithArchiveDuration(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.archiveDuration = d
		}
	}
}

// NewStore creates a store over persister. Nothing is read until Initialize.
func NewStore(persister storage.Persister, opts ...Option) *Store {
	s := &Store{
		persister:       persister,
		key:             DefaultKey,
		clock:           clock.New(),
		timeout:         DefaultTimeout,
		maxMessages:     DefaultMaxMessages,
		warningWindow:   DefaultWarningWindow,
		checkInterval:   DefaultCheckInterval,
		archiveDuration: DefaultArchiveDuration,
		persistTimeout:  defaultPersistTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Default().WithPrefix("session")
	}
	if s.broker == nil {
		s.broker = events.NewBrokerWithOptions[State](0, s.logger)
		s.ownsBroker = true
	}
	return s
}

// Initialize restores the persisted session, or starts a fresh one when the
// blob is missing, corrupt or expired, and starts the timeout watch. It never
// fails and repeated calls are no-ops.
func (s *Store) Initialize() {
	s.mu.Lock()
	if s.closed || s.watching {
		s.mu.Unlock()
		return
	}
	s.loadLocked()
	s.watching = true
	s.stop = make(chan struct{})
	go s.watch(s.clock.Ticker(s.checkInterval), s.stop)
	s.mu.Unlock()

	// a restored session may already be inside the warning window
	s.CheckTimeout()
}

// loadLocked populates s.data once
func (s *Store) loadLocked() {
	if s.loaded {
		return
	}
	s.loaded = true

	now := s.clock.Now()
	data, err := s.read()
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.logger.Debug("no persisted session")
	case err != nil:
		s.logger.Warn("failed to load session, starting fresh", "err", err)
	case now.Sub(time.UnixMilli(data.LastActivity)) > s.timeout:
		s.logger.Info("persisted session expired", "session", data.SessionID)
		s.remove()
	default:
		s.data = data
		if s.data.LastActivity < s.data.CreatedAt {
			s.data.LastActivity = s.data.CreatedAt
		}
		if over := len(s.data.Messages) - s.maxMessages; over > 0 {
			s.data.Messages = append([]Message(nil), s.data.Messages[over:]...)
		}
		s.logger.Debug("restored session", "session", s.data.SessionID, "messages", len(s.data.Messages))
		return
	}

	s.data = s.freshData(now)
	s.persistLocked()
}

func (s *Store) read() (Data, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()

	raw, err := s.persister.Load(ctx, s.key)
	if err != nil {
		return Data{}, err
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return Data{}, err
	}
	if data.SessionID == "" {
		return Data{}, errors.New("session blob has no session id")
	}
	return data, nil
}

func (s *Store) remove() {
	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()

	if err := s.persister.Remove(ctx, s.key); err != nil {
		s.logger.Warn("failed to remove expired session", "err", err)
	}
}

func (s *Store) persistLocked() {
	raw, err := json.Marshal(s.data)
	if err != nil {
		s.logger.Warn("failed to encode session", "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()

	if err := s.persister.Save(ctx, s.key, raw); err != nil {
		s.logger.Warn("failed to persist session", "err", err)
	}
}

func (s *Store) freshData(now time.Time) Data {
	ms := now.UnixMilli()
	return Data{
		SessionID:    newSessionID(now),
		Messages:     []Message{},
		CreatedAt:    ms,
		LastActivity: ms,
	}
}

// touchLocked moves last_activity to now, never below created_at, which
// also cancels a pending timeout warning
func (s *Store) touchLocked(now time.Time) {
	ms := now.UnixMilli()
	if ms < s.data.CreatedAt {
		ms = s.data.CreatedAt
	}
	s.data.LastActivity = ms
	s.timeoutWarning = false
}

// AddMessage appends a message, evicting the oldest entries beyond the cap,
// and persists the session. It returns the stored message.
func (s *Store) AddMessage(m NewMessage) Message {
	s.mu.Lock()
	s.loadLocked()

	now := s.clock.Now()
	msg := Message{
		ID:        newMessageID(now),
		Role:      m.Role,
		Content:   m.Content,
		Timestamp: now.UnixMilli(),
		Citations: m.Citations,
		MessageID: m.MessageID,
		Error:     m.Error,
	}

	messages := append(s.data.Messages, msg)
	evicted := false
	if over := len(messages) - s.maxMessages; over > 0 {
		messages = append([]Message(nil), messages[over:]...)
		evicted = true
	}
	s.data.Messages = messages
	s.touchLocked(now)

	if evicted {
		s.raiseArchiveWarningLocked()
	}
	s.persistLocked()
	state := s.stateLocked()
	s.mu.Unlock()

	s.publish(events.SessionMessageAdded, state)
	if evicted {
		s.publish(events.SessionWarning, state)
	}
	return msg
}

// raiseArchiveWarningLocked sets the archive warning and (re)arms its clear
// timer. The generation guards against a stale timer clearing a newer warning.
func (s *Store) raiseArchiveWarningLocked() {
	s.archiveWarning = true
	s.archiveGen++
	gen := s.archiveGen

	if s.archiveTimer != nil {
		s.archiveTimer.Stop()
	}
	s.archiveTimer = s.clock.AfterFunc(s.archiveDuration, func() {
		s.clearArchiveWarning(gen)
	})
}

func (s *Store) clearArchiveWarning(gen uint64) {
	s.mu.Lock()
	if gen != s.archiveGen || !s.archiveWarning {
		s.mu.Unlock()
		return
	}
	s.archiveWarning = false
	s.archiveTimer = nil
	state := s.stateLocked()
	s.mu.Unlock()

	s.publish(events.SessionWarning, state)
}

// ClearSession replaces the session with an empty one under a new id
func (s *Store) ClearSession() {
	s.mu.Lock()
	s.loaded = true
	s.clearLocked()
	state := s.stateLocked()
	s.mu.Unlock()

	s.publish(events.SessionCleared, state)
}

func (s *Store) clearLocked() {
	s.data = s.freshData(s.clock.Now())
	s.timeoutWarning = false
	s.archiveWarning = false
	s.archiveGen++
	if s.archiveTimer != nil {
		s.archiveTimer.Stop()
		s.archiveTimer = nil
	}
	s.persistLocked()
}

// UpdateActivity marks the session as active now
func (s *Store) UpdateActivity() {
	s.mu.Lock()
	s.loadLocked()
	s.touchLocked(s.clock.Now())
	s.persistLocked()
	state := s.stateLocked()
	s.mu.Unlock()

	s.publish(events.SessionActivity, state)
}

// CheckTimeout evaluates the idle timeout once: inside the warning window the
// timeout warning is raised, at or past expiry the session is cleared.
func (s *Store) CheckTimeout() {
	s.mu.Lock()
	if !s.loaded || s.closed {
		s.mu.Unlock()
		return
	}

	idle := s.clock.Now().Sub(time.UnixMilli(s.data.LastActivity))
	remaining := s.timeout - idle

	eventType := events.SessionWarning
	changed := false
	switch {
	case remaining <= 0:
		s.logger.Info("session timed out", "session", s.data.SessionID, "idle", idle)
		s.clearLocked()
		eventType = events.SessionCleared
		changed = true
	case remaining <= s.warningWindow:
		changed = !s.timeoutWarning
		s.timeoutWarning = true
	default:
		changed = s.timeoutWarning
		s.timeoutWarning = false
	}
	state := s.stateLocked()
	s.mu.Unlock()

	if changed {
		s.publish(eventType, state)
	}
}

func (s *Store) watch(ticker *clock.Ticker, stop <-chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.CheckTimeout()
		}
	}
}

// SessionID returns the current session id
func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	return s.data.SessionID
}

// Messages returns a copy of the history, oldest first
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	return append([]Message(nil), s.data.Messages...)
}

// Data returns a copy of the persisted blob
func (s *Store) Data() Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	d := s.data
	d.Messages = append([]Message(nil), s.data.Messages...)
	return d
}

// MessageCount returns the number of stored messages
func (s *Store) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	return len(s.data.Messages)
}

// IsNearLimit reports whether the history is within five messages of the cap
func (s *Store) IsNearLimit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	return s.nearLimitLocked()
}

func (s *Store) nearLimitLocked() bool {
	return len(s.data.Messages) >= s.maxMessages-nearLimitMargin
}

// TimeoutWarning reports whether the session is about to expire
func (s *Store) TimeoutWarning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeoutWarning
}

// ArchiveWarning reports whether old messages were recently evicted
func (s *Store) ArchiveWarning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.archiveWarning
}

// Snapshot returns the full read-only state
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	return s.stateLocked()
}

func (s *Store) stateLocked() State {
	return State{
		SessionID:      s.data.SessionID,
		Messages:       append([]Message(nil), s.data.Messages...),
		CreatedAt:      time.UnixMilli(s.data.CreatedAt),
		LastActivity:   time.UnixMilli(s.data.LastActivity),
		MessageCount:   len(s.data.Messages),
		IsNearLimit:    s.nearLimitLocked(),
		TimeoutWarning: s.timeoutWarning,
		ArchiveWarning: s.archiveWarning,
	}
}

// Subscribe streams change events until ctx is done or the store closes
func (s *Store) Subscribe(ctx context.Context, filters ...events.EventFilter) <-chan events.Event[State] {
	return s.broker.Subscribe(ctx, filters...)
}

func (s *Store) publish(t events.EventType, state State) {
	s.broker.Publish(t, state, events.WithSessionID(state.SessionID))
}

// Close stops the timers and persists the session one last time
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.archiveGen++
	if s.archiveTimer != nil {
		s.archiveTimer.Stop()
		s.archiveTimer = nil
	}
	if s.loaded {
		s.persistLocked()
	}
	s.mu.Unlock()

	if s.ownsBroker {
		s.broker.Shutdown()
	}
	return nil
}
