// Package tui is the terminal front end of the textbook assistant.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/entrepeneur4lyf/bookchat/internal/api"
	"github.com/entrepeneur4lyf/bookchat/internal/chat"
	"github.com/entrepeneur4lyf/bookchat/internal/citation"
	"github.com/entrepeneur4lyf/bookchat/internal/config"
	"github.com/entrepeneur4lyf/bookchat/internal/events"
	"github.com/entrepeneur4lyf/bookchat/internal/selection"
	"github.com/entrepeneur4lyf/bookchat/internal/session"
)

// Backend is the part of the API client used directly by the view
type Backend interface {
	ContentStatus(ctx context.Context) api.ContentStatus
	SubmitFeedback(ctx context.Context, req api.FeedbackRequest) (*api.FeedbackResponse, error)
	ReportIssue(ctx context.Context, req api.ReportIssueRequest) (*api.ReportIssueResponse, error)
}

// SessionEvents streams session state changes
type SessionEvents interface {
	Subscribe(ctx context.Context, filters ...events.EventFilter) <-chan events.Event[session.State]
}

// Options wires the view to the rest of the application
type Options struct {
	Controller *chat.Controller
	Session    SessionEvents
	Backend    Backend
	Detector   *selection.Detector
	// Previewer is optional; without it citation previews are disabled
	Previewer *citation.Previewer
	// State and StatePath persist the panel state between runs
	State       *config.State
	StatePath   string
	MaxMessages int
	// Context is attached to the first question
	Context string
	Logger  *log.Logger
}

type keyMap struct {
	Quit     key.Binding
	Toggle   key.Binding
	Escape   key.Binding
	Send     key.Binding
	Clear    key.Binding
	Select   key.Binding
	Up       key.Binding
	Down     key.Binding
	Report   key.Binding
	Preview  key.Binding
	NextType key.Binding
	PageUp   key.Binding
	PageDown key.Binding
}

var keys = keyMap{
	Quit:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	Toggle:   key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("ctrl+o", "show/hide chat")),
	Escape:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close")),
	Send:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
	Clear:    key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "new chat")),
	Select:   key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "ask about copied text")),
	Up:       key.NewBinding(key.WithKeys("ctrl+u"), key.WithHelp("ctrl+u", "helpful")),
	Down:     key.NewBinding(key.WithKeys("ctrl+d"), key.WithHelp("ctrl+d", "not helpful")),
	Report:   key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "report issue")),
	Preview:  key.NewBinding(key.WithKeys("ctrl+p"), key.WithHelp("ctrl+p", "preview source")),
	NextType: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "issue type")),
	PageUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
	PageDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdown", "scroll down")),
}

// Messages produced by commands
type (
	chatChangedMsg    struct{}
	sessionChangedMsg struct{}
	sendDoneMsg       struct {
		question string
		err      error
	}
	contentStatusMsg api.ContentStatus
	noticeMsg        struct {
		text  string
		isErr bool
	}
	previewMsg struct {
		preview *citation.Preview
		err     error
	}
)

// Model is the bubbletea model of the chat view
type Model struct {
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc
	logger *log.Logger

	chatEvents    <-chan events.Event[chat.State]
	sessionEvents <-chan events.Event[session.State]

	theme    Theme
	md       *MarkdownRenderer
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	width  int
	height int
	ready  bool

	state       chat.State
	contextText string
	notice      string
	noticeIsErr bool
	content     *api.ContentStatus

	reporting  bool
	reportType int
	draft      string

	preview *citation.Preview
}

// New creates the chat view. Cancel ctx or quit the program to stop its
// background listeners.
func New(ctx context.Context, opts Options) (*Model, error) {
	if opts.Controller == nil || opts.Backend == nil || opts.Detector == nil {
		return nil, errors.New("tui: controller, backend and detector are required")
	}
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = session.DefaultMaxMessages
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("tui")
	}

	md, err := NewMarkdownRenderer(76)
	if err != nil {
		return nil, err
	}

	ta := textarea.New()
	ta.Placeholder = "Ask about the textbook... (enter to send, alt+enter for a new line)"
	ta.CharLimit = api.MaxQuestionLength
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline.SetKeys("alt+enter")
	ta.Focus()

	vp := viewport.New(80, 10)
	vp.KeyMap = viewport.KeyMap{
		PageUp:   keys.PageUp,
		PageDown: keys.PageDown,
	}

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	ctx, cancel := context.WithCancel(ctx)
	m := &Model{
		opts:        opts,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
		theme:       DefaultTheme(),
		md:          md,
		viewport:    vp,
		input:       ta,
		spinner:     sp,
		contextText: strings.TrimSpace(opts.Context),
	}
	m.chatEvents = opts.Controller.Subscribe(ctx)
	if opts.Session != nil {
		m.sessionEvents = opts.Session.Subscribe(ctx)
	}

	if opts.State == nil || opts.State.ChatOpen {
		opts.Controller.Open()
	}
	m.refresh()
	return m, nil
}

// Init starts the listeners and fetches the content status
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.waitForChat(),
		m.waitForSession(),
		m.fetchContentStatus(),
	)
}

func (m *Model) waitForChat() tea.Cmd {
	ch := m.chatEvents
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return chatChangedMsg{}
	}
}

func (m *Model) waitForSession() tea.Cmd {
	ch := m.sessionEvents
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return sessionChangedMsg{}
	}
}

func (m *Model) fetchContentStatus() tea.Cmd {
	ctx, backend := m.ctx, m.opts.Backend
	return func() tea.Msg {
		return contentStatusMsg(backend.ContentStatus(ctx))
	}
}

// Update handles a message
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case tea.MouseMsg:
		if msg.Button == tea.MouseButtonWheelUp || msg.Button == tea.MouseButtonWheelDown {
			m.opts.Controller.Scroll()
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case chatChangedMsg:
		m.refresh()
		return m, m.waitForChat()

	case sessionChangedMsg:
		m.refresh()
		return m, m.waitForSession()

	case sendDoneMsg:
		m.refresh()
		if msg.err != nil {
			m.logger.Debug("send finished with error", "kind", api.KindOf(msg.err), "err", msg.err)
		}
		return m, nil

	case contentStatusMsg:
		status := api.ContentStatus(msg)
		m.content = &status
		if m.opts.State != nil && m.opts.State.ContentChanged(status.ContentVersion, status.LastUpdated) {
			m.setNotice(fmt.Sprintf("The textbook was updated on %s", status.LastUpdated), false)
		}
		m.layout()
		return m, nil

	case noticeMsg:
		m.setNotice(msg.text, msg.isErr)
		return m, nil

	case previewMsg:
		if msg.err != nil {
			m.setNotice("Could not load source: "+msg.err.Error(), true)
			return m, nil
		}
		m.preview = msg.preview
		m.refresh()
		m.viewport.GotoTop()
		return m, nil

	case spinner.TickMsg:
		if !m.state.IsLoading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	ctl := m.opts.Controller

	if key.Matches(msg, keys.Quit) {
		m.saveState()
		m.cancel()
		return tea.Quit
	}

	if m.reporting {
		return m.handleReportKey(msg)
	}

	if m.preview != nil {
		switch {
		case key.Matches(msg, keys.Escape):
			m.preview = nil
			m.refresh()
		case key.Matches(msg, keys.PageUp, keys.PageDown):
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return cmd
		}
		return nil
	}

	switch {
	case key.Matches(msg, keys.Toggle):
		ctl.Toggle()
		m.refresh()
		return nil

	case key.Matches(msg, keys.Escape):
		ctl.Escape()
		m.refresh()
		return nil

	case key.Matches(msg, keys.Select):
		m.useSelection()
		return nil
	}

	if !ctl.IsOpen() {
		return nil
	}

	switch {
	case key.Matches(msg, keys.Send):
		return m.send()

	case key.Matches(msg, keys.Clear):
		ctl.ClearChat()
		m.contextText = ""
		m.setNotice("Started a new conversation", false)
		m.refresh()
		return nil

	case key.Matches(msg, keys.Up):
		return m.rate(api.RatingUp)

	case key.Matches(msg, keys.Down):
		return m.rate(api.RatingDown)

	case key.Matches(msg, keys.Report):
		m.startReport()
		return nil

	case key.Matches(msg, keys.Preview):
		return m.loadPreview()

	case key.Matches(msg, keys.PageUp, keys.PageDown):
		ctl.Scroll()
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

// send starts a query for the current input
func (m *Model) send() tea.Cmd {
	ctl := m.opts.Controller
	if ctl.IsSending() {
		return nil
	}

	question := m.input.Value()
	contextText := m.contextText
	if strings.TrimSpace(question) != "" {
		m.input.Reset()
		m.contextText = ""
		m.opts.Detector.ClearSelection()
	}
	m.notice = ""

	ctx := m.ctx
	return tea.Batch(
		func() tea.Msg {
			return sendDoneMsg{question: question, err: ctl.SendMessage(ctx, question, contextText)}
		},
		m.spinner.Tick,
	)
}

// useSelection takes the clipboard selection as context for the next
// question, opening the panel when it is hidden
func (m *Model) useSelection() {
	sel := m.opts.Detector.Handle(selection.SignalSelectionChange)
	switch {
	case sel.IsValid:
		m.contextText = sel.Text
		if !m.opts.Controller.IsOpen() {
			m.opts.Controller.Open()
		}
		m.setNotice(fmt.Sprintf("Asking about %d characters of copied text", utf8.RuneCountInString(sel.Text)), false)
	case sel.IsTooShort:
		minLength, _ := m.opts.Detector.Bounds()
		m.setNotice(fmt.Sprintf("Selection too short, copy at least %d characters", minLength), true)
	case sel.IsTooLong:
		_, maxLength := m.opts.Detector.Bounds()
		m.setNotice(fmt.Sprintf("Selection too long, copy at most %d characters", maxLength), true)
	default:
		m.setNotice("Nothing copied, copy a passage first", true)
	}
	m.refresh()
}

func (m *Model) rate(rating api.Rating) tea.Cmd {
	last, ok := m.opts.Controller.LastAnswer()
	if !ok || last.MessageID == "" {
		m.setNotice("No answer to rate yet", true)
		return nil
	}

	ctx, backend := m.ctx, m.opts.Backend
	return func() tea.Msg {
		_, err := backend.SubmitFeedback(ctx, api.FeedbackRequest{MessageID: last.MessageID, Rating: rating})
		if err != nil {
			return noticeMsg{text: "Feedback failed: " + api.Message(err), isErr: true}
		}
		return noticeMsg{text: "Thanks for the feedback"}
	}
}

func (m *Model) startReport() {
	last, ok := m.opts.Controller.LastAnswer()
	if !ok || last.MessageID == "" {
		m.setNotice("No answer to report yet", true)
		return
	}
	m.reporting = true
	m.reportType = 0
	m.draft = m.input.Value()
	m.input.Reset()
	m.input.CharLimit = api.MaxDescriptionLength
	m.input.Placeholder = "Describe the problem (optional). tab: issue type, enter: submit, esc: cancel"
	m.layout()
}

func (m *Model) endReport() {
	m.reporting = false
	m.input.CharLimit = api.MaxQuestionLength
	m.input.Placeholder = "Ask about the textbook... (enter to send, alt+enter for a new line)"
	m.input.SetValue(m.draft)
	m.draft = ""
	m.layout()
}

func (m *Model) handleReportKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, keys.Escape):
		m.endReport()
		return nil

	case key.Matches(msg, keys.NextType):
		m.reportType = (m.reportType + 1) % len(api.IssueTypes)
		return nil

	case key.Matches(msg, keys.Send):
		last, ok := m.opts.Controller.LastAnswer()
		req := api.ReportIssueRequest{
			MessageID:   last.MessageID,
			IssueType:   api.IssueTypes[m.reportType],
			Description: m.input.Value(),
		}
		m.endReport()
		if !ok {
			return nil
		}

		ctx, backend := m.ctx, m.opts.Backend
		return func() tea.Msg {
			resp, err := backend.ReportIssue(ctx, req)
			if err != nil {
				return noticeMsg{text: "Report failed: " + api.Message(err), isErr: true}
			}
			if resp.IssueID != "" {
				return noticeMsg{text: "Issue reported (" + resp.IssueID + ")"}
			}
			return noticeMsg{text: "Issue reported"}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *Model) loadPreview() tea.Cmd {
	if m.opts.Previewer == nil {
		m.setNotice("Source previews are not configured", true)
		return nil
	}
	last, ok := m.opts.Controller.LastAnswer()
	if !ok || len(last.Citations) == 0 {
		m.setNotice("The last answer has no sources", true)
		return nil
	}

	ctx, previewer, ref := m.ctx, m.opts.Previewer, last.Citations[0].URL
	return func() tea.Msg {
		p, err := previewer.Preview(ctx, ref)
		return previewMsg{preview: p, err: err}
	}
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice = text
	m.noticeIsErr = isErr
}

// saveState remembers whether the panel was open
func (m *Model) saveState() {
	if m.opts.State == nil || m.opts.StatePath == "" {
		return
	}
	m.opts.State.ChatOpen = m.opts.Controller.IsOpen()
	if err := config.SaveState(m.opts.StatePath, m.opts.State); err != nil {
		m.logger.Warn("failed to save ui state", "err", err)
	}
}

// refresh pulls the controller state and redraws the transcript
func (m *Model) refresh() {
	m.state = m.opts.Controller.Snapshot()

	atBottom := m.viewport.AtBottom()
	if m.preview != nil {
		title := m.theme.Header.Render(m.preview.Title) + "\n" + m.theme.Muted.Render(m.preview.URL)
		m.viewport.SetContent(title + "\n\n" + m.md.Render(m.preview.Markdown))
		return
	}

	content := renderTranscript(m.theme, m.md, m.state.Messages, m.viewport.Width)
	if m.state.IsLoading {
		content += "\n\n" + m.spinner.View() + " " + m.theme.Muted.Render("Thinking...")
	}
	m.viewport.SetContent(content)
	if atBottom || m.state.IsLoading {
		m.viewport.GotoBottom()
	}
}

func (m *Model) layout() {
	if !m.ready {
		return
	}
	innerWidth := m.width - 4
	if innerWidth < 20 {
		innerWidth = 20
	}
	m.input.SetWidth(innerWidth)
	if err := m.md.SetWidth(innerWidth); err != nil {
		m.logger.Debug("markdown width unchanged", "err", err)
	}

	chrome := 1 + 5 + 1 + 1 // header, input with border, status, notice
	if m.showBanner() {
		chrome++
	}
	if m.contextText != "" || m.reporting {
		chrome++
	}
	height := m.height - chrome
	if height < 3 {
		height = 3
	}
	m.viewport.Width = innerWidth
	m.viewport.Height = height
	m.refresh()
}

func (m *Model) showBanner() bool {
	return m.content != nil && !m.content.IndexingComplete
}

// View renders the chat
func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.theme.Header.Width(m.width).Render("Textbook Assistant")
	status := m.theme.Status.Width(m.width).Render(statusLine(chatStatus{
		sessionID:      m.state.SessionID,
		messageCount:   m.state.MessageCount,
		nearLimit:      m.state.IsNearLimit,
		archived:       m.state.ArchiveWarning,
		timeoutWarning: m.state.TimeoutWarning,
		offline:        m.state.IsOffline,
		contextLen:     utf8.RuneCountInString(m.contextText),
	}, m.opts.MaxMessages, m.width-2))

	if !m.state.IsOpen {
		hint := m.theme.Muted.Render("Chat hidden. ctrl+o to open, ctrl+s to ask about copied text, ctrl+c to quit.")
		return lipgloss.JoinVertical(lipgloss.Left, header, "", hint, "", status, m.noticeView())
	}

	sections := []string{header}
	if m.showBanner() {
		sections = append(sections, m.theme.Banner.Render("The textbook is still being indexed, answers may be incomplete."))
	}
	sections = append(sections, m.viewport.View())

	switch {
	case m.reporting:
		sections = append(sections, m.theme.Warning.Render(fmt.Sprintf("Report issue type: %s (tab to change)", api.IssueTypes[m.reportType])))
	case m.contextText != "":
		sections = append(sections, m.theme.Context.Render(truncateContext(m.contextText, m.width-4)))
	}

	sections = append(sections, m.theme.Border.Width(m.width-2).Render(m.input.View()), status, m.noticeView())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) noticeView() string {
	switch {
	case m.state.Error != "":
		return m.theme.Error.Render(m.state.Error)
	case m.notice == "":
		return ""
	case m.noticeIsErr:
		return m.theme.Warning.Render(m.notice)
	default:
		return m.theme.Muted.Render(m.notice)
	}
}

func truncateContext(text string, width int) string {
	flat := strings.Join(strings.Fields(text), " ")
	return "Context: " + truncate(flat, width-len("Context: "))
}
