package tui

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrepeneur4lyf/bookchat/internal/api"
	"github.com/entrepeneur4lyf/bookchat/internal/api/apitest"
	"github.com/entrepeneur4lyf/bookchat/internal/chat"
	"github.com/entrepeneur4lyf/bookchat/internal/citation"
	"github.com/entrepeneur4lyf/bookchat/internal/config"
	"github.com/entrepeneur4lyf/bookchat/internal/selection"
	"github.com/entrepeneur4lyf/bookchat/internal/session"
	"github.com/entrepeneur4lyf/bookchat/internal/storage"
)

type harness struct {
	model     *Model
	ctl       *chat.Controller
	srv       *apitest.Server
	source    *selection.StaticSource
	statePath string
}

func newHarness(t *testing.T, state *config.State) *harness {
	t.Helper()
	quiet := log.New(io.Discard)

	store := session.NewStore(storage.NewMemoryStore(), session.WithLogger(quiet))
	store.Initialize()

	srv := apitest.NewServer()
	client := api.NewClient(srv.URL, api.WithLogger(quiet))
	ctl := chat.NewController(store, client, chat.WithLogger(quiet))

	source := selection.NewStaticSource("")
	detector := selection.NewDetector(source, selection.WithLogger(quiet))

	docs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><body><article><h1>Introduction to Physical AI</h1><p>Robots that sense and act.</p></article></body></html>`)
	}))
	previewer, err := citation.NewPreviewer(docs.URL, citation.WithLogger(quiet))
	require.NoError(t, err)

	statePath := filepath.Join(t.TempDir(), "state.toml")
	m, err := New(context.Background(), Options{
		Controller: ctl,
		Session:    store,
		Backend:    client,
		Detector:   detector,
		Previewer:  previewer,
		State:      state,
		StatePath:  statePath,
		Logger:     quiet,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		m.cancel()
		detector.Close()
		ctl.Dispose()
		store.Close()
		docs.Close()
		srv.Close()
	})

	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return &harness{model: m, ctl: ctl, srv: srv, source: source, statePath: statePath}
}

func (h *harness) press(t *testing.T, kt tea.KeyType) tea.Cmd {
	t.Helper()
	_, cmd := h.model.Update(tea.KeyMsg{Type: kt})
	return cmd
}

// ask sends question and feeds the result back into the model
func (h *harness) ask(t *testing.T, question string) {
	t.Helper()
	h.model.input.SetValue(question)
	cmd := h.press(t, tea.KeyEnter)
	require.NotNil(t, cmd)

	batch, ok := cmd().(tea.BatchMsg)
	require.True(t, ok)
	done := batch[0]()
	require.IsType(t, sendDoneMsg{}, done)
	h.model.Update(done)
}

func plainView(m *Model) string {
	return ansi.Strip(m.View())
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.Error(t, err)
}

func TestViewBeforeResize(t *testing.T) {
	h := newHarness(t, nil)
	h.model.ready = false
	assert.Equal(t, "Loading...", h.model.View())
}

func TestOpensFromSavedState(t *testing.T) {
	open := newHarness(t, nil)
	assert.True(t, open.ctl.IsOpen())

	state := config.NewState()
	state.ChatOpen = false
	closed := newHarness(t, state)
	assert.False(t, closed.ctl.IsOpen())
	assert.Contains(t, plainView(closed.model), "Chat hidden")
}

func TestToggleAndEscape(t *testing.T) {
	h := newHarness(t, nil)

	h.press(t, tea.KeyCtrlO)
	assert.False(t, h.ctl.IsOpen())

	h.press(t, tea.KeyCtrlO)
	assert.True(t, h.ctl.IsOpen())

	h.press(t, tea.KeyEsc)
	assert.False(t, h.ctl.IsOpen())
}

func TestSendShowsAnswer(t *testing.T) {
	h := newHarness(t, nil)

	h.ask(t, "What is Physical AI?")

	state := h.ctl.Snapshot()
	require.Len(t, state.Messages, 2)
	assert.Empty(t, h.model.input.Value())

	view := plainView(h.model)
	assert.Contains(t, view, "What is Physical AI?")
	assert.Contains(t, view, "Answer to: What is Physical AI?")
	assert.Contains(t, view, "Introduction to Physical AI")
	assert.Contains(t, view, "2/50 messages")
}

func TestSendEmptyShowsValidationError(t *testing.T) {
	h := newHarness(t, nil)

	h.ask(t, "   ")
	assert.Equal(t, 0, h.srv.QueryCount())
	assert.Contains(t, plainView(h.model), chat.MsgEmptyQuestion)
}

func TestSelectionBecomesContext(t *testing.T) {
	h := newHarness(t, nil)
	h.ctl.Close()

	h.source.Set("tiny", nil)
	h.press(t, tea.KeyCtrlS)
	assert.Empty(t, h.model.contextText)
	assert.Contains(t, h.model.notice, "too short")
	assert.False(t, h.ctl.IsOpen())

	h.source.Set("Embodied intelligence needs a body", nil)
	h.press(t, tea.KeyCtrlS)
	assert.Equal(t, "Embodied intelligence needs a body", h.model.contextText)
	assert.True(t, h.ctl.IsOpen(), "a usable selection opens the chat")
	assert.Contains(t, plainView(h.model), "Context: Embodied intelligence")

	h.ask(t, "Explain this")
	queries := h.srv.Queries()
	require.Len(t, queries, 1)
	assert.Equal(t, "Embodied intelligence needs a body", queries[0].Context)
	assert.Empty(t, h.model.contextText)

	text, _ := h.source.Selection()
	assert.Empty(t, text, "selection is collapsed after asking")
}

func TestSelectionHintsUseConfiguredBounds(t *testing.T) {
	h := newHarness(t, nil)
	detector := selection.NewDetector(h.source, selection.WithBounds(20, 30), selection.WithLogger(log.New(io.Discard)))
	t.Cleanup(detector.Close)
	h.model.opts.Detector = detector

	h.source.Set("fifteen letters", nil)
	h.press(t, tea.KeyCtrlS)
	assert.Contains(t, h.model.notice, "at least 20 characters")

	h.source.Set("this passage is much longer than thirty characters", nil)
	h.press(t, tea.KeyCtrlS)
	assert.Contains(t, h.model.notice, "at most 30 characters")
}

func TestClearChat(t *testing.T) {
	h := newHarness(t, nil)
	h.ask(t, "What is ROS 2?")
	before := h.ctl.Snapshot().SessionID

	h.press(t, tea.KeyCtrlL)
	state := h.ctl.Snapshot()
	assert.Empty(t, state.Messages)
	assert.NotEqual(t, before, state.SessionID)
}

func TestFeedback(t *testing.T) {
	h := newHarness(t, nil)

	assert.Nil(t, h.press(t, tea.KeyCtrlU))
	assert.Equal(t, "No answer to rate yet", h.model.notice)

	h.ask(t, "What is Gazebo?")
	cmd := h.press(t, tea.KeyCtrlD)
	require.NotNil(t, cmd)
	h.model.Update(cmd())

	assert.Equal(t, "Thanks for the feedback", h.model.notice)
	feedback := h.srv.Feedback()
	require.Len(t, feedback, 1)
	assert.Equal(t, api.RatingDown, feedback[0].Rating)

	last, ok := h.ctl.LastAnswer()
	require.True(t, ok)
	assert.Equal(t, last.MessageID, feedback[0].MessageID)
}

func TestReportIssue(t *testing.T) {
	h := newHarness(t, nil)
	h.ask(t, "What is Isaac Sim?")

	h.model.input.SetValue("draft question")
	h.press(t, tea.KeyCtrlR)
	require.True(t, h.model.reporting)
	assert.Empty(t, h.model.input.Value())
	assert.Contains(t, plainView(h.model), "Report issue type: incorrect")

	h.press(t, tea.KeyTab)
	assert.Contains(t, plainView(h.model), "Report issue type: incomplete")

	h.model.input.SetValue("Leaves out the physics engine")
	cmd := h.press(t, tea.KeyEnter)
	require.NotNil(t, cmd)
	assert.False(t, h.model.reporting)
	assert.Equal(t, "draft question", h.model.input.Value(), "draft is restored")

	h.model.Update(cmd())
	assert.Contains(t, h.model.notice, "Issue reported")

	reports := h.srv.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, api.IssueIncomplete, reports[0].IssueType)
	assert.Equal(t, "Leaves out the physics engine", reports[0].Description)
}

func TestReportCancel(t *testing.T) {
	h := newHarness(t, nil)
	h.ask(t, "What is Isaac Sim?")

	h.press(t, tea.KeyCtrlR)
	h.press(t, tea.KeyEsc)
	assert.False(t, h.model.reporting)
	assert.True(t, h.ctl.IsOpen(), "esc leaves report mode without closing")
	assert.Empty(t, h.srv.Reports())
}

func TestCitationPreview(t *testing.T) {
	h := newHarness(t, nil)

	assert.Nil(t, h.press(t, tea.KeyCtrlP))
	assert.Contains(t, h.model.notice, "no sources")

	h.ask(t, "What is Physical AI?")
	cmd := h.press(t, tea.KeyCtrlP)
	require.NotNil(t, cmd)
	h.model.Update(cmd())

	require.NotNil(t, h.model.preview)
	view := plainView(h.model)
	assert.Contains(t, view, "Robots that sense and act.")

	h.press(t, tea.KeyEsc)
	assert.Nil(t, h.model.preview)
	assert.True(t, h.ctl.IsOpen())
}

func TestIndexingBanner(t *testing.T) {
	h := newHarness(t, config.NewState())

	h.model.Update(contentStatusMsg(api.ContentStatus{ContentVersion: "v1", IndexingComplete: false}))
	assert.Contains(t, plainView(h.model), "still being indexed")

	h.model.Update(contentStatusMsg(api.ContentStatus{ContentVersion: "v2", LastUpdated: "2025-03-14", IndexingComplete: true}))
	view := plainView(h.model)
	assert.NotContains(t, view, "still being indexed")
	assert.Contains(t, view, "updated on 2025-03-14")
}

func TestFetchContentStatus(t *testing.T) {
	h := newHarness(t, nil)
	msg := h.model.fetchContentStatus()()

	status, ok := msg.(contentStatusMsg)
	require.True(t, ok)
	assert.Equal(t, "v1.0.0", status.ContentVersion)
}

func TestQuitSavesState(t *testing.T) {
	h := newHarness(t, config.NewState())
	h.press(t, tea.KeyCtrlO)

	cmd := h.press(t, tea.KeyCtrlC)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	saved, err := config.LoadState(h.statePath)
	require.NoError(t, err)
	assert.False(t, saved.ChatOpen)
}

func TestChatEventsRefreshView(t *testing.T) {
	h := newHarness(t, nil)
	wait := h.model.waitForChat()

	h.ctl.Close()
	msg := wait()
	assert.IsType(t, chatChangedMsg{}, msg)

	h.model.Update(msg)
	assert.False(t, h.model.state.IsOpen)
}
