package cmd

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/entrepeneur4lyf/bookchat/internal/api"
	"github.com/entrepeneur4lyf/bookchat/internal/chat"
	"github.com/entrepeneur4lyf/bookchat/internal/citation"
	"github.com/entrepeneur4lyf/bookchat/internal/config"
	"github.com/entrepeneur4lyf/bookchat/internal/selection"
	"github.com/entrepeneur4lyf/bookchat/internal/session"
	"github.com/entrepeneur4lyf/bookchat/internal/storage"
)

const connectivityInterval = 30 * time.Second

// application holds the wired components shared by all commands
type application struct {
	cfg    *config.Config
	logger *log.Logger
	paths  *storage.PathManager

	persister  storage.Persister
	store      *session.Store
	client     *api.Client
	controller *chat.Controller
	detector   *selection.Detector
	previewer  *citation.Previewer

	state     *config.State
	statePath string
}

// newApplication builds the component graph from cfg. Storage problems are
// logged and the session falls back to memory.
func newApplication(ctx context.Context, cfg *config.Config, logger *log.Logger, paths *storage.PathManager) (*application, error) {
	a := &application{cfg: cfg, logger: logger, paths: paths}
	logger.Debug("starting", "platform", paths.GetPlatformInfo(), "api", cfg.API.URL)

	persister, err := storage.Open(ctx, cfg.StorageOptions(paths))
	if err != nil {
		logger.Warn("session storage unavailable, keeping the session in memory", "driver", cfg.Storage.Driver, "err", err)
		persister = storage.NewMemoryStore()
	}
	a.persister = persister

	a.store = session.NewStore(persister,
		session.WithLogger(logger.WithPrefix("session")),
		session.WithTimeout(cfg.Session.Timeout),
		session.WithMaxMessages(cfg.Session.MaxMessages),
	)
	a.store.Initialize()

	a.client = api.NewClient(cfg.API.URL,
		api.WithLogger(logger.WithPrefix("api")),
		api.WithQueryTimeout(cfg.API.QueryTimeout),
		api.WithStatusTimeout(cfg.API.StatusTimeout),
		api.WithHealthTimeout(cfg.API.HealthTimeout),
	)

	a.controller = chat.NewController(a.store, a.client,
		chat.WithLogger(logger.WithPrefix("chat")),
		chat.WithAutoHide(cfg.Chatbot.AutoHideOnScroll, cfg.Chatbot.ScrollHideDelay),
	)

	a.detector = selection.NewDetector(selection.NewClipboardSource(logger.WithPrefix("clipboard")),
		selection.WithBounds(cfg.Selection.MinLength, cfg.Selection.MaxLength),
		selection.WithLogger(logger.WithPrefix("selection")),
	)

	if previewer, err := citation.NewPreviewer(cfg.Docs.URL, citation.WithLogger(logger.WithPrefix("citation"))); err != nil {
		logger.Warn("citation previews disabled", "docs_url", cfg.Docs.URL, "err", err)
	} else {
		a.previewer = previewer
	}

	a.state = config.NewState()
	if statePath, err := paths.StatePath(); err != nil {
		logger.Warn("ui state will not be saved", "err", err)
	} else {
		a.statePath = statePath
		if state, err := config.LoadState(statePath); err != nil {
			logger.Warn("ignoring unreadable ui state", "file", statePath, "err", err)
		} else {
			a.state = state
		}
	}

	return a, nil
}

// applyConfig applies settings that may change while running
func (a *application) applyConfig(cfg *config.Config) {
	if lvl, err := config.ParseLevel(cfg.Log.Level); err == nil {
		a.logger.SetLevel(lvl)
	}
	a.controller.SetAutoHide(cfg.Chatbot.AutoHideOnScroll, cfg.Chatbot.ScrollHideDelay)
	a.logger.Info("configuration reloaded", "file", config.ConfigFile())
}

// Close stops timers and flushes the session
func (a *application) Close() {
	a.detector.Close()
	a.controller.Dispose()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close session store", "err", err)
	}
	if err := a.persister.Close(); err != nil {
		a.logger.Warn("failed to close storage", "err", err)
	}
}
