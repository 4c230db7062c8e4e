package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/entrepeneur4lyf/bookchat/internal/chat"
	"github.com/entrepeneur4lyf/bookchat/internal/config"
	"github.com/entrepeneur4lyf/bookchat/internal/storage"
	"github.com/entrepeneur4lyf/bookchat/internal/tui"
)

// ErrDisabled is returned by every command when chatbot.enabled is false
var ErrDisabled = errors.New("chatbot disabled")

// errReported marks failures already shown to the user
var errReported = errors.New("already reported")

var (
	debug       bool
	workingDir  string
	apiURL      string
	contextText string
	quiet       bool
	plain       bool
)

var (
	// paths overrides the storage root; tests point it at a temp dir
	paths     *storage.PathManager
	logCloser io.Closer
)

// Global app instance shared by the commands
var bookchat *application

// setupLogging configures the default logger. Debug mode logs to stderr;
// otherwise output goes to a rotated file so it cannot corrupt the UI.
func setupLogging(cfg *config.Config) (*log.Logger, error) {
	var w io.Writer
	if cfg.Debug {
		w = os.Stderr
	}

	path, err := cfg.LogFile(paths)
	if err != nil && w == nil {
		return nil, err
	}

	logger, closer, err := config.NewLogger(cfg.Log.Level, w, path)
	if err != nil {
		return nil, err
	}
	logCloser = closer
	log.SetDefault(logger)
	return logger, nil
}

// cleanupLogging closes the log file if it was opened
func cleanupLogging() {
	if logCloser != nil {
		logCloser.Close()
		logCloser = nil
	}
}

var rootCmd = &cobra.Command{
	Use:   "bookchat [question]",
	Short: "Ask questions about the Physical AI textbook",
	Long: `bookchat answers questions about the Physical AI & Humanoid Robotics
textbook, citing the sections it used.

Usage:
  bookchat                      # Start the interactive chat
  bookchat "your question"      # Get a direct answer
  echo "question" | bookchat    # Pipe input

Copy a passage and press ctrl+s in the chat to ask about it, or pass it
with --context.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	SilenceErrors:     true,
	Args:              cobra.ArbitraryArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(workingDir, debug)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if apiURL != "" {
			cfg.API.URL = apiURL
		}
		if !cfg.Chatbot.Enabled {
			return ErrDisabled
		}

		if paths == nil {
			paths = storage.NewPathManager()
		}
		logger, err := setupLogging(cfg)
		if err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}

		bookchat, err = newApplication(cmd.Context(), cfg, logger, paths)
		if err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}

		if config.ConfigFile() != "" {
			if err := config.Watch(bookchat.applyConfig); err != nil {
				logger.Debug("config watch not started", "err", err)
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		shutdown()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		switch {
		case len(args) > 0:
			return handleDirectPrompt(ctx, cmd.OutOrStdout(), strings.Join(args, " "))
		case hasStdinInput():
			return handlePipedInput(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		case plain:
			return startLineMode(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		default:
			return startInteractiveMode(ctx)
		}
	},
}

func init() {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}

	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging to stderr")
	rootCmd.PersistentFlags().StringVar(&workingDir, "wd", wd, "Working directory")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Backend URL (overrides api.url)")
	rootCmd.PersistentFlags().StringVar(&contextText, "context", "", "Selected text to ask about")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode - output only the answer")
	rootCmd.Flags().BoolVar(&plain, "plain", false, "Line-oriented chat instead of the full-screen UI")

	rootCmd.AddCommand(statusCmd, sessionCmd, feedbackCmd, reportCmd, citeCmd)
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer shutdown()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		shutdown()
		os.Exit(1)
	}
}

// shutdown releases the application and the log file
func shutdown() {
	if bookchat != nil {
		bookchat.Close()
		bookchat = nil
	}
	cleanupLogging()
}

// handleDirectPrompt answers one question
func handleDirectPrompt(ctx context.Context, out io.Writer, prompt string) error {
	ls := chat.NewLineSession(bookchat.controller, strings.NewReader(""), out, quiet)
	ls.SetSelection(contextText)
	if err := ls.Ask(ctx, prompt); err != nil {
		return errReported
	}
	return nil
}

func hasStdinInput() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	// If stdin is not a character device, it's piped or redirected
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// handlePipedInput answers the whole of in as a single question
func handlePipedInput(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading stdin: %w", err)
	}

	prompt := strings.TrimSpace(strings.Join(lines, "\n"))
	if prompt == "" {
		return errors.New("no input received from stdin")
	}
	return handleDirectPrompt(ctx, out, prompt)
}

// startLineMode runs the plain chat loop
func startLineMode(ctx context.Context, in io.Reader, out io.Writer) error {
	bookchat.controller.WatchConnectivity(ctx, connectivityInterval)
	ls := chat.NewLineSession(bookchat.controller, in, out, quiet)
	ls.SetSelection(contextText)
	return ls.Run(ctx)
}

// startInteractiveMode runs the full-screen chat
func startInteractiveMode(ctx context.Context) error {
	a := bookchat
	a.controller.WatchConnectivity(ctx, connectivityInterval)

	model, err := tui.New(ctx, tui.Options{
		Controller:  a.controller,
		Session:     a.store,
		Backend:     a.client,
		Detector:    a.detector,
		Previewer:   a.previewer,
		State:       a.state,
		StatePath:   a.statePath,
		MaxMessages: a.cfg.Session.MaxMessages,
		Context:     contextText,
		Logger:      a.logger.WithPrefix("tui"),
	})
	if err != nil {
		return err
	}

	program := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error in interactive mode: %w", err)
	}
	return nil
}
