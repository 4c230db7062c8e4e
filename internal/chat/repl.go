package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/entrepeneur4lyf/bookchat/internal/session"
)

// LineSession is a plain line-oriented front end over a Controller, used when
// stdin is not a terminal or a full-screen UI is not wanted
type LineSession struct {
	ctl   *Controller
	in    io.Reader
	out   io.Writer
	quiet bool

	// selection is sent as context with the next question only
	selection string
}

// NewLineSession creates a line session reading from in and writing to out
func NewLineSession(ctl *Controller, in io.Reader, out io.Writer, quiet bool) *LineSession {
	return &LineSession{ctl: ctl, in: in, out: out, quiet: quiet}
}

// SetSelection attaches context to the next question
func (ls *LineSession) SetSelection(text string) {
	ls.selection = strings.TrimSpace(text)
}

// Run reads questions until EOF or an exit command
func (ls *LineSession) Run(ctx context.Context) error {
	if !ls.quiet {
		fmt.Fprintln(ls.out, "📖 Textbook assistant")
		fmt.Fprintf(ls.out, "Session: %s\n", ls.ctl.Snapshot().SessionID)
		fmt.Fprintln(ls.out, "Type '/help' for available commands, 'exit' to leave")
		fmt.Fprintln(ls.out)
	}

	scanner := bufio.NewScanner(ls.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if !ls.quiet {
			fmt.Fprint(ls.out, "> ")
		}
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if ls.handleCommand(input) {
				break
			}
			continue
		}

		if input == "exit" || input == "quit" {
			if !ls.quiet {
				fmt.Fprintln(ls.out, "Goodbye!")
			}
			break
		}

		ls.Ask(ctx, input)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	return nil
}

// Ask sends one question and prints the outcome. It returns the error from
// the controller, if any.
func (ls *LineSession) Ask(ctx context.Context, question string) error {
	selection := ls.selection
	ls.selection = ""

	if err := ls.ctl.SendMessage(ctx, question, selection); err != nil {
		if msg := ls.ctl.Snapshot().Error; msg != "" {
			fmt.Fprintf(ls.out, "%s%s\n", ErrorPrefix, msg)
		} else {
			fmt.Fprintf(ls.out, "%sError: %v\n", ErrorPrefix, err)
		}
		return err
	}

	if answer, ok := ls.ctl.LastAnswer(); ok {
		ls.displayAnswer(answer)
	}
	return nil
}

func (ls *LineSession) displayAnswer(msg session.Message) {
	fmt.Fprintln(ls.out, msg.Content)
	if ls.quiet {
		return
	}
	if len(msg.Citations) > 0 {
		fmt.Fprintln(ls.out)
		fmt.Fprintln(ls.out, "Sources:")
		for _, c := range msg.Citations {
			fmt.Fprintf(ls.out, "  • %s (%s) %.0f%%\n", c.Section, c.URL, c.Score*100)
		}
	}
	if msg.MessageID != "" {
		fmt.Fprintf(ls.out, "\nmessage id: %s\n", msg.MessageID)
	}
	fmt.Fprintln(ls.out)
}

// handleCommand processes slash commands; it returns true to end the session
func (ls *LineSession) handleCommand(command string) bool {
	name, arg, _ := strings.Cut(command, " ")
	switch name {
	case "/help":
		ls.showHelp()
	case "/clear":
		ls.ctl.ClearChat()
		if !ls.quiet {
			fmt.Fprintln(ls.out, "✅ Conversation cleared")
		}
	case "/history":
		ls.showHistory()
	case "/context":
		ls.SetSelection(arg)
		if !ls.quiet {
			if ls.selection == "" {
				fmt.Fprintln(ls.out, "Context cleared")
			} else {
				fmt.Fprintln(ls.out, "Context set for the next question")
			}
		}
	case "/exit", "/quit":
		if !ls.quiet {
			fmt.Fprintln(ls.out, "Goodbye!")
		}
		return true
	default:
		fmt.Fprintf(ls.out, "Unknown command: %s\nType '/help' for available commands.\n", command)
	}
	return false
}

func (ls *LineSession) showHelp() {
	fmt.Fprintln(ls.out, "Available commands:")
	fmt.Fprintln(ls.out, "  /help            - Show this help message")
	fmt.Fprintln(ls.out, "  /clear           - Start a new session")
	fmt.Fprintln(ls.out, "  /history         - Show the conversation")
	fmt.Fprintln(ls.out, "  /context <text>  - Ask the next question about <text>")
	fmt.Fprintln(ls.out, "  /exit            - Leave")
}

func (ls *LineSession) showHistory() {
	state := ls.ctl.Snapshot()
	if len(state.Messages) == 0 {
		fmt.Fprintln(ls.out, "No conversation history")
		return
	}

	fmt.Fprintf(ls.out, "Conversation history (%d messages):\n", state.MessageCount)
	for i, msg := range state.Messages {
		preview := []rune(msg.Content)
		if len(preview) > 100 {
			preview = append(preview[:100], []rune("...")...)
		}
		fmt.Fprintf(ls.out, "%d. %s: %s\n", i+1, strings.ToUpper(string(msg.Role)), string(preview))
	}
}
