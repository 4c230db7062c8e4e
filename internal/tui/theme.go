package tui

import (
	catppuccin "github.com/catppuccin/go"
	"github.com/charmbracelet/lipgloss"
)

// Theme holds the styles used by the chat view. Colors come from the
// catppuccin Latte and Mocha flavors and adapt to the terminal background.
type Theme struct {
	Header    lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	Error     lipgloss.Style
	Warning   lipgloss.Style
	Muted     lipgloss.Style
	Citation  lipgloss.Style
	Context   lipgloss.Style
	Status    lipgloss.Style
	Border    lipgloss.Style
	Banner    lipgloss.Style
}

func adaptive(light, dark string) lipgloss.AdaptiveColor {
	return lipgloss.AdaptiveColor{Light: light, Dark: dark}
}

// DefaultTheme returns the catppuccin based theme
func DefaultTheme() Theme {
	latte, mocha := catppuccin.Latte, catppuccin.Mocha

	accent := adaptive(latte.Mauve().Hex, mocha.Mauve().Hex)
	text := adaptive(latte.Text().Hex, mocha.Text().Hex)
	muted := adaptive(latte.Overlay1().Hex, mocha.Overlay1().Hex)
	surface := adaptive(latte.Surface0().Hex, mocha.Surface0().Hex)

	return Theme{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(adaptive(latte.Base().Hex, mocha.Base().Hex)).
			Background(accent).
			Padding(0, 1),
		User:      lipgloss.NewStyle().Bold(true).Foreground(adaptive(latte.Blue().Hex, mocha.Blue().Hex)),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(adaptive(latte.Green().Hex, mocha.Green().Hex)),
		Error:     lipgloss.NewStyle().Foreground(adaptive(latte.Red().Hex, mocha.Red().Hex)),
		Warning:   lipgloss.NewStyle().Foreground(adaptive(latte.Peach().Hex, mocha.Peach().Hex)),
		Muted:     lipgloss.NewStyle().Foreground(muted),
		Citation:  lipgloss.NewStyle().Foreground(adaptive(latte.Sapphire().Hex, mocha.Sapphire().Hex)),
		Context: lipgloss.NewStyle().
			Foreground(text).
			Background(surface).
			Padding(0, 1),
		Status: lipgloss.NewStyle().
			Foreground(muted).
			Background(surface).
			Padding(0, 1),
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent),
		Banner: lipgloss.NewStyle().
			Bold(true).
			Foreground(adaptive(latte.Yellow().Hex, mocha.Yellow().Hex)),
	}
}
