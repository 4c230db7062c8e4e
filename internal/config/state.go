package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
)

// State is UI state remembered between runs
type State struct {
	ChatOpen           bool      `toml:"chat_open"`
	AutoHideOnScroll   bool      `toml:"auto_hide_on_scroll"`
	LastContentVersion string    `toml:"last_content_version,omitempty"`
	LastContentUpdate  string    `toml:"last_content_update,omitempty"`
	LastSeen           time.Time `toml:"last_seen,omitempty"`
}

// NewState creates a new state with default values
func NewState() *State {
	return &State{
		ChatOpen:         true,
		AutoHideOnScroll: true,
	}
}

// ContentChanged records the backend content version and reports whether
// it differs from the one seen last time. The first sighting is not a change.
func (s *State) ContentChanged(version, updated string) bool {
	changed := s.LastContentVersion != "" && s.LastContentVersion != version
	s.LastContentVersion = version
	s.LastContentUpdate = updated
	return changed
}

// SaveState writes the state to a TOML file
func SaveState(filePath string, state *State) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create/open state file %s: %w", filePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	encoder := toml.NewEncoder(writer)
	if err := encoder.Encode(state); err != nil {
		return fmt.Errorf("failed to encode state to TOML file %s: %w", filePath, err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer for state file %s: %w", filePath, err)
	}

	log.Debug("State saved to file", "file", filePath)
	return nil
}

// LoadState loads the state from a TOML file, returning the defaults when
// the file does not exist yet
func LoadState(filePath string) (*State, error) {
	state := NewState()
	if _, err := toml.DecodeFile(filePath, state); err != nil {
		if _, statErr := os.Stat(filePath); os.IsNotExist(statErr) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("failed to decode TOML from file %s: %w", filePath, err)
	}
	return state, nil
}
