package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/entrepeneur4lyf/bookchat/internal/storage"
)

// APIConfig points the client at the RAG backend
type APIConfig struct {
	URL           string        `json:"url"`
	QueryTimeout  time.Duration `json:"queryTimeout"`
	StatusTimeout time.Duration `json:"statusTimeout"`
	HealthTimeout time.Duration `json:"healthTimeout"`
}

// ChatbotConfig controls the chat panel
type ChatbotConfig struct {
	Enabled          bool          `json:"enabled"`
	AutoHideOnScroll bool          `json:"autoHideOnScroll"`
	ScrollHideDelay  time.Duration `json:"scrollHideDelay"`
}

// SessionConfig bounds the persisted conversation
type SessionConfig struct {
	Timeout     time.Duration `json:"timeout"`
	MaxMessages int           `json:"maxMessages"`
}

// SelectionConfig bounds usable selections, in characters
type SelectionConfig struct {
	MinLength int `json:"minLength"`
	MaxLength int `json:"maxLength"`
}

// StorageConfig selects the session backend
type StorageConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path,omitempty"`
	DSN    string `json:"dsn,omitempty"`
}

// DocsConfig locates the textbook site for citation previews
type DocsConfig struct {
	URL string `json:"url"`
}

// LogConfig controls the application logger
type LogConfig struct {
	Level string `json:"level"`
	File  string `json:"file,omitempty"`
}

// Config is the main configuration structure for the application
type Config struct {
	WorkingDir string          `json:"wd,omitempty"`
	Debug      bool            `json:"debug,omitempty"`
	API        APIConfig       `json:"api"`
	Chatbot    ChatbotConfig   `json:"chatbot"`
	Session    SessionConfig   `json:"session"`
	Selection  SelectionConfig `json:"selection"`
	Storage    StorageConfig   `json:"storage"`
	Docs       DocsConfig      `json:"docs"`
	Log        LogConfig       `json:"log"`
}

// Application constants
const (
	appName         = "bookchat"
	defaultLogLevel = "info"

	DefaultAPIURL  = "https://backend-vert-zeta-89.vercel.app"
	DefaultDocsURL = "https://hamzasaleem22.github.io"
)

var (
	cfg *Config
	mu  sync.RWMutex
)

// Load initializes the configuration from the .env file, environment
// variables and config files. Later calls return the loaded configuration.
func Load(workingDir string, debug bool) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	if cfg != nil {
		return cfg, nil
	}

	if err := loadDotEnv(workingDir); err != nil {
		return nil, err
	}

	configureViper(workingDir)
	setDefaults(debug)

	loaded := &Config{}
	if err := readConfig(viper.ReadInConfig(), loaded); err != nil {
		return nil, err
	}
	loaded.WorkingDir = workingDir
	if debug {
		loaded.Debug = true
		loaded.Log.Level = "debug"
	}

	cfg = loaded
	return cfg, nil
}

// loadDotEnv loads workingDir/.env without overriding variables already set
func loadDotEnv(workingDir string) error {
	path := filepath.Join(workingDir, ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// configureViper sets up viper's configuration paths and environment variables
func configureViper(workingDir string) {
	viper.SetConfigName(fmt.Sprintf(".%s", appName))
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(fmt.Sprintf("$XDG_CONFIG_HOME/%s", appName))
	viper.AddConfigPath(fmt.Sprintf("$HOME/.config/%s", appName))
	if workingDir != "" {
		viper.AddConfigPath(workingDir)
	}
	viper.SetEnvPrefix(strings.ToUpper(appName))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// names used by the web build of the widget
	_ = viper.BindEnv("api.url", "BOOKCHAT_API_URL", "REACT_APP_API_URL")
	_ = viper.BindEnv("chatbot.enabled", "BOOKCHAT_CHATBOT_ENABLED", "REACT_APP_CHATBOT_ENABLED")
}

// setDefaults configures default values for configuration options
func setDefaults(debug bool) {
	viper.SetDefault("api.url", DefaultAPIURL)
	viper.SetDefault("api.queryTimeout", "30s")
	viper.SetDefault("api.statusTimeout", "10s")
	viper.SetDefault("api.healthTimeout", "5s")

	viper.SetDefault("chatbot.enabled", true)
	viper.SetDefault("chatbot.autoHideOnScroll", true)
	viper.SetDefault("chatbot.scrollHideDelay", "500ms")

	viper.SetDefault("session.timeout", "2h")
	viper.SetDefault("session.maxMessages", 50)

	viper.SetDefault("selection.minLength", 10)
	viper.SetDefault("selection.maxLength", 2000)

	viper.SetDefault("storage.driver", storage.BackendFile)
	viper.SetDefault("storage.path", "")
	viper.SetDefault("storage.dsn", "")

	viper.SetDefault("docs.url", DefaultDocsURL)

	viper.SetDefault("log.file", "")
	if debug {
		viper.SetDefault("log.level", "debug")
	} else {
		viper.SetDefault("log.level", defaultLogLevel)
	}
}

// readConfig handles the result of reading a configuration file and
// decodes the merged settings into target
func readConfig(err error, target *Config) error {
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := viper.Unmarshal(target); err != nil {
		return fmt.Errorf("unable to decode config: %w", err)
	}
	return nil
}

// Get returns the current configuration, nil before Load
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// WorkingDirectory returns the current working directory from the configuration
func WorkingDirectory() string {
	c := Get()
	if c == nil {
		panic("config not loaded")
	}
	return c.WorkingDir
}

// ConfigFile returns the config file in use, if any
func ConfigFile() string {
	return viper.ConfigFileUsed()
}

// Watch reloads the configuration whenever the config file changes and
// hands the new value to onChange. It requires a config file to be in use.
func Watch(onChange func(*Config)) error {
	if viper.ConfigFileUsed() == "" {
		return errors.New("no config file to watch")
	}

	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		mu.Lock()
		if cfg == nil {
			mu.Unlock()
			return
		}
		next := &Config{}
		if err := viper.Unmarshal(next); err != nil {
			mu.Unlock()
			return
		}
		next.WorkingDir = cfg.WorkingDir
		if cfg.Debug {
			next.Debug = true
			next.Log.Level = "debug"
		}
		cfg = next
		mu.Unlock()

		if onChange != nil {
			onChange(next)
		}
	})
	viper.WatchConfig()
	return nil
}

// StorageOptions turns the storage settings into backend options, filling
// in the default locations under paths
func (c *Config) StorageOptions(paths *storage.PathManager) storage.Options {
	return storage.Options{
		Driver: c.Storage.Driver,
		Path:   expandHome(c.Storage.Path, paths),
		DSN:    c.Storage.DSN,
		Paths:  paths,
	}
}

// LogFile returns the log file location
func (c *Config) LogFile(paths *storage.PathManager) (string, error) {
	if c.Log.File != "" {
		return expandHome(c.Log.File, paths), nil
	}
	dir, err := paths.LogsDir()
	if err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}
	return filepath.Join(dir, appName+".log"), nil
}

func expandHome(path string, paths *storage.PathManager) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		return filepath.Join(paths.GetHomeDir(), strings.TrimPrefix(path, "~"))
	}
	return path
}

// reset forgets the loaded configuration
func reset() {
	mu.Lock()
	defer mu.Unlock()
	cfg = nil
	viper.Reset()
}
