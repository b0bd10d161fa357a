package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/GolferGeek/sync-focus/internal/model"
	"github.com/GolferGeek/sync-focus/internal/timer"
)

const (
	envPrefix       = "SYNCFOCUS"
	configFile      = "config.yaml"
	credentialsFile = "credentials.yaml"
	defaultServer   = "http://localhost:8080"
)

// Settings is the CLI configuration, read from config.yaml in the config
// directory and overridden by SYNCFOCUS_* variables and flags.
type Settings struct {
	Server       string `mapstructure:"server"`
	WorkSeconds  int    `mapstructure:"work_seconds"`
	BreakSeconds int    `mapstructure:"break_seconds"`
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	GeminiModel  string `mapstructure:"gemini_model"`
	LogLevel     string `mapstructure:"log_level"`
}

func (s Settings) Machine() timer.Machine {
	return timer.Machine{Work: s.WorkSeconds, Break: s.BreakSeconds}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("server", defaultServer)
	v.SetDefault("work_seconds", model.WorkTime)
	v.SetDefault("break_seconds", model.BreakTime)
	v.SetDefault("gemini_model", "")
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("log_level", "warn")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func loadSettings(v *viper.Viper, dir string) (Settings, error) {
	path := filepath.Join(dir, configFile)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := s.Machine().Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid timer durations: %w", err)
	}
	return s, nil
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".syncfocus"
	}
	return filepath.Join(home, ".syncfocus")
}

// Credentials is the persisted sign-in of the CLI user.
type Credentials struct {
	Server      string `yaml:"server"`
	Token       string `yaml:"token"`
	UserID      string `yaml:"user_id"`
	Email       string `yaml:"email"`
	DisplayName string `yaml:"display_name,omitempty"`
}

var errNotLoggedIn = errors.New("not logged in, run `syncfocus login` first")

func loadCredentials(dir string) (*Credentials, error) {
	data, err := os.ReadFile(filepath.Join(dir, credentialsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errNotLoggedIn
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	if creds.Token == "" {
		return nil, errNotLoggedIn
	}
	return &creds, nil
}

func saveCredentials(dir string, creds Credentials) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, credentialsFile), data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

func removeCredentials(dir string) error {
	err := os.Remove(filepath.Join(dir, credentialsFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}
