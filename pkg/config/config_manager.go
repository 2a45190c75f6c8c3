package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
)

const (
	DefaultModelName        = "gpt-4"
	DefaultMaxTokens        = 2048
	DefaultFrequencyPenalty = 0.2
	DefaultPresencePenalty  = 0.2
	DefaultLedgerPath       = "~/.storysprout/ledger.db"
	DefaultSMTPHost         = "smtp.gmail.com"
	DefaultSMTPPort         = 587
)

// ModelConfig is the model and credential configuration for the OpenAI backend.
type ModelConfig struct {
	APIKey           string
	BaseURL          string
	OrgID            string
	ModelName        string
	MaxTokens        int64
	FrequencyPenalty float64
	PresencePenalty  float64
	ModerationModel  string
	// Persistent keeps one growing conversation seeded with the system prompt
	// instead of sending a fresh instruction with every story.
	Persistent bool
}

// TestConfig switches the remote calls into their deterministic offline variants.
type TestConfig struct {
	Moderation        bool
	ModerationFlagged bool
	Story             bool
	Reason            string
	WaitTime          time.Duration
}

// LedgerConfig locates the local results database.
type LedgerConfig struct {
	Path string
}

// SMTPConfig holds the notification mail settings.
type SMTPConfig struct {
	SendEmail      bool
	Host           string
	Port           int
	SenderName     string
	SenderEmail    string
	SenderPassword string
	RecipientName  string
	RecipientEmail string
}

// Validate reports missing settings when sending is enabled.
func (c SMTPConfig) Validate() error {
	if !c.SendEmail {
		return nil
	}
	var missing []string
	if c.Host == "" {
		missing = append(missing, "SMTP_HOST")
	}
	if c.SenderEmail == "" {
		missing = append(missing, "SMTP_SENDER_EMAIL")
	}
	if c.SenderPassword == "" {
		missing = append(missing, "SMTP_SENDER_PASSWORD")
	}
	if c.RecipientEmail == "" {
		missing = append(missing, "SMTP_RECIPIENT_EMAIL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("email notifications enabled but %s not set", strings.Join(missing, ", "))
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid SMTP_PORT %d", c.Port)
	}
	return nil
}

// Manager provides configuration management functionality
type Manager interface {
	GetString(key string) (string, error)
	GetStringWithDefault(key, defaultValue string) string
	GetInt(key string) (int, error)
	GetIntWithDefault(key string, defaultValue int) int
	GetBoolWithDefault(key string, defaultValue bool) bool
	GetFloatWithDefault(key string, defaultValue float64) float64
	GetDurationWithDefault(key string, defaultValue time.Duration) time.Duration
	GetModelConfig() ModelConfig
	GetTestConfig() TestConfig
	GetLedgerConfig() (LedgerConfig, error)
	GetSMTPConfig() SMTPConfig
}

// DefaultManager reads configuration from the process environment.
type DefaultManager struct {
}

// NewConfigManager creates a new default config manager
func NewConfigManager() Manager {
	return &DefaultManager{}
}

// LoadDotEnv loads .env style files into the environment. Variables that are
// already set win, and missing files are skipped. With no arguments ".env" in
// the working directory is tried.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		path, err := homedir.Expand(file)
		if err != nil {
			return fmt.Errorf("expanding %s: %w", file, err)
		}
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return nil
}

// GetString gets a configuration value by key, returns error if not found
func (m *DefaultManager) GetString(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("configuration key %s not found", key)
	}
	return value, nil
}

// GetStringWithDefault gets a configuration value by key, returns default if not found
func (m *DefaultManager) GetStringWithDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

// GetInt gets an integer configuration value by key, returns error if not found or invalid
func (m *DefaultManager) GetInt(key string) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, fmt.Errorf("configuration key %s not found", key)
	}
	intValue, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("configuration key %s has invalid integer value: %s", key, value)
	}
	return intValue, nil
}

// GetIntWithDefault gets an integer configuration value by key, returns default if not found or invalid
func (m *DefaultManager) GetIntWithDefault(key string, defaultValue int) int {
	intValue, err := m.GetInt(key)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// GetBoolWithDefault gets a boolean configuration value by key, returns default if not found or invalid
func (m *DefaultManager) GetBoolWithDefault(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

// GetFloatWithDefault gets a float configuration value by key, returns default if not found or invalid
func (m *DefaultManager) GetFloatWithDefault(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatValue
}

// GetDurationWithDefault accepts Go durations ("1500ms") or whole seconds ("2").
func (m *DefaultManager) GetDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

// GetModelConfig returns the model configuration from environment variables or defaults
func (m *DefaultManager) GetModelConfig() ModelConfig {
	return ModelConfig{
		APIKey:           m.GetStringWithDefault("OPENAI_API_KEY", ""),
		BaseURL:          m.GetStringWithDefault("OPENAI_BASE_URL", ""),
		OrgID:            m.GetStringWithDefault("OPENAI_ORG_ID", ""),
		ModelName:        m.GetStringWithDefault("SPROUT_MODEL_NAME", DefaultModelName),
		MaxTokens:        int64(m.GetIntWithDefault("SPROUT_MAX_TOKENS", DefaultMaxTokens)),
		FrequencyPenalty: m.GetFloatWithDefault("SPROUT_FREQUENCY_PENALTY", DefaultFrequencyPenalty),
		PresencePenalty:  m.GetFloatWithDefault("SPROUT_PRESENCE_PENALTY", DefaultPresencePenalty),
		ModerationModel:  m.GetStringWithDefault("SPROUT_MODERATION_MODEL", ""),
		Persistent:       m.GetBoolWithDefault("SPROUT_PERSISTENT_CONVERSATION", false),
	}
}

// GetTestConfig returns the offline test switches. All are off by default.
func (m *DefaultManager) GetTestConfig() TestConfig {
	return TestConfig{
		Moderation:        m.GetBoolWithDefault("SPROUT_TEST_MODERATION", false),
		ModerationFlagged: m.GetBoolWithDefault("SPROUT_TEST_MODERATION_FLAGGED", false),
		Story:             m.GetBoolWithDefault("SPROUT_TEST_STORY", false),
		Reason:            m.GetStringWithDefault("SPROUT_TEST_REASON", "stop"),
		WaitTime:          m.GetDurationWithDefault("SPROUT_TEST_WAIT_TIME", time.Second),
	}
}

// GetLedgerConfig returns the ledger location with "~" expanded.
func (m *DefaultManager) GetLedgerConfig() (LedgerConfig, error) {
	path, err := homedir.Expand(m.GetStringWithDefault("SPROUT_LEDGER_PATH", DefaultLedgerPath))
	if err != nil {
		return LedgerConfig{}, fmt.Errorf("expanding ledger path: %w", err)
	}
	return LedgerConfig{Path: path}, nil
}

// GetSMTPConfig returns the notification mail settings.
func (m *DefaultManager) GetSMTPConfig() SMTPConfig {
	return SMTPConfig{
		SendEmail:      m.GetBoolWithDefault("SMTP_SEND_EMAIL", false),
		Host:           m.GetStringWithDefault("SMTP_HOST", DefaultSMTPHost),
		Port:           m.GetIntWithDefault("SMTP_PORT", DefaultSMTPPort),
		SenderName:     m.GetStringWithDefault("SMTP_SENDER_NAME", "Story Sprout"),
		SenderEmail:    m.GetStringWithDefault("SMTP_SENDER_EMAIL", ""),
		SenderPassword: m.GetStringWithDefault("SMTP_SENDER_PASSWORD", ""),
		RecipientName:  m.GetStringWithDefault("SMTP_RECIPIENT_NAME", ""),
		RecipientEmail: m.GetStringWithDefault("SMTP_RECIPIENT_EMAIL", ""),
	}
}
