// Package config loads service settings from an optional YAML file, an
// optional .env file, and the process environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr              string        `yaml:"addr"`
	UploadsDir        string        `yaml:"uploads_dir"`
	MaxUploadBytes    int64         `yaml:"max_upload_bytes"`
	SupportedFormats  []string      `yaml:"supported_formats"`
	DatabaseURL       string        `yaml:"database_url"`
	DefaultProjectKey string        `yaml:"default_project_key"`
	Workers           int           `yaml:"workers"`
	QueueSize         int           `yaml:"queue_size"`
	TranscribeTimeout time.Duration `yaml:"transcribe_timeout"`
	ExtractTimeout    time.Duration `yaml:"extract_timeout"`
	TicketsTimeout    time.Duration `yaml:"tickets_timeout"`

	Log     LogConfig     `yaml:"log"`
	Whisper WhisperConfig `yaml:"whisper"`
	LLM     LLMConfig     `yaml:"llm"`
	Jira    JiraConfig    `yaml:"jira"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// WhisperConfig points at an OpenAI-compatible transcription endpoint.
type WhisperConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	Model       string `yaml:"model"`
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
}

// LLMConfig points at an OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
}

type JiraConfig struct {
	Server   string `yaml:"server"`
	Email    string `yaml:"email"`
	APIToken string `yaml:"api_token"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Addr:              ":8080",
		UploadsDir:        "uploads",
		MaxUploadBytes:    500 * 1024 * 1024,
		SupportedFormats:  []string{"mp3", "wav", "mp4", "m4a", "webm"},
		DefaultProjectKey: "PROJ",
		Workers:           4,
		QueueSize:         64,
		TranscribeTimeout: 30 * time.Minute,
		ExtractTimeout:    5 * time.Minute,
		TicketsTimeout:    5 * time.Minute,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Whisper: WhisperConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "whisper-1",
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
		},
	}
}

// Load builds the configuration. A missing .env or CONFIG_FILE is not an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Addr = envOrDefault("APP_ADDR", c.Addr)
	c.UploadsDir = envOrDefault("UPLOADS_DIR", c.UploadsDir)
	c.DatabaseURL = envOrDefault("DATABASE_URL", c.DatabaseURL)
	c.DefaultProjectKey = envOrDefault("DEFAULT_PROJECT_KEY", c.DefaultProjectKey)
	if v := os.Getenv("SUPPORTED_FORMATS"); v != "" {
		c.SupportedFormats = splitList(v)
	}

	c.Log.Level = envOrDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOrDefault("LOG_FORMAT", c.Log.Format)

	c.Whisper.BaseURL = envOrDefault("WHISPER_BASE_URL", c.Whisper.BaseURL)
	c.Whisper.APIKey = envOrDefault("WHISPER_API_KEY", envOrDefault("OPENAI_API_KEY", c.Whisper.APIKey))
	c.Whisper.Model = envOrDefault("WHISPER_MODEL", c.Whisper.Model)
	c.Whisper.FFmpegPath = envOrDefault("FFMPEG_PATH", c.Whisper.FFmpegPath)
	c.Whisper.FFprobePath = envOrDefault("FFPROBE_PATH", c.Whisper.FFprobePath)

	c.LLM.BaseURL = envOrDefault("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.APIKey = envOrDefault("LLM_API_KEY", envOrDefault("OPENAI_API_KEY", c.LLM.APIKey))
	c.LLM.Model = envOrDefault("LLM_MODEL", c.LLM.Model)

	c.Jira.Server = envOrDefault("JIRA_SERVER", c.Jira.Server)
	c.Jira.Email = envOrDefault("JIRA_EMAIL", c.Jira.Email)
	c.Jira.APIToken = envOrDefault("JIRA_API_TOKEN", c.Jira.APIToken)

	var err error
	if c.MaxUploadBytes, err = envInt64("MAX_UPLOAD_BYTES", c.MaxUploadBytes); err != nil {
		return err
	}
	if c.Workers, err = envInt("WORKER_COUNT", c.Workers); err != nil {
		return err
	}
	if c.QueueSize, err = envInt("QUEUE_SIZE", c.QueueSize); err != nil {
		return err
	}
	if c.TranscribeTimeout, err = envDuration("TRANSCRIBE_TIMEOUT", c.TranscribeTimeout); err != nil {
		return err
	}
	if c.ExtractTimeout, err = envDuration("EXTRACT_TIMEOUT", c.ExtractTimeout); err != nil {
		return err
	}
	if c.TicketsTimeout, err = envDuration("TICKETS_TIMEOUT", c.TicketsTimeout); err != nil {
		return err
	}
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		t, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return fmt.Errorf("LLM_TEMPERATURE: %w", err)
		}
		c.LLM.Temperature = float32(t)
	}
	return nil
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0, got %d", c.Workers)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be > 0, got %d", c.QueueSize)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be > 0, got %d", c.MaxUploadBytes)
	}
	if len(c.SupportedFormats) == 0 {
		return errors.New("at least one supported format is required")
	}
	if strings.TrimSpace(c.DefaultProjectKey) == "" {
		return errors.New("default project key is required")
	}
	return nil
}

// SlogLevel maps Level to a slog level, defaulting to info.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func envInt64(key string, fallback int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, strings.TrimPrefix(part, "."))
		}
	}
	return out
}
