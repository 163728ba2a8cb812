package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultSessionsIndex  = "last_message_at-index"
	defaultMessagesIndex  = "timestamp-index"
	defaultMaxMessage     = 4000
	defaultContextWindow  = 5
	defaultLLMMaxAttempts = 3
	defaultLocalAddr      = ":8000"
)

// Config is everything the entry points read from the environment.
type Config struct {
	SessionsTable string
	MessagesTable string
	SessionsIndex string
	MessagesIndex string
	ParamPrefix   string

	AllowedOrigins []string
	LogLevel       slog.Level
	OpenAIBaseURL  string

	MaxMessageLength int
	ContextMessages  int
	LLMMaxAttempts   int

	LocalAddr string
}

// Load reads the process environment after merging the given dotenv files
// (".env" when none are named). Variables already set win over file values
// and a missing file is not an error.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return fromEnv(os.Getenv)
}

func fromEnv(getenv func(string) string) (Config, error) {
	var errs []error
	required := func(key string) string {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
		return v
	}
	optional := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}
	positive := func(key string, def int) int {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("%s must be a non-negative integer, got %q", key, v))
			return def
		}
		return n
	}

	cfg := Config{
		SessionsTable:    required("SESSIONS_TABLE"),
		MessagesTable:    required("MESSAGES_TABLE"),
		ParamPrefix:      required("PARAM_PREFIX"),
		SessionsIndex:    optional("SESSIONS_INDEX", defaultSessionsIndex),
		MessagesIndex:    optional("MESSAGES_INDEX", defaultMessagesIndex),
		AllowedOrigins:   splitList(getenv("ALLOWED_ORIGINS")),
		OpenAIBaseURL:    optional("OPENAI_BASE_URL", ""),
		MaxMessageLength: positive("MAX_MESSAGE_LENGTH", defaultMaxMessage),
		ContextMessages:  positive("CONTEXT_MESSAGES", defaultContextWindow),
		LLMMaxAttempts:   positive("LLM_MAX_ATTEMPTS", defaultLLMMaxAttempts),
		LocalAddr:        optional("LOCAL_ADDR", defaultLocalAddr),
	}
	if cfg.MaxMessageLength == 0 {
		cfg.MaxMessageLength = defaultMaxMessage
	}
	if cfg.LLMMaxAttempts == 0 {
		cfg.LLMMaxAttempts = defaultLLMMaxAttempts
	}
	if lvl := strings.TrimSpace(getenv("LOG_LEVEL")); lvl != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(lvl)); err != nil {
			errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NewLogger returns a JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
