package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cenkalti/backoff/v5"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080" validate:"required"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"8m"` // 0 = none; otherwise must outlast a consultation run
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=trace debug info warn error fatal panic disabled"`

	// Remote analysis engine
	GeminiBaseURL   string        `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta" validate:"required,url"`
	GeminiUploadURL string        `env:"GEMINI_UPLOAD_URL" envDefault:"https://generativelanguage.googleapis.com/upload/v1beta/files" validate:"required,url"`
	GeminiModel     string        `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash-latest" validate:"required"`
	GeminiAPIKey    string        `env:"GEMINI_API_KEY"` // used when the form leaves the key blank
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"120s" validate:"gt=0"`

	// Readiness poll
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"1s" validate:"gt=0"`
	PollMaxInterval time.Duration `env:"POLL_MAX_INTERVAL" envDefault:"8s" validate:"gtefield=PollInterval"`
	PollMaxAttempts uint          `env:"POLL_MAX_ATTEMPTS" envDefault:"30"`
	PollMaxWait     time.Duration `env:"POLL_MAX_WAIT" envDefault:"3m" validate:"gte=0"`

	SourceLanguage string `env:"SOURCE_LANGUAGE" envDefault:"Tamil"`
	TargetLanguage string `env:"TARGET_LANGUAGE" envDefault:"English"`
	PracticeRegion string `env:"PRACTICE_REGION"` // blank = derived from SOURCE_LANGUAGE

	TempDir       string `env:"TEMP_DIR"`
	MaxAudioBytes int64  `env:"MAX_AUDIO_BYTES" envDefault:"52428800" validate:"gt=0"`
	StyleFile     string `env:"STYLE_FILE"`

	SessionTTL           time.Duration `env:"SESSION_TTL" envDefault:"8h" validate:"gte=0"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"5m"`
	SessionCookieSecure  bool          `env:"SESSION_COOKIE_SECURE" envDefault:"false"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile   string
	HTTPAddr  string
	LogLevel  string
	StyleFile string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.StyleFile != "" {
		cfg.StyleFile = overrides.StyleFile
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks the merged config, naming offending fields by env var.
func validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("env")
	})
	v.RegisterStructValidation(validateRunBudget, Config{})

	err := v.Struct(cfg)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s: failed %q (value %v)", fe.Field(), fe.ActualTag(), fe.Value())
		if fe.Param() != "" {
			msg += " want > " + fe.Param()
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// RunBudget is the longest one consultation run can take: upload and
// generation each bounded by RequestTimeout, plus the readiness poll.
func (c *Config) RunBudget() time.Duration {
	poll := c.PollMaxWait
	if poll <= 0 {
		poll = backoff.DefaultMaxElapsedTime
	}
	return 2*c.RequestTimeout + poll
}

// validateRunBudget rejects a write timeout that would cut a response off
// while the run behind it is still allowed to finish and store its note.
func validateRunBudget(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Config)
	if cfg.WriteTimeout == 0 {
		return
	}
	if budget := cfg.RunBudget(); cfg.WriteTimeout <= budget {
		sl.ReportError(cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", "WriteTimeout", "gt_run_budget", budget.String())
	}
}
