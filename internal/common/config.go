package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/autobond/internal/interfaces"
	"github.com/ternarybob/autobond/internal/models"
)

// Config represents the application configuration
type Config struct {
	Accounts AccountsConfig `toml:"accounts"`
	Browser  BrowserConfig  `toml:"browser"`
	Flow     FlowConfig     `toml:"flow"`
	Captcha  CaptchaConfig  `toml:"captcha"`
	Notify   NotifyConfig   `toml:"notify"`
	Storage  StorageConfig  `toml:"storage"`
	Schedule ScheduleConfig `toml:"schedule"`
	Logging  LoggingConfig  `toml:"logging"`
}

// AccountsConfig holds the brokerage accounts, "account:password" pairs separated by commas
type AccountsConfig struct {
	Users string `toml:"users"`
}

type BrowserConfig struct {
	Driver         string `toml:"driver" validate:"oneof=chromedp playwright"`
	Kind           string `toml:"kind" validate:"oneof=chromium chrome edge"`
	Headless       bool   `toml:"headless"`
	ViewportWidth  int    `toml:"viewport_width" validate:"gt=0"`
	ViewportHeight int    `toml:"viewport_height" validate:"gt=0"`
}

// FlowConfig bounds the purchase flow
type FlowConfig struct {
	FlowRetries    int    `toml:"flow_retries" validate:"gte=1"`
	CaptchaRetries int    `toml:"captcha_retries" validate:"gte=1"`
	TimeoutMS      int    `toml:"timeout_ms" validate:"gte=3000"`
	ScreenshotDir  string `toml:"screenshot_dir" validate:"required"`
	SiteProfile    string `toml:"site_profile"` // Optional TOML overriding the embedded site profile
}

// CaptchaConfig selects and tunes the captcha solver
type CaptchaConfig struct {
	Provider  string `toml:"provider" validate:"oneof=http gemini claude"`
	Endpoint  string `toml:"endpoint" validate:"required_if=Provider http"`
	Model     string `toml:"model"`
	APIKey    string `toml:"api_key"`
	RateLimit string `toml:"rate_limit"` // Minimum interval between LLM calls, e.g. "2s"
	Timeout   string `toml:"timeout"`    // Per-request timeout, e.g. "15s"
}

// NotifyConfig configures operator notification sinks
type NotifyConfig struct {
	PushPlusToken    string   `toml:"pushplus_token"`
	PushPlusEndpoint string   `toml:"pushplus_endpoint" validate:"required,url"`
	SMTPHost         string   `toml:"smtp_host"`
	SMTPPort         int      `toml:"smtp_port"`
	SMTPUsername     string   `toml:"smtp_username"`
	SMTPPassword     string   `toml:"smtp_password"`
	SMTPFrom         string   `toml:"smtp_from" validate:"omitempty,email"`
	SMTPFromName     string   `toml:"smtp_from_name"`
	SMTPUseTLS       bool     `toml:"smtp_use_tls"`
	EmailTo          []string `toml:"email_to" validate:"dive,email"`
}

type StorageConfig struct {
	Badger               BadgerConfig `toml:"badger"`
	HistoryRetentionDays int          `toml:"history_retention_days"` // 0 keeps history forever
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path string `toml:"path"` // Database directory path
}

type ScheduleConfig struct {
	Cron string `toml:"cron"` // Seconds-first cron expression
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=debug info warn error"`
	Output []string `toml:"output" validate:"dive,oneof=stdout console file"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Driver:         "chromedp",
			Kind:           string(interfaces.EngineChromium),
			Headless:       false,
			ViewportWidth:  1920,
			ViewportHeight: 1080,
		},
		Flow: FlowConfig{
			FlowRetries:    2,
			CaptchaRetries: 3,
			TimeoutMS:      30000,
			ScreenshotDir:  "artifacts/screenshots",
		},
		Captcha: CaptchaConfig{
			Provider:  "http",
			Endpoint:  "http://127.0.0.1:8000/captcha",
			RateLimit: "1s",
			Timeout:   "15s",
		},
		Notify: NotifyConfig{
			PushPlusEndpoint: "https://www.pushplus.plus/send",
			SMTPPort:         587,
			SMTPFromName:     "autobond",
			SMTPUseTLS:       true,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/autobond",
			},
			HistoryRetentionDays: 90,
		},
		Schedule: ScheduleConfig{
			Cron: "0 30 9 * * 1-5",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> .env -> env
// Later files override earlier files. CLI flags are applied afterwards with ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, models.ConfigError("failed to read config file %s: %v", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, models.ConfigError("failed to parse config file %s (file %d of %d): %v", path, i+1, len(paths), err)
		}
	}

	// .env never overrides variables already set in the process environment
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, models.ConfigError("failed to load .env: %v", err)
	}

	applyEnvOverrides(config)
	config.clamp()

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// Invalid numbers and booleans leave the current value in place.
func applyEnvOverrides(config *Config) {
	if users, ok := os.LookupEnv("USERS"); ok {
		config.Accounts.Users = users
	}
	if token := os.Getenv("PUSHPLUS_TOKEN"); token != "" {
		config.Notify.PushPlusToken = strings.TrimSpace(token)
	}
	if headless := os.Getenv("HEADLESS"); headless != "" {
		if b, ok := parseBool(headless); ok {
			config.Browser.Headless = b
		}
	}
	if kind := os.Getenv("BROWSER"); kind != "" {
		config.Browser.Kind = strings.ToLower(strings.TrimSpace(kind))
	}
	if driver := os.Getenv("AUTOBOND_DRIVER"); driver != "" {
		config.Browser.Driver = strings.ToLower(strings.TrimSpace(driver))
	}

	// Flow configuration
	setInt(&config.Flow.CaptchaRetries, "CAPTCHA_RETRIES")
	setInt(&config.Flow.FlowRetries, "FLOW_RETRIES")
	setInt(&config.Flow.TimeoutMS, "TIMEOUT_MS")
	if dir := os.Getenv("SCREENSHOT_DIR"); dir != "" {
		config.Flow.ScreenshotDir = strings.TrimSpace(dir)
	}
	if profile := os.Getenv("AUTOBOND_SITE_PROFILE"); profile != "" {
		config.Flow.SiteProfile = profile
	}

	// Captcha configuration
	if provider := os.Getenv("AUTOBOND_CAPTCHA_PROVIDER"); provider != "" {
		config.Captcha.Provider = strings.ToLower(provider)
	}
	if endpoint := os.Getenv("AUTOBOND_CAPTCHA_ENDPOINT"); endpoint != "" {
		config.Captcha.Endpoint = endpoint
	}
	if model := os.Getenv("AUTOBOND_CAPTCHA_MODEL"); model != "" {
		config.Captcha.Model = model
	}

	// SMTP configuration
	if host := os.Getenv("AUTOBOND_SMTP_HOST"); host != "" {
		config.Notify.SMTPHost = host
	}
	setInt(&config.Notify.SMTPPort, "AUTOBOND_SMTP_PORT")
	if username := os.Getenv("AUTOBOND_SMTP_USERNAME"); username != "" {
		config.Notify.SMTPUsername = username
	}
	if password := os.Getenv("AUTOBOND_SMTP_PASSWORD"); password != "" {
		config.Notify.SMTPPassword = password
	}
	if from := os.Getenv("AUTOBOND_SMTP_FROM"); from != "" {
		config.Notify.SMTPFrom = from
	}
	if to := os.Getenv("AUTOBOND_EMAIL_TO"); to != "" {
		config.Notify.EmailTo = splitList(to)
	}

	// Storage configuration
	if badgerPath := os.Getenv("AUTOBOND_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	setInt(&config.Storage.HistoryRetentionDays, "AUTOBOND_HISTORY_RETENTION_DAYS")

	if schedule := os.Getenv("AUTOBOND_SCHEDULE"); schedule != "" {
		config.Schedule.Cron = schedule
	}

	// Logging configuration
	if level := os.Getenv("AUTOBOND_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("AUTOBOND_LOG_OUTPUT"); output != "" {
		if outputs := splitList(output); len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, headless *bool, kind, driver string) {
	if headless != nil {
		config.Browser.Headless = *headless
	}
	if kind != "" {
		config.Browser.Kind = strings.ToLower(kind)
	}
	if driver != "" {
		config.Browser.Driver = strings.ToLower(driver)
	}
}

// clamp raises retries and timeout to their floors
func (c *Config) clamp() {
	if c.Flow.FlowRetries < 1 {
		c.Flow.FlowRetries = 1
	}
	if c.Flow.CaptchaRetries < 1 {
		c.Flow.CaptchaRetries = 1
	}
	if floor := int(models.MinTimeout / time.Millisecond); c.Flow.TimeoutMS < floor {
		c.Flow.TimeoutMS = floor
	}
}

// Validate checks the struct rules and parses the accounts.
// Every failure is an ErrConfiguration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return models.ConfigError("%v", err)
	}
	if _, err := ParseUsers(c.Accounts.Users); err != nil {
		return err
	}
	if _, err := c.Captcha.Durations(); err != nil {
		return err
	}
	return nil
}

// Credentials parses the configured accounts
func (c *Config) Credentials() ([]models.UserCredential, error) {
	return ParseUsers(c.Accounts.Users)
}

// RetryPolicy returns the flow bounds as a models.RetryPolicy
func (c *Config) RetryPolicy() models.RetryPolicy {
	return models.RetryPolicy{
		FlowRetries:    c.Flow.FlowRetries,
		CaptchaRetries: c.Flow.CaptchaRetries,
		Timeout:        time.Duration(c.Flow.TimeoutMS) * time.Millisecond,
	}
}

func (c *Config) Viewport() interfaces.Viewport {
	return interfaces.Viewport{Width: c.Browser.ViewportWidth, Height: c.Browser.ViewportHeight}
}

// HistoryRetention is the age after which run records are pruned; zero disables pruning
func (c *Config) HistoryRetention() time.Duration {
	if c.Storage.HistoryRetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.Storage.HistoryRetentionDays) * 24 * time.Hour
}

// SMTPConfigured reports whether the email sink has everything it needs
func (n NotifyConfig) SMTPConfigured() bool {
	return n.SMTPHost != "" && n.SMTPFrom != "" && len(n.EmailTo) > 0
}

// CaptchaDurations are the parsed captcha timing settings
type CaptchaDurations struct {
	RateLimit time.Duration
	Timeout   time.Duration
}

// Durations parses rate_limit and timeout
func (c CaptchaConfig) Durations() (CaptchaDurations, error) {
	var d CaptchaDurations
	var err error
	if c.RateLimit != "" {
		if d.RateLimit, err = time.ParseDuration(c.RateLimit); err != nil {
			return d, models.ConfigError("invalid captcha rate_limit '%s': %v", c.RateLimit, err)
		}
	}
	if c.Timeout != "" {
		if d.Timeout, err = time.ParseDuration(c.Timeout); err != nil {
			return d, models.ConfigError("invalid captcha timeout '%s': %v", c.Timeout, err)
		}
	}
	return d, nil
}

// ResolveAPIKey returns the solver API key: provider env var first, then the config value
func (c CaptchaConfig) ResolveAPIKey() (string, error) {
	var envNames []string
	switch c.Provider {
	case "claude":
		envNames = []string{"AUTOBOND_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"}
	case "gemini":
		envNames = []string{"AUTOBOND_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"}
	}
	for _, name := range envNames {
		if v := os.Getenv(name); v != "" {
			return v, nil
		}
	}
	if c.APIKey != "" {
		return c.APIKey, nil
	}
	return "", models.ConfigError("API key for captcha provider '%s' not found in environment or config", c.Provider)
}

func setInt(target *int, env string) {
	value := os.Getenv(env)
	if value == "" {
		return
	}
	if v, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		*target = v
	}
}

func parseBool(value string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// String renders the config as TOML with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.Accounts.Users != "" {
		if creds, err := ParseUsers(masked.Accounts.Users); err == nil {
			accounts := make([]string, len(creds))
			for i, cred := range creds {
				accounts[i] = cred.Masked() + ":***"
			}
			masked.Accounts.Users = strings.Join(accounts, ",")
		} else {
			masked.Accounts.Users = "***"
		}
	}
	if masked.Notify.PushPlusToken != "" {
		masked.Notify.PushPlusToken = "***"
	}
	if masked.Notify.SMTPPassword != "" {
		masked.Notify.SMTPPassword = "***"
	}
	if masked.Captcha.APIKey != "" {
		masked.Captcha.APIKey = "***"
	}
	data, err := toml.Marshal(masked)
	if err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return string(data)
}
