package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/autobond/internal/models"
)

var envNames = []string{
	"USERS", "PUSHPLUS_TOKEN", "HEADLESS", "BROWSER", "AUTOBOND_DRIVER",
	"CAPTCHA_RETRIES", "FLOW_RETRIES", "TIMEOUT_MS", "SCREENSHOT_DIR",
	"AUTOBOND_CAPTCHA_PROVIDER", "AUTOBOND_CAPTCHA_ENDPOINT", "AUTOBOND_SCHEDULE",
	"AUTOBOND_LOG_LEVEL", "AUTOBOND_LOG_OUTPUT", "AUTOBOND_EMAIL_TO",
}

// clearEnv unsets every override for the duration of the test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range envNames {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "autobond.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, models.DefaultRetryPolicy(), config.RetryPolicy())
	assert.Equal(t, "chromium", config.Browser.Kind)
	assert.Equal(t, 1920, config.Viewport().Width)
	assert.Equal(t, 90*24*time.Hour, config.HistoryRetention())
}

func TestLoadFromFiles_LaterFilesWin(t *testing.T) {
	clearEnv(t)
	first := writeConfig(t, `
[accounts]
users = "a1:p1"

[flow]
flow_retries = 4
captcha_retries = 5
`)
	second := writeConfig(t, `
[flow]
flow_retries = 1

[browser]
kind = "edge"
headless = true
`)

	config, err := LoadFromFiles(first, second)
	require.NoError(t, err)

	assert.Equal(t, "a1:p1", config.Accounts.Users)
	assert.Equal(t, 1, config.Flow.FlowRetries)
	assert.Equal(t, 5, config.Flow.CaptchaRetries)
	assert.Equal(t, "edge", config.Browser.Kind)
	assert.True(t, config.Browser.Headless)
	assert.NoError(t, config.Validate())
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	clearEnv(t)

	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "missing.toml"))

	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestLoadFromFiles_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("USERS", "a1:p1, a2:p2")
	t.Setenv("PUSHPLUS_TOKEN", " tok ")
	t.Setenv("HEADLESS", "true")
	t.Setenv("BROWSER", "Chrome")
	t.Setenv("CAPTCHA_RETRIES", "5")
	t.Setenv("FLOW_RETRIES", "abc")
	t.Setenv("TIMEOUT_MS", "1000")
	t.Setenv("SCREENSHOT_DIR", "shots")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, "tok", config.Notify.PushPlusToken)
	assert.True(t, config.Browser.Headless)
	assert.Equal(t, "chrome", config.Browser.Kind)
	assert.Equal(t, 5, config.Flow.CaptchaRetries)
	assert.Equal(t, 2, config.Flow.FlowRetries, "invalid integer keeps the default")
	assert.Equal(t, 3000, config.Flow.TimeoutMS, "timeout is clamped to its floor")
	assert.Equal(t, "shots", config.Flow.ScreenshotDir)

	creds, err := config.Credentials()
	require.NoError(t, err)
	assert.Len(t, creds, 2)
}

func TestLoadFromFiles_RetriesClamped(t *testing.T) {
	clearEnv(t)
	t.Setenv("CAPTCHA_RETRIES", "0")
	t.Setenv("FLOW_RETRIES", "-3")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 1, config.Flow.CaptchaRetries)
	assert.Equal(t, 1, config.Flow.FlowRetries)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()
	headless := true

	ApplyFlagOverrides(config, &headless, "EDGE", "playwright")

	assert.True(t, config.Browser.Headless)
	assert.Equal(t, "edge", config.Browser.Kind)
	assert.Equal(t, "playwright", config.Browser.Driver)

	ApplyFlagOverrides(config, nil, "", "")
	assert.True(t, config.Browser.Headless)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := NewDefaultConfig()
		c.Accounts.Users = "a1:p1"
		return c
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"no users":         func(c *Config) { c.Accounts.Users = "" },
		"malformed user":   func(c *Config) { c.Accounts.Users = "a1-p1" },
		"unknown kind":     func(c *Config) { c.Browser.Kind = "firefox" },
		"unknown driver":   func(c *Config) { c.Browser.Driver = "selenium" },
		"unknown provider": func(c *Config) { c.Captcha.Provider = "tesseract" },
		"http no endpoint": func(c *Config) { c.Captcha.Endpoint = "" },
		"bad rate limit":   func(c *Config) { c.Captcha.RateLimit = "soon" },
		"bad recipient":    func(c *Config) { c.Notify.EmailTo = []string{"not-an-address"} },
		"bad log level":    func(c *Config) { c.Logging.Level = "verbose" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.ErrorIs(t, c.Validate(), models.ErrConfiguration)
		})
	}
}

func TestCaptchaConfig_ResolveAPIKey(t *testing.T) {
	t.Setenv("AUTOBOND_CLAUDE_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	key, err := CaptchaConfig{Provider: "claude", APIKey: "file-key"}.ResolveAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "env-key", key)

	t.Setenv("ANTHROPIC_API_KEY", "")
	key, err = CaptchaConfig{Provider: "claude", APIKey: "file-key"}.ResolveAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "file-key", key)

	_, err = CaptchaConfig{Provider: "claude"}.ResolveAPIKey()
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestConfigString_MasksSecrets(t *testing.T) {
	c := NewDefaultConfig()
	c.Accounts.Users = "880012345678:hunter2"
	c.Notify.PushPlusToken = "secret-token"

	out := c.String()

	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "secret-token")
	assert.Contains(t, out, "********5678:***")
}
