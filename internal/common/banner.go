package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and logs the effective run settings
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple("autobond", GetVersion())

	accounts := []string{}
	if creds, err := config.Credentials(); err == nil {
		for _, c := range creds {
			accounts = append(accounts, c.Masked())
		}
	}

	logger.Info().
		Str("version", GetFullVersion()).
		Str("driver", config.Browser.Driver).
		Str("browser", config.Browser.Kind).
		Bool("headless", config.Browser.Headless).
		Strs("accounts", accounts).
		Str("captcha_provider", config.Captcha.Provider).
		Msg("autobond starting")
}
