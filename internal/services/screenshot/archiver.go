// Package screenshot captures diagnostic page images when a flow attempt fails.
package screenshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/autobond/internal/interfaces"
)

const timeLayout = "20060102-150405"

var unsafeChars = regexp.MustCompile(`[^0-9A-Za-z_-]`)

// Archiver writes full-page screenshots into dir
type Archiver struct {
	dir    string
	logger arbor.ILogger
	now    func() time.Time
}

func NewArchiver(dir string, logger arbor.ILogger) *Archiver {
	return &Archiver{dir: dir, logger: logger, now: time.Now}
}

// FileName is {yyyyMMdd-HHmmss}-{account suffix}-attempt{n}.png
func FileName(at time.Time, account string, attempt int) string {
	return fmt.Sprintf("%s-%s-attempt%d.png", at.Format(timeLayout), accountSuffix(account), attempt)
}

// accountSuffix is the last 4 characters of the account with unsafe characters replaced
func accountSuffix(account string) string {
	runes := []rune(account)
	if len(runes) > 4 {
		runes = runes[len(runes)-4:]
	}
	suffix := unsafeChars.ReplaceAllString(string(runes), "_")
	if suffix == "" {
		return "user"
	}
	return suffix
}

// Capture saves a screenshot of page and returns its path.
// Failures are logged and swallowed so the caller's own error stays primary; the path is then empty.
func (a *Archiver) Capture(ctx context.Context, page interfaces.Page, account string, attempt int) string {
	if page == nil {
		return ""
	}
	if err := os.MkdirAll(a.dir, 0755); err != nil {
		a.logger.Warn().Err(err).Str("dir", a.dir).Msg("Failed to create screenshot directory")
		return ""
	}

	path := filepath.Join(a.dir, FileName(a.now(), account, attempt))
	if err := page.Screenshot(ctx, path, true); err != nil {
		a.logger.Warn().Err(err).Str("path", path).Msg("Failed to capture failure screenshot")
		return ""
	}

	a.logger.Info().Str("path", path).Int("attempt", attempt).Msg("Failure screenshot saved")
	return path
}
