package interfaces

import "context"

// CaptchaSolver reads the digits of a captcha image.
// The result is validated by the caller; solvers only report what they read.
type CaptchaSolver interface {
	Solve(ctx context.Context, png []byte) (string, error)
	Name() string
}
