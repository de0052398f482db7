package screenshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/autobond/internal/interfaces"
	"github.com/ternarybob/autobond/internal/services/browser/browsertest"
)

func TestFileName(t *testing.T) {
	at := time.Date(2024, 3, 5, 9, 7, 2, 0, time.Local)

	assert.Equal(t, "20240305-090702-5678-attempt1.png", FileName(at, "12345678", 1))
	assert.Equal(t, "20240305-090702-ab_1-attempt2.png", FileName(at, "xxab/1", 2))
	assert.Equal(t, "20240305-090702-42-attempt1.png", FileName(at, "42", 1))
	assert.Equal(t, "20240305-090702-user-attempt1.png", FileName(at, "", 1))
	assert.Equal(t, "20240305-090702-____-attempt3.png", FileName(at, "账户名称", 3))
}

func TestCapture_WritesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "shots")
	engine := browsertest.NewEngine()
	session, err := engine.NewSession(context.Background(), interfaces.Viewport{Width: 800, Height: 600})
	require.NoError(t, err)
	page, err := session.NewPage(context.Background())
	require.NoError(t, err)

	archiver := NewArchiver(dir, arbor.NewLogger())
	archiver.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local) }

	path := archiver.Capture(context.Background(), page, "880012345678", 2)

	assert.Equal(t, filepath.Join(dir, "20240102-030405-5678-attempt2.png"), path)
	_, err = os.Stat(path)
	assert.NoError(t, err)
	assert.Equal(t, []string{path}, engine.Screenshots())
}

type failingPage struct {
	interfaces.Page
}

func (failingPage) Screenshot(ctx context.Context, path string, fullPage bool) error {
	return errors.New("target crashed")
}

func TestCapture_SwallowsErrors(t *testing.T) {
	archiver := NewArchiver(t.TempDir(), arbor.NewLogger())

	assert.Empty(t, archiver.Capture(context.Background(), failingPage{}, "12345678", 1))
	assert.Empty(t, archiver.Capture(context.Background(), nil, "12345678", 1))
}
