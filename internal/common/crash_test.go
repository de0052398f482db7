package common

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCrashFile(t *testing.T) {
	prev := CrashLogDir
	defer func() { CrashLogDir = prev }()

	InstallCrashHandler(t.TempDir())
	path := WriteCrashFile("nil pointer dereference", "goroutine 1 [running]:\nmain.main()")

	require.NotEmpty(t, path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	report := string(data)
	assert.True(t, strings.HasPrefix(report, "=== AUTOBOND CRASH REPORT ==="))
	assert.Contains(t, report, "nil pointer dereference")
	assert.Contains(t, report, "main.main()")
	assert.Contains(t, report, "=== ALL GOROUTINES ===")
}
