package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/autobond/internal/common"
)

func TestWriteVersion_Text(t *testing.T) {
	var buf bytes.Buffer
	info := buildInfo{Version: "1.2.0", Build: "b7", Commit: "abc123", GoVersion: "go1.25.3", Platform: "linux/amd64"}
	require.NoError(t, writeVersion(&buf, "text", info))

	out := buf.String()
	assert.Contains(t, out, "autobond "+common.GetFullVersion())
	assert.Contains(t, out, "go1.25.3")
	assert.Contains(t, out, "linux/amd64")
}

func TestWriteVersion_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeVersion(&buf, "yaml", currentBuild()))

	var decoded buildInfo
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, common.Version, decoded.Version)
	assert.Equal(t, common.GitCommit, decoded.Commit)
	assert.NotEmpty(t, decoded.Platform)
}

func TestWriteVersion_UnknownFormat(t *testing.T) {
	assert.Error(t, writeVersion(&bytes.Buffer{}, "json", currentBuild()))
}
