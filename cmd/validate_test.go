package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runValidateIn(t *testing.T, dir string) (string, error) {
	t.Helper()
	prev := validateConfigPath
	validateConfigPath = dir
	defer func() { validateConfigPath = prev }()

	var out bytes.Buffer
	cmd := validateCmd
	cmd.SetOut(&out)
	err := runValidate(cmd, nil)
	return out.String(), err
}

func TestValidateCommandAcceptsGoodConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
connections:
  ingest:
    - id: broker
      connectionType: mqtt
      config:
        brokerUrl: tcp://broker:1883
`), 0o644))

	out, err := runValidateIn(t, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
	assert.Contains(t, out, "ingest connections:  1")
}

func TestValidateCommandChecksConnectionSchema(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
connections:
  ingest:
    - id: broker
      connectionType: mqtt
`), 0o644))

	out, err := runValidateIn(t, dir)
	require.Error(t, err)
	assert.Contains(t, out, "connection broker:")
}

func TestValidateCommandRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
logging:
  level: loud
`), 0o644))

	_, err := runValidateIn(t, dir)
	assert.Error(t, err)
}
