package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
log: {level: error}
terrain: {size: 51, cell_size: 2}
agents:
  - {name: mouse, position: [10, 10]}
  - {name: rat, position: [10, 10]}
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "envsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestValidateCmd(t *testing.T) {
	out, err := execute(t, "validate", "-c", writeConfig(t, testConfig))
	require.NoError(t, err)
	assert.Contains(t, out, "2 agents")

	_, err = execute(t, "validate", "-c", writeConfig(t, "simulation: {boundary: bounce}\n"))
	assert.Error(t, err)
}

func TestStepCmdIsDeterministic(t *testing.T) {
	path := writeConfig(t, testConfig)
	first, err := execute(t, "step", "-c", path, "-n", "10")
	require.NoError(t, err)
	second, err := execute(t, "step", "-c", path, "-n", "10")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(first, "tick 10 digest "))
	assert.Equal(t, first, second)
	assert.Contains(t, first, "mouse")
}

func TestStepCmdJSON(t *testing.T) {
	out, err := execute(t, "step", "--json", "-c", writeConfig(t, testConfig), "-n", "3")
	require.NoError(t, err)

	var result struct {
		Digest   string `json:"digest"`
		Snapshot struct {
			Tick uint64 `json:"tick"`
		} `json:"snapshot"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, uint64(3), result.Snapshot.Tick)
	assert.Len(t, result.Digest, 16)
}

func TestRunCmdStopsAfterDuration(t *testing.T) {
	_, err := execute(t, "run", "-c", writeConfig(t, testConfig), "--duration", "50ms")
	require.NoError(t, err)
}
