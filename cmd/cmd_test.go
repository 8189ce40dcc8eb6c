package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "logging:\n  level: error\n" +
		"storage:\n  path: " + filepath.Join(dir, "sak.db") + "\n  page_type: cli_test\n" +
		"transport:\n  url: stdout://\n" +
		"update:\n  auto_check: true\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&out)
	RootCmd.SetArgs(args)
	defer RootCmd.SetArgs(nil)
	err := RootCmd.Execute()
	return out.String(), err
}

func TestParseOnOff(t *testing.T) {
	for _, s := range []string{"on", "ON", "true", "yes", "1"} {
		v, err := parseOnOff(s)
		require.NoError(t, err)
		assert.True(t, v, s)
	}
	for _, s := range []string{"off", "false", "no", "0"} {
		v, err := parseOnOff(s)
		require.NoError(t, err)
		assert.False(t, v, s)
	}
	_, err := parseOnOff("maybe")
	assert.Error(t, err)
}

func TestParseItemID(t *testing.T) {
	id, err := parseItemID(" 1700000000000 ")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), id)

	_, err = parseItemID("abc")
	assert.Error(t, err)
}

func TestTimingCommands(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runRoot(t, "timing", "add", "--config", cfgPath, "-i", "500", "-f", "ascii", "-c", "hello", "AB")
	require.NoError(t, err)
	assert.Contains(t, out, "Added timed send")

	out, err = runRoot(t, "timing", "list", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "500ms")
	assert.Contains(t, out, "ascii")

	out, err = runRoot(t, "timing", "export", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "page_type: cli_test")
	assert.Contains(t, out, "payload: AB")
}

func TestUpdateAutoCommand(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runRoot(t, "update", "auto", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Auto check for update: on")

	out, err = runRoot(t, "update", "auto", "--config", cfgPath, "off")
	require.NoError(t, err)
	assert.Contains(t, out, "Auto check for update: off")

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "auto_check: false")
}

func TestServiceUnitCommand(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runRoot(t, "service", "unit", "--config", cfgPath, "--binary", "/usr/bin/sak-client")
	require.NoError(t, err)
	assert.Contains(t, out, "Type=notify")
	assert.Contains(t, out, "ExecStart=/usr/bin/sak-client start --config "+cfgPath)
}

func TestTimingExportToFile(t *testing.T) {
	cfgPath := writeTestConfig(t)
	_, err := runRoot(t, "timing", "add", "--config", cfgPath, "-f", "ascii", "hello")
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "items.yaml")
	_, err = runRoot(t, "timing", "export", "--config", cfgPath, out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "payload: hello")
}

func TestTimingExportReportsWriteFailure(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("/dev/full not available")
	}
	cfgPath := writeTestConfig(t)
	_, err := runRoot(t, "timing", "add", "--config", cfgPath, "-f", "ascii", "hello")
	require.NoError(t, err)

	_, err = runRoot(t, "timing", "export", "--config", cfgPath, "/dev/full")
	assert.Error(t, err)
}
