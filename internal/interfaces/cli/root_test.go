package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

// runCLI executes fwatch with args and returns stdout.
func runCLI(t *testing.T, deps CommandDependencies, args ...string) (string, error) {
	t.Helper()
	t.Setenv("FWATCH_CONFIG", "")

	root := NewRootCommand()
	RegisterCommands(root, deps)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func decodeJSON(t *testing.T, out string, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

func TestNewRootCommand_Flags(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "fwatch", cmd.Use)

	for _, name := range []string{"config", "log-level", "output", "verbose", "timeout"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("output").DefValue)
	assert.Equal(t, "warn", cmd.PersistentFlags().Lookup("log-level").DefValue)
	assert.Equal(t, "c", cmd.PersistentFlags().Lookup("config").Shorthand)
}

func TestRegisterCommands(t *testing.T) {
	root := NewRootCommand()
	RegisterCommands(root, CommandDependencies{})

	names := map[string]bool{}
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{
		"holidays", "deadline", "classify", "ledger", "reconcile",
		"refresh", "recommend", "sweep", "migrate", "version",
	} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestRoot_RejectsUnknownOutputFormat(t *testing.T) {
	_, err := runCLI(t, CommandDependencies{}, "version", "-o", "yaml")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
}

func TestRoot_RejectsUnknownLogLevel(t *testing.T) {
	_, err := runCLI(t, CommandDependencies{}, "version", "--log-level", "loud")
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, CommandDependencies{}, "version", "-o", "json")
	require.NoError(t, err)

	var info BuildInfo
	decodeJSON(t, out, &info)
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, GitCommit, info.Commit)

	out, err = runCLI(t, CommandDependencies{}, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "version: "+Version)
}

func TestResolveConfigPath(t *testing.T) {
	t.Run("flag wins", func(t *testing.T) {
		t.Setenv("FWATCH_CONFIG", "/env/config.yaml")
		assert.Equal(t, "/flag/config.yaml", resolveConfigPath("/flag/config.yaml"))
	})

	t.Run("environment next", func(t *testing.T) {
		t.Setenv("FWATCH_CONFIG", "/env/config.yaml")
		assert.Equal(t, "/env/config.yaml", resolveConfigPath(""))
	})

	t.Run("default file when present", func(t *testing.T) {
		t.Setenv("FWATCH_CONFIG", "")
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "configs"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, defaultConfigPath), []byte("{}"), 0o644))

		wd, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(dir))
		t.Cleanup(func() { _ = os.Chdir(wd) })

		assert.Equal(t, defaultConfigPath, resolveConfigPath(""))
	})

	t.Run("nothing", func(t *testing.T) {
		t.Setenv("FWATCH_CONFIG", "")
		wd, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(t.TempDir()))
		t.Cleanup(func() { _ = os.Chdir(wd) })

		assert.Equal(t, "", resolveConfigPath(""))
	})
}

func TestGetCLIContext_Missing(t *testing.T) {
	_, err := GetCLIContext(&cobra.Command{})
	assert.Error(t, err)
}

func TestFormatTable(t *testing.T) {
	got := FormatTable([]string{"NAME", "DATE"}, [][]string{
		{"Independence Day", "2024-07-04"},
		{"Labor Day", "2024-09-02"},
	})
	want := "NAME              DATE\n" +
		"----------------  ----------\n" +
		"Independence Day  2024-07-04\n" +
		"Labor Day         2024-09-02\n"
	assert.Equal(t, want, got)
	assert.Empty(t, FormatTable(nil, nil))
}

func TestRecordString(t *testing.T) {
	r := record{rows: kv("case", "c-1", "empty", "", "classification", "upset_bid")}
	assert.Equal(t, "case:           c-1\nclassification: upset_bid\n", r.String())
}

func TestKV_DropsEmptyValues(t *testing.T) {
	assert.Equal(t, [][]string{{"a", "1"}}, kv("a", "1", "b", ""))
	assert.Empty(t, kv("dangling"))
}
