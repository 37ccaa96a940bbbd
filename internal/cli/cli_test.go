package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	conf "github.com/bartek5186/pos2cloud/internal/config"
	"github.com/bartek5186/pos2cloud/internal/remote"
)

func dataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := conf.Defaults()
	cfg.Remote = conf.Remote{Driver: remote.DriverSQLite, DSN: filepath.Join(dir, "cloud.db")}
	cfg.Realtime.Driver = "none"
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Integrations = nil
	require.NoError(t, conf.Save(filepath.Join(dir, "config.json"), cfg))
	return dir
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand("test")
	for _, name := range []string{"run", "sync", "pull", "pending", "provision"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("dir"))
}

func TestProvisionThenSync(t *testing.T) {
	dir := dataDir(t)

	out, err := execute(t, "", "provision", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "schemat sqlite gotowy")

	out, err = execute(t, "", "sync", "--dir", dir, "--json")
	require.NoError(t, err)
	var res struct {
		Status  string `json:"status"`
		Pending int64  `json:"pending"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "success", res.Status)
	assert.Zero(t, res.Pending)

	out, err = execute(t, "", "pull", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "pobrano: 0 produktów")
}

func TestPendingOnFreshInstall(t *testing.T) {
	dir := dataDir(t)
	out, err := execute(t, "", "pending", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "oczekujące: 0, odłożone: 0")
}

func TestReplCommands(t *testing.T) {
	dir := dataDir(t)
	out, err := execute(t, "status\npaths\nfoo\nquit\n", "run", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "POS2CLOUD CLI test")
	assert.Contains(t, out, "Status: ZATRZYMANY")
	assert.Contains(t, out, "Config: "+filepath.Join(dir, "config.json"))
	assert.Contains(t, out, "Nieznana komenda")
}
