package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withConfigDir(t *testing.T, dir string) {
	t.Helper()
	orig := userConfigDir
	t.Cleanup(func() { userConfigDir = orig })
	userConfigDir = func() (string, error) { return dir, nil }
}

func TestLoadDefaults(t *testing.T) {
	withConfigDir(t, "/home/me/.config")

	var c Config
	c.LoadDefaults()

	want := Config{
		ServerEndpointAddr: "127.0.0.1:50051",
		Timeout:            10 * time.Second,
		TokenFile:          "/home/me/.config/rollcall/token",
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyEnv(t *testing.T) {
	c := Config{ServerEndpointAddr: "a:1", AccessToken: "old"}
	env := map[string]string{EnvAddr: "b:2"}

	c.ApplyEnv(func(k string) string { return env[k] })
	assert.Equal(t, "b:2", c.ServerEndpointAddr)
	assert.Equal(t, "old", c.AccessToken, "empty variable keeps the value")

	env[EnvToken] = "new"
	c.ApplyEnv(func(k string) string { return env[k] })
	assert.Equal(t, "new", c.AccessToken)
}

func TestLoadJSON_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"timeout":"3s"}`), 0o600))

	c := Config{ServerEndpointAddr: "keep:1", Timeout: time.Second, TokenFile: "/t"}
	require.NoError(t, c.LoadJSON(path))

	want := Config{ServerEndpointAddr: "keep:1", Timeout: 3 * time.Second, TokenFile: "/t"}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Fatalf("overlay mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadJSON_Errors(t *testing.T) {
	var c Config
	assert.Error(t, c.LoadJSON(filepath.Join(t.TempDir(), "missing.json")))

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"timeout":true}`), 0o600))
	assert.Error(t, c.LoadJSON(path))
}

func TestTokenFile_RoundTrip(t *testing.T) {
	c := Config{TokenFile: filepath.Join(t.TempDir(), "sub", "token")}

	require.NoError(t, c.LoadToken(), "missing file is fine")
	assert.Empty(t, c.AccessToken)

	require.NoError(t, c.SaveToken("tok-1"))
	info, err := os.Stat(c.TokenFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	other := Config{TokenFile: c.TokenFile}
	require.NoError(t, other.LoadToken())
	assert.Equal(t, "tok-1", other.AccessToken)

	explicit := Config{TokenFile: c.TokenFile, AccessToken: "flag"}
	require.NoError(t, explicit.LoadToken())
	assert.Equal(t, "flag", explicit.AccessToken)
}

func TestSaveToken_NoFile(t *testing.T) {
	var c Config
	assert.Error(t, c.SaveToken("x"))
}
