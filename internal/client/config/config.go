package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Environment variables read by ApplyEnv.
const (
	EnvAddr  = "ROLLCALL_ADDR"
	EnvToken = "ROLLCALL_TOKEN"
)

// Config holds runtime settings for rollcallctl.
//
// Fields:
//   - ServerEndpointAddr: host:port of the backend gRPC endpoint.
//   - AccessToken: token sent with every call; empty until login.
//   - TokenFile: where login stores the token and later calls read it.
//   - Timeout: bound for a single call.
type Config struct {
	ServerEndpointAddr string
	AccessToken        string
	TokenFile          string
	Timeout            time.Duration
}

// userConfigDir is a seam for tests.
var userConfigDir = os.UserConfigDir

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.Timeout = 10 * time.Second
	if dir, err := userConfigDir(); err == nil {
		c.TokenFile = filepath.Join(dir, "rollcall", "token")
	}
}

// ApplyEnv overlays values from the environment. Empty variables are
// ignored.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvAddr); v != "" {
		c.ServerEndpointAddr = v
	}
	if v := getenv(EnvToken); v != "" {
		c.AccessToken = v
	}
}

// LoadToken fills AccessToken from TokenFile when no token is set yet. A
// missing file is not an error.
func (c *Config) LoadToken() error {
	if c.AccessToken != "" || c.TokenFile == "" {
		return nil
	}
	data, err := os.ReadFile(c.TokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read token file: %w", err)
	}
	c.AccessToken = strings.TrimSpace(string(data))
	return nil
}

// SaveToken writes token to TokenFile, readable by the owner only.
func (c *Config) SaveToken(token string) error {
	if c.TokenFile == "" {
		return errors.New("no token file configured")
	}
	if err := os.MkdirAll(filepath.Dir(c.TokenFile), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(c.TokenFile, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	c.AccessToken = token
	return nil
}
