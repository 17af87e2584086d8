package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/rollcall/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations
// accept "10s" or integer nanoseconds.
type JsonConfig struct {
	ServerEndpointAddr string         `json:"server_endpoint_addr"`
	Timeout            timex.Duration `json:"timeout"`
	TokenFile          string         `json:"token_file"`
}

// LoadJSON overlays c with the file at path. Keys missing from the file keep
// their current values.
func (c *Config) LoadJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	jc := JsonConfig{
		ServerEndpointAddr: c.ServerEndpointAddr,
		Timeout:            timex.Duration{Duration: c.Timeout},
		TokenFile:          c.TokenFile,
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	c.ServerEndpointAddr = jc.ServerEndpointAddr
	c.Timeout = jc.Timeout.Duration
	c.TokenFile = jc.TokenFile
	return nil
}
