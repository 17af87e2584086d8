package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{"cmd",
				"-a", "127.0.0.1:9090", "-d", "db", "-s", "secret", "-t", "1", "-l", "debug",
				"-k", "redis", "-m", "transactional", "-n", "9", "-w", "4", "-r", "redis:6379",
				"-u", "user", "-p", "password", "-b", "bucket", "-g", "us-west-1", "-e", "http://endpoint",
				"-i", "people", "-q", "redis", "-A", "root@school.edu", "-P", "secret1",
			},
			expected: &Config{
				EndpointAddrGRPC:            "127.0.0.1:9090",
				DatabaseDSN:                 "db",
				SecretKey:                   "secret",
				AccessTokenValidityDuration: 1 * time.Minute,
				LogLevel:                    "debug",
				CounterBackend:              "redis",
				AllocationStrategy:          "transactional",
				AllocationMaxAttempts:       9,
				PadWidth:                    4,
				RedisAddr:                   "redis:6379",
				S3RootUser:                  "user",
				S3RootPassword:              "password",
				S3Bucket:                    "bucket",
				S3Region:                    "us-west-1",
				S3BaseEndpoint:              "http://endpoint",
				SearchEnabled:               true,
				SearchIndexName:             "people",
				MessagingBackend:            "redis",
				BootstrapAdminEmail:         "root@school.edu",
				BootstrapAdminPassword:      "secret1",
			},
		},
		{
			name:     "foreign flags are ignored",
			args:     []string{"cmd", "-config", "x.json", "-z", "1", "-k", "memory"},
			expected: &Config{CounterBackend: "memory"},
		},
		{
			name:        "bad int panics",
			args:        []string{"cmd", "-n", "many"},
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(tt.expected, config))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
