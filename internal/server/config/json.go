package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/rollcall/internal/flagx"
	"github.com/dmitrijs2005/rollcall/internal/timex"
)

// JsonConfig mirrors Config for JSON files. Durations use timex.Duration so
// both "1m" and integer nanoseconds are accepted.
type JsonConfig struct {
	EndpointAddrGRPC            string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                 string         `json:"database_dsn"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	LogLevel                    string         `json:"log_level"`
	ShutdownTimeout             timex.Duration `json:"shutdown_timeout"`

	CounterBackend        string         `json:"counter_backend"`
	AllocationStrategy    string         `json:"allocation_strategy"`
	AllocationMaxAttempts int            `json:"allocation_max_attempts"`
	AllocationBackoff     timex.Duration `json:"allocation_backoff"`
	PadWidth              int            `json:"pad_width"`

	RedisAddr      string `json:"redis_addr"`
	RedisPassword  string `json:"redis_password"`
	RedisDB        int    `json:"redis_db"`
	RedisKeyPrefix string `json:"redis_key_prefix"`

	SearchEnabled   bool   `json:"search_enabled"`
	SearchIndexName string `json:"search_index_name"`
	S3RootUser      string `json:"s3_root_user"`
	S3RootPassword  string `json:"s3_root_password"`
	S3Bucket        string `json:"s3_bucket"`
	S3Region        string `json:"s3_region"`
	S3BaseEndpoint  string `json:"s3_base_endpoint"`

	MessagingBackend  string  `json:"messaging_backend"`
	PushChannelPrefix string  `json:"push_channel_prefix"`
	PushRatePerSecond float64 `json:"push_rate_per_second"`
	PushBurst         int     `json:"push_burst"`

	BootstrapAdminEmail    string `json:"bootstrap_admin_email"`
	BootstrapAdminPassword string `json:"bootstrap_admin_password"`

	Profiles map[string]RoleProfile `json:"profiles"`
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		EndpointAddrGRPC:            c.EndpointAddrGRPC,
		DatabaseDSN:                 c.DatabaseDSN,
		SecretKey:                   c.SecretKey,
		AccessTokenValidityDuration: timex.Duration{Duration: c.AccessTokenValidityDuration},
		LogLevel:                    c.LogLevel,
		ShutdownTimeout:             timex.Duration{Duration: c.ShutdownTimeout},
		CounterBackend:              c.CounterBackend,
		AllocationStrategy:          c.AllocationStrategy,
		AllocationMaxAttempts:       c.AllocationMaxAttempts,
		AllocationBackoff:           timex.Duration{Duration: c.AllocationBackoff},
		PadWidth:                    c.PadWidth,
		RedisAddr:                   c.RedisAddr,
		RedisPassword:               c.RedisPassword,
		RedisDB:                     c.RedisDB,
		RedisKeyPrefix:              c.RedisKeyPrefix,
		SearchEnabled:               c.SearchEnabled,
		SearchIndexName:             c.SearchIndexName,
		S3RootUser:                  c.S3RootUser,
		S3RootPassword:              c.S3RootPassword,
		S3Bucket:                    c.S3Bucket,
		S3Region:                    c.S3Region,
		S3BaseEndpoint:              c.S3BaseEndpoint,
		MessagingBackend:            c.MessagingBackend,
		PushChannelPrefix:           c.PushChannelPrefix,
		PushRatePerSecond:           c.PushRatePerSecond,
		PushBurst:                   c.PushBurst,
		BootstrapAdminEmail:         c.BootstrapAdminEmail,
		BootstrapAdminPassword:      c.BootstrapAdminPassword,
	}
}

func (j *JsonConfig) apply(c *Config) {
	c.EndpointAddrGRPC = j.EndpointAddrGRPC
	c.DatabaseDSN = j.DatabaseDSN
	c.SecretKey = j.SecretKey
	c.AccessTokenValidityDuration = j.AccessTokenValidityDuration.Duration
	c.LogLevel = j.LogLevel
	c.ShutdownTimeout = j.ShutdownTimeout.Duration
	c.CounterBackend = j.CounterBackend
	c.AllocationStrategy = j.AllocationStrategy
	c.AllocationMaxAttempts = j.AllocationMaxAttempts
	c.AllocationBackoff = j.AllocationBackoff.Duration
	c.PadWidth = j.PadWidth
	c.RedisAddr = j.RedisAddr
	c.RedisPassword = j.RedisPassword
	c.RedisDB = j.RedisDB
	c.RedisKeyPrefix = j.RedisKeyPrefix
	c.SearchEnabled = j.SearchEnabled
	c.SearchIndexName = j.SearchIndexName
	c.S3RootUser = j.S3RootUser
	c.S3RootPassword = j.S3RootPassword
	c.S3Bucket = j.S3Bucket
	c.S3Region = j.S3Region
	c.S3BaseEndpoint = j.S3BaseEndpoint
	c.MessagingBackend = j.MessagingBackend
	c.PushChannelPrefix = j.PushChannelPrefix
	c.PushRatePerSecond = j.PushRatePerSecond
	c.PushBurst = j.PushBurst
	c.BootstrapAdminEmail = j.BootstrapAdminEmail
	c.BootstrapAdminPassword = j.BootstrapAdminPassword
	if j.Profiles != nil {
		c.Profiles = j.Profiles
	}
}

// parseJson overlays values from the JSON file named by -c/-config onto
// config. Keys missing from the file keep their current values; a
// "profiles" object replaces the profile set as a whole. An unreadable or
// malformed file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFile(os.Args[1:])

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}
	c.apply(config)
}
