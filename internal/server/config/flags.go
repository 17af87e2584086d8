package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/rollcall/internal/flagx"
)

var knownFlags = []string{"-a", "-d", "-s", "-t", "-l", "-k", "-m", "-n", "-w", "-r", "-u", "-p", "-b", "-g", "-e", "-i", "-q", "-A", "-P"}

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-l string   log level
//	-k string   counter backend: postgres, redis or memory
//	-m string   allocation strategy: atomic or transactional
//	-n int      max transactional attempts
//	-w int      zero-padding width for new namespaces
//	-r string   Redis address
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-i string   search index name; a non-empty value enables the mirror
//	-q string   messaging backend: redis or log
//	-A string   bootstrap admin email
//	-P string   bootstrap admin password
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	fs.StringVar(&config.CounterBackend, "k", config.CounterBackend, "counter backend (postgres, redis, memory)")
	fs.StringVar(&config.AllocationStrategy, "m", config.AllocationStrategy, "allocation strategy (atomic, transactional)")
	fs.IntVar(&config.AllocationMaxAttempts, "n", config.AllocationMaxAttempts, "max transactional allocation attempts")
	fs.IntVar(&config.PadWidth, "w", config.PadWidth, "zero-padding width for new namespaces")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	indexName := fs.String("i", "", "search index name (enables the search mirror)")

	fs.StringVar(&config.MessagingBackend, "q", config.MessagingBackend, "messaging backend (redis, log)")
	fs.StringVar(&config.BootstrapAdminEmail, "A", config.BootstrapAdminEmail, "bootstrap admin email")
	fs.StringVar(&config.BootstrapAdminPassword, "P", config.BootstrapAdminPassword, "bootstrap admin password")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	if *indexName != "" {
		config.SearchIndexName = *indexName
		config.SearchEnabled = true
	}
}
