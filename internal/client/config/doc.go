// Package config loads settings for the rollcallctl command.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see (*Config).LoadJSON), passed with -c/--config.
//  3. Environment: ROLLCALL_ADDR, ROLLCALL_TOKEN.
//  4. Command-line flags, applied by the cli package.
//
// # JSON schema
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "timeout": "10s",
//	  "token_file": "/home/me/.config/rollcall/token"
//	}
package config
