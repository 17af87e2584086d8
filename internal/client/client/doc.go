// Package client talks to the Rollcall gRPC service.
//
// GRPCClient manages the connection, attaches the access token to every
// call and maps gRPC status codes to the sentinel errors in errors.go so
// callers can match them with errors.Is.
package client
