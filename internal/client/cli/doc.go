// Package cli implements rollcallctl, the operator command line for
// Rollcall: login, account creation, counter inspection and seeding, and
// document posting. Commands are built with cobra; the server is reached
// through the client package.
package cli
