// Package client contains the CLI's connection to the GophChat backend.
//
// # Overview
//
// The package provides:
//  1. A gRPC implementation (see GRPCClient) of every ChatService call. It
//     injects the access token into unary calls and the Subscribe stream,
//     transparently refreshes an expired access token once per call, and
//     maps gRPC status codes to sentinel errors.
//  2. Local persistence bootstrap (InitDatabase, RunMigrations) for the
//     device database, an SQLite file with embedded goose migrations.
//
// # Error Handling
//
// Conditions are exposed as sentinel errors that callers match with
// errors.Is: ErrUnavailable, ErrUnauthorized, ErrRejected (its message
// carries the server's reason) and ErrLocalDataNotAvailable.
//
// # Concurrency
//
// GRPCClient is safe for concurrent use: the token pair is guarded by a
// mutex, so the realtime stream and foreground commands can share it.
package client
