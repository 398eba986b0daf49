// Package logging is the structured logger shared by the server, the admin
// CLI and the services. SlogLogger is the only implementation.
package logging

import "context"

// Logger writes leveled, structured records. Args are key/value pairs:
//
//	log.Info(ctx, "session rotated", "account_id", id)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)

	// Error is for failures the caller could not recover from, including
	// best-effort side effects (mail, receipt archive) that were dropped.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that adds args to every record.
	With(args ...any) Logger
}
