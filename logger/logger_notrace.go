//go:build !debug_trace
// +build !debug_trace

// logger_notrace.go turns per-frame trace logging into no-ops unless built with the debug_trace tag.

package logger

import (
	"context"
)

// Tracef is just a shorthand for Logf(ctx, logger.LevelTrace, ...)
func Tracef(ctx context.Context, format string, args ...any) {}
