// Package snsctx carries per-call debugging switches through a context.
package snsctx

import (
	"context"
	"encoding/hex"
	"log/slog"
)

type ctxKey int

const verboseKey ctxKey = iota

// IsVerbose reports whether wire dumps were requested for this call.
func IsVerbose(ctx context.Context) bool {
	v, _ := ctx.Value(verboseKey).(bool)
	return v
}

func SetVerbose(ctx context.Context, value bool) context.Context {
	return context.WithValue(ctx, verboseKey, value)
}

// Dump logs a hex dump of data when ctx is verbose.
func Dump(ctx context.Context, msg string, data []byte) {
	if !IsVerbose(ctx) {
		return
	}
	slog.InfoContext(ctx, msg, "len", len(data), "dump", "\n"+hex.Dump(data))
}
