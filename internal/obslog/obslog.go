// Package obslog wraps a *zap.Logger the way the teacher's
// internal/services/audit.AuditLogger wraps a file handle: one constructor,
// one package-level entry point injected into CoordinatorContext, instead
// of a package-level global logger. Structured logging replaces the
// teacher's bespoke ChainMetrics facade (see DESIGN.md "Dropped teacher
// dependencies").
package obslog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-profile zap.Logger; debug=true switches to a
// development profile (console encoding, debug level, caller info).
func New(debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		return cfg.Build()
	}
	return zap.NewProduction()
}

// RoundFields builds the structured fields every signing-round log line
// carries. Never pass a Share, Scalar, or any round secret (k_i, s_i) as a
// field value here — only IDs, round numbers, and error codes belong in
// logs (spec.md §9 "Ownership of shares").
func RoundFields(txID string, vaultID string, round int) []zap.Field {
	return []zap.Field{
		zap.String("tx_id", txID),
		zap.String("vault_id", vaultID),
		zap.Int("round", round),
	}
}
