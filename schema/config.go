package schema

import "time"

// DefaultFlushInterval bounds buffer mutation frequency during streaming.
// Roughly one display refresh at 60Hz.
const DefaultFlushInterval = 16 * time.Millisecond

// DefaultSettleDelay is the pause that lets the buffer host observe fully
// applied text before formatting, and post-format line numbers before the
// cursor is restored.
const DefaultSettleDelay = 50 * time.Millisecond

// DefaultQuotaUses is the per-visitor generation allowance.
const DefaultQuotaUses = 15

// SessionConfig defines limits and pacing for the session controller.
type SessionConfig struct {
	// FlushInterval is the coalesce tick for the throttled buffer sink.
	FlushInterval time.Duration
	// SettleDelay separates buffer mutation from formatting and formatting
	// from cursor restoration.
	SettleDelay time.Duration
	// HistoryLimit caps the chat history sent with each request.
	HistoryLimit int
}

// NormalizeSessionConfig applies defaults to the config.
func NormalizeSessionConfig(cfg SessionConfig) SessionConfig {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	} else if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.HistoryLimit <= 0 || cfg.HistoryLimit > MaxMessageHistory {
		cfg.HistoryLimit = MaxMessageHistory
	}
	return cfg
}
