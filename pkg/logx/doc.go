// Package logx configures hwbot's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//
// Operator-facing error text is not a log sink concern here: cycle errors
// reach the Telegram chat through the notifier, which owns dedup.
package logx
