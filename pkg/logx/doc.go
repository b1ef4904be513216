// Package logx configures fsubbot's structured logging.
//
// A small wrapper (logx.Logger) over zerolog keeps console output readable,
// writes JSON lines to a rotated file (lumberjack) and optionally mirrors
// warnings to a Telegram chat with rate limiting.
package logx
