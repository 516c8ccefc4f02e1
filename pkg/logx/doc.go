// Package logx configures castbot's structured logging.
//
// Logger is a small value type on top of zerolog:
//   - console output stays readable (short timestamp + file:line caller)
//   - file output is JSON
//   - an optional Telegram sink forwards warnings to the admin chat (min-level + rate limit)
package logx
