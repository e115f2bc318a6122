// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing for the --log-level flag,
//   - a redacting core so secrets (certificate passwords) never reach the output.
//
// Every pipeline step receives a context and extracts the logger from it, so a
// member's slug and the run identifier follow all of its log lines.
package logger
