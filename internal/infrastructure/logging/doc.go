// Package logging provides structured logging for Trakbridge.
//
// It wraps log/slog with configuration-driven level filtering, output
// format selection (JSON or text), and default service/version fields.
//
// Components that need logging accept a narrow Logger interface and treat
// it as optional, so packages remain testable without log output.
package logging
