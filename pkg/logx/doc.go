// Package logx wraps zerolog behind a small structured-logging API.
//
// Loggers created from a Service stay live across Service.Apply calls, so
// log level and sinks can be changed at runtime (config hot reload) without
// re-plumbing loggers through the app.
package logx
