// Package logging provides structured logging for the Lighthouse hub.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same default fields (service, version) and the same format.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Component("tunnel").Info("device connected", "device_id", id)
//
// Never log device passwords, bearer tokens or refresh tokens.
package logging
