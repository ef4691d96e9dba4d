// Package logging provides structured logging for the bridge.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Size-rotated log files via lumberjack
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file, both
//	  file:
//	    path: "./logs/zbbridge.log"
//	    max_size: 10     # megabytes before rotation
//	    max_backups: 3
//	    max_age: 28      # days
//	    compress: true
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	defer logger.Close()
//	logger.Info("starting bridge", "topic", cfg.Bridge.Topic)
//	logger.Error("failed to connect", "error", err)
//
// # Security
//
// Never log secrets, tokens or passwords. The MQTT password and the InfluxDB
// token must never appear in log attributes.
package logging
