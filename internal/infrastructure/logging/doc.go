// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Every host component logs through this wrapper; sandbox runtime faults
// and dropped envelopes surface here and nowhere else, so a misbehaving
// plugin never reaches the end user.
//
// Example Usage:
//
//	logger := logging.NewDefault().Named("bridge")
//	logger.Info("capability dispatched", zap.String("type", env.Type))
//	logger.Error("privileged op failed", zap.Error(err))
package logging
