// Package logger provides structured logging for httpbridge using zerolog.
//
// It supports JSON and console output, level configuration and
// component-scoped loggers carrying structured fields.
//
// # Configuration
//
//	logger:
//	  level: "debug"
//	  format: "json"
//
// # Usage
//
//	log := logger.WithComponent("transport")
//	log.Debug("request completed", logger.Fields(logger.FieldStatus, 200))
package logger
