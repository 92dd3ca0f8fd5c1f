// Package logger provides a simple, thread-safe logging facility.
//
// The logger supports four levels: Debug, Info, Warn, and Error.
// Each log entry includes a timestamp, level, optional component tag, and message.
//
// # Basic Usage
//
// Using the default logger:
//
//	logger.Info("", "Server started")
//	logger.Info("worker-1", "Executing job")
//	logger.Error("pool", "Failed: %v", err)
//
// Creating a custom logger:
//
//	l := logger.New(os.Stderr, logger.LevelDebug)
//	l.Debug("worker-1", "Debug message")
//
// # Multiple Outputs
//
// Each output has its own minimum level, so a terminal can show only
// warnings while a file keeps the full INFO stream:
//
//	l := logger.New(os.Stderr, logger.LevelWarn)
//	l.AddOutput(file, logger.LevelInfo)
//
// # Log Levels
//
// Messages below an output's configured level are filtered for that output:
//   - LevelDebug: all messages
//   - LevelInfo: Info, Warn, Error
//   - LevelWarn: Warn, Error
//   - LevelError: Error only
//
// # Thread Safety
//
// All logging operations are protected by a mutex and safe for concurrent use.
package logger
