// Package logging provides a structured logging system for unshub with
// unified log handling and flexible output formatting.
//
// This package is built on Go's standard slog package and provides consistent
// logging behavior with structured output and level filtering.
//
// # Usage
//
//	import "unshub/pkg/logging"
//
//	// Initialize with Info level logging to stdout
//	logging.InitForCLI(logging.LevelInfo, os.Stdout)
//
//	// Log messages
//	logging.Info("Bootstrap", "Application starting up")
//	logging.Debug("Config", "Loaded configuration from %s", configPath)
//	logging.Warn("Cache", "L2 tier over capacity, evicting")
//	logging.Error("ConnectionManager", err, "Failed to start connection %s", id)
//
// # Subsystem Organization
//
// Logs are organized by subsystem to enable filtering and categorization:
//
//   - **Bootstrap**: Application initialization and startup
//   - **Config**: Configuration loading and validation
//   - **Bus**: In-process event distribution
//   - **Hierarchy**: Hierarchy and namespace registry operations
//   - **Cache**: Multi-level cache maintenance
//   - **ConnectionManager**: Shared connection lifecycle
//   - **QueueProcessor**: Parallel lane processing
//   - **AutoMapper**: Topic discovery and placement
//   - **Publisher**: Change-detected, rate-limited output
//
// # Thread Safety
//
// The logging system is fully thread-safe: the active logger is held behind
// an atomic pointer and slog handlers serialize their own writes.
package logging
