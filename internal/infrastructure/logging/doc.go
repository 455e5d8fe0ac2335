// Package logging builds the structured logger shared by every fleet
// component.
//
// Records are produced by log/slog. Production nodes log JSON so the
// output can be shipped to a collector; text is available for local runs.
// Each record carries service=rsufleet and the build version, and
// components add their own name with Component:
//
//	logger := logging.New(cfg.Logging, version)
//	sweepLog := logger.Component("sweeper")
//	sweepLog.Info("devices marked offline", "count", 3)
//
// Configuration lives in the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Packages below this one never import it directly. They declare a small
// Logger interface (Debug/Info/Warn/Error) that *Logger satisfies, and fall
// back to a no-op logger until SetLogger is called.
//
// Never log broker passwords or InfluxDB tokens.
package logging
