// Package logging provides structured process logging for expectd.
//
// This package wraps log/slog so every component logs the same way. It
// supports configurable levels, text or JSON output, and an optional rotating
// log file.
//
// # Usage
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatJSON,
//	    File:   &logging.FileConfig{Path: "/var/log/expectd.log"},
//	})
//
//	logger.Info("server started", "addr", ":1080")
//
// # Integration
//
// Components accept a *slog.Logger via a SetLogger setter and default to
// logging.Nop(). Domain events (received requests, matches, verifications)
// are recorded separately by pkg/requestlog; a requestlog.SlogSink mirrors
// them into a logger built here.
package logging
