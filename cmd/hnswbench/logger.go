package main

import (
	"io"
	"log/slog"

	charmlog "github.com/charmbracelet/log"

	"github.com/hupe1980/hnswgraph"
)

// newLogger returns a JSON logger for machines or a colorized one for terminals.
func newLogger(w io.Writer, debug, json bool) *hnswgraph.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	if json {
		return hnswgraph.NewJSONLogger(w, level)
	}

	charmLevel := charmlog.InfoLevel
	if debug {
		charmLevel = charmlog.DebugLevel
	}
	return hnswgraph.NewLogger(charmlog.NewWithOptions(w, charmlog.Options{
		Level:           charmLevel,
		Prefix:          "hnswbench",
		ReportTimestamp: true,
	}))
}
