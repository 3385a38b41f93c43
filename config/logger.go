package config

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// NewLogger builds the application logger. A nil writer logs to stderr.
func NewLogger(cfg LogConfig, w io.Writer) (*log.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	opts := log.Options{ReportTimestamp: true, ReportCaller: cfg.Caller}

	if cfg.Level != "" {
		level, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		opts.Level = level
	}

	switch cfg.Format {
	case "json":
		opts.Formatter = log.JSONFormatter
	case "logfmt":
		opts.Formatter = log.LogfmtFormatter
	default:
		opts.Formatter = log.TextFormatter
	}

	return log.NewWithOptions(w, opts), nil
}
