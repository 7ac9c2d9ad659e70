// Package logging builds the hclog logger shared by every component.
package logging

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/orrn/printpipe/internal/config"
)

// New returns a logger honouring the configured level and format. A nil
// writer means stderr.
func New(cfg config.LoggingConfig, w io.Writer) hclog.Logger {
	if w == nil {
		w = os.Stderr
	}

	level := hclog.LevelFromString(cfg.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       "printpipe",
		Level:      level,
		Output:     w,
		JSONFormat: cfg.Format == "json",
	})
}
