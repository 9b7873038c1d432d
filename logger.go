package postgate

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// NewLogger returns a JSON zerolog logger writing to w at the given level.
// An unknown level falls back to info.
func NewLogger(w io.Writer, level string) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().
		Timestamp().
		Str("service", "postgate").
		Logger()
}
