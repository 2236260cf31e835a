package commands

import (
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/blockberries/encounter"
)

// zeroLogger adapts zerolog to encounter.Logger. Key-value pairs become
// zerolog fields.
type zeroLogger struct {
	log zerolog.Logger
}

var _ encounter.Logger = zeroLogger{}

func newLogger(w io.Writer, level string) (zeroLogger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zeroLogger{}, err
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen, NoColor: true}
	return zeroLogger{log: zerolog.New(out).Level(lvl).With().Timestamp().Logger()}, nil
}

func (z zeroLogger) Debug(msg string, keysAndValues ...any) {
	z.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (z zeroLogger) Info(msg string, keysAndValues ...any) {
	z.log.Info().Fields(keysAndValues).Msg(msg)
}

func (z zeroLogger) Warn(msg string, keysAndValues ...any) {
	z.log.Warn().Fields(keysAndValues).Msg(msg)
}

func (z zeroLogger) Error(msg string, keysAndValues ...any) {
	z.log.Error().Fields(keysAndValues).Msg(msg)
}
