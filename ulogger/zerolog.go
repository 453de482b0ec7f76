package ulogger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type zeroLogger struct {
	logger  zerolog.Logger
	service string
	opts    *options
}

func newZeroLogger(service string, opts *options) *zeroLogger {
	if service == "" {
		service = "chaincore"
	}

	w := opts.writer
	if w == nil {
		w = os.Stdout
	}

	var base zerolog.Logger
	if opts.pretty {
		base = consoleLogger(w, service)
	} else {
		base = zerolog.New(w).With().Timestamp().Str("service", service).Logger()
	}

	z := &zeroLogger{logger: base, service: service, opts: opts}
	z.setLevel(opts.logLevel)

	return z
}

func consoleLogger(w io.Writer, service string) zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: w, NoColor: !isTerminal(), TimeFormat: time.RFC3339}

	output.FormatTimestamp = func(i interface{}) string {
		parsed, err := time.Parse(time.RFC3339, fmt.Sprintf("%v", i))
		if err != nil {
			return fmt.Sprintf("%v", i)
		}
		return parsed.Format("15:04:05")
	}

	output.FormatLevel = func(i interface{}) string {
		return fmt.Sprintf("| %-6s|", strings.ToUpper(fmt.Sprintf("%s", i)))
	}

	output.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("| %-16s| %s", service, i)
	}

	return zerolog.New(output).With().Timestamp().Logger()
}

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func (z *zeroLogger) setLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		z.logger = z.logger.Level(zerolog.DebugLevel)
	case "WARN":
		z.logger = z.logger.Level(zerolog.WarnLevel)
	case "ERROR":
		z.logger = z.logger.Level(zerolog.ErrorLevel)
	case "FATAL":
		z.logger = z.logger.Level(zerolog.FatalLevel)
	default:
		z.logger = z.logger.Level(zerolog.InfoLevel)
	}
}

func (z *zeroLogger) Debugf(format string, args ...interface{}) { z.logger.Debug().Msgf(format, args...) }
func (z *zeroLogger) Infof(format string, args ...interface{})  { z.logger.Info().Msgf(format, args...) }
func (z *zeroLogger) Warnf(format string, args ...interface{})  { z.logger.Warn().Msgf(format, args...) }
func (z *zeroLogger) Errorf(format string, args ...interface{}) { z.logger.Error().Msgf(format, args...) }
func (z *zeroLogger) Fatalf(format string, args ...interface{}) { z.logger.Fatal().Msgf(format, args...) }

func (z *zeroLogger) New(service string) Logger {
	child := *z
	child.service = service
	child.logger = z.logger.With().Str("component", service).Logger()
	return &child
}
