package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger
func Setup(level string, pretty bool) error {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}

	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
	return nil
}

// OperationLogger tags every entry of a single operation (a submission, a
// backend read) with the operation name and a unique id.
// A nil *OperationLogger discards everything.
type OperationLogger struct {
	id        string
	operation string
	logger    zerolog.Logger
	startTime time.Time
}

// StartOperation creates a logger for a new operation
func StartOperation(operation string) *OperationLogger {
	id := uuid.NewString()
	return &OperationLogger{
		id:        id,
		operation: operation,
		logger:    log.With().Str("op", operation).Str("op_id", id).Logger(),
		startTime: time.Now(),
	}
}

// ID returns the operation id
func (l *OperationLogger) ID() string {
	if l == nil {
		return ""
	}
	return l.id
}

// With returns a copy carrying an additional field
func (l *OperationLogger) With(key string, value interface{}) *OperationLogger {
	if l == nil {
		return nil
	}
	next := *l
	next.logger = l.logger.With().Interface(key, value).Logger()
	return &next
}

// Log writes an info entry
func (l *OperationLogger) Log(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.logger.Info().
		Dur("elapsed", time.Since(l.startTime).Round(time.Millisecond)).
		Msgf(format, args...)
}

// Debug writes a debug entry
func (l *OperationLogger) Debug(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.logger.Debug().Msgf(format, args...)
}

// LogError writes an error entry
func (l *OperationLogger) LogError(context string, err error) {
	if l == nil {
		return
	}
	l.logger.Error().Err(err).Msg(context)
}

// Finish logs the end of the operation with its total duration
func (l *OperationLogger) Finish(err error) {
	if l == nil {
		return
	}
	elapsed := time.Since(l.startTime)
	if err != nil {
		l.logger.Warn().Err(err).Dur("duration", elapsed).Msgf("%s failed", l.operation)
		return
	}
	l.logger.Info().Dur("duration", elapsed).Msgf("%s completed", l.operation)
}
