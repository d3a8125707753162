package logging

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/LavishGent/keyv/internal/types"
)

// LogrusLogger adapts a logrus logger or entry to types.Logger.
type LogrusLogger struct {
	logger logrus.FieldLogger
}

// Logrus wraps l. A nil l uses logrus.StandardLogger().
func Logrus(l logrus.FieldLogger) *LogrusLogger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &LogrusLogger{logger: l}
}

func (l *LogrusLogger) Debug(msg string, args ...any) { l.with(args).Debug(msg) }
func (l *LogrusLogger) Info(msg string, args ...any)  { l.with(args).Info(msg) }
func (l *LogrusLogger) Warn(msg string, args ...any)  { l.with(args).Warn(msg) }
func (l *LogrusLogger) Error(msg string, args ...any) { l.with(args).Error(msg) }

func (l *LogrusLogger) with(args []any) logrus.FieldLogger {
	if len(args) == 0 {
		return l.logger
	}
	return l.logger.WithFields(fields(args))
}

// fields pairs up args. A trailing key without a value is kept under "!BADKEY",
// as slog does.
func fields(args []any) logrus.Fields {
	out := make(logrus.Fields, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			out["!BADKEY"] = args[i]
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		out[key] = args[i+1]
	}
	return out
}

var _ types.Logger = (*LogrusLogger)(nil)
