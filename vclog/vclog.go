// Package vclog carries structured logging across every voicecore package
// and forwards it to the host-provided on_log callback, so the host always
// sees what logrus sees.
package vclog

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Level mirrors the host-visible on_log level enum.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Sink receives every log entry produced through this package, in addition
// to whatever output logrus itself is configured with.
type Sink func(level Level, message string)

var (
	mu   sync.RWMutex
	sink Sink
)

// SetSink installs the host callback. Passing nil disables forwarding.
func SetSink(s Sink) {
	mu.Lock()
	defer mu.Unlock()
	sink = s
}

func forward(level Level, message string) {
	mu.RLock()
	s := sink
	mu.RUnlock()
	if s != nil {
		s(level, message)
	}
}

// hook implements logrus.Hook and forwards every fired entry to the sink.
type hook struct{}

func (hook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (hook) Fire(entry *logrus.Entry) error {
	msg, err := entry.String()
	if err != nil {
		msg = entry.Message
	}
	forward(levelFromLogrus(entry.Level), msg)
	return nil
}

func levelFromLogrus(l logrus.Level) Level {
	switch l {
	case logrus.DebugLevel, logrus.TraceLevel:
		return LevelDebug
	case logrus.InfoLevel:
		return LevelInfo
	case logrus.WarnLevel:
		return LevelWarn
	default:
		return LevelError
	}
}

func init() {
	logrus.AddHook(hook{})
}

// Fields is a convenience alias to reduce import churn in call sites.
type Fields = logrus.Fields

// WithFields returns a logrus entry pre-populated with the given fields,
// matching the teacher's structured-logging call pattern throughout.
func WithFields(fields Fields) *logrus.Entry {
	return logrus.WithFields(fields)
}
