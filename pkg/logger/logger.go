package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus to provide structured, service-scoped logging.
type Logger struct {
	entry *logrus.Entry
}

// Init configures the global logrus settings. JSON output keeps the logs
// machine-collectable.
func Init(level logrus.Level) {
	logrus.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(level)
}

// New creates a Logger pre-tagged with the service name.
func New(serviceName string) *Logger {
	return &Logger{
		entry: logrus.WithField("service_name", serviceName),
	}
}

// WithField returns a Logger with an extra structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithError returns a Logger carrying the error as a structured field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithField("error", err.Error())}
}

// Info records an info-level message.
func (l *Logger) Info(message string) {
	l.entry.Info(message)
}

// Warn records a warning-level message.
func (l *Logger) Warn(message string) {
	l.entry.Warn(message)
}

// Error records an error-level message.
func (l *Logger) Error(message string) {
	l.entry.Error(message)
}

// Debug records a debug-level message.
func (l *Logger) Debug(message string) {
	l.entry.Debug(message)
}

// Fatal records a fatal message and terminates the process.
func (l *Logger) Fatal(message string) {
	l.entry.Fatal(message)
}
