// Package logging provides the pluggable logging facade used across
// varserverd. The provider interface mirrors a classic embedded-style
// leveled logger; the default provider is backed by logrus so daemon
// output is structured and field-aware instead of a bare log.Logger.
package logging

import (
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Provider is implemented by anything that can sink leveled log lines.
// RFC5424-style levels, trimmed to what the daemon actually emits.
type Provider interface {
	Fatal(format string, v ...interface{})
	Error(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Info(format string, v ...interface{})
	Debug(format string, v ...interface{})
}

// Log wraps a Provider behind an enable switch so components can be
// built with logging compiled in but silenced in tests.
type Log struct {
	provider Provider
	fields   logrus.Fields
	has      uint32
}

// New returns a Log backed by logrus, tagged with a component field.
func New(component string) Log {
	return Log{
		provider: logrusProvider{logrus.StandardLogger()},
		fields:   logrus.Fields{"component": component},
		has:      1,
	}
}

// Mute disables or re-enables output without touching call sites.
func (l *Log) Mute(muted bool) {
	if muted {
		atomic.StoreUint32(&l.has, 0)
	} else {
		atomic.StoreUint32(&l.has, 1)
	}
}

// With returns a derived Log carrying an additional field, cheap
// enough to call per-request (one request-id field per dispatch).
func (l Log) With(key string, value interface{}) Log {
	next := logrus.Fields{}
	for k, v := range l.fields {
		next[k] = v
	}
	next[key] = value
	return Log{provider: l.provider, fields: next, has: l.has}
}

func (l Log) Fatal(format string, v ...interface{}) { l.emit((Provider).Fatal, format, v...) }
func (l Log) Error(format string, v ...interface{}) { l.emit((Provider).Error, format, v...) }
func (l Log) Warn(format string, v ...interface{})  { l.emit((Provider).Warn, format, v...) }
func (l Log) Info(format string, v ...interface{})  { l.emit((Provider).Info, format, v...) }
func (l Log) Debug(format string, v ...interface{}) { l.emit((Provider).Debug, format, v...) }

func (l Log) emit(fn func(Provider, string, ...interface{}), format string, v ...interface{}) {
	if atomic.LoadUint32(&l.has) == 0 {
		return
	}
	p := l.provider
	if len(l.fields) > 0 {
		p = fieldedProvider{base: l.provider, fields: l.fields}
	}
	fn(p, format, v...)
}

type logrusProvider struct {
	*logrus.Logger
}

var _ Provider = logrusProvider{}

func (p logrusProvider) Fatal(format string, v ...interface{}) { p.Logger.Fatalf(format, v...) }
func (p logrusProvider) Error(format string, v ...interface{}) { p.Logger.Errorf(format, v...) }
func (p logrusProvider) Warn(format string, v ...interface{})  { p.Logger.Warnf(format, v...) }
func (p logrusProvider) Info(format string, v ...interface{})  { p.Logger.Infof(format, v...) }
func (p logrusProvider) Debug(format string, v ...interface{}) { p.Logger.Debugf(format, v...) }

type fieldedProvider struct {
	base   Provider
	fields logrus.Fields
}

func (p fieldedProvider) entry() *logrus.Entry {
	return logrus.WithFields(p.fields)
}

func (p fieldedProvider) Fatal(format string, v ...interface{}) { p.entry().Fatalf(format, v...) }
func (p fieldedProvider) Error(format string, v ...interface{}) { p.entry().Errorf(format, v...) }
func (p fieldedProvider) Warn(format string, v ...interface{})  { p.entry().Warnf(format, v...) }
func (p fieldedProvider) Info(format string, v ...interface{})  { p.entry().Infof(format, v...) }
func (p fieldedProvider) Debug(format string, v ...interface{}) { p.entry().Debugf(format, v...) }

// ConfigureOutput sets the package-wide logrus formatter once at
// startup; called from cmd/varserverd before any component logs.
func ConfigureOutput(debug bool) {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}
