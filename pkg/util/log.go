package util

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide logger. Output goes to stderr so command output
// on stdout stays machine-readable.
var Logger = &logrus.Logger{
	Out:   os.Stderr,
	Level: logrus.InfoLevel,
	Hooks: make(logrus.LevelHooks),
	Formatter: &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	},
}

// SetLogLevel parses level ("debug", "warn", ...) and applies it.
func SetLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Logger.SetLevel(lvl)
	return nil
}

// SetJSONFormat switches to one JSON object per log line.
func SetJSONFormat() {
	Logger.SetFormatter(&logrus.JSONFormatter{})
}

func WithField(key string, value interface{}) *logrus.Entry {
	return Logger.WithField(key, value)
}

// WithProfile scopes log lines to a profile.
func WithProfile(id, name string) *logrus.Entry {
	return Logger.WithFields(logrus.Fields{"profile": name, "profile_id": id})
}

// WithInterface scopes log lines to a network interface.
func WithInterface(iface string) *logrus.Entry {
	return Logger.WithField("interface", iface)
}

func Debugf(format string, args ...interface{}) { Logger.Debugf(format, args...) }
func Warnf(format string, args ...interface{})  { Logger.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { Logger.Errorf(format, args...) }
