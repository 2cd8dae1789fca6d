package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var logFile *os.File

func init() {
	Init()
}

// Init configures console-only logging at info level.
func Init() {
	logrus.SetOutput(os.Stdout)
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logrus.SetLevel(logrus.InfoLevel)
}

// InitLogger sets the level ("debug", "info", "warn", "error") and, when
// filename is not empty, mirrors output into that file.
func InitLogger(filename string, level string) error {
	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
	if lvl == logrus.DebugLevel {
		logrus.SetReportCaller(true)
	}

	if filename == "" {
		return nil
	}
	logFile, err = os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	logrus.SetOutput(io.MultiWriter(os.Stdout, logFile))
	return nil
}

func Close() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

func WithField(key string, value interface{}) *logrus.Entry {
	return logrus.WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return logrus.WithFields(fields)
}

func Debugf(format string, v ...interface{}) {
	logrus.Debugf(format, v...)
}

func Info(msg string) {
	logrus.Info(msg)
}

func Infof(format string, v ...interface{}) {
	logrus.Infof(format, v...)
}

func Warn(msg string) {
	logrus.Warn(msg)
}

func Warnf(format string, v ...interface{}) {
	logrus.Warnf(format, v...)
}

func Error(msg string) {
	logrus.Error(msg)
}

func Errorf(format string, v ...interface{}) {
	logrus.Errorf(format, v...)
}
