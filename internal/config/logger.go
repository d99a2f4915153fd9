package config

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
// Unknown levels fall back to info.
func NewLogger(cfg *Config) *logrus.Logger {
	return newLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
}

func newLogger(out io.Writer, level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	if strings.EqualFold(format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// LogError logs err with the module/function that produced it.
func LogError(logger logrus.FieldLogger, module, funcName string, data any, err error) {
	fields := logrus.Fields{
		"module":   module,
		"funcName": funcName,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}
