package config

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// ParseLogLevel maps a level name to a logrus level
func ParseLogLevel(name string) (logrus.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return logrus.InfoLevel, nil
	case "debug":
		return logrus.DebugLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
}

// SetupLogging configures the package-level logger
func SetupLogging(level string) {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	lvl, err := ParseLogLevel(level)
	if err != nil {
		logrus.Warnf("%v, using info", err)
	}
	logrus.SetLevel(lvl)
}
