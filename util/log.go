package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/parleyhq/parley/formatter"
)

const (
	// LogConsole keeps log output on stderr
	LogConsole = "console"

	logMaxSizeMB  = 5
	logMaxBackups = 10
	logMaxAgeDays = 30
)

// InitLog parses and sets log-level input
func InitLog(logLevel string, logPath string) error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.Errorf("Failed parsing log-level %s: %s", logLevel, err)
		return err
	}

	var out io.Writer = os.Stderr
	if logPath != "" && logPath != LogConsole {
		if err := os.MkdirAll(filepath.Dir(logPath), 0750); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		out = &lumberjack.Logger{
			// Log file absolute path, os agnostic
			Filename:   filepath.ToSlash(logPath),
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
			Compress:   true,
		}
	}

	logger := log.StandardLogger()
	logger.SetOutput(out)
	formatter.SetTextFormatter(logger)
	logger.SetLevel(level)
	return nil
}
