package app

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the application logger. With a log file configured,
// entries go to stderr and to a size-rotated file; the returned closer
// releases that file.
func NewLogger(config Config, stderr io.Writer) (*logrus.Logger, io.Closer) {
	if stderr == nil {
		stderr = os.Stderr
	}

	logger := logrus.New()
	if config.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	if config.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if config.LogFile == "" {
		logger.SetOutput(stderr)
		return logger, io.NopCloser(nil)
	}

	maxSize := config.LogMaxSize
	if maxSize <= 0 {
		maxSize = DefaultLogMaxSize
	}
	file := &lumberjack.Logger{
		Filename:   config.LogFile,
		MaxSize:    maxSize, // MB
		MaxBackups: 7,
		Compress:   true,
	}
	logger.SetOutput(io.MultiWriter(stderr, file))
	return logger, file
}
