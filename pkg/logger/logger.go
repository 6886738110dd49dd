package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/zxtrader/pricing-sub000/internal/config"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"

// New builds a logger from configuration
func New(cfg config.LoggerConfig) *logrus.Logger {
	log := logrus.New()

	// Set log level
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	// Set log format
	switch cfg.Format {
	case "text":
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	default:
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
		})
	}

	log.SetOutput(output(cfg))
	return log
}

func output(cfg config.LoggerConfig) io.Writer {
	switch cfg.Output {
	case "file":
		if cfg.Filename != "" {
			return getFileWriter(cfg)
		}
	case "both":
		if cfg.Filename != "" {
			return io.MultiWriter(os.Stdout, getFileWriter(cfg))
		}
	}
	return os.Stdout
}

// getFileWriter returns a file writer with rotation
func getFileWriter(cfg config.LoggerConfig) io.Writer {
	return &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
}
