package main

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	gateway "github.com/tplumina/lumina/apigateway"
	"github.com/tplumina/lumina/models"
)

const (
	defaultLogSamplingTick  = 5 * time.Second
	defaultLogSamplingAfter = 2 * time.Second
)

// Cloud Logging reads the level from "severity" and the text from "message".
var cloudFieldMap = logrus.FieldMap{
	logrus.FieldKeyLevel: "severity",
	logrus.FieldKeyMsg:   "message",
	logrus.FieldKeyTime:  "time",
}

// configureLogger sets up the process logger and returns the access log
// sampling derived from cfg.
func configureLogger(logger *logrus.Logger, cfg models.Config) gateway.LogSamplingConfig {
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap:        cloudFieldMap,
	})
	level := logrus.InfoLevel
	if cfg.IsDebug {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	logger.SetReportCaller(cfg.IsDebug)

	return gateway.LogSamplingConfig{
		Tick:  durationFromMs(cfg.LogSamplingTickMs, defaultLogSamplingTick),
		After: durationFromMs(cfg.LogSamplingAfterMs, defaultLogSamplingAfter),
	}
}
