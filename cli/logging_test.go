package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tplumina/lumina/models"
)

func TestConfigureLogger(t *testing.T) {
	logger := logrus.New()
	sampling := configureLogger(logger, models.Config{IsDebug: true, LogSamplingTickMs: 250})
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.True(t, logger.ReportCaller)
	assert.Equal(t, 250*time.Millisecond, sampling.Tick)
	assert.Equal(t, defaultLogSamplingAfter, sampling.After)

	var buf bytes.Buffer
	logger = logrus.New()
	configureLogger(logger, models.Config{})
	logger.SetOutput(&buf)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	logger.Warn("disk almost full")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warning", line["severity"])
	assert.Equal(t, "disk almost full", line["message"])
	assert.NotEmpty(t, line["time"])
}

func TestTracingConfig(t *testing.T) {
	assert.False(t, tracingEnabled(models.Config{}))
	assert.True(t, tracingEnabled(models.Config{OtelEndpoint: "collector:4317"}))
	assert.True(t, tracingEnabled(models.Config{OtelEnabled: true}))

	assert.Equal(t, 0.1, sampleRatio(0))
	assert.Equal(t, 1.0, sampleRatio(7))
	assert.Equal(t, 0.5, sampleRatio(0.5))

	shutdown := initOTel(context.Background(), models.Config{}, quietLogger())
	assert.NoError(t, shutdown(context.Background()))
}
