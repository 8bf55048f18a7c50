package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name        string
		logLevel    string
		environment string
		enabled     zapcore.Level
		disabled    zapcore.Level
	}{
		{
			name:        "Info level development",
			logLevel:    "info",
			environment: "development",
			enabled:     zapcore.InfoLevel,
			disabled:    zapcore.DebugLevel,
		},
		{
			name:        "Debug level production",
			logLevel:    "debug",
			environment: "production",
			enabled:     zapcore.DebugLevel,
			disabled:    zapcore.DebugLevel - 1,
		},
		{
			name:        "Invalid level",
			logLevel:    "invalid",
			environment: "development",
			enabled:     zapcore.InfoLevel,
			disabled:    zapcore.DebugLevel,
		},
		{
			name:        "Empty level",
			logLevel:    "",
			environment: "production",
			enabled:     zapcore.InfoLevel,
			disabled:    zapcore.DebugLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENVIRONMENT", tt.environment)

			logger, err := NewLogger(tt.logLevel)
			require.NoError(t, err)
			require.NotNil(t, logger)

			assert.True(t, logger.Core().Enabled(tt.enabled))
			assert.False(t, logger.Core().Enabled(tt.disabled))

			logger.Info("test message")
			_ = logger.Sync()
		})
	}
}
