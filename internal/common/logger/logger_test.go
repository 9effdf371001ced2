package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crawlkit/browserfetch/internal/common/configtypes"
)

func TestNewLogger_ConsoleOnly(t *testing.T) {
	config := configtypes.LogConfig{
		Level: "info",
		Console: configtypes.ConsoleLogConfig{
			Enabled: true,
			Format:  "console",
		},
	}

	logger, err := NewLogger(config)
	require.NoError(t, err)
	require.NotNil(t, logger)

	logger.Info("test console logging")
}

func TestNewLogger_FileOnly(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	config := configtypes.LogConfig{
		Level: "debug",
		File: configtypes.FileLogConfig{
			Enabled: true,
			Path:    logPath,
			Format:  "json",
			Rotation: configtypes.RotationConfig{
				MaxSize:    10,
				MaxAge:     7,
				MaxBackups: 3,
			},
		},
	}

	logger, err := NewLogger(config)
	require.NoError(t, err)

	logger.Info("test file logging", zap.String("key", "value"))
	logger.Sync()

	content, err := os.ReadFile(logPath)
	require.NoError(t, err, "log file should be created")
	assert.Contains(t, string(content), "test file logging")
	assert.Contains(t, string(content), `"key":"value"`)
}

func TestNewLogger_NoOutputsEnabled(t *testing.T) {
	_, err := NewLogger(configtypes.LogConfig{Level: "info"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one log output")
}

func TestNewLogger_FileEnabledWithoutPath(t *testing.T) {
	config := configtypes.LogConfig{
		Level: "info",
		File:  configtypes.FileLogConfig{Enabled: true},
	}

	_, err := NewLogger(config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file.path must be specified")
}

func TestNewLogger_PerOutputLevels(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	config := configtypes.LogConfig{
		Level: "debug",
		Console: configtypes.ConsoleLogConfig{
			Enabled: true,
			Format:  "console",
			Level:   "error",
		},
		File: configtypes.FileLogConfig{
			Enabled: true,
			Path:    logPath,
			Format:  "text",
		},
	}

	logger, err := NewLogger(config)
	require.NoError(t, err)

	logger.Debug("debug message goes to the file only")
	logger.Sync()

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "debug message")
}

func TestNewLoggerWithStartupOverride_HigherConfiguredLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	config := configtypes.LogConfig{
		Level: "error",
		File: configtypes.FileLogConfig{
			Enabled: true,
			Path:    logPath,
			Format:  "text",
		},
	}

	logger, err := NewLoggerWithStartupOverride(config)
	require.NoError(t, err)

	// INFO is visible during startup despite the configured error level
	logger.Info("startup message")
	logger.Sync()

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(content), "startup message")

	// after switching, INFO is filtered out again
	logger.SwitchToConfiguredLevel()
	logger.Info("post startup info")
	logger.Sync()

	content, err = os.ReadFile(logPath)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(content), "post startup info"))
}

func TestNewLoggerWithStartupOverride_LowConfiguredLevel(t *testing.T) {
	config := configtypes.LogConfig{
		Level: "debug",
		Console: configtypes.ConsoleLogConfig{
			Enabled: true,
			Format:  "console",
		},
	}

	logger, err := NewLoggerWithStartupOverride(config)
	require.NoError(t, err)
	assert.Equal(t, zap.DebugLevel, logger.consoleLevel.Level())
}

func TestEnsureInfoLevelForShutdown(t *testing.T) {
	config := configtypes.LogConfig{
		Level: "error",
		Console: configtypes.ConsoleLogConfig{
			Enabled: true,
			Format:  "console",
		},
	}

	logger, err := NewLogger(config)
	require.NoError(t, err)
	require.Equal(t, zap.ErrorLevel, logger.consoleLevel.Level())

	logger.EnsureInfoLevelForShutdown()
	assert.Equal(t, zap.InfoLevel, logger.consoleLevel.Level())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, zap.WarnLevel, parseLogLevel("warn"))
	assert.Equal(t, zap.ErrorLevel, parseLogLevel("error"))
	// unknown levels fall back to info
	assert.Equal(t, zap.InfoLevel, parseLogLevel("verbose"))
}

func TestNewDefaultLogger(t *testing.T) {
	logger, err := NewDefaultLogger()
	require.NoError(t, err)
	assert.Equal(t, zap.DebugLevel, logger.consoleLevel.Level())
}
