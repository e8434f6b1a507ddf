package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModuleLevelsHierarchy(t *testing.T) {
	levels := NewModuleLevels(slog.LevelInfo)
	levels.Set("metrics", slog.LevelWarn)
	levels.Set("metrics/prometheus", slog.LevelError)

	assert.Equal(t, slog.LevelError, levels.LevelFor("metrics/prometheus"))
	assert.Equal(t, slog.LevelWarn, levels.LevelFor("metrics"))
	assert.Equal(t, slog.LevelInfo, levels.LevelFor("pipeline"))
	assert.Equal(t, slog.LevelInfo, levels.LevelFor(""))
}

func TestModuleFromPC(t *testing.T) {
	tests := []struct {
		function string
		want     string
	}{
		{modulePrefix + "pipeline.(*Queue).Drive", "pipeline"},
		{modulePrefix + "metrics/prometheus.RecordFrame", "metrics/prometheus"},
		{"net/http.(*Server).Serve", ""},
	}
	for _, tt := range tests {
		got := moduleFromFunction(tt.function)
		assert.Equal(t, tt.want, got, tt.function)
	}
}

func TestConfigureModuleOverrides(t *testing.T) {
	prevLogger := DefaultLogger
	defer func() { DefaultLogger = prevLogger }()

	err := Configure(&Config{
		Level:  "info",
		Format: FormatText,
		Modules: map[string]string{
			"pipeline": "debug",
		},
	})
	assert.NoError(t, err)

	handler, ok := DefaultLogger.Handler().(*ModuleHandler)
	assert.True(t, ok)
	assert.Equal(t, slog.LevelDebug, handler.levels.LevelFor("pipeline"))
	assert.Equal(t, slog.LevelInfo, handler.levels.LevelFor("transport"))
}
