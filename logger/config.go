package logger

import (
	"log/slog"
)

// Log format constants.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Config defines the logging configuration applied by Configure.
type Config struct {
	// Level is the minimum level to log ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format selects the output encoding: "json" or "text".
	Format string `yaml:"format"`

	// CommonFields are added to every log record (service name, environment, ...).
	CommonFields map[string]string `yaml:"common_fields"`

	// Modules overrides the level per package path, relative to the
	// repository (e.g. "pipeline: debug", "metrics: warn"). Lookup is
	// hierarchical: "metrics/prometheus" falls back to "metrics".
	Modules map[string]string `yaml:"modules"`
}

// Configure applies a Config to the global logger.
// This reconfigures the logger with the new settings.
// A handler installed via SetHandler is preserved.
func Configure(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	if customHandler != nil {
		return nil
	}

	level := slog.LevelInfo
	if cfg.Level != "" {
		level = ParseLevel(cfg.Level)
	}

	var commonFields []slog.Attr
	for k, v := range cfg.CommonFields {
		commonFields = append(commonFields, slog.String(k, v))
	}

	baseLevel := level
	if len(cfg.Modules) > 0 {
		// Filtering moves into the ModuleHandler so per-module
		// overrides can go below the default level.
		baseLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: baseLevel}

	var base slog.Handler
	if cfg.Format == FormatJSON {
		base = slog.NewJSONHandler(logOutput, opts)
	} else {
		base = slog.NewTextHandler(logOutput, opts)
	}

	if len(cfg.Modules) > 0 {
		levels := NewModuleLevels(level)
		for module, name := range cfg.Modules {
			levels.Set(module, ParseLevel(name))
		}
		DefaultLogger = slog.New(NewModuleHandler(base, levels, commonFields...))
	} else {
		DefaultLogger = slog.New(NewContextHandler(base, commonFields...))
	}
	slog.SetDefault(DefaultLogger)
	return nil
}
