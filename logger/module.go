package logger

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
	"sync"
)

// modulePrefix is stripped from caller package paths so module names stay
// short ("pipeline", "stt", "metrics/prometheus").
const modulePrefix = "github.com/murmurlabs/voiceloop/"

// ModuleLevels holds per-package log levels with hierarchical lookup:
// "metrics/prometheus" falls back to "metrics" and then to the default.
type ModuleLevels struct {
	mu           sync.RWMutex
	defaultLevel slog.Level
	levels       map[string]slog.Level
}

// NewModuleLevels creates a ModuleLevels with the given default level.
func NewModuleLevels(defaultLevel slog.Level) *ModuleLevels {
	return &ModuleLevels{
		defaultLevel: defaultLevel,
		levels:       make(map[string]slog.Level),
	}
}

// Set assigns a level to a module path.
func (m *ModuleLevels) Set(module string, level slog.Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels[module] = level
}

// LevelFor returns the level for a module, walking up the path hierarchy
// until a configured entry or the default is found.
func (m *ModuleLevels) LevelFor(module string) slog.Level {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for {
		if level, ok := m.levels[module]; ok {
			return level
		}
		slash := strings.LastIndex(module, "/")
		if slash == -1 {
			return m.defaultLevel
		}
		module = module[:slash]
	}
}

// ModuleHandler extends ContextHandler with per-module level filtering.
// The module is derived from the package path of the logging call site.
type ModuleHandler struct {
	ContextHandler
	levels *ModuleLevels
}

// NewModuleHandler creates a ModuleHandler wrapping the given handler.
func NewModuleHandler(inner slog.Handler, levels *ModuleLevels, commonFields ...slog.Attr) *ModuleHandler {
	return &ModuleHandler{
		ContextHandler: ContextHandler{
			inner:        inner,
			commonFields: commonFields,
		},
		levels: levels,
	}
}

// Enabled reports whether any configured module logs at the given level.
// Per-record filtering happens in Handle, where the call site is known.
func (h *ModuleHandler) Enabled(_ context.Context, level slog.Level) bool {
	h.levels.mu.RLock()
	defer h.levels.mu.RUnlock()

	if level >= h.levels.defaultLevel {
		return true
	}
	for _, l := range h.levels.levels {
		if level >= l {
			return true
		}
	}
	return false
}

// Handle filters the record by the caller's module level, then delegates
// to the embedded ContextHandler.
//
//nolint:gocritic // slog.Record is passed by value per slog.Handler interface contract
func (h *ModuleHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < h.levels.LevelFor(moduleFromPC(r.PC)) {
		return nil
	}
	return h.ContextHandler.Handle(ctx, r)
}

// WithAttrs returns a new handler with the given attributes added.
func (h *ModuleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ModuleHandler{
		ContextHandler: ContextHandler{
			inner:        h.inner.WithAttrs(attrs),
			commonFields: h.commonFields,
		},
		levels: h.levels,
	}
}

// WithGroup returns a new handler with the given group name.
func (h *ModuleHandler) WithGroup(name string) slog.Handler {
	return &ModuleHandler{
		ContextHandler: ContextHandler{
			inner:        h.inner.WithGroup(name),
			commonFields: h.commonFields,
		},
		levels: h.levels,
	}
}

// moduleFromPC maps a program counter to a module path relative to this
// repository. Callers outside the repository map to "".
func moduleFromPC(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	frame, _ := frames.Next()
	return moduleFromFunction(frame.Function)
}

// moduleFromFunction extracts the repository-relative package path from a
// fully qualified function name.
func moduleFromFunction(fn string) string {
	idx := strings.Index(fn, modulePrefix)
	if idx == -1 {
		return ""
	}
	fn = fn[idx+len(modulePrefix):]

	// Trim the function name, keeping the package path. The first dot
	// after the last slash separates the two.
	slash := strings.LastIndex(fn, "/")
	if dot := strings.Index(fn[slash+1:], "."); dot != -1 {
		fn = fn[:slash+1+dot]
	}
	return fn
}

var _ slog.Handler = (*ModuleHandler)(nil)
