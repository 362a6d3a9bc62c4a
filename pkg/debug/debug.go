// Package debug configures log/slog for relay and provides category-gated
// debug output.
//
// Categories select WHAT to trace (RELAY_DEBUG or logging.debug in config);
// the level selects HOW MUCH (RELAY_LOG_LEVEL or logging.level).
//
//	debug.Log(debug.Dispatch, "routing", "capability", name, "mode", "async")
//	if debug.Enabled(debug.Oracle) { /* expensive formatting */ }
//
// Levels: ERROR, WARN, INFO, DEBUG, TRACE.
package debug

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// Debug categories.
const (
	Dispatch  = "dispatch"
	Planner   = "planner"
	Oracle    = "oracle"
	Tasks     = "tasks"
	MCP       = "mcp"
	Auth      = "auth"
	Transport = "transport"
	Config    = "config"
	All       = "all"
)

// LevelTrace is below slog.LevelDebug. At TRACE full oracle prompts and
// replies are logged.
const LevelTrace = slog.LevelDebug - 4

// categories is read-only after Init.
var categories = parseCategories(os.Getenv("RELAY_DEBUG"))

// Options configures the default logger.
type Options struct {
	// Categories is a comma-separated list; RELAY_DEBUG overrides it.
	Categories string
	// Level is the minimum level; RELAY_LOG_LEVEL overrides it.
	Level string
	// Format is "text" (default) or "json".
	Format string
	// Output defaults to stderr.
	Output io.Writer
}

// Init installs the default slog logger. Environment values take
// precedence over opts.
func Init(opts Options) {
	cats := os.Getenv("RELAY_DEBUG")
	if cats == "" {
		cats = opts.Categories
	}
	categories = parseCategories(cats)

	level := os.Getenv("RELAY_LOG_LEVEL")
	if level == "" {
		level = opts.Level
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		h = slog.NewJSONHandler(out, hopts)
	} else {
		h = slog.NewTextHandler(out, hopts)
	}
	slog.SetDefault(slog.New(h))
}

// Enabled reports whether debug output is active for category.
func Enabled(category string) bool {
	return categories[All] || categories[category]
}

// Log emits a DEBUG record tagged with category when it is enabled.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a TRACE record tagged with category when it is enabled.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// ParseLevel converts a level name to a slog.Level. Unknown names map to
// INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories returns the enabled categories, sorted.
func Categories() []string {
	out := make([]string, 0, len(categories))
	for k := range categories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Truncate shortens s to maxLen bytes, appending "..." when cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
