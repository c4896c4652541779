// Package logging builds the server instance logger from a merged logger
// configuration. Output is JSON by default, logfmt-style text when pretty
// logs are requested, and redaction rules are enforced by the handler
// before a record is written.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	configdomain "kilometers.ai/boot/internal/core/domain/config"
)

// Levels beyond the four slog defines.
const (
	LevelTrace  = slog.Level(-8)
	LevelFatal  = slog.Level(12)
	LevelSilent = slog.Level(1 << 20)
)

var levelNames = map[string]slog.Level{
	"trace":  LevelTrace,
	"debug":  slog.LevelDebug,
	"info":   slog.LevelInfo,
	"warn":   slog.LevelWarn,
	"error":  slog.LevelError,
	"fatal":  LevelFatal,
	"silent": LevelSilent,
}

// ParseLevel converts a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	if name == "" {
		name = configdomain.DefaultLogLevel
	}
	lvl, ok := levelNames[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown log level %q", name)
	}
	return lvl, nil
}

// LevelName is the inverse of ParseLevel for the named levels.
func LevelName(lvl slog.Level) string {
	switch {
	case lvl < slog.LevelDebug:
		return "trace"
	case lvl < slog.LevelInfo:
		return "debug"
	case lvl < slog.LevelWarn:
		return "info"
	case lvl < slog.LevelError:
		return "warn"
	case lvl < LevelFatal:
		return "error"
	case lvl < LevelSilent:
		return "fatal"
	default:
		return "silent"
	}
}

// Logger is a slog logger bound to the output it owns.
type Logger struct {
	*slog.Logger
	level  string
	closer io.Closer
}

// New builds a logger for cfg. The caller must Close it to release a file
// destination.
func New(cfg configdomain.LoggerConfig) (*Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	out, closer, err := openDestination(cfg)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: replaceAttr(cfg.Redact),
	}

	var handler slog.Handler
	if cfg.PrettyEnabled() {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		level:  LevelName(lvl),
		closer: closer,
	}, nil
}

// Discard returns a logger that writes nothing.
func Discard() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: LevelSilent})),
		level:  "silent",
	}
}

// Level returns the configured level name.
func (l *Logger) Level() string {
	return l.level
}

// Close releases the destination file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	return err
}

func openDestination(cfg configdomain.LoggerConfig) (io.Writer, io.Closer, error) {
	if cfg.Stream != nil {
		return cfg.Stream, nil, nil
	}
	switch cfg.Destination {
	case "", "stdout", "1":
		return os.Stdout, nil, nil
	case "stderr", "2":
		return os.Stderr, nil, nil
	}
	f, err := os.OpenFile(cfg.Destination, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log destination: %w", err)
	}
	return f, f, nil
}

// replaceAttr names the custom levels and applies redaction. Paths are the
// group names and the attribute key joined by dots. Map values carried by
// an attribute are walked as well, so "user.password" also matches the
// password key of a map logged under user.
func replaceAttr(redact configdomain.Redact) func([]string, slog.Attr) slog.Attr {
	r := redactor{paths: make(map[string]bool, len(redact.Paths)), censor: redact.Censor, remove: redact.Removes()}
	for _, p := range redact.Paths {
		r.paths[p] = true
		for i := range p {
			if p[i] == '.' {
				r.prefixes = append(r.prefixes, p[:i])
			}
		}
	}
	if r.censor == "" {
		r.censor = configdomain.DefaultCensor
	}

	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) == 0 && a.Key == slog.LevelKey {
			if lvl, ok := a.Value.Any().(slog.Level); ok {
				return slog.String(slog.LevelKey, LevelName(lvl))
			}
			return a
		}
		if len(r.paths) == 0 {
			return a
		}

		path := a.Key
		if len(groups) > 0 {
			path = strings.Join(groups, ".") + "." + a.Key
		}
		if r.paths[path] {
			if r.remove {
				return slog.Attr{}
			}
			return slog.String(a.Key, r.censor)
		}
		if a.Value.Kind() == slog.KindAny && r.isPrefix(path) {
			if v, changed := r.walk(path, a.Value.Any()); changed {
				return slog.Any(a.Key, v)
			}
		}
		return a
	}
}

type redactor struct {
	paths    map[string]bool
	prefixes []string
	censor   string
	remove   bool
}

func (r redactor) isPrefix(path string) bool {
	for _, p := range r.prefixes {
		if p == path {
			return true
		}
	}
	return false
}

// walk returns a copy of v with the redacted keys below path censored or
// dropped. The input is never modified.
func (r redactor) walk(path string, v interface{}) (interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(m))
		changed := false
		for k, val := range m {
			sub := path + "." + k
			switch {
			case r.paths[sub] && r.remove:
				changed = true
			case r.paths[sub]:
				out[k] = r.censor
				changed = true
			case r.isPrefix(sub):
				w, c := r.walk(sub, val)
				out[k] = w
				changed = changed || c
			default:
				out[k] = val
			}
		}
		return out, changed
	case map[string]string:
		generic := make(map[string]interface{}, len(m))
		for k, val := range m {
			generic[k] = val
		}
		return r.walk(path, generic)
	default:
		return v, false
	}
}
