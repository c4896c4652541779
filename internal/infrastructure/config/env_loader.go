package configinfra

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	configports "kilometers.ai/boot/internal/core/ports/config"
)

// EnvFileName is the file looked up in the working directory.
const EnvFileName = ".env"

// DotEnvLoader applies KEY=VALUE lines from a .env file without overwriting
// variables that are already set.
type DotEnvLoader struct {
	logger *slog.Logger
}

func NewDotEnvLoader(logger *slog.Logger) *DotEnvLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &DotEnvLoader{logger: logger}
}

// Load implements configports.EnvFileLoader.
func (l *DotEnvLoader) Load(ctx context.Context, dir string, env configports.Env) ([]string, error) {
	path := filepath.Join(dir, EnvFileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		l.logger.Debug("no env file", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	applied, err := applyParsed(env, ParseDotEnv(string(data)))
	if err != nil {
		return applied, err
	}

	l.logger.Debug("env file applied", "path", path, "keys", applied)
	return applied, nil
}

// applyParsed sets every pair whose key is not present yet.
func applyParsed(env configports.Env, pairs []KeyValue) ([]string, error) {
	var applied []string
	for _, kv := range pairs {
		if _, exists := env.Lookup(kv.Key); exists {
			continue
		}
		if err := env.Set(kv.Key, kv.Value); err != nil {
			return applied, fmt.Errorf("failed to set %s: %w", kv.Key, err)
		}
		applied = append(applied, kv.Key)
	}
	return applied, nil
}

// KeyValue is one parsed .env assignment.
type KeyValue struct {
	Key   string
	Value string
}

// ParseDotEnv parses .env content in file order. Blank lines, comments and
// malformed lines are skipped; on duplicate keys the first one wins.
func ParseDotEnv(content string) []KeyValue {
	var out []KeyValue
	seen := make(map[string]bool)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		if !validEnvKey(key) || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, KeyValue{Key: key, Value: parseEnvValue(strings.TrimSpace(parts[1]))})
	}
	return out
}

func parseEnvValue(raw string) string {
	if len(raw) >= 2 {
		switch q := raw[0]; {
		case q == '"' && raw[len(raw)-1] == '"':
			v := raw[1 : len(raw)-1]
			v = strings.ReplaceAll(v, `\n`, "\n")
			return strings.ReplaceAll(v, `\"`, `"`)
		case q == '\'' && raw[len(raw)-1] == '\'':
			return raw[1 : len(raw)-1]
		}
	}
	// Inline comments only apply to unquoted values.
	if i := strings.Index(raw, " #"); i != -1 {
		raw = strings.TrimSpace(raw[:i])
	}
	return raw
}

func validEnvKey(key string) bool {
	if key == "" {
		return false
	}
	for i, r := range key {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		case r == '.' && i > 0:
		default:
			return false
		}
	}
	return true
}

var _ configports.EnvFileLoader = (*DotEnvLoader)(nil)
