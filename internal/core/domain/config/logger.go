package configdomain

import (
	"fmt"
	"io"
	"strings"
)

// DefaultCensor replaces redacted values when no censor is configured.
const DefaultCensor = "[Redacted]"

// DefaultLogLevel is the level used when no source sets one.
const DefaultLogLevel = "fatal"

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true,
	"error": true, "fatal": true, "silent": true,
}

// Redact lists the attribute paths whose values are hidden from log output.
type Redact struct {
	Paths  []string
	Censor string
	Remove *bool // drop the attribute instead of censoring it
}

// IsZero reports whether no redaction rule is configured.
func (r Redact) IsZero() bool {
	return len(r.Paths) == 0 && r.Censor == "" && r.Remove == nil
}

// Removes reports whether matching attributes are dropped.
func (r Redact) Removes() bool {
	return r.Remove != nil && *r.Remove
}

// LoggerConfig describes the logger handed to the server instance.
//
// Zero-valued fields are considered unset so that several sources can be
// layered with Overlay. Booleans are pointers so that false can be set.
type LoggerConfig struct {
	Level       string
	Destination string    // "stdout", "stderr" or a file path
	Stream      io.Writer // takes precedence over Destination when set
	Pretty      *bool
	Redact      Redact
}

// Bool returns a pointer to v, for the optional boolean fields.
func Bool(v bool) *bool {
	return &v
}

// PrettyEnabled reports whether human readable output was requested.
func (c LoggerConfig) PrettyEnabled() bool {
	return c.Pretty != nil && *c.Pretty
}

// Overlay returns c with every field set in other replacing the one in c.
func (c LoggerConfig) Overlay(other LoggerConfig) LoggerConfig {
	if other.Level != "" {
		c.Level = other.Level
	}
	if other.Destination != "" {
		c.Destination = other.Destination
	}
	if other.Stream != nil {
		c.Stream = other.Stream
	}
	if other.Pretty != nil {
		c.Pretty = Bool(*other.Pretty)
	}
	if !other.Redact.IsZero() {
		c.Redact = other.Redact
	}
	return c
}

// Validate checks the level name.
func (c LoggerConfig) Validate() error {
	if c.Level != "" && !validLogLevels[c.Level] {
		return fmt.Errorf("invalid log level: %s (must be one of: trace, debug, info, warn, error, fatal, silent)", c.Level)
	}
	return nil
}

// LoggerConfigFromMap decodes a logger configuration exported by a plugin
// module. Accepted keys: level, destination (or dest), pretty, redact.
// redact is either a list of paths or a map with paths, censor and remove.
func LoggerConfigFromMap(m map[string]interface{}) (LoggerConfig, error) {
	var cfg LoggerConfig
	for key, raw := range m {
		switch strings.ToLower(key) {
		case "level":
			s, ok := raw.(string)
			if !ok {
				return cfg, fmt.Errorf("logger.level must be a string")
			}
			cfg.Level = strings.ToLower(s)
		case "destination", "dest":
			s, ok := raw.(string)
			if !ok {
				return cfg, fmt.Errorf("logger.%s must be a string", key)
			}
			cfg.Destination = s
		case "pretty":
			b, ok := raw.(bool)
			if !ok {
				return cfg, fmt.Errorf("logger.pretty must be a boolean")
			}
			cfg.Pretty = Bool(b)
		case "redact":
			r, err := redactFromValue(raw)
			if err != nil {
				return cfg, err
			}
			cfg.Redact = r
		default:
			return cfg, fmt.Errorf("unknown logger field: %s", key)
		}
	}
	return cfg, cfg.Validate()
}

func redactFromValue(raw interface{}) (Redact, error) {
	var r Redact
	switch v := raw.(type) {
	case []interface{}:
		paths, err := stringList(v)
		if err != nil {
			return r, fmt.Errorf("logger.redact: %w", err)
		}
		r.Paths = paths
	case map[string]interface{}:
		for key, val := range v {
			switch key {
			case "paths":
				list, ok := val.([]interface{})
				if !ok {
					return r, fmt.Errorf("logger.redact.paths must be a list")
				}
				paths, err := stringList(list)
				if err != nil {
					return r, fmt.Errorf("logger.redact.paths: %w", err)
				}
				r.Paths = paths
			case "censor":
				s, ok := val.(string)
				if !ok {
					return r, fmt.Errorf("logger.redact.censor must be a string")
				}
				r.Censor = s
			case "remove":
				b, ok := val.(bool)
				if !ok {
					return r, fmt.Errorf("logger.redact.remove must be a boolean")
				}
				r.Remove = Bool(b)
			default:
				return r, fmt.Errorf("unknown logger.redact field: %s", key)
			}
		}
	default:
		return r, fmt.Errorf("logger.redact must be a list or a map")
	}
	return r, nil
}

func stringList(values []interface{}) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		out = append(out, s)
	}
	return out, nil
}
