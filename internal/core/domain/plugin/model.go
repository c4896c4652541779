package plugindomain

import (
	"fmt"
	"strings"
)

// Format identifies how a plugin module file is interpreted.
type Format string

const (
	FormatScript   Format = "script"   // Lua chunk evaluated synchronously
	FormatManifest Format = "manifest" // declarative YAML/JSON document
)

// SkipOverrideKey is the control key that registers a plugin without encapsulation.
const SkipOverrideKey = "skipOverride"

// Options is the options bag handed to a plugin at registration.
type Options map[string]interface{}

// Clone returns a shallow copy of o.
func (o Options) Clone() Options {
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// FlagType is the value type of a plugin flag.
type FlagType string

const (
	FlagBool     FlagType = "bool"
	FlagString   FlagType = "string"
	FlagInt      FlagType = "int"
	FlagFloat    FlagType = "float"
	FlagDuration FlagType = "duration"
	FlagStrings  FlagType = "strings"
)

// FlagSpec declares one command-line flag understood by a plugin.
type FlagSpec struct {
	Name  string   `yaml:"name"`
	Short string   `yaml:"short"`
	Type  FlagType `yaml:"type"`
	Usage string   `yaml:"usage"`
}

// Shorthand returns the one-letter alias of the flag, if any. Single-letter
// flag names are their own shorthand.
func (f FlagSpec) Shorthand() string {
	if f.Short != "" {
		return f.Short
	}
	if len(f.Name) == 1 {
		return f.Name
	}
	return ""
}

// Validate checks that the declaration can be turned into a real flag.
func (f FlagSpec) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("flag name is required")
	}
	if strings.HasPrefix(f.Name, "-") {
		return fmt.Errorf("flag %q must not start with '-'", f.Name)
	}
	if len(f.Short) > 1 {
		return fmt.Errorf("flag %q: shorthand %q must be a single character", f.Name, f.Short)
	}
	switch f.Type {
	case "", FlagBool, FlagString, FlagInt, FlagFloat, FlagDuration, FlagStrings:
		return nil
	default:
		return fmt.Errorf("flag %q: unsupported type %q", f.Name, f.Type)
	}
}
