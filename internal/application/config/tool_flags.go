package appconfig

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	configdomain "kilometers.ai/boot/internal/core/domain/config"
	plugindomain "kilometers.ai/boot/internal/core/domain/plugin"
	configports "kilometers.ai/boot/internal/core/ports/config"
)

// EnvPrefix prefixes the environment fallback of every tool flag.
const EnvPrefix = "KMBOOT_"

const (
	DefaultPort    = 3000
	DefaultAddress = "localhost"
)

// ToolOptions are the tool-level settings read from the arguments before the
// delimiter.
type ToolOptions struct {
	Port            int
	Address         string
	Prefix          string
	LogLevel        string
	LogDest         string
	PrettyLogs      bool
	Options         bool // honour the logger config exported by the plugin
	PluginTimeout   time.Duration
	CloseGraceDelay time.Duration
	BodyLimit       int64
	Debug           bool

	// Args are positional tool arguments left after the plugin path.
	Args []string

	explicit map[string]bool
}

// extra env names consulted after the prefixed one
var envAliases = map[string][]string{
	"port": {"PORT"},
}

// NewToolFlagSet declares the tool flags on a new set bound to o.
func NewToolFlagSet(o *ToolOptions) *pflag.FlagSet {
	fs := pflag.NewFlagSet("kmboot", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false

	fs.IntVarP(&o.Port, "port", "p", DefaultPort, "port to listen on")
	fs.StringVarP(&o.Address, "address", "a", DefaultAddress, "address to listen on")
	fs.StringVarP(&o.Prefix, "prefix", "r", "", "route prefix for the plugin")
	fs.StringVarP(&o.LogLevel, "log-level", "l", configdomain.DefaultLogLevel, "log level (trace, debug, info, warn, error, fatal, silent)")
	fs.StringVar(&o.LogDest, "log-dest", "stdout", "log destination: stdout, stderr or a file path")
	fs.BoolVarP(&o.PrettyLogs, "pretty-logs", "P", false, "write human readable logs")
	fs.BoolVarP(&o.Options, "options", "o", false, "use the logger configuration exported by the plugin")
	fs.DurationVarP(&o.PluginTimeout, "plugin-timeout", "T", 10*time.Second, "maximum time a plugin may take to register")
	fs.DurationVarP(&o.CloseGraceDelay, "close-grace-delay", "g", 500*time.Millisecond, "time allowed for in-flight requests on close")
	fs.Int64Var(&o.BodyLimit, "body-limit", 1<<20, "maximum request body size in bytes")
	fs.BoolVarP(&o.Debug, "debug", "d", false, "log pipeline stages to stderr")
	return fs
}

// EnvName returns the prefixed environment variable backing a tool flag.
func EnvName(flag string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// ParseToolArgs parses args and fills every flag not given on the command
// line from its environment fallback. Both count as explicit.
func ParseToolArgs(args []string, env configports.Env) (ToolOptions, error) {
	var o ToolOptions
	fs := NewToolFlagSet(&o)
	if err := fs.Parse(args); err != nil {
		return ToolOptions{}, fmt.Errorf("%w: %v", plugindomain.ErrArgs, err)
	}

	var envErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || envErr != nil || env == nil {
			return
		}
		for _, name := range append([]string{EnvName(f.Name)}, envAliases[f.Name]...) {
			v, ok := env.Lookup(name)
			if !ok || v == "" {
				continue
			}
			if err := fs.Set(f.Name, v); err != nil {
				envErr = fmt.Errorf("%w: %s: %v", plugindomain.ErrArgs, name, err)
			}
			return
		}
	})
	if envErr != nil {
		return ToolOptions{}, envErr
	}

	o.explicit = make(map[string]bool)
	fs.Visit(func(f *pflag.Flag) { o.explicit[f.Name] = true })
	o.Args = fs.Args()

	if o.Port < 0 || o.Port > 65535 {
		return ToolOptions{}, fmt.Errorf("%w: port %d out of range", plugindomain.ErrArgs, o.Port)
	}
	return o, nil
}

// Explicit reports whether the named flag was supplied on the command line
// or through the environment.
func (o ToolOptions) Explicit(flag string) bool {
	return o.explicit[flag]
}

// ExplicitLogger returns the logger fields set by explicit tool flags.
func (o ToolOptions) ExplicitLogger() configdomain.LoggerConfig {
	var cfg configdomain.LoggerConfig
	if o.Explicit("log-level") {
		cfg.Level = strings.ToLower(o.LogLevel)
	}
	if o.Explicit("log-dest") {
		cfg.Destination = o.LogDest
	}
	if o.Explicit("pretty-logs") {
		cfg.Pretty = configdomain.Bool(o.PrettyLogs)
	}
	return cfg
}

// PluginPathIndex returns the index of the first positional argument in
// args as the tool flags read them, or -1. Values of non-boolean flags are
// never positional, so "-l warn plugin.lua" locates plugin.lua.
func PluginPathIndex(args []string) int {
	fs := NewToolFlagSet(&ToolOptions{})
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-" || !strings.HasPrefix(arg, "-"):
			return i
		case strings.HasPrefix(arg, "--"):
			name := arg[2:]
			if strings.Contains(name, "=") {
				continue
			}
			if f := fs.Lookup(name); f != nil && f.NoOptDefVal == "" {
				i++
			}
		default:
			shorts := arg[1:]
			for j := 0; j < len(shorts); j++ {
				f := fs.ShorthandLookup(shorts[j : j+1])
				if f == nil {
					break
				}
				if f.NoOptDefVal == "" {
					// the value is the rest of the cluster or the next argument
					if j == len(shorts)-1 {
						i++
					}
					break
				}
			}
		}
	}
	return -1
}

// ListenAddr is the host:port the instance binds to.
func (o ToolOptions) ListenAddr() string {
	return net.JoinHostPort(o.Address, strconv.Itoa(o.Port))
}
