package appconfig

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	plugindomain "kilometers.ai/boot/internal/core/domain/plugin"
)

// PositionalKey holds plugin arguments that are not flags.
const PositionalKey = "_"

// ParsePluginArgs parses args against the flags a plugin declares. Only
// flags actually present in args appear in the result. An empty schema
// yields an empty bag.
func ParsePluginArgs(specs []plugindomain.FlagSpec, args []string) (plugindomain.Options, error) {
	out := plugindomain.Options{}
	if len(specs) == 0 {
		return out, nil
	}

	fs, types, err := pluginFlagSet(specs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", plugindomain.ErrOptionsParse, err)
	}
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", plugindomain.ErrOptionsParse, err)
	}

	var getErr error
	fs.Visit(func(f *pflag.Flag) {
		v, err := flagValue(fs, f.Name, types[f.Name])
		if err != nil && getErr == nil {
			getErr = err
		}
		out[f.Name] = v
	})
	if getErr != nil {
		return nil, fmt.Errorf("%w: %v", plugindomain.ErrOptionsParse, getErr)
	}

	if rest := fs.Args(); len(rest) > 0 {
		out[PositionalKey] = rest
	}
	return out, nil
}

func pluginFlagSet(specs []plugindomain.FlagSpec) (*pflag.FlagSet, map[string]plugindomain.FlagType, error) {
	fs := pflag.NewFlagSet("plugin", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	types := make(map[string]plugindomain.FlagType, len(specs))
	shorts := make(map[string]string)
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, nil, err
		}
		if _, dup := types[s.Name]; dup {
			return nil, nil, fmt.Errorf("flag %q declared twice", s.Name)
		}
		short := s.Shorthand()
		if short != "" {
			if other, dup := shorts[short]; dup {
				return nil, nil, fmt.Errorf("flags %q and %q share shorthand %q", other, s.Name, short)
			}
			shorts[short] = s.Name
		}

		typ := s.Type
		if typ == "" {
			typ = plugindomain.FlagString
		}
		types[s.Name] = typ

		switch typ {
		case plugindomain.FlagBool:
			fs.BoolP(s.Name, short, false, s.Usage)
		case plugindomain.FlagInt:
			fs.IntP(s.Name, short, 0, s.Usage)
		case plugindomain.FlagFloat:
			fs.Float64P(s.Name, short, 0, s.Usage)
		case plugindomain.FlagDuration:
			fs.DurationP(s.Name, short, 0, s.Usage)
		case plugindomain.FlagStrings:
			fs.StringSliceP(s.Name, short, nil, s.Usage)
		default:
			fs.StringP(s.Name, short, "", s.Usage)
		}
	}
	return fs, types, nil
}

func flagValue(fs *pflag.FlagSet, name string, typ plugindomain.FlagType) (interface{}, error) {
	switch typ {
	case plugindomain.FlagBool:
		return fs.GetBool(name)
	case plugindomain.FlagInt:
		return fs.GetInt(name)
	case plugindomain.FlagFloat:
		return fs.GetFloat64(name)
	case plugindomain.FlagDuration:
		return fs.GetDuration(name)
	case plugindomain.FlagStrings:
		return fs.GetStringSlice(name)
	default:
		return fs.GetString(name)
	}
}
