package appconfig

import (
	"context"
	"log/slog"
	"sort"

	configdomain "kilometers.ai/boot/internal/core/domain/config"
	plugindomain "kilometers.ai/boot/internal/core/domain/plugin"
)

// Source names recorded as entry provenance.
const (
	SourceOverride = "override"
	SourceCLI      = "cli"
	SourcePlugin   = "plugin"
	SourceDefault  = "default"
)

// Aggregator merges the option and logger sources of one build.
type Aggregator struct {
	logger *slog.Logger
}

func NewAggregator(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{logger: logger}
}

// MergedOptions is the result of MergeOptions.
type MergedOptions struct {
	Options      plugindomain.Options
	SkipOverride bool
	Snapshot     configdomain.Snapshot
}

// MergeOptions combines plugin defaults, options parsed from plugin flags and
// the caller override, in ascending precedence. The merge is shallow. The
// skipOverride control key is taken out of the override and reported
// separately.
func (a *Aggregator) MergeOptions(defaults, parsed, override plugindomain.Options) MergedOptions {
	override = override.Clone()
	skip, _ := override[plugindomain.SkipOverrideKey].(bool)
	delete(override, plugindomain.SkipOverrideKey)

	snap := configdomain.NewSnapshot(defaults, SourcePlugin, "options", configdomain.PriorityPlugin)
	snap.Merge(configdomain.NewSnapshot(parsed, SourceCLI, "plugin_args", configdomain.PriorityCLI))
	snap.Merge(configdomain.NewSnapshot(override, SourceOverride, "build_call", configdomain.PriorityOverride))

	if a.logger.Enabled(context.Background(), slog.LevelDebug) {
		keys := make([]string, 0, len(snap))
		for k := range snap {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			a.logger.Debug("resolved plugin option", "key", k, "source", snap[k].Source)
		}
	}

	return MergedOptions{
		Options:      plugindomain.Options(snap.Values()),
		SkipOverride: skip,
		Snapshot:     snap,
	}
}

// LoggerSources are the inputs of MergeLogger. Nil pointers are absent
// sources.
type LoggerSources struct {
	Plugin   *configdomain.LoggerConfig // exported by the plugin module
	CLI      configdomain.LoggerConfig  // explicitly supplied tool flags only
	Override *configdomain.LoggerConfig // passed to the build call
}

// MergeLogger resolves the logger configuration field by field. The tool
// default sits below every source.
func (a *Aggregator) MergeLogger(src LoggerSources) (configdomain.LoggerConfig, error) {
	layers := []struct {
		cfg    *configdomain.LoggerConfig
		source string
	}{
		{&configdomain.LoggerConfig{Level: configdomain.DefaultLogLevel, Destination: "stdout"}, SourceDefault},
		{src.Plugin, SourcePlugin},
		{&src.CLI, SourceCLI},
		{src.Override, SourceOverride},
	}

	var cfg configdomain.LoggerConfig
	for _, l := range layers {
		if l.cfg == nil {
			continue
		}
		cfg = cfg.Overlay(*l.cfg)
		if l.cfg.Level != "" {
			a.logger.Debug("logger level source", "source", l.source, "level", l.cfg.Level)
		}
	}

	if err := cfg.Validate(); err != nil {
		return configdomain.LoggerConfig{}, err
	}
	return cfg, nil
}
