package appconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	configdomain "kilometers.ai/boot/internal/core/domain/config"
	plugindomain "kilometers.ai/boot/internal/core/domain/plugin"
	configinfra "kilometers.ai/boot/internal/infrastructure/config"
)

func TestMergeOptions_Precedence(t *testing.T) {
	tests := []struct {
		name     string
		defaults plugindomain.Options
		parsed   plugindomain.Options
		override plugindomain.Options
		want     plugindomain.Options
	}{
		{
			name:     "cli beats defaults",
			defaults: plugindomain.Options{"hello": "planet"},
			parsed:   plugindomain.Options{"hello": "world"},
			want:     plugindomain.Options{"hello": "world"},
		},
		{
			name:     "override beats cli and defaults",
			defaults: plugindomain.Options{"hello": "planet"},
			parsed:   plugindomain.Options{"hello": "world"},
			override: plugindomain.Options{"hello": "planet"},
			want:     plugindomain.Options{"hello": "planet"},
		},
		{
			name:     "shallow merge keeps nested values whole",
			defaults: plugindomain.Options{"db": map[string]interface{}{"host": "a", "port": 1}},
			override: plugindomain.Options{"db": map[string]interface{}{"host": "b"}},
			want:     plugindomain.Options{"db": map[string]interface{}{"host": "b"}},
		},
		{
			name: "all empty",
			want: plugindomain.Options{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewAggregator(nil).MergeOptions(tt.defaults, tt.parsed, tt.override)
			assert.Equal(t, tt.want, got.Options)
			assert.False(t, got.SkipOverride)
		})
	}
}

func TestMergeOptions_BundledShortFlagsWithOverride(t *testing.T) {
	specs := []plugindomain.FlagSpec{
		{Name: "a", Type: plugindomain.FlagBool},
		{Name: "b", Type: plugindomain.FlagBool},
		{Name: "c", Type: plugindomain.FlagBool},
		{Name: "hello"},
	}
	parsed, err := ParsePluginArgs(specs, []string{"-abc", "--hello", "world"})
	require.NoError(t, err)

	got := NewAggregator(nil).MergeOptions(nil, parsed, plugindomain.Options{"from": "build"})
	assert.Equal(t, plugindomain.Options{"a": true, "b": true, "c": true, "hello": "world", "from": "build"}, got.Options)
}

func TestMergeOptions_ConsumesSkipOverride(t *testing.T) {
	override := plugindomain.Options{"skipOverride": true, "hello": "world"}

	got := NewAggregator(nil).MergeOptions(nil, nil, override)

	assert.True(t, got.SkipOverride)
	assert.Equal(t, plugindomain.Options{"hello": "world"}, got.Options)
	assert.Contains(t, override, "skipOverride", "the caller's map is not modified")
}

func TestMergeOptions_Provenance(t *testing.T) {
	got := NewAggregator(nil).MergeOptions(
		plugindomain.Options{"a": 1, "b": 1},
		plugindomain.Options{"b": 2},
		plugindomain.Options{"c": 3},
	)
	assert.Equal(t, SourcePlugin, got.Snapshot["a"].Source)
	assert.Equal(t, SourceCLI, got.Snapshot["b"].Source)
	assert.Equal(t, SourceOverride, got.Snapshot["c"].Source)
	assert.Equal(t, configdomain.PriorityOverride, got.Snapshot["c"].Priority)
}

func TestMergeOptions_PrecedenceProperty(t *testing.T) {
	keys := rapid.SampledFrom([]string{"a", "b", "c", "d", "e"})
	bag := rapid.MapOf(keys, rapid.IntRange(0, 100))

	rapid.Check(t, func(t *rapid.T) {
		defaults := bag.Draw(t, "defaults")
		parsed := bag.Draw(t, "parsed")
		override := bag.Draw(t, "override")

		got := NewAggregator(nil).MergeOptions(toOptions(defaults), toOptions(parsed), toOptions(override)).Options

		for k, v := range got {
			if o, ok := override[k]; ok {
				assert.Equal(t, o, v)
			} else if p, ok := parsed[k]; ok {
				assert.Equal(t, p, v)
			} else {
				assert.Equal(t, defaults[k], v)
			}
		}
		assert.Len(t, got, len(union(defaults, parsed, override)))
	})
}

func toOptions(m map[string]int) plugindomain.Options {
	out := plugindomain.Options{}
	for k, v := range m {
		out[k] = v
	}
	return out
}

func union(ms ...map[string]int) map[string]bool {
	out := map[string]bool{}
	for _, m := range ms {
		for k := range m {
			out[k] = true
		}
	}
	return out
}

func TestMergeLogger(t *testing.T) {
	pluginCfg := &configdomain.LoggerConfig{
		Level:  "info",
		Redact: configdomain.Redact{Paths: []string{"foo"}},
	}

	tests := []struct {
		name string
		src  LoggerSources
		want configdomain.LoggerConfig
	}{
		{
			name: "tool default",
			want: configdomain.LoggerConfig{Level: "fatal", Destination: "stdout"},
		},
		{
			name: "plugin config over default",
			src:  LoggerSources{Plugin: pluginCfg},
			want: configdomain.LoggerConfig{Level: "info", Destination: "stdout", Redact: pluginCfg.Redact},
		},
		{
			name: "cli level over plugin keeps plugin redaction",
			src:  LoggerSources{Plugin: pluginCfg, CLI: configdomain.LoggerConfig{Level: "warn"}},
			want: configdomain.LoggerConfig{Level: "warn", Destination: "stdout", Redact: pluginCfg.Redact},
		},
		{
			name: "override over cli",
			src: LoggerSources{
				Plugin:   pluginCfg,
				CLI:      configdomain.LoggerConfig{Level: "warn", Destination: "stderr"},
				Override: &configdomain.LoggerConfig{Level: "error"},
			},
			want: configdomain.LoggerConfig{Level: "error", Destination: "stderr", Redact: pluginCfg.Redact},
		},
		{
			name: "explicit false pretty beats plugin",
			src: LoggerSources{
				Plugin: &configdomain.LoggerConfig{Pretty: configdomain.Bool(true)},
				CLI:    configdomain.LoggerConfig{Pretty: configdomain.Bool(false)},
			},
			want: configdomain.LoggerConfig{Level: "fatal", Destination: "stdout", Pretty: configdomain.Bool(false)},
		},
		{
			name: "override switches pretty off",
			src: LoggerSources{
				CLI:      configdomain.LoggerConfig{Pretty: configdomain.Bool(true)},
				Override: &configdomain.LoggerConfig{Pretty: configdomain.Bool(false)},
			},
			want: configdomain.LoggerConfig{Level: "fatal", Destination: "stdout", Pretty: configdomain.Bool(false)},
		},
		{
			name: "override turns redaction removal off",
			src: LoggerSources{
				Plugin:   &configdomain.LoggerConfig{Redact: configdomain.Redact{Paths: []string{"foo"}, Remove: configdomain.Bool(true)}},
				Override: &configdomain.LoggerConfig{Redact: configdomain.Redact{Paths: []string{"foo"}, Remove: configdomain.Bool(false)}},
			},
			want: configdomain.LoggerConfig{Level: "fatal", Destination: "stdout", Redact: configdomain.Redact{Paths: []string{"foo"}, Remove: configdomain.Bool(false)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewAggregator(nil).MergeLogger(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeLogger_PrettyLogsFalseFlag(t *testing.T) {
	tool, err := ParseToolArgs([]string{"--pretty-logs=false"}, configinfra.NewMapEnv(nil))
	require.NoError(t, err)

	got, err := NewAggregator(nil).MergeLogger(LoggerSources{
		Plugin: &configdomain.LoggerConfig{Pretty: configdomain.Bool(true)},
		CLI:    tool.ExplicitLogger(),
	})
	require.NoError(t, err)
	assert.False(t, got.PrettyEnabled())
}

func TestMergeLogger_InvalidLevel(t *testing.T) {
	_, err := NewAggregator(nil).MergeLogger(LoggerSources{CLI: configdomain.LoggerConfig{Level: "loud"}})
	assert.ErrorContains(t, err, "invalid log level")
}
