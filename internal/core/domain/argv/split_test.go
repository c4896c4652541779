package argvdomain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name       string
		argv       []string
		wantPath   string
		wantTool   []string
		wantPlugin []string
		wantDelim  bool
	}{
		{
			name:       "empty",
			argv:       nil,
			wantTool:   []string{},
			wantPlugin: []string{},
		},
		{
			name:       "path_only",
			argv:       []string{"./plugin.lua"},
			wantPath:   "./plugin.lua",
			wantTool:   []string{},
			wantPlugin: []string{},
		},
		{
			name:       "tool_flags_without_delimiter",
			argv:       []string{"./plugin.lua", "--options", "-p", "0"},
			wantPath:   "./plugin.lua",
			wantTool:   []string{"--options", "-p", "0"},
			wantPlugin: []string{},
		},
		{
			name:       "plugin_flags_after_delimiter",
			argv:       []string{"./plugin.lua", "--", "-abc", "--hello", "world"},
			wantPath:   "./plugin.lua",
			wantTool:   []string{},
			wantPlugin: []string{"-abc", "--hello", "world"},
			wantDelim:  true,
		},
		{
			name:       "only_first_delimiter_is_honoured",
			argv:       []string{"p", "-o", "--", "a", "--", "b"},
			wantPath:   "p",
			wantTool:   []string{"-o"},
			wantPlugin: []string{"a", "--", "b"},
			wantDelim:  true,
		},
		{
			name:       "leading_delimiter",
			argv:       []string{"--", "x"},
			wantTool:   []string{},
			wantPlugin: []string{"x"},
			wantDelim:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := Split(tt.argv)
			assert.Equal(t, tt.wantPath, spec.PluginPath)
			assert.Equal(t, tt.wantTool, spec.ToolArgs)
			assert.Equal(t, tt.wantPlugin, spec.PluginArgs)
			assert.Equal(t, tt.wantDelim, spec.HasDelimiter)
		})
	}
}

func TestSplitString(t *testing.T) {
	spec := SplitString("./examples/plugin-with-custom-options.lua -- --hello world --from args")

	assert.Equal(t, "./examples/plugin-with-custom-options.lua", spec.PluginPath)
	assert.Empty(t, spec.ToolArgs)
	assert.Equal(t, []string{"--hello", "world", "--from", "args"}, spec.PluginArgs)
}

func TestSplit_Property_RejoinReproducesInput(t *testing.T) {
	token := rapid.SampledFrom([]string{"--", "-a", "--hello", "world", "x", "", "-abc", "--port=3"})

	rapid.Check(t, func(t *rapid.T) {
		argv := rapid.SliceOf(token).Draw(t, "argv")
		spec := Split(argv)

		assert.Equal(t, len(argv), len(spec.Argv()))
		for i := range argv {
			assert.Equal(t, argv[i], spec.Argv()[i])
		}
		if !spec.HasDelimiter {
			assert.Empty(t, spec.PluginArgs)
		}
		for _, arg := range spec.ToolArgs {
			assert.NotEqual(t, Delimiter, arg)
		}
	})
}

func TestSplitWith(t *testing.T) {
	afterFlag := func(leading []string) int {
		for i, arg := range leading {
			if arg == "-l" {
				return i + 2
			}
		}
		return -1
	}

	tests := []struct {
		name     string
		argv     []string
		wantPath string
		wantTool []string
	}{
		{
			name:     "flags_before_path",
			argv:     []string{"-l", "warn", "plugin.lua", "-p", "0", "--", "-x"},
			wantPath: "plugin.lua",
			wantTool: []string{"-l", "warn", "-p", "0"},
		},
		{
			name:     "no_positional",
			argv:     []string{"-p", "0"},
			wantTool: []string{"-p", "0"},
		},
		{
			name:     "index_past_leading",
			argv:     []string{"-l", "warn"},
			wantTool: []string{"-l", "warn"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := SplitWith(tt.argv, afterFlag)
			assert.Equal(t, tt.wantPath, spec.PluginPath)
			assert.Equal(t, tt.wantTool, spec.ToolArgs)
			assert.Equal(t, tt.argv, spec.Argv())
		})
	}
}

func TestSplitWith_Property_LeadingKeepsOrder(t *testing.T) {
	token := rapid.SampledFrom([]string{"-a", "--hello", "world", "x", "-abc"})

	rapid.Check(t, func(t *rapid.T) {
		leading := rapid.SliceOf(token).Draw(t, "leading")
		at := rapid.IntRange(-1, len(leading)).Draw(t, "at")
		spec := SplitWith(leading, func([]string) int { return at })

		assert.Equal(t, len(leading), len(spec.Leading()))
		for i := range leading {
			assert.Equal(t, leading[i], spec.Leading()[i])
		}
		if at >= 0 && at < len(leading) {
			assert.Equal(t, leading[at], spec.PluginPath)
			assert.Len(t, spec.ToolArgs, len(leading)-1)
		} else {
			assert.Empty(t, spec.PluginPath)
			assert.Len(t, spec.ToolArgs, len(leading))
		}
	})
}
