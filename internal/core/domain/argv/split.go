package argvdomain

import "strings"

// Delimiter separates tool arguments from plugin arguments.
const Delimiter = "--"

// Spec is a raw argument vector split around the delimiter.
type Spec struct {
	// PluginPath is the first positional argument before the delimiter,
	// conventionally the plugin module file.
	PluginPath string

	// ToolArgs are the remaining arguments before the delimiter, in order.
	ToolArgs []string

	// PluginArgs are the arguments after the first delimiter.
	PluginArgs []string

	// HasDelimiter is true when the delimiter was present.
	HasDelimiter bool

	hasPath bool
	pathAt  int // index of PluginPath among the leading arguments
}

// PathLocator returns the index of the plugin path within the arguments
// ahead of the delimiter, or -1 when none of them is positional.
type PathLocator func(leading []string) int

// FirstArg locates the plugin path at the first argument.
func FirstArg(leading []string) int {
	if len(leading) == 0 {
		return -1
	}
	return 0
}

// Split partitions argv around the first delimiter and takes the first
// argument as the plugin path. Later delimiters are kept verbatim in
// PluginArgs.
func Split(argv []string) Spec {
	return SplitWith(argv, FirstArg)
}

// SplitWith is Split with the plugin path chosen by locate, so that flags
// may precede it.
func SplitWith(argv []string, locate PathLocator) Spec {
	before := argv
	var after []string
	sep := -1
	for i, arg := range argv {
		if arg == Delimiter {
			sep = i
			break
		}
	}
	if sep != -1 {
		before = argv[:sep]
		after = argv[sep+1:]
	}

	spec := Spec{
		ToolArgs:     []string{},
		PluginArgs:   []string{},
		HasDelimiter: sep != -1,
	}
	at := locate(before)
	if at >= 0 && at < len(before) {
		spec.PluginPath = before[at]
		spec.hasPath = true
		spec.pathAt = at
		spec.ToolArgs = append(spec.ToolArgs, before[:at]...)
		spec.ToolArgs = append(spec.ToolArgs, before[at+1:]...)
	} else {
		spec.ToolArgs = append(spec.ToolArgs, before...)
	}
	spec.PluginArgs = append(spec.PluginArgs, after...)
	return spec
}

// SplitString tokenizes line and splits the result.
func SplitString(line string) Spec {
	return Split(Tokenize(line))
}

// Tokenize splits a raw command line on whitespace. Quoting is not interpreted.
func Tokenize(line string) []string {
	return strings.Fields(line)
}

// Leading returns the arguments ahead of the delimiter, plugin path
// included, in their original order.
func (s Spec) Leading() []string {
	out := make([]string, 0, len(s.ToolArgs)+1)
	if !s.hasPath {
		return append(out, s.ToolArgs...)
	}
	out = append(out, s.ToolArgs[:s.pathAt]...)
	out = append(out, s.PluginPath)
	return append(out, s.ToolArgs[s.pathAt:]...)
}

// Argv reassembles the original argument vector.
func (s Spec) Argv() []string {
	out := s.Leading()
	if s.HasDelimiter {
		out = append(out, Delimiter)
		out = append(out, s.PluginArgs...)
	}
	return out
}
