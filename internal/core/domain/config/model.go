package configdomain

// Priorities used when merging option and logger sources (lower number wins).
const (
	PriorityOverride = 1
	PriorityCLI      = 2
	PriorityPlugin   = 3
	PriorityDefault  = 4
)

// Entry represents a single configuration value with provenance and priority.
type Entry struct {
	Key        string
	Value      interface{}
	Source     string
	SourcePath string
	Priority   int
}

// Snapshot is a collection of config entries keyed by field name.
type Snapshot map[string]Entry

// NewSnapshot builds a snapshot where every value shares the same source and priority.
func NewSnapshot(values map[string]interface{}, source, sourcePath string, priority int) Snapshot {
	snap := make(Snapshot, len(values))
	for k, v := range values {
		snap[k] = Entry{Key: k, Value: v, Source: source, SourcePath: sourcePath, Priority: priority}
	}
	return snap
}

// Merge merges another snapshot into this one respecting priority
// (lower number indicates higher priority).
func (s Snapshot) Merge(other Snapshot) {
	for k, e := range other {
		if existing, ok := s[k]; !ok || e.Priority <= existing.Priority {
			s[k] = e
		}
	}
}

// Values flattens the snapshot into a plain key/value map.
func (s Snapshot) Values() map[string]interface{} {
	out := make(map[string]interface{}, len(s))
	for k, e := range s {
		out[k] = e.Value
	}
	return out
}
