package configports

import "context"

// Env is a mutable key/value view of environment variables. The process
// environment is one implementation; tests inject an isolated map.
type Env interface {
	Lookup(key string) (string, bool)
	Set(key, value string) error
}

// EnvFileLoader applies a .env style file from a directory to an Env.
type EnvFileLoader interface {
	// Load applies every variable not already present in env and returns the
	// keys it set. A missing file is not an error.
	Load(ctx context.Context, dir string, env Env) ([]string, error)
}
