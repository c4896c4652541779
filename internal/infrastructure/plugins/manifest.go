package plugins

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	configdomain "kilometers.ai/boot/internal/core/domain/config"
	plugindomain "kilometers.ai/boot/internal/core/domain/plugin"
	configports "kilometers.ai/boot/internal/core/ports/config"
	"kilometers.ai/boot/internal/infrastructure/server"
)

// optionsEcho is the route body that replies with the registration options.
const optionsEcho = "$options"

// Manifest is a declarative plugin module. YAML and JSON documents are both
// accepted.
type Manifest struct {
	Name     string                  `yaml:"name"`
	Flags    []plugindomain.FlagSpec `yaml:"flags"`
	Options  map[string]interface{}  `yaml:"options"`
	Logger   map[string]interface{}  `yaml:"logger"`
	Decorate map[string]interface{}  `yaml:"decorate"`
	Routes   []ManifestRoute         `yaml:"routes"`
}

// ManifestRoute is a route answered with a fixed body. String values in Body
// and Headers may reference ${VAR} from the environment and ${options.key}
// from the registration options.
type ManifestRoute struct {
	Method  string            `yaml:"method"`
	Path    string            `yaml:"path"`
	Status  int               `yaml:"status"`
	Headers map[string]string `yaml:"headers"`
	Body    interface{}       `yaml:"body"`
}

type manifestDocument struct {
	Default  *Manifest `yaml:"default"`
	Manifest `yaml:",inline"`
}

// ManifestStrategy loads Manifest documents.
type ManifestStrategy struct {
	env configports.Env
}

func NewManifestStrategy(env configports.Env) *ManifestStrategy {
	return &ManifestStrategy{env: env}
}

func (s *ManifestStrategy) Format() plugindomain.Format { return plugindomain.FormatManifest }

func (s *ManifestStrategy) Load(_ context.Context, path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	m, err := DecodeManifest(data)
	if err != nil {
		return nil, err
	}

	desc := &Descriptor{
		Name:   moduleName(path, m.Name),
		Path:   path,
		Format: plugindomain.FormatManifest,
		Flags:  m.Flags,
		Plugin: s.pluginFunc(m),
	}
	if m.Options != nil {
		desc.Options = staticOptions(m.Options)
	}
	if m.Logger != nil {
		cfg, err := configdomain.LoggerConfigFromMap(m.Logger)
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
		desc.Logger = &cfg
	}
	return desc, nil
}

// DecodeManifest parses a manifest, unwrapping a top-level default key.
// Documents that do not decode are a format mismatch; documents that decode
// but declare invalid content are not.
func DecodeManifest(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc manifestDocument
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty manifest", plugindomain.ErrModuleFormat)
		}
		return nil, fmt.Errorf("%w: %v", plugindomain.ErrModuleFormat, err)
	}

	m := &doc.Manifest
	if doc.Default != nil {
		if !doc.Manifest.isZero() {
			return nil, fmt.Errorf("default must be the only top-level key")
		}
		m = doc.Default
	}

	for _, f := range m.Flags {
		if err := f.Validate(); err != nil {
			return nil, err
		}
	}
	for i, r := range m.Routes {
		if r.Path == "" {
			return nil, fmt.Errorf("routes[%d]: path is required", i)
		}
		if r.Status != 0 && (r.Status < 100 || r.Status > 999) {
			return nil, fmt.Errorf("routes[%d]: invalid status %d", i, r.Status)
		}
	}
	return m, nil
}

func (m *Manifest) isZero() bool {
	return m.Name == "" && m.Flags == nil && m.Options == nil && m.Logger == nil &&
		m.Decorate == nil && m.Routes == nil
}

func (s *ManifestStrategy) pluginFunc(m *Manifest) server.PluginFunc {
	return func(ctx context.Context, app *server.App, opts plugindomain.Options) error {
		expand := s.expander(opts)

		for name, value := range m.Decorate {
			if err := app.Decorate(name, expandValue(value, expand)); err != nil {
				return err
			}
		}

		for _, r := range m.Routes {
			method := strings.ToUpper(r.Method)
			if method == "" {
				method = http.MethodGet
			}
			if err := app.Route(method, r.Path, manifestHandler(r, opts, expand)); err != nil {
				return err
			}
		}
		return nil
	}
}

func (s *ManifestStrategy) expander(opts plugindomain.Options) func(string) string {
	return func(name string) string {
		if key, ok := strings.CutPrefix(name, "options."); ok {
			if v, ok := opts[key]; ok && v != nil {
				return fmt.Sprint(v)
			}
			return ""
		}
		v, _ := s.env.Lookup(name)
		return v
	}
}

// manifestHandler resolves the reply once, at registration.
func manifestHandler(r ManifestRoute, opts plugindomain.Options, expand func(string) string) http.HandlerFunc {
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	headers := make(map[string]string, len(r.Headers))
	for k, v := range r.Headers {
		headers[k] = os.Expand(v, expand)
	}

	var body interface{}
	if r.Body == optionsEcho {
		body = map[string]interface{}(opts.Clone())
	} else {
		body = expandValue(r.Body, expand)
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		switch b := body.(type) {
		case nil:
			w.WriteHeader(status)
		case string:
			server.WriteText(w, status, b)
		default:
			server.WriteJSON(w, status, b)
		}
	}
}

func expandValue(v interface{}, expand func(string) string) interface{} {
	switch v := v.(type) {
	case string:
		return os.Expand(v, expand)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = expandValue(item, expand)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = expandValue(item, expand)
		}
		return out
	default:
		return v
	}
}
