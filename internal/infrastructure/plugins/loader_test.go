package plugins

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configdomain "kilometers.ai/boot/internal/core/domain/config"
	plugindomain "kilometers.ai/boot/internal/core/domain/plugin"
	configinfra "kilometers.ai/boot/internal/infrastructure/config"
	"kilometers.ai/boot/internal/infrastructure/logging"
	"kilometers.ai/boot/internal/infrastructure/server"
)

func newTestLoader(vars map[string]string) *Loader {
	return NewLoader(configinfra.NewMapEnv(vars), nil)
}

func load(t *testing.T, l *Loader, path string) *Descriptor {
	t.Helper()
	desc, err := l.Load(context.Background(), "testdata", path)
	require.NoError(t, err)
	t.Cleanup(func() { desc.Release() })
	return desc
}

// register loads path, registers it on a fresh app without encapsulation and
// returns the app.
func register(t *testing.T, desc *Descriptor, cfg server.Config, opts plugindomain.Options) *server.App {
	t.Helper()
	app := server.New(cfg)
	t.Cleanup(func() { app.Close(context.Background()) })
	require.NoError(t, app.Register(context.Background(), desc.Plugin, opts, server.RegisterOptions{SkipOverride: true}))
	return app
}

func getJSON(t *testing.T, app *server.App, url string) map[string]interface{} {
	t.Helper()
	res, err := app.Inject(context.Background(), server.InjectRequest{URL: url})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode, res.String())
	var body map[string]interface{}
	require.NoError(t, res.JSON(&body))
	return body
}

func TestLoad_FormatsAreInterchangeable(t *testing.T) {
	tests := []struct {
		file   string
		format plugindomain.Format
		name   string
	}{
		{"plugin.lua", plugindomain.FormatScript, "plugin"},
		{"plugin.yaml", plugindomain.FormatManifest, "manifest-hello"},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			desc := load(t, newTestLoader(nil), tt.file)
			assert.Equal(t, tt.format, desc.Format)
			assert.Equal(t, tt.name, desc.Name)
			assert.Equal(t, filepath.Join("testdata", tt.file), desc.Path)

			app := register(t, desc, server.Config{}, nil)
			assert.True(t, app.HasDecorator("test"))
			assert.Equal(t, map[string]interface{}{"hello": "world"}, getJSON(t, app, "/"))
		})
	}
}

func TestLoad_DefaultWrapper(t *testing.T) {
	for _, file := range []string{"plugin-default.lua", "plugin-default.yaml"} {
		t.Run(file, func(t *testing.T) {
			desc := load(t, newTestLoader(nil), file)
			assert.Equal(t, "wrapped", desc.Name)

			app := register(t, desc, server.Config{}, nil)
			assert.True(t, app.HasDecorator("wrapped"))
		})
	}
}

func TestLoad_ReadsInjectedEnv(t *testing.T) {
	env := map[string]string{"GREETING": "one"}

	t.Run("script", func(t *testing.T) {
		app := register(t, load(t, newTestLoader(env), "plugin-with-env.lua"), server.Config{}, nil)
		assert.Equal(t, map[string]interface{}{"greeting": "one"}, getJSON(t, app, "/"))
	})

	t.Run("manifest", func(t *testing.T) {
		opts := plugindomain.Options{"hello": "planet"}
		app := register(t, load(t, newTestLoader(env), "plugin-with-env.yaml"), server.Config{}, opts)

		res, err := app.Inject(context.Background(), server.InjectRequest{URL: "/"})
		require.NoError(t, err)
		assert.Equal(t, "one", res.Header.Get("X-Greeting"))

		assert.Equal(t, map[string]interface{}{"hello": "planet"}, getJSON(t, app, "/opts"))

		res, err = app.Inject(context.Background(), server.InjectRequest{URL: "/hello"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, res.StatusCode)
		assert.Equal(t, "hello planet", res.String())
	})
}

func TestLoad_FlagsAndOptionsFactory(t *testing.T) {
	desc := load(t, newTestLoader(nil), "plugin-with-custom-options.lua")

	names := make([]string, 0, len(desc.Flags))
	for _, f := range desc.Flags {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"a", "b", "c", "hello", "from"}, names)
	assert.Equal(t, "a", desc.Flags[0].Shorthand())

	require.NotNil(t, desc.Options)
	opts, err := desc.Options(context.Background(), []string{"plugin-with-custom-options.lua", "-p", "0"})
	require.NoError(t, err)
	assert.Equal(t, plugindomain.Options{"from": "plugin", "argc": 3}, opts)
}

func TestLoad_ExportedLoggerConfig(t *testing.T) {
	for _, file := range []string{"plugin-with-logger.lua", "plugin-with-logger.json"} {
		t.Run(file, func(t *testing.T) {
			desc := load(t, newTestLoader(nil), file)
			require.NotNil(t, desc.Logger)
			assert.Equal(t, []string{"foo"}, desc.Logger.Redact.Paths)
			assert.Equal(t, "***", desc.Logger.Redact.Censor)
		})
	}
}

func TestLoad_ScriptLogsThroughRedactingLogger(t *testing.T) {
	desc := load(t, newTestLoader(nil), "plugin-with-logger.lua")

	var out bytes.Buffer
	cfg := configdomain.LoggerConfig{Level: "info", Stream: &out}.Overlay(*desc.Logger)
	logger, err := logging.New(cfg)
	require.NoError(t, err)

	app := register(t, desc, server.Config{Logger: logger}, nil)
	res, err := app.Inject(context.Background(), server.InjectRequest{URL: "/"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.String())

	assert.Contains(t, out.String(), `"foo":"***"`)
	assert.Contains(t, out.String(), `"bar":"visible"`)
	assert.NotContains(t, out.String(), "secret")
}

func TestLoad_ScriptNestedFieldsAreRedacted(t *testing.T) {
	desc := load(t, newTestLoader(nil), "plugin-nested-redaction.lua")

	var out bytes.Buffer
	cfg := configdomain.LoggerConfig{Level: "info", Stream: &out}.Overlay(*desc.Logger)
	logger, err := logging.New(cfg)
	require.NoError(t, err)

	register(t, desc, server.Config{Logger: logger}, nil)

	assert.Contains(t, out.String(), `"password":"`+configdomain.DefaultCensor+`"`)
	assert.Contains(t, out.String(), `"name":"ann"`)
	assert.Contains(t, out.String(), `"accept":"*/*"`)
	assert.NotContains(t, out.String(), "hunter2")
	assert.NotContains(t, out.String(), "Bearer x")
}

func TestLoad_ScriptRoutes(t *testing.T) {
	app := register(t, load(t, newTestLoader(nil), "plugin-routes.lua"), server.Config{}, nil)
	ctx := context.Background()

	res, err := app.Inject(ctx, server.InjectRequest{
		Method:  http.MethodPost,
		URL:     "/echo/42?q=find",
		Headers: map[string]string{"X-Test": "yes"},
		Payload: map[string]interface{}{"a": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	var body map[string]interface{}
	require.NoError(t, res.JSON(&body))
	assert.Equal(t, "42", body["id"])
	assert.Equal(t, "POST", body["method"])
	assert.Equal(t, "find", body["q"])
	assert.Equal(t, "yes", body["header"])
	assert.Equal(t, `{"a":1}`, body["body"])
	assert.Equal(t, map[string]interface{}{"a": float64(1)}, body["json"])

	res, err = app.Inject(ctx, server.InjectRequest{URL: "/text"})
	require.NoError(t, err)
	assert.Equal(t, "plain text", res.String())
	assert.Contains(t, res.Header.Get("Content-Type"), "text/plain")

	res, err = app.Inject(ctx, server.InjectRequest{URL: "/empty"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res, err = app.Inject(ctx, server.InjectRequest{URL: "/boom"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
}

func TestLoad_Errors(t *testing.T) {
	dir, err := filepath.Abs("testdata")
	require.NoError(t, err)

	tests := []struct {
		name        string
		path        string
		want        error
		notWant     error
		msgContains string
	}{
		{name: "empty path", path: "", want: plugindomain.ErrModuleNotFound},
		{name: "missing file", path: "nope.lua", want: plugindomain.ErrModuleNotFound},
		{name: "directory", path: dir, want: plugindomain.ErrModuleNotFound},
		{
			name:        "runtime error is not masked by the fallback",
			path:        "plugin-runtime-error.lua",
			want:        plugindomain.ErrModuleLoad,
			notWant:     plugindomain.ErrModuleFormat,
			msgContains: "refusing to load",
		},
		{name: "bad module shape", path: "plugin-bad-shape.lua", want: plugindomain.ErrModuleLoad, msgContains: "function or a table"},
		{name: "neither format", path: "not-a-plugin.txt", want: plugindomain.ErrModuleFormat, msgContains: "manifest"},
		{name: "unknown manifest key", path: "plugin-unknown-key.yaml", want: plugindomain.ErrModuleLoad, msgContains: "middleware"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, err := newTestLoader(nil).Load(context.Background(), "testdata", tt.path)
			require.Error(t, err)
			assert.Nil(t, desc)
			assert.ErrorIs(t, err, tt.want)
			if tt.notWant != nil {
				assert.NotErrorIs(t, err, tt.notWant)
			}
			if tt.msgContains != "" {
				assert.Contains(t, err.Error(), tt.msgContains)
			}
		})
	}
}

func TestLoad_NeitherFormatReportsBoth(t *testing.T) {
	_, err := newTestLoader(nil).Load(context.Background(), "testdata", "not-a-plugin.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, plugindomain.ErrModuleLoad)
	assert.Contains(t, err.Error(), "script:")
	assert.Contains(t, err.Error(), "manifest:")
}

func TestLoad_NotCached(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugin.lua")
	l := newTestLoader(nil)

	write := func(name string) {
		src := `return { name = "` + name + `", plugin = function(app, opts) end }`
		require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	}

	write("first")
	first, err := l.Load(context.Background(), dir, "plugin.lua")
	require.NoError(t, err)
	defer first.Release()

	write("second")
	second, err := l.Load(context.Background(), dir, "plugin.lua")
	require.NoError(t, err)
	defer second.Release()

	assert.Equal(t, "first", first.Name)
	assert.Equal(t, "second", second.Name)
}

func TestRelease_ClosesScriptState(t *testing.T) {
	desc, err := newTestLoader(nil).Load(context.Background(), "testdata", "plugin.lua")
	require.NoError(t, err)

	require.NoError(t, desc.Release())
	require.NoError(t, desc.Release())

	app := server.New(server.Config{})
	defer app.Close(context.Background())
	err = app.Register(context.Background(), desc.Plugin, nil, server.RegisterOptions{})
	assert.ErrorIs(t, err, errScriptClosed)
}

type fakeStrategy struct {
	format plugindomain.Format
	err    error
	calls  int
}

func (f *fakeStrategy) Format() plugindomain.Format { return f.format }

func (f *fakeStrategy) Load(_ context.Context, path string) (*Descriptor, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Descriptor{Name: string(f.format), Path: path, Format: f.format}, nil
}

func TestLoader_FallbackOnlyOnFormatMismatch(t *testing.T) {
	t.Run("mismatch falls through", func(t *testing.T) {
		first := &fakeStrategy{format: "one", err: plugindomain.ErrModuleFormat}
		second := &fakeStrategy{format: "two"}

		desc, err := NewLoaderWithStrategies(nil, first, second).Load(context.Background(), "testdata", "plugin.lua")
		require.NoError(t, err)
		assert.Equal(t, plugindomain.Format("two"), desc.Format)
	})

	t.Run("other errors stop", func(t *testing.T) {
		first := &fakeStrategy{format: "one", err: errors.New("broken")}
		second := &fakeStrategy{format: "two"}

		_, err := NewLoaderWithStrategies(nil, first, second).Load(context.Background(), "testdata", "plugin.lua")
		assert.ErrorIs(t, err, plugindomain.ErrModuleLoad)
		assert.Zero(t, second.calls)
	})
}

func TestLoad_Examples(t *testing.T) {
	dir := filepath.Join("..", "..", "..", "examples")
	env := map[string]string{"GREETING": "hi"}

	tests := []struct {
		file string
		url  string
		want map[string]interface{}
	}{
		{"hello.lua", "/", map[string]interface{}{"message": "hi, world"}},
		{"hello.yaml", "/", map[string]interface{}{"message": "hello, world"}},
		{"hello.yaml", "/options", map[string]interface{}{"name": "world"}},
	}

	for _, tt := range tests {
		t.Run(tt.file+tt.url, func(t *testing.T) {
			desc, err := newTestLoader(env).Load(context.Background(), dir, tt.file)
			require.NoError(t, err)
			t.Cleanup(func() { desc.Release() })

			opts, err := desc.Options(context.Background(), nil)
			require.NoError(t, err)
			app := register(t, desc, server.Config{}, opts)
			assert.Equal(t, tt.want, getJSON(t, app, tt.url))
		})
	}
}
