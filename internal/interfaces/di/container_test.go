package di

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configinfra "kilometers.ai/boot/internal/infrastructure/config"
)

func TestNewContainer_SharesDependencies(t *testing.T) {
	env := configinfra.NewMapEnv(nil)
	var out, errOut bytes.Buffer

	c, err := NewContainer(Options{Env: env, Dir: t.TempDir(), Stdout: &out, Stderr: &errOut})
	require.NoError(t, err)

	assert.Same(t, c.Builder, c.CLIContainer.Builder)
	assert.Equal(t, env, c.Builder.Env)
	assert.Equal(t, c.Dir, c.Builder.Dir)
	assert.Same(t, c.LogLevel, c.CLIContainer.LogLevel)
	assert.Same(t, &out, c.CLIContainer.Out)

	c.Logger.Info("hello")
	assert.Contains(t, errOut.String(), "hello")
	assert.Empty(t, out.String())
}

func TestNewContainer_Defaults(t *testing.T) {
	c, err := NewContainer(Options{})
	require.NoError(t, err)

	assert.NotEmpty(t, c.Dir)
	assert.IsType(t, configinfra.ProcessEnv{}, c.Env)
}
