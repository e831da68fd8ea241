package cliopts_test

import (
	"os"
	"testing"

	"github.com/duskline/netasync/cliopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommandLineOverridesDefault(t *testing.T) {
	p := cliopts.New("test", "1.0.0")
	port := p.DefineInt("port", 8080, "listen port")

	require.NoError(t, p.Parse([]string{"--port=9090"}))
	assert.Equal(t, 9090, *port)
}

func TestParseHelpReturnsErrHelp(t *testing.T) {
	p := cliopts.New("test", "1.0.0")
	assert.ErrorIs(t, p.Parse([]string{"--help"}), cliopts.ErrHelp)
}

func TestParseVersionReturnsErrVersion(t *testing.T) {
	p := cliopts.New("test", "1.0.0")
	assert.ErrorIs(t, p.Parse([]string{"-v"}), cliopts.ErrVersion)
}

func TestParseConfigFileIsOverriddenByCommandLine(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/app.ini"
	require.NoError(t, os.WriteFile(path, []byte("port = 7000\n"), 0o644))

	p := cliopts.New("test", "1.0.0")
	port := p.DefineInt("port", 8080, "listen port")

	require.NoError(t, p.Parse([]string{"--config=" + path}))
	assert.Equal(t, 7000, *port)

	p2 := cliopts.New("test", "1.0.0")
	port2 := p2.DefineInt("port", 8080, "listen port")
	require.NoError(t, p2.Parse([]string{"--config=" + path, "--port=9999"}))
	assert.Equal(t, 9999, *port2)
}
