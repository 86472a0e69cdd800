package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderScript(t *testing.T) {
	script, err := RenderScript(ScriptParams{
		Name:      "walletBridge",
		Visualize: true,
		Endpoint:  "http://127.0.0.1:8790/",
	})
	require.NoError(t, err)

	assert.Contains(t, script, `'walletBridge'`)
	assert.Contains(t, script, `'http://127.0.0.1:8790'`)
	assert.NotContains(t, script, `8790/'`)
	assert.NotContains(t, script, "{{")
}

func TestRenderScriptDefaults(t *testing.T) {
	script, err := RenderScript(ScriptParams{})
	require.NoError(t, err)

	assert.Contains(t, script, `'nativeWrapper'`)
	assert.Contains(t, script, `''`)
}

func TestRenderScriptEscapesName(t *testing.T) {
	script, err := RenderScript(ScriptParams{Name: `x';alert(1);'`})
	require.NoError(t, err)

	assert.NotContains(t, script, `'x';alert(1);''`)
}
