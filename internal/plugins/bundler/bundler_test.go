package bundler

import (
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEngines(t *testing.T) {
	engines, err := ParseEngines([]string{"chrome58", "Safari11.1", " firefox57 "})
	require.NoError(t, err)
	assert.Equal(t, []api.Engine{
		{Name: api.EngineChrome, Version: "58"},
		{Name: api.EngineSafari, Version: "11.1"},
		{Name: api.EngineFirefox, Version: "57"},
	}, engines)

	_, err = ParseEngines([]string{"netscape4"})
	assert.ErrorContains(t, err, "unknown browser")

	_, err = ParseEngines([]string{"chrome"})
	assert.ErrorContains(t, err, "invalid browser target")
}

func TestParseTarget(t *testing.T) {
	target, err := ParseTarget("")
	require.NoError(t, err)
	assert.Equal(t, api.ES2015, target)

	target, err = ParseTarget("ES2020")
	require.NoError(t, err)
	assert.Equal(t, api.ES2020, target)

	_, err = ParseTarget("es1999")
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Check(nil))

	err := Check([]api.Message{
		{Text: "Expected \";\"", Location: &api.Location{File: "main.js", Line: 3, Column: 7}},
		{Text: "second"},
	})
	require.Error(t, err)
	assert.Equal(t, `main.js:3:7: Expected ";"; second`, err.Error())
}

func TestUnminified(t *testing.T) {
	assert.Equal(t, "style.css", Unminified("style.min.css"))
	assert.Equal(t, "style.css", Unminified("style.css"))
	assert.Equal(t, "script.js", Unminified("nested/script.min.js"))
}
