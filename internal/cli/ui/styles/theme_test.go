package styles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderCheck(t *testing.T) {
	assert.Contains(t, RenderCheck(true, "certificate"), IconSuccess+" certificate")
	assert.Contains(t, RenderCheck(false, "certificate"), IconError+" certificate")
}

func TestRenderBanner(t *testing.T) {
	out := RenderBanner("devproxy", RenderKeyValue("proxy", "https://app.local.dev"))

	assert.Contains(t, out, "devproxy")
	assert.Contains(t, out, "proxy")
	assert.Contains(t, out, "https://app.local.dev")
}
