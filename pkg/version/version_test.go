package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	v, c, d := version, commit, buildDate
	t.Cleanup(func() { version, commit, buildDate = v, c, d })

	Set("1.0.0", "", "2026-10-01")

	assert.Equal(t, "1.0.0", Version())
	assert.Equal(t, c, Commit())
	assert.Equal(t, "2026-10-01", BuildDate())
	assert.Equal(t, "devproxy 1.0.0\nCommit: "+c+"\nBuild Date: 2026-10-01", String())
}
