package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserAgent(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })

	Version = "1.2.3"
	assert.Regexp(t, `^devprof/1\.2\.3 \([a-z0-9]+/[a-z0-9]+\)$`, UserAgent())
}
