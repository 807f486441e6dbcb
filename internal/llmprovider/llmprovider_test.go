package llmprovider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewDefaultsModelAndTimeout(t *testing.T) {
	p := New("test-key", "", 0)
	assert.Equal(t, DefaultModel, p.model)
	assert.Equal(t, 30*time.Second, p.timeout)
}

func TestNewHonoursExplicitModel(t *testing.T) {
	p := New("test-key", "claude-3-5-sonnet-latest", 5*time.Second)
	assert.Equal(t, "claude-3-5-sonnet-latest", p.model)
	assert.Equal(t, 5*time.Second, p.timeout)
}
