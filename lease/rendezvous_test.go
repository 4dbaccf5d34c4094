package lease

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreferredOwner_Empty(t *testing.T) {
	assert.Equal(t, "", PreferredOwner("checkout", nil))
}

func TestPreferredOwner_Deterministic(t *testing.T) {
	nodes := []string{"node-a", "node-b", "node-c"}
	first := PreferredOwner("checkout", nodes)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, PreferredOwner("checkout", nodes))
	}
}

func TestPreferredOwner_StableUnderOrderChange(t *testing.T) {
	a := PreferredOwner("checkout", []string{"node-a", "node-b", "node-c"})
	b := PreferredOwner("checkout", []string{"node-c", "node-a", "node-b"})
	assert.Equal(t, a, b)
}

func TestIsPreferredOwner(t *testing.T) {
	nodes := []string{"node-a", "node-b"}
	preferred := PreferredOwner("checkout", nodes)
	assert.True(t, IsPreferredOwner(preferred, "checkout", nodes))

	other := "node-a"
	if preferred == other {
		other = "node-b"
	}
	assert.False(t, IsPreferredOwner(other, "checkout", nodes))
}
