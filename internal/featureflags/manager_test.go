package featureflags

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnabled_BooleanValues(t *testing.T) {
	m := NewManager("a=on,b=off,c=true,d=false,e=1,f=0")

	for _, name := range []string{"a", "c", "e"} {
		assert.True(t, m.Enabled(name, 1), name)
	}
	for _, name := range []string{"b", "d", "f", "missing"} {
		assert.False(t, m.Enabled(name, 1), name)
	}
}

func TestEnabled_PercentageValues(t *testing.T) {
	m := NewManager("always=100%,never=0%,canary=25%,junk=abc%")

	assert.True(t, m.Enabled("always", 1))
	assert.False(t, m.Enabled("never", 1))
	assert.False(t, m.Enabled("junk", 1))

	first := m.Enabled("canary", 42)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.Enabled("canary", 42), "rollout must be deterministic per user")
	}
	assert.False(t, m.Enabled("canary", 0), "percentage rollout requires a user")
}

func TestViewCountingDefaultsOn(t *testing.T) {
	assert.True(t, NewManager("").Enabled(ViewCounting, 0))
	assert.False(t, NewManager("VIEW_COUNTING=off").Enabled(ViewCounting, 0))

	var nilManager *Manager
	assert.False(t, nilManager.Enabled(ViewCounting, 0))
	assert.Empty(t, nilManager.Evaluate(0))
}

func TestEvaluateSorted(t *testing.T) {
	m := NewManager(" bad ,x=on, b = 20% ,z=off ")

	states := m.Evaluate(123)
	require.Len(t, states, 4)
	names := make([]string, 0, len(states))
	for _, s := range states {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"b", ViewCounting, "x", "z"}, names)
	assert.Equal(t, "20%", states[0].Value)
	assert.True(t, states[2].Enabled)
	assert.False(t, states[3].Enabled)
}
