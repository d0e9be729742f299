package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldownWindow(t *testing.T) {
	c := NewCooldownTracker(time.Hour)
	c.Trigger("X", epoch)

	assert.True(t, c.Active("X", epoch))
	assert.True(t, c.Active("X", epoch.Add(59*time.Minute)))
	assert.False(t, c.Active("X", epoch.Add(time.Hour)))
	assert.False(t, c.Active("Y", epoch))
	assert.Equal(t, 15*time.Minute, c.Remaining("X", epoch.Add(45*time.Minute)))
	assert.Zero(t, c.Remaining("X", epoch.Add(2*time.Hour)))
}

func TestCooldownPruneAndSnapshot(t *testing.T) {
	c := NewCooldownTracker(time.Hour)
	c.Trigger("OLD", epoch.Add(-2*time.Hour))
	c.Trigger("NEW", epoch)

	assert.Equal(t, map[string]time.Time{"NEW": epoch.Add(time.Hour)}, c.Snapshot(epoch))
	assert.Equal(t, 1, c.Prune(epoch))
	assert.False(t, c.Active("OLD", epoch.Add(-2*time.Hour)))
}
