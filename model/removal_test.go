package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRemovalStateAt(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	var e Erasable
	assert.Equal(t, RemovalPresent, e.RemovalStateAt(now))
	assert.False(t, e.IsDeleted())

	e.MarkDeleted(now, 24*time.Hour, false)
	assert.Equal(t, RemovalTrashBin, e.RemovalStateAt(now))
	assert.True(t, e.IsDeleted())

	// One second past the erasure date the entity is erasing.
	assert.Equal(t, RemovalErasing, e.RemovalStateAt(now.Add(24*time.Hour+time.Second)))

	e.Restore()
	assert.Equal(t, RemovalPresent, e.RemovalStateAt(now))
	assert.False(t, e.NoBackup)

	e.MarkErasing(now, true)
	assert.Equal(t, RemovalErasing, e.RemovalStateAt(now))
	assert.True(t, e.NoBackup)
}

func TestParseRemovalState(t *testing.T) {
	got, ok := ParseRemovalState("")
	assert.True(t, ok)
	assert.Equal(t, RemovalPresent, got)

	_, ok = ParseRemovalState("Visible")
	assert.False(t, ok, "Visible is internal only")

	_, ok = ParseRemovalState("garbage")
	assert.False(t, ok)
}

func TestParseRemovalAction(t *testing.T) {
	got, ok := ParseRemovalAction("")
	assert.True(t, ok)
	assert.Equal(t, ActionDelete, got)

	got, ok = ParseRemovalAction("Restore")
	assert.True(t, ok)
	assert.Equal(t, ActionRestore, got)

	_, ok = ParseRemovalAction("Purge")
	assert.False(t, ok)
}
