package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeenTable_MarkAndForget(t *testing.T) {
	table := NewSeenTable()
	pid := randPeerID(t)

	_, ok := table.Seen(pid)
	assert.False(t, ok)

	table.Mark(pid, ReasonDead)
	reason, ok := table.Seen(pid)
	assert.True(t, ok)
	assert.Equal(t, ReasonDead, reason)

	table.Forget(pid)
	_, ok = table.Seen(pid)
	assert.False(t, ok)
}
