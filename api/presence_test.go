package api

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceRegistry_EnterAndCount(t *testing.T) {
	r := NewPresenceRegistry()

	assert.Equal(t, 1, r.Enter("project-a", "session-1"))
	assert.Equal(t, 2, r.Enter("project-a", "session-2"))
	assert.Equal(t, 2, r.Count("project-a"))
	assert.Equal(t, 0, r.Count("project-b"))

	// Re-entering is idempotent and does not inflate the count
	assert.Equal(t, 2, r.Enter("project-a", "session-1"))
	assert.Equal(t, 2, r.Count("project-a"))
}

func TestPresenceRegistry_EnterEmptyArguments(t *testing.T) {
	r := NewPresenceRegistry()

	assert.Equal(t, 0, r.Enter("", "session-1"))
	assert.Equal(t, 0, r.Enter("project-a", ""))
	assert.Equal(t, 0, r.Count("project-a"))
}

func TestPresenceRegistry_Leave(t *testing.T) {
	r := NewPresenceRegistry()
	r.Enter("project-a", "session-1")
	r.Enter("project-a", "session-2")

	assert.Equal(t, 1, r.Leave("project-a", "session-1"))
	assert.Equal(t, 1, r.Count("project-a"))
	assert.Equal(t, 0, r.Leave("project-a", "session-2"))
	assert.Equal(t, 0, r.Count("project-a"))

	// Unknown pairs are a no-op, not an error
	assert.Equal(t, 0, r.Leave("project-a", "session-1"))
	assert.Equal(t, 0, r.Leave("never-existed", "session-1"))
}

func TestPresenceRegistry_IsMember(t *testing.T) {
	r := NewPresenceRegistry()
	r.Enter("project-a", "session-1")

	assert.True(t, r.IsMember("project-a", "session-1"))
	assert.False(t, r.IsMember("project-a", "session-2"))
	assert.False(t, r.IsMember("project-b", "session-1"))

	r.Leave("project-a", "session-1")
	assert.False(t, r.IsMember("project-a", "session-1"))
}

func TestPresenceRegistry_RemoveAll(t *testing.T) {
	r := NewPresenceRegistry()
	r.Enter("project-a", "session-1")
	r.Enter("project-b", "session-1")
	r.Enter("project-c", "session-1")
	r.Enter("project-b", "session-2")

	affected := r.RemoveAll("session-1")
	assert.Equal(t, []string{"project-a", "project-b", "project-c"}, affected)

	assert.Equal(t, 0, r.Count("project-a"))
	assert.Equal(t, 1, r.Count("project-b"))
	assert.Equal(t, 0, r.Count("project-c"))

	// Second removal for the same session finds nothing
	assert.Empty(t, r.RemoveAll("session-1"))
	assert.Empty(t, r.RemoveAll("never-connected"))
}

func TestPresenceRegistry_RemoveAllAfterExplicitLeave(t *testing.T) {
	r := NewPresenceRegistry()
	r.Enter("project-a", "session-1")
	r.Enter("project-b", "session-1")
	r.Leave("project-a", "session-1")

	affected := r.RemoveAll("session-1")
	assert.Equal(t, []string{"project-b"}, affected)
}

func TestPresenceRegistry_OrphanedSessions(t *testing.T) {
	r := NewPresenceRegistry()
	current := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return current }

	r.RecordConnection("stale-roomless")
	r.RecordConnection("stale-in-room")
	r.Enter("project-a", "stale-in-room")

	current = current.Add(2 * time.Hour)
	r.RecordConnection("fresh-roomless")

	cutoff := current.Add(-time.Hour)
	orphaned := r.OrphanedSessions(cutoff)

	require.Len(t, orphaned, 1)
	assert.Equal(t, "stale-roomless", orphaned[0])
}

func TestPresenceRegistry_ForgetConnection(t *testing.T) {
	r := NewPresenceRegistry()
	current := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return current }

	r.RecordConnection("session-1")
	r.ForgetConnection("session-1")

	orphaned := r.OrphanedSessions(current.Add(time.Hour))
	assert.Empty(t, orphaned)
}

func TestPresenceRegistry_ConcurrentAccess(t *testing.T) {
	r := NewPresenceRegistry()

	const sessions = 50
	const projects = 10

	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sessionID := fmt.Sprintf("session-%d", n)
			r.RecordConnection(sessionID)
			for p := 0; p < projects; p++ {
				r.Enter(fmt.Sprintf("project-%d", p), sessionID)
			}
			for p := 0; p < projects; p++ {
				r.IsMember(fmt.Sprintf("project-%d", p), sessionID)
			}
			if n%2 == 0 {
				r.RemoveAll(sessionID)
			}
		}(i)
	}
	wg.Wait()

	for p := 0; p < projects; p++ {
		assert.Equal(t, sessions/2, r.Count(fmt.Sprintf("project-%d", p)))
	}
}
