package api

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"
)

const presenceShardCount = 32

// roomShard holds the rooms whose project id hashes to this shard.
type roomShard struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{} // projectID -> member session ids
}

// sessionShard holds the reverse index and connection bookkeeping for the
// sessions whose id hashes to this shard.
type sessionShard struct {
	mu       sync.RWMutex
	projects map[string]map[string]struct{} // sessionID -> joined project ids
	connTime map[string]time.Time           // sessionID -> connection timestamp
}

// PresenceRegistry tracks which sessions are in which project rooms. Both
// directions of the index are sharded so traffic for one project never
// contends with another. Rooms exist only while non-empty.
type PresenceRegistry struct {
	roomShards    [presenceShardCount]*roomShard
	sessionShards [presenceShardCount]*sessionShard
	now           func() time.Time
}

// NewPresenceRegistry creates an empty registry
func NewPresenceRegistry() *PresenceRegistry {
	r := &PresenceRegistry{now: time.Now}
	for i := range r.roomShards {
		r.roomShards[i] = &roomShard{rooms: make(map[string]map[string]struct{})}
		r.sessionShards[i] = &sessionShard{
			projects: make(map[string]map[string]struct{}),
			connTime: make(map[string]time.Time),
		}
	}
	return r
}

func shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % presenceShardCount)
}

func (r *PresenceRegistry) roomShard(projectID string) *roomShard {
	return r.roomShards[shardIndex(projectID)]
}

func (r *PresenceRegistry) sessionShard(sessionID string) *sessionShard {
	return r.sessionShards[shardIndex(sessionID)]
}

// RecordConnection notes when a session connected. The reaper uses this to
// reclaim bookkeeping for sessions whose disconnect signal was lost.
func (r *PresenceRegistry) RecordConnection(sessionID string) {
	shard := r.sessionShard(sessionID)
	shard.mu.Lock()
	shard.connTime[sessionID] = r.now()
	shard.mu.Unlock()
}

// Enter idempotently adds a session to a project's room and returns the
// resulting member count.
func (r *PresenceRegistry) Enter(projectID, sessionID string) int {
	if projectID == "" || sessionID == "" {
		return 0
	}

	rs := r.roomShard(projectID)
	rs.mu.Lock()
	room, ok := rs.rooms[projectID]
	if !ok {
		room = make(map[string]struct{})
		rs.rooms[projectID] = room
	}
	room[sessionID] = struct{}{}
	count := len(room)
	rs.mu.Unlock()

	ss := r.sessionShard(sessionID)
	ss.mu.Lock()
	projects, ok := ss.projects[sessionID]
	if !ok {
		projects = make(map[string]struct{})
		ss.projects[sessionID] = projects
	}
	projects[projectID] = struct{}{}
	ss.mu.Unlock()

	return count
}

// Leave removes a session from a project's room and returns the resulting
// member count. Unknown pairs return 0 without error.
func (r *PresenceRegistry) Leave(projectID, sessionID string) int {
	if projectID == "" || sessionID == "" {
		return 0
	}

	rs := r.roomShard(projectID)
	rs.mu.Lock()
	count := 0
	if room, ok := rs.rooms[projectID]; ok {
		delete(room, sessionID)
		if len(room) == 0 {
			delete(rs.rooms, projectID)
		} else {
			count = len(room)
		}
	}
	rs.mu.Unlock()

	ss := r.sessionShard(sessionID)
	ss.mu.Lock()
	if projects, ok := ss.projects[sessionID]; ok {
		delete(projects, projectID)
		if len(projects) == 0 {
			delete(ss.projects, sessionID)
		}
	}
	ss.mu.Unlock()

	return count
}

// RemoveAll removes the session from every room it belonged to and returns
// the affected project ids, sorted for deterministic broadcasts. Calling it
// again for the same session returns an empty slice; this tolerates the
// disconnect signal racing an explicit leave.
func (r *PresenceRegistry) RemoveAll(sessionID string) []string {
	if sessionID == "" {
		return nil
	}

	ss := r.sessionShard(sessionID)
	ss.mu.Lock()
	joined := ss.projects[sessionID]
	delete(ss.projects, sessionID)
	ss.mu.Unlock()

	if len(joined) == 0 {
		return nil
	}

	affected := make([]string, 0, len(joined))
	for projectID := range joined {
		rs := r.roomShard(projectID)
		rs.mu.Lock()
		if room, ok := rs.rooms[projectID]; ok {
			if _, member := room[sessionID]; member {
				delete(room, sessionID)
				if len(room) == 0 {
					delete(rs.rooms, projectID)
				}
				affected = append(affected, projectID)
			}
		}
		rs.mu.Unlock()
	}

	sort.Strings(affected)
	return affected
}

// Count returns the current member count for a project, 0 if absent
func (r *PresenceRegistry) Count(projectID string) int {
	rs := r.roomShard(projectID)
	rs.mu.RLock()
	count := len(rs.rooms[projectID])
	rs.mu.RUnlock()
	return count
}

// IsMember reports whether a session has entered a project's room. Ephemeral
// messages from non-members are rejected to prevent cross-room injection.
func (r *PresenceRegistry) IsMember(projectID, sessionID string) bool {
	rs := r.roomShard(projectID)
	rs.mu.RLock()
	_, ok := rs.rooms[projectID][sessionID]
	rs.mu.RUnlock()
	return ok
}

// ForgetConnection drops the connection timestamp for a session
func (r *PresenceRegistry) ForgetConnection(sessionID string) {
	ss := r.sessionShard(sessionID)
	ss.mu.Lock()
	delete(ss.connTime, sessionID)
	ss.mu.Unlock()
}

// OrphanedSessions returns session ids that are in no room and whose
// connection timestamp is older than cutoff. These are leftovers from
// connect/disconnect signals lost at the transport layer.
func (r *PresenceRegistry) OrphanedSessions(cutoff time.Time) []string {
	var orphaned []string
	for _, ss := range r.sessionShards {
		ss.mu.RLock()
		for sessionID, connectedAt := range ss.connTime {
			if _, inRoom := ss.projects[sessionID]; !inRoom && connectedAt.Before(cutoff) {
				orphaned = append(orphaned, sessionID)
			}
		}
		ss.mu.RUnlock()
	}
	return orphaned
}
