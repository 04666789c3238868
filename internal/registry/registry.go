package registry

import (
	"hash/fnv"
	"sync"

	"tutorboard/internal/websocket"
)

const shardCount = 16

// shard holds the connection sets for a slice of the user id space.
type shard struct {
	mu    sync.RWMutex
	conns map[string]map[*websocket.Connection]struct{}
}

// Registry tracks active connections per user. A user may hold several
// connections at once, one per open tab or device, and every one of them
// receives each event. Sharding keeps lock contention bounded under
// concurrent connect and disconnect storms.
type Registry struct {
	shards [shardCount]*shard

	mu   sync.Mutex
	done bool
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{conns: make(map[string]map[*websocket.Connection]struct{})}
	}
	return r
}

func (r *Registry) shardFor(userID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return r.shards[h.Sum32()%shardCount]
}

// Register adds a connection under its authenticated user id. The connection
// must have passed authentication; registering the same connection twice is
// a no-op.
func (r *Registry) Register(conn *websocket.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	userID := conn.UserID()
	if userID == "" {
		return ErrNotAuthenticated
	}

	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	// Checked under the shard lock: a concurrent Shutdown either rejects the
	// registration here or finds the connection during its sweep.
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done {
		return ErrShutdown
	}

	set, ok := s.conns[userID]
	if !ok {
		set = make(map[*websocket.Connection]struct{})
		s.conns[userID] = set
	}
	set[conn] = struct{}{}
	return nil
}

// Unregister removes one connection instance. Removing a connection that was
// already replaced or never registered is a no-op, so a stale cleanup never
// evicts a newer connection.
func (r *Registry) Unregister(conn *websocket.Connection) {
	if conn == nil {
		return
	}
	userID := conn.UserID()
	if userID == "" {
		return
	}

	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.conns[userID]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(s.conns, userID)
	}
}

// Connections returns a snapshot of the user's current connections.
func (r *Registry) Connections(userID string) []*websocket.Connection {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.conns[userID]
	if !ok {
		return nil
	}
	conns := make([]*websocket.Connection, 0, len(set))
	for conn := range set {
		conns = append(conns, conn)
	}
	return conns
}

// SendToUser delivers v to every connection the user holds. Returns true
// when at least one delivery was queued; a fully offline user yields false
// without error. A connection that fails to accept the write is dropped
// from the registry and closed.
func (r *Registry) SendToUser(userID string, v interface{}) bool {
	delivered := false
	for _, conn := range r.Connections(userID) {
		if err := conn.WriteJSON(v); err != nil {
			r.Unregister(conn)
			_ = conn.Close()
			continue
		}
		delivered = true
	}
	return delivered
}

// Stats returns connection counts for monitoring.
func (r *Registry) Stats() map[string]int {
	users := 0
	conns := 0
	for _, s := range r.shards {
		s.mu.RLock()
		users += len(s.conns)
		for _, set := range s.conns {
			conns += len(set)
		}
		s.mu.RUnlock()
	}
	return map[string]int{
		"online_users":      users,
		"total_connections": conns,
	}
}

// Shutdown closes every connection and rejects further registrations.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.done = true
	r.mu.Unlock()

	for _, s := range r.shards {
		s.mu.Lock()
		for userID, set := range s.conns {
			for conn := range set {
				_ = conn.Close()
			}
			delete(s.conns, userID)
		}
		s.mu.Unlock()
	}
}
