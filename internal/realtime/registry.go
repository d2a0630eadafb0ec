package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"court-realtime/internal/status"
	"court-realtime/models"
	"court-realtime/monitoring"

	"github.com/google/uuid"
)

const defaultSendBuffer = 256

// Connection is one live client session.
type Connection struct {
	ID          string
	Identity    models.Identity
	ConnectedAt time.Time

	send   chan []byte
	groups map[string]struct{}
	closed bool
}

func NewConnection(identity models.Identity, sendBuffer int) *Connection {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	return &Connection{
		ID:          uuid.NewString(),
		Identity:    identity,
		ConnectedAt: time.Now().UTC(),
		send:        make(chan []byte, sendBuffer),
		groups:      make(map[string]struct{}),
	}
}

// Outbound yields frames queued for this connection. It is closed on Deregister.
func (c *Connection) Outbound() <-chan []byte {
	return c.send
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Connections int            `json:"connections"`
	Groups      map[string]int `json:"groups"`
}

// Registry owns connection -> groups and group -> connections.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]*Connection
	groups   map[string]map[string]*Connection
	resolver *Resolver
}

func NewRegistry(resolver *Resolver) *Registry {
	if resolver == nil {
		resolver = NewResolver(false)
	}
	return &Registry{
		conns:    make(map[string]*Connection),
		groups:   make(map[string]map[string]*Connection),
		resolver: resolver,
	}
}

func (r *Registry) Resolver() *Resolver {
	return r.resolver
}

func (r *Registry) Register(conn *Connection) error {
	if conn == nil || conn.Identity.IsZero() {
		return status.ErrAuthentication
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conns[conn.ID]; exists {
		return fmt.Errorf("connection %s already registered", conn.ID)
	}
	r.conns[conn.ID] = conn
	monitoring.ConnectionOpened()

	slog.Info("Realtime connection registered",
		"conn_id", conn.ID,
		"user_id", conn.Identity.UserID,
		"role", conn.Identity.Role,
		"total", len(r.conns),
	)
	return nil
}

// Join adds membership when the resolver allows it. A denied join leaves the
// connection's memberships exactly as they were.
func (r *Registry) Join(connID, group string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return status.ErrUnknownConnection
	}
	if !r.resolver.Authorize(conn.Identity, group) {
		monitoring.TrackJoin("denied")
		return fmt.Errorf("%w: %s", status.ErrAuthorization, group)
	}

	members, ok := r.groups[group]
	if !ok {
		members = make(map[string]*Connection)
		r.groups[group] = members
	}
	members[connID] = conn
	conn.groups[group] = struct{}{}
	monitoring.TrackJoin("granted")
	return nil
}

func (r *Registry) Leave(connID, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID, group)
}

func (r *Registry) leaveLocked(connID, group string) {
	if conn, ok := r.conns[connID]; ok {
		delete(conn.groups, group)
	}
	members, ok := r.groups[group]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.groups, group)
	}
}

// Deregister drops the connection from every group and closes its outbound
// channel. Calling it twice is harmless.
func (r *Registry) Deregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return
	}
	for group := range conn.groups {
		r.leaveLocked(connID, group)
	}
	delete(r.conns, connID)
	if !conn.closed {
		conn.closed = true
		close(conn.send)
	}
	monitoring.ConnectionClosed()

	slog.Info("Realtime connection removed",
		"conn_id", connID,
		"user_id", conn.Identity.UserID,
		"total", len(r.conns),
	)
}

// Broadcast hands frame to every member of group and returns how many
// connections accepted it.
func (r *Registry) Broadcast(group string, frame []byte) int {
	return r.BroadcastMany([]string{group}, frame)
}

// BroadcastMany delivers frame at most once per connection across groups.
// A connection whose buffer is full misses this frame; nobody else waits.
func (r *Registry) BroadcastMany(groups []string, frame []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	delivered := 0
	for _, group := range groups {
		for connID, conn := range r.groups[group] {
			if _, dup := seen[connID]; dup {
				continue
			}
			seen[connID] = struct{}{}
			if trySend(conn, frame) {
				delivered++
			}
		}
	}
	return delivered
}

// Deliver lets the registry act as the bus transport on a single instance.
func (r *Registry) Deliver(_ context.Context, groups []string, frame []byte) error {
	r.BroadcastMany(groups, frame)
	return nil
}

// Send queues a frame for one connection.
func (r *Registry) Send(connID string, frame []byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connID]
	if !ok {
		return false
	}
	return trySend(conn, frame)
}

func trySend(conn *Connection, frame []byte) bool {
	if conn.closed {
		return false
	}
	select {
	case conn.send <- frame:
		return true
	default:
		monitoring.TrackFrameDropped("buffer_full")
		slog.Warn("Dropping frame for slow connection", "conn_id", conn.ID)
		return false
	}
}

// Groups returns the sorted group keys of a connection.
func (r *Registry) Groups(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connID]
	if !ok {
		return nil
	}
	groups := make([]string, 0, len(conn.groups))
	for group := range conn.groups {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	return groups
}

// Members returns the sorted connection ids of a group.
func (r *Registry) Members(group string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.groups[group]))
	for connID := range r.groups[group] {
		ids = append(ids, connID)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Connections: len(r.conns),
		Groups:      make(map[string]int, len(r.groups)),
	}
	for group, members := range r.groups {
		stats.Groups[group] = len(members)
	}
	return stats
}

// GroupCounts adapts Stats for the metrics monitor.
func (r *Registry) GroupCounts() map[string]int {
	return r.Stats().Groups
}
