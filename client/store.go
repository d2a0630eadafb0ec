// Package client is the receiving side of the realtime layer: a socket
// manager, the reconciler that applies frames, the store display code reads
// from and a toast presenter.
package client

import (
	"sort"
	"sync"
	"time"

	"court-realtime/models"
)

const (
	DefaultLockTTL            = 5 * time.Minute
	DefaultTombstoneRetention = 10 * time.Minute
)

// Change keys passed to observers.
func BookingKey(id string) string { return "booking:" + id }
func SlotKey(id string) string { return "slot:" + id }

// Lock marks a slot as held by someone mid-checkout.
type Lock struct {
	SlotID     string    `json:"slotId"`
	ClubID     string    `json:"clubId"`
	CourtID    string    `json:"courtId,omitempty"`
	UserID     string    `json:"userId,omitempty"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	ObservedAt time.Time `json:"observedAt"`
}

// Store is the observable cache of bookings and slot locks. Mutations go
// through the newer-wins contract; it has no networking or parsing.
type Store struct {
	mu         sync.RWMutex
	bookings   map[string]models.BookingSnapshot
	tombstones map[string]time.Time
	locks      map[string]Lock

	lockTTL            time.Duration
	tombstoneRetention time.Duration
	now                func() time.Time

	obsMu     sync.Mutex
	observers map[int]chan []string
	nextObs   int
}

func NewStore(lockTTL time.Duration) *Store {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &Store{
		bookings:           make(map[string]models.BookingSnapshot),
		tombstones:         make(map[string]time.Time),
		locks:              make(map[string]Lock),
		lockTTL:            lockTTL,
		tombstoneRetention: DefaultTombstoneRetention,
		now:                time.Now,
		observers:          make(map[int]chan []string),
	}
}

func (s *Store) LockTTL() time.Duration {
	return s.lockTTL
}

// UpsertIfNewer inserts an unseen booking or replaces a cached one whose
// updatedAt is strictly older. Removed bookings stay removed.
func (s *Store) UpsertIfNewer(b models.BookingSnapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, removed := s.tombstones[b.ID]; removed {
		return false
	}
	if cached, ok := s.bookings[b.ID]; ok && !b.UpdatedAt.After(cached.UpdatedAt) {
		return false
	}
	s.bookings[b.ID] = b
	return true
}

// Remove drops a booking and remembers the removal. Removing an absent id is
// a no-op that still leaves a tombstone.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tombstones[id] = s.now()
	if _, ok := s.bookings[id]; !ok {
		return false
	}
	delete(s.bookings, id)
	return true
}

// AddLock inserts a lock marker. Its TTL runs from ObservedAt, or from now
// when ObservedAt is unset. A live marker for the same slot is kept as is.
func (s *Store) AddLock(l Lock) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.locks[l.SlotID]; ok && !s.expired(existing, now) {
		return false
	}
	// Clock skew can put the server's time ahead of ours.
	if l.ObservedAt.IsZero() || l.ObservedAt.After(now) {
		l.ObservedAt = now
	}
	s.locks[l.SlotID] = l
	return true
}

func (s *Store) RemoveLock(slotID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.locks[slotID]; !ok {
		return false
	}
	delete(s.locks, slotID)
	return true
}

// SweepLocks drops locks older than the TTL and tombstones past retention.
// It returns the swept slot ids.
func (s *Store) SweepLocks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var swept []string
	for id, l := range s.locks {
		if s.expired(l, now) {
			delete(s.locks, id)
			swept = append(swept, id)
		}
	}
	for id, at := range s.tombstones {
		if now.Sub(at) >= s.tombstoneRetention {
			delete(s.tombstones, id)
		}
	}
	sort.Strings(swept)
	return swept
}

func (s *Store) expired(l Lock, now time.Time) bool {
	return !now.Before(l.ObservedAt.Add(s.lockTTL))
}

func (s *Store) Booking(id string) (models.BookingSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	return b, ok
}

// Bookings returns every cached booking ordered by start time.
func (s *Store) Bookings() []models.BookingSnapshot {
	s.mu.RLock()
	out := make([]models.BookingSnapshot, 0, len(s.bookings))
	for _, b := range s.bookings {
		out = append(out, b)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Locked reports a live lock. Expired markers read as absent before the sweep
// gets to them.
func (s *Store) Locked(slotID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.locks[slotID]
	return ok && !s.expired(l, s.now())
}

func (s *Store) Locks() []Lock {
	s.mu.RLock()
	now := s.now()
	out := make([]Lock, 0, len(s.locks))
	for _, l := range s.locks {
		if !s.expired(l, now) {
			out = append(out, l)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SlotID < out[j].SlotID })
	return out
}

// Subscribe returns a channel of changed keys (see BookingKey and SlotKey)
// and a cancel func. A slow observer misses batches rather than blocking.
func (s *Store) Subscribe() (<-chan []string, func()) {
	ch := make(chan []string, 16)

	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = ch
	s.obsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, id)
			s.obsMu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) notify(keys []string) {
	if len(keys) == 0 {
		return
	}

	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	for _, ch := range s.observers {
		select {
		case ch <- keys:
		default:
		}
	}
}
