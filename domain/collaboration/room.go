package collaboration

import (
	"sort"
	"sync"
	"time"
)

// Room groups the presence and lock state of all users collaborating on one
// story or project. Rooms are owned exclusively by the registry that created
// them and are deleted as soon as the last active user leaves.
//
// Presence is held in a sync.Map so cursor and selection updates can store a
// fresh immutable value without touching the room mutex. Concurrent updates
// to the same user's presence are last-write-wins with no ordering
// guarantee; this is an accepted trade-off for cursor latency. Structural
// bookkeeping (joins, leaves, lock grants) serializes through mu.
type Room struct {
	ID        string
	CreatedAt time.Time

	users sync.Map // user id -> UserPresence

	mu    sync.Mutex
	locks map[string]EditLock // node id -> lock
}

// NewRoom creates an empty room.
func NewRoom(id string, now time.Time) *Room {
	return &Room{
		ID:        id,
		CreatedAt: now,
		locks:     make(map[string]EditLock),
	}
}

// Presence returns the stored presence for a user.
func (r *Room) Presence(userID string) (UserPresence, bool) {
	v, ok := r.users.Load(userID)
	if !ok {
		return UserPresence{}, false
	}
	return v.(UserPresence), true
}

// StorePresence replaces a user's presence with a new value. This is the
// lock-free path used by cursor and selection updates.
func (r *Room) StorePresence(p UserPresence) {
	r.users.Store(p.UserID, p)
}

// Join inserts a fresh active presence for the user, assigning a palette
// color from the current user count, and returns it together with the new
// active-user count.
func (r *Room) Join(userID, userName string, now time.Time) (UserPresence, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	color := ColorForIndex(r.userCount())
	p := NewUserPresence(userID, userName, color, now)
	r.users.Store(userID, p)
	return p, r.activeCount()
}

// Leave retires the user's presence. It reports the remaining active-user
// count and whether the user was present and active.
func (r *Room) Leave(userID string, now time.Time) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.users.Load(userID)
	if !ok {
		return r.activeCount(), false
	}
	p := v.(UserPresence)
	if !p.Active {
		return r.activeCount(), false
	}
	r.users.Store(userID, p.Deactivated(now))
	return r.activeCount(), true
}

// AcquireLock grants an edit lock on the node unless another user holds one
// whose expiry is still in the future. On conflict the current holder is
// returned and no state changes. A lock held by the same user, or an expired
// lock, is overwritten.
func (r *Room) AcquireLock(nodeID, userID, userName string, now time.Time) (EditLock, *EditLock) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.locks[nodeID]; ok && !existing.HeldBy(userID) && existing.IsLive(now) {
		holder := existing
		return EditLock{}, &holder
	}

	lock := NewEditLock(nodeID, userID, userName, now)
	r.locks[nodeID] = lock
	return lock, nil
}

// ReleaseLock removes the lock on the node if it is held by the given user.
func (r *Room) ReleaseLock(nodeID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[nodeID]
	if !ok || !lock.HeldBy(userID) {
		return false
	}
	delete(r.locks, nodeID)
	return true
}

// LocksHeldBy returns the node ids of every lock held by the user.
func (r *Room) LocksHeldBy(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var nodeIDs []string
	for nodeID, lock := range r.locks {
		if lock.HeldBy(userID) {
			nodeIDs = append(nodeIDs, nodeID)
		}
	}
	sort.Strings(nodeIDs)
	return nodeIDs
}

// Locks returns a snapshot of all lock entries, expired ones included, in
// node-id order.
func (r *Room) Locks() []EditLock {
	r.mu.Lock()
	defer r.mu.Unlock()

	locks := make([]EditLock, 0, len(r.locks))
	for _, lock := range r.locks {
		locks = append(locks, lock)
	}
	sort.Slice(locks, func(i, j int) bool { return locks[i].NodeID < locks[j].NodeID })
	return locks
}

// ActiveUsers returns the active presences in join order.
func (r *Room) ActiveUsers() []UserPresence {
	var users []UserPresence
	r.users.Range(func(_, v any) bool {
		p := v.(UserPresence)
		if p.Active {
			users = append(users, p)
		}
		return true
	})
	sort.Slice(users, func(i, j int) bool {
		if users[i].JoinedAt.Equal(users[j].JoinedAt) {
			return users[i].UserID < users[j].UserID
		}
		return users[i].JoinedAt.Before(users[j].JoinedAt)
	})
	return users
}

// ActiveCount returns the number of active users.
func (r *Room) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeCount()
}

func (r *Room) userCount() int {
	n := 0
	r.users.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (r *Room) activeCount() int {
	n := 0
	r.users.Range(func(_, v any) bool {
		if v.(UserPresence).Active {
			n++
		}
		return true
	})
	return n
}
