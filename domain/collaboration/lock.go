package collaboration

import "time"

// LockTimeout is the fixed lease duration of an edit lock. Expiry is never
// swept in the background; it is evaluated lazily when a competing acquire
// runs against the same node.
const LockTimeout = 300 * time.Second

// EditLock is a time-bounded exclusive claim on a graph node. At most one
// live lock may exist per node id at any time.
type EditLock struct {
	NodeID     string    `json:"nodeId"`
	UserID     string    `json:"userId"`
	UserName   string    `json:"userName"`
	AcquiredAt time.Time `json:"acquiredAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// NewEditLock creates a lock held by the given user, expiring LockTimeout
// after acquisition.
func NewEditLock(nodeID, userID, userName string, now time.Time) EditLock {
	return EditLock{
		NodeID:     nodeID,
		UserID:     userID,
		UserName:   userName,
		AcquiredAt: now,
		ExpiresAt:  now.Add(LockTimeout),
	}
}

// IsLive reports whether the lock is still in force at the given instant.
func (l EditLock) IsLive(now time.Time) bool {
	return now.Before(l.ExpiresAt)
}

// HeldBy reports whether the lock belongs to the given user.
func (l EditLock) HeldBy(userID string) bool {
	return l.UserID == userID
}
