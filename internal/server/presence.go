package server

import (
	"slices"
	"strings"
	"sync"

	"github.com/devroom-io/devroom/internal/types"
)

// presenceTracker maintains the per-room user id to connection-count
// mapping. A user with several tabs open counts once in the roster; only
// 0->1 and 1->0 transitions are reported to callers.
type presenceTracker struct {
	mu    sync.RWMutex
	users map[string]*presenceEntry
}

type presenceEntry struct {
	email string
	conns int
}

func newPresenceTracker() *presenceTracker {
	return &presenceTracker{
		users: make(map[string]*presenceEntry),
	}
}

// add records a connection for the user and reports whether it is the
// user's first open connection to the room.
func (p *presenceTracker) add(user types.User) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.users[user.Id]
	if !ok {
		p.users[user.Id] = &presenceEntry{email: user.Email, conns: 1}
		return true
	}

	entry.conns++
	return false
}

// remove drops one connection for the user and reports whether it was the
// user's last. Removing an unknown user is a no-op.
func (p *presenceTracker) remove(userId string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.users[userId]
	if !ok {
		return false
	}

	entry.conns--
	if entry.conns <= 0 {
		delete(p.users, userId)
		return true
	}

	return false
}

func (p *presenceTracker) online(userId string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.users[userId]
	return ok
}

// roster snapshots the current participants, ordered by user id.
func (p *presenceTracker) roster() []types.Participant {
	p.mu.RLock()
	defer p.mu.RUnlock()

	participants := make([]types.Participant, 0, len(p.users))
	for id, entry := range p.users {
		participants = append(participants, types.Participant{
			UserId:      id,
			Email:       entry.email,
			Connections: entry.conns,
		})
	}

	slices.SortFunc(participants, func(a, b types.Participant) int {
		return strings.Compare(a.UserId, b.UserId)
	})

	return participants
}
