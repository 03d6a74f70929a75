package server

import (
	"testing"

	"github.com/devroom-io/devroom/internal/types"
	"github.com/stretchr/testify/assert"
)

func Test_presenceTracker_add_remove(t *testing.T) {
	p := newPresenceTracker()
	user := types.User{Id: "6617a3a6c8f1a20012f00001", Email: "testuser@example.com"}

	assert.True(t, p.add(user), "expected first connection to report a 0->1 transition")
	assert.False(t, p.add(user), "expected second connection to be silent")
	assert.False(t, p.add(user), "expected third connection to be silent")
	assert.True(t, p.online(user.Id), "expected user to be online")

	assert.False(t, p.remove(user.Id), "expected removal to be silent while connections remain")
	assert.False(t, p.remove(user.Id), "expected removal to be silent while connections remain")
	assert.True(t, p.online(user.Id), "expected user to remain online with one connection left")

	assert.True(t, p.remove(user.Id), "expected last removal to report a 1->0 transition")
	assert.False(t, p.online(user.Id), "expected user to be offline")
}

func Test_presenceTracker_remove_unknown(t *testing.T) {
	p := newPresenceTracker()
	assert.False(t, p.remove("6617a3a6c8f1a20012f00001"), "expected removing an unknown user to be a no-op")
}

func Test_presenceTracker_roster(t *testing.T) {
	p := newPresenceTracker()

	assert.Empty(t, p.roster(), "expected empty roster for new tracker")

	u1 := types.User{Id: "6617a3a6c8f1a20012f00002", Email: "second@example.com"}
	u2 := types.User{Id: "6617a3a6c8f1a20012f00001", Email: "first@example.com"}
	p.add(u1)
	p.add(u2)
	p.add(u2)

	roster := p.roster()
	assert.Len(t, roster, 2, "expected 2 roster entries")

	// ordered by user id
	assert.Equal(t, u2.Id, roster[0].UserId, "expected roster to be sorted by user id")
	assert.Equal(t, 2, roster[0].Connections, "expected connection count for multi-tab user")
	assert.Equal(t, u1.Id, roster[1].UserId, "expected roster to be sorted by user id")
	assert.Equal(t, u1.Email, roster[1].Email, "expected email to be carried in roster")
}
