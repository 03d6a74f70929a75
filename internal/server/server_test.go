package server

import (
	"context"
	"testing"
	"time"

	"github.com/devroom-io/devroom/internal/database"
	"github.com/devroom-io/devroom/internal/genai"
	"github.com/devroom-io/devroom/internal/stats"
	"github.com/devroom-io/devroom/internal/testutil"
	"github.com/devroom-io/devroom/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// newTestChatServer creates a new ChatServer instance for testing purposes
func newTestChatServer(t *testing.T, db database.Repository, ai genai.Generator, su *stats.MockStatsUpdater) *ChatServer {
	su.On("RegisterMetric", mock.Anything).Times(5)

	logger := testutil.TestLogger(t)
	cs, err := NewChatServer(logger, db, ai, su)
	if err != nil {
		t.Fatalf("failed to create test ChatServer: %v", err)
	}
	return cs
}

func TestNewChatServer(t *testing.T) {
	db := &database.MockRepository{}
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)
	su.On("RegisterMetric", mock.Anything).Times(5)

	logger := testutil.TestLogger(t)
	cs, err := NewChatServer(logger, db, &genai.MockGenerator{}, su)
	assert.NoError(t, err, "expected no error creating ChatServer")
	assert.NotNil(t, cs, "expected ChatServer to be non-nil")
	assert.Equal(t, logger, cs.log, "expected logger to be set")
	assert.Equal(t, db, cs.db, "expected database repository to be set")
	assert.NotNil(t, cs.registerChan, "expected registerChan to be initialized")
	assert.NotNil(t, cs.deRegisterChan, "expected deRegisterChan to be initialized")
	assert.NotNil(t, cs.unloadRoomChan, "expected unloadRoomChan to be initialized")
	assert.NotNil(t, cs.stop, "expected stop channel to be initialized")
	assert.NotNil(t, cs.clients, "expected clients map to be initialized")
	assert.NotNil(t, cs.rooms, "expected rooms map to be initialized")
}

func TestChatServer_addClient_removeClient(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", "NumActiveClients").Once()
	su.On("Decr", "NumActiveClients").Once()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, &database.MockRepository{}, &genai.MockGenerator{}, su)
	client := &Client{user: types.User{Id: "6617a3a6c8f1a20012f00001", Email: "testuser@example.com"}}

	cs.addClient(client)
	assert.Len(t, cs.clients, 1, "expected 1 client after adding")
	assert.Contains(t, cs.clients, client, "expected client to be added to clients map")

	cs.removeClient(client)
	assert.Len(t, cs.clients, 0, "expected 0 clients after removing")
	assert.NotContains(t, cs.clients, client, "expected client to be removed from clients map")

	// removing an unknown client must not decrement again
	cs.removeClient(client)
}

func TestChatServer_addRoom_getRoom_removeRoom(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", "NumActiveRooms").Once()
	su.On("Decr", "NumActiveRooms").Once()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, &database.MockRepository{}, &genai.MockGenerator{}, su)
	room := &Room{id: "6617a3a6c8f1a20012f0aaaa"}

	cs.addRoom(room.id, room)
	got, ok := cs.getRoom(room.id)
	assert.True(t, ok, "expected room to be found")
	assert.Equal(t, room, got, "expected retrieved room to match added room")

	cs.removeRoom(room.id)
	_, ok = cs.getRoom(room.id)
	assert.False(t, ok, "expected room to be removed")

	// removing an unknown room must not decrement again
	cs.removeRoom(room.id)
}

func TestChatServer_Roster(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", "NumActiveRooms").Once()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, &database.MockRepository{}, &genai.MockGenerator{}, su)

	assert.Nil(t, cs.Roster("6617a3a6c8f1a20012f0aaaa"), "expected nil roster for unloaded room")

	room := newRoom(cs, "6617a3a6c8f1a20012f0aaaa")
	room.presence.add(types.User{Id: "6617a3a6c8f1a20012f00001", Email: "testuser@example.com"})
	cs.addRoom(room.id, room)

	roster := cs.Roster(room.id)
	assert.Len(t, roster, 1, "expected 1 participant in roster")
	assert.Equal(t, "testuser@example.com", roster[0].Email, "expected roster entry to match user")
}

func TestChatServer_joinRoom(t *testing.T) {
	t.Run("join existing room", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		su.On("Incr", "NumActiveRooms").Once()
		defer su.AssertExpectations(t)

		cs := newTestChatServer(t, &database.MockRepository{}, &genai.MockGenerator{}, su)
		room := &Room{id: "6617a3a6c8f1a20012f0aaaa", joinChan: make(chan *Client, 1)}
		cs.addRoom(room.id, room)

		c := &Client{projectId: room.id, send: make(chan *ServerMessage, 1)}
		cs.joinRoom(c)

		select {
		case joined := <-room.joinChan:
			assert.Equal(t, c, joined, "expected client to be queued on joinChan")
		default:
			t.Error("expected join to be queued to room")
		}
	})

	t.Run("join fails when joinChan full", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		su.On("Incr", "NumActiveRooms").Once()
		defer su.AssertExpectations(t)

		cs := newTestChatServer(t, &database.MockRepository{}, &genai.MockGenerator{}, su)
		room := &Room{id: "6617a3a6c8f1a20012f0aaaa", joinChan: make(chan *Client, 1)}
		cs.addRoom(room.id, room)

		// Fill the joinChan
		room.joinChan <- &Client{}

		c := &Client{projectId: room.id, send: make(chan *ServerMessage, 1), log: cs.log}
		cs.joinRoom(c)

		select {
		case msg := <-c.send:
			assert.NotNil(t, msg.Response, "expected response message")
			assert.Equal(t, 503, msg.Response.ResponseCode, "expected response code to be 503")
		default:
			t.Error("expected a message to be sent to the client, but none was sent")
		}
	})
}

func TestChatServerShutdown(t *testing.T) {
	t.Run("successful shutdown", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockRepository{}, &genai.MockGenerator{}, &stats.MockStatsUpdater{})

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		go func() {
			select {
			case req := <-cs.stop:
				assert.NotNil(t, req.done, "expected done channel in stop request")
				close(req.done) // Signal that shutdown is complete
			case <-time.After(100 * time.Millisecond):
				t.Error("expected signal on stop chan")
			}
		}()

		err := cs.Shutdown(ctx)
		assert.NoError(t, err, "expected successful shutdown without error")
	})

	t.Run("fails with context deadline exceeded", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockRepository{}, &genai.MockGenerator{}, &stats.MockStatsUpdater{})

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		go func() {
			select {
			case <-cs.stop:
				// do not close req.done to simulate a hang
			case <-time.After(time.Second):
				t.Error("expected signal on stop chan")
			}
		}()

		err := cs.Shutdown(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded, "expected context deadline exceeded error, got %v", err)
	})
}

func TestChatServerShutdown_Integration(t *testing.T) {
	t.Run("successful shutdown with no rooms", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockRepository{}, &genai.MockGenerator{}, &stats.MockStatsUpdater{})
		go cs.Run()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err := cs.Shutdown(ctx)
		assert.NoError(t, err, "expected successful shutdown without error")
	})

	t.Run("successful shutdown with active rooms", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		su.On("Incr", "NumActiveRooms").Once()
		su.On("Decr", "NumActiveRooms").Once()
		defer su.AssertExpectations(t)

		cs := newTestChatServer(t, &database.MockRepository{}, &genai.MockGenerator{}, su)
		go cs.Run()

		room := newRoom(cs, "6617a3a6c8f1a20012f0aaaa")
		cs.addRoom(room.id, room)
		go room.start()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err := cs.Shutdown(ctx)
		assert.NoError(t, err, "expected successful shutdown with active rooms")

		_, ok := cs.getRoom(room.id)
		assert.False(t, ok, "expected room to be unloaded after shutdown")
	})
}

func TestChatServerRun_Integration(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", "NumActiveClients").Once()
	su.On("Incr", "NumActiveRooms").Once()
	su.On("Decr", "NumActiveClients").Once()
	su.On("Decr", "NumActiveRooms").Once()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, &database.MockRepository{}, &genai.MockGenerator{}, su)
	go cs.Run()

	client := NewClient(types.User{Id: "6617a3a6c8f1a20012f00001", Email: "testuser@example.com"},
		"6617a3a6c8f1a20012f0aaaa", nil, cs, cs.log)

	cs.RegisterClient(client)

	// the room goroutine processes the queued join
	assert.Eventually(t, func() bool {
		return client.getRoom() != nil
	}, time.Second, 10*time.Millisecond, "expected client to be joined to its room")

	room, ok := cs.getRoom(client.projectId)
	assert.True(t, ok, "expected room to be created on first join")
	assert.True(t, room.presence.online(client.user.Id), "expected user to be online in room")

	cs.deRegisterChan <- client

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, cs.Shutdown(ctx), "expected clean shutdown")
}
