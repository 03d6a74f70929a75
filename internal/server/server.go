package server

import (
	"context"
	"log"
	"sync"

	"github.com/devroom-io/devroom/internal/database"
	"github.com/devroom-io/devroom/internal/genai"
	"github.com/devroom-io/devroom/internal/stats"
	"github.com/devroom-io/devroom/internal/types"
)

type stopReq struct {
	done chan struct{}
}

// ChatServer is the room registry: it owns the map of live rooms, routes
// freshly admitted clients to their room, and unloads rooms that have gone
// idle. It is constructed explicitly and injected wherever needed so tests
// can run isolated instances.
type ChatServer struct {
	log            *log.Logger
	db             database.Repository
	ai             genai.Generator
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	rooms          map[string]*Room
	roomsLock      sync.RWMutex
	registerChan   chan *Client
	deRegisterChan chan *Client
	unloadRoomChan chan string
	stop           chan stopReq
	done           chan struct{}
}

func NewChatServer(logger *log.Logger, db database.Repository, ai genai.Generator, su stats.StatsProvider) (*ChatServer, error) {
	for _, metric := range []string{
		stats.NumActiveClients,
		stats.NumActiveRooms,
		stats.NumMessages,
		stats.NumAIRequests,
		stats.NumAIErrors,
	} {
		su.RegisterMetric(metric)
	}

	return &ChatServer{
		log:            logger,
		db:             db,
		ai:             ai,
		stats:          su,
		clients:        make(map[*Client]struct{}),
		rooms:          make(map[string]*Room),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		unloadRoomChan: make(chan string, 32),
		stop:           make(chan stopReq),
		done:           make(chan struct{}),
	}, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case c := <-cs.registerChan:
			cs.log.Printf("adding connection from %q", c.user.Email)
			cs.addClient(c)
			cs.joinRoom(c)
		case c := <-cs.deRegisterChan:
			cs.log.Printf("removing connection from %q", c.user.Email)
			cs.removeClient(c)
		case id := <-cs.unloadRoomChan:
			if r, ok := cs.getRoom(id); ok {
				cs.removeRoom(id)
				req := exitReq{done: make(chan struct{})}
				r.exit <- req
				<-r.done
			}
		case req := <-cs.stop:
			cs.log.Println("shutting down rooms")
			for id, r := range cs.roomSnapshot() {
				cs.log.Printf("shutting down room %q", id)
				cs.removeRoom(id)
				close(r.exit)
				<-r.done
			}

			close(cs.done)
			close(req.done)
			return
		}
	}
}

// RegisterClient hands an authenticated connection to the registry, which
// adds it to its project's room (creating the room on first join).
func (cs *ChatServer) RegisterClient(c *Client) {
	cs.registerChan <- c
}

// Roster returns the live participant roster for a room, or nil when the
// room is not loaded.
func (cs *ChatServer) Roster(roomId string) []types.Participant {
	if r, ok := cs.getRoom(roomId); ok {
		return r.Roster()
	}
	return nil
}

func (cs *ChatServer) joinRoom(c *Client) {
	room, ok := cs.getRoom(c.projectId)
	if !ok {
		room = newRoom(cs, c.projectId)
		cs.addRoom(c.projectId, room)
		go room.start()
	}

	select {
	case room.joinChan <- c:
	default:
		cs.log.Printf("join channel full on room %q", room.id)
		c.queueMessage(ErrServiceUnavailable())
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
	cs.stats.Incr(stats.NumActiveClients)
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	if _, ok := cs.clients[c]; !ok {
		return
	}
	delete(cs.clients, c)
	cs.stats.Decr(stats.NumActiveClients)
}

func (cs *ChatServer) addRoom(id string, r *Room) {
	cs.roomsLock.Lock()
	defer cs.roomsLock.Unlock()
	cs.rooms[id] = r
	cs.stats.Incr(stats.NumActiveRooms)
}

func (cs *ChatServer) getRoom(id string) (*Room, bool) {
	cs.roomsLock.RLock()
	defer cs.roomsLock.RUnlock()
	r, ok := cs.rooms[id]
	return r, ok
}

func (cs *ChatServer) removeRoom(id string) {
	cs.roomsLock.Lock()
	defer cs.roomsLock.Unlock()
	if _, ok := cs.rooms[id]; !ok {
		return
	}
	delete(cs.rooms, id)
	cs.stats.Decr(stats.NumActiveRooms)
}

func (cs *ChatServer) roomSnapshot() map[string]*Room {
	cs.roomsLock.RLock()
	defer cs.roomsLock.RUnlock()

	rooms := make(map[string]*Room, len(cs.rooms))
	for id, r := range cs.rooms {
		rooms[id] = r
	}
	return rooms
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")

	cs.clientsLock.Lock()
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.Unlock()

	req := stopReq{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
