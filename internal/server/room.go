package server

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/devroom-io/devroom/internal/stats"
	"github.com/devroom-io/devroom/internal/types"
	"github.com/google/uuid"
)

const (
	// idleRoomTimeout is how long an empty room lingers before it is
	// unloaded; it absorbs quick reconnects without rebuilding the room.
	idleRoomTimeout = 5 * time.Second
	// generateTimeout bounds one call to the generation collaborator.
	generateTimeout = 90 * time.Second

	// aiTrigger requests a generation reply when it appears anywhere in a
	// message body. The match is a case-sensitive substring test.
	aiTrigger = "@ai"
)

type exitReq struct {
	done chan struct{}
}

type aiResult struct {
	requestId string
	text      string
	err       error
}

// Room is one live broadcast channel scoped to a project. All room state is
// owned by the room goroutine; clients talk to it over channels, which gives
// per-room FIFO broadcast order.
type Room struct {
	id            string
	cs            *ChatServer
	log           *log.Logger
	clients       map[*Client]struct{}
	presence      *presenceTracker
	joinChan      chan *Client
	leaveChan     chan *Client
	clientMsgChan chan *ClientMessage
	aiChan        chan *aiResult
	// killTimer is used to automatically unload the room when it is no longer active
	killTimer *time.Timer
	// exit is used to signal the room to exit
	exit chan exitReq
	done chan struct{}
}

func newRoom(cs *ChatServer, id string) *Room {
	return &Room{
		id:            id,
		cs:            cs,
		log:           cs.log,
		clients:       make(map[*Client]struct{}),
		presence:      newPresenceTracker(),
		joinChan:      make(chan *Client, 256),
		leaveChan:     make(chan *Client, 256),
		clientMsgChan: make(chan *ClientMessage, 256),
		aiChan:        make(chan *aiResult, 16),
		exit:          make(chan exitReq),
		done:          make(chan struct{}),
	}
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.id)
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()

	for {
		select {
		case c := <-r.joinChan:
			r.handleJoin(c)
		case c := <-r.leaveChan:
			r.handleLeave(c)
		case msg := <-r.clientMsgChan:
			switch {
			case msg.ProjectMessage != nil:
				r.routeMessage(msg.client, msg.ProjectMessage)
			case msg.UserActivity != nil:
				r.handleActivity(msg.client, msg.UserActivity)
			}
		case res := <-r.aiChan:
			r.handleAIResult(res)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case req := <-r.exit:
			r.handleRoomExit(req)
			return
		}
	}
}

func (r *Room) handleJoin(c *Client) {
	// stop the kill timer since we have a new client
	r.killTimer.Stop()

	r.clients[c] = struct{}{}
	c.setRoom(r)

	// only a user's first connection changes the roster
	if r.presence.add(c.user) {
		r.broadcast(&ServerMessage{
			ActivityUpdate: &types.ActivityUpdate{
				UserId: c.user.Id,
				Email:  c.user.Email,
				Action: ActionJoined,
			},
		})
	}
}

func (r *Room) handleLeave(c *Client) {
	if _, ok := r.clients[c]; !ok {
		return
	}

	r.log.Printf("removing client %q from room %q", c.user.Email, r.id)
	delete(r.clients, c)
	c.delRoom()

	if r.presence.remove(c.user.Id) {
		r.broadcast(&ServerMessage{
			ActivityUpdate: &types.ActivityUpdate{
				UserId: c.user.Id,
				Email:  c.user.Email,
				Action: ActionLeft,
			},
		})
	}

	// if the client was the last one in the room, start the kill timer
	if len(r.clients) == 0 {
		r.log.Printf("no clients in %q, starting kill timer", r.id)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleActivity(c *Client, activity *UserActivity) {
	r.broadcast(&ServerMessage{
		ActivityUpdate: &types.ActivityUpdate{
			UserId: c.user.Id,
			Email:  c.user.Email,
			Action: activity.Action,
		},
	})
}

// routeMessage stamps the server-verified sender identity and a fresh
// message id on the event, fans it out to the whole room (sender included),
// and dispatches a generation request when the body carries the trigger.
// Client-claimed sender fields are never trusted for identity.
func (r *Room) routeMessage(c *Client, pm *types.ChatMessage) {
	pm.Id = uuid.NewString()
	pm.Sender = types.Sender{Id: c.user.Id, Email: c.user.Email}

	r.broadcast(&ServerMessage{ProjectMessage: pm})
	r.cs.stats.Incr(stats.NumMessages)

	if strings.Contains(pm.Message, aiTrigger) {
		prompt := strings.TrimSpace(strings.Replace(pm.Message, aiTrigger, "", 1))
		r.cs.stats.Incr(stats.NumAIRequests)
		go r.generate(pm.Id, prompt)
	}
}

// generate runs detached from the room loop so a slow collaborator never
// stalls delivery for the room. The result is re-enqueued into the loop,
// which keeps the trigger-before-reply ordering guarantee.
func (r *Room) generate(requestId, prompt string) {
	ctx, cancel := context.WithTimeout(context.Background(), generateTimeout)
	defer cancel()

	text, err := r.cs.ai.Generate(ctx, prompt)

	select {
	case r.aiChan <- &aiResult{requestId: requestId, text: text, err: err}:
	case <-r.done:
		// room emptied before the response arrived; nobody to deliver to
	}
}

func (r *Room) handleAIResult(res *aiResult) {
	if res.err != nil {
		r.log.Printf("generate for room %q: %v", r.id, res.err)
		r.cs.stats.Incr(stats.NumAIErrors)
		return
	}

	r.broadcast(&ServerMessage{
		ProjectMessage: &types.ChatMessage{
			Id:        uuid.NewString(),
			RequestId: res.requestId,
			Message:   res.text,
			Sender:    types.Sender{Id: types.AISenderId, Email: types.AISenderEmail},
			Timestamp: Now(),
		},
	})
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room %q timed out", r.id)
	select {
	case r.cs.unloadRoomChan <- r.id:
	default:
		// the server is busy; try again later
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit(req exitReq) {
	r.log.Printf("room %q is exiting", r.id)
	for c := range r.clients {
		c.delRoom()
	}

	close(r.done)
	if req.done != nil {
		close(req.done)
	}
}

// Roster snapshots the room's current participants.
func (r *Room) Roster() []types.Participant {
	return r.presence.roster()
}

func (r *Room) broadcast(msg *ServerMessage) {
	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}

		client.queueMessage(msg)
	}
}
