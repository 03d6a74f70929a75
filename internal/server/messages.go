package server

import (
	"net/http"
	"time"

	"github.com/devroom-io/devroom/internal/types"
)

// Actions carried by user-activity-update events.
const (
	ActionJoined = "joined"
	ActionLeft   = "left"
)

// ClientMessage is the tagged union of events a client may send on its
// socket: a chat message for the room, or an explicit activity ping.
type ClientMessage struct {
	ProjectMessage *types.ChatMessage `json:"project-message,omitempty"`
	UserActivity   *UserActivity      `json:"user-activity,omitempty"`

	client *Client
}

type UserActivity struct {
	Action string `json:"action"`
}

// ServerMessage is the tagged union of events delivered to clients: a chat
// message broadcast, a presence change, or a direct response.
type ServerMessage struct {
	ProjectMessage *types.ChatMessage    `json:"project-message,omitempty"`
	ActivityUpdate *types.ActivityUpdate `json:"user-activity-update,omitempty"`
	Response       *Response             `json:"response,omitempty"`

	SkipClient *Client `json:"-"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
}

func ErrInvalidMessage() *ServerMessage {
	return &ServerMessage{
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}
}

func ErrServiceUnavailable() *ServerMessage {
	return &ServerMessage{
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

// Now returns the timestamp string stamped on server-authored messages.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
