package types

import (
	"time"
)

// AISenderId is the reserved sender id for messages authored by the
// generation assistant. Account ids are 24-character hex strings, so the
// sentinel can never collide with a real participant.
const AISenderId = "ai"

// AISenderEmail is the display email attached to assistant messages.
const AISenderEmail = "AI"

type User struct {
	Id        string    `json:"_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type Project struct {
	Id        string    `json:"_id"`
	Name      string    `json:"name"`
	OwnerId   string    `json:"owner_id"`
	Users     []User    `json:"users,omitempty"`
	FileTree  FileTree  `json:"file_tree,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// FileTree is the flat path to file mapping shared by a project room.
type FileTree map[string]FileEntry

type FileEntry struct {
	File FileContents `json:"file"`
}

type FileContents struct {
	Contents string `json:"contents"`
}

// Merge overlays other onto the tree: existing paths are overwritten,
// new paths are added, paths absent from other are untouched.
func (ft FileTree) Merge(other FileTree) FileTree {
	if ft == nil {
		ft = make(FileTree, len(other))
	}
	for path, entry := range other {
		ft[path] = entry
	}
	return ft
}

// Clone returns a shallow copy of the tree.
func (ft FileTree) Clone() FileTree {
	if ft == nil {
		return nil
	}
	out := make(FileTree, len(ft))
	for path, entry := range ft {
		out[path] = entry
	}
	return out
}

// Sender identifies the author of a chat message on the wire.
type Sender struct {
	Id    string `json:"_id"`
	Email string `json:"email"`
}

// ChatMessage is the project-message wire payload. Id is assigned by the
// server at broadcast time; RequestId is set on assistant replies and equals
// the id of the triggering message. Timestamp is a free-form client string.
type ChatMessage struct {
	Id        string `json:"id,omitempty"`
	RequestId string `json:"request_id,omitempty"`
	Message   string `json:"message"`
	Sender    Sender `json:"sender"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ActivityUpdate is the user-activity-update wire payload.
type ActivityUpdate struct {
	UserId string `json:"userId"`
	Email  string `json:"email"`
	Action string `json:"action"`
}

// Participant is one presence roster entry: a user with at least one open
// connection to a room.
type Participant struct {
	UserId      string `json:"userId"`
	Email       string `json:"email"`
	Connections int    `json:"connections"`
}
