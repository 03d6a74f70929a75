// Package reconciler merges locally-sent and broadcast chat events into one
// ordered, deduplicated view, and folds assistant file-tree patches into the
// shared project snapshot.
package reconciler

import (
	"log"
	"sync"

	"github.com/devroom-io/devroom/internal/types"
)

// FileTreeStore persists merged file trees. database.Repository satisfies
// it; clients talking to a remote API provide their own implementation.
type FileTreeStore interface {
	UpdateFileTree(projectId string, tree types.FileTree) error
}

// Message is one displayed entry: the wire message, plus the decoded
// payload when the sender is the assistant.
type Message struct {
	types.ChatMessage
	AI *AIPayload `json:"ai,omitempty"`
}

// Reconciler holds one client's view of a room. Messages arrive from two
// sources: the client's own optimistic appends and the broadcast stream,
// which echoes the client's messages back. Duplicates are dropped by server
// message id when one is present, falling back to the
// {sender, body, timestamp} tuple for optimistic entries that never had one.
type Reconciler struct {
	log       *log.Logger
	projectId string
	store     FileTreeStore

	mu       sync.Mutex
	messages []Message
	seenIds  map[string]struct{}
	seenKeys map[string]struct{}
	tree     types.FileTree

	saves sync.WaitGroup
}

func New(logger *log.Logger, projectId string, tree types.FileTree, store FileTreeStore) *Reconciler {
	return &Reconciler{
		log:       logger,
		projectId: projectId,
		store:     store,
		seenIds:   make(map[string]struct{}),
		seenKeys:  make(map[string]struct{}),
		tree:      tree.Clone(),
	}
}

func dedupKey(msg types.ChatMessage) string {
	return msg.Sender.Id + "\x00" + msg.Message + "\x00" + msg.Timestamp
}

// AppendLocal records a message the client just sent, ahead of its echo
// from the broadcast stream.
func (r *Reconciler) AppendLocal(msg types.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.remember(msg)
	r.messages = append(r.messages, Message{ChatMessage: msg})
}

// Apply folds one broadcast message into the view. Duplicates (including
// echoes of locally-appended messages) are dropped; assistant messages are
// decoded and their file-tree patches merged and persisted in the
// background so display is never blocked.
func (r *Reconciler) Apply(msg types.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.seen(msg) {
		return
	}
	r.remember(msg)

	if msg.Sender.Id != types.AISenderId {
		r.messages = append(r.messages, Message{ChatMessage: msg})
		return
	}

	payload, err := DecodeAIPayload(msg.Message)
	if err != nil {
		r.log.Printf("decode ai message: %v", err)
		msg.Message = DecodeErrPlaceholder
		r.messages = append(r.messages, Message{ChatMessage: msg})
		return
	}

	r.messages = append(r.messages, Message{ChatMessage: msg, AI: payload})

	if len(payload.FileTree) > 0 {
		r.tree = r.tree.Merge(payload.FileTree)
		snapshot := r.tree.Clone()
		r.saves.Add(1)
		go r.persistFileTree(snapshot)
	}
}

func (r *Reconciler) seen(msg types.ChatMessage) bool {
	if msg.Id != "" {
		if _, ok := r.seenIds[msg.Id]; ok {
			return true
		}
	}
	_, ok := r.seenKeys[dedupKey(msg)]
	return ok
}

func (r *Reconciler) remember(msg types.ChatMessage) {
	if msg.Id != "" {
		r.seenIds[msg.Id] = struct{}{}
	}
	r.seenKeys[dedupKey(msg)] = struct{}{}
}

func (r *Reconciler) persistFileTree(tree types.FileTree) {
	defer r.saves.Done()

	if r.store == nil {
		return
	}

	// a failed save is reported locally and never unwinds the view
	if err := r.store.UpdateFileTree(r.projectId, tree); err != nil {
		r.log.Printf("update file tree for project %q: %v", r.projectId, err)
	}
}

// Messages snapshots the ordered, deduplicated view.
func (r *Reconciler) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// FileTree snapshots the locally held file tree.
func (r *Reconciler) FileTree() types.FileTree {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tree.Clone()
}

// SetFile records a local edit to one file and persists the updated tree in
// the background, mirroring what Apply does for assistant patches.
func (r *Reconciler) SetFile(path, contents string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tree = r.tree.Merge(types.FileTree{
		path: {File: types.FileContents{Contents: contents}},
	})
	snapshot := r.tree.Clone()
	r.saves.Add(1)
	go r.persistFileTree(snapshot)
}

// Wait blocks until pending file-tree saves have finished.
func (r *Reconciler) Wait() {
	r.saves.Wait()
}
