// Package chat defines what a session needs from a conversation, and the factory which builds conversations
// from chat types. Concrete conversation classes live outside this module and register with a factory.
package chat

import (
	"context"

	"github.com/meow-io/go-hush/chattype"
	"github.com/meow-io/go-hush/contentid"
	"github.com/meow-io/go-hush/crypto"
	"github.com/meow-io/go-hush/identity"
)

const (
	EventNewMessage   = "new-message-notification"
	EventUnreadChange = "unread-change"
	EventTerminated   = "terminated"
)

type Event struct {
	Kind string
	Chat Conversation
}

// Listeners are called synchronously by the conversation. A conversation must not hold its own locks while
// calling them.
type Listener func(Event)

type Metadata struct {
	Title   string                 `json:"title,omitempty"`
	Icon    string                 `json:"icon,omitempty"`
	Members []identity.Identity    `json:"members"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// Copy returns metadata whose member list and fields may be changed without touching m.
func (m Metadata) Copy() Metadata {
	out := m
	out.Members = append([]identity.Identity{}, m.Members...)
	if m.Fields != nil {
		out.Fields = make(map[string]interface{}, len(m.Fields))
		for k, v := range m.Fields {
			out.Fields[k] = v
		}
	}
	return out
}

// The persisted form of a conversation.
type Record struct {
	ID        string              `json:"id"`
	ChatType  chattype.ID         `json:"chatType"`
	ClassType string              `json:"classType"`
	ContentID contentid.ContentID `json:"bubbleId"`
}

type CreateOptions struct {
	Metadata Metadata
	// Suppress member facing notifications.
	Silent bool
}

type RemoveOptions struct {
	Silent bool
}

// Maintains the per member metadata files of a conversation.
type UserManager interface {
	Users() []identity.Identity
	AddUser(ctx context.Context, publicKey string) error
	RemoveUser(ctx context.Context, publicKey string, opts RemoveOptions) error
}

// A Conversation is held by identity, so implementations must be comparable, normally pointers.
type Conversation interface {
	ID() string
	ContentID() contentid.ContentID
	Metadata() Metadata
	Type() *chattype.Descriptor
	UnreadCount() int
	Users() UserManager

	Initialise(ctx context.Context) error
	Create(ctx context.Context, opts CreateOptions) error
	Join(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Close() error
	// Local cleanup once the contract has been terminated.
	Terminate(ctx context.Context) error
	SetMetadata(ctx context.Context, m Metadata) error

	Serialize() (*Record, error)
	IsValid() bool
	Invite() (string, error)
	TerminateKey() string
	On(l Listener)
}

type ConstructRequest struct {
	TypeID       chattype.ID
	ClassType    string
	ContentID    contentid.ContentID
	Self         identity.Identity
	DeviceKey    *crypto.Key
	TerminateKey string
	Metadata     *Metadata
}

type Factory interface {
	ParamsAsArray(template []chattype.Param, params chattype.Params) ([]interface{}, error)
	Params(template map[string]string, params chattype.Params) (map[string]interface{}, error)
	Construct(req ConstructRequest) (Conversation, error)
}
