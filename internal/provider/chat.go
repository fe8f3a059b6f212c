package provider

import (
	"context"
	"time"

	"github.com/teamcollab/huddle/internal/domain"
)

type ChannelState string

const (
	ChannelStateJoined   ChannelState = "joined"
	ChannelStateInvited  ChannelState = "invited"
	ChannelStateNotfound ChannelState = "notfound"
)

type Message struct {
	Author domain.Identity `json:"author"`
	Body   string          `json:"body"`
	Sent   time.Time       `json:"sent"`
}

// Channel is a named chat stream, independent of room membership.
type Channel interface {
	UniqueName() string
	State() ChannelState
	Join(ctx context.Context) error
	SendMessage(ctx context.Context, body string) error
	OnMessageAdded(func(Message))
}

// Chat is the chat SDK client. Token expiry is signaled through the two
// callbacks; UpdateToken swaps the credential in place with no message loss.
type Chat interface {
	GetChannelByUniqueName(ctx context.Context, name string) (Channel, error)
	UpdateToken(token string) error
	OnTokenAboutToExpire(func())
	OnTokenExpired(func())
}

// ChatFactory mirrors the SDK's create(token) constructor.
type ChatFactory func(ctx context.Context, token string) (Chat, error)
