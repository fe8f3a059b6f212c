package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teamcollab/huddle/internal/domain"
	"github.com/teamcollab/huddle/internal/provider"
)

type fakeChannel struct {
	name      string
	state     provider.ChannelState
	joins     int
	sent      []string
	sendErr   error
	onMessage func(provider.Message)
}

func (ch *fakeChannel) UniqueName() string           { return ch.name }
func (ch *fakeChannel) State() provider.ChannelState { return ch.state }

func (ch *fakeChannel) Join(context.Context) error {
	ch.joins++
	ch.state = provider.ChannelStateJoined
	return nil
}

func (ch *fakeChannel) SendMessage(_ context.Context, body string) error {
	if ch.sendErr != nil {
		return ch.sendErr
	}
	ch.sent = append(ch.sent, body)
	return nil
}

func (ch *fakeChannel) OnMessageAdded(fn func(provider.Message)) { ch.onMessage = fn }

type fakeChat struct {
	token         string
	channel       *fakeChannel
	aboutToExpire func()
	expired       func()
}

func (c *fakeChat) GetChannelByUniqueName(_ context.Context, name string) (provider.Channel, error) {
	if name != c.channel.name {
		return nil, errors.New("channel not found")
	}
	return c.channel, nil
}

func (c *fakeChat) UpdateToken(token string) error { c.token = token; return nil }
func (c *fakeChat) OnTokenAboutToExpire(fn func()) { c.aboutToExpire = fn }
func (c *fakeChat) OnTokenExpired(fn func())       { c.expired = fn }

type fakeTokens struct {
	tokens     []string
	identities []domain.Identity
	err        error
}

func (f *fakeTokens) GetAuthToken(_ context.Context, identity domain.Identity) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.identities = append(f.identities, identity)
	token := f.tokens[0]
	if len(f.tokens) > 1 {
		f.tokens = f.tokens[1:]
	}
	return token, nil
}

func newFakes(state provider.ChannelState) (*fakeTokens, *fakeChat, provider.ChatFactory) {
	tokens := &fakeTokens{tokens: []string{"tok-1", "tok-2"}}
	chat := &fakeChat{channel: &fakeChannel{name: GeneralChannelName, state: state}}
	factory := func(_ context.Context, token string) (provider.Chat, error) {
		chat.token = token
		return chat, nil
	}
	return tokens, chat, factory
}

func TestJoinGeneralChannelJoinsWhenNotJoined(t *testing.T) {
	tokens, chat, factory := newFakes(provider.ChannelStateInvited)
	c := NewClient(tokens, factory)

	channel, err := c.JoinGeneralChannel(context.Background(), "Alice")
	require.NoError(t, err)
	require.Equal(t, 1, chat.channel.joins, "exactly one join call")
	require.Equal(t, provider.ChannelStateJoined, channel.State())
	require.Equal(t, "tok-1", chat.token)
}

func TestJoinGeneralChannelSkipsJoinWhenAlreadyJoined(t *testing.T) {
	tokens, chat, factory := newFakes(provider.ChannelStateJoined)
	c := NewClient(tokens, factory)

	_, err := c.JoinGeneralChannel(context.Background(), "Alice")
	require.NoError(t, err)
	require.Zero(t, chat.channel.joins)
}

func TestTokenRefreshIsInstanceBound(t *testing.T) {
	tokens, chat, factory := newFakes(provider.ChannelStateJoined)
	c := NewClient(tokens, factory)

	_, err := c.JoinGeneralChannel(context.Background(), "Alice")
	require.NoError(t, err)
	require.NotNil(t, chat.aboutToExpire)

	// The provider signals expiry; the bound handler must refresh with the
	// joined identity and swap the credential in place.
	chat.aboutToExpire()
	require.Equal(t, "tok-2", chat.token)
	require.Equal(t, []domain.Identity{"Alice", "Alice"}, tokens.identities)
}

func TestSendMessageWithoutChannelIsSilent(t *testing.T) {
	tokens, _, factory := newFakes(provider.ChannelStateJoined)
	c := NewClient(tokens, factory)

	// Must log, not panic or error.
	c.SendMessage(context.Background(), "hello")
}

func TestSendMessageDeliversAfterJoin(t *testing.T) {
	tokens, chat, factory := newFakes(provider.ChannelStateJoined)
	c := NewClient(tokens, factory)

	_, err := c.JoinGeneralChannel(context.Background(), "Alice")
	require.NoError(t, err)

	c.SendMessage(context.Background(), "hello")
	require.Equal(t, []string{"hello"}, chat.channel.sent)
}

func TestOnMessageAddedSurvivesJoinOrder(t *testing.T) {
	tokens, chat, factory := newFakes(provider.ChannelStateJoined)
	c := NewClient(tokens, factory)

	var got []provider.Message
	c.OnMessageAdded(func(m provider.Message) { got = append(got, m) })

	_, err := c.JoinGeneralChannel(context.Background(), "Alice")
	require.NoError(t, err)
	require.NotNil(t, chat.channel.onMessage)

	chat.channel.onMessage(provider.Message{Author: "bob", Body: "hi"})
	require.Len(t, got, 1)
}

func TestJoinErrorPropagatesWithoutChannel(t *testing.T) {
	tokens, _, factory := newFakes(provider.ChannelStateJoined)
	tokens.err = &domain.NetworkError{Op: "get auth token", Err: errors.New("down")}
	c := NewClient(tokens, factory)

	_, err := c.JoinGeneralChannel(context.Background(), "Alice")
	require.Error(t, err)

	// Chat stays best-effort afterwards.
	c.SendMessage(context.Background(), "hello")
}
