// Package chat joins the one well-known shared channel and relays text
// messages. Chat is best-effort by design: nothing here may block or break
// an active call.
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/teamcollab/huddle/internal/domain"
	"github.com/teamcollab/huddle/internal/provider"
)

// GeneralChannelName is the only channel this app ever uses.
const GeneralChannelName = "general"

const refreshTimeout = 10 * time.Second

// TokenSource issues chat credentials for an identity.
type TokenSource interface {
	GetAuthToken(ctx context.Context, identity domain.Identity) (string, error)
}

// Client wraps the provider chat SDK for the general channel.
type Client struct {
	tokens  TokenSource
	factory provider.ChatFactory

	mu        sync.Mutex
	identity  domain.Identity
	chat      provider.Chat
	channel   provider.Channel
	onMessage func(provider.Message)
}

func NewClient(tokens TokenSource, factory provider.ChatFactory) *Client {
	return &Client{tokens: tokens, factory: factory}
}

// JoinGeneralChannel creates the chat client for identity and joins the
// general channel unless it is already joined. The token-refresh handlers
// are bound methods so a refresh always reaches this instance.
func (c *Client) JoinGeneralChannel(ctx context.Context, identity domain.Identity) (provider.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	token, err := c.tokens.GetAuthToken(ctx, identity)
	if err != nil {
		log.Error().Err(err).Str("module", "chat").Msg("chat token fetch failed")
		return nil, err
	}

	chatClient, err := c.factory(ctx, token)
	if err != nil {
		log.Error().Err(err).Str("module", "chat").Msg("chat client create failed")
		return nil, err
	}

	channel, err := chatClient.GetChannelByUniqueName(ctx, GeneralChannelName)
	if err != nil {
		log.Error().Err(err).Str("module", "chat").Msg("general channel lookup failed")
		return nil, err
	}
	if channel.State() != provider.ChannelStateJoined {
		if err := channel.Join(ctx); err != nil {
			log.Error().Err(err).Str("module", "chat").Msg("general channel join failed")
			return nil, err
		}
	}

	c.identity = identity
	c.chat = chatClient
	c.channel = channel
	if c.onMessage != nil {
		channel.OnMessageAdded(c.onMessage)
	}

	chatClient.OnTokenAboutToExpire(c.refreshToken)
	chatClient.OnTokenExpired(c.refreshToken)

	log.Info().Str("module", "chat").Str("identity", string(identity)).Msg("joined general channel")
	return channel, nil
}

// SendMessage is fire-and-forget: without an established channel it logs
// and returns rather than raising to the caller.
func (c *Client) SendMessage(ctx context.Context, body string) {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()

	if channel == nil {
		log.Warn().Str("module", "chat").Msg("send dropped: no channel established")
		return
	}
	if err := channel.SendMessage(ctx, body); err != nil {
		log.Warn().Err(err).Str("module", "chat").Msg("send failed")
	}
}

// OnMessageAdded registers the incoming-message handler. It survives a
// later re-join of the channel.
func (c *Client) OnMessageAdded(fn func(provider.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
	if c.channel != nil {
		c.channel.OnMessageAdded(fn)
	}
}

// refreshToken fetches a fresh credential for the joined identity and swaps
// it into the chat client in place. No message loss is expected during the
// swap.
func (c *Client) refreshToken() {
	c.mu.Lock()
	identity := c.identity
	chatClient := c.chat
	c.mu.Unlock()

	if chatClient == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	token, err := c.tokens.GetAuthToken(ctx, identity)
	if err != nil {
		log.Warn().Err(err).Str("module", "chat").Msg("token refresh fetch failed")
		return
	}
	if err := chatClient.UpdateToken(token); err != nil {
		log.Warn().Err(err).Str("module", "chat").Msg("token update failed")
		return
	}
	log.Info().Str("module", "chat").Str("identity", string(identity)).Msg("chat token refreshed")
}
