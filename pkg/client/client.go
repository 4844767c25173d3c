// Package client is a Go captain client: it keeps a gate.Gate in sync with
// the server's snapshots and sends actions only when the gate allows them.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/DoyleJ11/captains-backend/pkg/gate"
	"github.com/DoyleJ11/captains-backend/pkg/protocol"
)

type Options struct {
	MinInterval time.Duration
	Logger      *zap.Logger
	// OnMessage is called from Run for every message received.
	OnMessage func(protocol.ServerMessage)
	// GateOptions are passed to gate.New.
	GateOptions []gate.Option
}

type Client struct {
	conn      *websocket.Conn
	gate      *gate.Gate
	log       *zap.Logger
	onMessage func(protocol.ServerMessage)

	mu       sync.Mutex
	playerID string
	teamID   string
}

// WSURL builds the websocket URL for a session on a server base URL such as
// "http://localhost:8080".
func WSURL(base, code string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"code": {code}}.Encode()
	return u.String(), nil
}

func Dial(ctx context.Context, wsURL string, opts Options) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MinInterval == 0 {
		opts.MinInterval = gate.DefaultMinInterval
	}
	return &Client{
		conn:      conn,
		gate:      gate.New(opts.MinInterval, opts.GateOptions...),
		log:       opts.Logger,
		onMessage: opts.OnMessage,
	}, nil
}

func (c *Client) Gate() *gate.Gate { return c.gate }

// Identity returns the player and team this client joined as.
func (c *Client) Identity() (playerID, teamID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID, c.teamID
}

// Run reads until the connection ends or ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	for {
		var msg protocol.ServerMessage
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		c.handle(msg)
		if c.onMessage != nil {
			c.onMessage(msg)
		}
	}
}

func (c *Client) handle(msg protocol.ServerMessage) {
	switch msg.Type {
	case protocol.TypeJoined:
		c.mu.Lock()
		c.playerID, c.teamID = msg.Joined.PlayerID, msg.Joined.TeamID
		c.mu.Unlock()
		c.gate.Identify(msg.Joined.TeamID, msg.Joined.PlayerID)
	case protocol.TypeActionResult, protocol.TypeActionRejected, protocol.TypeError:
		c.gate.SetDisabled(false)
		if msg.Rejection != nil {
			c.log.Info("action rejected by server",
				zap.String("reason", string(msg.Rejection.Reason)),
				zap.String("message", msg.Rejection.Message),
			)
		}
	}
	c.gate.Observe(msg)
}

func (c *Client) send(ctx context.Context, m protocol.ClientMessage) error {
	return wsjson.Write(ctx, c.conn, m)
}

func (c *Client) Join(ctx context.Context, nickname, teamID string) error {
	return c.send(ctx, protocol.ClientMessage{Type: protocol.TypeJoin, Nickname: nickname, TeamID: teamID})
}

// Rejoin binds this connection to an existing player after a reconnect.
func (c *Client) Rejoin(ctx context.Context, playerID string) error {
	return c.send(ctx, protocol.ClientMessage{Type: protocol.TypeJoin, PlayerID: playerID})
}

// Roll sends the turn-consuming action if the gate allows it. Further
// actions are held back until the server answers.
func (c *Client) Roll(ctx context.Context) error {
	return c.gated(ctx, protocol.TypeRequestAction)
}

// EndTurn asks the server to hand the turn to the next team.
func (c *Client) EndTurn(ctx context.Context) error {
	return c.gated(ctx, protocol.TypeRequestAdvance)
}

func (c *Client) gated(ctx context.Context, typ protocol.MessageType) error {
	playerID, teamID := c.Identity()
	return c.gate.Attempt(func() error {
		if typ == protocol.TypeRequestAction {
			c.gate.SetDisabled(true)
		}
		err := c.send(ctx, protocol.ClientMessage{Type: typ, TeamID: teamID, PlayerID: playerID})
		if err != nil {
			c.gate.SetDisabled(false)
		}
		return err
	})
}

// Host sends a token-gated host control.
func (c *Client) Host(ctx context.Context, token string, m protocol.ClientMessage) error {
	m.Type = protocol.TypeHostControl
	m.Token = token
	return c.send(ctx, m)
}

func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
