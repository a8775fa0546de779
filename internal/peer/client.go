package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/S4tyendra/public-vc/internal/application/constant"
	"github.com/S4tyendra/public-vc/internal/signal"
)

// Client is a headless room participant: it dials the signaling endpoint,
// feeds incoming envelopes to the orchestrator and publishes the local audio
// source into every negotiated link.
type Client struct {
	roomID   string
	userID   string
	userName string

	conn    *websocket.Conn
	writeMu sync.Mutex

	orch   *Orchestrator
	source *SilenceSource
}

// Dial acquires the local media source, connects the signaling channel and
// wires the orchestrator. A media failure aborts before anything is dialed.
func Dial(ctx context.Context, serverURL, roomID, userID, userName string, iceServers []webrtc.ICEServer) (*Client, error) {
	source, err := NewSilenceSource()
	if err != nil {
		return nil, fmt.Errorf("media source unavailable: %w", err)
	}

	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	u.Path = "/ws/" + roomID
	q := u.Query()
	q.Set("userID", userID)
	q.Set("userName", userName)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling: %w", err)
	}

	c := &Client{
		roomID:   roomID,
		userID:   userID,
		userName: userName,
		conn:     conn,
		source:   source,
	}

	c.orch = NewOrchestrator(
		userID,
		NewWebRTCFactory(iceServers, source.Track()),
		c.sendEnvelope,
		DefaultNegotiationTimeout,
	)

	c.orch.OnMuteChanged = func(mutedUserID string, muted bool) {
		if mutedUserID == userID {
			// Advisory mute: the server cannot stop our media, we stop it
			// ourselves.
			source.SetMuted(muted)
			slog.Info("local mute state changed", slog.Bool("muted", muted))
		}
	}

	return c, nil
}

func (c *Client) sendEnvelope(env signal.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

	return c.conn.WriteJSON(env)
}

// SendChat broadcasts a chat message to the room.
func (c *Client) SendChat(message string) error {
	env, err := signal.NewEnvelope(signal.TypeChatMessage, signal.ChatRequestPayload{Message: message})
	if err != nil {
		return err
	}

	return c.sendEnvelope(env)
}

// Run pumps the media source and the signaling read loop until ctx is
// cancelled or the connection drops. Teardown is deterministic: every link
// closes and the media source stops on every exit path.
func (c *Client) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.Close()

	go func() {
		if err := c.source.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("media source stopped", slog.Any(constant.Error, err))
		}
	}()

	go func() {
		<-runCtx.Done()
		_ = c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			return fmt.Errorf("signaling read: %w", err)
		}

		env, err := signal.ParseEnvelope(data)
		if err != nil {
			slog.Error("bad envelope", slog.Any(constant.Error, err))
			continue
		}

		if err := c.orch.Handle(env); err != nil {
			slog.Error(
				"handle envelope",
				slog.String(constant.MsgType, env.Type),
				slog.Any(constant.Error, err),
			)
		}
	}
}

// Close tears down every peer link and the signaling connection.
func (c *Client) Close() {
	c.orch.Close()
	_ = c.conn.Close()
}

// Peers lists remote members with live links, for status output.
func (c *Client) Peers() []string {
	return c.orch.PeerIDs()
}
