package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/flemzord/cvchat/internal/oracle"
	"golang.org/x/sync/errgroup"
)

// Client is the worker side of the protocol: it dials a bridge,
// authenticates and answers queries with a local oracle.Oracle.
type Client struct {
	URL               string
	Token             string
	Name              string
	Version           string
	Oracle            oracle.Oracle
	HeartbeatInterval time.Duration
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// Run connects and serves until ctx is cancelled or the connection drops.
// It returns nil on cancellation.
func (c *Client) Run(ctx context.Context) error {
	if c.Oracle == nil {
		return errors.New("worker: client has no oracle")
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	interval := c.HeartbeatInterval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}

	conn, _, err := websocket.Dial(ctx, c.URL, &websocket.DialOptions{HTTPClient: c.HTTPClient})
	if err != nil {
		return fmt.Errorf("worker: dial %s: %w", c.URL, err)
	}
	conn.SetReadLimit(maxMessageBytes)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "worker exiting") }()

	workerID, err := c.hello(ctx, conn)
	if err != nil {
		return err
	}
	logger = logger.With("worker_id", workerID)
	logger.Info("connected to bridge", "url", c.URL)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.heartbeat(gctx, conn, interval) })
	g.Go(func() error { return c.serve(gctx, conn, logger) })

	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Client) hello(ctx context.Context, conn *websocket.Conn) (string, error) {
	data, err := encode(MsgHello, "hello", Hello{Token: c.Token, Name: c.Name, Version: c.Version})
	if err != nil {
		return "", err
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return "", fmt.Errorf("worker: write hello: %w", err)
	}

	readCtx, cancel := context.WithTimeout(ctx, helloReadTimeout)
	defer cancel()
	_, data, err = conn.Read(readCtx)
	if err != nil {
		return "", fmt.Errorf("worker: read hello_ack: %w", err)
	}
	env, err := decode(data)
	if err != nil {
		return "", fmt.Errorf("worker: decode hello_ack: %w", err)
	}
	switch env.Type {
	case MsgHelloAck:
	case MsgError:
		return "", remoteError(env)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnexpectedMsg, env.Type)
	}

	var ack HelloAck
	if err := json.Unmarshal(env.Payload, &ack); err != nil {
		return "", fmt.Errorf("worker: decode hello_ack: %w", err)
	}
	if !ack.Accepted {
		return "", fmt.Errorf("%w: %s", ErrRejected, ack.Reason)
	}
	return ack.WorkerID, nil
}

func (c *Client) heartbeat(ctx context.Context, conn *websocket.Conn, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			data, _ := encode(MsgHeartbeat, "", nil)
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return fmt.Errorf("worker: write heartbeat: %w", err)
			}
		}
	}
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn, logger *slog.Logger) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrWorkerClosed, err)
		}
		env, err := decode(data)
		if err != nil {
			logger.Warn("invalid message from bridge", "error", err)
			continue
		}

		switch env.Type {
		case MsgInitialize:
			var msg Initialize
			if err := json.Unmarshal(env.Payload, &msg); err != nil || msg.Base == nil {
				c.reply(ctx, conn, MsgError, env.ID, ErrorPayload{Message: "invalid initialize payload"})
				continue
			}
			if err := c.Oracle.Initialize(ctx, msg.Base, msg.Config); err != nil {
				c.reply(ctx, conn, MsgError, env.ID, ErrorPayload{Message: err.Error()})
				continue
			}
			logger.Info("initialized", "topics", len(msg.Base.Topics))
			c.reply(ctx, conn, MsgReady, env.ID, Ready{Topics: len(msg.Base.Topics)})

		case MsgQuery:
			var req oracle.Request
			if err := json.Unmarshal(env.Payload, &req); err != nil {
				c.reply(ctx, conn, MsgError, env.ID, ErrorPayload{Message: "invalid query payload"})
				continue
			}
			go func(id string) {
				ans, err := c.Oracle.ProcessQuery(ctx, req)
				if err != nil {
					c.reply(ctx, conn, MsgError, id, ErrorPayload{Message: err.Error()})
					return
				}
				c.reply(ctx, conn, MsgAnswer, id, ans)
			}(env.ID)

		case MsgHeartbeatAck:

		case MsgError:
			logger.Warn("bridge reported error", "error", remoteError(env))

		default:
			logger.Warn("unexpected message type", "type", env.Type)
		}
	}
}

func (c *Client) reply(ctx context.Context, conn *websocket.Conn, typ MessageType, id string, payload any) {
	data, err := encode(typ, id, payload)
	if err != nil {
		return
	}
	_ = conn.Write(ctx, websocket.MessageText, data)
}
