package worker

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/flemzord/cvchat/internal/core"
	"github.com/flemzord/cvchat/internal/knowledge"
	"github.com/flemzord/cvchat/internal/oracle"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Bridge{})
}

// Service names published during provisioning.
const (
	ServiceOracle  = "oracle.worker"
	ServiceHandler = "oracle.worker.handler"
	ServicePool    = "oracle.worker.pool"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultMaxWorkers        = 4
	defaultMaxQueryFailures  = 3
	workerInitialBackoff     = 2 * time.Second
	workerMaxBackoff         = 30 * time.Second
	helloReadTimeout         = 10 * time.Second
	maxMissedHeartbeats      = 3
	maxMessageBytes          = 8 << 20
)

// Compile-time interface guards.
var (
	_ oracle.Oracle        = (*Bridge)(nil)
	_ oracle.HealthChecker = (*Bridge)(nil)
	_ core.Configurable    = (*Bridge)(nil)
	_ core.Provisioner     = (*Bridge)(nil)
	_ core.Validator       = (*Bridge)(nil)
	_ core.Starter         = (*Bridge)(nil)
	_ core.Stopper         = (*Bridge)(nil)
)

// Config holds YAML configuration for the worker bridge module.
type Config struct {
	Tokens            []string `yaml:"tokens"`
	HeartbeatInterval string   `yaml:"heartbeat_interval"`
	MaxWorkers        int      `yaml:"max_workers"`
	// MaxQueryFailures consecutive failed queries disconnect a worker.
	MaxQueryFailures int `yaml:"max_query_failures"`
}

func (c *Config) defaults() {
	if c.HeartbeatInterval == "" {
		c.HeartbeatInterval = defaultHeartbeatInterval.String()
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = defaultMaxWorkers
	}
	if c.MaxQueryFailures <= 0 {
		c.MaxQueryFailures = defaultMaxQueryFailures
	}
}

// backoff is the per-worker policy applied after failed queries.
func (c Config) backoff() oracle.BackoffPolicy {
	return oracle.BackoffPolicy{
		Initial:     workerInitialBackoff,
		Max:         workerMaxBackoff,
		MaxFailures: c.MaxQueryFailures,
	}
}

// Bridge accepts worker WebSocket connections and implements oracle.Oracle
// by forwarding queries to a ready worker.
type Bridge struct {
	config            Config
	logger            *slog.Logger
	pool              *Pool
	tokens            [][]byte
	heartbeatInterval time.Duration
	cancel            context.CancelFunc
	wg                sync.WaitGroup

	mu   sync.RWMutex
	init *Initialize
}

// ModuleInfo implements core.Module.
func (b *Bridge) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "oracle.worker",
		New: func() core.Module { return &Bridge{} },
	}
}

// Configure implements core.Configurable.
func (b *Bridge) Configure(node *yaml.Node) error {
	if err := node.Decode(&b.config); err != nil {
		return fmt.Errorf("worker: decode config: %w", err)
	}
	b.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (b *Bridge) Provision(ctx *core.AppContext) error {
	b.config.defaults()
	b.logger = ctx.Logger
	b.pool = NewPool()

	var err error
	b.heartbeatInterval, err = time.ParseDuration(b.config.HeartbeatInterval)
	if err != nil {
		return fmt.Errorf("worker: invalid heartbeat_interval %q: %w", b.config.HeartbeatInterval, err)
	}

	b.tokens = b.tokens[:0]
	for _, t := range b.config.Tokens {
		if t != "" {
			b.tokens = append(b.tokens, []byte(t))
		}
	}

	ctx.RegisterService(ServiceOracle, oracle.Oracle(b))
	ctx.RegisterService(ServiceHandler, http.Handler(http.HandlerFunc(b.ServeHTTP)))
	ctx.RegisterService(ServicePool, b.pool)
	return nil
}

// Validate implements core.Validator.
func (b *Bridge) Validate() error {
	if len(b.tokens) == 0 {
		return errors.New("worker: at least one token is required")
	}
	if b.heartbeatInterval <= 0 {
		return fmt.Errorf("worker: heartbeat_interval must be positive, got %s", b.heartbeatInterval)
	}
	return nil
}

// Start implements core.Starter. It launches heartbeat monitoring.
func (b *Bridge) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.heartbeatLoop(ctx)
	}()

	b.logger.Info("worker bridge started",
		"heartbeat_interval", b.heartbeatInterval,
		"max_workers", b.config.MaxWorkers,
	)
	return nil
}

// Stop implements core.Stopper. It closes every worker connection.
func (b *Bridge) Stop(_ context.Context) error {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()

	b.pool.Range(func(w *Worker) bool {
		w.close("server shutting down")
		return true
	})

	b.logger.Info("worker bridge stopped")
	return nil
}

// Pool returns the set of connected workers.
func (b *Bridge) Pool() *Pool { return b.pool }

// Initialize implements oracle.Oracle. The knowledge base is kept for
// workers that connect later and pushed to every connected worker. It
// fails only when every connected worker rejected it.
func (b *Bridge) Initialize(ctx context.Context, base *knowledge.Base, cfg oracle.Config) error {
	msg := &Initialize{Base: base, Config: cfg}
	b.mu.Lock()
	b.init = msg
	b.mu.Unlock()

	var (
		attempted int
		errs      []error
	)
	b.pool.Range(func(w *Worker) bool {
		if w.state() == StateDisconnected {
			return true
		}
		attempted++
		if err := b.initWorker(ctx, w, msg); err != nil {
			errs = append(errs, err)
		}
		return true
	})

	if attempted > 0 && len(errs) == attempted {
		return errors.Join(errs...)
	}
	return nil
}

// ProcessQuery implements oracle.Oracle.
func (b *Bridge) ProcessQuery(ctx context.Context, req oracle.Request) (oracle.Answer, error) {
	w, ok := b.pool.Pick()
	if !ok {
		return oracle.Answer{}, fmt.Errorf("%w: %w", oracle.ErrUnavailable, ErrNoWorker)
	}

	ans, err := b.query(ctx, w, req)
	if err != nil {
		b.queryFailed(w, err)
		return oracle.Answer{}, err
	}
	if w.health != nil {
		w.health.Succeeded()
	}
	return ans, nil
}

func (b *Bridge) query(ctx context.Context, w *Worker, req oracle.Request) (oracle.Answer, error) {
	env, err := w.request(ctx, MsgQuery, req)
	if err != nil {
		return oracle.Answer{}, err
	}
	if env.Type != MsgAnswer {
		return oracle.Answer{}, fmt.Errorf("%w: %s", ErrUnexpectedMsg, env.Type)
	}

	var ans oracle.Answer
	if err := json.Unmarshal(env.Payload, &ans); err != nil {
		return oracle.Answer{}, fmt.Errorf("worker: decode answer: %w", err)
	}
	return ans, nil
}

// queryFailed benches w and disconnects it once it goes offline, so it can
// reconnect with a fresh handshake.
func (b *Bridge) queryFailed(w *Worker, err error) {
	if w.health == nil || !w.health.Failed(err) {
		return
	}
	st := w.health.Status()
	b.logger.Warn("worker query failed",
		"worker_id", w.ID,
		"state", st.State,
		"failures", st.Failures,
		"error", err,
	)
	if st.State == oracle.Offline {
		w.close("too many failed queries")
	}
}

// HealthCheck implements oracle.HealthChecker.
func (b *Bridge) HealthCheck(_ context.Context) error {
	if _, ok := b.pool.Pick(); !ok {
		return ErrNoWorker
	}
	return nil
}

func (b *Bridge) initWorker(ctx context.Context, w *Worker, msg *Initialize) error {
	env, err := w.request(ctx, MsgInitialize, msg)
	if err != nil {
		b.logger.Warn("worker initialization failed", "worker_id", w.ID, "error", err)
		return fmt.Errorf("initialize %s: %w", w.ID, err)
	}
	if env.Type != MsgReady {
		return fmt.Errorf("initialize %s: %w: %s", w.ID, ErrUnexpectedMsg, env.Type)
	}

	var ready Ready
	_ = json.Unmarshal(env.Payload, &ready)
	w.mu.Lock()
	if w.State != StateDisconnected {
		w.State = StateReady
	}
	w.mu.Unlock()
	b.logger.Info("worker ready", "worker_id", w.ID, "topics", ready.Topics)
	return nil
}

// ServeHTTP runs the full connection lifecycle of one worker:
// hello -> initialize -> read loop.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		b.logger.Error("websocket accept failed", "error", err)
		return
	}
	conn.SetReadLimit(maxMessageBytes)
	defer func() {
		_ = conn.Close(websocket.StatusInternalError, "unexpected close")
	}()

	ctx := r.Context()
	wk := newWorker(conn, b.config.backoff())

	if err := b.handleHello(ctx, conn, wk); err != nil {
		b.logger.Warn("worker hello failed", "error", err)
		return
	}
	defer func() {
		wk.close("disconnected")
		b.pool.Remove(wk.ID)
		b.logger.Info("worker disconnected", "worker_id", wk.ID)
	}()

	b.logger.Info("worker connected", "worker_id", wk.ID, "name", wk.Name, "version", wk.Version)

	b.mu.RLock()
	msg := b.init
	b.mu.RUnlock()
	if msg != nil {
		go func() {
			initCtx, cancel := context.WithTimeout(ctx, helloReadTimeout)
			defer cancel()
			_ = b.initWorker(initCtx, wk, msg)
		}()
	}

	b.readLoop(ctx, conn, wk)
}

func (b *Bridge) handleHello(ctx context.Context, conn *websocket.Conn, wk *Worker) error {
	helloCtx, cancel := context.WithTimeout(ctx, helloReadTimeout)
	defer cancel()

	_, data, err := conn.Read(helloCtx)
	if err != nil {
		return fmt.Errorf("read hello: %w", err)
	}

	env, err := decode(data)
	if err != nil {
		b.sendError(ctx, conn, "", "invalid message format")
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type != MsgHello {
		b.sendError(ctx, conn, env.ID, "expected hello")
		return fmt.Errorf("%w: %s", ErrUnexpectedMsg, env.Type)
	}

	var hello Hello
	if err := json.Unmarshal(env.Payload, &hello); err != nil {
		b.sendError(ctx, conn, env.ID, "invalid hello payload")
		return fmt.Errorf("decode hello: %w", err)
	}

	if !b.validToken(hello.Token) {
		b.send(ctx, conn, MsgHelloAck, env.ID, HelloAck{Reason: "invalid token"})
		return ErrInvalidToken
	}

	id, err := generateID(12)
	if err != nil {
		b.sendError(ctx, conn, env.ID, "internal error")
		return fmt.Errorf("generate worker id: %w", err)
	}
	wk.ID = "wrk-" + id
	wk.Name = hello.Name
	wk.Version = hello.Version

	if !b.pool.AddIfUnder(wk, b.config.MaxWorkers) {
		b.send(ctx, conn, MsgHelloAck, env.ID, HelloAck{Reason: "maximum number of workers reached"})
		return ErrMaxWorkers
	}

	b.send(ctx, conn, MsgHelloAck, env.ID, HelloAck{Accepted: true, WorkerID: wk.ID})
	return nil
}

func (b *Bridge) validToken(token string) bool {
	for _, t := range b.tokens {
		if subtle.ConstantTimeCompare(t, []byte(token)) == 1 {
			return true
		}
	}
	return false
}

func (b *Bridge) readLoop(ctx context.Context, conn *websocket.Conn, wk *Worker) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		env, err := decode(data)
		if err != nil {
			b.logger.Warn("invalid message from worker", "worker_id", wk.ID, "error", err)
			continue
		}
		wk.touch()

		switch env.Type {
		case MsgHeartbeat:
			b.send(ctx, conn, MsgHeartbeatAck, env.ID, nil)

		case MsgAnswer, MsgReady, MsgError:
			if !wk.deliver(env) {
				b.logger.Debug("dropping late reply", "worker_id", wk.ID, "type", env.Type, "id", env.ID)
			}

		default:
			b.logger.Warn("unexpected message type in read loop",
				"worker_id", wk.ID,
				"type", env.Type,
			)
		}
	}
}

func (b *Bridge) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(b.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.checkHeartbeats(time.Now())
		}
	}
}

func (b *Bridge) checkHeartbeats(now time.Time) {
	threshold := b.heartbeatInterval * maxMissedHeartbeats

	b.pool.Range(func(w *Worker) bool {
		info := w.Info()
		if info.State == StateDisconnected {
			return true
		}
		if now.Sub(info.LastSeenAt) > threshold {
			b.logger.Warn("worker heartbeat timeout, disconnecting",
				"worker_id", info.ID,
				"last_seen", info.LastSeenAt,
			)
			// The read loop removes the worker once it sees the closed connection.
			w.close("heartbeat timeout")
		}
		return true
	})
}

func (b *Bridge) send(ctx context.Context, conn *websocket.Conn, typ MessageType, id string, payload any) {
	data, err := encode(typ, id, payload)
	if err != nil {
		b.logger.Error("encode envelope failed", "type", typ, "error", err)
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		b.logger.Warn("write envelope failed", "type", typ, "error", err)
	}
}

func (b *Bridge) sendError(ctx context.Context, conn *websocket.Conn, id, message string) {
	b.send(ctx, conn, MsgError, id, ErrorPayload{Message: message})
}
