// Package client implements the real-time synchronization engine: it owns the
// single persistent connection to the game server, multiplexes every event
// kind over it, and reconciles locally queued movement intents against
// authoritative map snapshots.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/itray25/neogen/internal/config"
	"github.com/itray25/neogen/internal/game"
	"github.com/itray25/neogen/internal/intent"
	"github.com/itray25/neogen/internal/proto"
	"github.com/itray25/neogen/internal/state"
)

// Engine is the client-side sync engine. All mutable state below the store is
// owned by the single goroutine running Run; public methods post work into
// that loop and never touch it directly.
type Engine struct {
	cfg    config.Config
	log    *zerolog.Logger
	store  *state.Store
	router *state.Router
	queue  *intent.Queue

	cmds chan func()
	done chan struct{}

	// loop-owned fields
	status         state.ConnStatus
	conn           *websocket.Conn
	connCancel     context.CancelFunc
	epoch          int
	outbox         []any
	tiles          *game.TileMap
	pendingRefresh map[proto.RoomID]bool
}

// New constructs an engine around an injected store. The store is shared with
// the presentation layer; the engine is its only writer.
func New(cfg config.Config, store *state.Store, logger *zerolog.Logger) *Engine {
	return &Engine{
		cfg:            cfg,
		log:            logger,
		store:          store,
		router:         state.NewRouter(store),
		queue:          intent.NewQueue(),
		cmds:           make(chan func(), 64),
		done:           make(chan struct{}),
		pendingRefresh: make(map[proto.RoomID]bool),
	}
}

// Run drives the engine loop until ctx is cancelled. Commands, inbound
// messages and the drain ticker all execute run-to-completion on this one
// goroutine, which is what makes lock-free handler code safe.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.DrainInterval)
	defer ticker.Stop()
	defer close(e.done)

	for {
		select {
		case <-ctx.Done():
			e.teardown()
			return
		case fn := <-e.cmds:
			fn()
		case <-ticker.C:
			e.drainTick()
		}
	}
}

// do posts fn to the loop, reporting false once the engine has stopped.
func (e *Engine) do(fn func()) bool {
	select {
	case e.cmds <- fn:
		return true
	case <-e.done:
		return false
	}
}

// call posts fn and waits for its boolean result.
func (e *Engine) call(fn func() bool) bool {
	reply := make(chan bool, 1)
	if !e.do(func() { reply <- fn() }) {
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-e.done:
		return false
	}
}

func (e *Engine) setStatus(status state.ConnStatus) {
	e.status = status
	e.store.Apply(func(s *state.State) { s.Status = status })
}

// Connect opens the transport. It resolves once the transport reports open
// (server authentication follows as a separate `connected` message) and is an
// idempotent no-op while a connect is in flight or established. There is no
// automatic retry: a failed dial is terminal and the caller decides whether
// to try again.
func (e *Engine) Connect(ctx context.Context) error {
	result := make(chan error, 1)
	if !e.do(func() { e.startConnect(ctx, result) }) {
		return ErrEngineStopped
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrEngineStopped
	}
}

func (e *Engine) startConnect(ctx context.Context, result chan<- error) {
	if e.status != state.Disconnected {
		result <- nil
		return
	}
	identity := e.store.Snapshot().Identity
	if identity == nil {
		result <- ErrNoIdentity
		return
	}

	target, err := dialURL(e.cfg.ServerURL, *identity)
	if err != nil {
		result <- err
		return
	}

	e.setStatus(state.Connecting)
	epoch := e.epoch

	go func() {
		dialCtx, cancel := context.WithTimeout(ctx, e.cfg.DialTimeout)
		defer cancel()
		conn, resp, dialErr := websocket.Dial(dialCtx, target, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if !e.do(func() { e.finishConnect(epoch, conn, dialErr, result) }) && conn != nil {
			conn.CloseNow()
		}
	}()
}

func (e *Engine) finishConnect(epoch int, conn *websocket.Conn, dialErr error, result chan<- error) {
	if epoch != e.epoch || e.status != state.Connecting {
		// a disconnect raced the dial; the fresh transport is unwanted
		if conn != nil {
			conn.CloseNow()
		}
		result <- transportError("connect aborted")
		return
	}
	if dialErr != nil {
		e.setStatus(state.Disconnected)
		e.router.SystemNotice("connection failed: " + dialErr.Error())
		result <- transportError(dialErr.Error())
		return
	}

	e.conn = conn
	readCtx, cancel := context.WithCancel(context.Background())
	e.connCancel = cancel
	e.setStatus(state.Connected)

	// flush sends buffered while the handshake was in flight, in FIFO order
	outbox := e.outbox
	e.outbox = nil
	for _, msg := range outbox {
		if !e.write(msg) {
			result <- transportError("flush after connect failed")
			return
		}
	}

	e.setStatus(state.Authenticating)
	go e.readLoop(readCtx, conn, epoch)
	e.router.SystemNotice("connection established, waiting for server acknowledgment")
	result <- nil
}

// Disconnect closes the transport unconditionally, cancels pending timers and
// drops buffered sends and queued intents.
func (e *Engine) Disconnect() {
	e.do(func() {
		if e.status == state.Disconnected {
			return
		}
		e.teardown()
		e.router.SystemNotice("disconnected")
	})
}

// teardown resets the transport and every session-derived field. Identity,
// chat history and the current-room intent survive so a later reconnect can
// resume where the player left off.
func (e *Engine) teardown() {
	e.epoch++
	if e.connCancel != nil {
		e.connCancel()
		e.connCancel = nil
	}
	if e.conn != nil {
		e.conn.Close(websocket.StatusNormalClosure, "closing")
		e.conn = nil
	}
	e.outbox = nil
	e.queue.Clear()
	e.tiles = nil
	clear(e.pendingRefresh)

	e.status = state.Disconnected
	e.store.Apply(func(s *state.State) {
		s.Status = state.Disconnected
		s.Room = nil
		s.Groups = make(map[string][]state.Group)
		s.OwnGroup = make(map[string]int)
		s.Map = nil
		s.Game = state.GameView{}
		s.NeedsPassword = false
	})
}

func (e *Engine) transportLost(err error) {
	e.log.Warn().Err(err).Msg("transport lost")
	e.teardown()
	e.router.SystemNotice("connection lost: " + err.Error())
}

// send transmits msg when the transport is up, buffers it while a connect is
// in flight, and reports false when there is nothing to send on.
func (e *Engine) send(msg any) bool {
	switch {
	case e.conn != nil && e.status >= state.Connected:
		return e.write(msg)
	case e.status == state.Connecting:
		e.outbox = append(e.outbox, msg)
		return true
	default:
		return false
	}
}

func (e *Engine) write(msg any) bool {
	if e.conn == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.WriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, e.conn, msg); err != nil {
		e.transportLost(err)
		return false
	}
	return true
}

// readLoop runs off-loop: it only decodes frames and posts them; every state
// effect happens on the engine goroutine, preserving wire-arrival order.
func (e *Engine) readLoop(ctx context.Context, conn *websocket.Conn, epoch int) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			e.do(func() { e.handleClosed(epoch, err) })
			return
		}
		msg, decErr := proto.Decode(data)
		if decErr != nil {
			e.do(func() { e.handleDecodeError(decErr) })
			continue
		}
		e.do(func() { e.dispatch(msg) })
	}
}

func (e *Engine) handleClosed(epoch int, err error) {
	if epoch != e.epoch {
		return // already torn down
	}
	status := websocket.CloseStatus(err)
	if errors.Is(err, context.Canceled) ||
		status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		e.teardown()
		e.router.SystemNotice("connection closed")
		return
	}
	e.transportLost(err)
}

func (e *Engine) handleDecodeError(err error) {
	e.log.Warn().Err(err).Msg("dropping malformed message")
	e.router.SystemNotice("dropped a malformed server message")
}

// scheduleRefresh requests a fresh room snapshot after a short grace period,
// giving the server time to settle. Pending refreshes are deduplicated per
// room and invalidated by disconnects.
func (e *Engine) scheduleRefresh(room proto.RoomID) {
	if room == "" || e.pendingRefresh[room] {
		return
	}
	e.pendingRefresh[room] = true
	epoch := e.epoch
	time.AfterFunc(e.cfg.RefreshGrace, func() {
		e.do(func() {
			if epoch != e.epoch {
				return
			}
			delete(e.pendingRefresh, room)
			e.send(proto.NewGetRoomInfo(room))
		})
	})
}

// drainTick sends at most one queued intent per tick. The head track's first
// move is validated against the latest authoritative snapshot right before
// transmission; a failed validation discards the whole track, since every
// later move chained off the broken link.
func (e *Engine) drainTick() {
	if e.status < state.Connected {
		return
	}
	snapshot := e.store.Snapshot()
	if snapshot.Game.Ended {
		return
	}
	owner := game.OwnerToken(snapshot.OwnGroupID(snapshot.CurrentRoomID))
	if !snapshot.Game.Started && (e.tiles.Len() == 0 || owner == "") {
		return
	}

	mv, ok := e.queue.Head()
	if !ok {
		return
	}
	if mv.Sent {
		// waiting for a snapshot to confirm it; the server decides whether
		// it executed
		return
	}
	if err := game.CanMove(e.tiles, owner, mv.FromX, mv.FromY, mv.ToX, mv.ToY); err != nil {
		e.dropHeadTrack(err)
		return
	}
	room := proto.RoomID(snapshot.CurrentRoomID)
	if e.send(proto.NewMove(room, mv.FromX, mv.FromY, mv.ToX, mv.ToY, mv.ID)) {
		e.queue.MarkHeadSent()
		e.log.Debug().Int64("move_id", mv.ID).Msg("move sent")
	}
}

func (e *Engine) dropHeadTrack(reason error) {
	track, ok := e.queue.DropHeadTrack()
	if !ok {
		return
	}
	e.log.Info().Int("track", track.ID).Int("moves", len(track.Moves)).
		Err(reason).Str("code", ErrCodeIntentInvalid).Msg("move track dropped")
	e.router.SystemNotice(fmt.Sprintf("move track dropped: %v", reason))
}

func dialURL(base string, identity state.Identity) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("server url: %w", err)
	}
	q := u.Query()
	q.Set("user_id", identity.UserID)
	q.Set("username", identity.DisplayName)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
