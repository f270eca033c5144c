package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/itray25/neogen/internal/config"
	"github.com/itray25/neogen/internal/proto"
	"github.com/itray25/neogen/internal/state"
)

// fakeServer accepts realtime connections and hands them to the test.
type fakeServer struct {
	srv   *httptest.Server
	conns chan *serverConn
}

type serverConn struct {
	conn  *websocket.Conn
	query url.Values
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{conns: make(chan *serverConn, 1)}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		fs.conns <- &serverConn{conn: conn, query: r.URL.Query()}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *fakeServer) accept(t *testing.T) *serverConn {
	t.Helper()
	select {
	case sc := <-fs.conns:
		return sc
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a connection")
		return nil
	}
}

func (sc *serverConn) send(t *testing.T, frame string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sc.conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func (sc *serverConn) read(t *testing.T) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var frame map[string]any
	if err := wsjson.Read(ctx, sc.conn, &frame); err != nil {
		t.Fatalf("server read: %v", err)
	}
	return frame
}

// expectSilence asserts no frame arrives within d. The expiring read closes
// the connection, so this must be the last use of it.
func (sc *serverConn) expectSilence(t *testing.T, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	if _, data, err := sc.conn.Read(ctx); err == nil {
		t.Fatalf("unexpected frame: %s", data)
	}
}

func newTestEngine(t *testing.T, fs *fakeServer, drain time.Duration) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.ServerURL = fs.url()
	cfg.DialTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	cfg.DrainInterval = drain
	cfg.RefreshGrace = 10 * time.Millisecond

	logger := zerolog.Nop()
	engine := New(cfg, state.NewStore(), &logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		engine.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return engine
}

func connectAs(t *testing.T, engine *Engine, fs *fakeServer, name string) *serverConn {
	t.Helper()
	engine.SetIdentity(state.Identity{UserID: "7", DisplayName: name})
	if err := engine.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	sc := fs.accept(t)
	sc.send(t, `{"type":"connected"}`)
	waitFor(t, engine, func(s state.State) bool { return s.Status == state.Authenticated })
	return sc
}

func waitFor(t *testing.T, engine *Engine, pred func(state.State) bool) state.State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := engine.State(); pred(s) {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition never held; final state: %+v", engine.State())
	return state.State{}
}

func hasNotice(entries []state.ChatEntry, substr string) bool {
	for _, entry := range entries {
		if entry.System && strings.Contains(entry.Body, substr) {
			return true
		}
	}
	return false
}

func TestConnectRequiresIdentity(t *testing.T) {
	fs := newFakeServer(t)
	engine := newTestEngine(t, fs, time.Hour)
	if err := engine.Connect(context.Background()); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
}

func TestConnectHandshake(t *testing.T) {
	fs := newFakeServer(t)
	engine := newTestEngine(t, fs, time.Hour)
	engine.SetIdentity(state.Identity{UserID: "7", DisplayName: "alice"})

	if err := engine.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	sc := fs.accept(t)
	if sc.query.Get("user_id") != "7" || sc.query.Get("username") != "alice" {
		t.Fatalf("unexpected handshake query: %v", sc.query)
	}
	waitFor(t, engine, func(s state.State) bool { return s.Status == state.Authenticating })

	sc.send(t, `{"type":"connected"}`)
	s := waitFor(t, engine, func(s state.State) bool { return s.Status == state.Authenticated })
	if s.CurrentRoomID != state.GlobalChannel {
		t.Fatalf("expected the global channel after auth, got %q", s.CurrentRoomID)
	}

	// a second connect while established is a no-op
	if err := engine.Connect(context.Background()); err != nil {
		t.Fatalf("repeat connect: %v", err)
	}
}

func TestConnectDialFailure(t *testing.T) {
	fs := newFakeServer(t)
	engine := newTestEngine(t, fs, time.Hour)
	fs.srv.Close()
	engine.SetIdentity(state.Identity{UserID: "7", DisplayName: "alice"})

	err := engine.Connect(context.Background())
	if err == nil {
		t.Fatal("expected a dial error")
	}
	var engineErr *Error
	if !errors.As(err, &engineErr) || engineErr.Code != ErrCodeTransport {
		t.Fatalf("expected a transport-coded error, got %v", err)
	}
	if s := engine.State(); s.Status != state.Disconnected {
		t.Fatalf("failed dial should leave the engine disconnected, got %v", s.Status)
	}
}

func TestSendChatWhileDisconnected(t *testing.T) {
	fs := newFakeServer(t)
	engine := newTestEngine(t, fs, time.Hour)
	if err := engine.SendChat(proto.GlobalRoom, "hello"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestChatRoundTrip(t *testing.T) {
	fs := newFakeServer(t)
	engine := newTestEngine(t, fs, time.Hour)
	sc := connectAs(t, engine, fs, "alice")

	if err := engine.SendChat(proto.GlobalRoom, "hello"); err != nil {
		t.Fatalf("send chat: %v", err)
	}
	frame := sc.read(t)
	if frame["type"] != "chat" || frame["content"] != "hello" || frame["room_id"] != "global" {
		t.Fatalf("unexpected chat frame: %v", frame)
	}

	sc.send(t, `{"type":"chat","room_id":"global","content":"hi alice","username":"bob","sender_id":2}`)
	waitFor(t, engine, func(s state.State) bool {
		for _, entry := range s.Channels[state.GlobalChannel] {
			if entry.Author == "bob" && entry.Body == "hi alice" {
				return true
			}
		}
		return false
	})
}

func TestJoinRoomSendsOneFollowUp(t *testing.T) {
	fs := newFakeServer(t)
	engine := newTestEngine(t, fs, time.Hour)
	sc := connectAs(t, engine, fs, "alice")

	if err := engine.JoinRoom("5", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	frame := sc.read(t)
	if frame["type"] != "join_room" || frame["room_id"] != float64(5) || frame["player_name"] != "alice" {
		t.Fatalf("unexpected join frame: %v", frame)
	}

	sc.send(t, `{"type":"join_room","room_id":5,"player_name":"alice"}`)
	waitFor(t, engine, func(s state.State) bool { return s.CurrentRoomID == "5" })

	frame = sc.read(t)
	if frame["type"] != "get_room_info" || frame["room_id"] != float64(5) {
		t.Fatalf("expected a room info request, got %v", frame)
	}
	// exactly one follow-up per acknowledged join
	sc.expectSilence(t, 100*time.Millisecond)
}

func TestRoomInfoDerivesOwnGroup(t *testing.T) {
	fs := newFakeServer(t)
	engine := newTestEngine(t, fs, time.Hour)
	sc := connectAs(t, engine, fs, "alice")

	sc.send(t, `{"type":"join_room","room_id":5,"player_name":"alice"}`)
	waitFor(t, engine, func(s state.State) bool { return s.CurrentRoomID == "5" })
	sc.read(t) // the room info request

	sc.send(t, `{"type":"room_info","room_id":5,"name":"duel","players":["alice","bob"],`+
		`"groups":[{"id":0,"players":["bob"]},{"id":3,"players":["alice"]}],`+
		`"required_to_start":2,"status":"waiting","host_player_name":"bob"}`)
	s := waitFor(t, engine, func(s state.State) bool { return s.Room != nil })
	if s.Room.Name != "duel" || len(s.Room.Players) != 2 || s.Room.HostName != "bob" {
		t.Fatalf("unexpected membership: %+v", s.Room)
	}
	if got := s.OwnGroupID("5"); got != 3 {
		t.Fatalf("expected derived group 3, got %d", got)
	}
}

func TestMoveDrainAndConfirm(t *testing.T) {
	fs := newFakeServer(t)
	engine := newTestEngine(t, fs, 20*time.Millisecond)
	sc := connectAs(t, engine, fs, "alice")

	sc.send(t, `{"type":"join_room","room_id":5,"player_name":"alice"}`)
	waitFor(t, engine, func(s state.State) bool { return s.CurrentRoomID == "5" })
	sc.read(t) // the room info request
	sc.send(t, `{"type":"room_info","room_id":5,"players":["alice"],"groups":[{"id":0,"players":["alice"]}],"status":"playing"}`)
	sc.send(t, `{"type":"map_update","room_id":5,"visible_tiles":[[0,0,"g",5,"team_0"],[0,1,"w",0]]}`)
	waitFor(t, engine, func(s state.State) bool { return s.Map != nil })

	id, err := engine.QueueMove(0, 0, 0, 1)
	if err != nil {
		t.Fatalf("queue move: %v", err)
	}

	frame := sc.read(t)
	if frame["type"] != "move" || frame["move_id"] != float64(id) {
		t.Fatalf("unexpected move frame: %v", frame)
	}
	if frame["from_x"] != float64(0) || frame["to_y"] != float64(1) {
		t.Fatalf("unexpected coordinates: %v", frame)
	}
	// sent but unconfirmed moves stay queued across several drain ticks
	time.Sleep(100 * time.Millisecond)
	if moves, _ := engine.PendingMoves(); moves != 1 {
		t.Fatalf("expected 1 pending move, got %d", moves)
	}

	sc.send(t, `{"type":"map_update","room_id":5,"visible_tiles":[[0,0,"g",1,"team_0"],[0,1,"t",4,"team_0"]],"successful_move_sends":[`+
		strconv.FormatInt(id, 10)+`]}`)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if moves, _ := engine.PendingMoves(); moves == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("confirmation never drained the queue")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// a sent move was never retransmitted; any duplicate would be buffered here
	sc.expectSilence(t, 100*time.Millisecond)
}

func TestQueueMoveRejectsNonAdjacent(t *testing.T) {
	fs := newFakeServer(t)
	engine := newTestEngine(t, fs, time.Hour)
	if _, err := engine.QueueMove(0, 0, 2, 0); !errors.Is(err, ErrNotAdjacent) {
		t.Fatalf("expected ErrNotAdjacent, got %v", err)
	}
	if _, err := engine.QueueMove(0, 0, 1, 1); !errors.Is(err, ErrNotAdjacent) {
		t.Fatalf("diagonal step: expected ErrNotAdjacent, got %v", err)
	}
}

func TestOwnershipFlipDropsTrack(t *testing.T) {
	fs := newFakeServer(t)
	engine := newTestEngine(t, fs, time.Hour) // drain never ticks; revalidation does the work
	sc := connectAs(t, engine, fs, "alice")

	sc.send(t, `{"type":"join_room","room_id":5,"player_name":"alice"}`)
	waitFor(t, engine, func(s state.State) bool { return s.CurrentRoomID == "5" })
	sc.read(t) // the room info request
	sc.send(t, `{"type":"room_info","room_id":5,"players":["alice"],"groups":[{"id":0,"players":["alice"]}],"status":"playing"}`)
	sc.send(t, `{"type":"map_update","room_id":5,"visible_tiles":[[0,0,"t",5,"team_0"],[0,1,"w",0]]}`)
	waitFor(t, engine, func(s state.State) bool { return s.Map != nil })

	if _, err := engine.QueueMove(0, 0, 0, 1); err != nil {
		t.Fatalf("queue move: %v", err)
	}
	if _, err := engine.QueueMove(0, 1, 0, 2); err != nil {
		t.Fatalf("queue move: %v", err)
	}

	// the origin flips to the enemy: the whole track dies, nothing is sent
	sc.send(t, `{"type":"map_update","room_id":5,"visible_tiles":[[0,0,"t",5,"team_1"],[0,1,"w",0]]}`)
	waitFor(t, engine, func(s state.State) bool {
		return hasNotice(s.Channels[state.GlobalChannel], "move track dropped")
	})
	if moves, tracks := engine.PendingMoves(); moves != 0 || tracks != 0 {
		t.Fatalf("expected an empty queue, got %d moves in %d tracks", moves, tracks)
	}
	sc.expectSilence(t, 100*time.Millisecond)
}

func TestSendsBufferedWhileConnectingFlushInOrder(t *testing.T) {
	gate := make(chan struct{})
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-gate
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.ServerURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	cfg.DialTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	cfg.DrainInterval = time.Hour
	logger := zerolog.Nop()
	engine := New(cfg, state.NewStore(), &logger)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		engine.Run(runCtx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	engine.SetIdentity(state.Identity{UserID: "7", DisplayName: "alice"})
	connectErr := make(chan error, 1)
	go func() { connectErr <- engine.Connect(context.Background()) }()
	waitFor(t, engine, func(s state.State) bool { return s.Status == state.Connecting })

	// buffered while the handshake is stalled
	if err := engine.SendChat(proto.GlobalRoom, "first"); err != nil {
		t.Fatalf("buffered send: %v", err)
	}
	if err := engine.SendChat(proto.GlobalRoom, "second"); err != nil {
		t.Fatalf("buffered send: %v", err)
	}

	close(gate)
	if err := <-connectErr; err != nil {
		t.Fatalf("connect: %v", err)
	}
	sc := &serverConn{conn: <-conns}
	if frame := sc.read(t); frame["content"] != "first" {
		t.Fatalf("flush order broken, first frame: %v", frame)
	}
	if frame := sc.read(t); frame["content"] != "second" {
		t.Fatalf("flush order broken, second frame: %v", frame)
	}
	// flushed exactly once
	sc.expectSilence(t, 100*time.Millisecond)
}

func TestRoomInfoReplacesNotMerges(t *testing.T) {
	fs := newFakeServer(t)
	engine := newTestEngine(t, fs, time.Hour)
	sc := connectAs(t, engine, fs, "alice")

	sc.send(t, `{"type":"join_room","room_id":5,"player_name":"alice"}`)
	waitFor(t, engine, func(s state.State) bool { return s.CurrentRoomID == "5" })
	sc.read(t) // the room info request

	sc.send(t, `{"type":"room_info","room_id":5,"name":"duel","players":["alice","bob","carol"],"host_player_name":"bob"}`)
	waitFor(t, engine, func(s state.State) bool { return s.Room != nil && len(s.Room.Players) == 3 })

	sc.send(t, `{"type":"room_info","room_id":5,"name":"duel","players":["alice"]}`)
	s := waitFor(t, engine, func(s state.State) bool { return s.Room != nil && len(s.Room.Players) == 1 })
	if s.Room.Players[0] != "alice" {
		t.Fatalf("unexpected roster: %v", s.Room.Players)
	}
	// fields absent from the newer snapshot do not linger
	if s.Room.HostName != "" {
		t.Fatalf("membership was merged, not replaced: %+v", s.Room)
	}
}

func TestEndGameClearsQueuedMoves(t *testing.T) {
	fs := newFakeServer(t)
	engine := newTestEngine(t, fs, 20*time.Millisecond)
	sc := connectAs(t, engine, fs, "alice")

	sc.send(t, `{"type":"join_room","room_id":5,"player_name":"alice"}`)
	waitFor(t, engine, func(s state.State) bool { return s.CurrentRoomID == "5" })
	sc.read(t) // the room info request

	// no map and no game yet, so the drain ticker stays idle
	if _, err := engine.QueueMove(0, 0, 0, 1); err != nil {
		t.Fatalf("queue move: %v", err)
	}
	if _, err := engine.QueueMove(0, 1, 0, 2); err != nil {
		t.Fatalf("queue move: %v", err)
	}

	sc.send(t, `{"type":"end_game","room_id":5}`)
	s := waitFor(t, engine, func(s state.State) bool { return s.Game.Ended })
	if !hasNotice(s.Channels[state.GlobalChannel], "game over") {
		t.Fatal("expected a game-over notice")
	}
	if moves, tracks := engine.PendingMoves(); moves != 0 || tracks != 0 {
		t.Fatalf("end_game must clear the queue, got %d moves in %d tracks", moves, tracks)
	}
	sc.expectSilence(t, 100*time.Millisecond)
}

func TestRenameNoticeNamesThePlayer(t *testing.T) {
	fs := newFakeServer(t)
	engine := newTestEngine(t, fs, time.Hour)
	sc := connectAs(t, engine, fs, "alice")

	sc.send(t, `{"type":"change_name","room_id":"global","player_id":3,"new_name":"bob"}`)
	waitFor(t, engine, func(s state.State) bool {
		return hasNotice(s.Channels[state.GlobalChannel], "player 3 is now known as bob")
	})
}

func TestRedirectReturnsToLobby(t *testing.T) {
	fs := newFakeServer(t)
	engine := newTestEngine(t, fs, time.Hour)
	sc := connectAs(t, engine, fs, "alice")

	sc.send(t, `{"type":"join_room","room_id":5,"player_name":"alice"}`)
	waitFor(t, engine, func(s state.State) bool { return s.CurrentRoomID == "5" })
	sc.read(t) // the room info request

	sc.send(t, `{"type":"redirect_to_home","reason":"room closed"}`)
	s := waitFor(t, engine, func(s state.State) bool { return s.CurrentRoomID == state.GlobalChannel })
	if s.Room != nil || s.Map != nil {
		t.Fatalf("redirect should clear the room session: %+v", s)
	}
	if !hasNotice(s.Channels[state.GlobalChannel], "room closed") {
		t.Fatal("expected a lobby notice carrying the reason")
	}
}

func TestServerErrorSetsNeedsPassword(t *testing.T) {
	fs := newFakeServer(t)
	engine := newTestEngine(t, fs, time.Hour)
	sc := connectAs(t, engine, fs, "alice")

	sc.send(t, `{"type":"error","message":"room requires a password"}`)
	s := waitFor(t, engine, func(s state.State) bool { return s.NeedsPassword })
	if !hasNotice(s.Channels[state.GlobalChannel], "room requires a password") {
		t.Fatal("the error text should surface as a notice")
	}
}

func TestDisconnectKeepsIdentityAndHistory(t *testing.T) {
	fs := newFakeServer(t)
	engine := newTestEngine(t, fs, time.Hour)
	sc := connectAs(t, engine, fs, "alice")

	sc.send(t, `{"type":"chat","room_id":"global","content":"hi","username":"bob","sender_id":2}`)
	waitFor(t, engine, func(s state.State) bool {
		for _, entry := range s.Channels[state.GlobalChannel] {
			if entry.Body == "hi" {
				return true
			}
		}
		return false
	})

	engine.Disconnect()
	s := waitFor(t, engine, func(s state.State) bool { return s.Status == state.Disconnected })
	if s.Identity == nil || s.Identity.DisplayName != "alice" {
		t.Fatalf("identity must survive disconnects: %+v", s.Identity)
	}
	found := false
	for _, entry := range s.Channels[state.GlobalChannel] {
		if entry.Body == "hi" {
			found = true
		}
	}
	if !found {
		t.Fatal("chat history must survive disconnects")
	}
	if s.Room != nil || s.Map != nil {
		t.Fatalf("session-derived state should reset: %+v", s)
	}
}

func TestServerCloseIsReported(t *testing.T) {
	fs := newFakeServer(t)
	engine := newTestEngine(t, fs, time.Hour)
	sc := connectAs(t, engine, fs, "alice")

	sc.conn.Close(websocket.StatusGoingAway, "shutting down")
	s := waitFor(t, engine, func(s state.State) bool { return s.Status == state.Disconnected })
	if !hasNotice(s.Channels[state.GlobalChannel], "connection closed") {
		t.Fatalf("expected a closure notice, got %+v", s.Channels[state.GlobalChannel])
	}
}

func TestMalformedFrameIsDroppedNotFatal(t *testing.T) {
	fs := newFakeServer(t)
	engine := newTestEngine(t, fs, time.Hour)
	sc := connectAs(t, engine, fs, "alice")

	sc.send(t, `{"room_id":5}`)
	waitFor(t, engine, func(s state.State) bool {
		return hasNotice(s.Channels[state.GlobalChannel], "malformed")
	})
	if s := engine.State(); s.Status != state.Authenticated {
		t.Fatalf("a bad frame must not drop the connection, got %v", s.Status)
	}

	// the stream keeps working afterwards
	sc.send(t, `{"type":"chat","room_id":"global","content":"still here","username":"bob","sender_id":2}`)
	waitFor(t, engine, func(s state.State) bool {
		for _, entry := range s.Channels[state.GlobalChannel] {
			if entry.Body == "still here" {
				return true
			}
		}
		return false
	})
}
