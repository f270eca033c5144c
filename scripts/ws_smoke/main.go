// Command ws_smoke dials a running game server, waits for the connection
// acknowledgment, posts one global chat line and waits for its echo. It exits
// zero only when the whole round trip worked.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/itray25/neogen/internal/proto"
	"github.com/itray25/neogen/internal/session"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8081/global_ws", "realtime endpoint")
	user := flag.String("user", "", "username to connect as (random guest when empty)")
	text := flag.String("text", "hello from smoke test "+uuid.NewString()[:8], "chat line to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	identity := session.Guest(*user)
	u, err := url.Parse(*addr)
	if err != nil {
		return fmt.Errorf("addr: %w", err)
	}
	q := u.Query()
	q.Set("user_id", identity.UserID)
	q.Set("username", identity.DisplayName)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := waitForKind(ctx, conn, proto.KindConnected); err != nil {
		return fmt.Errorf("waiting for connected: %w", err)
	}
	fmt.Printf("connected as %s\n", identity.DisplayName)

	if err := wsjson.Write(ctx, conn, proto.NewChat(proto.GlobalRoom, *text)); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	for {
		msg, err := read(ctx, conn)
		if err != nil {
			return fmt.Errorf("waiting for echo: %w", err)
		}
		chat, ok := msg.(proto.Chat)
		if !ok {
			continue
		}
		if chat.Content == *text {
			fmt.Printf("echo received from %s\n", chat.Username)
			return nil
		}
	}
}

func read(ctx context.Context, conn *websocket.Conn) (proto.Message, error) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		msg, err := proto.Decode(data)
		if err != nil {
			log.Printf("skipping malformed frame: %v", err)
			continue
		}
		return msg, nil
	}
}

func waitForKind(ctx context.Context, conn *websocket.Conn, kind proto.Kind) error {
	for {
		msg, err := read(ctx, conn)
		if err != nil {
			return err
		}
		if msg.MessageKind() == kind {
			return nil
		}
	}
}
