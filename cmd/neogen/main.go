package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/itray25/neogen/internal/client"
	"github.com/itray25/neogen/internal/config"
	"github.com/itray25/neogen/internal/log"
	"github.com/itray25/neogen/internal/proto"
	"github.com/itray25/neogen/internal/session"
	"github.com/itray25/neogen/internal/state"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "neogen: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", "", "path to config file")
		serverURL  = flag.String("server", "", "realtime endpoint override")
		apiURL     = flag.String("api", "", "account API override")
		logLevel   = flag.String("log-level", "", "log level override")
		userID     = flag.String("user", "", "existing account id")
		name       = flag.String("name", "", "display name for guest or registration")
		register   = flag.Bool("register", false, "register a new account under -name")
	)
	flag.Parse()

	logger := log.New(firstNonEmpty(*logLevel, "info"))

	cfg, path, err := config.Load(logger, *configPath)
	if err != nil {
		return err
	}
	cfg.UpdateFrom(config.Config{ServerURL: *serverURL, APIBaseURL: *apiURL, LogLevel: *logLevel})
	logger = log.New(cfg.LogLevel)
	logger.Debug().Str("config", path).Str("server", cfg.ServerURL).Msg("configured")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	identity, err := resolveIdentity(ctx, cfg, logger, *userID, *name, *register)
	if err != nil {
		return err
	}

	store := state.NewStore()
	engine := client.New(cfg, store, logger)
	engine.SetIdentity(identity)

	loopCtx, cancelLoop := context.WithCancel(context.Background())
	defer cancelLoop()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		engine.Run(loopCtx)
	}()

	unsubscribe := engine.Subscribe(newPrinter())
	defer unsubscribe()

	if err := engine.Connect(ctx); err != nil {
		cancelLoop()
		<-loopDone
		return err
	}

	fmt.Printf("connected as %s; type /help for commands\n", identity.DisplayName)
	repl(ctx, engine)

	engine.Disconnect()
	cancelLoop()
	<-loopDone
	return nil
}

// resolveIdentity picks the account for this session: an existing one looked
// up by -user, a freshly registered one with -register, or a local guest.
func resolveIdentity(ctx context.Context, cfg config.Config, logger *zerolog.Logger, userID, name string, register bool) (state.Identity, error) {
	api := session.NewClient(cfg.APIBaseURL, logger)
	switch {
	case userID != "":
		identity, err := api.Lookup(ctx, userID)
		if errors.Is(err, session.ErrUnknownUser) {
			return state.Identity{}, fmt.Errorf("no account with id %s", userID)
		}
		return identity, err
	case register:
		if name == "" {
			return state.Identity{}, errors.New("-register requires -name")
		}
		return api.Register(ctx, name)
	default:
		return session.Guest(name), nil
	}
}

// newPrinter prints chat entries as they land in any channel, remembering how
// far each channel has been printed.
func newPrinter() func(state.State) {
	printed := make(map[string]int)
	return func(s state.State) {
		for _, channel := range orderedChannels(s.Channels) {
			entries := s.Channels[channel]
			for _, entry := range entries[printed[channel]:] {
				if entry.System {
					fmt.Printf("** %s\n", entry.Body)
					continue
				}
				fmt.Printf("[%s] %s: %s\n", entry.Channel, entry.Author, entry.Body)
			}
			printed[channel] = len(entries)
		}
	}
}

func orderedChannels(channels map[string][]state.ChatEntry) []string {
	out := make([]string, 0, len(channels))
	if _, ok := channels[state.GlobalChannel]; ok {
		out = append(out, state.GlobalChannel)
	}
	for id := range channels {
		if id != state.GlobalChannel {
			out = append(out, id)
		}
	}
	return out
}

func repl(ctx context.Context, engine *client.Engine) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handleLine(engine, strings.TrimSpace(line)); quit {
				return
			}
		}
	}
}

func handleLine(engine *client.Engine, line string) (quit bool) {
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		room := proto.RoomID(engine.State().CurrentRoomID)
		if err := engine.SendChat(room, line); err != nil {
			fmt.Printf("!! %v\n", err)
		}
		return false
	}

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]
	var err error
	switch cmd {
	case "/help":
		fmt.Println("/join <room> [password]  /leave  /name <name>  /group <0-8>")
		fmt.Println("/ready  /unready  /move <fx> <fy> <tx> <ty>  /clear  /info  /quit")
	case "/join":
		if len(args) == 0 {
			err = errors.New("usage: /join <room> [password]")
			break
		}
		password := ""
		if len(args) > 1 {
			password = args[1]
		}
		err = engine.JoinRoom(proto.RoomID(args[0]), password)
	case "/leave":
		err = engine.LeaveRoom()
	case "/name":
		if len(args) == 0 {
			err = errors.New("usage: /name <name>")
			break
		}
		err = engine.ChangeName(strings.Join(args, " "))
	case "/group":
		if len(args) == 0 {
			err = errors.New("usage: /group <0-8>")
			break
		}
		var id int
		if id, err = strconv.Atoi(args[0]); err == nil {
			err = engine.ChangeGroup(id)
		}
	case "/ready":
		err = engine.SetReady(true)
	case "/unready":
		err = engine.SetReady(false)
	case "/move":
		if len(args) != 4 {
			err = errors.New("usage: /move <from_x> <from_y> <to_x> <to_y>")
			break
		}
		coords := make([]int, 4)
		for i, arg := range args {
			if coords[i], err = strconv.Atoi(arg); err != nil {
				break
			}
		}
		if err == nil {
			_, err = engine.QueueMove(coords[0], coords[1], coords[2], coords[3])
		}
	case "/clear":
		engine.ClearMoves()
	case "/info":
		printInfo(engine.State())
	case "/quit":
		return true
	default:
		err = fmt.Errorf("unknown command %s", cmd)
	}
	if err != nil {
		fmt.Printf("!! %v\n", err)
	}
	return false
}

func printInfo(s state.State) {
	fmt.Printf("status: %s  room: %s\n", s.Status, s.CurrentRoomID)
	if s.Room != nil {
		fmt.Printf("room %q (%s): %d players, %d/%d ready, host %s\n",
			s.Room.Name, s.Room.Status, len(s.Room.Players),
			s.Room.ReadyCount, s.Room.RequiredToStart, s.Room.HostName)
	}
	if id := s.OwnGroupID(s.CurrentRoomID); id >= 0 {
		fmt.Printf("group: %d\n", id)
	}
	if s.Game.Started {
		fmt.Printf("game: turn %d, ended=%v winner=%q\n", s.Game.Turn, s.Game.Ended, s.Game.Winner)
	}
	if s.Map != nil {
		fmt.Printf("map: %d visible tiles\n", s.Map.Len())
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
