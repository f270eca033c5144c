package state

import (
	"time"

	"github.com/itray25/neogen/internal/game"
)

// ConnStatus tracks the connection lifecycle. Only the engine loop writes it.
type ConnStatus int

const (
	Disconnected ConnStatus = iota
	Connecting
	Connected
	Authenticating
	Authenticated
)

func (s ConnStatus) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Identity is the logged-in account. It is set by the session bootstrap before
// a connection attempt and survives transport loss; it is cleared on logout.
type Identity struct {
	UserID      string
	DisplayName string
}

// GlobalChannel is the sentinel channel id for the shared lobby log.
const GlobalChannel = "global"

// ChatEntry is one line in a channel log. Logs are append-only; trimming is
// the display layer's concern.
type ChatEntry struct {
	Channel    string
	Author     string
	Body       string
	System     bool
	ReceivedAt time.Time
}

// Group is a team/observer partition within a room. Id 8 is the observer
// group.
type Group struct {
	ID      int
	Members []string
}

// RoomMembership is the authoritative snapshot of the room the player is in.
// It is replaced wholesale on every room_info, never patched.
type RoomMembership struct {
	RoomID          string
	Name            string
	Players         []string
	RequiredToStart int
	ReadyCount      int
	Status          string
	HostName        string
	AdminName       string
}

// GameView is the lifecycle and turn state of the current room's game.
type GameView struct {
	Started  bool
	Ended    bool
	Turn     int
	TurnHalf bool
	Actions  [][]string
	Winner   string
}

// State is the single client-visible snapshot. Subscribers receive copies;
// mutation happens only through Store.Apply.
type State struct {
	Status        ConnStatus
	Identity      *Identity
	CurrentRoomID string
	Room          *RoomMembership
	Groups        map[string][]Group
	OwnGroup      map[string]int
	Channels      map[string][]ChatEntry
	Map           *game.TileMap
	Game          GameView
	NeedsPassword bool
}

// OwnGroupID returns the player's derived group in a room, or -1 when no
// assignment is known.
func (s State) OwnGroupID(roomID string) int {
	if id, ok := s.OwnGroup[roomID]; ok {
		return id
	}
	return -1
}

// DeriveOwnGroup scans group member lists for the local display name. The
// server never states "you are group N" directly; membership is the only
// source.
func DeriveOwnGroup(groups []Group, displayName string) (int, bool) {
	if displayName == "" {
		return 0, false
	}
	for _, g := range groups {
		for _, member := range g.Members {
			if member == displayName {
				return g.ID, true
			}
		}
	}
	return 0, false
}

// clone copies the snapshot deeply enough that subscribers can hold it without
// observing later mutations. TileMap is immutable and shared by pointer.
func (s State) clone() State {
	out := s
	if s.Identity != nil {
		id := *s.Identity
		out.Identity = &id
	}
	if s.Room != nil {
		room := *s.Room
		room.Players = append([]string(nil), s.Room.Players...)
		out.Room = &room
	}
	if s.Groups != nil {
		out.Groups = make(map[string][]Group, len(s.Groups))
		for roomID, groups := range s.Groups {
			copied := make([]Group, len(groups))
			for i, g := range groups {
				copied[i] = Group{ID: g.ID, Members: append([]string(nil), g.Members...)}
			}
			out.Groups[roomID] = copied
		}
	}
	if s.OwnGroup != nil {
		out.OwnGroup = make(map[string]int, len(s.OwnGroup))
		for roomID, id := range s.OwnGroup {
			out.OwnGroup[roomID] = id
		}
	}
	if s.Channels != nil {
		out.Channels = make(map[string][]ChatEntry, len(s.Channels))
		for ch, entries := range s.Channels {
			out.Channels[ch] = append([]ChatEntry(nil), entries...)
		}
	}
	out.Game.Actions = append([][]string(nil), s.Game.Actions...)
	return out
}
