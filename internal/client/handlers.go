package client

import (
	"fmt"
	"strings"

	"github.com/itray25/neogen/internal/game"
	"github.com/itray25/neogen/internal/proto"
	"github.com/itray25/neogen/internal/state"
)

// dispatch routes one decoded message to its handler. Every message is first
// republished raw so message-level subscribers see discrete events even when
// no stored field changes. The switch is exhaustive over proto's variants;
// adding a wire kind without a case here is a compile-visible gap in proto,
// not a silent drop.
func (e *Engine) dispatch(msg proto.Message) {
	e.store.Publish(msg)

	switch m := msg.(type) {
	case proto.Connected:
		e.handleConnected(m)
	case proto.Chat:
		e.handleChat(m)
	case proto.JoinRoom:
		e.handleJoinRoom(m)
	case proto.LeaveRoom:
		e.handleLeaveRoom(m)
	case proto.ChangeName:
		e.handleChangeName(m)
	case proto.RoomInfo:
		e.handleRoomInfo(m)
	case proto.MapUpdate:
		e.handleMapUpdate(m)
	case proto.TurnUpdate:
		e.handleTurnUpdate(m)
	case proto.StartGame:
		e.handleStartGame(m)
	case proto.EndGame:
		e.handleEndGame(m)
	case proto.GameWin:
		e.handleGameWin(m)
	case proto.OK:
		e.log.Debug().Msg("server ack")
	case proto.ErrorMessage:
		e.handleError(m)
	case proto.Redirect:
		e.handleRedirect(m)
	case proto.Unknown:
		e.handleUnknown(m)
	}
}

func (e *Engine) handleConnected(proto.Connected) {
	e.setStatus(state.Authenticated)
	e.store.Apply(func(s *state.State) {
		if s.CurrentRoomID == "" {
			s.CurrentRoomID = state.GlobalChannel
		}
	})
	e.router.SystemNotice("authenticated, joined the global channel")
}

func (e *Engine) handleChat(m proto.Chat) {
	author := m.Username
	if author == "" {
		author = fmt.Sprintf("player-%d", m.SenderID)
	}
	e.router.Route(state.ChatEntry{
		Channel: m.Room.String(),
		Author:  author,
		Body:    m.Content,
	})
}

func (e *Engine) handleJoinRoom(m proto.JoinRoom) {
	e.router.SystemNotice(fmt.Sprintf("%s joined room %s", m.PlayerName, m.Room))

	snapshot := e.store.Snapshot()
	self := snapshot.Identity != nil && m.PlayerName == snapshot.Identity.DisplayName
	if !self {
		if snapshot.CurrentRoomID == m.Room.String() {
			e.scheduleRefresh(m.Room)
		}
		return
	}

	roomID := m.Room.String()
	e.store.Apply(func(s *state.State) {
		s.CurrentRoomID = roomID
		s.Room = nil
		seed := make([]state.Group, game.ObserverGroup+1)
		for i := range seed {
			seed[i] = state.Group{ID: i}
		}
		s.Groups[roomID] = seed
		delete(s.OwnGroup, roomID)
		s.Game = state.GameView{}
		s.NeedsPassword = false
	})
	// membership follow-up, exactly once per successful join
	e.send(proto.NewGetRoomInfo(m.Room))
}

func (e *Engine) handleLeaveRoom(m proto.LeaveRoom) {
	e.router.SystemNotice(fmt.Sprintf("%s left room %s", m.PlayerName, m.Room))

	snapshot := e.store.Snapshot()
	self := snapshot.Identity != nil && m.PlayerName == snapshot.Identity.DisplayName
	if self {
		e.queue.Clear()
		e.tiles = nil
		e.store.Apply(func(s *state.State) {
			s.CurrentRoomID = state.GlobalChannel
			s.Room = nil
			s.Map = nil
			s.Game = state.GameView{}
		})
		return
	}
	if snapshot.CurrentRoomID == m.Room.String() {
		e.scheduleRefresh(m.Room)
	}
}

func (e *Engine) handleChangeName(m proto.ChangeName) {
	e.router.SystemNotice(fmt.Sprintf("player %d is now known as %s", m.PlayerID, m.NewName))

	snapshot := e.store.Snapshot()
	if snapshot.CurrentRoomID != "" && snapshot.CurrentRoomID != state.GlobalChannel {
		e.scheduleRefresh(proto.RoomID(snapshot.CurrentRoomID))
	}
}

func (e *Engine) handleRoomInfo(m proto.RoomInfo) {
	roomID := m.Room.String()
	if roomID == "" {
		// the server omits room_id on some snapshots; they concern the room
		// we are in
		roomID = e.store.Snapshot().CurrentRoomID
	}
	if roomID == "" {
		return
	}

	players := dedupe(m.Players)
	groups := make([]state.Group, len(m.Groups))
	for i, g := range m.Groups {
		groups[i] = state.Group{ID: g.ID, Members: append([]string(nil), g.Players...)}
	}

	e.store.Apply(func(s *state.State) {
		s.Room = &state.RoomMembership{
			RoomID:          roomID,
			Name:            m.Name,
			Players:         players,
			RequiredToStart: m.RequiredToStart,
			ReadyCount:      m.ReadyCount,
			Status:          m.Status,
			HostName:        m.HostName,
			AdminName:       m.AdminName,
		}
		if len(groups) > 0 {
			s.Groups[roomID] = groups
			if s.Identity != nil {
				if id, ok := state.DeriveOwnGroup(groups, s.Identity.DisplayName); ok {
					s.OwnGroup[roomID] = id
				}
			}
		}
		if m.Status == "playing" {
			s.Game.Started = true
			s.Game.Ended = false
		}
	})
}

func (e *Engine) handleMapUpdate(m proto.MapUpdate) {
	snapshot := e.store.Snapshot()
	if room := m.Room.String(); room != "" && room != snapshot.CurrentRoomID {
		e.log.Debug().Str("room", room).Msg("map update for another room ignored")
		return
	}

	tiles := game.FromWire(m.Tiles)
	e.tiles = tiles

	if n := e.queue.Confirm(m.ConfirmedMoves); n > 0 {
		e.log.Debug().Int("confirmed", n).Msg("server confirmed moves")
	}

	// the snapshot may have broken the head track (combat, lost territory);
	// re-check it now rather than waiting for the next drain tick
	owner := game.OwnerToken(snapshot.OwnGroupID(snapshot.CurrentRoomID))
	if mv, ok := e.queue.Head(); ok {
		if err := game.CanMove(tiles, owner, mv.FromX, mv.FromY, mv.ToX, mv.ToY); err != nil {
			e.dropHeadTrack(err)
		}
	}

	e.store.Apply(func(s *state.State) {
		s.Map = tiles
		s.Game.Started = true
		s.Game.Ended = false
	})
}

func (e *Engine) handleTurnUpdate(m proto.TurnUpdate) {
	if room := m.Room.String(); room != "" && room != e.store.Snapshot().CurrentRoomID {
		return
	}
	e.store.Apply(func(s *state.State) {
		s.Game.Started = true
		s.Game.Turn = m.Turn
		s.Game.TurnHalf = m.TurnHalf
		s.Game.Actions = m.Actions
	})
}

func (e *Engine) handleStartGame(m proto.StartGame) {
	if room := m.Room.String(); room != "" && room != e.store.Snapshot().CurrentRoomID {
		return
	}
	e.store.Apply(func(s *state.State) {
		s.Game = state.GameView{Started: true, TurnHalf: true}
	})
	e.router.SystemNotice("game started")
}

func (e *Engine) handleEndGame(m proto.EndGame) {
	if room := m.Room.String(); room != "" && room != e.store.Snapshot().CurrentRoomID {
		return
	}
	e.queue.Clear()
	e.store.Apply(func(s *state.State) {
		s.Game.Ended = true
	})
	e.router.SystemNotice("game over")
}

func (e *Engine) handleGameWin(m proto.GameWin) {
	if room := m.Room.String(); room != "" && room != e.store.Snapshot().CurrentRoomID {
		return
	}
	e.queue.Clear()
	e.store.Apply(func(s *state.State) {
		s.Game.Ended = true
		s.Game.Winner = m.Winner
	})
	e.router.SystemNotice(fmt.Sprintf("%s wins the game", m.Winner))
}

func (e *Engine) handleError(m proto.ErrorMessage) {
	e.log.Warn().Str("message", m.Text).Str("code", ErrCodeProtocol).Msg("server error")
	if strings.Contains(strings.ToLower(m.Text), "password") {
		// the UI is required to re-prompt rather than just notify
		e.store.Apply(func(s *state.State) { s.NeedsPassword = true })
	}
	e.router.SystemNotice("server error: " + m.Text)
}

func (e *Engine) handleRedirect(m proto.Redirect) {
	reason := m.Reason
	if reason == "" {
		reason = "server requested it"
	}
	e.queue.Clear()
	e.tiles = nil
	e.store.Apply(func(s *state.State) {
		s.CurrentRoomID = state.GlobalChannel
		s.Room = nil
		s.Map = nil
		s.Game = state.GameView{}
	})
	e.router.SystemNotice("returned to the lobby: " + reason)
}

// handleUnknown keeps unrecognized message kinds visible instead of losing
// them: the raw frame lands in the global log.
func (e *Engine) handleUnknown(m proto.Unknown) {
	e.log.Debug().Str("type", m.Type).Msg("unrecognized message kind")
	e.router.Route(state.ChatEntry{
		Channel: state.GlobalChannel,
		Author:  "server",
		Body:    string(m.Raw),
		System:  true,
	})
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
