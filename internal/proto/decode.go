package proto

import (
	"encoding/json"
	"fmt"
)

// DecodeError reports a malformed inbound frame. Frames that fail to decode
// are dropped by the caller; they never stop the read loop.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode: %s", e.Reason)
}

// envelope is the flat superset of all inbound field sets. Fields beyond
// "type" are additive per variant.
type envelope struct {
	Type                string            `json:"type"`
	RoomID              RoomID            `json:"room_id"`
	SenderID            int               `json:"sender_id"`
	PlayerID            int               `json:"player_id"`
	PlayerName          string            `json:"player_name"`
	Username            string            `json:"username"`
	NewName             string            `json:"new_name"`
	Content             string            `json:"content"`
	Message             string            `json:"message"`
	Reason              string            `json:"reason"`
	Name                string            `json:"name"`
	Players             playerList        `json:"players"`
	Groups              []Group           `json:"groups"`
	ForceStartPlayers   []json.RawMessage `json:"force_start_players"`
	RequiredToStart     int               `json:"required_to_start"`
	Status              string            `json:"status"`
	HostPlayerName      string            `json:"host_player_name"`
	AdminPlayerName     string            `json:"admin_player_name"`
	VisibleTiles        []Tile            `json:"visible_tiles"`
	SuccessfulMoveSends []int64           `json:"successful_move_sends"`
	Turn                int               `json:"turn"`
	TurnHalf            *bool             `json:"turn_half"`
	Actions             [][]string        `json:"actions"`
	Winner              string            `json:"winner"`
}

// Decode parses a wire frame into its tagged variant. Unrecognized type tags
// yield Unknown rather than an error so new server message kinds degrade
// gracefully.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		if de, ok := err.(*DecodeError); ok {
			return nil, de
		}
		return nil, &DecodeError{Reason: err.Error()}
	}
	if env.Type == "" {
		return nil, &DecodeError{Reason: "missing type discriminator"}
	}

	switch env.Type {
	case TypeConnected:
		return Connected{}, nil
	case TypeChat, TypeChatLegacy:
		return Chat{
			Room:     env.RoomID,
			Content:  env.Content,
			Username: env.Username,
			SenderID: env.SenderID,
		}, nil
	case TypeJoinRoom:
		return JoinRoom{
			Room:       env.RoomID,
			PlayerID:   env.PlayerID,
			PlayerName: env.PlayerName,
		}, nil
	case TypeLeaveRoom:
		return LeaveRoom{
			Room:       env.RoomID,
			PlayerID:   env.PlayerID,
			PlayerName: env.PlayerName,
		}, nil
	case TypeChangeName:
		return ChangeName{
			Room:     env.RoomID,
			PlayerID: env.PlayerID,
			NewName:  env.NewName,
		}, nil
	case TypeRoomInfo:
		return RoomInfo{
			Room:            env.RoomID,
			Name:            env.Name,
			Players:         []string(env.Players),
			Groups:          env.Groups,
			RequiredToStart: env.RequiredToStart,
			ReadyCount:      len(env.ForceStartPlayers),
			Status:          env.Status,
			HostName:        env.HostPlayerName,
			AdminName:       env.AdminPlayerName,
		}, nil
	case TypeMapUpdate:
		return MapUpdate{
			Room:           env.RoomID,
			Tiles:          env.VisibleTiles,
			ConfirmedMoves: env.SuccessfulMoveSends,
		}, nil
	case TypeTurnUpdate:
		half := true
		if env.TurnHalf != nil {
			half = *env.TurnHalf
		}
		return TurnUpdate{
			Room:     env.RoomID,
			Turn:     env.Turn,
			TurnHalf: half,
			Actions:  env.Actions,
		}, nil
	case TypeStartGame:
		return StartGame{Room: env.RoomID}, nil
	case TypeEndGame:
		return EndGame{Room: env.RoomID}, nil
	case TypeGameWin:
		return GameWin{Room: env.RoomID, Winner: env.Winner}, nil
	case TypeOK:
		return OK{}, nil
	case TypeError:
		return ErrorMessage{Text: env.Message}, nil
	case TypeRedirect:
		return Redirect{Reason: env.Reason}, nil
	default:
		return Unknown{Type: env.Type, Raw: append([]byte(nil), data...)}, nil
	}
}
