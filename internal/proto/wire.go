package proto

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// GlobalRoom is the sentinel channel that every connected client belongs to.
const GlobalRoom RoomID = "global"

// RoomID is a room identifier. The server emits it as a JSON number for
// numbered rooms and as a string for named ones ("global"); both forms decode
// to the string representation. Marshalling restores the numeric form when the
// value is purely numeric.
type RoomID string

func (r *RoomID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return &DecodeError{Reason: "empty room_id"}
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = RoomID(s)
		return nil
	}
	if string(data) == "null" {
		*r = ""
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return &DecodeError{Reason: fmt.Sprintf("room_id: %v", err)}
	}
	*r = RoomID(strconv.FormatInt(n, 10))
	return nil
}

func (r RoomID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(r), 10, 64); err == nil {
		return json.Marshal(n)
	}
	return json.Marshal(string(r))
}

func (r RoomID) String() string { return string(r) }

// playerList accepts both wire forms of a room's player roster:
// ["alice", "bob"] and the legacy [[3, "alice"], [7, "bob"]].
type playerList []string

func (p *playerList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return &DecodeError{Reason: fmt.Sprintf("players: %v", err)}
	}
	names := make([]string, 0, len(raw))
	for _, item := range raw {
		if len(item) > 0 && item[0] == '[' {
			var pair []json.RawMessage
			if err := json.Unmarshal(item, &pair); err != nil || len(pair) < 2 {
				return &DecodeError{Reason: "players: malformed [id, name] pair"}
			}
			var name string
			if err := json.Unmarshal(pair[1], &name); err != nil {
				return &DecodeError{Reason: "players: pair name is not a string"}
			}
			names = append(names, name)
			continue
		}
		var name string
		if err := json.Unmarshal(item, &name); err != nil {
			return &DecodeError{Reason: "players: entry is neither string nor pair"}
		}
		names = append(names, name)
	}
	*p = names
	return nil
}

// Tile is one visible-map entry. On the wire it is a positional tuple:
// [x, y, kind, count, owner?, has_vision?], where kind is a terrain token
// ("w", "t", "m", "g", "v") or "c_<cityKind>" and owner is a group token such
// as "team_0" or null for neutral tiles.
type Tile struct {
	X         int
	Y         int
	Kind      string
	Count     int
	Owner     string
	HasVision bool
}

func (t *Tile) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return &DecodeError{Reason: fmt.Sprintf("tile: %v", err)}
	}
	if len(parts) < 4 {
		return &DecodeError{Reason: fmt.Sprintf("tile: tuple has %d elements, want at least 4", len(parts))}
	}
	if err := json.Unmarshal(parts[0], &t.X); err != nil {
		return &DecodeError{Reason: "tile: x is not a number"}
	}
	if err := json.Unmarshal(parts[1], &t.Y); err != nil {
		return &DecodeError{Reason: "tile: y is not a number"}
	}
	if err := json.Unmarshal(parts[2], &t.Kind); err != nil {
		return &DecodeError{Reason: "tile: kind is not a string"}
	}
	if err := json.Unmarshal(parts[3], &t.Count); err != nil {
		return &DecodeError{Reason: "tile: count is not a number"}
	}
	t.Owner = ""
	if len(parts) > 4 && string(parts[4]) != "null" {
		if err := json.Unmarshal(parts[4], &t.Owner); err != nil {
			return &DecodeError{Reason: "tile: owner is not a string"}
		}
	}
	// vision defaults to true when the server omits the flag
	t.HasVision = true
	if len(parts) > 5 && string(parts[5]) != "null" {
		if err := json.Unmarshal(parts[5], &t.HasVision); err != nil {
			return &DecodeError{Reason: "tile: vision flag is not a bool"}
		}
	}
	return nil
}
