package proto

// Outbound message bodies. Each struct carries its own pre-filled type tag so
// the transport can hand any of them straight to the JSON encoder.

// ChatSend posts a chat line to a room or the global channel.
type ChatSend struct {
	Type    string `json:"type"`
	Room    RoomID `json:"room_id"`
	Content string `json:"content"`
}

// JoinRoomSend asks to enter a room, optionally with its password.
type JoinRoomSend struct {
	Type       string `json:"type"`
	Room       RoomID `json:"room_id"`
	PlayerName string `json:"player_name"`
	Password   string `json:"password,omitempty"`
}

// LeaveRoomSend asks to leave a room.
type LeaveRoomSend struct {
	Type string `json:"type"`
	Room RoomID `json:"room_id"`
}

// ChangeNameSend requests a display-name change.
type ChangeNameSend struct {
	Type    string `json:"type"`
	NewName string `json:"new_name"`
}

// ChangeGroupSend requests assignment to a group within a room.
type ChangeGroupSend struct {
	Type          string `json:"type"`
	Room          RoomID `json:"room_id"`
	TargetGroupID int    `json:"target_group_id"`
}

// GetRoomInfoSend requests a fresh authoritative room snapshot.
type GetRoomInfoSend struct {
	Type string `json:"type"`
	Room RoomID `json:"room_id"`
}

// MoveSend transmits one movement intent with its correlation id.
type MoveSend struct {
	Type   string `json:"type"`
	Room   RoomID `json:"room_id"`
	FromX  int    `json:"from_x"`
	FromY  int    `json:"from_y"`
	ToX    int    `json:"to_x"`
	ToY    int    `json:"to_y"`
	MoveID int64  `json:"move_id"`
}

// ReadySend toggles the force-start vote for a room.
type ReadySend struct {
	Type string `json:"type"`
	Room RoomID `json:"room_id"`
}

func NewChat(room RoomID, content string) ChatSend {
	return ChatSend{Type: TypeChat, Room: room, Content: content}
}

func NewJoinRoom(room RoomID, playerName, password string) JoinRoomSend {
	return JoinRoomSend{Type: TypeJoinRoom, Room: room, PlayerName: playerName, Password: password}
}

func NewLeaveRoom(room RoomID) LeaveRoomSend {
	return LeaveRoomSend{Type: TypeLeaveRoom, Room: room}
}

func NewChangeName(newName string) ChangeNameSend {
	return ChangeNameSend{Type: TypeChangeName, NewName: newName}
}

func NewChangeGroup(room RoomID, targetGroupID int) ChangeGroupSend {
	return ChangeGroupSend{Type: TypeChangeGroup, Room: room, TargetGroupID: targetGroupID}
}

func NewGetRoomInfo(room RoomID) GetRoomInfoSend {
	return GetRoomInfoSend{Type: TypeGetRoomInfo, Room: room}
}

func NewMove(room RoomID, fromX, fromY, toX, toY int, moveID int64) MoveSend {
	return MoveSend{Type: TypeMove, Room: room, FromX: fromX, FromY: fromY, ToX: toX, ToY: toY, MoveID: moveID}
}

func NewReady(room RoomID, ready bool) ReadySend {
	if ready {
		return ReadySend{Type: TypeReady, Room: room}
	}
	return ReadySend{Type: TypeUnready, Room: room}
}
