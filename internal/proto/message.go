package proto

// Wire type discriminators. Every frame carries exactly one of these in its
// required "type" field.
const (
	TypeConnected   = "connected"
	TypeChat        = "chat"
	TypeChatLegacy  = "chat_message"
	TypeJoinRoom    = "join_room"
	TypeLeaveRoom   = "leave_room"
	TypeChangeName  = "change_name"
	TypeChangeGroup = "change_group"
	TypeGetRoomInfo = "get_room_info"
	TypeRoomInfo    = "room_info"
	TypeMapUpdate   = "map_update"
	TypeTurnUpdate  = "game_turn_update"
	TypeStartGame   = "start_game"
	TypeEndGame     = "end_game"
	TypeGameWin     = "game_win"
	TypeOK          = "ok"
	TypeError       = "error"
	TypeRedirect    = "redirect_to_home"
	TypeMove        = "move"
	TypeReady       = "force_start"
	TypeUnready     = "deforce_start"
)

// Kind identifies a decoded inbound message variant.
type Kind int

const (
	KindUnknown Kind = iota
	KindConnected
	KindChat
	KindJoinRoom
	KindLeaveRoom
	KindChangeName
	KindRoomInfo
	KindMapUpdate
	KindTurnUpdate
	KindStartGame
	KindEndGame
	KindGameWin
	KindOK
	KindError
	KindRedirect
)

// Message is a decoded inbound wire message. The concrete type is one of the
// structs below; dispatchers switch over them exhaustively so that a new
// variant shows up as a missing case, not a silent fallthrough.
type Message interface {
	MessageKind() Kind
}

// Connected is the server's authentication acknowledgment.
type Connected struct{}

// Chat is a chat line addressed to a room or the global channel.
type Chat struct {
	Room     RoomID
	Content  string
	Username string
	SenderID int
}

// JoinRoom acknowledges that a player (possibly us) entered a room.
type JoinRoom struct {
	Room       RoomID
	PlayerID   int
	PlayerName string
}

// LeaveRoom acknowledges that a player left a room.
type LeaveRoom struct {
	Room       RoomID
	PlayerID   int
	PlayerName string
}

// ChangeName announces a player rename.
type ChangeName struct {
	Room     RoomID
	PlayerID int
	NewName  string
}

// Group is a team/observer partition within a room.
type Group struct {
	ID      int      `json:"id"`
	Players []string `json:"players"`
}

// RoomInfo is the authoritative room snapshot. It always replaces whatever the
// client previously believed about the room.
type RoomInfo struct {
	Room            RoomID
	Name            string
	Players         []string
	Groups          []Group
	RequiredToStart int
	ReadyCount      int
	Status          string
	HostName        string
	AdminName       string
}

// MapUpdate is the authoritative visible-map snapshot, optionally confirming
// moves the server applied since the last one.
type MapUpdate struct {
	Room           RoomID
	Tiles          []Tile
	ConfirmedMoves []int64
}

// TurnUpdate carries the turn counter and the per-turn action log.
type TurnUpdate struct {
	Room     RoomID
	Turn     int
	TurnHalf bool
	Actions  [][]string
}

// StartGame signals that the room's game began.
type StartGame struct {
	Room RoomID
}

// EndGame signals that the room's game is over.
type EndGame struct {
	Room RoomID
}

// GameWin announces the winner of the room's game.
type GameWin struct {
	Room   RoomID
	Winner string
}

// OK is a generic positive acknowledgment.
type OK struct{}

// ErrorMessage is a server-reported protocol error.
type ErrorMessage struct {
	Text string
}

// Redirect tells the client to return to the home view.
type Redirect struct {
	Reason string
}

// Unknown preserves frames whose type tag the codec does not recognize.
type Unknown struct {
	Type string
	Raw  []byte
}

func (Connected) MessageKind() Kind    { return KindConnected }
func (Chat) MessageKind() Kind         { return KindChat }
func (JoinRoom) MessageKind() Kind     { return KindJoinRoom }
func (LeaveRoom) MessageKind() Kind    { return KindLeaveRoom }
func (ChangeName) MessageKind() Kind   { return KindChangeName }
func (RoomInfo) MessageKind() Kind     { return KindRoomInfo }
func (MapUpdate) MessageKind() Kind    { return KindMapUpdate }
func (TurnUpdate) MessageKind() Kind   { return KindTurnUpdate }
func (StartGame) MessageKind() Kind    { return KindStartGame }
func (EndGame) MessageKind() Kind      { return KindEndGame }
func (GameWin) MessageKind() Kind      { return KindGameWin }
func (OK) MessageKind() Kind           { return KindOK }
func (ErrorMessage) MessageKind() Kind { return KindError }
func (Redirect) MessageKind() Kind     { return KindRedirect }
func (Unknown) MessageKind() Kind      { return KindUnknown }
