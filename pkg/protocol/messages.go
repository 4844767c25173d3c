package protocol

// Client -> Server
// join:
//   nickname: string
//   teamId: string
//   playerId: string // optional, rebinds an existing player after a reconnect
//
// leave:
//   playerId: string
//
// request_action (dice roll, consumes the turn):
//   teamId: string
//   playerId: string
//
// request_advance (end turn):
//   teamId: string
//   playerId: string
//
// request_skip:
//   token: string
//
// host_control:
//   action: "start" | "skip" | "end" | "remove_team" | "set_captain" | "award"
//   token: string
//   teamId, playerId, points: per action

// Server -> Client
// state_snapshot:     Snapshot, seq == snapshot.version
// transition_start:   message
// turn_committed:     nextTeamId, captainId, captainName, round
// game_ended:         reason, winner
// action_result:      teamId, playerId, roll, score
// action_rejected:    valid=false, reason, message (requester only, seq 0)
// joined:             playerId, teamId (requester only, seq 0)
// error:              error (requester only, seq 0)

type MessageType string

const (
	TypeJoin           MessageType = "join"
	TypeLeave          MessageType = "leave"
	TypeRequestAction  MessageType = "request_action"
	TypeRequestAdvance MessageType = "request_advance"
	TypeRequestSkip    MessageType = "request_skip"
	TypeHostControl    MessageType = "host_control"

	TypeStateSnapshot   MessageType = "state_snapshot"
	TypeTransitionStart MessageType = "transition_start"
	TypeTurnCommitted   MessageType = "turn_committed"
	TypeGameEnded       MessageType = "game_ended"
	TypeActionResult    MessageType = "action_result"
	TypeActionRejected  MessageType = "action_rejected"
	TypeJoined          MessageType = "joined"
	TypeError           MessageType = "error"
)

type HostAction string

const (
	HostStart      HostAction = "start"
	HostSkip       HostAction = "skip"
	HostEnd        HostAction = "end"
	HostRemoveTeam HostAction = "remove_team"
	HostSetCaptain HostAction = "set_captain"
	HostAward      HostAction = "award"
)

type ClientMessage struct {
	Type     MessageType `json:"type"`
	TeamID   string      `json:"teamId,omitempty"`
	PlayerID string      `json:"playerId,omitempty"`
	Nickname string      `json:"nickname,omitempty"`
	Action   HostAction  `json:"action,omitempty"`
	Token    string      `json:"token,omitempty"`
	Points   int         `json:"points,omitempty"`
}

type ServerMessage struct {
	Type            MessageType      `json:"type"`
	Seq             uint64           `json:"seq,omitempty"`
	Snapshot        *Snapshot        `json:"snapshot,omitempty"`
	TransitionStart *TransitionStart `json:"transitionStart,omitempty"`
	TurnCommitted   *TurnCommitted   `json:"turnCommitted,omitempty"`
	GameEnded       *GameEnded       `json:"gameEnded,omitempty"`
	ActionResult    *ActionResult    `json:"actionResult,omitempty"`
	Rejection       *Rejection       `json:"rejection,omitempty"`
	Joined          *Joined          `json:"joined,omitempty"`
	Error           string           `json:"error,omitempty"`
}

type TransitionStart struct {
	Message string `json:"message"`
}

type TurnCommitted struct {
	NextTeamID  string `json:"nextTeamId"`
	CaptainID   string `json:"captainId,omitempty"`
	CaptainName string `json:"captainName,omitempty"`
	Round       int    `json:"round"`
}

type GameEnded struct {
	Reason string `json:"reason"`
	Winner *Team  `json:"winner"`
}

type ActionResult struct {
	TeamID   string `json:"teamId"`
	PlayerID string `json:"playerId"`
	Roll     int    `json:"roll"`
	Score    int    `json:"score"`
}

// Rejection is the validation failure shape sent back to the requester.
type Rejection struct {
	Valid   bool   `json:"valid"`
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

type Joined struct {
	PlayerID string `json:"playerId"`
	TeamID   string `json:"teamId"`
}
