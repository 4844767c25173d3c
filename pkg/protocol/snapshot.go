package protocol

// Phase is the lifecycle tag of a session. Ended is terminal.
type Phase string

const (
	PhaseLobby  Phase = "lobby"
	PhaseActive Phase = "active"
	PhaseEnded  Phase = "ended"
)

// Reason names why an action was refused.
type Reason string

const (
	ReasonTurnTransition Reason = "turn_transition"
	ReasonTeamNotFound   Reason = "team_not_found"
	ReasonNoCaptain      Reason = "no_captain"
	ReasonNotCaptain     Reason = "not_captain"
	ReasonWrongTurn      Reason = "wrong_turn"
	ReasonGameNotActive  Reason = "game_not_active"
)

// Snapshot is a full copy of one session, pushed whole on every change.
type Snapshot struct {
	Version           uint64            `json:"version"`
	Code              string            `json:"code"`
	Phase             Phase             `json:"phase"`
	Round             int               `json:"round"`
	CurrentTurnTeamID string            `json:"currentTurnTeamId,omitempty"`
	Teams             []Team            `json:"teams"`
	Players           map[string]Player `json:"players"`
	Winner            *Team             `json:"winner,omitempty"`
	EndReason         string            `json:"endReason,omitempty"`
	IsTransitioning   bool              `json:"isTransitioning"`
}

type Team struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Score            int      `json:"score"`
	Members          []string `json:"members"`
	CurrentCaptainID string   `json:"currentCaptainId,omitempty"`
}

type Player struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	TeamID   string `json:"teamId"`
}

// Team returns the team with id, if present.
func (s *Snapshot) Team(id string) (Team, bool) {
	for _, t := range s.Teams {
		if t.ID == id {
			return t, true
		}
	}
	return Team{}, false
}
