package game

import (
	"fmt"

	"github.com/DoyleJ11/captains-backend/pkg/protocol"
)

// Verdict is the outcome of Validate. Reason and Message are empty when Valid.
type Verdict struct {
	Valid   bool
	Reason  protocol.Reason
	Message string
}

func (v Verdict) Rejection() *protocol.Rejection {
	return &protocol.Rejection{Valid: v.Valid, Reason: v.Reason, Message: v.Message}
}

func reject(reason protocol.Reason, format string, args ...any) Verdict {
	return Verdict{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Validate reports whether playerID may act for teamID right now. Checks run
// in a fixed order and the first failure wins.
func Validate(s *State, transitioning bool, teamID, playerID string) Verdict {
	if transitioning {
		return reject(protocol.ReasonTurnTransition, "Turn is changing, please wait")
	}

	team := s.Team(teamID)
	if team == nil {
		return reject(protocol.ReasonTeamNotFound, "Team %q not found", teamID)
	}

	if team.CurrentCaptainID == "" {
		return reject(protocol.ReasonNoCaptain, "%s has no captain", team.Name)
	}

	if team.CurrentCaptainID != playerID {
		return reject(protocol.ReasonNotCaptain, "Only the captain of %s can act", team.Name)
	}

	if s.CurrentTurnTeamID != teamID {
		return reject(protocol.ReasonWrongTurn, "It is not %s's turn", team.Name)
	}

	return Verdict{Valid: true}
}
