package game

import "github.com/DoyleJ11/captains-backend/pkg/protocol"

// Snapshot deep-copies the state into its wire form. Callers own the result.
func (s *State) Snapshot(transitioning bool) protocol.Snapshot {
	snap := protocol.Snapshot{
		Code:              s.Code,
		Phase:             s.Phase,
		Round:             s.Round,
		CurrentTurnTeamID: s.CurrentTurnTeamID,
		Teams:             make([]protocol.Team, 0, len(s.Teams)),
		Players:           make(map[string]protocol.Player, len(s.Players)),
		EndReason:         s.EndReason,
		IsTransitioning:   transitioning,
	}
	for _, t := range s.Teams {
		snap.Teams = append(snap.Teams, TeamView(t))
	}
	for id, p := range s.Players {
		snap.Players[id] = protocol.Player{ID: p.ID, Nickname: p.Nickname, TeamID: p.TeamID}
	}
	if s.Phase == protocol.PhaseEnded && s.WinnerID != "" {
		if w := s.Team(s.WinnerID); w != nil {
			v := TeamView(w)
			snap.Winner = &v
		}
	}
	return snap
}

func TeamView(t *Team) protocol.Team {
	members := make([]string, len(t.Members))
	copy(members, t.Members)
	return protocol.Team{
		ID:               t.ID,
		Name:             t.Name,
		Score:            t.Score,
		Members:          members,
		CurrentCaptainID: t.CurrentCaptainID,
	}
}
