package game

import (
	"errors"
	"fmt"
	"slices"

	"github.com/DoyleJ11/captains-backend/pkg/protocol"
)

var ErrTeamNotFound = errors.New("team not found")
var ErrPlayerNotFound = errors.New("player not found")
var ErrDuplicatePlayer = errors.New("player already exists")
var ErrNotMember = errors.New("player is not a member of the team")
var ErrNoTeams = errors.New("no teams")
var ErrAlreadyStarted = errors.New("game already started")
var ErrGameEnded = errors.New("game already ended")

const (
	EndReasonNoTeams     = "no_teams"
	EndReasonHost        = "host_ended"
	EndReasonTargetScore = "target_score"
)

type Team struct {
	ID               string
	Name             string
	Score            int
	Members          []string // player ids, join order
	CurrentCaptainID string
}

type Player struct {
	ID       string
	Nickname string
	TeamID   string
}

// State is the authoritative record of one game. It has no locking; the
// session goroutine that owns it serializes all access.
type State struct {
	Code              string
	Phase             protocol.Phase
	Round             int
	CurrentTurnTeamID string
	Teams             []*Team // turn cycle order
	Players           map[string]*Player
	WinnerID          string
	EndReason         string

	teamSeq int
}

func NewState(code string, teamNames []string) *State {
	s := &State{
		Code:    code,
		Phase:   protocol.PhaseLobby,
		Round:   1,
		Players: map[string]*Player{},
	}
	for _, name := range teamNames {
		s.AddTeam(name)
	}
	return s
}

// AddTeam appends a team. Ids follow creation order ("team1", "team2", ...)
// and are never reused, so a turn left on a removed team cannot land on a
// newcomer.
func (s *State) AddTeam(name string) *Team {
	s.teamSeq++
	t := &Team{ID: fmt.Sprintf("team%d", s.teamSeq), Name: name, Members: []string{}}
	s.Teams = append(s.Teams, t)
	return t
}

func (s *State) Team(id string) *Team {
	if i := s.TeamIndex(id); i >= 0 {
		return s.Teams[i]
	}
	return nil
}

// TeamIndex returns the position of id in the turn order, or -1.
func (s *State) TeamIndex(id string) int {
	return slices.IndexFunc(s.Teams, func(t *Team) bool { return t.ID == id })
}

// Captain resolves the team's current captain, nil when unset.
func (s *State) Captain(t *Team) *Player {
	if t == nil || t.CurrentCaptainID == "" {
		return nil
	}
	return s.Players[t.CurrentCaptainID]
}

// AddPlayer puts a new player on a team. The first member becomes captain.
func (s *State) AddPlayer(id, nickname, teamID string) (*Player, error) {
	if s.Phase == protocol.PhaseEnded {
		return nil, ErrGameEnded
	}
	if _, ok := s.Players[id]; ok {
		return nil, ErrDuplicatePlayer
	}
	t := s.Team(teamID)
	if t == nil {
		return nil, ErrTeamNotFound
	}
	p := &Player{ID: id, Nickname: nickname, TeamID: teamID}
	s.Players[id] = p
	t.Members = append(t.Members, id)
	if t.CurrentCaptainID == "" {
		t.CurrentCaptainID = id
	}
	return p, nil
}

// RemovePlayer drops a player. A departing captain hands over to the next
// member in join order.
func (s *State) RemovePlayer(id string) error {
	p, ok := s.Players[id]
	if !ok {
		return ErrPlayerNotFound
	}
	delete(s.Players, id)

	t := s.Team(p.TeamID)
	if t == nil {
		return nil
	}
	t.Members = slices.DeleteFunc(t.Members, func(m string) bool { return m == id })
	if t.CurrentCaptainID == id {
		t.CurrentCaptainID = ""
		if len(t.Members) > 0 {
			t.CurrentCaptainID = t.Members[0]
		}
	}
	return nil
}

func (s *State) SetCaptain(teamID, playerID string) error {
	t := s.Team(teamID)
	if t == nil {
		return ErrTeamNotFound
	}
	if !slices.Contains(t.Members, playerID) {
		return ErrNotMember
	}
	t.CurrentCaptainID = playerID
	return nil
}

// RemoveTeam deletes a team and its players. CurrentTurnTeamID is left as
// is; the next turn advance recovers from the missing team.
func (s *State) RemoveTeam(id string) error {
	i := s.TeamIndex(id)
	if i < 0 {
		return ErrTeamNotFound
	}
	for _, m := range s.Teams[i].Members {
		delete(s.Players, m)
	}
	s.Teams = slices.Delete(s.Teams, i, i+1)
	return nil
}

// Start moves a lobby into play: round 1, first team's turn.
func (s *State) Start() error {
	switch s.Phase {
	case protocol.PhaseEnded:
		return ErrGameEnded
	case protocol.PhaseActive:
		return ErrAlreadyStarted
	}
	if len(s.Teams) == 0 {
		return ErrNoTeams
	}
	s.Phase = protocol.PhaseActive
	s.Round = 1
	s.CurrentTurnTeamID = s.Teams[0].ID
	return nil
}

// AddScore adds points to a team and returns the new score. Scores never
// drop below zero.
func (s *State) AddScore(teamID string, points int) (int, error) {
	if s.Phase == protocol.PhaseEnded {
		return 0, ErrGameEnded
	}
	t := s.Team(teamID)
	if t == nil {
		return 0, ErrTeamNotFound
	}
	t.Score = max(0, t.Score+points)
	return t.Score, nil
}

// End marks the game over and records the winner.
func (s *State) End(reason string) {
	s.Phase = protocol.PhaseEnded
	s.EndReason = reason
	s.WinnerID = ""
	if w := Winner(s.Teams); w != nil {
		s.WinnerID = w.ID
	}
}
