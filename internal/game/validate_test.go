package game

import (
	"testing"

	"github.com/DoyleJ11/captains-backend/pkg/protocol"
)

// two teams, team1 to play, player1 and player2 captain their teams
func newActiveState(t *testing.T) *State {
	t.Helper()
	s := NewState("ABC123", []string{"Red", "Blue"})
	mustAdd(t, s, "player1", "team1")
	mustAdd(t, s, "player2", "team2")
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	return s
}

func mustAdd(t *testing.T, s *State, id, team string) {
	t.Helper()
	if _, err := s.AddPlayer(id, id+"-nick", team); err != nil {
		t.Fatalf("add %s: %v", id, err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name          string
		setup         func(s *State)
		transitioning bool
		team          string
		player        string
		want          protocol.Reason
		wantValid     bool
	}{
		{
			name:      "captain on their turn",
			team:      "team1",
			player:    "player1",
			wantValid: true,
		},
		{
			name:   "wrong player",
			team:   "team1",
			player: "wrong-player",
			want:   protocol.ReasonNotCaptain,
		},
		{
			name:   "other team's captain out of turn",
			team:   "team2",
			player: "player2",
			want:   protocol.ReasonWrongTurn,
		},
		{
			name:   "unknown team",
			team:   "team9",
			player: "player1",
			want:   protocol.ReasonTeamNotFound,
		},
		{
			name:   "team without captain",
			setup:  func(s *State) { s.AddTeam("Green") },
			team:   "team3",
			player: "player1",
			want:   protocol.ReasonNoCaptain,
		},
		{
			name:          "transition beats everything",
			transitioning: true,
			team:          "team9",
			player:        "nobody",
			want:          protocol.ReasonTurnTransition,
		},
		{
			name:          "transition even for the valid captain",
			transitioning: true,
			team:          "team1",
			player:        "player1",
			want:          protocol.ReasonTurnTransition,
		},
		{
			name:   "not captain is reported before wrong turn",
			team:   "team2",
			player: "player1",
			want:   protocol.ReasonNotCaptain,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newActiveState(t)
			if tc.setup != nil {
				tc.setup(s)
			}
			v := Validate(s, tc.transitioning, tc.team, tc.player)
			if v.Valid != tc.wantValid {
				t.Fatalf("valid: got %v, want %v (%+v)", v.Valid, tc.wantValid, v)
			}
			if v.Reason != tc.want {
				t.Fatalf("reason: got %q, want %q", v.Reason, tc.want)
			}
			if !v.Valid && v.Message == "" {
				t.Fatalf("expected a message for %q", v.Reason)
			}
		})
	}
}

func TestValidate_DoesNotMutate(t *testing.T) {
	s := newActiveState(t)
	before := s.Snapshot(false)

	Validate(s, false, "team2", "player2")
	Validate(s, true, "team1", "player1")

	after := s.Snapshot(false)
	if before.CurrentTurnTeamID != after.CurrentTurnTeamID || before.Round != after.Round {
		t.Fatalf("state changed: %+v -> %+v", before, after)
	}
}
