package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/captains-backend/internal/game"
	"github.com/DoyleJ11/captains-backend/pkg/protocol"
)

const hostToken = "host-secret"

// helper: receive one message with a timeout so tests never hang
func recvMsg(t *testing.T, ch <-chan protocol.ServerMessage, within time.Duration) protocol.ServerMessage {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return m
	case <-time.After(within):
		t.Fatalf("timed out waiting for message")
		return protocol.ServerMessage{}
	}
}

// recvType skips messages until one of typ arrives.
func recvType(t *testing.T, ch <-chan protocol.ServerMessage, typ protocol.MessageType, within time.Duration) protocol.ServerMessage {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				t.Fatalf("client outbox closed waiting for %s", typ)
			}
			if m.Type == typ {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
			return protocol.ServerMessage{}
		}
	}
}

// drain discards whatever is already queued.
func drain(ch <-chan protocol.ServerMessage) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func newSession(t *testing.T, opts Options) *Session {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := New(ctx, game.NewState("ROOM01", []string{"Red", "Blue"}), hostToken, opts)
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})
	return s
}

func joinClient(t *testing.T, s *Session, id string) chan protocol.ServerMessage {
	t.Helper()
	out := make(chan protocol.ServerMessage, 64)
	require.NoError(t, s.Submit(context.Background(), Join{ClientID: id, Outbox: out}))
	first := recvMsg(t, out, time.Second)
	require.Equal(t, protocol.TypeStateSnapshot, first.Type)
	return out
}

func joinPlayer(t *testing.T, s *Session, clientID string, out <-chan protocol.ServerMessage, nick, team string) string {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Do(ctx, clientID, protocol.ClientMessage{Type: protocol.TypeJoin, Nickname: nick, TeamID: team}))
	joined := recvType(t, out, protocol.TypeJoined, time.Second)
	require.Equal(t, team, joined.Joined.TeamID)
	return joined.Joined.PlayerID
}

func host(t *testing.T, s *Session, action protocol.HostAction) error {
	t.Helper()
	return s.Do(context.Background(), "", protocol.ClientMessage{Type: protocol.TypeHostControl, Action: action, Token: hostToken})
}

// started returns a running session with one captain per team.
func started(t *testing.T, opts Options) (*Session, chan protocol.ServerMessage, string, string) {
	t.Helper()
	s := newSession(t, opts)
	out := joinClient(t, s, "display")
	p1 := joinPlayer(t, s, "display", out, "Ann", "team1")
	p2 := joinPlayer(t, s, "display", out, "Bob", "team2")
	require.NoError(t, host(t, s, protocol.HostStart))
	return s, out, p1, p2
}

func TestSession_JoinSendsCurrentSnapshot(t *testing.T) {
	s := newSession(t, Options{})
	out := make(chan protocol.ServerMessage, 4)
	require.NoError(t, s.Submit(context.Background(), Join{ClientID: "c1", Outbox: out}))

	first := recvMsg(t, out, time.Second)
	require.Equal(t, protocol.TypeStateSnapshot, first.Type)
	assert.Equal(t, protocol.PhaseLobby, first.Snapshot.Phase)
	assert.Len(t, first.Snapshot.Teams, 2)
	assert.Zero(t, first.Seq)
}

func TestSession_ScenarioA_AdvanceThenCommit(t *testing.T) {
	s, out, _, p2 := started(t, Options{SettleDelay: 20 * time.Millisecond})

	require.NoError(t, s.Do(context.Background(), "", protocol.ClientMessage{Type: protocol.TypeRequestSkip, Token: hostToken}))

	snap := recvType(t, out, protocol.TypeTransitionStart, time.Second)
	assert.NotEmpty(t, snap.TransitionStart.Message)
	during := recvType(t, out, protocol.TypeStateSnapshot, time.Second).Snapshot
	assert.Equal(t, "team2", during.CurrentTurnTeamID)
	assert.Equal(t, 1, during.Round)
	assert.True(t, during.IsTransitioning)

	tc := recvType(t, out, protocol.TypeTurnCommitted, time.Second).TurnCommitted
	assert.Equal(t, "team2", tc.NextTeamID)
	assert.Equal(t, p2, tc.CaptainID)
	assert.Equal(t, "Bob", tc.CaptainName)

	after := recvType(t, out, protocol.TypeStateSnapshot, time.Second).Snapshot
	assert.False(t, after.IsTransitioning)
	assert.Greater(t, after.Version, during.Version)
}

func TestSession_ConcurrentAdvancesOnlyOneWins(t *testing.T) {
	s, _, _, _ := started(t, Options{SettleDelay: time.Hour})

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Do(context.Background(), "", protocol.ClientMessage{Type: protocol.TypeRequestSkip, Token: hostToken})
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrTransitionInProgress)
	}
	assert.Equal(t, 1, ok)

	v, err := s.View(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "team2", v.Snapshot.CurrentTurnTeamID)
	assert.True(t, v.Snapshot.IsTransitioning)
}

func TestSession_ActionRollsScoresAndAdvances(t *testing.T) {
	s, out, p1, _ := started(t, Options{Roller: RollerFunc(func() int { return 4 })})
	ctx := context.Background()

	require.NoError(t, s.Do(ctx, "display", protocol.ClientMessage{Type: protocol.TypeRequestAction, TeamID: "team1", PlayerID: p1}))

	res := recvType(t, out, protocol.TypeActionResult, time.Second).ActionResult
	assert.Equal(t, 4, res.Roll)
	assert.Equal(t, 4, res.Score)
	assert.Equal(t, p1, res.PlayerID)
	recvType(t, out, protocol.TypeTransitionStart, time.Second)
	tc := recvType(t, out, protocol.TypeTurnCommitted, time.Second).TurnCommitted
	assert.Equal(t, "team2", tc.NextTeamID)
}

func TestSession_ActionRejectedGoesToRequesterOnly(t *testing.T) {
	s, display, p1, _ := started(t, Options{})
	phone := joinClient(t, s, "phone")
	ctx := context.Background()
	drain(display)

	err := s.Do(ctx, "phone", protocol.ClientMessage{Type: protocol.TypeRequestAction, TeamID: "team1", PlayerID: "wrong-player"})

	var rej *RejectedError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, protocol.ReasonNotCaptain, rej.Verdict.Reason)

	msg := recvType(t, phone, protocol.TypeActionRejected, time.Second)
	assert.False(t, msg.Rejection.Valid)
	assert.Equal(t, protocol.ReasonNotCaptain, msg.Rejection.Reason)
	assert.Zero(t, msg.Seq)

	// The display only sees the next real action.
	require.NoError(t, s.Do(ctx, "display", protocol.ClientMessage{Type: protocol.TypeRequestAction, TeamID: "team1", PlayerID: p1}))
	next := recvMsg(t, display, time.Second)
	assert.Equal(t, protocol.TypeActionResult, next.Type)
}

func TestSession_ActionDuringTransition(t *testing.T) {
	s, _, _, p2 := started(t, Options{SettleDelay: time.Hour})
	ctx := context.Background()
	require.NoError(t, host(t, s, protocol.HostSkip))

	err := s.Do(ctx, "", protocol.ClientMessage{Type: protocol.TypeRequestAction, TeamID: "team2", PlayerID: p2})

	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, protocol.ReasonTurnTransition, rej.Verdict.Reason)
}

func TestSession_ActionBeforeStart(t *testing.T) {
	s := newSession(t, Options{})
	out := joinClient(t, s, "c")
	p1 := joinPlayer(t, s, "c", out, "Ann", "team1")

	err := s.Do(context.Background(), "c", protocol.ClientMessage{Type: protocol.TypeRequestAction, TeamID: "team1", PlayerID: p1})

	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, protocol.ReasonGameNotActive, rej.Verdict.Reason)
}

func TestSession_EndTurnRequiresCaptain(t *testing.T) {
	s, _, p1, p2 := started(t, Options{})
	ctx := context.Background()

	err := s.Do(ctx, "", protocol.ClientMessage{Type: protocol.TypeRequestAdvance, TeamID: "team2", PlayerID: p2})
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, protocol.ReasonWrongTurn, rej.Verdict.Reason)

	require.NoError(t, s.Do(ctx, "", protocol.ClientMessage{Type: protocol.TypeRequestAdvance, TeamID: "team1", PlayerID: p1}))
}

func TestSession_TargetScoreEndsGame(t *testing.T) {
	s, out, p1, _ := started(t, Options{TargetScore: 6, Roller: RollerFunc(func() int { return 6 })})

	require.NoError(t, s.Do(context.Background(), "", protocol.ClientMessage{Type: protocol.TypeRequestAction, TeamID: "team1", PlayerID: p1}))

	ended := recvType(t, out, protocol.TypeGameEnded, time.Second).GameEnded
	assert.Equal(t, game.EndReasonTargetScore, ended.Reason)
	require.NotNil(t, ended.Winner)
	assert.Equal(t, "team1", ended.Winner.ID)

	err := s.Do(context.Background(), "", protocol.ClientMessage{Type: protocol.TypeRequestSkip, Token: hostToken})
	assert.ErrorIs(t, err, game.ErrGameEnded)
}

func TestSession_HostTokenChecked(t *testing.T) {
	s := newSession(t, Options{})
	ctx := context.Background()

	err := s.Do(ctx, "", protocol.ClientMessage{Type: protocol.TypeHostControl, Action: protocol.HostStart, Token: "nope"})
	assert.ErrorIs(t, err, ErrUnauthorized)
	err = s.Do(ctx, "", protocol.ClientMessage{Type: protocol.TypeRequestSkip})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, s.Authorize(""))
	assert.True(t, s.Authorize(hostToken))
}

func TestSession_RejoinKeepsPlayer(t *testing.T) {
	s := newSession(t, Options{})
	out := joinClient(t, s, "c1")
	p1 := joinPlayer(t, s, "c1", out, "Ann", "team1")

	again := joinClient(t, s, "c2")
	require.NoError(t, s.Do(context.Background(), "c2", protocol.ClientMessage{Type: protocol.TypeJoin, PlayerID: p1}))
	joined := recvType(t, again, protocol.TypeJoined, time.Second).Joined
	assert.Equal(t, p1, joined.PlayerID)

	v, err := s.View(context.Background())
	require.NoError(t, err)
	assert.Len(t, v.Snapshot.Players, 1)
}

func TestSession_RemoveTeamThenSkipRecovers(t *testing.T) {
	s, _, _, _ := started(t, Options{SettleDelay: time.Hour})
	ctx := context.Background()

	require.NoError(t, s.Do(ctx, "", protocol.ClientMessage{Type: protocol.TypeHostControl, Action: protocol.HostRemoveTeam, TeamID: "team1", Token: hostToken}))
	require.NoError(t, host(t, s, protocol.HostSkip))

	v, err := s.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, "team2", v.Snapshot.CurrentTurnTeamID)
	assert.Equal(t, 1, v.Snapshot.Round)
}

func TestSession_UnknownCommand(t *testing.T) {
	s := newSession(t, Options{})
	err := s.Do(context.Background(), "", protocol.ClientMessage{Type: "dance"})
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestSession_WatchdogUnsticksLostTimer(t *testing.T) {
	// a scheduler that never fires
	lost := &manualScheduler{}
	s, out, _, _ := started(t, Options{
		SettleDelay:   10 * time.Millisecond,
		WatchdogGrace: 20 * time.Millisecond,
		Scheduler:     lost,
	})

	require.NoError(t, host(t, s, protocol.HostSkip))

	tc := recvType(t, out, protocol.TypeTurnCommitted, time.Second).TurnCommitted
	assert.Equal(t, "team2", tc.NextTeamID)
}

func TestSession_ShutdownClosesOutboxes(t *testing.T) {
	s := newSession(t, Options{})
	out := joinClient(t, s, "c1")

	s.Inbox() <- Shutdown{}

	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatalf("outbox not closed on shutdown")
	}
	<-s.Done()
	assert.ErrorIs(t, s.Do(context.Background(), "", protocol.ClientMessage{Type: protocol.TypeLeave}), ErrClosed)
}

func TestSession_LeaveOnlyForBoundPlayer(t *testing.T) {
	s := newSession(t, Options{})
	ctx := context.Background()
	annOut := joinClient(t, s, "ann")
	ann := joinPlayer(t, s, "ann", annOut, "Ann", "team1")
	bobOut := joinClient(t, s, "bob")
	bob := joinPlayer(t, s, "bob", bobOut, "Bob", "team1")

	err := s.Do(ctx, "bob", protocol.ClientMessage{Type: protocol.TypeLeave, PlayerID: ann})
	assert.ErrorIs(t, err, ErrNotBound)
	err = s.Do(ctx, "", protocol.ClientMessage{Type: protocol.TypeLeave, PlayerID: ann})
	assert.ErrorIs(t, err, ErrNotBound)

	require.NoError(t, s.Do(ctx, "ann", protocol.ClientMessage{Type: protocol.TypeLeave}))

	v, err := s.View(ctx)
	require.NoError(t, err)
	assert.NotContains(t, v.Snapshot.Players, ann)
	team, ok := v.Snapshot.Team("team1")
	require.True(t, ok)
	assert.Equal(t, bob, team.CurrentCaptainID)
}

func TestSession_RejoinMovesBinding(t *testing.T) {
	s := newSession(t, Options{})
	ctx := context.Background()
	oldOut := joinClient(t, s, "old")
	p1 := joinPlayer(t, s, "old", oldOut, "Ann", "team1")

	joinClient(t, s, "new")
	require.NoError(t, s.Do(ctx, "new", protocol.ClientMessage{Type: protocol.TypeJoin, PlayerID: p1}))

	err := s.Do(ctx, "old", protocol.ClientMessage{Type: protocol.TypeLeave})
	assert.ErrorIs(t, err, ErrNotBound)
	require.NoError(t, s.Do(ctx, "new", protocol.ClientMessage{Type: protocol.TypeLeave, PlayerID: p1}))
}
