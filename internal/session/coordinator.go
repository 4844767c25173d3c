package session

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/captains-backend/internal/game"
	"github.com/DoyleJ11/captains-backend/pkg/protocol"
)

var ErrTransitionInProgress = errors.New("turn transition in progress")
var ErrNotStarted = errors.New("game not started")

type mode int

const (
	modeIdle mode = iota
	modeTransitioning
	modeEnded
)

func (m mode) String() string {
	switch m {
	case modeIdle:
		return "idle"
	case modeTransitioning:
		return "transitioning"
	case modeEnded:
		return "ended"
	}
	return "unknown"
}

const transitionMessage = "Next team is up..."

type CoordinatorOptions struct {
	SettleDelay time.Duration
	Scheduler   Scheduler
	// Dispatch runs fn on the goroutine that owns the coordinator. Timer
	// callbacks re-enter through it.
	Dispatch func(fn func())
	Logger   *zap.Logger
	Now      func() time.Time
}

// Coordinator is the turn state machine of one game. It owns the
// transition flag and the pending completion timer. It is not safe for
// concurrent use: every call must come from the owning goroutine.
type Coordinator struct {
	state    *game.State
	out      Publisher
	sched    Scheduler
	dispatch func(fn func())
	log      *zap.Logger
	now      func() time.Time
	settle   time.Duration

	mode    mode
	pending Handle
	gen     uint64
	since   time.Time
}

func NewCoordinator(state *game.State, out Publisher, opts CoordinatorOptions) *Coordinator {
	c := &Coordinator{
		state:    state,
		out:      out,
		sched:    opts.Scheduler,
		dispatch: opts.Dispatch,
		log:      opts.Logger,
		now:      opts.Now,
		settle:   max(0, opts.SettleDelay),
	}
	if c.sched == nil {
		c.sched = TimerScheduler{}
	}
	if c.dispatch == nil {
		c.dispatch = func(fn func()) { fn() }
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if state.Phase == protocol.PhaseEnded {
		c.mode = modeEnded
	}
	return c
}

func (c *Coordinator) Transitioning() bool { return c.mode == modeTransitioning }

func (c *Coordinator) Ended() bool { return c.mode == modeEnded }

func (c *Coordinator) Snapshot() protocol.Snapshot {
	return c.state.Snapshot(c.Transitioning())
}

// Broadcast pushes the current snapshot.
func (c *Coordinator) Broadcast() {
	snap := c.Snapshot()
	c.out.Publish(protocol.ServerMessage{Type: protocol.TypeStateSnapshot, Snapshot: &snap})
}

// Start opens the game: round 1, first team's turn.
func (c *Coordinator) Start() error {
	if c.mode == modeEnded {
		return game.ErrGameEnded
	}
	if err := c.state.Start(); err != nil {
		return err
	}
	c.log.Info("game started", zap.Int("teams", len(c.state.Teams)))
	c.Broadcast()
	return nil
}

// RequestAdvance moves the turn to the next team. The new turn is committed
// and broadcast immediately, but actions stay closed until the settle delay
// has passed. Requests arriving during that window are rejected.
func (c *Coordinator) RequestAdvance(source string) error {
	switch c.mode {
	case modeEnded:
		c.log.Debug("advance after game end ignored", zap.String("source", source))
		return game.ErrGameEnded
	case modeTransitioning:
		c.log.Info("duplicate advance suppressed",
			zap.String("source", source),
			zap.Uint64("transition", c.gen),
		)
		return ErrTransitionInProgress
	}
	if len(c.state.Teams) == 0 {
		c.log.Warn("no teams left, ending game", zap.String("source", source))
		c.EndGame(game.EndReasonNoTeams)
		return game.ErrNoTeams
	}
	if c.state.Phase == protocol.PhaseLobby {
		return ErrNotStarted
	}

	c.mode = modeTransitioning
	c.cancelPending()
	c.gen++
	c.since = c.now()

	next, wrapped, ok := game.NextTurn(c.state.Teams, c.state.CurrentTurnTeamID)
	if !ok {
		c.log.Warn("no teams left, ending game", zap.String("source", source))
		c.EndGame(game.EndReasonNoTeams)
		return game.ErrNoTeams
	}

	prev := c.state.CurrentTurnTeamID
	if wrapped {
		c.state.Round++
	}
	c.state.CurrentTurnTeamID = c.state.Teams[next].ID

	c.log.Info("turn transition started",
		zap.String("source", source),
		zap.String("from", prev),
		zap.String("to", c.state.CurrentTurnTeamID),
		zap.Int("round", c.state.Round),
		zap.Uint64("transition", c.gen),
	)

	c.out.Publish(protocol.ServerMessage{
		Type:            protocol.TypeTransitionStart,
		TransitionStart: &protocol.TransitionStart{Message: transitionMessage},
	})
	c.Broadcast()

	gen := c.gen
	c.pending = c.sched.AfterFunc(c.settle, func() {
		c.dispatch(func() { c.complete(gen) })
	})
	return nil
}

// complete closes transition gen. Fires for an older transition, or after
// the game ended, are dropped.
func (c *Coordinator) complete(gen uint64) {
	if c.mode != modeTransitioning || gen != c.gen {
		c.log.Debug("stale transition completion dropped",
			zap.Uint64("transition", gen),
			zap.Uint64("current", c.gen),
			zap.Stringer("mode", c.mode),
		)
		return
	}

	c.pending = nil
	c.mode = modeIdle

	tc := protocol.TurnCommitted{NextTeamID: c.state.CurrentTurnTeamID, Round: c.state.Round}
	if captain := c.state.Captain(c.state.Team(tc.NextTeamID)); captain != nil {
		tc.CaptainID = captain.ID
		tc.CaptainName = captain.Nickname
	}

	c.log.Info("turn committed",
		zap.String("team", tc.NextTeamID),
		zap.String("captain", tc.CaptainID),
		zap.Int("round", tc.Round),
	)

	c.out.Publish(protocol.ServerMessage{Type: protocol.TypeTurnCommitted, TurnCommitted: &tc})
	c.Broadcast()
}

// CheckStuck force-completes a transition that has outlived its settle
// delay by more than grace. It reports whether it did so.
func (c *Coordinator) CheckStuck(now time.Time, grace time.Duration) bool {
	if c.mode != modeTransitioning || now.Sub(c.since) <= c.settle+grace {
		return false
	}
	c.log.Warn("transition stuck, forcing completion",
		zap.Uint64("transition", c.gen),
		zap.Duration("open_for", now.Sub(c.since)),
	)
	c.cancelPending()
	c.complete(c.gen)
	return true
}

// EndGame finishes the game from any state. A pending completion is
// cancelled and can no longer fire.
func (c *Coordinator) EndGame(reason string) error {
	if c.mode == modeEnded {
		return game.ErrGameEnded
	}

	c.cancelPending()
	c.gen++
	c.mode = modeEnded
	c.state.End(reason)

	ended := protocol.GameEnded{Reason: reason}
	if w := c.state.Team(c.state.WinnerID); w != nil {
		v := game.TeamView(w)
		ended.Winner = &v
	}

	c.log.Info("game ended",
		zap.String("reason", reason),
		zap.String("winner", c.state.WinnerID),
	)

	c.out.Publish(protocol.ServerMessage{Type: protocol.TypeGameEnded, GameEnded: &ended})
	c.Broadcast()
	return nil
}

// AwardPoints changes a team's score. Like every other mutation it is
// refused while a transition is open.
func (c *Coordinator) AwardPoints(teamID string, points int) (int, error) {
	switch c.mode {
	case modeEnded:
		return 0, game.ErrGameEnded
	case modeTransitioning:
		return 0, ErrTransitionInProgress
	}
	score, err := c.state.AddScore(teamID, points)
	if err != nil {
		return 0, err
	}
	c.log.Debug("points awarded",
		zap.String("team", teamID),
		zap.Int("points", points),
		zap.Int("score", score),
	)
	return score, nil
}

// Shutdown stops the pending timer without touching game state.
func (c *Coordinator) Shutdown() {
	c.cancelPending()
	c.gen++
}

func (c *Coordinator) cancelPending() {
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}
