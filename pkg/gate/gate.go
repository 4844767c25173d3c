// Package gate is the client-side mirror of the server's action checks.
//
// A Gate keeps the last snapshot the client received and refuses, without
// any network traffic, actions the server would certainly reject. Passing the
// gate never guarantees acceptance: the server validates again and its
// answer wins.
package gate

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/DoyleJ11/captains-backend/pkg/protocol"
)

// DefaultMinInterval is the minimum spacing between two sent actions.
const DefaultMinInterval = time.Second

type Reason string

const (
	ReasonMissingData    Reason = "missing_data"
	ReasonTurnTransition Reason = Reason(protocol.ReasonTurnTransition)
	ReasonTeamNotFound   Reason = Reason(protocol.ReasonTeamNotFound)
	ReasonNoCaptain      Reason = Reason(protocol.ReasonNoCaptain)
	ReasonNotCaptain     Reason = Reason(protocol.ReasonNotCaptain)
	ReasonWrongTurn      Reason = Reason(protocol.ReasonWrongTurn)
	ReasonDisabled       Reason = "actions_disabled"
	ReasonRateLimited    Reason = "rate_limited"
)

// Rejected is returned when the gate blocks an action locally.
type Rejected struct {
	Reason  Reason
	Message string
}

func (r *Rejected) Error() string {
	return fmt.Sprintf("blocked locally: %s: %s", r.Reason, r.Message)
}

type Option func(*Gate)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

type Gate struct {
	mu          sync.Mutex
	teamID      string
	playerID    string
	snap        *protocol.Snapshot
	disabled    bool
	lastAttempt time.Time
	limiter     *rate.Limiter
	now         func() time.Time
}

// New returns a gate allowing at most one action per minInterval. A
// non-positive interval disables rate limiting.
func New(minInterval time.Duration, opts ...Option) *Gate {
	g := &Gate{
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Identify sets who this client acts as.
func (g *Gate) Identify(teamID, playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.teamID, g.playerID = teamID, playerID
}

// Observe feeds a server message to the gate. Snapshots replace the cached
// one only when newer, so duplicates and late arrivals are ignored. It
// reports whether the cached snapshot changed.
func (g *Gate) Observe(msg protocol.ServerMessage) bool {
	if msg.Snapshot == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.snap != nil && msg.Snapshot.Version <= g.snap.Version {
		return false
	}
	snap := *msg.Snapshot
	g.snap = &snap
	return true
}

// Snapshot returns the cached snapshot, if any.
func (g *Gate) Snapshot() (protocol.Snapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.snap == nil {
		return protocol.Snapshot{}, false
	}
	return *g.snap, true
}

// SetDisabled blocks or unblocks actions from local UI state, for example
// while a request is still outstanding.
func (g *Gate) SetDisabled(disabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disabled = disabled
}

func (g *Gate) LastAttempt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastAttempt
}

// Check runs every check except the rate limit and consumes nothing. It is
// meant for enabling or disabling UI controls.
func (g *Gate) Check() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r := g.check(); r != nil {
		return r
	}
	return nil
}

// Attempt runs all checks and, if they pass, stamps the attempt and calls
// send. Nothing is sent when a check fails.
func (g *Gate) Attempt(send func() error) error {
	g.mu.Lock()
	if r := g.check(); r != nil {
		g.mu.Unlock()
		return r
	}
	now := g.now()
	if !g.limiter.AllowN(now, 1) {
		g.mu.Unlock()
		return &Rejected{Reason: ReasonRateLimited, Message: "Slow down"}
	}
	g.lastAttempt = now
	g.mu.Unlock()

	return send()
}

func (g *Gate) check() *Rejected {
	if g.teamID == "" || g.playerID == "" || g.snap == nil {
		return &Rejected{Reason: ReasonMissingData, Message: "Not joined yet"}
	}
	if g.snap.IsTransitioning {
		return &Rejected{Reason: ReasonTurnTransition, Message: "Turn is changing, please wait"}
	}
	if g.snap.CurrentTurnTeamID != g.teamID {
		return &Rejected{Reason: ReasonWrongTurn, Message: "Not your team's turn"}
	}
	team, ok := g.snap.Team(g.teamID)
	if !ok {
		return &Rejected{Reason: ReasonTeamNotFound, Message: "Your team no longer exists"}
	}
	if team.CurrentCaptainID == "" {
		return &Rejected{Reason: ReasonNoCaptain, Message: "Your team has no captain"}
	}
	if team.CurrentCaptainID != g.playerID {
		return &Rejected{Reason: ReasonNotCaptain, Message: "Only the captain can act"}
	}
	if g.disabled {
		return &Rejected{Reason: ReasonDisabled, Message: "Waiting for the last action"}
	}
	return nil
}
