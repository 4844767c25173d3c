// Command captain is a bot that joins a session and rolls whenever its team
// is on turn and it holds the captaincy.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/captains-backend/internal/logging"
	"github.com/DoyleJ11/captains-backend/pkg/client"
	"github.com/DoyleJ11/captains-backend/pkg/protocol"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "server base url")
	code := flag.String("code", "", "session code")
	team := flag.String("team", "team1", "team to join")
	nick := flag.String("nick", "captain-bot", "nickname")
	token := flag.String("host-token", "", "host token; when set the bot starts the game")
	interval := flag.Duration("interval", time.Second, "minimum time between actions")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger, err := logging.New(*level, "console")
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	if *code == "" {
		logger.Fatal("missing -code")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	url, err := client.WSURL(*server, *code)
	if err != nil {
		logger.Fatal("bad server url", zap.Error(err))
	}

	snapshots := make(chan struct{}, 1)
	c, err := client.Dial(ctx, url, client.Options{
		MinInterval: *interval,
		Logger:      logger,
		OnMessage: func(msg protocol.ServerMessage) {
			switch msg.Type {
			case protocol.TypeStateSnapshot:
				select {
				case snapshots <- struct{}{}:
				default:
				}
			case protocol.TypeActionResult:
				logger.Info("rolled",
					zap.String("team", msg.ActionResult.TeamID),
					zap.Int("roll", msg.ActionResult.Roll),
					zap.Int("score", msg.ActionResult.Score),
				)
			case protocol.TypeGameEnded:
				winner := ""
				if msg.GameEnded.Winner != nil {
					winner = msg.GameEnded.Winner.Name
				}
				logger.Info("game ended", zap.String("reason", msg.GameEnded.Reason), zap.String("winner", winner))
				stop()
			}
		},
	})
	if err != nil {
		logger.Fatal("dial", zap.Error(err))
	}
	defer c.Close()

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()

	if err := c.Join(ctx, *nick, *team); err != nil {
		logger.Fatal("join", zap.Error(err))
	}
	if *token != "" {
		if err := c.Host(ctx, *token, protocol.ClientMessage{Action: protocol.HostStart}); err != nil {
			logger.Fatal("start", zap.Error(err))
		}
	}

	// Retry on a timer too, since the rate limit can turn away a roll that
	// no later snapshot will prompt again.
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-runErr:
			if err != nil {
				logger.Error("connection lost", zap.Error(err))
			}
			return
		case <-snapshots:
		case <-ticker.C:
		}
		if c.Gate().Check() != nil {
			continue
		}
		if err := c.Roll(ctx); err != nil {
			logger.Debug("roll held back", zap.Error(err))
		}
	}
}
