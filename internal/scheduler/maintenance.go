// Package scheduler provides cron-based background jobs for pagebot.
//
// This file registers the periodic session sweeps.
package scheduler

import (
	"log/slog"
	"time"

	"github.com/rodge1109/pagebot/internal/session"
)

// CommentSweeper drops stale entries from the replied-comment dedup set.
type CommentSweeper interface {
	SweepComments() int
}

// RegisterMaintenance wires the session hygiene jobs: idle conversations
// are dropped every ten minutes, the longer-lived caches hourly.
func RegisterMaintenance(s *Scheduler, sessions session.Store, comments CommentSweeper, clock func() time.Time) error {
	if clock == nil {
		clock = time.Now
	}

	if err := s.AddJob("*/10 * * * *", func() {
		if n := sessions.SweepIdle(clock(), session.IdleTimeout); n > 0 {
			slog.Info("Swept idle sessions", "count", n)
		}
	}); err != nil {
		return err
	}

	return s.AddJob("0 * * * *", func() {
		now := clock()
		if n := sessions.SweepLocations(now, session.LocationTTL); n > 0 {
			slog.Info("Swept cached locations", "count", n)
		}
		if n := sessions.SweepGreeted(now, session.GreetTTL); n > 0 {
			slog.Info("Swept greeting marks", "count", n)
		}
		if n := sessions.SweepMisses(now, session.MissTTL); n > 0 {
			slog.Info("Swept stale miss counters", "count", n)
		}
		if comments != nil {
			if n := comments.SweepComments(); n > 0 {
				slog.Info("Swept replied-comment dedup set", "count", n)
			}
		}
	})
}
