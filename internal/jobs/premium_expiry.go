package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const sweepTimeout = 30 * time.Second

// LapseSweeper clears premium that has run past its expiry and reports how many
// accounts it corrected.
type LapseSweeper interface {
	SweepLapsed(ctx context.Context) (int64, error)
}

// PremiumExpiryJob periodically persists lapsed premium so stored accounts converge
// without waiting for the student to sign in again.
type PremiumExpiryJob struct {
	sweeper  LapseSweeper
	interval time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

func NewPremiumExpiryJob(sweeper LapseSweeper, interval time.Duration) *PremiumExpiryJob {
	return &PremiumExpiryJob{
		sweeper:  sweeper,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *PremiumExpiryJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("premium expiry job started")
}

func (j *PremiumExpiryJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		log.Info().Msg("premium expiry job stopped")
	})
}

func (j *PremiumExpiryJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *PremiumExpiryJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	count, err := j.sweeper.SweepLapsed(ctx)
	if err != nil {
		log.Error().Err(err).Int64("count", count).Msg("failed to sweep lapsed premium")
	} else if count > 0 {
		log.Info().Int64("count", count).Msg("cleared lapsed premium")
	}
}
