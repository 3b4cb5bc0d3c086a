package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockSweeper struct {
	calls atomic.Int32
	count int64
	err   error
}

func (m *mockSweeper) SweepLapsed(ctx context.Context) (int64, error) {
	m.calls.Add(1)
	return m.count, m.err
}

func TestPremiumExpiryJob(t *testing.T) {
	t.Run("creates job with correct interval", func(t *testing.T) {
		job := NewPremiumExpiryJob(&mockSweeper{}, 5*time.Minute)

		assert.NotNil(t, job)
		assert.Equal(t, 5*time.Minute, job.interval)
	})

	t.Run("sweeps on start", func(t *testing.T) {
		sweeper := &mockSweeper{count: 2}
		job := NewPremiumExpiryJob(sweeper, time.Hour)

		job.Start()
		assert.Eventually(t, func() bool { return sweeper.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
		job.Stop()
	})

	t.Run("keeps sweeping on every tick", func(t *testing.T) {
		sweeper := &mockSweeper{}
		job := NewPremiumExpiryJob(sweeper, 10*time.Millisecond)

		job.Start()
		assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
		job.Stop()
	})

	t.Run("survives sweep errors and double stop", func(t *testing.T) {
		sweeper := &mockSweeper{err: errors.New("store down")}
		job := NewPremiumExpiryJob(sweeper, 10*time.Millisecond)

		job.Start()
		assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
		job.Stop()
		job.Stop()
	})
}
